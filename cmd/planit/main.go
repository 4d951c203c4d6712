package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const defaultConfigPath = "config.yaml"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "planit: %v\n", err)
		os.Exit(1)
	}
}

// run parses the command line and dispatches to a subcommand.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("planit", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.StringP("config", "c", envOr("PLANIT_CONFIG", defaultConfigPath), "path to the YAML config file")
	fs.Usage = func() { showUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd := "serve"
	if fs.NArg() > 0 {
		cmd = fs.Arg(0)
	}
	switch cmd {
	case "serve":
		return runServe(*cfgPath)
	case "encrypt-value":
		return runEncryptValue(stdin, stdout)
	case "help":
		showUsage(stdout)
		return nil
	default:
		return fmt.Errorf("unknown command %q (run 'planit help')", cmd)
	}
}

func showUsage(w io.Writer) {
	fmt.Fprint(w, `planit - study planning assistant

USAGE:
    planit [-c|--config PATH] [COMMAND]

COMMANDS:
    serve           Run the HTTP API (default)
    encrypt-value   Read a secret on stdin and print its enc: form
    help            Show this message

ENVIRONMENT:
    PLANIT_CONFIG       Config file path (default: ./config.yaml)
    PLANIT_CONFIG_KEY   Passphrase for enc: secrets
    PLANIT_*            Override config values (e.g. PLANIT_LLM_API_KEY)
    GOOGLE_API_KEY      Model API key when PLANIT_LLM_API_KEY is unset
`)
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
