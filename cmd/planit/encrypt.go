package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"planit/internal/infra/config"
)

// runEncryptValue reads one secret line from in and prints the value to put
// in the config file.
func runEncryptValue(in io.Reader, out io.Writer) error {
	passphrase := os.Getenv("PLANIT_CONFIG_KEY")
	if passphrase == "" {
		return errors.New("encrypt-value: PLANIT_CONFIG_KEY is not set")
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("encrypt-value: read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return errors.New("encrypt-value: empty secret")
	}

	enc, err := config.EncryptValue(secret, passphrase)
	if err != nil {
		return fmt.Errorf("encrypt-value: %w", err)
	}
	_, err = fmt.Fprintf(out, "enc:%s\n", enc)
	return err
}
