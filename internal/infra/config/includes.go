package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// includeWalker overlays included YAML files onto a Config, depth first.
type includeWalker struct {
	cfg     *Config
	visited map[string]bool // absolute paths already merged
}

// processIncludes merges the files named by cfg.Includes, resolved against
// baseDir, into cfg. visited must hold the including file so a cycle back
// to it is reported.
func processIncludes(cfg *Config, baseDir string, visited map[string]bool, depth int) error {
	if visited == nil {
		visited = make(map[string]bool)
	}
	w := &includeWalker{cfg: cfg, visited: visited}
	return w.walk(cfg.Includes, baseDir, depth)
}

func (w *includeWalker) walk(patterns []string, baseDir string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("config includes: max depth %d exceeded", maxIncludeDepth)
	}
	for _, pattern := range patterns {
		paths, err := resolveIncludePaths(pattern, baseDir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := w.merge(p, depth+1); err != nil {
				return err
			}
		}
	}
	w.cfg.Includes = nil
	return nil
}

func (w *includeWalker) merge(path string, depth int) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config includes: abs path %q: %w", path, err)
	}
	if w.visited[abs] {
		return fmt.Errorf("config includes: circular include detected for %q", abs)
	}
	w.visited[abs] = true

	if err := validatePermissions(abs); err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("config includes: read %q: %w", abs, err)
	}
	if len(data) == 0 {
		return nil
	}

	w.cfg.Includes = nil
	if err := yaml.Unmarshal(data, w.cfg); err != nil {
		return fmt.Errorf("config includes: parse %q: %w", abs, err)
	}
	if nested := w.cfg.Includes; len(nested) > 0 {
		return w.walk(nested, filepath.Dir(abs), depth)
	}
	return nil
}

// resolveIncludePaths expands pattern relative to baseDir. Paths may not
// climb out of baseDir. A literal path that does not exist is returned as
// is so the read reports it; a glob that matches nothing yields no paths.
func resolveIncludePaths(pattern, baseDir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(baseDir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(baseDir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("config includes: path %q escapes config directory", pattern)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	return matches, nil
}
