// Command catalog-check validates a field-catalog JSON file: unknown storage
// kinds, duplicate or non-positive ids, dangling parent references, and
// asymmetric reverse declarations all fail the check.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ticketcore/internal/catalog"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("catalog-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var catalogPath string
	fs.StringVar(&catalogPath, "catalog", "docs/catalog.json", "path to catalog json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(catalogPath); err != nil {
		fmt.Fprintf(stderr, "Catalog validation failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "Catalog validation passed.")
	return 0
}

// validatePath rejects absolute and traversing paths so the check only reads
// files inside the working tree.
func validatePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute paths not allowed: %s", p)
	}
	clean := filepath.Clean(p)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", p)
	}
	return clean, nil
}

func run(catalogPath string) error {
	safePath, err := validatePath(catalogPath)
	if err != nil {
		return err
	}
	_, err = catalog.Load(context.Background(), catalog.FileSource{Path: safePath})
	return err
}
