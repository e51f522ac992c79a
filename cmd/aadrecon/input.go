package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// collectInputs gathers input domains in order: the file when given (it takes precedence
// over the comma list), otherwise the comma list, then standard input when r is non-nil.
func collectInputs(list, path string, r io.Reader) ([]string, error) {
	var domains []string
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening domains file: %w", err)
		}
		defer f.Close()
		if domains, err = readLines(f); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	} else {
		domains = splitDomains(list)
	}

	if r != nil {
		more, err := readLines(r)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		domains = append(domains, more...)
	}
	return domains, nil
}

func splitDomains(list string) []string {
	var out []string
	for _, d := range strings.Split(list, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, scanner.Err()
}
