package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

var errNoInput = errors.New("no input: pass --text, --file, or pipe text on stdin")

// readInput picks the text to work on: --text, then --file ("-" is stdin),
// then piped stdin. An interactive terminal with no input is refused.
func readInput(text, file string, stdin io.Reader) (string, error) {
	if text != "" {
		return text, nil
	}
	switch strings.TrimSpace(file) {
	case "":
	case "-":
		return readAll(stdin)
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return string(data), nil
	}
	if stdinIsTTY() {
		return "", errNoInput
	}
	return readAll(stdin)
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
