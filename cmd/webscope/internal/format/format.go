// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package format renders command output as tables or JSON.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

// OutputMode defines the output format for CLI commands
type OutputMode string

const (
	// ModeJSON outputs data as JSON
	ModeJSON OutputMode = "json"
	// ModeTable outputs data as aligned columns
	ModeTable OutputMode = "table"
)

// Formatter provides consistent output formatting across CLI commands
type Formatter interface {
	// PrintJSON outputs data as indented JSON to stdout
	PrintJSON(data any) error

	// PrintTable outputs rows under headers, or a list of objects in JSON mode
	PrintTable(headers []string, rows [][]string) error

	// PrintSummary outputs a one line message unless quiet
	PrintSummary(message string) error

	// PrintError outputs an error followed by hints. JSON mode writes an
	// error object to stdout instead.
	PrintError(err error, suggestions []string) error

	// Mode reports the active output mode.
	Mode() OutputMode
}

type formatter struct {
	stdout io.Writer
	stderr io.Writer
	mode   OutputMode
	quiet  bool
	color  bool
}

// New creates a new Formatter
func New(stdout, stderr io.Writer, mode OutputMode, quiet, color bool) Formatter {
	return &formatter{
		stdout: stdout,
		stderr: stderr,
		mode:   mode,
		quiet:  quiet,
		color:  color,
	}
}

func (f *formatter) Mode() OutputMode {
	return f.mode
}

func (f *formatter) PrintJSON(data any) error {
	enc := json.NewEncoder(f.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (f *formatter) PrintTable(headers []string, rows [][]string) error {
	if f.mode == ModeJSON {
		items := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			item := make(map[string]string, len(headers))
			for i, header := range headers {
				if i < len(row) {
					item[strings.ToLower(header)] = row[i]
				}
			}
			items = append(items, item)
		}
		return f.PrintJSON(items)
	}
	return writeTable(f.stdout, headers, rows, f.color)
}

func writeTable(out io.Writer, headers []string, rows [][]string, bold bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	headerLine := make([]string, len(headers))
	for i, h := range headers {
		headerLine[i] = strings.ToUpper(h)
		if bold {
			headerLine[i] = color.New(color.Bold).Sprint(headerLine[i])
		}
	}
	if _, err := fmt.Fprintln(w, strings.Join(headerLine, "\t")); err != nil {
		return err
	}

	for _, row := range rows {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (f *formatter) PrintSummary(message string) error {
	if f.quiet {
		return nil
	}

	// Keep stdout parseable in JSON mode.
	if f.mode == ModeJSON {
		_, err := fmt.Fprintln(f.stderr, message)
		return err
	}

	if f.color {
		_, err := color.New(color.FgGreen).Fprintln(f.stdout, message)
		return err
	}
	_, err := fmt.Fprintln(f.stdout, message)
	return err
}

func (f *formatter) PrintError(err error, suggestions []string) error {
	if err == nil {
		return nil
	}

	if f.mode == ModeJSON {
		payload := map[string]any{
			"success": false,
			"error":   err.Error(),
		}
		if len(suggestions) > 0 {
			payload["suggestions"] = suggestions
		}
		return f.PrintJSON(payload)
	}

	var sb strings.Builder
	msg := fmt.Sprintf("Error: %v", err)
	if f.color {
		msg = color.RedString("%s", msg)
	}
	sb.WriteString(msg + "\n")

	if len(suggestions) > 0 && !f.quiet {
		sb.WriteString("\nSuggestions:\n")
		for _, s := range suggestions {
			sb.WriteString("  → " + s + "\n")
		}
	}

	_, writeErr := io.WriteString(f.stderr, sb.String())
	return writeErr
}

// ValidateMode checks if the output mode is valid
func ValidateMode(mode string) error {
	switch OutputMode(mode) {
	case ModeJSON, ModeTable:
		return nil
	default:
		return fmt.Errorf("invalid output mode: %s (must be 'json' or 'table')", mode)
	}
}

// ParseMode converts a string to OutputMode, defaulting to table.
func ParseMode(mode string) OutputMode {
	if strings.ToLower(mode) == string(ModeJSON) {
		return ModeJSON
	}
	return ModeTable
}
