// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vulntor/webscope/pkg/detect"
	"github.com/vulntor/webscope/pkg/finding"
)

var (
	targetStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// ScanReport is the JSON shape of one scanned target.
type ScanReport struct {
	Target string         `json:"target"`
	Result *detect.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
	Code   string         `json:"error_code,omitempty"`
}

// Reports converts batch outcomes into their printable form.
func Reports(outcomes []detect.Outcome) []ScanReport {
	reports := make([]ScanReport, 0, len(outcomes))
	for _, o := range outcomes {
		r := ScanReport{Target: o.Target, Result: o.Result}
		if o.Err != nil {
			r.Error = o.Err.Error()
			r.Code = detect.ErrorCode(o.Err)
		}
		reports = append(reports, r)
	}
	return reports
}

// PrintReports writes scan results. Table mode prints one block per target
// with detections ranked by certainty.
func PrintReports(f Formatter, reports []ScanReport) error {
	if f.Mode() == ModeJSON {
		return f.PrintJSON(reports)
	}

	impl, ok := f.(*formatter)
	if !ok {
		return fmt.Errorf("unsupported formatter %T", f)
	}
	for i, r := range reports {
		if i > 0 {
			if _, err := fmt.Fprintln(impl.stdout); err != nil {
				return err
			}
		}
		if err := impl.printReport(r); err != nil {
			return err
		}
	}
	return nil
}

func (f *formatter) printReport(r ScanReport) error {
	heading := r.Target
	if r.Result != nil {
		if r.Result.FinalURL != "" && r.Result.FinalURL != r.Target {
			heading += " → " + r.Result.FinalURL
		}
		heading += fmt.Sprintf(" [%d]", r.Result.StatusCode)
	}
	if _, err := fmt.Fprintln(f.stdout, f.style(targetStyle, heading)); err != nil {
		return err
	}

	if r.Error != "" {
		_, err := fmt.Fprintln(f.stdout, f.style(failStyle, "  ✗ "+r.Error))
		return err
	}
	if r.Result == nil {
		return nil
	}

	if len(r.Result.Detections) == 0 {
		_, err := fmt.Fprintln(f.stdout, f.style(mutedStyle, "  no signatures matched"))
		return err
	}

	rows := make([][]string, 0, len(r.Result.Detections))
	for _, d := range r.Result.Ranked() {
		rows = append(rows, []string{
			d.Signature,
			strconv.Itoa(d.Certainty),
			strings.Join(d.Values(finding.KindVersion), ", "),
			details(d),
		})
	}
	if err := writeTable(f.stdout, []string{"Signature", "Certainty", "Version", "Details"}, rows, f.color); err != nil {
		return err
	}

	for _, se := range r.Result.Errors {
		if _, err := fmt.Fprintln(f.stdout, f.style(failStyle, "  ! "+se.Error())); err != nil {
			return err
		}
	}

	if f.quiet {
		return nil
	}
	footer := fmt.Sprintf("  %d detected in %s", len(r.Result.Detections), r.Result.Duration.Round(time.Millisecond))
	_, err := fmt.Fprintln(f.stdout, f.style(mutedStyle, footer))
	return err
}

// details lists findings other than names and versions as kind=value pairs.
func details(d detect.Detection) string {
	var parts []string
	for _, fd := range d.Findings {
		if fd.Kind == finding.KindName || fd.Kind == finding.KindVersion {
			continue
		}
		parts = append(parts, string(fd.Kind)+"="+fd.Value)
	}
	return strings.Join(parts, ", ")
}

func (f *formatter) style(s lipgloss.Style, text string) string {
	if !f.color {
		return text
	}
	return s.Render(text)
}
