package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/webscope/cmd/webscope/internal/format"
	"github.com/vulntor/webscope/pkg/signature"
	"github.com/vulntor/webscope/pkg/stringutil"
)

func newSignaturesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "signatures",
		Aliases: []string{"sig"},
		Short:   "Inspect and validate signatures",
		GroupID: "core",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newSignaturesListCommand())
	cmd.AddCommand(newSignaturesShowCommand())
	cmd.AddCommand(newSignaturesValidateCommand())

	return cmd
}

func newSignaturesListCommand() *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded signatures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registryFor(cmd, configFrom(cmd).Signatures)
			if err != nil {
				return err
			}

			var rows [][]string
			for _, sig := range reg.All() {
				if tag != "" && !hasTag(sig, tag) {
					continue
				}
				rows = append(rows, []string{
					sig.Name,
					sig.Metadata.Version,
					strconv.Itoa(len(sig.Rules)),
					strconv.Itoa(len(sig.Passive)),
					strings.Join(sig.Metadata.Tags, ","),
					sig.Origin,
				})
			}

			f := Formatter(cmd)
			if err := f.PrintTable([]string{"Name", "Version", "Rules", "Passive", "Tags", "Origin"}, rows); err != nil {
				return err
			}
			return f.PrintSummary(fmt.Sprintf("%d signatures", len(rows)))
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Only list signatures carrying this tag")
	return cmd
}

func hasTag(sig *signature.Signature, tag string) bool {
	for _, t := range sig.Metadata.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ruleView is the printable form of a rule.
type ruleView struct {
	Kind      string `json:"kind"`
	Label     string `json:"label"`
	Target    string `json:"target"`
	Pattern   string `json:"pattern,omitempty"`
	Certainty int    `json:"certainty"`
}

type signatureView struct {
	Name        string     `json:"name"`
	Version     string     `json:"version,omitempty"`
	Author      string     `json:"author,omitempty"`
	Description string     `json:"description,omitempty"`
	Website     string     `json:"website,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Examples    []string   `json:"examples,omitempty"`
	Origin      string     `json:"origin"`
	Rules       []ruleView `json:"rules"`
}

func viewOf(sig *signature.Signature) signatureView {
	v := signatureView{
		Name:        sig.Name,
		Version:     sig.Metadata.Version,
		Author:      sig.Metadata.Author,
		Description: sig.Metadata.Description,
		Website:     sig.Metadata.Website,
		Tags:        sig.Metadata.Tags,
		Examples:    sig.Metadata.Examples,
		Origin:      sig.Origin,
		Rules:       []ruleView{},
	}

	for _, r := range sig.Rules {
		rv := ruleView{Kind: string(r.Kind), Label: r.Label, Certainty: r.Certainty}
		switch r.Kind {
		case signature.KindURLText:
			rv.Target = r.Path
			rv.Pattern = r.Text
		case signature.KindURLMD5:
			rv.Target = r.Path
			rv.Pattern = r.MD5
		case signature.KindHeaderRegex:
			rv.Target = r.Field
		case signature.KindCookie:
			rv.Target = r.Cookie
		}
		if r.Regex != nil {
			rv.Pattern = r.Regex.String()
		}
		v.Rules = append(v.Rules, rv)
	}

	for _, p := range sig.Passive {
		rv := ruleView{Kind: "passive", Label: p.Label, Target: p.Field, Pattern: p.Pattern.String(), Certainty: p.Certainty}
		if p.Refine != nil {
			rv.Pattern += " | " + p.Refine.String()
		}
		v.Rules = append(v.Rules, rv)
	}
	return v
}

// patternWidth bounds the pattern column of signatures show.
const patternWidth = 60

func newSignaturesShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a signature and its rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registryFor(cmd, configFrom(cmd).Signatures)
			if err != nil {
				return err
			}
			sig, err := reg.Get(args[0])
			if err != nil {
				return err
			}

			view := viewOf(sig)
			f := Formatter(cmd)
			if f.Mode() == format.ModeJSON {
				return f.PrintJSON(view)
			}

			fields := [][]string{
				{"Name", view.Name},
				{"Version", view.Version},
				{"Author", view.Author},
				{"Website", view.Website},
				{"Tags", strings.Join(view.Tags, ", ")},
				{"Origin", view.Origin},
			}
			if view.Description != "" {
				fields = append(fields, []string{"Description", view.Description})
			}
			if err := f.PrintTable([]string{"Field", "Value"}, fields); err != nil {
				return err
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout()); err != nil {
				return err
			}

			rows := make([][]string, 0, len(view.Rules))
			for _, r := range view.Rules {
				rows = append(rows, []string{r.Kind, r.Label, r.Target, stringutil.Ellipsis(r.Pattern, patternWidth), strconv.Itoa(r.Certainty)})
			}
			return f.PrintTable([]string{"Kind", "Label", "Target", "Pattern", "Certainty"}, rows)
		},
	}
}

func newSignaturesValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate <path...>",
		Short: "Validate signature files or directories",
		Example: `  webscope signatures validate ./signatures
  webscope signatures validate mobilityguard.yaml --watch`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := Formatter(cmd)
			verr := validatePaths(f, args)
			if !watch {
				return verr
			}
			if verr != nil && !Reported(verr) {
				return verr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchPaths(ctx, f, args)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-validate whenever a signature file changes")
	return cmd
}

// validatePaths loads every path leniently so all problems are reported in
// one pass.
func validatePaths(f format.Formatter, paths []string) error {
	var sources []signature.Source
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		var found []signature.Source
		if info.IsDir() {
			found, err = signature.ReadDir(p)
		} else {
			found, err = signature.ReadFile(p)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		sources = append(sources, found...)
	}

	reg, err := signature.Load(sources)
	if err != nil {
		return err
	}

	issues := reg.Issues()
	if len(issues) == 0 {
		return f.PrintSummary(fmt.Sprintf("✓ %d signatures valid", reg.Len()))
	}

	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, []string{issue.Error()})
	}
	if err := f.PrintTable([]string{"Issue"}, rows); err != nil {
		return err
	}
	return &exitError{
		code: exitInvalid,
		err:  fmt.Errorf("%d of %d signature sources invalid", len(issues), len(sources)),
	}
}

func watchPaths(ctx context.Context, f format.Formatter, paths []string) error {
	dirs := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		dir := p
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			dir = filepath.Dir(p)
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	w, err := signature.NewWatcher(dirs, func() {
		if err := validatePaths(f, paths); err != nil && !Reported(err) {
			_ = f.PrintError(err, nil)
		}
	}, log.Logger)
	if err != nil {
		return err
	}

	_ = f.PrintSummary("watching for changes, press Ctrl+C to stop")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
