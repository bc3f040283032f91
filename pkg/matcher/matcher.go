// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package matcher evaluates one signature match rule against a response.
package matcher

import (
	"context"
	"crypto/md5" //nolint:gosec // digests identify static assets, not secrets
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vulntor/webscope/pkg/finding"
	"github.com/vulntor/webscope/pkg/response"
	"github.com/vulntor/webscope/pkg/signature"
)

// ErrUnknownKind is wrapped by RuleEvaluationError for rules whose kind has no
// evaluator.
var ErrUnknownKind = errors.New("unknown rule kind")

// Target is the part of a response a rule can look at.
type Target interface {
	Meta(field string) (string, bool)
	Cookies() []*http.Cookie
	Page(ctx context.Context, path string) (*response.Page, error)
}

// RuleEvaluationError reports a rule that could not be evaluated. Fetch
// failures are never reported this way.
type RuleEvaluationError struct {
	Signature string
	Rule      int
	Kind      signature.RuleKind
	Err       error
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("signature %s: matches[%d] (%s): %v", e.Signature, e.Rule, e.Kind, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error {
	return e.Err
}

// Evaluate runs rule against target and returns the findings it produces. index
// is the rule's position in the signature and ends up in Finding.Source.
func Evaluate(ctx context.Context, sigName string, index int, rule *signature.Rule, target Target) ([]finding.Finding, error) {
	if rule == nil {
		return nil, &RuleEvaluationError{Signature: sigName, Rule: index, Err: errors.New("rule is nil")}
	}

	e := evaluation{sig: sigName, index: index, rule: rule}

	var (
		out []finding.Finding
		err error
	)
	switch rule.Kind {
	case signature.KindURLText:
		out, err = e.urlText(ctx, target)
	case signature.KindURLMD5:
		out, err = e.urlMD5(ctx, target)
	case signature.KindHeaderRegex:
		out, err = e.headerRegex(target)
	case signature.KindCookie:
		out, err = e.cookie(target)
	default:
		err = ErrUnknownKind
	}
	if err != nil {
		return nil, &RuleEvaluationError{Signature: sigName, Rule: index, Kind: rule.Kind, Err: err}
	}

	log.Debug().
		Str("component", "matcher").
		Str("signature", sigName).
		Int("rule", index).
		Str("kind", string(rule.Kind)).
		Int("findings", len(out)).
		Msg("rule evaluated")
	return out, nil
}

type evaluation struct {
	sig   string
	index int
	rule  *signature.Rule
}

func (e evaluation) source() string {
	return fmt.Sprintf("match[%d]:%s", e.index, e.rule.Kind)
}

func (e evaluation) finding(kind finding.Kind, value string) finding.Finding {
	return finding.Finding{
		Signature: e.sig,
		Kind:      kind,
		Value:     value,
		Source:    e.source(),
		Certainty: e.rule.Certainty,
	}
}

func (e evaluation) named() []finding.Finding {
	return []finding.Finding{e.finding(finding.KindName, e.rule.Label)}
}

// page returns nil when the body cannot be retrieved; such rules simply fail.
func (e evaluation) page(ctx context.Context, target Target) *response.Page {
	page, err := target.Page(ctx, e.rule.Path)
	if err != nil {
		log.Debug().
			Str("component", "matcher").
			Str("signature", e.sig).
			Str("path", e.rule.Path).
			Err(err).
			Msg("page unavailable, rule not matched")
		return nil
	}
	return page
}

func (e evaluation) urlText(ctx context.Context, target Target) ([]finding.Finding, error) {
	page := e.page(ctx, target)
	if page == nil {
		return nil, nil
	}

	if e.rule.Regex == nil {
		if strings.Contains(string(page.Body), e.rule.Text) {
			return e.named(), nil
		}
		return nil, nil
	}

	ok, err := e.rule.Regex.MatchString(string(page.Body))
	if err != nil || !ok {
		return nil, err
	}
	return e.named(), nil
}

func (e evaluation) urlMD5(ctx context.Context, target Target) ([]finding.Finding, error) {
	page := e.page(ctx, target)
	if page == nil {
		return nil, nil
	}

	sum := md5.Sum(page.Body) //nolint:gosec
	if hex.EncodeToString(sum[:]) != e.rule.MD5 {
		return nil, nil
	}
	return e.named(), nil
}

func (e evaluation) headerRegex(target Target) ([]finding.Finding, error) {
	value, ok := target.Meta(e.rule.Field)
	if !ok {
		return nil, nil
	}

	groups, ok, err := e.rule.Regex.FindSubmatch(value)
	if err != nil || !ok {
		return nil, err
	}

	out := e.named()
	if len(groups) > 1 && groups[1] != "" && e.rule.Capture != "" {
		out = append(out, e.finding(e.rule.Capture, groups[1]))
	}
	return out, nil
}

func (e evaluation) cookie(target Target) ([]finding.Finding, error) {
	for _, c := range target.Cookies() {
		if !strings.EqualFold(c.Name, e.rule.Cookie) {
			continue
		}
		if e.rule.Regex == nil {
			return e.named(), nil
		}
		ok, err := e.rule.Regex.MatchString(c.Value)
		if err != nil {
			return nil, err
		}
		if ok {
			return e.named(), nil
		}
	}
	return nil, nil
}
