package matcher

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/webscope/pkg/finding"
	"github.com/vulntor/webscope/pkg/response"
	"github.com/vulntor/webscope/pkg/signature"
)

const cookiePage = `<html><body><font face="Arial, Helvetica, sans-serif" size="2">Cookies must be enabled</font></body></html>`

func newTarget(t *testing.T, header http.Header, pages map[string]string) *response.Response {
	t.Helper()
	if header == nil {
		header = http.Header{}
	}
	fetch := response.FetcherFunc(func(ctx context.Context, url string, _ time.Duration) (*response.Exchange, error) {
		for path, body := range pages {
			if url == "http://mg.example"+path {
				return &response.Exchange{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}, nil
			}
		}
		return &response.Exchange{URL: url, StatusCode: http.StatusNotFound}, nil
	})
	r, err := response.New(&response.Exchange{
		URL:        "http://mg.example/",
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       []byte("<html>home</html>"),
	}, response.WithFetcher(fetch))
	require.NoError(t, err)
	return r
}

func compileRule(t *testing.T, rd signature.RuleDefinition) *signature.Rule {
	t.Helper()
	sig, err := signature.Compile(signature.Definition{Name: "Test", Matches: []signature.RuleDefinition{rd}}, "test")
	require.NoError(t, err)
	return &sig.Rules[0]
}

func TestEvaluate_URLText(t *testing.T) {
	target := newTarget(t, nil, map[string]string{"/mg-local/cookie.html": cookiePage})

	tests := []struct {
		name string
		rule signature.RuleDefinition
		want int
	}{
		{
			name: "literal text present",
			rule: signature.RuleDefinition{Kind: "url_text", Name: "Cookies Required Page", URL: "/mg-local/cookie.html", Text: `size="2">Cookies must be enabled`},
			want: 1,
		},
		{
			name: "literal text absent",
			rule: signature.RuleDefinition{Kind: "url_text", URL: "/mg-local/cookie.html", Text: "MobilityGuard Login"},
			want: 0,
		},
		{
			name: "regex on seeded final page",
			rule: signature.RuleDefinition{Kind: "url_text", URL: "/", Regex: `<html>\w+</html>`},
			want: 1,
		},
		{
			name: "page not found",
			rule: signature.RuleDefinition{Kind: "url_text", URL: "/missing", Text: "anything"},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Evaluate(context.Background(), "MobilityGuard", 0, compileRule(t, tt.rule), target)
			require.NoError(t, err)
			require.Len(t, out, tt.want)
		})
	}
}

func TestEvaluate_URLTextFinding(t *testing.T) {
	target := newTarget(t, nil, map[string]string{"/mg-local/cookie.html": cookiePage})
	rule := compileRule(t, signature.RuleDefinition{
		Kind: "url_text", Name: "Cookies Required Page", URL: "/mg-local/cookie.html", Text: "Cookies must be enabled",
	})

	out, err := Evaluate(context.Background(), "MobilityGuard", 2, rule, target)
	require.NoError(t, err)
	require.Equal(t, []finding.Finding{{
		Signature: "MobilityGuard",
		Kind:      finding.KindName,
		Value:     "Cookies Required Page",
		Source:    "match[2]:url_text",
		Certainty: 100,
	}}, out)
}

func TestEvaluate_URLTextTimeout(t *testing.T) {
	fetch := response.FetcherFunc(func(ctx context.Context, _ string, _ time.Duration) (*response.Exchange, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	target, err := response.New(&response.Exchange{URL: "http://mg.example/", StatusCode: http.StatusOK},
		response.WithFetcher(fetch), response.WithTimeout(10*time.Millisecond))
	require.NoError(t, err)

	rule := compileRule(t, signature.RuleDefinition{Kind: "url_text", URL: "/slow", Text: "x"})
	out, err := Evaluate(context.Background(), "Slow", 0, rule, target)
	require.NoError(t, err, "fetch failures are not evaluation errors")
	require.Empty(t, out)
}

func TestEvaluate_URLMD5(t *testing.T) {
	favicon := "\x00\x00\x01\x00favicon-bytes"
	sum := md5.Sum([]byte(favicon)) //nolint:gosec
	digest := hex.EncodeToString(sum[:])

	target := newTarget(t, nil, map[string]string{"/favicon.ico": favicon})

	out, err := Evaluate(context.Background(), "Icon", 0, compileRule(t, signature.RuleDefinition{
		Kind: "url_md5", URL: "favicon.ico", MD5: digest,
	}), target)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "md5 /favicon.ico", out[0].Value)

	out, err = Evaluate(context.Background(), "Icon", 0, compileRule(t, signature.RuleDefinition{
		Kind: "url_md5", URL: "/favicon.ico", MD5: "d41d8cd98f00b204e9800998ecf8427e",
	}), target)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestEvaluate_HeaderRegex(t *testing.T) {
	h := http.Header{}
	h.Set("Server", "MobilityGuard v3.1")
	h.Set("X-Powered-By", "PHP")
	target := newTarget(t, h, nil)

	tests := []struct {
		name string
		rule signature.RuleDefinition
		want []finding.Finding
	}{
		{
			name: "name and version",
			rule: signature.RuleDefinition{Kind: "header_regex", Field: "Server", Regex: `MobilityGuard v([\d.]+)`},
			want: []finding.Finding{
				{Signature: "MobilityGuard", Kind: finding.KindName, Value: "server header", Source: "match[0]:header_regex", Certainty: 100},
				{Signature: "MobilityGuard", Kind: finding.KindVersion, Value: "3.1", Source: "match[0]:header_regex", Certainty: 100},
			},
		},
		{
			name: "custom capture kind",
			rule: signature.RuleDefinition{Kind: "header_regex", Field: "server", Regex: `^(\w+)`, Capture: "string", Certainty: 50},
			want: []finding.Finding{
				{Signature: "MobilityGuard", Kind: finding.KindName, Value: "server header", Source: "match[0]:header_regex", Certainty: 50},
				{Signature: "MobilityGuard", Kind: finding.KindString, Value: "MobilityGuard", Source: "match[0]:header_regex", Certainty: 50},
			},
		},
		{
			name: "no group yields name only",
			rule: signature.RuleDefinition{Kind: "header_regex", Field: "server", Regex: `MobilityGuard`},
			want: []finding.Finding{
				{Signature: "MobilityGuard", Kind: finding.KindName, Value: "server header", Source: "match[0]:header_regex", Certainty: 100},
			},
		},
		{
			name: "empty group yields name only",
			rule: signature.RuleDefinition{Kind: "header_regex", Field: "server", Regex: `MobilityGuard(x*)`},
			want: []finding.Finding{
				{Signature: "MobilityGuard", Kind: finding.KindName, Value: "server header", Source: "match[0]:header_regex", Certainty: 100},
			},
		},
		{
			name: "anchored rejects partial value",
			rule: signature.RuleDefinition{Kind: "header_regex", Field: "server", Regex: `MobilityGuard`, Anchored: true},
		},
		{
			name: "absent field",
			rule: signature.RuleDefinition{Kind: "header_regex", Field: "x-generator", Regex: `.*`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Evaluate(context.Background(), "MobilityGuard", 0, compileRule(t, tt.rule), target)
			require.NoError(t, err)
			require.Equal(t, tt.want, out)
		})
	}
}

func TestEvaluate_Cookie(t *testing.T) {
	h := http.Header{}
	h.Add("Set-Cookie", "MGSESSION=abc123; Path=/; HttpOnly")
	target := newTarget(t, h, nil)

	tests := []struct {
		name string
		rule signature.RuleDefinition
		want int
	}{
		{name: "present", rule: signature.RuleDefinition{Kind: "cookie", Cookie: "MGSESSION"}, want: 1},
		{name: "case-insensitive name", rule: signature.RuleDefinition{Kind: "cookie", Cookie: "mgsession"}, want: 1},
		{name: "value matches", rule: signature.RuleDefinition{Kind: "cookie", Cookie: "MGSESSION", Regex: `^[a-z]+\d+$`}, want: 1},
		{name: "value does not match", rule: signature.RuleDefinition{Kind: "cookie", Cookie: "MGSESSION", Regex: `^\d+$`}, want: 0},
		{name: "absent", rule: signature.RuleDefinition{Kind: "cookie", Cookie: "PHPSESSID"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Evaluate(context.Background(), "MobilityGuard", 0, compileRule(t, tt.rule), target)
			require.NoError(t, err)
			require.Len(t, out, tt.want)
		})
	}
}

func TestEvaluate_UnknownKind(t *testing.T) {
	target := newTarget(t, nil, nil)

	_, err := Evaluate(context.Background(), "Broken", 3, &signature.Rule{Kind: "banner"}, target)
	require.ErrorIs(t, err, ErrUnknownKind)

	var re *RuleEvaluationError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "Broken", re.Signature)
	require.Equal(t, 3, re.Rule)

	_, err = Evaluate(context.Background(), "Broken", 0, nil, target)
	require.True(t, errors.As(err, &re))
}

func TestEvaluate_Deterministic(t *testing.T) {
	h := http.Header{}
	h.Set("Server", "MobilityGuard v3.1")
	target := newTarget(t, h, map[string]string{"/mg-local/cookie.html": cookiePage})
	rule := compileRule(t, signature.RuleDefinition{Kind: "header_regex", Field: "server", Regex: `v(\S+)`})

	first, err := Evaluate(context.Background(), "MobilityGuard", 0, rule, target)
	require.NoError(t, err)
	second, err := Evaluate(context.Background(), "MobilityGuard", 0, rule, target)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
