package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/webscope/cmd/webscope/internal/format"
	"github.com/vulntor/webscope/pkg/appctx"
	"github.com/vulntor/webscope/pkg/detect"
	"github.com/vulntor/webscope/pkg/feed"
	"github.com/vulntor/webscope/pkg/finding"
	"github.com/vulntor/webscope/pkg/response"
	"github.com/vulntor/webscope/pkg/signature"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("WEBSCOPE_LOG_LEVEL", "error")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := NewCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	// Keep the user's cache out of the registry.
	cmd.SetArgs(append([]string{"--no-color", "--signatures.cache_dir", t.TempDir()}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func mobilityGuard(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "MobilityGuard v3.1")
		if r.URL.Path == "/mg-local/cookie.html" {
			_, _ = w.Write([]byte(`<font size=2>Click here for more information about MobilityGuard.</font></a></center><br>`))
			return
		}
		_, _ = w.Write([]byte("<html>login</html>"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScan_JSON(t *testing.T) {
	srv := mobilityGuard(t)

	stdout, _, err := run(t, "scan", srv.URL, "-o", "json", "--scan.fetch_timeout", "2s")
	require.NoError(t, err)

	var reports []format.ScanReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &reports))
	require.Len(t, reports, 1)
	require.Empty(t, reports[0].Error)

	res := reports[0].Result
	require.NotNil(t, res)
	require.Equal(t, http.StatusOK, res.StatusCode)

	mg, ok := res.Get("MobilityGuard")
	require.True(t, ok)
	assert.Equal(t, []string{"3.1"}, mg.Values(finding.KindVersion))
	assert.Len(t, mg.Values(finding.KindName), 2)

	_, ok = res.Get("Apache")
	assert.False(t, ok)
}

func TestScan_TableWithSignatureFilter(t *testing.T) {
	srv := mobilityGuard(t)

	stdout, _, err := run(t, "scan", srv.URL, "--signature", "MobilityGuard", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, stdout, srv.URL+" → "+srv.URL+"/ [200]")
	assert.Contains(t, stdout, "MobilityGuard  100")
	assert.NotContains(t, stdout, "nginx")
}

func TestScan_UsesRegistryFromContext(t *testing.T) {
	t.Setenv("WEBSCOPE_LOG_LEVEL", "error")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	sig, err := signature.Compile(signature.Definition{
		Name:    "Citrix Gateway",
		Matches: []signature.RuleDefinition{{Kind: "cookie", Cookie: "NSC_AAAC"}},
	}, "test")
	require.NoError(t, err)
	reg, err := signature.New(sig)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "NSC_AAAC", Value: "xyz"})
	}))
	defer srv.Close()

	cmd := NewCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"scan", srv.URL, "-o", "json"})
	require.NoError(t, cmd.ExecuteContext(appctx.WithRegistry(context.Background(), reg)))

	var reports []format.ScanReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &reports))
	require.Len(t, reports, 1)
	require.Len(t, reports[0].Result.Detections, 1)
	assert.Equal(t, "Citrix Gateway", reports[0].Result.Detections[0].Signature)
}

func TestScan_Failures(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name     string
		args     []string
		code     int
		reported bool
		is       error
	}{
		{name: "no targets", args: []string{"scan"}, code: 2, is: detect.ErrNoTargets},
		{name: "unknown signature", args: []string{"scan", "example.test", "--signature", "Nope"}, code: 4, is: signature.ErrNotFound},
		{name: "unreachable", args: []string{"scan", closedURL, "--scan.fetch_timeout", "2s"}, code: 7, reported: true, is: detect.ErrTargetUnreachable},
		{name: "invalid target", args: []string{"scan", "ftp://example.test"}, code: 2, reported: true, is: detect.ErrInvalidTarget},
		{name: "invalid config", args: []string{"scan", "example.test", "--scan.workers", "0"}, code: 2, is: ErrInvalidInput},
		{name: "invalid output", args: []string{"scan", "example.test", "-o", "xml"}, code: 2, is: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			require.Error(t, err)
			require.ErrorIs(t, err, tt.is)
			assert.Equal(t, tt.code, ExitCode(err))
			assert.Equal(t, tt.reported, Reported(err))
		})
	}
}

func TestSignaturesList(t *testing.T) {
	stdout, _, err := run(t, "signatures", "list", "-o", "json")
	require.NoError(t, err)

	var items []map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &items))

	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item["name"])
	}
	assert.ElementsMatch(t, []string{"Apache", "MobilityGuard", "nginx"}, names)

	stdout, _, err = run(t, "signatures", "list", "--tag", "vpn")
	require.NoError(t, err)
	assert.Contains(t, stdout, "MobilityGuard")
	assert.NotContains(t, stdout, "Apache")
	assert.Contains(t, stdout, "1 signatures")
}

func TestSignaturesShow(t *testing.T) {
	stdout, _, err := run(t, "signatures", "show", "MobilityGuard", "-o", "json")
	require.NoError(t, err)

	var view signatureView
	require.NoError(t, json.Unmarshal([]byte(stdout), &view))
	assert.Equal(t, "MobilityGuard", view.Name)
	require.Len(t, view.Rules, 2)
	assert.Equal(t, "url_text", view.Rules[0].Kind)
	assert.Equal(t, "/mg-local/cookie.html", view.Rules[0].Target)
	assert.Equal(t, "passive", view.Rules[1].Kind)
	assert.Equal(t, "server", view.Rules[1].Target)

	_, _, err = run(t, "signatures", "show", "Missing")
	require.ErrorIs(t, err, signature.ErrNotFound)
	assert.Equal(t, 4, ExitCode(err))
}

func TestSignatures_DirShadowsBuiltin(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "mobilityguard.yaml")
	require.NoError(t, os.WriteFile(override, []byte("name: MobilityGuard\nversion: \"9.9\"\npassive:\n  - field: server\n    pattern: ^MobilityGuard\n"), 0o644))

	stdout, _, err := run(t, "signatures", "show", "MobilityGuard", "-o", "json", "--signatures.dirs", dir)
	require.NoError(t, err)

	var view signatureView
	require.NoError(t, json.Unmarshal([]byte(stdout), &view))
	assert.Equal(t, "9.9", view.Version)
	assert.Equal(t, override, view.Origin)
	require.Len(t, view.Rules, 1)

	stdout, _, err = run(t, "signatures", "list", "-o", "json", "--signatures.dirs", dir)
	require.NoError(t, err)

	var items []map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &items))
	assert.Len(t, items, 3)
}

func TestStopOnSignal(t *testing.T) {
	fetch := response.FetcherFunc(func(ctx context.Context, _ string, _ time.Duration) (*response.Exchange, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	sources, err := signature.Builtin()
	require.NoError(t, err)
	reg, err := signature.Load(sources)
	require.NoError(t, err)

	batch := detect.NewScanner(reg, fetch).Start(context.Background(), []string{"a.example", "b.example"})
	sigs := make(chan os.Signal, 1)
	interrupted := stopOnSignal(batch, sigs)
	sigs <- os.Interrupt

	for _, o := range batch.Wait() {
		require.ErrorIs(t, o.Err, context.Canceled, o.Target)
	}
	require.True(t, interrupted())
}

func TestStopOnSignal_Completed(t *testing.T) {
	sources, err := signature.Builtin()
	require.NoError(t, err)
	reg, err := signature.Load(sources)
	require.NoError(t, err)

	notFound := response.FetcherFunc(func(_ context.Context, url string, _ time.Duration) (*response.Exchange, error) {
		return &response.Exchange{URL: url, StatusCode: http.StatusNotFound}, nil
	})
	batch := detect.NewScanner(reg, notFound).Start(context.Background(), []string{"a.example"})
	interrupted := stopOnSignal(batch, make(chan os.Signal))

	require.NoError(t, batch.Wait()[0].Err)
	require.False(t, interrupted())
}

func TestSignaturesValidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.yaml"), []byte("name: One\npassive:\n  - field: server\n    pattern: ^One\n"), 0o644))

	stdout, _, err := run(t, "signatures", "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ 1 signatures valid")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.yaml"), []byte("name: One\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"name": "Bad", "matches": [{"kind": "telnet"}]}`), 0o644))

	stdout, _, err = run(t, "signatures", "validate", dir)
	require.Error(t, err)
	assert.True(t, Reported(err))
	assert.Equal(t, 2, ExitCode(err))
	assert.Contains(t, stdout, "ISSUE")
	assert.Contains(t, stdout, "duplicate signature name")
	assert.Contains(t, stdout, "bad.json")

	_, _, err = run(t, "signatures", "validate", filepath.Join(dir, "absent"))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestFeedSync(t *testing.T) {
	bundle := filepath.Join(t.TempDir(), "bundle.yaml")
	require.NoError(t, os.WriteFile(bundle, []byte(`
signatures:
  - name: Citrix Gateway
    matches:
      - kind: cookie
        cookie: NSC_AAAC
`), 0o644))
	cache := t.TempDir()

	stdout, _, err := run(t, "feed", "sync", "--file", bundle, "--cache-dir", cache)
	require.NoError(t, err)
	assert.Contains(t, stdout, fmt.Sprintf("✓ Synced 1 signatures into %s", cache))

	sources, err := feed.CachedSources(cache)
	require.NoError(t, err)
	require.Len(t, sources, 1)

	stdout, _, err = run(t, "signatures", "list", "--signatures.builtin=false", "--signatures.cache_dir", cache)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Citrix Gateway")
	assert.NotContains(t, stdout, "MobilityGuard")
}

func TestFeedSync_FlagValidation(t *testing.T) {
	for _, args := range [][]string{
		{"feed", "sync"},
		{"feed", "sync", "--file", "a.yaml", "--url", "http://example.test/a.yaml"},
	} {
		_, _, err := run(t, args...)
		require.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, 2, ExitCode(err))
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("boom"), 1},
		{signature.ErrNotFound, 4},
		{&signature.LoadError{Origin: "x.yaml", Err: errors.New("bad yaml")}, 2},
		{&signature.DuplicateNameError{Name: "A"}, 2},
		{feed.ErrNotConfigured, 2},
		{fmt.Errorf("wrapped: %w", detect.ErrTargetUnreachable), 7},
		{&exitError{code: 7, err: errors.New("reported")}, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}
