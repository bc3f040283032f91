package signature

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/webscope/pkg/finding"
)

const bundleYAML = `
signatures:
  - name: One
  - name: Two
    passive:
      - field: server
        pattern: ^Two
`

func TestSplitBundle_YAML(t *testing.T) {
	sources := SplitBundle("feed.yaml", FormatYAML, []byte(bundleYAML))
	require.Len(t, sources, 2)
	require.Equal(t, "feed.yaml#0", sources[0].Origin)
	require.Equal(t, "feed.yaml#1", sources[1].Origin)

	r, err := Load(sources, WithStrict())
	require.NoError(t, err)
	require.Equal(t, []string{"One", "Two"}, r.Names())
}

func TestSplitBundle_JSON(t *testing.T) {
	data := []byte(`{"signatures":[{"name":"One"},{"name":"Two"}]}`)
	sources := SplitBundle("feed.json", FormatJSON, data)
	require.Len(t, sources, 2)

	r, err := Load(sources, WithStrict())
	require.NoError(t, err)
	require.Equal(t, []string{"One", "Two"}, r.Names())
}

func TestSplitBundle_SingleDocument(t *testing.T) {
	sources := SplitBundle("one.yaml", FormatYAML, []byte("name: One\n"))
	require.Len(t, sources, 1)
	require.Equal(t, "one.yaml", sources[0].Origin)

	sources = SplitBundle("bad.yaml", FormatYAML, []byte("name: [\n"))
	require.Len(t, sources, 1, "unparsable data is passed through for Load to report")
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("name: B\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"name":"A"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "c.yml"), []byte("name: C\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# not a signature"), 0o644))

	sources, err := ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, sources, 3)

	r, err := Load(sources, WithStrict())
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, r.Names(), "lexical walk order")
}

func TestReadDir_Missing(t *testing.T) {
	_, err := ReadDir(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestReadFile_UnsupportedExtension(t *testing.T) {
	_, err := ReadFile("signature.txt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported file extension")
}

func TestBuiltin(t *testing.T) {
	sources, err := Builtin()
	require.NoError(t, err)

	r, err := Load(sources, WithStrict())
	require.NoError(t, err)

	mg, err := r.Get("MobilityGuard")
	require.NoError(t, err)
	require.Equal(t, "Brendan Coles <bcoles@gmail.com>", mg.Metadata.Author)
	require.Equal(t, "0.1", mg.Metadata.Version)
	require.Contains(t, mg.Metadata.Examples, "80.254.244.219")

	require.Len(t, mg.Rules, 1)
	require.Equal(t, KindURLText, mg.Rules[0].Kind)
	require.Equal(t, "/mg-local/cookie.html", mg.Rules[0].Path)

	require.Len(t, mg.Passive, 1)
	require.Equal(t, "server", mg.Passive[0].Field)
	require.Equal(t, `^MobilityGuard v([^\s]+)$`, mg.Passive[0].Refine.String())
	require.Equal(t, []Capture{{Group: 1, Kind: finding.KindVersion}}, mg.Passive[0].Captures)

	apache, err := r.Get("Apache")
	require.NoError(t, err)
	require.Equal(t, []Capture{
		{Group: 1, Kind: finding.KindVersion},
		{Group: 2, Kind: finding.KindOS},
	}, apache.Passive[0].Captures)
}
