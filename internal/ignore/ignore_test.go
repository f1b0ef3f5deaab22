package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected string
	}{
		{"empty line", "", ""},
		{"whitespace only", "   ", ""},
		{"comment", "# this is a comment", ""},
		{"plain", "fixtures/keys.js", "fixtures/keys.js"},
		{"trimmed", "  legacy/  \r", "legacy/"},
		{"glob", "*.snap", "*.snap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLine(tt.line))
		})
	}
}

func TestMatcher_Builtin(t *testing.T) {
	m := New()

	for _, p := range []string{
		".env.example",
		"config/.env.sample",
		"node_modules/pkg/index.js",
		"web/dist/app.js",
		"vendor/github.com/x/y.go",
		"examples/demo.md",
		"internal/scanner/testdata/keys.txt",
		"scripts/pre-commit.js",
		".ai/security-policy.json",
	} {
		assert.True(t, m.Ignored(p), p)
	}

	for _, p := range []string{
		".env",
		"src/config.js",
		"README.md",
		"test/fixtures.js",
	} {
		assert.False(t, m.Ignored(p), p)
	}
}

func TestRule_Glob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.snap", "ui/__snapshots__/a.snap", true},
		{"*.snap", "a.snap.js", false},
		{"fixtures/*.json", "fixtures/keys.json", true},
		{"fixtures/*.json", "fixtures/deep/keys.json", false},
		{"fixtures/**.json", "fixtures/deep/keys.json", true},
		{"/docs/*.md", "docs/guide.md", true},
		{"legacy/", "src/legacy/old.js", true},
		{"legacy/", "legacyfile.js", false},
		{"secret?.txt", "secret1.txt", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			r, err := NewRule(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Match(tt.path))
		})
	}
}

func TestNewRule_BadGlobStillMatchesSubstring(t *testing.T) {
	r, _ := NewRule("weird[")
	assert.Equal(t, "weird[", r.Pattern)

	m := New("weird[")
	assert.True(t, m.Ignored("a/weird[/b.js"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := "# generated snapshots\n*.snap\n\nlegacy/\nlegacy/\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".securityignore"), []byte(content), 0o644))

	m, err := Load(dir, ".securityignore", "extra/")
	require.NoError(t, err)

	assert.Len(t, m.Rules(), len(Builtin)+3)
	assert.True(t, m.Ignored("a/b.snap"))
	assert.True(t, m.Ignored("legacy/x.js"))
	assert.True(t, m.Ignored("extra/x.js"))
	assert.False(t, m.Ignored("src/x.js"))
}

func TestLoad_MissingFile(t *testing.T) {
	m, err := Load(t.TempDir(), ".securityignore")
	require.NoError(t, err)
	assert.Len(t, m.Rules(), len(Builtin))
}

func TestReadLines_Missing(t *testing.T) {
	_, err := ReadLines(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, os.IsNotExist(err))
}
