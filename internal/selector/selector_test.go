package selector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/commitguard/pkg/git"
)

type fakeSource struct {
	root    string
	changes []git.Change
	err     error
}

func (f *fakeSource) Root() string                  { return f.root }
func (f *fakeSource) Staged() ([]git.Change, error) { return f.changes, f.err }

func write(t *testing.T, dir, rel string, content []byte) {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, content, 0o644))
}

func paths(ts []Target) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Path
	}
	return out
}

func TestSelect(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "src/app.js", []byte("const a = 1;\n"))
	write(t, dir, "src/empty.js", nil)
	write(t, dir, "assets/logo.png", []byte{0x89, 'P', 'N', 'G', 0x00, 0x01})
	write(t, dir, "big.txt", []byte(strings.Repeat("a", 2048)))
	write(t, dir, "node_modules/x/index.js", []byte("x"))
	write(t, dir, "legacy/old.js", []byte("old"))
	write(t, dir, ".securityignore", []byte("# exemptions\nlegacy/\n"))

	src := &fakeSource{root: dir, changes: []git.Change{
		{Path: "assets/logo.png", Status: git.Added},
		{Path: "big.txt", Status: git.Added},
		{Path: "legacy/old.js", Status: git.Modified},
		{Path: "node_modules/x/index.js", Status: git.Added},
		{Path: "removed.js", Status: git.Deleted},
		{Path: "src/app.js", Status: git.Modified},
		{Path: "src/empty.js", Status: git.Added},
		{Path: "src/vanished.js", Status: git.Added},
	}}

	sel, err := New(src, Options{MaxFileSize: 1024, IgnoreFile: ".securityignore"}).Select(context.Background())
	require.NoError(t, err)

	assert.False(t, sel.Empty())
	assert.Len(t, sel.StagedPaths(), 8)
	assert.Equal(t, []string{"legacy/old.js", "node_modules/x/index.js"}, sel.Ignored)
	assert.Equal(t, []string{"assets/logo.png", "big.txt", "src/app.js", "src/empty.js", "src/vanished.js"}, paths(sel.Files))
	assert.Equal(t, []string{"src/app.js"}, paths(sel.Targets()))

	skips := map[string]Skip{}
	for _, f := range sel.Files {
		skips[f.Path] = f.Skip
	}
	assert.Equal(t, SkipBinary, skips["assets/logo.png"])
	assert.Equal(t, SkipOversize, skips["big.txt"])
	assert.Equal(t, SkipEmpty, skips["src/empty.js"])
	assert.Equal(t, SkipUnreadable, skips["src/vanished.js"])

	content, err := sel.Read(sel.Targets()[0])
	require.NoError(t, err)
	assert.Equal(t, "const a = 1;\n", string(content))
}

func TestSelect_NothingStaged(t *testing.T) {
	sel, err := New(&fakeSource{root: t.TempDir()}, Options{}).Select(context.Background())
	require.NoError(t, err)
	assert.True(t, sel.Empty())
	assert.Empty(t, sel.Targets())
}

func TestSelect_SourceError(t *testing.T) {
	boom := errors.New("index locked")
	_, err := New(&fakeSource{err: boom}, Options{}).Select(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestSelect_Cancelled(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.js", []byte("a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{root: dir, changes: []git.Change{{Path: "a.js", Status: git.Added}}}
	_, err := New(src, Options{}).Select(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelect_DefaultCeiling(t *testing.T) {
	s := New(&fakeSource{}, Options{})
	assert.Equal(t, int64(1<<20), s.opts.MaxFileSize)
}

func TestIsBinary(t *testing.T) {
	tests := []struct {
		name      string
		head      []byte
		truncated bool
		want      bool
	}{
		{"text", []byte("hello\n"), false, false},
		{"utf8", []byte("привіт"), false, false},
		{"nul", []byte("a\x00b"), false, true},
		{"invalid utf8", []byte{0xff, 0xfe, 'a'}, false, true},
		{"cut rune tolerated when truncated", []byte("ab\xd0"), true, false},
		{"cut rune rejected when complete", []byte("ab\xd0"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBinary(tt.head, tt.truncated))
		})
	}
}
