// Package selector resolves the staged change-set into the files the
// scanners read, applying the ignore list and the size and binary ceilings.
package selector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitguard/internal/config"
	"github.com/fyrsmithlabs/commitguard/internal/ignore"
	"github.com/fyrsmithlabs/commitguard/internal/logging"
	"github.com/fyrsmithlabs/commitguard/pkg/git"
)

// sniffLen is how much of a file is inspected for binary content.
const sniffLen = 8000

// Skip explains why a selected file is not scanned for content.
type Skip string

const (
	SkipNone       Skip = ""
	SkipEmpty      Skip = "empty"
	SkipOversize   Skip = "oversize"
	SkipBinary     Skip = "binary"
	SkipUnreadable Skip = "unreadable"
)

// Target is a staged file that survived the ignore list.
type Target struct {
	Path   string
	Size   int64
	Binary bool
	Skip   Skip
}

// Scannable reports whether the target's content is scanned.
func (t Target) Scannable() bool { return t.Skip == SkipNone }

// Source lists staged changes. *git.Repo satisfies it.
type Source interface {
	Root() string
	Staged() ([]git.Change, error)
}

// Options configures selection.
type Options struct {
	MaxFileSize int64
	IgnoreFile  string
	ExtraIgnore []string
}

// OptionsFromConfig maps the scan section of the tool config.
func OptionsFromConfig(cfg config.ScanConfig) Options {
	return Options{
		MaxFileSize: cfg.MaxFileSize,
		IgnoreFile:  cfg.IgnoreFile,
		ExtraIgnore: cfg.ExtraIgnore,
	}
}

// Selection is the result of one Select call.
type Selection struct {
	Root string

	// Staged is every staged change, including deletions and ignored paths.
	Staged []git.Change

	// Files are the non-deleted, non-ignored staged paths, sorted.
	Files []Target

	// Ignored are the non-deleted paths exempted by the ignore list.
	Ignored []string
}

// Targets returns the files whose content is scanned.
func (s *Selection) Targets() []Target {
	out := make([]Target, 0, len(s.Files))
	for _, f := range s.Files {
		if f.Scannable() {
			out = append(out, f)
		}
	}
	return out
}

// StagedPaths returns every staged path, deletions included.
func (s *Selection) StagedPaths() []string {
	out := make([]string, len(s.Staged))
	for i, c := range s.Staged {
		out[i] = c.Path
	}
	return out
}

// Empty reports whether nothing is staged.
func (s *Selection) Empty() bool { return len(s.Staged) == 0 }

// Read returns the content of t.
func (s *Selection) Read(t Target) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(t.Path)))
}

// Selector computes a fresh Selection per call.
type Selector struct {
	source Source
	opts   Options
}

// New creates a Selector over source.
func New(source Source, opts Options) *Selector {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = config.DefaultMaxFileSize
	}
	return &Selector{source: source, opts: opts}
}

// Select lists the staged change-set and classifies each path.
func (s *Selector) Select(ctx context.Context) (*Selection, error) {
	span := trace.SpanFromContext(ctx)
	logger := logging.FromContext(ctx).Named("selector")

	changes, err := s.source.Staged()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("listing staged files: %w", err)
	}

	root := s.source.Root()
	sel := &Selection{Root: root, Staged: changes}
	if len(changes) == 0 {
		return sel, nil
	}

	matcher, err := ignore.Load(root, s.opts.IgnoreFile, s.opts.ExtraIgnore...)
	if err != nil {
		// An unreadable ignore file only loses the user's exemptions.
		logger.Warn(ctx, "ignore file unreadable", zap.Error(err))
		matcher = ignore.New(s.opts.ExtraIgnore...)
	}

	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.Deleted() {
			continue
		}
		if matcher.Ignored(c.Path) {
			sel.Ignored = append(sel.Ignored, c.Path)
			continue
		}
		t := s.probe(root, c.Path)
		if t.Skip != SkipNone {
			logger.Debug(ctx, "file not scanned",
				zap.String("path", t.Path),
				zap.String("reason", string(t.Skip)))
		}
		sel.Files = append(sel.Files, t)
	}

	span.SetAttributes(
		attribute.Int("staged", len(sel.Staged)),
		attribute.Int("files", len(sel.Files)),
		attribute.Int("ignored", len(sel.Ignored)),
	)
	return sel, nil
}

// probe stats and sniffs one file.
func (s *Selector) probe(root, rel string) Target {
	t := Target{Path: rel}

	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Skip = SkipUnreadable
		return t
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		t.Skip = SkipUnreadable
		return t
	}
	t.Size = info.Size()

	switch {
	case t.Size == 0:
		t.Skip = SkipEmpty
		return t
	case t.Size > s.opts.MaxFileSize:
		t.Skip = SkipOversize
		return t
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		t.Skip = SkipUnreadable
		return t
	}
	if IsBinary(head[:n], n == sniffLen) {
		t.Binary = true
		t.Skip = SkipBinary
	}
	return t
}

// IsBinary reports whether head contains a NUL byte or invalid UTF-8.
// When truncated, an incomplete rune at the end of head is tolerated.
func IsBinary(head []byte, truncated bool) bool {
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	if truncated {
		head = trimPartialRune(head)
	}
	return !utf8.Valid(head)
}

func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return b
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}
