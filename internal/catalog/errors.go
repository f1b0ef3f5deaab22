package catalog

import "errors"

var (
	// ErrInvalidPattern indicates a rule regex failed to compile.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrUnsupportedVersion indicates a pattern file version this build cannot read.
	ErrUnsupportedVersion = errors.New("unsupported pattern file version")

	// ErrInvalidFile indicates a pattern file that is not valid JSON or misses required fields.
	ErrInvalidFile = errors.New("invalid pattern file")
)
