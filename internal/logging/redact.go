package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/commitguard/internal/entropy"
)

const maxRedactionPatternLen = 200

// Replacement markers.
const (
	redactedKey     = "[REDACTED]"
	redactedPattern = "[REDACTED:pattern]"
	redactedEntropy = "[REDACTED:entropy]"
)

// RedactedString logs only the length of val.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// RedactingEncoder masks sensitive keys, credential-shaped values and
// quoted high-entropy literals before they reach any sink.
type RedactingEncoder struct {
	zapcore.Encoder
	keys     map[string]bool
	patterns []*regexp.Regexp
	entropy  bool
}

// NewRedactingEncoder wraps base. A disabled config passes everything through.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	enc := &RedactingEncoder{Encoder: base}
	if !cfg.Enabled {
		return enc, nil
	}

	enc.keys = make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		enc.keys[strings.ToLower(f)] = true
	}
	for _, p := range cfg.Patterns {
		re, err := compileRedaction(p)
		if err != nil {
			return nil, err
		}
		enc.patterns = append(enc.patterns, re)
	}
	enc.entropy = cfg.Entropy
	return enc, nil
}

func compileRedaction(p string) (*regexp.Regexp, error) {
	if len(p) > maxRedactionPatternLen {
		return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxRedactionPatternLen, p)
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
	}
	return re, nil
}

func (e *RedactingEncoder) active() bool {
	return len(e.keys) > 0 || len(e.patterns) > 0 || e.entropy
}

func (e *RedactingEncoder) sensitiveKey(key string) bool {
	return e.keys[strings.ToLower(key)]
}

// mask returns the replacement for val, or val itself when nothing matched.
func (e *RedactingEncoder) mask(val string) string {
	for _, re := range e.patterns {
		if re.MatchString(val) {
			return redactedPattern
		}
	}
	if e.entropy && len(entropy.Scan(val)) > 0 {
		return redactedEntropy
	}
	return val
}

// AddString implements zapcore.ObjectEncoder.
func (e *RedactingEncoder) AddString(key, val string) {
	if e.sensitiveKey(key) {
		val = redactedKey
	} else {
		val = e.mask(val)
	}
	e.Encoder.AddString(key, val)
}

// AddByteString implements zapcore.ObjectEncoder.
func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitiveKey(key) {
		val = []byte(redactedKey)
	}
	e.Encoder.AddByteString(key, val)
}

// AddReflected implements zapcore.ObjectEncoder.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, redactedKey)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// EncodeEntry handles per-entry fields, which bypass the Add* methods.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if !e.active() {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	for _, re := range e.patterns {
		ent.Message = re.ReplaceAllString(ent.Message, redactedKey)
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch {
		case e.sensitiveKey(f.Key):
			out[i] = zap.String(f.Key, redactedKey)
		case f.Type == zapcore.StringType:
			out[i] = zap.String(f.Key, e.mask(f.String))
		default:
			out[i] = f
		}
	}
	return e.Encoder.EncodeEntry(ent, out)
}

// Clone implements zapcore.Encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:  e.Encoder.Clone(),
		keys:     e.keys,
		patterns: e.patterns,
		entropy:  e.entropy,
	}
}
