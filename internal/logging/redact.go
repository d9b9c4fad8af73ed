package logging

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/cigen/internal/config"
)

const redacted = "[REDACTED]"

// Secret logs a config.Secret as its length only.
func Secret(key string, s config.Secret) zap.Field {
	return zap.String(key, fmt.Sprintf("[REDACTED:%d]", len(s.Value())))
}

// redactingEncoder masks fields by key and string values by pattern before
// the wrapped encoder sees them.
type redactingEncoder struct {
	zapcore.Encoder
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

func newRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*redactingEncoder, error) {
	enc := &redactingEncoder{Encoder: base, keys: make(map[string]struct{})}
	if !cfg.Enabled {
		return enc, nil
	}
	for _, k := range cfg.Fields {
		enc.keys[strings.ToLower(k)] = struct{}{}
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		enc.patterns = append(enc.patterns, re)
	}
	return enc, nil
}

func (e *redactingEncoder) sensitive(key string) bool {
	_, ok := e.keys[strings.ToLower(key)]
	return ok
}

func (e *redactingEncoder) AddString(key, val string) {
	if e.sensitive(key) {
		val = redacted
	} else {
		for _, re := range e.patterns {
			val = re.ReplaceAllString(val, redacted)
		}
	}
	e.Encoder.AddString(key, val)
}

func (e *redactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.AddString(key, string(val))
}

func (e *redactingEncoder) AddBinary(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddBinary(key, val)
}

func (e *redactingEncoder) AddReflected(key string, val any) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *redactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *redactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *redactingEncoder) Clone() zapcore.Encoder {
	return &redactingEncoder{Encoder: e.Encoder.Clone(), keys: e.keys, patterns: e.patterns}
}

// EncodeEntry adds the entry's fields through the masking methods; the
// wrapped encoder would otherwise write them to its own clone unfiltered.
// The message is masked too since errors often embed remote URLs.
func (e *redactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	clone := e.Clone().(*redactingEncoder)
	for _, f := range fields {
		f.AddTo(clone)
	}
	for _, re := range e.patterns {
		ent.Message = re.ReplaceAllString(ent.Message, redacted)
	}
	return clone.Encoder.EncodeEntry(ent, nil)
}
