package logging

import (
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// newCore tees the console sink and the OpenTelemetry bridge. w defaults to
// stderr. An OTEL output without a provider is skipped.
func newCore(cfg *Config, otelProvider log.LoggerProvider, w io.Writer) (zapcore.Core, error) {
	var cores []zapcore.Core

	if cfg.Output.Stderr {
		if w == nil {
			w = os.Stderr
		}
		enc, err := newRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore(cfg.serviceName(), otelzap.WithLoggerProvider(otelProvider)))
	}

	switch len(cores) {
	case 0:
		return nil, fmt.Errorf("no log output available: stderr disabled and no OTEL provider")
	case 1:
		return sample(cores[0], cfg.Sampling), nil
	default:
		return sample(zapcore.NewTee(cores...), cfg.Sampling), nil
	}
}

// sample splits core at Warn: Debug and Info pass through a sampler, Warn
// and above are written unconditionally.
func sample(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	quiet := zapcore.NewSamplerWithOptions(
		&levelRange{Core: core, below: zapcore.WarnLevel},
		cfg.Tick.Duration(),
		cfg.Initial,
		cfg.Thereafter,
	)
	loud := &levelRange{Core: core, from: zapcore.WarnLevel, checkFrom: true}
	return zapcore.NewTee(quiet, loud)
}

// levelRange restricts a core to [from, below). A zero bound is open.
type levelRange struct {
	zapcore.Core
	from      zapcore.Level
	checkFrom bool
	below     zapcore.Level
}

func (r *levelRange) Enabled(lvl zapcore.Level) bool {
	if r.checkFrom && lvl < r.from {
		return false
	}
	if r.below != 0 && lvl >= r.below {
		return false
	}
	return r.Core.Enabled(lvl)
}

func (r *levelRange) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !r.Enabled(e.Level) {
		return ce
	}
	return r.Core.Check(e, ce)
}

func (r *levelRange) With(fields []zapcore.Field) zapcore.Core {
	clone := *r
	clone.Core = r.Core.With(fields)
	return &clone
}
