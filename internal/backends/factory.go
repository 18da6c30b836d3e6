// Package backends selects the engine backend named by configuration.
package backends

import (
	"errors"
	"fmt"

	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr/gosseract"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr/tesseract"
	"github.com/Caia-Tech/caia-ocr/pkg/pipeline"
	"github.com/rs/zerolog"
)

// constructors are swapped in tests.
var (
	newTesseract = func() (ocr.Backend, error) {
		b, err := tesseract.New()
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	newGosseract = func() (ocr.Backend, error) {
		b, err := gosseract.New()
		if err != nil {
			return nil, err
		}
		return b, nil
	}
)

// New returns the backend named by cfg.Backend. "auto" prefers the native
// binding, then gosseract. When neither is compiled in, the stub is used only
// if cfg.FallbackToStub is set.
func New(cfg *pipeline.EngineConfig, logger zerolog.Logger) (ocr.Backend, error) {
	logger = logger.With().Str("component", "backends").Logger()

	switch cfg.Backend {
	case pipeline.BackendStub:
		logger.Warn().Msg("Stub backend forced by configuration")
		return &ocr.StubBackend{Datapath: cfg.DataPath}, nil
	case pipeline.BackendTesseract:
		return withFallback(cfg, logger, pipeline.BackendTesseract, newTesseract)
	case pipeline.BackendGosseract:
		return withFallback(cfg, logger, pipeline.BackendGosseract, newGosseract)
	case pipeline.BackendAuto, "":
		b, err := newTesseract()
		if err == nil {
			logger.Info().Str("backend", b.Name()).Str("version", b.Version()).Msg("Native backend ready")
			return b, nil
		}
		logger.Debug().Err(err).Msg("Native backend unavailable; trying gosseract")
		return withFallback(cfg, logger, pipeline.BackendGosseract, newGosseract)
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Backend)
	}
}

func withFallback(cfg *pipeline.EngineConfig, logger zerolog.Logger, name string, ctor func() (ocr.Backend, error)) (ocr.Backend, error) {
	b, err := ctor()
	if err == nil {
		logger.Info().Str("backend", b.Name()).Str("version", b.Version()).Msg("Backend ready")
		return b, nil
	}
	if cfg.FallbackToStub && errors.Is(err, ocr.ErrBackendUnavailable) {
		logger.Warn().Err(err).Str("backend", name).Msg("Backend unavailable; using stub backend")
		return &ocr.StubBackend{Datapath: cfg.DataPath}, nil
	}
	return nil, fmt.Errorf("%s backend: %w", name, err)
}
