// Package service exposes registered engine handles to the HTTP API, the
// temporal activities and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	events "github.com/Caia-Tech/caia-ocr/internal/pipeline"
	"github.com/Caia-Tech/caia-ocr/internal/metrics"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/Caia-Tech/caia-ocr/pkg/pipeline"
	"github.com/rs/zerolog"
)

// ErrEngineLimit is returned by CreateEngine when MaxEngines handles are live.
var ErrEngineLimit = errors.New("service: engine limit reached")

// EngineRequest describes an engine to create. Empty fields take the
// configured defaults; Options are applied after the default options.
type EngineRequest struct {
	DataPath      string       `json:"data_path"`
	Language      string       `json:"language"`
	ConfigFile    string       `json:"config_file"`
	Options       []ocr.Option `json:"options"`
	ResetAdaptive *bool        `json:"reset_adaptive,omitempty"`
}

// EngineDetails describes a registered engine.
type EngineDetails struct {
	ID       string    `json:"id"`
	Backend  string    `json:"backend"`
	Language string    `json:"language"`
	State    string    `json:"state"`
	Info     *ocr.Info `json:"info,omitempty"`
}

// Options configures a Service.
type Options struct {
	Engine  *pipeline.EngineConfig
	Metrics *metrics.Collector
	Events  *events.EventBus
	Logger  zerolog.Logger
}

// Service owns a backend and the registry of its engines.
type Service struct {
	backend  ocr.Backend
	registry *ocr.Registry
	metrics  *metrics.Collector
	events   *events.EventBus
	engine   *pipeline.EngineConfig
	logger   zerolog.Logger

	// pending counts creations that hold a slot but are not registered yet.
	mu      sync.Mutex
	pending int
}

// New creates a service over backend.
func New(backend ocr.Backend, opts Options) *Service {
	engine := opts.Engine
	if engine == nil {
		engine = pipeline.DefaultServiceConfig().Engine
	}
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewCollector(0, opts.Logger)
	}
	logger := opts.Logger.With().Str("component", "service").Logger()
	return &Service{
		backend:  backend,
		registry: ocr.NewRegistry(opts.Logger),
		metrics:  collector,
		events:   opts.Events,
		engine:   engine,
		logger:   logger,
	}
}

// Backend returns the backend engines are created with.
func (s *Service) Backend() ocr.Backend { return s.backend }

// Metrics returns the collector.
func (s *Service) Metrics() *metrics.Collector { return s.metrics }

// Version reports the engine version.
func (s *Service) Version() string { return ocr.EngineVersion(s.backend) }

func (s *Service) config(req EngineRequest) ocr.Config {
	cfg := s.engine.OCRConfig()
	if req.DataPath != "" {
		cfg.DataPath = req.DataPath
	}
	if req.Language != "" {
		cfg.Language = req.Language
	}
	if req.ConfigFile != "" {
		cfg.ConfigFile = req.ConfigFile
	}
	cfg.Options = append(cfg.Options, req.Options...)
	if req.ResetAdaptive != nil {
		cfg.ResetAdaptive = ocr.AdaptiveResetAlways
		if !*req.ResetAdaptive {
			cfg.ResetAdaptive = ocr.AdaptiveResetNever
		}
	}
	return cfg
}

// CreateEngine initializes and registers an engine and returns its id.
func (s *Service) CreateEngine(ctx context.Context, req EngineRequest) (string, error) {
	if err := s.reserve(); err != nil {
		return "", err
	}
	cfg := s.config(req)

	start := time.Now()
	h, err := ocr.New(s.backend, cfg)
	s.record(metrics.OpCreate, cfg.Language, "", start, err)
	if err != nil {
		s.unreserve()
		s.logger.Warn().Err(err).Str("language", cfg.Language).Msg("Engine creation failed")
		return "", err
	}

	id := s.register(h)
	s.metrics.SetLiveEngines(s.registry.Len())

	event := events.NewEngineEvent(events.EventEngineCreated, id)
	event.Backend = h.Backend()
	event.Language = h.Language()
	s.publish(event)

	s.logger.Info().Str("handle_id", id).Str("language", h.Language()).Msg("Engine created")
	return id, nil
}

// reserve takes a creation slot, counting live and in-flight engines against
// MaxEngines.
func (s *Service) reserve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine.MaxEngines > 0 && s.registry.Len()+s.pending >= s.engine.MaxEngines {
		return ErrEngineLimit
	}
	s.pending++
	return nil
}

func (s *Service) unreserve() {
	s.mu.Lock()
	s.pending--
	s.mu.Unlock()
}

// register adds h and gives back its slot in one step so h is never counted
// twice.
func (s *Service) register(h *ocr.Handle) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	return s.registry.Add(h)
}

// withHandle holds a lease on id for the duration of fn.
func (s *Service) withHandle(id string, fn func(h *ocr.Handle) error) error {
	lease, err := s.registry.Acquire(id)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(lease.Handle())
}

// SetVariable applies a variable to a registered engine.
func (s *Service) SetVariable(ctx context.Context, id, name, value string) error {
	return s.withHandle(id, func(h *ocr.Handle) error {
		start := time.Now()
		_, err := h.SetVariable(name, value)
		s.record(metrics.OpSetVariable, h.Language(), "", start, err)
		return err
	})
}

// EngineInfo describes a registered engine including its languages.
func (s *Service) EngineInfo(ctx context.Context, id string) (EngineDetails, error) {
	var details EngineDetails
	err := s.withHandle(id, func(h *ocr.Handle) error {
		start := time.Now()
		info, err := h.Info()
		s.record(metrics.OpInfo, h.Language(), "", start, err)
		if err != nil {
			return err
		}
		details = describe(h)
		details.Info = &info
		return nil
	})
	return details, err
}

// DumpVariables writes a registered engine's variables to path.
func (s *Service) DumpVariables(ctx context.Context, id, path string) (string, error) {
	var out string
	err := s.withHandle(id, func(h *ocr.Handle) error {
		start := time.Now()
		var err error
		out, err = h.DumpVariables(path)
		s.record(metrics.OpDump, h.Language(), "", start, err)
		return err
	})
	return out, err
}

// Recognize runs recognition on a registered engine. The configured
// recognize timeout bounds the wait for the engine.
func (s *Service) Recognize(ctx context.Context, id string, src ocr.ImageSource, format ocr.Format) (ocr.Result, error) {
	if s.engine.RecognizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.engine.RecognizeTimeout)
		defer cancel()
	}

	var res ocr.Result
	err := s.withHandle(id, func(h *ocr.Handle) error {
		start := time.Now()
		var err error
		res, err = h.Recognize(ctx, src, format)
		s.record(metrics.OpRecognize, h.Language(), format.String(), start, err)

		eventType := events.EventRecognitionCompleted
		if err != nil {
			eventType = events.EventRecognitionFailed
		}
		event := events.NewEngineEvent(eventType, id)
		event.Backend = h.Backend()
		event.Language = h.Language()
		event.Format = format.String()
		event.Duration = time.Since(start)
		event.Chars = len(res.Text)
		if err != nil {
			event.Error = err.Error()
		}
		s.publish(event)
		return err
	})
	return res, err
}

// ReleaseEngine unregisters an engine. It is destroyed once in-flight calls
// on it return.
func (s *Service) ReleaseEngine(ctx context.Context, id string) error {
	start := time.Now()
	err := s.registry.Remove(id)
	s.record(metrics.OpRelease, "", "", start, err)
	if err != nil {
		return err
	}
	s.metrics.SetLiveEngines(s.registry.Len())
	s.publish(events.NewEngineEvent(events.EventEngineReleased, id))
	s.logger.Info().Str("handle_id", id).Msg("Engine released")
	return nil
}

// ValidateOptions dry-runs name/value pairs against the backend.
func (s *Service) ValidateOptions(ctx context.Context, names, values []string) ([]bool, error) {
	start := time.Now()
	ok, err := ocr.ValidateOptions(s.backend, names, values)
	s.record(metrics.OpValidate, "", "", start, err)
	return ok, err
}

// Engines describes every registered engine.
func (s *Service) Engines(ctx context.Context) []EngineDetails {
	ids := s.registry.List()
	out := make([]EngineDetails, 0, len(ids))
	for _, id := range ids {
		_ = s.withHandle(id, func(h *ocr.Handle) error {
			out = append(out, describe(h))
			return nil
		})
	}
	return out
}

// Close releases every engine.
func (s *Service) Close() {
	s.registry.Close()
	s.metrics.SetLiveEngines(0)
}

func describe(h *ocr.Handle) EngineDetails {
	return EngineDetails{
		ID:       h.ID(),
		Backend:  h.Backend(),
		Language: h.Language(),
		State:    h.State().String(),
	}
}

func (s *Service) record(op, language, format string, start time.Time, err error) {
	s.metrics.RecordMetric(metrics.OperationMetric{
		Operation: op,
		Backend:   s.backend.Name(),
		Language:  language,
		Format:    format,
		Duration:  time.Since(start),
		Success:   err == nil,
		ErrorType: ErrorType(err),
	})
}

func (s *Service) publish(event *events.EngineEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(event); err != nil {
		s.logger.Debug().Err(err).Str("event_type", string(event.Type)).Msg("Event not published")
	}
}

// ErrorType names err for metrics and retry policies.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	var typed interface{ ErrorType() string }
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}
	switch {
	case errors.Is(err, ocr.ErrHandleNotFound):
		return "HandleNotFound"
	case errors.Is(err, ErrEngineLimit):
		return "EngineLimit"
	}
	return fmt.Sprintf("%T", err)
}
