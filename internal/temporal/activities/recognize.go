package activities

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/Caia-Tech/caia-ocr/internal/service"
	"github.com/Caia-Tech/caia-ocr/internal/temporal/workflows"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/Caia-Tech/caia-ocr/pkg/pipeline"
	"github.com/golang/groupcache/lru"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// Recognizer runs recognition activities. Engines are created on first use
// and cached per engine configuration; once MaxEngines configurations are
// cached the least recently used engine is closed.
type Recognizer struct {
	backend ocr.Backend
	engine  *pipeline.EngineConfig

	mu      sync.Mutex
	handles *lru.Cache
	// evicted holds engines dropped from the cache until they are closed
	// outside mu.
	evicted []*ocr.Handle
}

// NewRecognizer creates a recognizer over backend. A nil engine config uses
// the defaults.
func NewRecognizer(backend ocr.Backend, engine *pipeline.EngineConfig) *Recognizer {
	if engine == nil {
		engine = pipeline.DefaultServiceConfig().Engine
	}
	r := &Recognizer{
		backend: backend,
		engine:  engine,
		handles: lru.New(engine.MaxEngines),
	}
	r.handles.OnEvicted = func(_ lru.Key, value interface{}) {
		r.evicted = append(r.evicted, value.(*ocr.Handle))
	}
	return r
}

// unlock releases mu and closes the engines evicted while it was held.
func (r *Recognizer) unlock() {
	evicted := r.evicted
	r.evicted = nil
	r.mu.Unlock()
	for _, h := range evicted {
		_ = h.Close()
	}
}

// ActivityRegistry is the part of a worker the recognizer registers with.
// worker.Worker and the testsuite activity environment both satisfy it.
type ActivityRegistry interface {
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register adds the recognizer's activities to w under their workflow names.
func (r *Recognizer) Register(w ActivityRegistry) {
	w.RegisterActivityWithOptions(r.RecognizeImageActivity, activity.RegisterOptions{Name: workflows.RecognizeImageActivityName})
	w.RegisterActivityWithOptions(r.ValidateOptionsActivity, activity.RegisterOptions{Name: workflows.ValidateOptionsActivityName})
}

func (r *Recognizer) config(in workflows.RecognizeInput) ocr.Config {
	cfg := r.engine.OCRConfig()
	if in.DataPath != "" {
		cfg.DataPath = in.DataPath
	}
	if in.Language != "" {
		cfg.Language = in.Language
	}
	cfg.Options = append(cfg.Options, in.Options...)
	return cfg
}

func cacheKey(cfg ocr.Config) string {
	var b strings.Builder
	b.WriteString(cfg.DataPath)
	b.WriteByte(0)
	b.WriteString(cfg.Language)
	for _, opt := range cfg.Options {
		b.WriteByte(0)
		b.WriteString(opt.Name)
		b.WriteByte('=')
		b.WriteString(opt.Value)
	}
	return b.String()
}

func (r *Recognizer) handle(cfg ocr.Config) (*ocr.Handle, string, error) {
	key := cacheKey(cfg)
	r.mu.Lock()
	defer r.unlock()
	if v, ok := r.handles.Get(key); ok {
		return v.(*ocr.Handle), key, nil
	}
	h, err := ocr.New(r.backend, cfg)
	if err != nil {
		return nil, key, err
	}
	r.handles.Add(key, h)
	return h, key, nil
}

func (r *Recognizer) evict(key string, h *ocr.Handle) {
	r.mu.Lock()
	if v, ok := r.handles.Get(key); ok && v.(*ocr.Handle) == h {
		r.handles.Remove(key)
		r.unlock()
		return
	}
	r.unlock()
	_ = h.Close()
}

// RecognizeImageActivity recognizes one image.
func (r *Recognizer) RecognizeImageActivity(ctx context.Context, in workflows.RecognizeInput) (workflows.RecognizeOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Recognizing image", "image", in.Image.Name, "language", in.Language, "size", len(in.Image.Data))

	format, err := ocr.ParseFormat(in.Format)
	if err != nil {
		return workflows.RecognizeOutput{}, activityError(err)
	}

	var src ocr.ImageSource
	switch {
	case len(in.Image.Data) > 0:
		src = ocr.FromBytes(in.Image.Data)
	case in.Image.Path != "":
		src = ocr.FromFile(in.Image.Path)
	default:
		return workflows.RecognizeOutput{}, activityError(&ocr.ArgumentError{Message: "image has neither data nor path"})
	}

	cfg := r.config(in)
	var res ocr.Result
	// An engine closed by eviction between lookup and use is replaced once.
	for attempt := 0; ; attempt++ {
		h, key, err := r.handle(cfg)
		if err != nil {
			return workflows.RecognizeOutput{}, activityError(err)
		}
		res, err = h.Recognize(ctx, src, format)
		if err == nil {
			break
		}
		if errors.Is(err, ocr.ErrEngineDead) {
			r.evict(key, h)
			if attempt == 0 {
				continue
			}
		}
		logger.Warn("Recognition failed", "image", in.Image.Name, "error", err)
		return workflows.RecognizeOutput{}, activityError(err)
	}

	logger.Info("Image recognized", "image", in.Image.Name, "chars", len(res.Text))
	return workflows.RecognizeOutput{
		Name:       in.Image.Name,
		Text:       res.Text,
		Language:   res.Language,
		DurationMs: res.Duration.Milliseconds(),
	}, nil
}

// ValidateOptionsActivity dry-runs option pairs against the backend.
func (r *Recognizer) ValidateOptionsActivity(ctx context.Context, in workflows.ValidateOptionsInput) (workflows.ValidateOptionsOutput, error) {
	ok, err := ocr.ValidateOptions(r.backend, in.Names, in.Values)
	if err != nil {
		return workflows.ValidateOptionsOutput{}, activityError(err)
	}
	return workflows.ValidateOptionsOutput{Accepted: ok}, nil
}

// Engines reports how many engines are cached.
func (r *Recognizer) Engines() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles.Len()
}

// Close destroys every cached engine.
func (r *Recognizer) Close() {
	r.mu.Lock()
	defer r.unlock()
	r.handles.Clear()
}

// activityError converts err to an application error typed by its ErrorType
// so the retry policy can tell which failures are permanent.
func activityError(err error) error {
	errType := service.ErrorType(err)
	if slices.Contains(ocr.NonRetryableErrorTypes, errType) {
		return temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
	}
	return temporal.NewApplicationError(err.Error(), errType, err)
}
