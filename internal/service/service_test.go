package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	events "github.com/Caia-Tech/caia-ocr/internal/pipeline"
	"github.com/Caia-Tech/caia-ocr/internal/metrics"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr/ocrtest"
	"github.com/Caia-Tech/caia-ocr/pkg/pipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, engine *pipeline.EngineConfig) (*Service, *ocr.StubBackend) {
	t.Helper()
	if engine == nil {
		engine = pipeline.DefaultServiceConfig().Engine
	}
	stub := &ocr.StubBackend{}
	svc := New(stub, Options{Engine: engine, Logger: zerolog.Nop()})
	t.Cleanup(svc.Close)
	return svc, stub
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, stub := newTestService(t, nil)

	id, err := svc.CreateEngine(ctx, EngineRequest{})
	require.NoError(t, err)

	require.NoError(t, svc.SetVariable(ctx, id, "tessedit_pageseg_mode", "7"))

	details, err := svc.EngineInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "eng", details.Language)
	assert.Equal(t, "live", details.State)
	require.NotNil(t, details.Info)
	assert.Equal(t, []string{"eng"}, details.Info.Loaded)

	res, err := svc.Recognize(ctx, id, ocr.FromBytes(ocrtest.PNG(t, "Hello")), ocr.FormatText)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "stub eng")

	path, err := svc.DumpVariables(ctx, id, filepath.Join(t.TempDir(), "vars.txt"))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tessedit_pageseg_mode\t7")

	require.Len(t, svc.Engines(ctx), 1)
	require.NoError(t, svc.ReleaseEngine(ctx, id))
	assert.Empty(t, svc.Engines(ctx))
	assert.EqualValues(t, 1, stub.Stats().Ends)

	_, err = svc.EngineInfo(ctx, id)
	assert.ErrorIs(t, err, ocr.ErrHandleNotFound)
	assert.ErrorIs(t, svc.ReleaseEngine(ctx, id), ocr.ErrHandleNotFound)
}

func TestServiceAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	engine := pipeline.DefaultServiceConfig().Engine
	engine.Language = "eng+osd"
	engine.Options = []ocr.Option{{Name: "user_defined_dpi", Value: "200"}}
	svc, _ := newTestService(t, engine)

	id, err := svc.CreateEngine(ctx, EngineRequest{Options: []ocr.Option{{Name: "user_defined_dpi", Value: "300"}}})
	require.NoError(t, err)

	details, err := svc.EngineInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "eng+osd", details.Language)

	path, err := svc.DumpVariables(ctx, id, filepath.Join(t.TempDir(), "vars.txt"))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "user_defined_dpi\t300")
}

func TestServiceResetAdaptiveOverride(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	never := false

	id, err := svc.CreateEngine(ctx, EngineRequest{ResetAdaptive: &never})
	require.NoError(t, err)

	img := ocr.FromBytes(ocrtest.PNG(t, "Hello"))
	_, err = svc.Recognize(ctx, id, img, ocr.FormatText)
	require.NoError(t, err)
	res, err := svc.Recognize(ctx, id, img, ocr.FormatText)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "adapted 1")
}

func TestServiceCreateEngineFailure(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.CreateEngine(context.Background(), EngineRequest{Language: "klingon"})
	var initErr *ocr.EngineInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "EngineInitError", ErrorType(err))
	assert.Empty(t, svc.Engines(context.Background()))
}

func TestServiceEngineLimit(t *testing.T) {
	engine := pipeline.DefaultServiceConfig().Engine
	engine.MaxEngines = 1
	svc, _ := newTestService(t, engine)

	_, err := svc.CreateEngine(context.Background(), EngineRequest{})
	require.NoError(t, err)
	_, err = svc.CreateEngine(context.Background(), EngineRequest{})
	assert.ErrorIs(t, err, ErrEngineLimit)
}

func TestServiceEngineLimitConcurrent(t *testing.T) {
	engine := pipeline.DefaultServiceConfig().Engine
	engine.MaxEngines = 3
	svc, _ := newTestService(t, engine)

	var created, limited atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateEngine(context.Background(), EngineRequest{})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, ErrEngineLimit):
				limited.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 3, created.Load())
	assert.EqualValues(t, 13, limited.Load())
	assert.Len(t, svc.Engines(context.Background()), 3)
}

func TestServiceFailedCreateFreesSlot(t *testing.T) {
	engine := pipeline.DefaultServiceConfig().Engine
	engine.MaxEngines = 1
	svc, _ := newTestService(t, engine)

	_, err := svc.CreateEngine(context.Background(), EngineRequest{Language: "klingon"})
	require.Error(t, err)
	_, err = svc.CreateEngine(context.Background(), EngineRequest{})
	require.NoError(t, err)
}

func TestServiceRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	collector := metrics.NewCollector(0, zerolog.Nop())
	svc := New(&ocr.StubBackend{}, Options{Metrics: collector, Logger: zerolog.Nop()})
	defer svc.Close()

	id, err := svc.CreateEngine(ctx, EngineRequest{})
	require.NoError(t, err)
	_, err = svc.Recognize(ctx, id, ocr.FromBytes([]byte("junk")), ocr.FormatText)
	require.Error(t, err)

	var failed *metrics.OperationMetric
	for _, m := range collector.GetMetrics() {
		if m.Operation == metrics.OpRecognize {
			m := m
			failed = &m
		}
	}
	require.NotNil(t, failed)
	assert.False(t, failed.Success)
	assert.Equal(t, "ImageDecodeError", failed.ErrorType)
	assert.Equal(t, "text", failed.Format)
}

func TestServicePublishesEvents(t *testing.T) {
	ctx := context.Background()
	bus := events.NewEventBus(16, 1, zerolog.Nop())
	defer bus.Close()

	var created, completed, failed, released int32
	_, err := bus.Subscribe(events.AllEventTypes, func(ctx context.Context, e *events.EngineEvent) error {
		switch e.Type {
		case events.EventEngineCreated:
			atomic.AddInt32(&created, 1)
		case events.EventRecognitionCompleted:
			atomic.AddInt32(&completed, 1)
		case events.EventRecognitionFailed:
			atomic.AddInt32(&failed, 1)
		case events.EventEngineReleased:
			atomic.AddInt32(&released, 1)
		}
		return nil
	}, 16)
	require.NoError(t, err)

	svc := New(&ocr.StubBackend{}, Options{Events: bus, Logger: zerolog.Nop()})
	defer svc.Close()

	id, err := svc.CreateEngine(ctx, EngineRequest{})
	require.NoError(t, err)
	_, err = svc.Recognize(ctx, id, ocr.FromBytes(ocrtest.PNG(t, "Hi")), ocr.FormatText)
	require.NoError(t, err)
	_, err = svc.Recognize(ctx, id, ocr.FromBytes(nil), ocr.FormatText)
	require.Error(t, err)
	require.NoError(t, svc.ReleaseEngine(ctx, id))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&created) == 1 &&
			atomic.LoadInt32(&completed) == 1 &&
			atomic.LoadInt32(&failed) == 1 &&
			atomic.LoadInt32(&released) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestServiceValidateOptions(t *testing.T) {
	svc, stub := newTestService(t, nil)

	ok, err := svc.ValidateOptions(context.Background(), []string{"load_system_dawg", "nope"}, []string{"0", "1"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, ok)
	assert.Zero(t, stub.Stats().Inits)
	assert.Equal(t, "5.3.0-stub", svc.Version())
}

func TestErrorType(t *testing.T) {
	assert.Empty(t, ErrorType(nil))
	assert.Equal(t, "HandleNotFound", ErrorType(ocr.ErrHandleNotFound))
	assert.Equal(t, "LivenessError", ErrorType(&ocr.LivenessError{Op: "x"}))
}
