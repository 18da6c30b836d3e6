package activities

import (
	"errors"
	"testing"

	"github.com/Caia-Tech/caia-ocr/internal/temporal/workflows"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr/ocrtest"
	"github.com/Caia-Tech/caia-ocr/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func newActivityEnv(t *testing.T) (*testsuite.TestActivityEnvironment, *Recognizer, *ocr.StubBackend) {
	t.Helper()
	return newActivityEnvWith(t, &ocr.StubBackend{}, nil)
}

func newActivityEnvWith(t *testing.T, stub *ocr.StubBackend, engine *pipeline.EngineConfig) (*testsuite.TestActivityEnvironment, *Recognizer, *ocr.StubBackend) {
	t.Helper()
	r := NewRecognizer(stub, engine)
	t.Cleanup(r.Close)

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	r.Register(env)
	return env, r, stub
}

func TestRecognizeImageActivity(t *testing.T) {
	env, r, stub := newActivityEnv(t)

	val, err := env.ExecuteActivity(r.RecognizeImageActivity, workflows.RecognizeInput{
		Language: "eng",
		Image:    workflows.BatchImage{Name: "hello.png", Data: ocrtest.PNG(t, "Hello")},
	})
	require.NoError(t, err)

	var out workflows.RecognizeOutput
	require.NoError(t, val.Get(&out))
	assert.Equal(t, "hello.png", out.Name)
	assert.Contains(t, out.Text, "stub eng")
	assert.Equal(t, "eng", out.Language)

	_, err = env.ExecuteActivity(r.RecognizeImageActivity, workflows.RecognizeInput{
		Language: "eng",
		Image:    workflows.BatchImage{Name: "again.png", Data: ocrtest.PNG(t, "Again")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Engines())
	assert.EqualValues(t, 1, stub.Stats().Inits)
}

func TestRecognizeImageActivityFromPath(t *testing.T) {
	env, r, _ := newActivityEnv(t)
	path := ocrtest.WriteFile(t, "page.png", ocrtest.PNG(t, "Page"))

	val, err := env.ExecuteActivity(r.RecognizeImageActivity, workflows.RecognizeInput{
		Format: "hocr",
		Image:  workflows.BatchImage{Name: "page.png", Path: path},
	})
	require.NoError(t, err)

	var out workflows.RecognizeOutput
	require.NoError(t, val.Get(&out))
	assert.Contains(t, out.Text, "ocr_page")
}

func TestRecognizeImageActivityCachesPerConfiguration(t *testing.T) {
	env, r, stub := newActivityEnv(t)
	img := workflows.BatchImage{Name: "x.png", Data: ocrtest.PNG(t, "X")}

	for _, lang := range []string{"eng", "osd", "eng"} {
		_, err := env.ExecuteActivity(r.RecognizeImageActivity, workflows.RecognizeInput{Language: lang, Image: img})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, r.Engines())

	r.Close()
	assert.Zero(t, r.Engines())
	assert.EqualValues(t, 2, stub.Stats().Ends)
}

func TestRecognizeImageActivityEvictsLeastRecentlyUsed(t *testing.T) {
	engine := pipeline.DefaultServiceConfig().Engine
	engine.MaxEngines = 2
	env, r, stub := newActivityEnvWith(t, &ocr.StubBackend{Languages: []string{"eng", "deu", "osd"}}, engine)
	img := workflows.BatchImage{Name: "x.png", Data: ocrtest.PNG(t, "X")}

	for _, lang := range []string{"eng", "deu", "eng", "osd"} {
		_, err := env.ExecuteActivity(r.RecognizeImageActivity, workflows.RecognizeInput{Language: lang, Image: img})
		require.NoError(t, err)
	}
	// deu was the least recently used when osd arrived.
	assert.Equal(t, 2, r.Engines())
	assert.EqualValues(t, 3, stub.Stats().Inits)
	assert.EqualValues(t, 1, stub.Stats().Ends)

	_, err := env.ExecuteActivity(r.RecognizeImageActivity, workflows.RecognizeInput{Language: "eng", Image: img})
	require.NoError(t, err)
	assert.EqualValues(t, 3, stub.Stats().Inits)
}

func TestRecognizeImageActivityReplacesDeadEngine(t *testing.T) {
	env, r, stub := newActivityEnv(t)
	in := workflows.RecognizeInput{Image: workflows.BatchImage{Name: "x.png", Data: ocrtest.PNG(t, "X")}}

	h, _, err := r.handle(r.config(in))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	val, err := env.ExecuteActivity(r.RecognizeImageActivity, in)
	require.NoError(t, err)
	var out workflows.RecognizeOutput
	require.NoError(t, val.Get(&out))
	assert.Contains(t, out.Text, "stub eng")
	assert.Equal(t, 1, r.Engines())
	assert.EqualValues(t, 2, stub.Stats().Inits)
}

func TestRecognizeImageActivityNonRetryable(t *testing.T) {
	tests := []struct {
		name     string
		input    workflows.RecognizeInput
		wantType string
	}{
		{
			name:     "decode",
			input:    workflows.RecognizeInput{Image: workflows.BatchImage{Name: "junk", Data: []byte("junk")}},
			wantType: "ImageDecodeError",
		},
		{
			name:     "init",
			input:    workflows.RecognizeInput{Language: "klingon", Image: workflows.BatchImage{Name: "a", Data: []byte("a")}},
			wantType: "EngineInitError",
		},
		{
			name:     "format",
			input:    workflows.RecognizeInput{Format: "pdf", Image: workflows.BatchImage{Name: "a", Data: []byte("a")}},
			wantType: "ArgumentError",
		},
		{
			name:     "no image",
			input:    workflows.RecognizeInput{Image: workflows.BatchImage{Name: "nothing"}},
			wantType: "ArgumentError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, r, _ := newActivityEnv(t)

			_, err := env.ExecuteActivity(r.RecognizeImageActivity, tt.input)
			require.Error(t, err)

			var appErr *temporal.ApplicationError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantType, appErr.Type())
			assert.True(t, appErr.NonRetryable())
		})
	}
}

func TestRecognizeImageActivityRetryableRecognitionFailure(t *testing.T) {
	env, r, _ := newActivityEnvWith(t, &ocr.StubBackend{FailRecognition: true}, nil)

	_, err := env.ExecuteActivity(r.RecognizeImageActivity, workflows.RecognizeInput{
		Image: workflows.BatchImage{Name: "a.png", Data: ocrtest.PNG(t, "A")},
	})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "RecognitionError", appErr.Type())
	assert.False(t, appErr.NonRetryable())
}

func TestValidateOptionsActivity(t *testing.T) {
	env, r, _ := newActivityEnv(t)

	val, err := env.ExecuteActivity(r.ValidateOptionsActivity, workflows.ValidateOptionsInput{
		Names:  []string{"tessedit_pageseg_mode", "bogus"},
		Values: []string{"6", "1"},
	})
	require.NoError(t, err)
	var out workflows.ValidateOptionsOutput
	require.NoError(t, val.Get(&out))
	assert.Equal(t, []bool{true, false}, out.Accepted)

	_, err = env.ExecuteActivity(r.ValidateOptionsActivity, workflows.ValidateOptionsInput{
		Names: []string{"a", "b"},
	})
	require.Error(t, err)
}
