package ocr

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Caia-Tech/caia-ocr/pkg/ocr/ocrtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectedStubText(lang, text string) string {
	b := ocrtest.RenderImage(text).Bounds()
	return fmt.Sprintf("stub %s %dx%d\n", lang, b.Dx(), b.Dy())
}

func assertBalanced(t *testing.T, s StubStats) {
	t.Helper()
	assert.Equal(t, s.Rasters, s.RastersDestroyed, "every raster is destroyed")
	assert.Equal(t, s.Outputs, s.OutputsReleased, "every output is released")
}

func TestRecognizeText(t *testing.T) {
	h, stub := newStubHandle(t, Config{})
	img := ocrtest.PNG(t, "Hello world")

	text, err := h.RecognizeText(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, expectedStubText("eng", "Hello world"), text)

	s := stub.Stats()
	assert.EqualValues(t, 1, s.Rasters)
	assert.EqualValues(t, 1, s.Clears)
	assert.EqualValues(t, 1, s.AdaptiveClears)
	assertBalanced(t, s)
}

func TestRecognizeFile(t *testing.T) {
	h, stub := newStubHandle(t, Config{})
	path := ocrtest.WriteFile(t, "hello.png", ocrtest.PNG(t, "Hello"))

	text, err := h.RecognizeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, expectedStubText("eng", "Hello"), text)
	assertBalanced(t, stub.Stats())
}

func TestRecognizeMarkup(t *testing.T) {
	h, stub := newStubHandle(t, Config{})

	res, err := h.Recognize(context.Background(), FromBytes(ocrtest.PNG(t, "Hello")), FormatMarkup)
	require.NoError(t, err)
	assert.Equal(t, FormatMarkup, res.Format)
	assert.Equal(t, "eng", res.Language)
	assert.Contains(t, res.Text, "class='ocr_page'")
	assert.Contains(t, res.Text, "class='ocrx_word'")
	assertBalanced(t, stub.Stats())
}

func TestRecognizeIsRepeatable(t *testing.T) {
	h, stub := newStubHandle(t, Config{})
	img := ocrtest.PNG(t, "Hello")

	first, err := h.RecognizeText(context.Background(), img)
	require.NoError(t, err)
	second, err := h.RecognizeText(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 2, stub.Stats().AdaptiveClears)
}

func TestRecognizeWithoutAdaptiveReset(t *testing.T) {
	h, stub := newStubHandle(t, Config{ResetAdaptive: AdaptiveResetNever})
	img := ocrtest.PNG(t, "Hello")

	first, err := h.RecognizeText(context.Background(), img)
	require.NoError(t, err)
	second, err := h.RecognizeText(context.Background(), img)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Contains(t, second, "adapted 1")
	assert.Zero(t, stub.Stats().AdaptiveClears)
}

func TestRecognizeDecodeFailure(t *testing.T) {
	h, stub := newStubHandle(t, Config{})

	_, err := h.RecognizeText(context.Background(), []byte("definitely not an image"))
	var decErr *ImageDecodeError
	require.ErrorAs(t, err, &decErr)

	_, err = h.RecognizeText(context.Background(), nil)
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, err.Error(), "empty buffer")

	_, err = h.RecognizeFile(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, err.Error(), "missing.png")

	// Nothing was bound, so nothing needed clearing.
	s := stub.Stats()
	assert.Zero(t, s.Rasters)
	assert.Zero(t, s.Clears)
	assert.Equal(t, StateLive, h.State())

	text, err := h.RecognizeText(context.Background(), ocrtest.PNG(t, "Hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestRecognizeEngineFailure(t *testing.T) {
	stub := &StubBackend{FailRecognition: true}
	h, err := New(stub, Config{})
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Recognize(context.Background(), FromBytes(ocrtest.PNG(t, "Hello")), FormatMarkup)
	var recErr *RecognitionError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, FormatMarkup, recErr.Format)
	assert.Contains(t, err.Error(), "hocr recognition failed")

	s := stub.Stats()
	assert.EqualValues(t, 1, s.Rasters)
	assert.EqualValues(t, 1, s.RastersDestroyed)
	assert.EqualValues(t, 1, s.Clears)
	assert.Equal(t, StateLive, h.State())
}

func TestRecognizeSetImageFailure(t *testing.T) {
	stub := &StubBackend{FailSetImage: true}
	h, err := New(stub, Config{})
	require.NoError(t, err)
	defer h.Close()

	_, err = h.RecognizeText(context.Background(), ocrtest.PNG(t, "Hello"))
	var recErr *RecognitionError
	require.ErrorAs(t, err, &recErr)
	assert.Contains(t, err.Error(), "set image")

	s := stub.Stats()
	assert.EqualValues(t, 1, s.Rasters)
	assert.EqualValues(t, 1, s.RastersDestroyed)
	assert.EqualValues(t, 1, s.Clears)
	assert.Zero(t, s.Outputs)
	assert.Equal(t, StateLive, h.State())
}

func TestRecognizeCanceledContext(t *testing.T) {
	h, stub := newStubHandle(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.RecognizeText(ctx, ocrtest.PNG(t, "Hello"))
	var recErr *RecognitionError
	require.ErrorAs(t, err, &recErr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stub.Stats().Rasters)
}

func TestRecognizeUnknownFormat(t *testing.T) {
	h, _ := newStubHandle(t, Config{})

	_, err := h.Recognize(context.Background(), FromBytes(ocrtest.PNG(t, "Hello")), Format(9))
	var argErr *ArgumentError
	assert.ErrorAs(t, err, &argErr)
}

func TestRecognizeConcurrent(t *testing.T) {
	h, stub := newStubHandle(t, Config{})
	img := ocrtest.PNG(t, "Hello")
	want := expectedStubText("eng", "Hello")

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := h.RecognizeText(context.Background(), img)
			if err == nil && text != want {
				err = fmt.Errorf("unexpected text %q", text)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	s := stub.Stats()
	assert.EqualValues(t, 16, s.Clears)
	assertBalanced(t, s)
}

func TestRecognizeMultipleLanguages(t *testing.T) {
	h, _ := newStubHandle(t, Config{Language: "eng+osd"})

	text, err := h.RecognizeText(context.Background(), ocrtest.PNG(t, "Hi"))
	require.NoError(t, err)
	assert.Equal(t, expectedStubText("eng+osd", "Hi"), text)
}
