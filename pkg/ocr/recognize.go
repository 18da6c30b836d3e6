package ocr

import (
	"context"
	"fmt"
	"time"
)

// Result is the owned output of one recognition call.
type Result struct {
	Text     string        `json:"text"`
	Format   Format        `json:"-"`
	Language string        `json:"language"`
	Duration time.Duration `json:"duration"`
}

// Recognize decodes src, runs recognition in the requested format and returns
// the recognized text. The raster is destroyed and the engine cleared on every
// path once they were acquired. A decode failure leaves the handle live.
func (h *Handle) Recognize(ctx context.Context, src ImageSource, format Format) (Result, error) {
	if h == nil {
		return Result{}, &LivenessError{Op: "recognize"}
	}
	if format != FormatText && format != FormatMarkup {
		return Result{}, &ArgumentError{Message: fmt.Sprintf("unsupported output format %s", format)}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	inst, err := h.live("recognize")
	if err != nil {
		return Result{}, err
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return Result{}, &RecognitionError{Format: format, Err: err}
		}
	}

	start := time.Now()
	raster, err := decode(h.decoder, src)
	if err != nil {
		h.log.Debug().Err(err).Str("source", src.String()).Msg("Image decode failed")
		return Result{}, err
	}
	width, height := raster.raster.Width(), raster.raster.Height()
	bound := false
	defer func() {
		raster.destroy()
		if bound {
			inst.Clear()
		}
	}()

	if h.reset == AdaptiveResetAlways {
		inst.ClearAdaptiveClassifier()
	}

	bound = true
	if err := inst.SetImage(raster.raster); err != nil {
		return Result{}, &RecognitionError{Format: format, Err: fmt.Errorf("set image: %w", err)}
	}

	var out Output
	switch format {
	case FormatMarkup:
		out, err = inst.RecognizeMarkup(0)
	default:
		out, err = inst.RecognizeText()
	}
	if err != nil {
		if out != nil {
			out.Release()
		}
		h.log.Warn().Err(err).Str("format", format.String()).Msg("Recognition failed")
		return Result{}, &RecognitionError{Format: format, Err: err}
	}
	if out == nil {
		return Result{}, &RecognitionError{Format: format, Err: fmt.Errorf("engine returned no output")}
	}
	text := out.String()
	out.Release()

	res := Result{
		Text:     text,
		Format:   format,
		Language: h.language,
		Duration: time.Since(start),
	}
	h.log.Debug().
		Str("format", format.String()).
		Int("width", width).
		Int("height", height).
		Int("chars", len(text)).
		Dur("duration", res.Duration).
		Msg("Recognition completed")
	return res, nil
}

// RecognizeText is Recognize with FormatText over an in-memory image.
func (h *Handle) RecognizeText(ctx context.Context, image []byte) (string, error) {
	res, err := h.Recognize(ctx, FromBytes(image), FormatText)
	return res.Text, err
}

// RecognizeFile is Recognize with FormatText over an image file.
func (h *Handle) RecognizeFile(ctx context.Context, path string) (string, error) {
	res, err := h.Recognize(ctx, FromFile(path), FormatText)
	return res.Text, err
}
