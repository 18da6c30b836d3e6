//go:build !ocr || tesseract

// Package gosseract runs engines through github.com/otiai10/gosseract/v2.
// Build with -tags ocr to compile it.
package gosseract

import "github.com/Caia-Tech/caia-ocr/pkg/ocr"

// Available reports whether the gosseract backend is compiled in.
const Available = false

// Backend is a placeholder when built without the ocr tag.
type Backend struct {
	ProbeLanguage string
}

// New returns ocr.ErrBackendUnavailable.
func New() (*Backend, error) {
	return nil, ocr.ErrBackendUnavailable
}

func (*Backend) Name() string    { return "gosseract" }
func (*Backend) Version() string { return "" }

func (*Backend) Decoder() ocr.Decoder { return nil }

func (*Backend) Init(ocr.InitParams) (ocr.Instance, error) {
	return nil, ocr.ErrBackendUnavailable
}

func (*Backend) NewParamTable() (ocr.ParamTable, error) {
	return nil, ocr.ErrBackendUnavailable
}
