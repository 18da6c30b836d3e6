//go:build !tesseract

// Package tesseract binds the Tesseract C API and Leptonica through cgo. Build
// with -tags tesseract to compile the binding.
package tesseract

import "github.com/Caia-Tech/caia-ocr/pkg/ocr"

// Available reports whether the native backend is compiled in.
const Available = false

// Backend is a placeholder when built without the tesseract tag.
type Backend struct{}

// New returns ocr.ErrBackendUnavailable.
func New() (*Backend, error) {
	return nil, ocr.ErrBackendUnavailable
}

func (*Backend) Name() string    { return "tesseract" }
func (*Backend) Version() string { return "" }

func (*Backend) Decoder() ocr.Decoder { return nil }

func (*Backend) Init(ocr.InitParams) (ocr.Instance, error) {
	return nil, ocr.ErrBackendUnavailable
}

func (*Backend) NewParamTable() (ocr.ParamTable, error) {
	return nil, ocr.ErrBackendUnavailable
}
