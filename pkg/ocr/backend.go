// Package ocr manages the lifecycle of Tesseract engine instances: creating an
// engine bound to language data and init-time variables, validating
// configuration, decoding images into rasters and running recognition while
// releasing every native resource exactly once.
//
// The recognition engine and the image codec are collaborators behind the
// Backend, Instance and Decoder interfaces. Native implementations live in the
// tesseract and gosseract subpackages; StubBackend runs without Tesseract.
package ocr

import "fmt"

// DefaultLanguage is used when a Config names no language.
const DefaultLanguage = "eng"

// Format selects the recognition output.
type Format int

const (
	// FormatText is plain UTF-8 text.
	FormatText Format = iota
	// FormatMarkup is hOCR markup for page 0.
	FormatMarkup
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatMarkup:
		return "hocr"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat maps "text"/"txt" and "hocr"/"markup" to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "text", "txt", "plain":
		return FormatText, nil
	case "hocr", "markup", "html":
		return FormatMarkup, nil
	default:
		return FormatText, &ArgumentError{Message: fmt.Sprintf("unknown output format %q", s)}
	}
}

// InitParams are handed to Backend.Init. Options are applied in order.
type InitParams struct {
	DataPath   string
	Language   string
	ConfigFile string
	Options    []Option
}

// Backend creates engine instances and exposes the engine-independent
// parameter table.
type Backend interface {
	Name() string
	Version() string
	Init(params InitParams) (Instance, error)
	// NewParamTable returns a throwaway table for dry-run validation. The
	// caller must Close it.
	NewParamTable() (ParamTable, error)
	Decoder() Decoder
}

// Instance is one initialized native engine. Implementations are not safe for
// concurrent use; Handle serializes access.
type Instance interface {
	SetVariable(name, value string) bool
	SetImage(r Raster) error
	RecognizeText() (Output, error)
	RecognizeMarkup(page int) (Output, error)
	ClearAdaptiveClassifier()
	Clear()
	AvailableLanguages() []string
	LoadedLanguages() []string
	DataPath() string
	// PrintVariables writes every variable to path and reports whether the
	// file could be opened.
	PrintVariables(path string) bool
	End()
}

// ParamTable accepts or rejects name/value pairs without touching a live
// engine.
type ParamTable interface {
	Set(name, value string) bool
	Close()
}

// Output is a native text buffer. String copies it; Release frees it and is
// safe to call more than once.
type Output interface {
	String() string
	Release()
}

// StringOutput is an Output backed by Go memory.
type StringOutput string

func (s StringOutput) String() string { return string(s) }

func (StringOutput) Release() {}

// EngineVersion reports the version of the backend's engine.
func EngineVersion(b Backend) string {
	if b == nil {
		return ""
	}
	return b.Version()
}
