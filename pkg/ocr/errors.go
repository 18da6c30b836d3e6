package ocr

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineDead is matched by every LivenessError.
	ErrEngineDead = errors.New("ocr: engine handle is dead")

	// ErrBackendUnavailable is returned by backends that were not compiled in.
	ErrBackendUnavailable = errors.New("ocr: backend unavailable in this build")

	// ErrHandleNotFound is returned by the registry for unknown or removed ids.
	ErrHandleNotFound = errors.New("ocr: engine handle not found")
)

// EngineInitError reports a failed native initialization. It is not retryable
// without changed inputs.
type EngineInitError struct {
	Language string
	DataPath string
	Err      error
}

func (e *EngineInitError) Error() string {
	msg := fmt.Sprintf("unable to initialize tesseract with language '%s'", e.Language)
	if e.DataPath != "" {
		msg += fmt.Sprintf(" and data path '%s'", e.DataPath)
	}
	msg += fmt.Sprintf("; install the training data for '%s' (e.g. the tesseract-ocr-%s package) or point data_path at a tessdata directory", e.Language, e.Language)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineInitError) Unwrap() error { return e.Err }

// ErrorType names the error for retry policies.
func (e *EngineInitError) ErrorType() string { return "EngineInitError" }

// LivenessError reports an operation on a released handle.
type LivenessError struct {
	Op string
}

func (e *LivenessError) Error() string {
	return fmt.Sprintf("ocr: %s: engine handle is dead", e.Op)
}

func (e *LivenessError) Is(target error) bool { return target == ErrEngineDead }

func (e *LivenessError) ErrorType() string { return "LivenessError" }

// InvalidVariableError reports a variable the engine refused to set.
type InvalidVariableError struct {
	Name  string
	Value string
}

func (e *InvalidVariableError) Error() string {
	return fmt.Sprintf("ocr: failed to set variable '%s' to '%s'", e.Name, e.Value)
}

func (e *InvalidVariableError) ErrorType() string { return "InvalidVariableError" }

// ArgumentError reports malformed caller input.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string { return "ocr: " + e.Message }

func (e *ArgumentError) ErrorType() string { return "ArgumentError" }

// ImageDecodeError reports input that could not be decoded into a raster.
type ImageDecodeError struct {
	Source string
	Err    error
}

func (e *ImageDecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ocr: failed to read image from %s", e.Source)
	}
	return fmt.Sprintf("ocr: failed to read image from %s: %v", e.Source, e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

func (e *ImageDecodeError) ErrorType() string { return "ImageDecodeError" }

// RecognitionError reports a failure after a valid image was bound, or a
// context that was done before recognition started.
type RecognitionError struct {
	Format Format
	Err    error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("ocr: %s recognition failed: %v", e.Format, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

func (e *RecognitionError) ErrorType() string { return "RecognitionError" }

// IOError reports a destination that could not be written.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ocr: failed to open file '%s' for writing", e.Path)
	}
	return fmt.Sprintf("ocr: failed to open file '%s' for writing: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) ErrorType() string { return "IOError" }

// NonRetryableErrorTypes lists the ErrorType names a retrying caller should
// not retry.
var NonRetryableErrorTypes = []string{
	"EngineInitError",
	"LivenessError",
	"InvalidVariableError",
	"ArgumentError",
	"ImageDecodeError",
}
