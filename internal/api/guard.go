package api

import (
	"fmt"
	"strings"

	"github.com/Caia-Tech/caia-ocr/internal/service"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
)

// fileVariables name files the engine opens for writing, or write images to
// the working directory, when set.
var fileVariables = map[string]bool{
	"debug_file":                    true,
	"tessedit_write_images":         true,
	"tessedit_write_params_to_file": true,
	"tessedit_dump_pageseg_images":  true,
}

// checkVariable rejects variables that make the engine touch files chosen by
// the client. Every *_file variable is refused, including word and pattern
// lists the engine would read.
func checkVariable(name string) error {
	name = strings.TrimSpace(name)
	if fileVariables[name] || strings.HasSuffix(name, "_file") {
		return &ocr.ArgumentError{Message: fmt.Sprintf("variable '%s' cannot be set over HTTP", name)}
	}
	return nil
}

func checkOptions(opts []ocr.Option) error {
	for _, opt := range opts {
		if err := checkVariable(opt.Name); err != nil {
			return err
		}
	}
	return nil
}

// checkEngineRequest keeps engine files under server configuration.
func checkEngineRequest(req service.EngineRequest) error {
	if req.ConfigFile != "" {
		return &ocr.ArgumentError{Message: "config_file is set by server configuration"}
	}
	if req.DataPath != "" {
		return &ocr.ArgumentError{Message: "data_path is set by server configuration"}
	}
	return checkOptions(req.Options)
}
