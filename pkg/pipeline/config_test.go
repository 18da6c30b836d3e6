package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultServiceConfigIsValid(t *testing.T) {
	for name, cfg := range map[string]*ServiceConfig{
		"default":     DefaultServiceConfig(),
		"production":  ProductionServiceConfig(),
		"development": DevelopmentServiceConfig(),
	} {
		assert.NoError(t, cfg.Validate(), name)
	}
	assert.Equal(t, BackendTesseract, ProductionServiceConfig().Engine.Backend)
	assert.True(t, DevelopmentServiceConfig().Engine.FallbackToStub)
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caia-ocr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: pretty
engine:
  backend: stub
  language: eng+deu
  reset_adaptive: false
  recognize_timeout: 45s
  options:
    - name: tessedit_pageseg_mode
      value: "6"
server:
  port: 9090
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, BackendStub, cfg.Engine.Backend)
	assert.Equal(t, "eng+deu", cfg.Engine.Language)
	assert.False(t, cfg.Engine.ResetAdaptive)
	assert.Equal(t, 45*time.Second, cfg.Engine.RecognizeTimeout)
	assert.Equal(t, []ocr.Option{{Name: "tessedit_pageseg_mode", Value: "6"}}, cfg.Engine.Options)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Untouched keys keep defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "ocr-recognition", cfg.Worker.TaskQueue)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  backend: paper\n"), 0644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "unknown engine backend")
}

func TestLoaderEnvironmentOverrides(t *testing.T) {
	cfg, err := Loader{Lookup: mapLookup(map[string]string{
		"CAIA_OCR_BACKEND":          " STUB ",
		"CAIA_OCR_LANGUAGE":         "fra",
		"TESSDATA_PREFIX":           "/usr/share/tessdata",
		"CAIA_OCR_PORT":             "8181",
		"CAIA_OCR_FALLBACK_TO_STUB": "true",
		"CAIA_OCR_LOG_LEVEL":        "warn",
	})}.Load()
	require.NoError(t, err)

	assert.Equal(t, BackendStub, cfg.Engine.Backend)
	assert.Equal(t, "fra", cfg.Engine.Language)
	assert.Equal(t, "/usr/share/tessdata", cfg.Engine.DataPath)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.True(t, cfg.Engine.FallbackToStub)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0:8181", cfg.Server.Addr())
}

func TestLoaderTessdataPrecedence(t *testing.T) {
	cfg, err := Loader{Lookup: mapLookup(map[string]string{
		"TESSDATA_PREFIX":   "/a",
		"CAIA_OCR_TESSDATA": "/b",
	})}.Load()
	require.NoError(t, err)
	assert.Equal(t, "/b", cfg.Engine.DataPath)
}

func TestLoaderRejectsBadValues(t *testing.T) {
	_, err := Loader{Lookup: mapLookup(map[string]string{"CAIA_OCR_PORT": "eighty"})}.Load()
	assert.ErrorContains(t, err, "CAIA_OCR_PORT")

	_, err = Loader{Lookup: mapLookup(map[string]string{"CAIA_OCR_PORT": "70000"})}.Load()
	assert.ErrorContains(t, err, "invalid server port")

	_, err = Loader{Lookup: mapLookup(map[string]string{"CAIA_OCR_LOG_LEVEL": "loud"})}.Load()
	assert.ErrorContains(t, err, "invalid log level")

	_, err = Loader{Lookup: mapLookup(map[string]string{"CAIA_OCR_WORKER_ENABLED": "maybe"})}.Load()
	assert.Error(t, err)
}

func TestValidateFillsMissingSections(t *testing.T) {
	cfg := &ServiceConfig{}
	require.NoError(t, cfg.Validate())
	assert.NotNil(t, cfg.Engine)
	assert.Equal(t, ocr.DefaultLanguage, cfg.Engine.Language)
}

func TestEngineConfigOCRConfig(t *testing.T) {
	ec := DefaultServiceConfig().Engine
	ec.ResetAdaptive = false
	ec.Options = []ocr.Option{{Name: "user_defined_dpi", Value: "300"}}

	cfg := ec.OCRConfig()
	assert.Equal(t, ocr.AdaptiveResetNever, cfg.ResetAdaptive)
	assert.Equal(t, ec.Options, cfg.Options)
	assert.Equal(t, ocr.GoDecoder{MaxPixels: ec.MaxImagePixels}, cfg.Decoder)

	ec.MaxImagePixels = 0
	assert.Nil(t, ec.OCRConfig().Decoder)
}

func TestSetupDirectories(t *testing.T) {
	root := t.TempDir()
	config := DefaultServiceConfig()
	config.DataPaths = &DataPathsConfig{
		DataRoot: root,
		DumpDir:  filepath.Join(root, "dumps", "nested"),
	}
	require.NoError(t, config.SetupDirectories())

	info, err := os.Stat(config.DataPaths.DumpDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
