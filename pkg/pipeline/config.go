package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-ocr/pkg/logging"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by EngineConfig.Backend.
const (
	BackendAuto      = "auto"
	BackendTesseract = "tesseract"
	BackendGosseract = "gosseract"
	BackendStub      = "stub"
)

// ServiceConfig holds complete service configuration
type ServiceConfig struct {
	// Logging configuration
	Logging *logging.LogConfig `json:"logging" yaml:"logging"`

	// Engine defaults and backend selection
	Engine *EngineConfig `json:"engine" yaml:"engine"`

	// Server configuration
	Server *ServerConfig `json:"server" yaml:"server"`

	// Temporal worker configuration
	Worker *WorkerConfig `json:"worker" yaml:"worker"`

	// Data paths
	DataPaths *DataPathsConfig `json:"data_paths" yaml:"data_paths"`
}

// EngineConfig holds engine settings
type EngineConfig struct {
	Backend        string `json:"backend" yaml:"backend"`                   // auto, tesseract, gosseract, stub
	FallbackToStub bool   `json:"fallback_to_stub" yaml:"fallback_to_stub"` // use the stub when no native backend is built in

	DataPath   string       `json:"data_path" yaml:"data_path"`     // tessdata directory
	Language   string       `json:"language" yaml:"language"`       // tesseract language
	ConfigFile string       `json:"config_file" yaml:"config_file"` // tesseract config file
	Options    []ocr.Option `json:"options" yaml:"options"`         // init-time variables

	ResetAdaptive  bool `json:"reset_adaptive" yaml:"reset_adaptive"`     // clear the adaptive classifier per call
	MaxImagePixels int  `json:"max_image_pixels" yaml:"max_image_pixels"` // 0 disables the limit
	MaxEngines     int  `json:"max_engines" yaml:"max_engines"`           // 0 disables the limit

	RecognizeTimeout time.Duration `json:"recognize_timeout" yaml:"recognize_timeout"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	Host           string        `json:"host" yaml:"host"`
	Port           int           `json:"port" yaml:"port"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout"`
	MaxRequestSize int           `json:"max_request_size" yaml:"max_request_size"`
}

// WorkerConfig holds temporal worker settings
type WorkerConfig struct {
	Enabled                 bool   `json:"enabled" yaml:"enabled"`
	TemporalHost            string `json:"temporal_host" yaml:"temporal_host"`
	TaskQueue               string `json:"task_queue" yaml:"task_queue"`
	MaxConcurrentActivities int    `json:"max_concurrent_activities" yaml:"max_concurrent_activities"`
}

// DataPathsConfig holds all data directory paths
type DataPathsConfig struct {
	DataRoot  string `json:"data_root" yaml:"data_root"`
	LogDir    string `json:"log_dir" yaml:"log_dir"`
	TempDir   string `json:"temp_dir" yaml:"temp_dir"`
	UploadDir string `json:"upload_dir" yaml:"upload_dir"`
	DumpDir   string `json:"dump_dir" yaml:"dump_dir"`
}

// DefaultServiceConfig returns a complete default configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Logging: logging.DefaultLogConfig(),

		Engine: &EngineConfig{
			Backend:          BackendAuto,
			FallbackToStub:   false,
			Language:         ocr.DefaultLanguage,
			ResetAdaptive:    true,
			MaxImagePixels:   100 * 1000 * 1000,
			MaxEngines:       64,
			RecognizeTimeout: 2 * time.Minute,
		},

		Server: &ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   2 * time.Minute,
			MaxRequestSize: 50 * 1024 * 1024, // 50MB
		},

		Worker: &WorkerConfig{
			Enabled:                 false,
			TemporalHost:            "localhost:7233",
			TaskQueue:               "ocr-recognition",
			MaxConcurrentActivities: 4,
		},

		DataPaths: &DataPathsConfig{
			DataRoot:  "./data",
			LogDir:    "./logs",
			TempDir:   "./data/temp",
			UploadDir: "./data/uploads",
			DumpDir:   "./data/dumps",
		},
	}
}

// ProductionServiceConfig returns production-ready configuration
func ProductionServiceConfig() *ServiceConfig {
	config := DefaultServiceConfig()

	config.Logging.Level = "info"
	config.Logging.Format = "json"
	config.Logging.Console = true
	config.Logging.OutputFile = "logs/caia-ocr.log"

	config.Engine.Backend = BackendTesseract
	config.Engine.FallbackToStub = false

	config.Worker.Enabled = true
	config.Worker.MaxConcurrentActivities = 8

	return config
}

// DevelopmentServiceConfig returns development configuration
func DevelopmentServiceConfig() *ServiceConfig {
	config := DefaultServiceConfig()

	config.Logging.Level = "debug"
	config.Logging.Format = "pretty"
	config.Logging.Console = true

	config.Engine.FallbackToStub = true
	config.Engine.MaxEngines = 8

	config.Worker.MaxConcurrentActivities = 2

	return config
}

// OCRConfig converts the engine defaults into an ocr.Config.
func (c *EngineConfig) OCRConfig() ocr.Config {
	reset := ocr.AdaptiveResetAlways
	if !c.ResetAdaptive {
		reset = ocr.AdaptiveResetNever
	}
	cfg := ocr.Config{
		DataPath:      c.DataPath,
		Language:      c.Language,
		ConfigFile:    c.ConfigFile,
		Options:       append([]ocr.Option(nil), c.Options...),
		ResetAdaptive: reset,
	}
	if c.MaxImagePixels > 0 {
		cfg.Decoder = ocr.GoDecoder{MaxPixels: c.MaxImagePixels}
	}
	return cfg
}

// Addr is the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads YAML from path over the defaults and validates the result.
func LoadConfig(path string) (*ServiceConfig, error) {
	config := DefaultServiceConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Loader loads configuration from an optional YAML file and environment
// variables. Tests can override Lookup to inject deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
}

// Load reads the file named by CAIA_OCR_CONFIG, applies CAIA_OCR_*
// overrides and validates.
func (l Loader) Load() (*ServiceConfig, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	path, _ := l.Lookup("CAIA_OCR_CONFIG")
	config, err := LoadConfig(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}

	overrideString(l.Lookup, "CAIA_OCR_LOG_LEVEL", &config.Logging.Level)
	overrideString(l.Lookup, "CAIA_OCR_LOG_FORMAT", &config.Logging.Format)
	overrideString(l.Lookup, "CAIA_OCR_LOG_FILE", &config.Logging.OutputFile)
	overrideString(l.Lookup, "CAIA_OCR_BACKEND", &config.Engine.Backend)
	overrideString(l.Lookup, "CAIA_OCR_LANGUAGE", &config.Engine.Language)
	overrideString(l.Lookup, "TESSDATA_PREFIX", &config.Engine.DataPath)
	overrideString(l.Lookup, "CAIA_OCR_TESSDATA", &config.Engine.DataPath)
	overrideString(l.Lookup, "CAIA_OCR_HOST", &config.Server.Host)
	overrideString(l.Lookup, "CAIA_OCR_TEMPORAL_HOST", &config.Worker.TemporalHost)
	overrideString(l.Lookup, "CAIA_OCR_TASK_QUEUE", &config.Worker.TaskQueue)
	if err := overrideInt(l.Lookup, "CAIA_OCR_PORT", &config.Server.Port); err != nil {
		return nil, err
	}
	if err := overrideBool(l.Lookup, "CAIA_OCR_FALLBACK_TO_STUB", &config.Engine.FallbackToStub); err != nil {
		return nil, err
	}
	if err := overrideBool(l.Lookup, "CAIA_OCR_WORKER_ENABLED", &config.Worker.Enabled); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = n
	return nil
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = b
	return nil
}

// Validate fills missing sections with defaults and rejects invalid values.
func (c *ServiceConfig) Validate() error {
	defaults := DefaultServiceConfig()
	if c.Logging == nil {
		c.Logging = defaults.Logging
	}
	if c.Engine == nil {
		c.Engine = defaults.Engine
	}
	if c.Server == nil {
		c.Server = defaults.Server
	}
	if c.Worker == nil {
		c.Worker = defaults.Worker
	}
	if c.DataPaths == nil {
		c.DataPaths = defaults.DataPaths
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "pretty":
	default:
		return fmt.Errorf("config: invalid log format %q", c.Logging.Format)
	}

	c.Engine.Backend = strings.ToLower(strings.TrimSpace(c.Engine.Backend))
	if c.Engine.Backend == "" {
		c.Engine.Backend = BackendAuto
	}
	switch c.Engine.Backend {
	case BackendAuto, BackendTesseract, BackendGosseract, BackendStub:
	default:
		return fmt.Errorf("config: unknown engine backend %q", c.Engine.Backend)
	}
	if strings.TrimSpace(c.Engine.Language) == "" {
		c.Engine.Language = ocr.DefaultLanguage
	}
	for i, opt := range c.Engine.Options {
		if opt.Name == "" {
			return fmt.Errorf("config: engine option %d has no name", i)
		}
	}
	if c.Engine.MaxImagePixels < 0 || c.Engine.MaxEngines < 0 {
		return fmt.Errorf("config: engine limits must not be negative")
	}
	if c.Engine.RecognizeTimeout < 0 {
		return fmt.Errorf("config: recognize timeout must not be negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Server.MaxRequestSize <= 0 {
		c.Server.MaxRequestSize = defaults.Server.MaxRequestSize
	}

	if c.Worker.Enabled {
		if c.Worker.TemporalHost == "" || c.Worker.TaskQueue == "" {
			return fmt.Errorf("config: worker requires temporal_host and task_queue")
		}
	}
	if c.Worker.MaxConcurrentActivities <= 0 {
		c.Worker.MaxConcurrentActivities = defaults.Worker.MaxConcurrentActivities
	}
	return nil
}

// SetupDirectories creates the configured data directories.
func (c *ServiceConfig) SetupDirectories() error {
	if c.DataPaths == nil {
		return nil
	}
	for _, dir := range []string{c.DataPaths.DataRoot, c.DataPaths.LogDir, c.DataPaths.TempDir, c.DataPaths.UploadDir, c.DataPaths.DumpDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
