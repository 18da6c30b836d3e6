package ocr

import (
	"errors"
	"sync"

	"github.com/Caia-Tech/caia-ocr/pkg/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the externally visible lifecycle state of a Handle.
type State int

const (
	StateLive State = iota + 1
	StateDead
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Info describes a live engine.
type Info struct {
	DataPath  string   `json:"datapath"`
	Loaded    []string `json:"loaded"`
	Available []string `json:"available"`
}

// Handle owns one engine instance. All methods are safe for concurrent use;
// calls on one handle are serialized.
type Handle struct {
	mu   sync.Mutex
	inst Instance

	id         string
	backend    string
	decoder    Decoder
	dataPath   string
	language   string
	configFile string
	reset      AdaptiveReset
	log        zerolog.Logger
}

// New initializes an engine. Failures of the native init are reported as
// *EngineInitError naming the requested language.
func New(b Backend, cfg Config) (*Handle, error) {
	if b == nil {
		return nil, &ArgumentError{Message: "backend must not be nil"}
	}
	cfg = cfg.withDefaults()

	inst, err := b.Init(InitParams{
		DataPath:   cfg.DataPath,
		Language:   cfg.Language,
		ConfigFile: cfg.ConfigFile,
		Options:    cfg.Options,
	})
	if err != nil {
		var initErr *EngineInitError
		if errors.As(err, &initErr) {
			return nil, err
		}
		return nil, &EngineInitError{Language: cfg.Language, DataPath: cfg.DataPath, Err: err}
	}
	if inst == nil {
		return nil, &EngineInitError{Language: cfg.Language, DataPath: cfg.DataPath}
	}

	decoder := cfg.Decoder
	if decoder == nil {
		decoder = b.Decoder()
	}
	if decoder == nil {
		decoder = GoDecoder{}
	}

	id := uuid.NewString()
	h := &Handle{
		inst:       inst,
		id:         id,
		backend:    b.Name(),
		decoder:    decoder,
		dataPath:   cfg.DataPath,
		language:   cfg.Language,
		configFile: cfg.ConfigFile,
		reset:      cfg.ResetAdaptive,
		log:        logging.GetEngineLogger(id, cfg.Language).With().Str("backend", b.Name()).Logger(),
	}
	h.log.Debug().
		Str("datapath", cfg.DataPath).
		Int("options", len(cfg.Options)).
		Msg("Engine initialized")
	return h, nil
}

// live returns the instance or a LivenessError. Callers hold h.mu.
func (h *Handle) live(op string) (Instance, error) {
	if h == nil || h.inst == nil {
		return nil, &LivenessError{Op: op}
	}
	return h.inst, nil
}

// ID is the handle's unique identifier.
func (h *Handle) ID() string { return h.id }

// Language is the language the engine was created with.
func (h *Handle) Language() string { return h.language }

// Backend names the backend that created the engine.
func (h *Handle) Backend() string { return h.backend }

// State reports whether the handle is live.
func (h *Handle) State() State {
	if h == nil {
		return StateDead
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inst == nil {
		return StateDead
	}
	return StateLive
}

// SetVariable applies one variable to the live engine and returns the handle
// for chaining.
func (h *Handle) SetVariable(name, value string) (*Handle, error) {
	if h == nil {
		return nil, &LivenessError{Op: "set variable"}
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	inst, err := h.live("set variable")
	if err != nil {
		return nil, err
	}
	if name == "" || !inst.SetVariable(name, value) {
		h.log.Warn().Str("name", name).Str("value", value).Msg("Variable rejected")
		return nil, &InvalidVariableError{Name: name, Value: value}
	}
	return h, nil
}

// Info reports the data path and the available and loaded languages.
func (h *Handle) Info() (Info, error) {
	if h == nil {
		return Info{}, &LivenessError{Op: "engine info"}
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	inst, err := h.live("engine info")
	if err != nil {
		return Info{}, err
	}
	return Info{
		DataPath:  inst.DataPath(),
		Loaded:    nonNil(inst.LoadedLanguages()),
		Available: nonNil(inst.AvailableLanguages()),
	}, nil
}

// DumpVariables writes every current variable value to path.
func (h *Handle) DumpVariables(path string) (string, error) {
	if h == nil {
		return "", &LivenessError{Op: "dump variables"}
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	inst, err := h.live("dump variables")
	if err != nil {
		return "", err
	}
	if path == "" || !inst.PrintVariables(path) {
		return "", &IOError{Path: path}
	}
	return path, nil
}

// Close ends the engine. It is idempotent; later calls on the handle fail with
// a LivenessError.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inst == nil {
		return nil
	}
	h.inst.End()
	h.inst = nil
	h.log.Debug().Msg("Engine released")
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
