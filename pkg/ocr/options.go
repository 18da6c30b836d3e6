package ocr

import (
	"fmt"
	"sort"
)

// Option is one name/value engine variable.
type Option struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// AdaptiveReset controls whether Recognize clears the adaptive classifier
// before binding an image.
type AdaptiveReset int

const (
	// AdaptiveResetAlways makes every call independent of the previous ones.
	AdaptiveResetAlways AdaptiveReset = iota
	// AdaptiveResetNever keeps what the classifier learned across calls, so
	// results depend on call order.
	AdaptiveResetNever
)

// Config is the configuration set consumed once by New.
type Config struct {
	// DataPath is the tessdata directory. Empty uses the backend's search path.
	DataPath string
	// Language is a Tesseract language code such as "eng" or "eng+deu".
	// Empty means DefaultLanguage.
	Language string
	// ConfigFile is an optional Tesseract config file applied at init.
	ConfigFile string
	// Options are applied at init in order; later duplicates win.
	Options []Option
	// ResetAdaptive is the adaptive classifier policy for Recognize.
	ResetAdaptive AdaptiveReset
	// Decoder overrides the backend's decoder.
	Decoder Decoder
}

func (c Config) withDefaults() Config {
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	return c
}

// OptionsFromPairs zips positional names and values.
func OptionsFromPairs(names, values []string) ([]Option, error) {
	if len(names) != len(values) {
		return nil, &ArgumentError{Message: fmt.Sprintf("names and values must have equal length, got %d and %d", len(names), len(values))}
	}
	opts := make([]Option, len(names))
	for i := range names {
		opts[i] = Option{Name: names[i], Value: values[i]}
	}
	return opts, nil
}

// OptionsFromMap converts a map to options sorted by name so init order is
// stable.
func OptionsFromMap(m map[string]string) []Option {
	opts := make([]Option, 0, len(m))
	for k, v := range m {
		opts = append(opts, Option{Name: k, Value: v})
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].Name < opts[j].Name })
	return opts
}
