package ocr

import "fmt"

// ValidateOptions checks each positional name/value pair against a throwaway
// parameter table and reports acceptance per pair. No live engine is touched.
func ValidateOptions(b Backend, names, values []string) ([]bool, error) {
	if len(names) != len(values) {
		return nil, &ArgumentError{Message: fmt.Sprintf("names and values must have equal length, got %d and %d", len(names), len(values))}
	}
	if b == nil {
		return nil, &ArgumentError{Message: "backend must not be nil"}
	}
	table, err := b.NewParamTable()
	if err != nil {
		return nil, fmt.Errorf("create parameter table: %w", err)
	}
	defer table.Close()

	ok := make([]bool, len(names))
	for i := range names {
		ok[i] = names[i] != "" && table.Set(names[i], values[i])
	}
	return ok, nil
}

// ValidateConfig runs ValidateOptions over cfg.Options and returns the
// rejected options.
func ValidateConfig(b Backend, cfg Config) ([]Option, error) {
	names := make([]string, len(cfg.Options))
	values := make([]string, len(cfg.Options))
	for i, opt := range cfg.Options {
		names[i], values[i] = opt.Name, opt.Value
	}
	ok, err := ValidateOptions(b, names, values)
	if err != nil {
		return nil, err
	}
	var rejected []Option
	for i, accepted := range ok {
		if !accepted {
			rejected = append(rejected, cfg.Options[i])
		}
	}
	return rejected, nil
}
