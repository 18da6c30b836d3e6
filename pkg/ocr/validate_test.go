package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOptions(t *testing.T) {
	stub := &StubBackend{}

	ok, err := ValidateOptions(stub,
		[]string{"tessedit_pageseg_mode", "not_a_variable", "", "load_system_dawg"},
		[]string{"6", "1", "x", "0"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, true}, ok)

	// Validation never creates an engine.
	assert.Zero(t, stub.Stats().Inits)
}

func TestValidateOptionsEmpty(t *testing.T) {
	ok, err := ValidateOptions(&StubBackend{}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, ok)
}

func TestValidateOptionsLengthMismatch(t *testing.T) {
	_, err := ValidateOptions(&StubBackend{}, []string{"a", "b"}, []string{"1"})
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Contains(t, err.Error(), "equal length")
}

func TestValidateConfig(t *testing.T) {
	rejected, err := ValidateConfig(&StubBackend{}, Config{Options: []Option{
		{Name: "user_defined_dpi", Value: "300"},
		{Name: "bogus", Value: "1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []Option{{Name: "bogus", Value: "1"}}, rejected)
}
