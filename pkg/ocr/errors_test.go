package ocr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypes(t *testing.T) {
	cases := []struct {
		err       interface{ ErrorType() string }
		retryable bool
	}{
		{&EngineInitError{Language: "eng"}, false},
		{&LivenessError{Op: "recognize"}, false},
		{&InvalidVariableError{Name: "x"}, false},
		{&ArgumentError{Message: "bad"}, false},
		{&ImageDecodeError{Source: "buf"}, false},
		{&RecognitionError{Format: FormatText, Err: errors.New("boom")}, true},
		{&IOError{Path: "/x"}, true},
	}
	for _, c := range cases {
		assert.Equal(t, !c.retryable, contains(NonRetryableErrorTypes, c.err.ErrorType()), c.err.ErrorType())
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestLivenessErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &LivenessError{Op: "engine info"})
	assert.ErrorIs(t, err, ErrEngineDead)
	assert.Contains(t, err.Error(), "engine info")
}

func TestEngineInitErrorMessage(t *testing.T) {
	cause := errors.New("TessBaseAPIInit4 returned -1")
	err := &EngineInitError{Language: "deu", DataPath: "/data", Err: cause}
	assert.Contains(t, err.Error(), "language 'deu'")
	assert.Contains(t, err.Error(), "data path '/data'")
	assert.ErrorIs(t, err, cause)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "text": FormatText, "hocr": FormatMarkup, "markup": FormatMarkup} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("pdf")
	var argErr *ArgumentError
	assert.ErrorAs(t, err, &argErr)
	assert.Equal(t, "hocr", FormatMarkup.String())
}

func TestOptionsFromPairs(t *testing.T) {
	opts, err := OptionsFromPairs([]string{"a", "b"}, []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, []Option{{"a", "1"}, {"b", "2"}}, opts)

	_, err = OptionsFromPairs([]string{"a"}, nil)
	var argErr *ArgumentError
	assert.ErrorAs(t, err, &argErr)
}

func TestOptionsFromMapSorted(t *testing.T) {
	opts := OptionsFromMap(map[string]string{"z": "1", "a": "2", "m": "3"})
	assert.Equal(t, []Option{{"a", "2"}, {"m", "3"}, {"z", "1"}}, opts)
}
