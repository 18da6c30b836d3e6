package workflows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// BatchImage is one image of a batch. Data wins over Path when both are set.
type BatchImage struct {
	Name string `json:"name"`
	Data []byte `json:"data,omitempty"`
	Path string `json:"path,omitempty"`
}

// BatchInput describes a batch recognized with one engine configuration.
type BatchInput struct {
	Language string       `json:"language"`
	DataPath string       `json:"data_path,omitempty"`
	Options  []ocr.Option `json:"options,omitempty"`
	Format   string       `json:"format,omitempty"`
	Images   []BatchImage `json:"images"`
}

// ImageResult is the outcome for one image. Error is empty on success.
type ImageResult struct {
	Name      string `json:"name"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

type BatchOutput struct {
	Results   []ImageResult `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

// RecognizeInput is the input of RecognizeImageActivity.
type RecognizeInput struct {
	Language string       `json:"language"`
	DataPath string       `json:"data_path,omitempty"`
	Options  []ocr.Option `json:"options,omitempty"`
	Format   string       `json:"format,omitempty"`
	Image    BatchImage   `json:"image"`
}

type RecognizeOutput struct {
	Name       string `json:"name"`
	Text       string `json:"text"`
	Language   string `json:"language"`
	DurationMs int64  `json:"duration_ms"`
}

// ValidateOptionsInput is the input of ValidateOptionsActivity.
type ValidateOptionsInput struct {
	Names  []string `json:"names"`
	Values []string `json:"values"`
}

type ValidateOptionsOutput struct {
	Accepted []bool `json:"accepted"`
}

// Activity names
const (
	RecognizeImageActivityName  = "RecognizeImageActivity"
	ValidateOptionsActivityName = "ValidateOptionsActivity"
)

// RecognitionActivityOptions is the retry policy of recognition activities.
// Errors that will fail the same way again are not retried.
func RecognitionActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			InitialInterval:        1 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			NonRetryableErrorTypes: ocr.NonRetryableErrorTypes,
		},
	}
}

// BatchRecognitionWorkflow validates the batch options and then recognizes
// every image. A rejected option fails the workflow; a failed image is
// recorded in its result and the batch continues.
func BatchRecognitionWorkflow(ctx workflow.Context, input BatchInput) (BatchOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting batch recognition", "images", len(input.Images), "language", input.Language)

	if _, err := ocr.ParseFormat(input.Format); err != nil {
		return BatchOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), "ArgumentError", err)
	}
	for i, img := range input.Images {
		if len(img.Data) == 0 && img.Path == "" {
			err := fmt.Errorf("image %d (%s) has neither data nor path", i, img.Name)
			return BatchOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), "ArgumentError", err)
		}
	}

	ctx = workflow.WithActivityOptions(ctx, RecognitionActivityOptions())

	if len(input.Options) > 0 {
		validate := ValidateOptionsInput{
			Names:  make([]string, len(input.Options)),
			Values: make([]string, len(input.Options)),
		}
		for i, opt := range input.Options {
			validate.Names[i], validate.Values[i] = opt.Name, opt.Value
		}
		var validated ValidateOptionsOutput
		if err := workflow.ExecuteActivity(ctx, ValidateOptionsActivityName, validate).Get(ctx, &validated); err != nil {
			return BatchOutput{}, err
		}
		var rejected []string
		for i, ok := range validated.Accepted {
			if !ok {
				rejected = append(rejected, input.Options[i].Name)
			}
		}
		if len(rejected) > 0 {
			err := fmt.Errorf("rejected engine options: %s", strings.Join(rejected, ", "))
			return BatchOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidVariableError", err)
		}
	}

	futures := make([]workflow.Future, len(input.Images))
	for i, img := range input.Images {
		futures[i] = workflow.ExecuteActivity(ctx, RecognizeImageActivityName, RecognizeInput{
			Language: input.Language,
			DataPath: input.DataPath,
			Options:  input.Options,
			Format:   input.Format,
			Image:    img,
		})
	}

	output := BatchOutput{Results: make([]ImageResult, len(input.Images))}
	for i, future := range futures {
		result := ImageResult{Name: input.Images[i].Name}
		var recognized RecognizeOutput
		if err := future.Get(ctx, &recognized); err != nil {
			logger.Warn("Image recognition failed", "image", result.Name, "error", err)
			result.Error = err.Error()
			result.ErrorType = errorType(err)
			output.Failed++
		} else {
			result.Text = recognized.Text
			output.Succeeded++
		}
		output.Results[i] = result
	}

	logger.Info("Batch recognition completed", "succeeded", output.Succeeded, "failed", output.Failed)
	return output, nil
}

func errorType(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type()
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "Timeout"
	}
	return ""
}
