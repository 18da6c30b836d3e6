package api

import (
	"fmt"
	"time"

	"github.com/Caia-Tech/caia-ocr/internal/service"
	"github.com/Caia-Tech/caia-ocr/internal/temporal/workflows"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
)

// BatchRequest starts a batch recognition workflow. Image data is base64 in
// JSON.
type BatchRequest struct {
	Language string                 `json:"language"`
	DataPath string                 `json:"data_path"`
	Options  []ocr.Option           `json:"options"`
	Format   string                 `json:"format"`
	Images   []workflows.BatchImage `json:"images"`
}

// BatchResponse represents the response for a started batch
type BatchResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	Images     int    `json:"images"`
}

// BatchStatusResponse represents the status of a batch workflow
type BatchStatusResponse struct {
	WorkflowID string                 `json:"workflow_id"`
	Status     string                 `json:"status"`
	StartTime  time.Time              `json:"start_time"`
	CloseTime  *time.Time             `json:"close_time,omitempty"`
	Result     *workflows.BatchOutput `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func (h *Handlers) requireTemporal() error {
	if h.temporal == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Batch recognition requires a temporal worker")
	}
	return nil
}

// CreateBatch starts a BatchRecognitionWorkflow.
func (h *Handlers) CreateBatch(c *fiber.Ctx) error {
	if err := h.requireTemporal(); err != nil {
		return err
	}

	var req BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}
	if len(req.Images) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one image is required",
		})
	}
	if _, err := ocr.ParseFormat(req.Format); err != nil {
		return err
	}
	if err := checkEngineRequest(service.EngineRequest{DataPath: req.DataPath, Options: req.Options}); err != nil {
		return err
	}

	workflowID := fmt.Sprintf("batch-%s", uuid.New().String())
	we, err := h.temporal.ExecuteWorkflow(c.UserContext(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.taskQueue,
	}, workflows.BatchRecognitionWorkflow, workflows.BatchInput{
		Language: req.Language,
		DataPath: req.DataPath,
		Options:  req.Options,
		Format:   req.Format,
		Images:   req.Images,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("Failed to start batch workflow")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to start batch recognition",
			"details": err.Error(),
		})
	}

	h.logger.Info().Str("workflow_id", workflowID).Int("images", len(req.Images)).Msg("Started batch recognition workflow")
	return c.Status(fiber.StatusAccepted).JSON(BatchResponse{
		WorkflowID: we.GetID(),
		RunID:      we.GetRunID(),
		Images:     len(req.Images),
	})
}

// GetBatch returns the status of a batch workflow and its result once it
// completed.
func (h *Handlers) GetBatch(c *fiber.Ctx) error {
	if err := h.requireTemporal(); err != nil {
		return err
	}

	workflowID := c.Params("id")
	ctx := c.UserContext()
	resp, err := h.temporal.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		h.logger.Debug().Err(err).Str("workflow_id", workflowID).Msg("Failed to describe workflow")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":       "Workflow not found",
			"workflow_id": workflowID,
		})
	}

	info := resp.GetWorkflowExecutionInfo()
	status := BatchStatusResponse{
		WorkflowID: workflowID,
		Status:     info.GetStatus().String(),
		StartTime:  info.GetStartTime().AsTime(),
	}
	if info.GetCloseTime() != nil {
		closeTime := info.GetCloseTime().AsTime()
		status.CloseTime = &closeTime
	}

	switch status.Status {
	case "Completed":
		var out workflows.BatchOutput
		if err := h.temporal.GetWorkflow(ctx, workflowID, "").Get(ctx, &out); err != nil {
			status.Error = err.Error()
		} else {
			status.Result = &out
		}
	case "Failed":
		if err := h.temporal.GetWorkflow(ctx, workflowID, "").Get(ctx, nil); err != nil {
			status.Error = err.Error()
		}
	}
	return c.JSON(status)
}
