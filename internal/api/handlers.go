package api

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-ocr/internal/service"
	"github.com/Caia-Tech/caia-ocr/pkg/hocr"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
)

// Handlers contains the HTTP handlers for the API
type Handlers struct {
	svc       *service.Service
	temporal  client.Client
	taskQueue string
	dumpDir   string
	logger    zerolog.Logger
}

// HandlerOptions configures Handlers. Temporal may be nil, in which case the
// batch endpoints answer 503.
type HandlerOptions struct {
	Temporal  client.Client
	TaskQueue string
	DumpDir   string
	Logger    zerolog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc *service.Service, opts HandlerOptions) *Handlers {
	dumpDir := opts.DumpDir
	if dumpDir == "" {
		dumpDir = os.TempDir()
	}
	return &Handlers{
		svc:       svc,
		temporal:  opts.Temporal,
		taskQueue: opts.TaskQueue,
		dumpDir:   dumpDir,
		logger:    opts.Logger.With().Str("component", "api").Logger(),
	}
}

// Health returns the service health status
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"service":   "caia-ocr",
		"backend":   h.svc.Backend().Name(),
		"version":   h.svc.Version(),
		"engines":   len(h.svc.Engines(c.UserContext())),
		"timestamp": time.Now().UTC(),
	})
}

// Version reports the engine version.
func (h *Handlers) Version(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version": h.svc.Version(),
		"backend": h.svc.Backend().Name(),
	})
}

// CreateEngineResponse is the response of CreateEngine.
type CreateEngineResponse struct {
	ID      string `json:"id"`
	Backend string `json:"backend"`
}

// CreateEngine initializes and registers an engine. An empty body creates an
// engine with the configured defaults.
func (h *Handlers) CreateEngine(c *fiber.Ctx) error {
	var req service.EngineRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
		}
	}

	if err := checkEngineRequest(req); err != nil {
		return err
	}

	id, err := h.svc.CreateEngine(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(CreateEngineResponse{
		ID:      id,
		Backend: h.svc.Backend().Name(),
	})
}

// ListEngines describes every registered engine.
func (h *Handlers) ListEngines(c *fiber.Ctx) error {
	engines := h.svc.Engines(c.UserContext())
	return c.JSON(fiber.Map{
		"engines": engines,
		"count":   len(engines),
	})
}

// GetEngine describes one engine including its languages.
func (h *Handlers) GetEngine(c *fiber.Ctx) error {
	details, err := h.svc.EngineInfo(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(details)
}

// DeleteEngine releases an engine.
func (h *Handlers) DeleteEngine(c *fiber.Ctx) error {
	if err := h.svc.ReleaseEngine(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SetVariableRequest is the body of SetVariable.
type SetVariableRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SetVariable applies one variable to an engine.
func (h *Handlers) SetVariable(c *fiber.Ctx) error {
	var req SetVariableRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}

	if err := checkVariable(req.Name); err != nil {
		return err
	}

	id := c.Params("id")
	if err := h.svc.SetVariable(c.UserContext(), id, req.Name, req.Value); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"id":    id,
		"name":  req.Name,
		"value": req.Value,
	})
}

// RecognizeResponse is the response of Recognize. Words and MeanConfidence
// are filled for hOCR output.
type RecognizeResponse struct {
	ID             string   `json:"id"`
	Format         string   `json:"format"`
	Language       string   `json:"language"`
	Text           string   `json:"text"`
	DurationMs     int64    `json:"duration_ms"`
	Words          *int     `json:"words,omitempty"`
	MeanConfidence *float64 `json:"mean_confidence,omitempty"`
}

// Recognize runs recognition over a multipart "file" upload or the raw
// request body.
func (h *Handlers) Recognize(c *fiber.Ctx) error {
	format, err := ocr.ParseFormat(c.Query("format"))
	if err != nil {
		return err
	}

	image, err := h.readImage(c)
	if err != nil {
		return err
	}
	if len(image) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "No image provided")
	}

	id := c.Params("id")
	res, err := h.svc.Recognize(c.UserContext(), id, ocr.FromBytes(image), format)
	if err != nil {
		return err
	}

	resp := RecognizeResponse{
		ID:         id,
		Format:     format.String(),
		Language:   res.Language,
		Text:       res.Text,
		DurationMs: res.Duration.Milliseconds(),
	}
	if format == ocr.FormatMarkup {
		doc, err := hocr.ParseString(res.Text)
		if err != nil {
			h.logger.Debug().Err(err).Str("handle_id", id).Msg("hOCR output not parseable")
		} else {
			words := len(doc.Words())
			confidence := doc.MeanConfidence()
			resp.Words = &words
			resp.MeanConfidence = &confidence
		}
	}
	return c.JSON(resp)
}

func (h *Handlers) readImage(c *fiber.Ctx) ([]byte, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return c.Body(), nil
	}

	file, err := c.FormFile("file")
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "No file uploaded: "+err.Error())
	}
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read uploaded file: %w", err)
	}
	return content, nil
}

// DumpRequest is the body of DumpVariables. Path is reduced to its base name
// inside the dump directory.
type DumpRequest struct {
	Path string `json:"path"`
}

// DumpVariables writes an engine's variables to a file in the dump directory.
func (h *Handlers) DumpVariables(c *fiber.Ctx) error {
	var req DumpRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
		}
	}

	id := c.Params("id")
	name := filepath.Base(req.Path)
	if req.Path == "" || name == "." || name == string(filepath.Separator) || name == ".." {
		name = id + "-variables.txt"
	}
	if err := os.MkdirAll(h.dumpDir, 0o755); err != nil {
		return &ocr.IOError{Path: h.dumpDir, Err: err}
	}

	path, err := h.svc.DumpVariables(c.UserContext(), id, filepath.Join(h.dumpDir, name))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"id": id, "path": path})
}

// ValidateOptionsRequest carries positional names and values.
type ValidateOptionsRequest struct {
	Names  []string `json:"names"`
	Values []string `json:"values"`
}

// ValidateOptions dry-runs option pairs against the backend.
func (h *Handlers) ValidateOptions(c *fiber.Ctx) error {
	var req ValidateOptionsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}

	for _, name := range req.Names {
		if err := checkVariable(name); err != nil {
			return err
		}
	}

	accepted, err := h.svc.ValidateOptions(c.UserContext(), req.Names, req.Values)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"accepted": accepted})
}

// GetMetrics returns the collected operation summary.
func (h *Handlers) GetMetrics(c *fiber.Ctx) error {
	m := h.svc.Metrics()
	return c.JSON(fiber.Map{
		"metrics_summary":  m.GetMetricsSummary(),
		"total_operations": len(m.GetMetrics()),
	})
}

// ClearMetrics clears all collected metrics
func (h *Handlers) ClearMetrics(c *fiber.Ctx) error {
	h.svc.Metrics().ClearMetrics()
	return c.JSON(fiber.Map{
		"message": "Metrics cleared successfully",
	})
}
