package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/enrich-engine/internal/csvenc"
	"github.com/kursadbilgin/enrich-engine/internal/domain"
	"github.com/kursadbilgin/enrich-engine/internal/provider"
)

const maxUploadBytes = 5 << 20

type BatchService interface {
	CreateBatch(ctx context.Context, email string, identifiers []string, originalCSV []byte) (*domain.Batch, error)
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
}

type ResultService interface {
	ResultsCSV(ctx context.Context, batchID string) ([]byte, error)
}

type CreditsClient interface {
	Credits(ctx context.Context) (*provider.CreditsResult, error)
}

type BatchHandler struct {
	batches BatchService
	results ResultService
	credits CreditsClient
}

func NewBatchHandler(batches BatchService, results ResultService, credits CreditsClient) (*BatchHandler, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	if results == nil {
		return nil, fmt.Errorf("result service is required")
	}
	return &BatchHandler{batches: batches, results: results, credits: credits}, nil
}

func RegisterBatchRoutes(router fiber.Router, batches BatchService, results ResultService, credits CreditsClient) error {
	h, err := NewBatchHandler(batches, results, credits)
	if err != nil {
		return err
	}

	router.Get("/", h.Index)

	v1 := router.Group("/v1")
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/batches/:batchId", h.GetBatch)
	v1.Get("/batches/:batchId/results.csv", h.DownloadResults)
	v1.Get("/batches/:batchId/original.csv", h.DownloadOriginal)
	v1.Get("/credits", h.GetCredits)

	return nil
}

type batchErrorResponse struct {
	Stage   string    `json:"stage"`
	Item    string    `json:"item,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type submissionResponse struct {
	Item      string `json:"item"`
	Success   bool   `json:"success"`
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type batchResponse struct {
	BatchID      string               `json:"batchId"`
	Email        string               `json:"email"`
	Status       string               `json:"status"`
	TotalItems   int                  `json:"totalItems"`
	PendingCount int                  `json:"pendingCount"`
	Received     int                  `json:"received"`
	Errors       []batchErrorResponse `json:"errors"`
	Submissions  []submissionResponse `json:"submissions"`
	CreatedAt    time.Time            `json:"createdAt,omitempty"`
	UpdatedAt    time.Time            `json:"updatedAt,omitempty"`
}

// Index serves a minimal upload form so a batch can be started from a
// browser without extra tooling.
func (h *BatchHandler) Index(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(fiber.StatusOK).SendString(indexPage)
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.FormValue("email"))
	if email == "" {
		return toHTTPError(fmt.Errorf("%w: email is required", domain.ErrValidation))
	}

	fileHeader, err := c.FormFile("csv_file")
	if err != nil {
		return toHTTPError(fmt.Errorf("%w: csv_file is required", domain.ErrValidation))
	}
	if fileHeader.Size > maxUploadBytes {
		return toHTTPError(fmt.Errorf("%w: csv_file exceeds %d bytes", domain.ErrValidation, maxUploadBytes))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	originalCSV, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if len(originalCSV) > maxUploadBytes {
		return toHTTPError(fmt.Errorf("%w: csv_file exceeds %d bytes", domain.ErrValidation, maxUploadBytes))
	}

	identifiers, err := csvenc.ParseIdentifiers(bytes.NewReader(originalCSV))
	if err != nil {
		return toHTTPError(err)
	}

	batch, err := h.batches.CreateBatch(c.Context(), email, identifiers, originalCSV)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("batchId"))
	batch, err := h.batches.GetByID(c.Context(), batchID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) DownloadResults(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("batchId"))
	resultsCSV, err := h.results.ResultsCSV(c.Context(), batchID)
	if err != nil {
		return toHTTPError(err)
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=results_%s.csv", batchID))
	return c.Status(fiber.StatusOK).Send(resultsCSV)
}

func (h *BatchHandler) DownloadOriginal(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("batchId"))
	batch, err := h.batches.GetByID(c.Context(), batchID)
	if err != nil {
		return toHTTPError(err)
	}
	if len(batch.OriginalCSV) == 0 {
		return toHTTPError(fmt.Errorf("%w: batch %s kept no original upload", domain.ErrNotFound, batchID))
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=original_%s.csv", batchID))
	return c.Status(fiber.StatusOK).Send(batch.OriginalCSV)
}

// GetCredits proxies the provider's credit balance so the UI never needs the
// provider key.
func (h *BatchHandler) GetCredits(c *fiber.Ctx) error {
	if h.credits == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "credits lookup is not configured")
	}

	result, err := h.credits.Credits(c.Context())
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	if !result.OK {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(result)
}

func toBatchResponse(b *domain.Batch) batchResponse {
	if b == nil {
		return batchResponse{}
	}

	resp := batchResponse{
		BatchID:      b.ID,
		Email:        b.Email,
		Status:       b.Status.String(),
		TotalItems:   b.TotalItems,
		PendingCount: len(b.Pending),
		Received:     b.Received,
		Errors:       make([]batchErrorResponse, 0, len(b.Errors)),
		Submissions:  make([]submissionResponse, 0, len(b.Submissions)),
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
	for _, e := range b.Errors {
		resp.Errors = append(resp.Errors, batchErrorResponse{
			Stage:   string(e.Stage),
			Item:    e.Item,
			Message: e.Message,
			At:      e.At,
		})
	}
	for _, s := range b.Submissions {
		resp.Submissions = append(resp.Submissions, submissionResponse{
			Item:      s.Item,
			Success:   s.Success,
			RequestID: s.RequestID,
			Error:     s.Error,
		})
	}
	return resp
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>Batch Enrichment</title></head>
<body>
<h2>Submit a batch</h2>
<form action="/v1/batches" method="post" enctype="multipart/form-data">
  <p><label>Email: <input type="email" name="email" required></label></p>
  <p><label>CSV file: <input type="file" name="csv_file" accept=".csv" required></label></p>
  <p><button type="submit">Upload</button></p>
</form>
<p>The CSV must contain one LinkedIn profile URL per line. Results are
emailed when every submitted profile has been processed.</p>
</body>
</html>`
