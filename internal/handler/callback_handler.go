package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/enrich-engine/internal/observability"
	"github.com/kursadbilgin/enrich-engine/internal/service"
)

// requestIDHeader carries the provider's correlation token on callback
// deliveries.
const requestIDHeader = "Request-Id"

type CallbackService interface {
	Ingest(ctx context.Context, requestID string, body []byte) (*service.IngestResult, error)
}

type CallbackHandler struct {
	service CallbackService
}

func NewCallbackHandler(svc CallbackService) (*CallbackHandler, error) {
	if svc == nil {
		return nil, fmt.Errorf("callback service is required")
	}
	return &CallbackHandler{service: svc}, nil
}

func RegisterCallbackRoutes(router fiber.Router, svc CallbackService) error {
	h, err := NewCallbackHandler(svc)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/callbacks/person", h.ReceiveCallback)

	return nil
}

// ReceiveCallback absorbs one provider delivery. Unknown and duplicate
// deliveries are acknowledged with 200 so the provider stops retrying;
// internal failures return 5xx so it retries later.
func (h *CallbackHandler) ReceiveCallback(c *fiber.Ctx) error {
	requestID := strings.TrimSpace(c.Get(requestIDHeader))
	if requestID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Request-Id header is required")
	}

	ctx := observability.WithCorrelationID(c.Context(), requestID)
	result, err := h.service.Ingest(ctx, requestID, c.Body())
	if err != nil {
		return toHTTPError(err)
	}

	switch result.Outcome {
	case service.IngestUnknown:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ignored",
			"reason": "unknown request id",
		})
	case service.IngestDuplicate:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "duplicate",
			"batchId": result.BatchID,
		})
	default:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "ok",
			"batchId":   result.BatchID,
			"completed": result.Completed,
		})
	}
}
