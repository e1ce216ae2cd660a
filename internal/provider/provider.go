package provider

import (
	"context"
	"encoding/json"

	"github.com/kursadbilgin/enrich-engine/internal/domain"
)

// Submitter is the outbound enrichment submission port. A successful call
// performs nothing beyond the provider request; registering the returned
// request id against a batch is the caller's responsibility.
type Submitter interface {
	Submit(ctx context.Context, identifier, callbackURL string) (*SubmissionResult, error)
}

// SubmissionResult carries the correlation token issued by the provider for
// one accepted identifier, plus call metadata for audit and persistence.
type SubmissionResult struct {
	RequestID   string
	Diagnostics domain.SubmissionDiagnostics
}

// CreditsResult mirrors the provider's credits endpoint response.
type CreditsResult struct {
	OK          bool            `json:"ok"`
	StatusCode  int             `json:"statusCode"`
	ContentType string          `json:"contentType,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}
