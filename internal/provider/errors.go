package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/kursadbilgin/enrich-engine/internal/domain"
)

// ProviderError classifies submission failures as transient/permanent and
// keeps the diagnostics bundle when one was available.
type ProviderError struct {
	StatusCode  int
	Message     string
	Transient   bool
	Diagnostics *domain.SubmissionDiagnostics
	Cause       error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Reason returns the human-readable failure text recorded on the batch.
func (e *ProviderError) Reason() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "provider call failed"
}

// DiagnosticsOf extracts the diagnostics bundle from a submission error,
// when the call got far enough to produce one.
func DiagnosticsOf(err error) *domain.SubmissionDiagnostics {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Diagnostics
	}
	return nil
}

// IsTransient reports whether a submission failure was transient. Failed
// submissions are never retried automatically; the classification is kept
// for diagnostics only.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
