package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/enrich-engine/internal/domain"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	maxBodySnippet       = 512
)

type personRequest struct {
	Items       []string `json:"items"`
	CallbackURL string   `json:"callbackUrl"`
}

// SignalHireClient submits identifiers to the SignalHire Person API and
// proxies the credits endpoint.
type SignalHireClient struct {
	client    *resty.Client
	baseURL   string
	apiPrefix string
	apiKey    string
}

func NewSignalHireClient(baseURL, apiPrefix, apiKey string) (*SignalHireClient, error) {
	client := resty.New()
	client.SetTimeout(defaultSubmitTimeout)
	client.SetRetryCount(0)

	return NewSignalHireClientWithClient(baseURL, apiPrefix, apiKey, client)
}

func NewSignalHireClientWithClient(baseURL, apiPrefix, apiKey string, client *resty.Client) (*SignalHireClient, error) {
	trimmedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBase == "" {
		return nil, fmt.Errorf("provider base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedBase); err != nil {
		return nil, fmt.Errorf("invalid provider base url: %w", err)
	}
	// A missing credential is a configuration error; callers must fail
	// startup instead of surfacing it per request.
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("provider api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSubmitTimeout)
	}
	client.SetRetryCount(0)

	return &SignalHireClient{
		client:    client,
		baseURL:   trimmedBase,
		apiPrefix: strings.TrimSpace(apiPrefix),
		apiKey:    strings.TrimSpace(apiKey),
	}, nil
}

// Submit sends one identifier to the Person API, requesting an asynchronous
// callback at callbackURL. The returned request id is the only handle a
// later callback can be matched by, so a 2xx response without one is a
// failure.
func (c *SignalHireClient) Submit(ctx context.Context, identifier, callbackURL string) (*SubmissionResult, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("provider client is not initialized")
	}
	if strings.TrimSpace(identifier) == "" {
		return nil, fmt.Errorf("%w: identifier is required", domain.ErrValidation)
	}
	if strings.TrimSpace(callbackURL) == "" {
		return nil, fmt.Errorf("%w: callback url is required", domain.ErrValidation)
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("apikey", c.apiKey).
		SetBody(personRequest{Items: []string{identifier}, CallbackURL: callbackURL}).
		Post(c.baseURL + c.apiPrefix + "/person")
	if err != nil {
		if isTimeoutError(err) {
			return nil, &ProviderError{
				Message:   "timeout contacting enrichment provider",
				Transient: true,
				Cause:     err,
			}
		}
		return nil, &ProviderError{
			Message:   "provider request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{Message: "provider returned empty response", Transient: true}
	}

	diagnostics := diagnosticsFromResponse(response)
	statusCode := response.StatusCode()

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{
			StatusCode:  statusCode,
			Message:     providerErrorMessage(statusCode, response.Body()),
			Transient:   isTransientHTTPStatus(statusCode),
			Diagnostics: diagnostics,
		}
	}

	requestID := extractRequestID(response)
	if requestID == "" {
		return nil, &ProviderError{
			StatusCode:  statusCode,
			Message:     "provider accepted submission but returned no request id",
			Diagnostics: diagnostics,
		}
	}

	return &SubmissionResult{
		RequestID:   requestID,
		Diagnostics: *diagnostics,
	}, nil
}

// Credits fetches the remaining provider credits for the configured key.
func (c *SignalHireClient) Credits(ctx context.Context) (*CreditsResult, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("provider client is not initialized")
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("apikey", c.apiKey).
		SetQueryParam("withoutContacts", "true").
		Get(c.baseURL + c.apiPrefix + "/credits")
	if err != nil {
		return nil, &ProviderError{
			Message:   "provider credits request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	result := &CreditsResult{
		OK:          statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices,
		StatusCode:  statusCode,
		ContentType: response.Header().Get("Content-Type"),
	}

	body := response.Body()
	if json.Valid(body) {
		result.Body = json.RawMessage(body)
	} else if len(body) > 0 {
		raw, err := json.Marshal(map[string]string{"raw": bodySnippet(body)})
		if err == nil {
			result.Body = raw
		}
	}

	return result, nil
}

// Request id spellings seen across provider responses; a response header is
// the last resort.
var requestIDFields = []string{"request_id", "Request-Id", "requestId", "id"}

func extractRequestID(response *resty.Response) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(response.Body(), &body); err == nil {
		for _, field := range requestIDFields {
			raw, ok := body[field]
			if !ok {
				continue
			}
			var asString string
			if err := json.Unmarshal(raw, &asString); err == nil && strings.TrimSpace(asString) != "" {
				return strings.TrimSpace(asString)
			}
			var asNumber json.Number
			if err := json.Unmarshal(raw, &asNumber); err == nil && asNumber.String() != "" {
				return asNumber.String()
			}
		}
	}

	for _, key := range []string{"Request-Id", "Request-ID", "request-id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}

func diagnosticsFromResponse(response *resty.Response) *domain.SubmissionDiagnostics {
	headers := make(map[string]string)
	for _, key := range []string{"Content-Type", "Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			headers[strings.ToLower(key)] = value
		}
	}

	return &domain.SubmissionDiagnostics{
		StatusCode: response.StatusCode(),
		Headers:    headers,
		Body:       bodySnippet(response.Body()),
	}
}

func providerErrorMessage(statusCode int, body []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && strings.TrimSpace(parsed.Error) != "" {
		return strings.TrimSpace(parsed.Error)
	}
	return fmt.Sprintf("HTTP %d", statusCode)
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	return false
}

func bodySnippet(body []byte) string {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxBodySnippet {
		snippet = snippet[:maxBodySnippet]
	}
	return snippet
}
