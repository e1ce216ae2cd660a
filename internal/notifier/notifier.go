package notifier

import "context"

// Notifier delivers batch outcomes to the user. SendResult is invoked at
// most once per batch, on the transition to complete; SendFailure reports
// ingest failures mid-flight.
type Notifier interface {
	SendResult(ctx context.Context, to, batchID string, resultsCSV []byte) error
	SendFailure(ctx context.Context, to, batchID, reason string) error
}
