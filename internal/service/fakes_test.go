package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/kursadbilgin/enrich-engine/internal/domain"
	"github.com/kursadbilgin/enrich-engine/internal/provider"
	"github.com/kursadbilgin/enrich-engine/internal/repository"
)

type fakeBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*domain.Batch
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: map[string]*domain.Batch{}}
}

func (r *fakeBatchRepo) Create(_ context.Context, b *domain.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[b.ID]; ok {
		return domain.ErrConflict
	}
	r.batches[b.ID] = copyBatch(b)
	return nil
}

func (r *fakeBatchRepo) GetByID(_ context.Context, id string) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyBatch(b), nil
}

func (r *fakeBatchRepo) RegisterPending(_ context.Context, batchID, requestID string, sub domain.SubmissionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Pending = append(b.Pending, requestID)
	b.Submissions = append(b.Submissions, sub)
	return nil
}

func (r *fakeBatchRepo) MarkSubmissionError(_ context.Context, batchID string, sub domain.SubmissionRecord, batchErr domain.BatchError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Submissions = append(b.Submissions, sub)
	b.Errors = append(b.Errors, batchErr)
	return nil
}

func (r *fakeBatchRepo) RemovePending(_ context.Context, batchID, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Pending = removeID(b.Pending, requestID)
	return nil
}

func (r *fakeBatchRepo) ApplyCallback(_ context.Context, batchID, requestID string, errs []domain.BatchError) (*repository.CallbackApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	before := len(b.Pending)
	b.Pending = removeID(b.Pending, requestID)
	if len(b.Pending) < before {
		b.Received++
	}
	b.Errors = append(b.Errors, errs...)

	app := &repository.CallbackApplication{}
	if len(b.Pending) == 0 && b.Status == domain.BatchStatusProcessing {
		b.Status = domain.BatchStatusComplete
		app.CompletedNow = true
	}
	app.Batch = copyBatch(b)
	return app, nil
}

func (r *fakeBatchRepo) AppendError(_ context.Context, batchID string, batchErr domain.BatchError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Errors = append(b.Errors, batchErr)
	return nil
}

func copyBatch(b *domain.Batch) *domain.Batch {
	dup := *b
	dup.Pending = append([]string(nil), b.Pending...)
	dup.Errors = append(domain.BatchErrorList(nil), b.Errors...)
	dup.Submissions = append(domain.SubmissionList(nil), b.Submissions...)
	return &dup
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

type fakeCorrelationRepo struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakeCorrelationRepo() *fakeCorrelationRepo {
	return &fakeCorrelationRepo{entries: map[string]string{}}
}

func (r *fakeCorrelationRepo) Register(_ context.Context, requestID, batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[requestID]; ok {
		return domain.ErrConflict
	}
	r.entries[requestID] = batchID
	return nil
}

func (r *fakeCorrelationRepo) Resolve(_ context.Context, requestID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batchID, ok := r.entries[requestID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return batchID, nil
}

type fakeResultRepo struct {
	mu         sync.Mutex
	raw        map[string][]byte
	rows       []domain.ResultRow
	appendErr  error
	payloadErr error
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{raw: map[string][]byte{}}
}

func rawKey(batchID, requestID string) string {
	return batchID + "/" + requestID
}

func (r *fakeResultRepo) RecordRawPayload(_ context.Context, batchID, requestID string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.payloadErr != nil {
		return r.payloadErr
	}
	key := rawKey(batchID, requestID)
	if _, ok := r.raw[key]; ok {
		return domain.ErrDuplicate
	}
	r.raw[key] = append([]byte(nil), payload...)
	return nil
}

func (r *fakeResultRepo) GetRawPayload(_ context.Context, batchID, requestID string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payload, ok := r.raw[rawKey(batchID, requestID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return payload, nil
}

func (r *fakeResultRepo) AppendRows(_ context.Context, rows []domain.ResultRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.rows = append(r.rows, rows...)
	return nil
}

func (r *fakeResultRepo) ListRows(_ context.Context, batchID string) ([]domain.ResultRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ResultRow
	for _, row := range r.rows {
		if row.BatchID == batchID {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

type sentResult struct {
	to      string
	batchID string
	csv     []byte
}

type fakeNotifier struct {
	mu        sync.Mutex
	results   []sentResult
	failures  []string
	resultErr error
}

func (n *fakeNotifier) SendResult(_ context.Context, to, batchID string, resultsCSV []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.resultErr != nil {
		return n.resultErr
	}
	n.results = append(n.results, sentResult{to: to, batchID: batchID, csv: append([]byte(nil), resultsCSV...)})
	return nil
}

func (n *fakeNotifier) SendFailure(_ context.Context, _, batchID, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, batchID+": "+reason)
	return nil
}

func (n *fakeNotifier) resultCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.results)
}

type fakeSubmitter struct {
	mu      sync.Mutex
	calls   int
	outcome func(identifier string) (*provider.SubmissionResult, error)
}

func (s *fakeSubmitter) Submit(_ context.Context, identifier, _ string) (*provider.SubmissionResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.outcome != nil {
		return s.outcome(identifier)
	}
	return &provider.SubmissionResult{RequestID: "req-" + identifier}, nil
}

func (s *fakeSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeLimiter struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (l *fakeLimiter) Allow(context.Context, string) (bool, error) {
	return l.err == nil, l.err
}

func (l *fakeLimiter) Wait(context.Context, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits++
	return l.err
}

func (l *fakeLimiter) waitCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waits
}

var errBoom = fmt.Errorf("boom")
