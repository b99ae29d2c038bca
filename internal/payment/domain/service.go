package domain

import (
	"context"
	"errors"
	"net/http"
)

const (
	OutcomeProcessed        = "processed"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeIgnored          = "ignored"
)

type IngestResult struct {
	Outcome         string
	ProviderEventID string
	EventType       string
	PaymentID       string
	UserID          string
	LoadsGranted    int64
}

// ReplaySummary counts the outcome of one sweep over unprocessed deliveries.
type ReplaySummary struct {
	Scanned   int
	Processed int
	Failed    int
}

type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (IngestResult, error)
	ReplayPending(ctx context.Context, provider string, limit int) (ReplaySummary, error)
}

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrPaymentInProgress     = errors.New("payment_in_progress")
	ErrUnattributedPayment   = errors.New("unattributed_payment")
)
