package channel

import (
	"context"
	"errors"
	"net/http"

	"linerelay/pkg/relay"
)

// ErrInvalidSignature is returned by webhook parsers for deliveries whose
// signature does not verify.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// BatchHandler routes and dispatches one delivery of classified events.
type BatchHandler interface {
	HandleBatch(context.Context, []relay.InboundEvent) ([]relay.Result, error)
}

// Adapter bridges one polling transport (for example Telegram) into the relay.
type Adapter interface {
	Name() string
	Run(context.Context, BatchHandler) error
}

// WebhookParser verifies one signed webhook delivery and classifies its events.
type WebhookParser interface {
	Name() string
	ParseRequest(*http.Request) ([]relay.InboundEvent, error)
}
