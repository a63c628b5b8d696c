package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"linerelay/pkg/bus"
)

// ErrEventPanicked marks a batch whose processing panicked on some event.
var ErrEventPanicked = errors.New("event processing panicked")

const tracerName = "linerelay/relay"

// HandlerConfig wires one channel's relay pipeline.
type HandlerConfig struct {
	Channel       string
	Directory     SubscriberDirectory
	Locks         LockStoreWriter
	Log           MessageLog
	Messenger     Messenger
	Profiles      ProfileFetcher
	EngineOptions EngineOptions
	Bus           *bus.EventBus
	Logger        *slog.Logger
}

// Result is the per-event report returned by the webhook endpoint.
type Result struct {
	EventID  string `json:"event_id"`
	Kind     Kind   `json:"kind"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Handler routes and dispatches classified events for one channel.
type Handler struct {
	channel    string
	directory  SubscriberDirectory
	engine     *Engine
	dispatcher *Dispatcher
	bus        *bus.EventBus
	tracer     trace.Tracer
	log        *slog.Logger
}

func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Directory == nil {
		return nil, errors.New("subscriber directory is required")
	}
	if cfg.Messenger == nil {
		return nil, errors.New("messenger is required")
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("channel", cfg.Channel)

	opts := cfg.EngineOptions
	if opts.Logger == nil {
		opts.Logger = log
	}

	return &Handler{
		channel:    cfg.Channel,
		directory:  cfg.Directory,
		engine:     NewEngine(cfg.Profiles, opts),
		dispatcher: NewDispatcher(cfg.Messenger, cfg.Log, cfg.Locks, log),
		bus:        cfg.Bus,
		tracer:     otel.Tracer(tracerName),
		log:        log.With("component", "relay.handler"),
	}, nil
}

// Channel returns the channel name the handler serves.
func (h *Handler) Channel() string {
	return h.channel
}

// HandleEvent routes ev and waits for every side effect to settle. Dispatch
// failures are reported in the Result; only a panic yields an error.
func (h *Handler) HandleEvent(ctx context.Context, ev InboundEvent) (result Result, err error) {
	if ev.Channel == "" {
		ev.Channel = h.channel
	}

	ctx, span := h.tracer.Start(ctx, "relay.HandleEvent", trace.WithAttributes(
		attribute.String("relay.channel", ev.Channel),
		attribute.String("relay.event_id", ev.EventID),
		attribute.String("relay.kind", string(ev.Kind)),
	))
	defer span.End()

	result = Result{EventID: ev.EventID, Kind: ev.Kind}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: event %s: %v", ErrEventPanicked, ev.EventID, recovered)
			h.log.Error("Event processing panicked", "event_id", ev.EventID, "panic", fmt.Sprint(recovered), "stack", string(debug.Stack()))
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			result.Status = StatusFailed
			result.Error = CategoryInternal
		}
	}()

	decision := h.engine.Route(ctx, ev, h.directory)
	result.Decision = decision.Name()
	if noop, ok := decision.(NoOp); ok {
		result.Reason = noop.Reason
	}

	outcome := h.dispatcher.Dispatch(ctx, ev, decision)
	result.Status = outcome.Status
	result.Error = Category(outcome.Err)

	span.SetAttributes(
		attribute.String("relay.decision", result.Decision),
		attribute.String("relay.status", result.Status),
	)
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, result.Status)
	}

	h.log.Debug("Event handled", "event_id", ev.EventID, "kind", ev.Kind, "decision", result.Decision, "status", result.Status)
	h.publish(ctx, ev, decision, outcome)

	return result, nil
}

// HandleBatch processes every event concurrently. Results keep input order.
// The returned error is non-nil only when some event panicked; the other
// events still run to completion.
func (h *Handler) HandleBatch(ctx context.Context, events []InboundEvent) ([]Result, error) {
	results := make([]Result, len(events))

	var g errgroup.Group
	for i, ev := range events {
		g.Go(func() error {
			result, err := h.HandleEvent(ctx, ev)
			results[i] = result
			return err
		})
	}

	return results, g.Wait()
}

func (h *Handler) publish(ctx context.Context, ev InboundEvent, decision Decision, outcome Outcome) {
	if h.bus == nil {
		return
	}

	event := bus.Event{
		Channel:  ev.Channel,
		EventID:  ev.EventID,
		SenderID: ev.SenderID,
		Decision: decision.Name(),
		Status:   outcome.Status,
		Error:    Category(outcome.Err),
	}

	switch {
	case outcome.Status == StatusNoOp:
		event.Type = bus.EventEventDropped
	case outcome.Err != nil:
		event.Type = bus.EventDispatchFailed
	default:
		switch decision.(type) {
		case ForwardToUser:
			event.Type = bus.EventMessageForwarded
		case BroadcastToAdmins:
			event.Type = bus.EventMessageBroadcast
		case SetLock:
			event.Type = bus.EventLockSet
		default:
			event.Type = bus.EventReplySent
		}
	}

	// Publishing must not depend on the request context staying alive.
	h.bus.PublishEvent(context.WithoutCancel(ctx), event)
}
