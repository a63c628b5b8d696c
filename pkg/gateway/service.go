package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"linerelay/pkg/bus"
	"linerelay/pkg/channel"
	"linerelay/pkg/config"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 3000

	livenessText  = "LINE relay bridge is running"
	deliveryIDKey = "delivery_id"
)

// Webhook mounts one signed-delivery endpoint.
type Webhook struct {
	Path    string
	Parser  channel.WebhookParser
	Handler channel.BatchHandler
}

// Poller runs one polling adapter against its relay handler.
type Poller struct {
	Adapter channel.Adapter
	Handler channel.BatchHandler
}

type Service struct {
	cfg      config.GatewayConfig
	log      *slog.Logger
	bus      *bus.EventBus
	webhooks []Webhook
	pollers  []Poller
	engine   *gin.Engine

	mu            sync.RWMutex
	startedAt     time.Time
	lastEventAt   time.Time
	counters      map[bus.EventType]int64
	channelStates map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	LastEventAt   string                  `json:"last_event_at,omitempty"`
	Events        map[bus.EventType]int64 `json:"events"`
	Channels      map[string]channelState `json:"channels"`
}

type errorResponse struct {
	Error      string `json:"error"`
	DeliveryID string `json:"delivery_id"`
}

func NewService(cfg config.GatewayConfig, webhooks []Webhook, pollers []Poller, eventBus *bus.EventBus, log *slog.Logger) (*Service, error) {
	if len(webhooks) == 0 && len(pollers) == 0 {
		return nil, errors.New("at least one channel is required")
	}
	if log == nil {
		log = slog.Default()
	}

	channelStates := make(map[string]channelState, len(webhooks)+len(pollers))
	for _, hook := range webhooks {
		if hook.Parser == nil || hook.Handler == nil {
			return nil, errors.New("webhook parser and handler are required")
		}
		if !strings.HasPrefix(hook.Path, "/") {
			return nil, fmt.Errorf("webhook path must start with '/': %q", hook.Path)
		}
		channelStates[hook.Parser.Name()] = channelState{}
	}
	for _, poller := range pollers {
		if poller.Adapter == nil || poller.Handler == nil {
			return nil, errors.New("poller adapter and handler are required")
		}
		channelStates[poller.Adapter.Name()] = channelState{}
	}

	s := &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		bus:           eventBus,
		webhooks:      webhooks,
		pollers:       pollers,
		counters:      make(map[bus.EventType]int64),
		channelStates: channelStates,
	}
	s.engine = s.routes()
	return s, nil
}

// Handler exposes the HTTP routes, mainly for tests.
func (s *Service) Handler() http.Handler {
	return s.engine
}

func (s *Service) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.log))

	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, livenessText)
	})
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/readyz", s.handleReady)

	for _, hook := range s.webhooks {
		engine.POST(hook.Path, s.callbackHandler(hook))
	}

	return engine
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if s.bus != nil {
		events, unsubscribe := s.bus.SubscribeEvents(ctx, 0)
		defer unsubscribe()
		go s.consumeEvents(events)
	}

	serverErrors := make(chan error, 1)
	go s.runServer(ctx, serverErrors)

	errCh := make(chan error, len(s.pollers))
	for _, poller := range s.pollers {
		name := poller.Adapter.Name()
		s.setChannelState(name, channelState{Running: true})

		go func() {
			err := poller.Adapter.Run(ctx, poller.Handler)
			s.setChannelState(name, channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", name, err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// callbackHandler verifies one delivery, processes its events as a batch and
// answers with the per-event results. A failed batch is a 500 so the platform
// redelivers it.
func (s *Service) callbackHandler(hook Webhook) gin.HandlerFunc {
	name := hook.Parser.Name()

	return func(c *gin.Context) {
		deliveryID := uuid.NewString()
		c.Set(deliveryIDKey, deliveryID)
		log := s.log.With("channel", name, deliveryIDKey, deliveryID)

		events, err := hook.Parser.ParseRequest(c.Request)
		if err != nil {
			if errors.Is(err, channel.ErrInvalidSignature) {
				log.Warn("Rejected webhook with invalid signature")
				c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid signature", DeliveryID: deliveryID})
				return
			}
			log.Warn("Rejected malformed webhook", "error", err)
			c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed webhook", DeliveryID: deliveryID})
			return
		}

		results, err := hook.Handler.HandleBatch(c.Request.Context(), events)
		if err != nil {
			log.Error("Webhook batch failed", "events", len(events), "error", err)
			c.JSON(http.StatusInternalServerError, errorResponse{Error: "batch failed", DeliveryID: deliveryID})
			return
		}

		log.Info("Webhook processed", "events", len(events))
		c.Header("X-Delivery-Id", deliveryID)
		c.JSON(http.StatusOK, results)
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	log = log.With("component", "gateway.http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			deliveryIDKey, c.GetString(deliveryIDKey),
		)
	}
}

func (s *Service) runServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		host = defaultHost
	}

	port := s.cfg.Port
	if port <= 0 {
		port = defaultPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	for _, hook := range s.webhooks {
		s.setChannelState(hook.Parser.Name(), channelState{Running: true})
	}

	s.log.Info("Gateway server started", "address", addr)
	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		for _, hook := range s.webhooks {
			s.setChannelState(hook.Parser.Name(), channelState{Running: false, Error: err.Error()})
		}
		errCh <- fmt.Errorf("start gateway server: %w", err)
		return
	}

	for _, hook := range s.webhooks {
		s.setChannelState(hook.Parser.Name(), channelState{Running: false})
	}
}

func (s *Service) consumeEvents(events <-chan bus.Event) {
	for event := range events {
		s.recordEvent(event)
	}
}

func (s *Service) recordEvent(event bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[event.Type]++
	if event.At.After(s.lastEventAt) {
		s.lastEventAt = event.At
	}
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.currentStatus("ok"))
}

func (s *Service) handleReady(c *gin.Context) {
	if !s.isReady() {
		c.JSON(http.StatusServiceUnavailable, s.currentStatus("not_ready"))
		return
	}
	c.JSON(http.StatusOK, s.currentStatus("ready"))
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	counters := make(map[bus.EventType]int64, len(s.counters))
	for eventType, count := range s.counters {
		counters[eventType] = count
	}

	lastEvent := ""
	if !s.lastEventAt.IsZero() {
		lastEvent = s.lastEventAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		LastEventAt:   lastEvent,
		Events:        counters,
		Channels:      channels,
	}
}

// isReady reports whether any channel is accepting events.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}
	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
