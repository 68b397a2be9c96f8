package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/linkstation/modemgw/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of telemetry updates, transport state changes, control actions and poll errors",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"telemetry-updated":       events.TelemetryUpdatedEvent{},
		"transport-state-changed": events.TransportStateChangedEvent{},
		"action-executed":         events.ActionExecutedEvent{},
		"poll-error":              events.PollErrorEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Create event channel for this connection
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.TelemetryUpdatedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.TransportStateChangedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.ActionExecutedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.PollErrorEvent](s.options.EventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Send initial connection confirmation
		if err := send.Data(events.TransportStateChangedEvent{
			State:     "sse-connected",
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		// Keep connection alive and forward events
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					// Connection failed, clean up and exit
					return
				}
			}
		}
	})
}
