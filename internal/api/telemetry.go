package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/linkstation/modemgw/internal/api/models"
)

// TelemetryInput selects the verbosity of the live snapshot.
type TelemetryInput struct {
	Verbose bool `query:"verbose" doc:"Include raw AT echo per polled command"`
}

// registerTelemetryRoutes registers the live snapshot endpoint.
func (s *Server) registerTelemetryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-telemetry",
		Method:      http.MethodGet,
		Path:        "/api/live",
		Summary:     "Live Telemetry",
		Description: "Current modem telemetry snapshot from the background poller",
		Tags:        []string{"telemetry"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, input *TelemetryInput) (*models.TelemetryResponse, error) {
		snap := s.options.Snapshots.Snapshot()
		if snap == nil {
			// No poll cycle has succeeded yet.
			return nil, huma.Error503ServiceUnavailable("No telemetry snapshot available yet")
		}
		if !input.Verbose {
			snap = snap.WithoutRaw()
		}
		return &models.TelemetryResponse{
			Body: models.TelemetryData{
				OK:       true,
				TS:       time.Now().UnixMilli(),
				Snapshot: snap,
			},
		}, nil
	})
}
