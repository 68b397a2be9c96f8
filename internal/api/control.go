package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/linkstation/modemgw/internal/api/models"
	"github.com/linkstation/modemgw/internal/control"
)

// ActionInput names the action and carries its parameters.
type ActionInput struct {
	Action string `path:"action" example:"roaming" doc:"Action name from the control table"`
	Body   control.Params
}

// registerControlRoutes registers the action endpoint and the
// read-back queries for the reversible settings.
func (s *Server) registerControlRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "run-control-action",
		Method:      http.MethodPost,
		Path:        "/api/ctrl/{action}",
		Summary:     "Run Control Action",
		Description: "Plan and, gates permitting, execute a modem control action. Blocked actions return their plan as a preview.",
		Tags:        []string{"control"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 422},
	}, func(ctx context.Context, input *ActionInput) (*models.ActionResponse, error) {
		result, err := s.options.Planner.Run(ctx, input.Action, input.Body)
		if err != nil {
			var ve *control.ValidationError
			if errors.As(err, &ve) {
				return nil, huma.Error422UnprocessableEntity(ve.Msg)
			}
			return nil, huma.Error400BadRequest("Action failed", err)
		}
		return &models.ActionResponse{Body: result}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-roaming",
		Method:      http.MethodGet,
		Path:        "/api/ctrl/roaming",
		Summary:     "Roaming State",
		Description: "Read the current roaming preference from the modem",
		Tags:        []string{"control"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.RoamingResponse, error) {
		ts := time.Now().UnixMilli()
		state, raw, err := s.options.Planner.QueryRoaming(ctx)
		if err != nil {
			return &models.RoamingResponse{
				Body: models.RoamingData{TS: ts, Error: err.Error(), Raw: raw},
			}, nil
		}
		return &models.RoamingResponse{
			Body: models.RoamingData{OK: true, TS: ts, Enabled: &state.Enabled, Raw: raw},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-network-mode",
		Method:      http.MethodGet,
		Path:        "/api/ctrl/network_mode",
		Summary:     "Network Mode",
		Description: "Read the configured RAT preference from the modem",
		Tags:        []string{"control"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.NetworkModeResponse, error) {
		ts := time.Now().UnixMilli()
		mode, raw, err := s.options.Planner.QueryNetworkMode(ctx)
		if err != nil {
			return &models.NetworkModeResponse{
				Body: models.NetworkModeData{TS: ts, Error: err.Error(), Raw: raw},
			}, nil
		}
		return &models.NetworkModeResponse{
			Body: models.NetworkModeData{OK: true, TS: ts, ModePref: mode, Raw: raw},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-band-preference",
		Method:      http.MethodGet,
		Path:        "/api/ctrl/band_preference",
		Summary:     "Band Preference",
		Description: "Read the per-RAT preferred band lists from the modem",
		Tags:        []string{"control"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.BandPreferenceResponse, error) {
		ts := time.Now().UnixMilli()
		pref, raw, err := s.options.Planner.QueryBandPreference(ctx)
		if err != nil {
			return &models.BandPreferenceResponse{
				Body: models.BandPreferenceData{TS: ts, Error: err.Error(), Raw: raw},
			}, nil
		}
		return &models.BandPreferenceResponse{
			Body: models.BandPreferenceData{
				OK:  true,
				TS:  ts,
				LTE: pref.LTE,
				NSA: pref.NSA,
				SA:  pref.SA,
				Raw: raw,
			},
		}, nil
	})
}
