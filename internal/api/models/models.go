// Package models holds the API response envelopes shared across
// route files.
package models

import (
	"github.com/linkstation/modemgw/internal/control"
	"github.com/linkstation/modemgw/internal/telemetry"
)

// HealthData is the health check payload.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Message string `json:"message,omitempty" example:"API is healthy" doc:"Status message"`
}

// HealthResponse wraps health data.
type HealthResponse struct {
	Body HealthData
}

// VersionData contains build and version information.
type VersionData struct {
	Version   string `json:"version" example:"1.0.0"`
	GitCommit string `json:"git_commit" example:"abc123"`
	BuildDate string `json:"build_date" example:"2026-01-15T10:30:00Z"`
	BuildID   string `json:"build_id" example:"12345"`
	GoVersion string `json:"go_version" example:"go1.24.0"`
	Compiler  string `json:"compiler" example:"gc"`
	Platform  string `json:"platform" example:"linux/arm64"`
}

// VersionResponse wraps version data.
type VersionResponse struct {
	Body VersionData
}

// TelemetryData is the live telemetry payload: the current snapshot
// plus an envelope matching the rest of the API.
type TelemetryData struct {
	OK       bool                `json:"ok"`
	TS       int64               `json:"ts" doc:"Response time, Unix ms"`
	Error    string              `json:"error,omitempty"`
	Snapshot *telemetry.Snapshot `json:"snapshot,omitempty" doc:"Most recent poll cycle result"`
}

// TelemetryResponse wraps telemetry data.
type TelemetryResponse struct {
	Body TelemetryData
}

// ActionResponse wraps a control action result.
type ActionResponse struct {
	Body *control.Result
}

// RoamingData is the roaming read-back payload.
type RoamingData struct {
	OK      bool     `json:"ok"`
	TS      int64    `json:"ts"`
	Error   string   `json:"error,omitempty"`
	Enabled *bool    `json:"enabled,omitempty" doc:"Whether roaming is permitted"`
	Raw     []string `json:"raw,omitempty" doc:"AT echo"`
}

// RoamingResponse wraps roaming data.
type RoamingResponse struct {
	Body RoamingData
}

// NetworkModeData is the mode preference read-back payload.
type NetworkModeData struct {
	OK       bool     `json:"ok"`
	TS       int64    `json:"ts"`
	Error    string   `json:"error,omitempty"`
	ModePref string   `json:"mode_pref,omitempty" example:"AUTO" doc:"Configured RAT preference"`
	Raw      []string `json:"raw,omitempty" doc:"AT echo"`
}

// NetworkModeResponse wraps network mode data.
type NetworkModeResponse struct {
	Body NetworkModeData
}

// BandPreferenceData is the band preference read-back payload.
type BandPreferenceData struct {
	OK    bool                `json:"ok"`
	TS    int64               `json:"ts"`
	Error string              `json:"error,omitempty"`
	LTE   []int               `json:"lte,omitempty" doc:"Preferred LTE bands"`
	NSA   []int               `json:"nsa,omitempty" doc:"Preferred NSA NR bands"`
	SA    []int               `json:"sa,omitempty" doc:"Preferred SA NR bands"`
	Raw   map[string][]string `json:"raw,omitempty" doc:"AT echo per query"`
}

// BandPreferenceResponse wraps band preference data.
type BandPreferenceResponse struct {
	Body BandPreferenceData
}

// DeviceIdentity is the hardware identity section of the info payload.
type DeviceIdentity struct {
	Manufacturer string `json:"manufacturer,omitempty" example:"Quectel"`
	Model        string `json:"model,omitempty" example:"RM520N-GL"`
	Revision     string `json:"revision,omitempty" example:"RM520NGLAAR03A03M4G"`
	IMEI         string `json:"imei,omitempty" doc:"15-digit equipment identity"`
}

// SIMIdentity is the SIM section of the info payload.
type SIMIdentity struct {
	IMSI     string `json:"imsi,omitempty"`
	ICCID    string `json:"iccid,omitempty"`
	MSISDN   string `json:"msisdn,omitempty" doc:"Subscriber number, when the SIM stores one"`
	Enabled  *bool  `json:"enabled,omitempty" doc:"SIM status reporting enabled"`
	Inserted *bool  `json:"inserted,omitempty" doc:"Card physically present"`
}

// USBSpeed is the negotiated USB mode.
type USBSpeed struct {
	Code  *int   `json:"code,omitempty" example:"312" doc:"Mode code from the module"`
	Label string `json:"label,omitempty" example:"USB 3.1 Gen2, 10 Gbps"`
}

// ModemInfo groups module-level settings in the info payload.
type ModemInfo struct {
	USB USBSpeed `json:"usb"`
}

// InfoData is the device info payload.
type InfoData struct {
	OK    bool                `json:"ok"`
	TS    int64               `json:"ts" doc:"Response time, Unix ms"`
	Error string              `json:"error,omitempty"`
	Info  DeviceIdentity      `json:"info"`
	SIM   SIMIdentity         `json:"sim"`
	Modem ModemInfo           `json:"modem"`
	Raw   map[string][]string `json:"raw,omitempty" doc:"AT echo per command, verbose only"`
}

// InfoResponse wraps device info data.
type InfoResponse struct {
	Body InfoData
}
