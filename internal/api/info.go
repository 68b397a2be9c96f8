package api

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/linkstation/modemgw/internal/api/models"
)

// InfoInput selects info endpoint verbosity.
type InfoInput struct {
	Verbose bool `query:"verbose" doc:"Include raw AT echo per command"`
}

var (
	iccidRe    = regexp.MustCompile(`\+ICCID:\s*([0-9A-Fa-f]+)`)
	usbSpeedRe = regexp.MustCompile(`\+QCFG:\s*"usbspeed"\s*,\s*"([^"]+)"`)
	qsimStatRe = regexp.MustCompile(`\+QSIMSTAT:\s*(\d)\s*,\s*(\d)`)

	// CNUM shows up in several shapes: with an alpha tag, with an
	// empty alpha slot, or number-first.
	cnumFullRe   = regexp.MustCompile(`\+CNUM:\s*"[^"]*"\s*,\s*"([^"]+)"\s*,\s*\d+`)
	cnumNoTagRe  = regexp.MustCompile(`\+CNUM:\s*,\s*"([^"]+)"\s*,\s*\d+`)
	cnumNumberRe = regexp.MustCompile(`\+CNUM:\s*"([^"]+)"\s*,\s*\d+`)
)

var usbSpeedLabels = map[string]string{
	"20":  "USB 2.0 high speed, 480 Mbps",
	"311": "USB 3.1 Gen1, 5 Gbps",
	"312": "USB 3.1 Gen2, 10 Gbps",
}

// firstPayloadLine returns the first reply line that is neither a
// command echo nor a terminal marker. Identity commands like AT+GMI
// answer with a bare text line.
func firstPayloadLine(lines []string) string {
	for _, ln := range lines {
		s := strings.TrimSpace(ln)
		if s == "" || strings.HasPrefix(s, "AT+") || s == "OK" {
			continue
		}
		return s
	}
	return ""
}

func parseICCID(lines []string) string {
	for _, ln := range lines {
		if m := iccidRe.FindStringSubmatch(ln); m != nil {
			return m[1]
		}
	}
	return ""
}

func parseCNUM(lines []string) string {
	for _, ln := range lines {
		s := strings.TrimSpace(ln)
		for _, re := range []*regexp.Regexp{cnumFullRe, cnumNoTagRe, cnumNumberRe} {
			if m := re.FindStringSubmatch(s); m != nil {
				return strings.TrimSpace(m[1])
			}
		}
	}
	return ""
}

func parseUSBSpeed(lines []string) string {
	for _, ln := range lines {
		if m := usbSpeedRe.FindStringSubmatch(ln); m != nil {
			return m[1]
		}
	}
	return ""
}

func parseQSIMStat(lines []string) (enabled, inserted *bool) {
	for _, ln := range lines {
		if m := qsimStatRe.FindStringSubmatch(ln); m != nil {
			e := m[1] == "1"
			i := m[2] == "1"
			return &e, &i
		}
	}
	return nil, nil
}

// infoCommands is the one-shot identity battery.
var infoCommands = []string{
	"AT+GMI",
	"AT+CGMM",
	"AT+GMR",
	"AT+GSN",
	"AT+CIMI",
	"AT+ICCID",
	"AT+CNUM",
	"AT+QSIMSTAT?",
	`AT+QCFG="usbspeed"`,
}

// registerInfoRoutes registers the device identity endpoint. These
// reads go straight to the modem rather than through the poller, the
// answers never change between SIM swaps.
func (s *Server) registerInfoRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-info",
		Method:      http.MethodGet,
		Path:        "/api/info",
		Summary:     "Device Info",
		Description: "Modem hardware identity, SIM identity and USB mode",
		Tags:        []string{"info"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *InfoInput) (*models.InfoResponse, error) {
		ts := time.Now().UnixMilli()

		// One failed command loses its fields, not the endpoint.
		raw := make(map[string][]string, len(infoCommands))
		var firstErr error
		failures := 0
		for _, cmd := range infoCommands {
			lines, err := s.options.Sender.Send(ctx, cmd)
			if err != nil {
				failures++
				if firstErr == nil {
					firstErr = err
				}
				s.logger.Warn("info query failed", "cmd", cmd, "error", err)
				continue
			}
			raw[cmd] = lines
		}
		if failures == len(infoCommands) {
			return &models.InfoResponse{
				Body: models.InfoData{TS: ts, Error: firstErr.Error()},
			}, nil
		}

		simEnabled, simInserted := parseQSIMStat(raw["AT+QSIMSTAT?"])

		usbCodeStr := parseUSBSpeed(raw[`AT+QCFG="usbspeed"`])
		var usbCode *int
		if n, err := strconv.Atoi(usbCodeStr); err == nil {
			usbCode = &n
		}

		data := models.InfoData{
			OK: true,
			TS: ts,
			Info: models.DeviceIdentity{
				Manufacturer: firstPayloadLine(raw["AT+GMI"]),
				Model:        firstPayloadLine(raw["AT+CGMM"]),
				Revision:     firstPayloadLine(raw["AT+GMR"]),
				IMEI:         firstPayloadLine(raw["AT+GSN"]),
			},
			SIM: models.SIMIdentity{
				IMSI:     firstPayloadLine(raw["AT+CIMI"]),
				ICCID:    parseICCID(raw["AT+ICCID"]),
				MSISDN:   parseCNUM(raw["AT+CNUM"]),
				Enabled:  simEnabled,
				Inserted: simInserted,
			},
			Modem: models.ModemInfo{
				USB: models.USBSpeed{
					Code:  usbCode,
					Label: usbSpeedLabels[usbCodeStr],
				},
			},
		}
		if input.Verbose {
			data.Raw = raw
		}
		return &models.InfoResponse{Body: data}, nil
	})
}
