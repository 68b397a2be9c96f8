package control

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/linkstation/modemgw/internal/config"
	"github.com/linkstation/modemgw/internal/events"
	"github.com/linkstation/modemgw/internal/transport"
)

// Blocked reasons returned in the response detail. A block is a
// successful preview, not an error.
const (
	BlockedDisabled  = "disabled"
	BlockedDangerous = "dangerous-blocked"
)

// Sender issues one AT command. *transport.Transport satisfies this.
type Sender interface {
	Send(ctx context.Context, cmd string) ([]string, error)
}

// Detail describes what an action request planned and did.
type Detail struct {
	DryRun        bool           `json:"dry_run" doc:"True when nothing was sent to the modem"`
	Dangerous     bool           `json:"dangerous" doc:"Danger classification of the action"`
	Executed      bool           `json:"executed" doc:"True only when every planned command succeeded"`
	BlockedReason string         `json:"blocked_reason,omitempty" doc:"Gate that forced the preview, if any"`
	Planned       []string       `json:"planned" doc:"Ordered command plan"`
	Errors        []string       `json:"errors" doc:"Per-command failures"`
	Note          string         `json:"note,omitempty" doc:"Classification caveats for this action"`
	ReadBack      map[string]any `json:"read_back,omitempty" doc:"Post-execution state confirmation"`
}

// Result is the action response envelope.
type Result struct {
	OK        bool                `json:"ok"`
	Timestamp time.Time           `json:"ts"`
	Action    string              `json:"action"`
	Error     string              `json:"error,omitempty"`
	Detail    Detail              `json:"detail"`
	Raw       map[string][]string `json:"raw,omitempty" doc:"AT echo per executed command"`
}

// Planner resolves an action request against the table, applies the
// gates and runs the resulting plan.
type Planner struct {
	sender Sender
	gates  func() config.Gates
	bus    *events.Bus
	logger *slog.Logger
}

// NewPlanner creates a Planner. gates is called on every request so a
// config reload applies without restart.
func NewPlanner(sender Sender, gates func() config.Gates, bus *events.Bus, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{sender: sender, gates: gates, bus: bus, logger: logger}
}

// Run plans and, gates permitting, executes the named action.
// A *ValidationError is returned for unknown actions or bad fields;
// everything else lands in the Result.
func (p *Planner) Run(ctx context.Context, action string, params Params) (*Result, error) {
	spec, ok := Actions[action]
	if !ok {
		return nil, validationErrorf("unknown action %q", action)
	}
	plan, err := spec.Plan(params)
	if err != nil {
		return nil, err
	}

	res := &Result{
		OK:        true,
		Timestamp: time.Now().UTC(),
		Action:    action,
		Detail: Detail{
			DryRun:    true,
			Dangerous: spec.Dangerous,
			Planned:   plan,
			Errors:    []string{},
			Note:      spec.Note,
		},
	}
	if res.Detail.Planned == nil {
		res.Detail.Planned = []string{}
	}

	gates := p.gates()
	switch {
	case !gates.Enabled:
		res.Detail.BlockedReason = BlockedDisabled
	case len(plan) == 0:
		// Nothing to send; an empty plan is a no-op preview.
	case spec.Dangerous && !gates.AllowDangerous:
		res.Detail.BlockedReason = BlockedDangerous
	case params.DryRun:
		// Preview requested by the caller.
	default:
		res.Detail.DryRun = false
		p.execute(ctx, spec, plan, res)
	}

	p.publish(res)
	p.logger.Info("control action",
		"action", action,
		"dry_run", res.Detail.DryRun,
		"executed", res.Detail.Executed,
		"blocked", res.Detail.BlockedReason,
		"commands", len(plan),
	)
	return res, nil
}

// execute sends the plan in order, stopping at the first failure. The
// device has no rollback, so prior commands stand.
func (p *Planner) execute(ctx context.Context, spec Spec, plan []string, res *Result) {
	res.Raw = make(map[string][]string, len(plan))
	for _, cmd := range plan {
		lines, err := p.sender.Send(ctx, cmd)
		if err != nil {
			res.Detail.Errors = append(res.Detail.Errors, fmt.Sprintf("%s: %v", cmd, err))
			res.Error = fmt.Sprintf("action %s failed at %q: %v", res.Action, cmd, err)
			res.OK = false
			return
		}
		res.Raw[cmd] = lines
		if transport.IsErrorReply(lines) {
			res.Detail.Errors = append(res.Detail.Errors, fmt.Sprintf("%s: device reported %s", cmd, lastLine(lines)))
			res.Error = fmt.Sprintf("action %s rejected at %q", res.Action, cmd)
			res.OK = false
			return
		}
	}
	res.Detail.Executed = true
	if len(spec.ReadBack) > 0 {
		res.Detail.ReadBack = p.readBack(ctx, spec.ReadBack)
	}
}

// readBack confirms the state after execution. Failures here do not
// flip the executed flag; the plan already succeeded.
func (p *Planner) readBack(ctx context.Context, queries []string) map[string]any {
	out := make(map[string]any, len(queries))
	for _, q := range queries {
		lines, err := p.sender.Send(ctx, q)
		if err != nil {
			out[q] = fmt.Sprintf("read-back failed: %v", err)
			continue
		}
		if v, ok := parseReadBack(q, lines); ok {
			out[q] = v
		} else {
			out[q] = lines
		}
	}
	return out
}

func (p *Planner) publish(res *Result) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.ActionExecutedEvent{
		Action:        res.Action,
		Dangerous:     res.Detail.Dangerous,
		Executed:      res.Detail.Executed,
		BlockedReason: res.Detail.BlockedReason,
		Error:         res.Error,
		Timestamp:     res.Timestamp.Format(time.RFC3339),
	})
}

func lastLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}

var qnwprefRe = regexp.MustCompile(`\+QNWPREFCFG:\s*"([^"]+)"\s*,\s*([^\r\n]+)`)

// parseReadBack extracts the value from a QNWPREFCFG echo; other
// queries fall back to the raw lines.
func parseReadBack(query string, lines []string) (any, bool) {
	if !strings.Contains(query, "QNWPREFCFG") {
		return nil, false
	}
	for _, ln := range lines {
		m := qnwprefRe.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		val := strings.TrimSpace(m[2])
		switch m[1] {
		case "roam_pref":
			if n, err := strconv.Atoi(val); err == nil {
				return map[string]any{"roam_pref": n, "enabled": n != 1}, true
			}
		case "lte_band", "nsa_nr5g_band", "nr5g_band":
			return parseBandList(val), true
		default:
			return val, true
		}
	}
	return nil, false
}

func parseBandList(val string) []int {
	var bands []int
	for _, part := range strings.Split(val, ":") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			bands = append(bands, n)
		}
	}
	return bands
}

// RoamingState is the roaming query result.
type RoamingState struct {
	Enabled bool `json:"enabled"`
}

// QueryRoaming reads the current roaming preference.
func (p *Planner) QueryRoaming(ctx context.Context) (*RoamingState, []string, error) {
	lines, err := p.sender.Send(ctx, `AT+QNWPREFCFG="roam_pref"`)
	if err != nil {
		return nil, nil, err
	}
	v, ok := parseReadBack(`AT+QNWPREFCFG="roam_pref"`, lines)
	if !ok {
		return nil, lines, fmt.Errorf("modem did not return roam_pref")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, lines, fmt.Errorf("modem did not return roam_pref")
	}
	enabled, ok := m["enabled"].(bool)
	if !ok {
		return nil, lines, fmt.Errorf("modem did not return roam_pref")
	}
	return &RoamingState{Enabled: enabled}, lines, nil
}

// QueryNetworkMode reads the current mode preference, e.g.
// "LTE:NR5G".
func (p *Planner) QueryNetworkMode(ctx context.Context) (string, []string, error) {
	lines, err := p.sender.Send(ctx, `AT+QNWPREFCFG="mode_pref"`)
	if err != nil {
		return "", nil, err
	}
	for _, ln := range lines {
		if m := qnwprefRe.FindStringSubmatch(ln); m != nil && m[1] == "mode_pref" {
			return strings.TrimSpace(m[2]), lines, nil
		}
	}
	return "", lines, fmt.Errorf("modem did not return mode_pref")
}

// BandPreference is the per-RAT band preference query result.
type BandPreference struct {
	LTE []int `json:"lte_bands,omitempty"`
	NSA []int `json:"nsa_nr5g_bands,omitempty"`
	SA  []int `json:"nr5g_bands,omitempty"`
}

// QueryBandPreference reads the three band preference lists.
func (p *Planner) QueryBandPreference(ctx context.Context) (*BandPreference, map[string][]string, error) {
	raw := map[string][]string{}
	pref := &BandPreference{}
	for _, q := range []struct {
		cmd  string
		dest *[]int
	}{
		{`AT+QNWPREFCFG="lte_band"`, &pref.LTE},
		{`AT+QNWPREFCFG="nsa_nr5g_band"`, &pref.NSA},
		{`AT+QNWPREFCFG="nr5g_band"`, &pref.SA},
	} {
		lines, err := p.sender.Send(ctx, q.cmd)
		if err != nil {
			return nil, raw, err
		}
		raw[q.cmd] = lines
		if v, ok := parseReadBack(q.cmd, lines); ok {
			if bands, ok := v.([]int); ok {
				*q.dest = bands
			}
		}
	}
	return pref, raw, nil
}
