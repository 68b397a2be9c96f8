package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linkstation/modemgw/internal/config"
	"github.com/linkstation/modemgw/internal/control"
	"github.com/linkstation/modemgw/internal/events"
	"github.com/linkstation/modemgw/internal/telemetry"
)

// fakeSender answers canned AT replies. Commands without a canned
// reply get a bare OK.
type fakeSender struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string]error
	calls   []string
}

func (f *fakeSender) Send(_ context.Context, cmd string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	if err, ok := f.errs[cmd]; ok {
		return nil, err
	}
	if lines, ok := f.replies[cmd]; ok {
		return lines, nil
	}
	return []string{"OK"}, nil
}

// fakeSnapshots serves a fixed snapshot.
type fakeSnapshots struct {
	snap *telemetry.Snapshot
}

func (f *fakeSnapshots) Snapshot() *telemetry.Snapshot { return f.snap }

func openGates() config.Gates {
	return config.Gates{Enabled: true, AllowDangerous: true}
}

func newTestServer(t *testing.T, opts *Options) *httptest.Server {
	t.Helper()
	if opts.Snapshots == nil {
		opts.Snapshots = &fakeSnapshots{}
	}
	if opts.Sender == nil {
		opts.Sender = &fakeSender{}
	}
	if opts.EventBus == nil {
		opts.EventBus = events.New()
	}
	if opts.Planner == nil {
		opts.Planner = control.NewPlanner(&fakeSender{}, openGates, opts.EventBus, nil)
	}
	server := NewServer(opts)
	ts := httptest.NewServer(server.GetMux())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode, data
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, &Options{})
	code, data := getJSON(t, ts.URL+"/api/health")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if data["status"] != "ok" {
		t.Errorf("status field = %v", data["status"])
	}
}

func TestVersionEndpoint(t *testing.T) {
	ts := newTestServer(t, &Options{})
	code, data := getJSON(t, ts.URL+"/api/version")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if data["go_version"] == "" {
		t.Error("go_version missing")
	}
}

func TestTelemetryNoSnapshotYet(t *testing.T) {
	ts := newTestServer(t, &Options{Snapshots: &fakeSnapshots{}})
	resp, err := http.Get(ts.URL + "/api/live")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestTelemetryStripsRawByDefault(t *testing.T) {
	snap := &telemetry.Snapshot{
		CycleID:   7,
		Timestamp: time.Now().UTC(),
		Raw:       map[string][]string{"AT+QTEMP": {"+QTEMP: \"soc\",\"41\"", "OK"}},
	}
	ts := newTestServer(t, &Options{Snapshots: &fakeSnapshots{snap: snap}})

	code, data := getJSON(t, ts.URL+"/api/live")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	snapData, ok := data["snapshot"].(map[string]any)
	if !ok {
		t.Fatalf("snapshot missing: %v", data)
	}
	if _, exists := snapData["raw"]; exists {
		t.Error("raw echo present without verbose")
	}

	code, data = getJSON(t, ts.URL+"/api/live?verbose=true")
	if code != http.StatusOK {
		t.Fatalf("verbose status = %d", code)
	}
	snapData = data["snapshot"].(map[string]any)
	if _, exists := snapData["raw"]; !exists {
		t.Error("raw echo missing with verbose")
	}
}

func TestControlUnknownActionRejected(t *testing.T) {
	ts := newTestServer(t, &Options{})
	resp, err := http.Post(ts.URL+"/api/ctrl/frobnicate", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestControlDryRunReturnsPlan(t *testing.T) {
	sender := &fakeSender{}
	bus := events.New()
	planner := control.NewPlanner(sender, openGates, bus, nil)
	ts := newTestServer(t, &Options{Planner: planner, EventBus: bus})

	resp, err := http.Post(ts.URL+"/api/ctrl/roaming", "application/json",
		strings.NewReader(`{"dry_run": true, "enable": true}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var result struct {
		OK     bool `json:"ok"`
		Detail struct {
			DryRun  bool     `json:"dry_run"`
			Planned []string `json:"planned"`
		} `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !result.OK || !result.Detail.DryRun {
		t.Errorf("ok=%v dry_run=%v", result.OK, result.Detail.DryRun)
	}
	if len(result.Detail.Planned) != 1 || !strings.Contains(result.Detail.Planned[0], "roam_pref") {
		t.Errorf("planned = %v", result.Detail.Planned)
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.calls) != 0 {
		t.Errorf("dry run sent %v", sender.calls)
	}
}

func TestInfoEndpointDecodesIdentity(t *testing.T) {
	sender := &fakeSender{
		replies: map[string][]string{
			"AT+GMI":             {"AT+GMI", "Quectel", "OK"},
			"AT+CGMM":            {"RM520N-GL", "OK"},
			"AT+GMR":             {"RM520NGLAAR03A03M4G", "OK"},
			"AT+GSN":             {"869710030001234", "OK"},
			"AT+CIMI":            {"460110123456789", "OK"},
			"AT+ICCID":           {"+ICCID: 89860012345678901234", "OK"},
			"AT+CNUM":            {`+CNUM: "","+8613900000001",145`, "OK"},
			"AT+QSIMSTAT?":       {"+QSIMSTAT: 1,1", "OK"},
			`AT+QCFG="usbspeed"`: {`+QCFG: "usbspeed","312"`, "OK"},
		},
	}
	ts := newTestServer(t, &Options{Sender: sender})

	code, data := getJSON(t, ts.URL+"/api/info")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if data["ok"] != true {
		t.Fatalf("ok = %v", data["ok"])
	}
	info := data["info"].(map[string]any)
	if info["manufacturer"] != "Quectel" || info["model"] != "RM520N-GL" {
		t.Errorf("info = %v", info)
	}
	if info["imei"] != "869710030001234" {
		t.Errorf("imei = %v", info["imei"])
	}
	sim := data["sim"].(map[string]any)
	if sim["iccid"] != "89860012345678901234" {
		t.Errorf("iccid = %v", sim["iccid"])
	}
	if sim["msisdn"] != "+8613900000001" {
		t.Errorf("msisdn = %v", sim["msisdn"])
	}
	usb := data["modem"].(map[string]any)["usb"].(map[string]any)
	if usb["code"] != float64(312) {
		t.Errorf("usb code = %v", usb["code"])
	}
	if _, exists := data["raw"]; exists {
		t.Error("raw present without verbose")
	}
}

func TestInfoEndpointIsolatesCommandFailures(t *testing.T) {
	sender := &fakeSender{
		replies: map[string][]string{
			"AT+GMI": {"Quectel", "OK"},
		},
		errs: map[string]error{
			"AT+CNUM": fmt.Errorf("timeout waiting for reply"),
		},
	}
	ts := newTestServer(t, &Options{Sender: sender})

	code, data := getJSON(t, ts.URL+"/api/info")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if data["ok"] != true {
		t.Fatalf("single command failure sank the endpoint: %v", data)
	}
	info := data["info"].(map[string]any)
	if info["manufacturer"] != "Quectel" {
		t.Errorf("manufacturer = %v", info["manufacturer"])
	}
	sim := data["sim"].(map[string]any)
	if msisdn, exists := sim["msisdn"]; exists && msisdn != "" {
		t.Errorf("msisdn = %v from a failed command", msisdn)
	}
}

func TestBasicAuthGuardsProtectedRoutes(t *testing.T) {
	ts := newTestServer(t, &Options{
		AuthUsername: "admin",
		AuthPassword: "secret",
		Snapshots:    &fakeSnapshots{snap: &telemetry.Snapshot{CycleID: 1}},
	})

	resp, err := http.Get(ts.URL + "/api/live")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/live", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d", resp.StatusCode)
	}

	// Health stays open.
	resp, err = http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}

func TestRoamingQueryEndpoint(t *testing.T) {
	sender := &fakeSender{
		replies: map[string][]string{
			`AT+QNWPREFCFG="roam_pref"`: {`+QNWPREFCFG: "roam_pref",255`, "OK"},
		},
	}
	bus := events.New()
	planner := control.NewPlanner(sender, openGates, bus, nil)
	ts := newTestServer(t, &Options{Planner: planner, EventBus: bus})

	code, data := getJSON(t, ts.URL+"/api/ctrl/roaming")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if data["ok"] != true {
		t.Fatalf("ok = %v", data["ok"])
	}
	if data["enabled"] != true {
		t.Errorf("enabled = %v", data["enabled"])
	}
}
