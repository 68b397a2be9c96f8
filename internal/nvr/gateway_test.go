package nvr

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linkstation/modemgw/internal/metrics"
)

func newTestMux(upstreamURL string, enabled bool, timeouts ...time.Duration) *http.ServeMux {
	timeout := 2 * time.Second
	fileTimeout := 2 * time.Second
	if len(timeouts) > 0 {
		timeout = timeouts[0]
		fileTimeout = timeouts[0]
	}
	client := NewClient(ClientConfig{
		BaseURL:     upstreamURL,
		Timeout:     timeout,
		FileTimeout: fileTimeout,
	})
	gw := NewGateway(GatewayConfig{
		Client:     client,
		Enabled:    enabled,
		PublicHost: "public.host",
		Metrics:    metrics.New(),
	})
	mux := http.NewServeMux()
	gw.Register(mux)
	return mux
}

func doRequest(mux *http.ServeMux, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var data map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return data
}

func TestDisabledReturnsServiceUnavailable(t *testing.T) {
	var hits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, false)

	paths := []string{
		"/live/192.168.11.103/sub/index.m3u8",
		"/live/192.168.11.103/sub/seg_00991.ts",
		"/v1/nvr/health",
		"/v1/nvr/cameras",
		"/v1/nvr/cameras/192.168.11.103/stream",
		"/v1/nvr/cameras/192.168.11.103/live-hls",
		"/v1/nvr/recordings",
		"/v1/nvr/recordings/192.168.11.103/days",
		"/v1/nvr/recordings/192.168.11.103/days/2026-08-29/segments",
		"/v1/nvr/recordings/192.168.11.103/files/2026-08-29/rec_001.mp4",
	}
	for _, path := range paths {
		rec := doRequest(mux, path, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, rec.Code)
		}
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("upstream contacted %d times while disabled", n)
	}
}

func TestPlaylistNoCacheHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/live/192.168.11.103/sub/index.m3u8" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		io.WriteString(w, "#EXTM3U\n#EXT-X-VERSION:3\n")
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, true)
	rec := doRequest(mux, "/live/192.168.11.103/sub/index.m3u8", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache, no-store, must-revalidate" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := rec.Header().Get("Pragma"); got != "no-cache" {
		t.Errorf("Pragma = %q", got)
	}
	if got := rec.Header().Get("Expires"); got != "0" {
		t.Errorf("Expires = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/vnd.apple.mpegurl" {
		t.Errorf("Content-Type = %q", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "#EXTM3U") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestPlaylistInvalidProfile(t *testing.T) {
	var hits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, true)
	rec := doRequest(mux, "/live/192.168.11.103/hd/index.m3u8", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if hits.Load() != 0 {
		t.Error("upstream contacted for invalid profile")
	}
}

func TestSegmentCacheControl(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/live/192.168.11.103/sub/seg_00991.ts" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "video/mp2t")
		w.Write([]byte{0x47, 0x00, 0x00})
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, true)
	rec := doRequest(mux, "/live/192.168.11.103/sub/seg_00991.ts", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp2t" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestHealthWrapsUpstreamPayload(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": 1756500000})
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, true)
	rec := doRequest(mux, "/v1/nvr/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := decodeBody(t, rec)
	if data["ok"] != true {
		t.Error("ok not true")
	}
	if data["ts"] != float64(1756500000) {
		t.Errorf("ts = %v", data["ts"])
	}
	if _, exists := data["nvr"]; !exists {
		t.Error("nvr payload missing")
	}
}

func TestCamerasPassthroughKeepsShape(t *testing.T) {
	// Map-shaped camera set with a field this gateway has no model
	// for. Both must survive the relay untouched.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"cameras": map[string]any{
				"192.168.11.101": map[string]any{
					"ip":              "192.168.11.101",
					"auth_status":     "failed",
					"main_stream_uri": "rtsp://x/main",
					"firmware_blob":   "v2.1-rc3",
				},
			},
		})
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, true)
	rec := doRequest(mux, "/v1/nvr/cameras", nil)

	data := decodeBody(t, rec)
	cameras, ok := data["cameras"].(map[string]any)
	if !ok {
		t.Fatalf("cameras reshaped: %T", data["cameras"])
	}
	cam := cameras["192.168.11.101"].(map[string]any)
	if cam["firmware_blob"] != "v2.1-rc3" {
		t.Error("unknown field dropped in passthrough")
	}
	if cam["auth_status"] != "failed" {
		t.Error("auth_status altered in passthrough")
	}
}

func TestStreamRewritesRTSPURLs(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/cameras/192.168.11.103/stream" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"stream": map[string]any{
				"url":      "rtsp://admin:pw@192.168.11.103:554/sub",
				"main_url": "rtsp://admin:pw@192.168.11.103:554/main",
			},
		})
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, true)
	rec := doRequest(mux, "/v1/nvr/cameras/192.168.11.103/stream", nil)

	data := decodeBody(t, rec)
	stream := data["stream"].(map[string]any)
	if stream["url"] != "rtsp://admin:pw@public.host:9553/sub" {
		t.Errorf("url = %q", stream["url"])
	}
	if stream["main_url"] != "rtsp://admin:pw@public.host:9553/main" {
		t.Errorf("main_url = %q", stream["main_url"])
	}
}

func TestLiveHLSForcesCameraStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("profile"); got != "sub" {
			t.Errorf("profile = %q, want default sub", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"camera": map[string]any{
				"ip":          "192.168.11.101",
				"online":      false,
				"auth":        "pending",
				"auth_status": "pending",
			},
			"hls": map[string]any{"playlist": "/live/192.168.11.101/sub/index.m3u8"},
		})
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, true)
	rec := doRequest(mux, "/v1/nvr/cameras/192.168.11.101/live-hls", nil)

	data := decodeBody(t, rec)
	camera := data["camera"].(map[string]any)
	if camera["online"] != true {
		t.Error("online not forced true")
	}
	if camera["auth"] != "ok" {
		t.Errorf("auth = %v", camera["auth"])
	}
	if camera["auth_status"] != "ok" {
		t.Errorf("auth_status = %v", camera["auth_status"])
	}
}

func TestLiveHLSInvalidProfile(t *testing.T) {
	mux := newTestMux("http://127.0.0.1:1", true)
	rec := doRequest(mux, "/v1/nvr/cameras/192.168.11.101/live-hls?profile=hd", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRecordingSegmentsRewriteToGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"segments": []any{
				map[string]any{
					"filename": "rec_001.mp4",
					"url":      "http://192.168.99.11:8787/files/rec_001.mp4",
					"start":    "2026-08-29T10:00:00Z",
				},
			},
		})
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, true)
	req := httptest.NewRequest(http.MethodGet,
		"http://gw.local:8090/v1/nvr/recordings/192.168.11.103/days/2026-08-29/segments", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	data := decodeBody(t, rec)
	segment := data["segments"].([]any)[0].(map[string]any)
	want := "http://gw.local:8090/v1/nvr/recordings/192.168.11.103/files/2026-08-29/rec_001.mp4"
	if segment["url"] != want {
		t.Errorf("url = %q, want %q", segment["url"], want)
	}
	if segment["origin_url"] != "http://192.168.99.11:8787/files/rec_001.mp4" {
		t.Errorf("origin_url = %q", segment["origin_url"])
	}
	if segment["start"] != "2026-08-29T10:00:00Z" {
		t.Error("unrelated segment field altered")
	}
}

func TestRecordingFileRangePassthrough(t *testing.T) {
	content := make([]byte, 4096)
	for i := range content {
		content[i] = byte(i % 251)
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/recordings/192.168.11.103/files/2026-08-29/rec_001.mp4" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Range"); got != "bytes=0-1023" {
			t.Errorf("upstream Range = %q", got)
		}
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeContent(w, r, "rec_001.mp4", time.Time{}, strings.NewReader(string(content)))
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, true)
	rec := doRequest(mux, "/v1/nvr/recordings/192.168.11.103/files/2026-08-29/rec_001.mp4",
		map[string]string{"Range": "bytes=0-1023"})

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 0-1023/4096" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Accept-Ranges = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "1024" {
		t.Errorf("Content-Length = %q", got)
	}
	if rec.Body.Len() != 1024 {
		t.Errorf("body length = %d", rec.Body.Len())
	}
}

func TestRecordingFileFullRead(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Write(make([]byte, 128))
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, true)
	rec := doRequest(mux, "/v1/nvr/recordings/192.168.11.103/files/2026-08-29/rec_001.mp4", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 128 {
		t.Errorf("body length = %d", rec.Body.Len())
	}
}

func TestRecordingFileUpstreamErrorMapsToBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk gone", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, true)
	rec := doRequest(mux, "/v1/nvr/recordings/192.168.11.103/files/2026-08-29/rec_001.mp4", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestRecordingFileTimeoutMapsToGatewayTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer upstream.Close()

	mux := newTestMux(upstream.URL, true, 50*time.Millisecond)
	rec := doRequest(mux, "/v1/nvr/recordings/192.168.11.103/files/2026-08-29/rec_001.mp4", nil)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
}

func TestMetadataUpstreamDownMapsToBadGateway(t *testing.T) {
	// Closed port, the dial itself fails.
	mux := newTestMux("http://127.0.0.1:1", true)
	rec := doRequest(mux, "/v1/nvr/cameras", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}
