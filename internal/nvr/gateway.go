package nvr

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/linkstation/modemgw/internal/metrics"
)

// DefaultSubBasePort anchors the public RTSP port mapping. Camera
// x.x.x.101 is reachable on this port plus one.
const DefaultSubBasePort = 9550

// GatewayConfig wires the relay handlers.
type GatewayConfig struct {
	Client *Client

	// Enabled gates every relay path. When false all of them answer
	// 503 without touching the upstream.
	Enabled bool

	// PublicHost is the address the app uses to reach this box. RTSP
	// URLs in stream payloads are rewritten to it.
	PublicHost string

	// SubBasePort is the base of the public RTSP port range. Zero
	// means DefaultSubBasePort.
	SubBasePort int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Gateway relays the NVR API and HLS output, rewriting URLs in
// metadata payloads so everything resolves through this gateway.
type Gateway struct {
	cfg    GatewayConfig
	logger *slog.Logger
}

// NewGateway builds a Gateway from config.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.SubBasePort == 0 {
		cfg.SubBasePort = DefaultSubBasePort
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{cfg: cfg, logger: logger}
}

// Register mounts every relay route on mux. The HLS tree stays at
// /live to match the playlist paths the NVR hands out; the API tree
// lives under /v1/nvr, which is also where rewritten segment URLs
// point.
func (g *Gateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /live/{ip}/{profile}/index.m3u8", g.handlePlaylist)
	mux.HandleFunc("GET /live/{ip}/{profile}/{filename...}", g.handleSegment)

	mux.HandleFunc("GET /v1/nvr/health", g.handleHealth)
	mux.HandleFunc("GET /v1/nvr/cameras", g.handleCameras)
	mux.HandleFunc("GET /v1/nvr/cameras/{ip}/stream", g.handleStream)
	mux.HandleFunc("GET /v1/nvr/cameras/{ip}/live-hls", g.handleLiveHLS)
	mux.HandleFunc("GET /v1/nvr/recordings", g.handleRecordings)
	mux.HandleFunc("GET /v1/nvr/recordings/{ip}/days", g.handleRecordingDays)
	mux.HandleFunc("GET /v1/nvr/recordings/{ip}/days/{date}/segments", g.handleRecordingSegments)
	mux.HandleFunc("GET /v1/nvr/recordings/{ip}/files/{date}/{filename}", g.handleRecordingFile)
}

func (g *Gateway) count(class string, code int) {
	if g.cfg.Metrics != nil {
		g.cfg.Metrics.ProxyRequestsTotal.WithLabelValues(class, strconv.Itoa(code)).Inc()
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, class string, code int, msg string) {
	g.count(class, code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, class string, data any) {
	g.count(class, http.StatusOK)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// checkEnabled answers the 503 itself when the relay is off.
func (g *Gateway) checkEnabled(w http.ResponseWriter, class string) bool {
	if g.cfg.Enabled {
		return true
	}
	g.writeError(w, class, http.StatusServiceUnavailable, "NVR integration disabled")
	return false
}

func validProfile(profile string) bool {
	return profile == "sub" || profile == "main"
}

// gatewayBase reconstructs the externally visible origin of this
// request for use in rewritten segment URLs.
func gatewayBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (g *Gateway) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	const class = "playlist"
	if !g.checkEnabled(w, class) {
		return
	}
	ip := r.PathValue("ip")
	profile := r.PathValue("profile")
	if !validProfile(profile) {
		g.writeError(w, class, http.StatusBadRequest, "invalid profile: "+profile)
		return
	}

	resp, err := g.cfg.Client.Live(r.Context(), ip, profile, "index.m3u8")
	if err != nil {
		g.logger.Warn("hls playlist relay failed", "ip", ip, "error", err)
		g.writeError(w, class, http.StatusBadGateway, "NVR HLS playlist failed")
		return
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/vnd.apple.mpegurl"
	}
	w.Header().Set("Content-Type", ct)
	// Playlists churn every segment interval, so forbid caching.
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	g.count(class, http.StatusOK)
	io.Copy(w, resp.Body)
}

func (g *Gateway) handleSegment(w http.ResponseWriter, r *http.Request) {
	const class = "segment"
	if !g.checkEnabled(w, class) {
		return
	}
	ip := r.PathValue("ip")
	profile := r.PathValue("profile")
	filename := r.PathValue("filename")
	if !validProfile(profile) {
		g.writeError(w, class, http.StatusBadRequest, "invalid profile: "+profile)
		return
	}

	resp, err := g.cfg.Client.Live(r.Context(), ip, profile, filename)
	if err != nil {
		g.logger.Warn("hls segment relay failed", "ip", ip, "file", filename, "error", err)
		g.writeError(w, class, http.StatusBadGateway, "NVR HLS segment failed")
		return
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "video/mp2t"
	}
	w.Header().Set("Content-Type", ct)
	// Segments are immutable once written, safe to cache briefly.
	w.Header().Set("Cache-Control", "public, max-age=3600")
	g.count(class, http.StatusOK)
	io.Copy(w, resp.Body)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	const class = "health"
	if !g.checkEnabled(w, class) {
		return
	}
	data, err := g.cfg.Client.Health(r.Context())
	if err != nil {
		g.writeError(w, class, http.StatusBadGateway, "NVR health failed")
		return
	}
	g.writeJSON(w, class, map[string]any{
		"ok":  true,
		"ts":  data["ts"],
		"nvr": data,
	})
}

func (g *Gateway) handleCameras(w http.ResponseWriter, r *http.Request) {
	const class = "cameras"
	if !g.checkEnabled(w, class) {
		return
	}
	// Verbatim passthrough. The camera set may be a list or an
	// IP-keyed map and carries fields this gateway has never heard
	// of, so nothing is filtered or reshaped.
	data, err := g.cfg.Client.Cameras(r.Context())
	if err != nil {
		g.writeError(w, class, http.StatusBadGateway, "NVR cameras failed")
		return
	}
	g.writeJSON(w, class, data)
}

func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	const class = "stream"
	if !g.checkEnabled(w, class) {
		return
	}
	ip := r.PathValue("ip")
	data, err := g.cfg.Client.Stream(r.Context(), ip)
	if err != nil {
		g.writeError(w, class, http.StatusBadGateway, "NVR stream failed")
		return
	}
	RewriteStreamURLs(data, ip, g.cfg.PublicHost, g.cfg.SubBasePort)
	g.writeJSON(w, class, data)
}

func (g *Gateway) handleLiveHLS(w http.ResponseWriter, r *http.Request) {
	const class = "live_hls"
	if !g.checkEnabled(w, class) {
		return
	}
	ip := r.PathValue("ip")
	profile := r.URL.Query().Get("profile")
	if profile == "" {
		profile = "sub"
	}
	if !validProfile(profile) {
		g.writeError(w, class, http.StatusBadRequest, "invalid profile: "+profile+". Must be 'sub' or 'main'")
		return
	}

	data, err := g.cfg.Client.LiveHLS(r.Context(), ip, profile)
	if err != nil {
		g.writeError(w, class, http.StatusBadGateway, "NVR live-hls failed")
		return
	}

	// A playlist answer proves the camera is reachable and the NVR's
	// credentials work right now, so override any stale status the
	// payload carries. The app keys playback on these fields.
	if camera, ok := data["camera"].(map[string]any); ok {
		camera["online"] = true
		camera["auth"] = "ok"
		if _, exists := camera["auth_status"]; exists {
			camera["auth_status"] = "ok"
		}
	}
	g.writeJSON(w, class, data)
}

func (g *Gateway) handleRecordings(w http.ResponseWriter, r *http.Request) {
	const class = "recordings"
	if !g.checkEnabled(w, class) {
		return
	}
	data, err := g.cfg.Client.Recordings(r.Context())
	if err != nil {
		g.writeError(w, class, http.StatusBadGateway, "NVR recordings list failed")
		return
	}
	g.writeJSON(w, class, data)
}

func (g *Gateway) handleRecordingDays(w http.ResponseWriter, r *http.Request) {
	const class = "recording_days"
	if !g.checkEnabled(w, class) {
		return
	}
	ip := r.PathValue("ip")
	data, err := g.cfg.Client.RecordingDays(r.Context(), ip)
	if err != nil {
		g.writeError(w, class, http.StatusBadGateway, "NVR recordings days failed")
		return
	}
	g.writeJSON(w, class, data)
}

func (g *Gateway) handleRecordingSegments(w http.ResponseWriter, r *http.Request) {
	const class = "recording_segments"
	if !g.checkEnabled(w, class) {
		return
	}
	ip := r.PathValue("ip")
	date := r.PathValue("date")
	data, err := g.cfg.Client.RecordingSegments(r.Context(), ip, date)
	if err != nil {
		g.writeError(w, class, http.StatusBadGateway, "NVR recordings segments failed")
		return
	}
	RewriteSegmentURLs(data, gatewayBase(r), ip, date)
	g.writeJSON(w, class, data)
}

// recordingFileHeaders are mirrored from the upstream response so range
// requests and caching validate end to end.
var recordingFileHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"ETag",
}

func (g *Gateway) handleRecordingFile(w http.ResponseWriter, r *http.Request) {
	const class = "recording_file"
	if !g.checkEnabled(w, class) {
		return
	}
	ip := r.PathValue("ip")
	date := r.PathValue("date")
	filename := r.PathValue("filename")

	resp, err := g.cfg.Client.RecordingFile(r.Context(), ip, date, filename,
		r.Header.Get("Range"), r.Header.Get("If-Range"))
	if err != nil {
		if IsTimeout(err) {
			g.writeError(w, class, http.StatusGatewayTimeout, "NVR recording file request timeout")
			return
		}
		g.logger.Warn("recording file relay failed", "ip", ip, "file", filename, "error", err)
		g.writeError(w, class, http.StatusBadGateway, "NVR recording file failed")
		return
	}
	defer resp.Body.Close()

	for _, name := range recordingFileHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "video/mp4")
	}
	// 200 or 206 from the NVR passes through unchanged.
	g.count(class, resp.StatusCode)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
