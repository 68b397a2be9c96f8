package nvr

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// externalPort maps a camera IP to its public RTSP port: the base port
// plus the last octet minus 100, so camera .101 lands on base+1. A
// non-numeric octet or an offset below 1 yields 0, meaning no mapping.
func externalPort(ip string, basePort int) int {
	parts := strings.Split(ip, ".")
	lastOctet, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0
	}
	offset := lastOctet - 100
	if offset < 1 {
		return 0
	}
	return basePort + offset
}

// rewriteRTSPURL replaces the host:port of an RTSP URL with the public
// entry point, keeping scheme, credentials, path and query intact.
func rewriteRTSPURL(raw, publicHost string, port int) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Host = fmt.Sprintf("%s:%d", publicHost, port)
	return u.String()
}

// RewriteStreamURLs points the stream.url and stream.main_url fields of
// a camera stream payload at the public host and the camera's mapped
// port. Payloads without a stream URL or without a mappable IP pass
// through untouched.
func RewriteStreamURLs(data map[string]any, ip, publicHost string, basePort int) {
	stream, ok := data["stream"].(map[string]any)
	if !ok {
		return
	}
	rawURL, ok := stream["url"].(string)
	if !ok || rawURL == "" {
		return
	}

	port := externalPort(ip, basePort)
	if port == 0 {
		return
	}

	stream["url"] = rewriteRTSPURL(rawURL, publicHost, port)
	if mainURL, ok := stream["main_url"].(string); ok && mainURL != "" {
		stream["main_url"] = rewriteRTSPURL(mainURL, publicHost, port)
	}
}

// RewriteSegmentURLs redirects every recording segment's url at the
// gateway's own file route so the app downloads through the relay. The
// upstream URL is preserved under origin_url.
func RewriteSegmentURLs(data map[string]any, gatewayBase, ip, date string) {
	segments, ok := data["segments"].([]any)
	if !ok {
		return
	}
	for _, item := range segments {
		segment, ok := item.(map[string]any)
		if !ok {
			continue
		}
		originalURL, _ := segment["url"].(string)
		if originalURL != "" {
			segment["origin_url"] = originalURL
		}

		filename, _ := segment["filename"].(string)
		if filename == "" && originalURL != "" {
			if u, err := url.Parse(originalURL); err == nil {
				trimmed := strings.Trim(u.Path, "/")
				if trimmed != "" {
					parts := strings.Split(trimmed, "/")
					filename = parts[len(parts)-1]
				}
			}
		}
		if filename != "" {
			segment["url"] = fmt.Sprintf("%s/v1/nvr/recordings/%s/files/%s/%s", gatewayBase, ip, date, filename)
		}
	}
}
