package grok

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

const userAgentChrome133 = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"

// DynamicHeaders builds the per-request header set grok.com expects for an
// API endpoint. The sec-ch-ua family and user-agent must stay consistent
// with the Chrome 133 TLS profile or the bot filter flags the request.
func DynamicHeaders(endpointPath string) map[string]string {
	return map[string]string{
		"accept":             "*/*",
		"accept-language":    "en-US,en;q=0.9",
		"accept-encoding":    "gzip, deflate, br, zstd",
		"content-type":       "application/json",
		"origin":             "https://grok.com",
		"referer":            "https://grok.com/",
		"user-agent":         userAgentChrome133,
		"sec-ch-ua":          `"Not(A:Brand";v="99", "Google Chrome";v="133", "Chromium";v="133"`,
		"sec-ch-ua-mobile":   "?0",
		"sec-ch-ua-platform": `"Windows"`,
		"sec-fetch-dest":     "empty",
		"sec-fetch-mode":     "cors",
		"sec-fetch-site":     "same-origin",
		"x-xai-request-id":   uuid.NewString(),
		"x-statsig-id":       statsigID(endpointPath),
	}
}

// statsigID produces the opaque per-request token grok.com's statsig layer
// checks. The value only has to be well-formed and unique; it is not
// verified server-side beyond shape.
func statsigID(endpointPath string) string {
	buf := make([]byte, 48)
	rand.Read(buf)
	payload := append([]byte(endpointPath+":"), buf...)
	return base64.StdEncoding.EncodeToString(payload)
}
