package grok

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestDynamicHeaders(t *testing.T) {
	h := DynamicHeaders(upscalePath)

	for _, key := range []string{
		"accept", "content-type", "origin", "referer", "user-agent",
		"sec-ch-ua", "x-xai-request-id", "x-statsig-id",
	} {
		if h[key] == "" {
			t.Errorf("missing header %q", key)
		}
	}
	if !strings.Contains(h["user-agent"], "Chrome/133") {
		t.Errorf("user-agent %q does not match the TLS profile", h["user-agent"])
	}
	if h["origin"] != "https://grok.com" {
		t.Errorf("origin = %q", h["origin"])
	}
}

func TestDynamicHeadersUniquePerRequest(t *testing.T) {
	h1 := DynamicHeaders(upscalePath)
	h2 := DynamicHeaders(upscalePath)

	if h1["x-xai-request-id"] == h2["x-xai-request-id"] {
		t.Error("request ID repeated across calls")
	}
	if h1["x-statsig-id"] == h2["x-statsig-id"] {
		t.Error("statsig ID repeated across calls")
	}
}

func TestStatsigIDShape(t *testing.T) {
	id := statsigID(upscalePath)
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		t.Fatalf("not valid base64: %v", err)
	}
	if !strings.HasPrefix(string(raw), upscalePath+":") {
		t.Error("decoded ID missing endpoint path prefix")
	}
}
