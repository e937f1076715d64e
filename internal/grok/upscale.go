package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// errorBodyPreview caps how much of a non-JSON error body ends up in
// diagnostics.
const errorBodyPreview = 200

// UpscaleResult is the only success shape UpscaleVideo returns.
type UpscaleResult struct {
	HDMediaURL string         `json:"hd_media_url"`
	Success    bool           `json:"success"`
	Data       map[string]any `json:"data"`
}

// UpscaleVideo asks grok.com to upscale a previously generated video to HD.
// On success the HD asset is mirrored into the local cache and the returned
// URL rewritten to the local copy; mirroring is best-effort and never fails
// the call. Failures carry an *APIError the caller can branch on.
func (c *Client) UpscaleVideo(ctx context.Context, videoID, authToken string) (*UpscaleResult, error) {
	if videoID == "" {
		return nil, newAPIError(CodeInvalidParams, "video ID missing")
	}
	if authToken == "" {
		return nil, newAPIError(CodeNoAuthToken, "authentication token missing")
	}

	payload, err := json.Marshal(map[string]string{"videoId": videoID})
	if err != nil {
		return nil, wrapAPI(CodeUpscaleError, "encode payload", err)
	}

	headers := c.headers(upscalePath)
	headers["cookie"] = buildCookie(authToken, c.cfg.CFClearance)

	data, status, err := c.do(ctx, "POST", upscaleEndpoint, headers, bytes.NewReader(payload))
	if err != nil {
		slog.Error("video upscale request failed", slog.String("video_id", videoID), slog.Any("error", err))
		return nil, wrapAPI(CodeUpscaleError, "video upscale failed", err)
	}

	if status != 200 {
		msg := fmt.Sprintf("video upscale failed: status code: %d, details: %s", status, errorDetails(data))
		slog.Error("video upscale rejected", slog.String("video_id", videoID), slog.Int("status", status))
		return nil, newAPIError(CodeUpscaleError, msg)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, wrapAPI(CodeUpscaleError, "decode upscale response", err)
	}

	hdURL, _ := result["hdMediaUrl"].(string)
	slog.Debug("video upscale succeeded", slog.String("video_id", videoID), slog.String("hd_url", hdURL))

	if hdURL != "" {
		if local := c.mirrorToCache(ctx, hdURL, authToken); local != "" {
			hdURL = local
		}
	}

	return &UpscaleResult{HDMediaURL: hdURL, Success: true, Data: result}, nil
}

// mirrorToCache downloads the HD asset into the local cache and returns the
// local-serving URL, or "" when the asset could not be cached. Any failure
// here is logged and absorbed; the remote URL stays usable.
func (c *Client) mirrorToCache(ctx context.Context, hdURL, authToken string) string {
	if c.cache == nil {
		return ""
	}

	u, err := url.Parse(hdURL)
	if err != nil || u.Path == "" {
		slog.Warn("video cache skipped: unparseable HD URL", slog.String("url", hdURL), slog.Any("error", err))
		return ""
	}

	handle, err := c.cache.Download(ctx, u.Path, authToken)
	if err != nil {
		slog.Warn("video cache failed", slog.String("path", u.Path), slog.Any("error", err))
		return ""
	}
	if handle == "" {
		return ""
	}

	local := LocalAssetURL(c.cfg.BaseURL, u.Path)
	slog.Debug("video cached", slog.String("path", u.Path), slog.String("local_url", local))
	return local
}

// LocalAssetURL maps a remote asset path to its local-serving URL: the path
// is flattened into a single segment (separators become dashes) under
// /images/, prefixed with baseURL when one is configured.
func LocalAssetURL(baseURL, remotePath string) string {
	safe := strings.ReplaceAll(strings.TrimPrefix(remotePath, "/"), "/", "-")
	if baseURL != "" {
		return baseURL + "/images/" + safe
	}
	return "/images/" + safe
}

// buildCookie joins the session token with the clearance token when one is
// configured.
func buildCookie(authToken, cfClearance string) string {
	if cfClearance != "" {
		return authToken + ";" + cfClearance
	}
	return authToken
}

// errorDetails renders a non-200 body for diagnostics: parsed JSON when the
// body is JSON, otherwise the first 200 characters of raw text.
func errorDetails(body []byte) string {
	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		if b, err := json.Marshal(parsed); err == nil {
			return string(b)
		}
	}
	text := string(body)
	if len(text) > errorBodyPreview {
		text = text[:errorBodyPreview]
	}
	return text
}
