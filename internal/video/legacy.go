package video

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kiranshivaraju/lingocast/internal/config"
	"github.com/kiranshivaraju/lingocast/internal/httpclient"
	"github.com/kiranshivaraju/lingocast/internal/poller"
)

// LegacyClient talks to the talking-photo platform that is being phased out.
// Only the talk render endpoints are used.
type LegacyClient struct {
	http *httpclient.Client
}

// NewLegacyClient creates a client for the legacy platform.
func NewLegacyClient(cfg config.LegacyVideoConfig) *LegacyClient {
	return &LegacyClient{
		http: httpclient.New(cfg.BaseURL, cfg.Timeout,
			httpclient.WithHeader("Authorization", "Basic "+cfg.APIKey),
		),
	}
}

// TalkRequest animates a still image reading a script.
type TalkRequest struct {
	SourceURL string
	Script    string
	VoiceID   string
}

type talkScript struct {
	Type     string `json:"type"`
	Input    string `json:"input"`
	Provider *struct {
		Type    string `json:"type"`
		VoiceID string `json:"voice_id"`
	} `json:"provider,omitempty"`
}

// CreateTalk submits a talk render and returns its id.
func (c *LegacyClient) CreateTalk(ctx context.Context, req TalkRequest) (string, error) {
	script := talkScript{Type: "text", Input: req.Script}
	if req.VoiceID != "" {
		script.Provider = &struct {
			Type    string `json:"type"`
			VoiceID string `json:"voice_id"`
		}{Type: "microsoft", VoiceID: req.VoiceID}
	}
	body := struct {
		SourceURL string     `json:"source_url"`
		Script    talkScript `json:"script"`
	}{SourceURL: req.SourceURL, Script: script}

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.http.DoJSON(ctx, http.MethodPost, "/talks", body, &out); err != nil {
		return "", fmt.Errorf("creating talk: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("creating talk: %w: missing id", httpclient.ErrInvalidResponse)
	}
	return out.ID, nil
}

// TalkStatus checks a talk render once.
func (c *LegacyClient) TalkStatus(ctx context.Context, talkID string) (poller.Snapshot[Asset], error) {
	var out struct {
		Status    string  `json:"status"`
		ResultURL string  `json:"result_url"`
		Duration  float64 `json:"duration"`
		Error     *struct {
			Kind        string `json:"kind"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := c.http.DoJSON(ctx, http.MethodGet, "/talks/"+url.PathEscape(talkID), nil, &out); err != nil {
		return poller.Snapshot[Asset]{}, fmt.Errorf("checking talk %s: %w", talkID, err)
	}

	snap := poller.Snapshot[Asset]{Status: poller.Status{
		State:   legacyState(out.Status),
		Message: out.Status,
	}}
	switch snap.State {
	case poller.RemoteCompleted:
		if out.ResultURL == "" {
			return poller.Snapshot[Asset]{}, fmt.Errorf("checking talk %s: %w: done without result_url", talkID, httpclient.ErrInvalidResponse)
		}
		snap.Result = Asset{URL: out.ResultURL, Duration: out.Duration}
	case poller.RemoteFailed:
		snap.Error = "talk " + out.Status
		if out.Error != nil {
			snap.Error = firstNonEmpty(out.Error.Description, out.Error.Kind, snap.Error)
		}
	}
	return snap, nil
}

func legacyState(s string) poller.RemoteState {
	switch strings.ToLower(s) {
	case "done":
		return poller.RemoteCompleted
	case "error", "rejected":
		return poller.RemoteFailed
	default:
		return poller.RemotePending
	}
}
