// Package video holds the clients for the two remote video platforms and the
// per-kind backends that turn a render request into poller submit and status
// functions.
package video

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kiranshivaraju/lingocast/internal/config"
	"github.com/kiranshivaraju/lingocast/internal/httpclient"
	"github.com/kiranshivaraju/lingocast/internal/poller"
)

// ErrRejected is returned when the platform answers 2xx but reports an error
// in the response envelope.
var ErrRejected = errors.New("video platform rejected request")

// Asset is the payload of a completed remote job.
type Asset struct {
	URL          string  `json:"url,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	AvatarID     string  `json:"avatar_id,omitempty"`
}

// Location returns where the finished artifact can be found: its URL, or the
// avatar id for trained avatars which have no media file.
func (a Asset) Location() string {
	if a.URL != "" {
		return a.URL
	}
	return a.AvatarID
}

// AvatarClient talks to the text-to-video avatar platform.
type AvatarClient struct {
	http *httpclient.Client
}

// NewAvatarClient creates a client with the platform's key header and the
// configured outbound request rate.
func NewAvatarClient(cfg config.AvatarConfig) *AvatarClient {
	return &AvatarClient{
		http: httpclient.New(cfg.BaseURL, cfg.Timeout,
			httpclient.WithHeader("X-Api-Key", cfg.APIKey),
			httpclient.WithRateLimit(cfg.RequestsPerSec, 1),
		),
	}
}

// VideoRequest describes one avatar video render.
type VideoRequest struct {
	Title    string
	Script   string
	AvatarID string
	VoiceID  string
	Width    int
	Height   int
}

// PhotoRequest describes one AI photo generation.
type PhotoRequest struct {
	Name        string
	Age         string
	Gender      string
	Style       string
	Orientation string
	Appearance  string
}

// TrainingRequest starts training an avatar group from previously generated looks.
type TrainingRequest struct {
	GroupID string
}

type envelope[T any] struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Data T `json:"data"`
}

func (e envelope[T]) err() error {
	if e.Error != nil && (e.Error.Code != "" || e.Error.Message != "") {
		return fmt.Errorf("%w: %s %s", ErrRejected, e.Error.Code, e.Error.Message)
	}
	return nil
}

type videoInput struct {
	Character struct {
		Type        string `json:"type"`
		AvatarID    string `json:"avatar_id"`
		AvatarStyle string `json:"avatar_style"`
	} `json:"character"`
	Voice struct {
		Type      string `json:"type"`
		InputText string `json:"input_text"`
		VoiceID   string `json:"voice_id"`
	} `json:"voice"`
}

type createVideoBody struct {
	Title       string       `json:"title,omitempty"`
	VideoInputs []videoInput `json:"video_inputs"`
	Dimension   struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"dimension"`
}

// CreateVideo submits a render and returns the platform's video id.
func (c *AvatarClient) CreateVideo(ctx context.Context, req VideoRequest) (string, error) {
	in := videoInput{}
	in.Character.Type = "avatar"
	in.Character.AvatarID = req.AvatarID
	in.Character.AvatarStyle = "normal"
	in.Voice.Type = "text"
	in.Voice.InputText = req.Script
	in.Voice.VoiceID = req.VoiceID

	body := createVideoBody{Title: req.Title, VideoInputs: []videoInput{in}}
	body.Dimension.Width, body.Dimension.Height = req.Width, req.Height
	if body.Dimension.Width == 0 || body.Dimension.Height == 0 {
		body.Dimension.Width, body.Dimension.Height = 720, 1280
	}

	var out envelope[struct {
		VideoID string `json:"video_id"`
	}]
	if err := c.http.DoJSON(ctx, http.MethodPost, "/v2/video/generate", body, &out); err != nil {
		return "", fmt.Errorf("creating video: %w", err)
	}
	if err := out.err(); err != nil {
		return "", fmt.Errorf("creating video: %w", err)
	}
	if out.Data.VideoID == "" {
		return "", fmt.Errorf("creating video: %w: missing video_id", httpclient.ErrInvalidResponse)
	}
	return out.Data.VideoID, nil
}

type videoStatusData struct {
	Status       string  `json:"status"`
	VideoURL     string  `json:"video_url"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Duration     float64 `json:"duration"`
	Progress     float64 `json:"progress"`
	Error        *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

// VideoStatus checks a render once.
func (c *AvatarClient) VideoStatus(ctx context.Context, videoID string) (poller.Snapshot[Asset], error) {
	var out struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    videoStatusData `json:"data"`
	}
	path := "/v1/video_status.get?video_id=" + url.QueryEscape(videoID)
	if err := c.http.DoJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return poller.Snapshot[Asset]{}, fmt.Errorf("checking video %s: %w", videoID, err)
	}

	d := out.Data
	snap := poller.Snapshot[Asset]{Status: poller.Status{
		State:    avatarState(d.Status),
		Progress: d.Progress,
		Message:  d.Status,
	}}
	switch snap.State {
	case poller.RemoteCompleted:
		if d.VideoURL == "" {
			return poller.Snapshot[Asset]{}, fmt.Errorf("checking video %s: %w: completed without video_url", videoID, httpclient.ErrInvalidResponse)
		}
		snap.Result = Asset{URL: d.VideoURL, ThumbnailURL: d.ThumbnailURL, Duration: d.Duration}
	case poller.RemoteFailed:
		snap.Error = "video render failed"
		if d.Error != nil {
			snap.Error = firstNonEmpty(d.Error.Message, d.Error.Detail, snap.Error)
		}
	}
	return snap, nil
}

// GeneratePhoto submits a photo generation and returns its generation id.
func (c *AvatarClient) GeneratePhoto(ctx context.Context, req PhotoRequest) (string, error) {
	body := map[string]string{
		"name":        req.Name,
		"age":         req.Age,
		"gender":      req.Gender,
		"style":       req.Style,
		"orientation": firstNonEmpty(req.Orientation, "square"),
		"appearance":  req.Appearance,
	}

	var out envelope[struct {
		GenerationID string `json:"generation_id"`
	}]
	if err := c.http.DoJSON(ctx, http.MethodPost, "/v2/photo_avatar/photo/generate", body, &out); err != nil {
		return "", fmt.Errorf("generating photo: %w", err)
	}
	if err := out.err(); err != nil {
		return "", fmt.Errorf("generating photo: %w", err)
	}
	if out.Data.GenerationID == "" {
		return "", fmt.Errorf("generating photo: %w: missing generation_id", httpclient.ErrInvalidResponse)
	}
	return out.Data.GenerationID, nil
}

// PhotoStatus checks a photo generation once.
func (c *AvatarClient) PhotoStatus(ctx context.Context, generationID string) (poller.Snapshot[Asset], error) {
	var out envelope[struct {
		Status       string   `json:"status"`
		ImageURLList []string `json:"image_url_list"`
		Progress     float64  `json:"progress"`
		Msg          string   `json:"msg"`
	}]
	path := "/v2/photo_avatar/generation/" + url.PathEscape(generationID)
	if err := c.http.DoJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return poller.Snapshot[Asset]{}, fmt.Errorf("checking photo %s: %w", generationID, err)
	}
	if err := out.err(); err != nil {
		return poller.Snapshot[Asset]{}, fmt.Errorf("checking photo %s: %w", generationID, err)
	}

	d := out.Data
	snap := poller.Snapshot[Asset]{Status: poller.Status{
		State:    avatarState(d.Status),
		Progress: d.Progress,
		Message:  d.Status,
	}}
	switch snap.State {
	case poller.RemoteCompleted:
		if len(d.ImageURLList) == 0 {
			return poller.Snapshot[Asset]{}, fmt.Errorf("checking photo %s: %w: completed without images", generationID, httpclient.ErrInvalidResponse)
		}
		snap.Result = Asset{URL: d.ImageURLList[0], ThumbnailURL: d.ImageURLList[0]}
	case poller.RemoteFailed:
		snap.Error = firstNonEmpty(d.Msg, "photo generation failed")
	}
	return snap, nil
}

// TrainAvatar starts training an avatar group. The group id doubles as the
// job id for TrainingStatus.
func (c *AvatarClient) TrainAvatar(ctx context.Context, req TrainingRequest) (string, error) {
	var out envelope[struct {
		FlowID string `json:"flow_id"`
	}]
	body := map[string]string{"group_id": req.GroupID}
	if err := c.http.DoJSON(ctx, http.MethodPost, "/v2/photo_avatar/train", body, &out); err != nil {
		return "", fmt.Errorf("training avatar: %w", err)
	}
	if err := out.err(); err != nil {
		return "", fmt.Errorf("training avatar: %w", err)
	}
	return req.GroupID, nil
}

// TrainingStatus checks an avatar training once.
func (c *AvatarClient) TrainingStatus(ctx context.Context, groupID string) (poller.Snapshot[Asset], error) {
	var out envelope[struct {
		Status   string  `json:"status"`
		ErrorMsg *string `json:"error_msg"`
		Progress float64 `json:"progress"`
	}]
	path := "/v2/photo_avatar/train/status/" + url.PathEscape(groupID)
	if err := c.http.DoJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return poller.Snapshot[Asset]{}, fmt.Errorf("checking training %s: %w", groupID, err)
	}
	if err := out.err(); err != nil {
		return poller.Snapshot[Asset]{}, fmt.Errorf("checking training %s: %w", groupID, err)
	}

	d := out.Data
	snap := poller.Snapshot[Asset]{Status: poller.Status{
		State:    avatarState(d.Status),
		Progress: d.Progress,
		Message:  d.Status,
	}}
	switch snap.State {
	case poller.RemoteCompleted:
		snap.Result = Asset{AvatarID: groupID}
	case poller.RemoteFailed:
		snap.Error = "avatar training failed"
		if d.ErrorMsg != nil && *d.ErrorMsg != "" {
			snap.Error = *d.ErrorMsg
		}
	}
	return snap, nil
}

// avatarState maps the platform's status strings. Unknown values are treated
// as still pending so that a new intermediate status never fails a job.
func avatarState(s string) poller.RemoteState {
	switch strings.ToLower(s) {
	case "completed", "ready", "success":
		return poller.RemoteCompleted
	case "failed", "error":
		return poller.RemoteFailed
	default:
		return poller.RemotePending
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
