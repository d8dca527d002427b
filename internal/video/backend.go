package video

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kiranshivaraju/lingocast/internal/poller"
)

var (
	ErrUnsupportedKind = errors.New("unsupported render kind")
	ErrInvalidRequest  = errors.New("invalid render request")
)

// RenderRequest is the union of fields any render kind may need. Each
// Backend validates the subset it uses.
type RenderRequest struct {
	Kind     poller.Kind `json:"kind"`
	Title    string      `json:"title"`
	Script   string      `json:"script"`
	Language string      `json:"language"`

	AvatarID string `json:"avatar_id,omitempty"`
	VoiceID  string `json:"voice_id,omitempty"`

	// legacy_video
	SourceURL string `json:"source_url,omitempty"`

	// photo
	Name       string `json:"name,omitempty"`
	Age        string `json:"age,omitempty"`
	Gender     string `json:"gender,omitempty"`
	Style      string `json:"style,omitempty"`
	Appearance string `json:"appearance,omitempty"`

	// avatar_training
	GroupID string `json:"group_id,omitempty"`
}

const maxScriptLen = 5000

// Backend turns a render request into the pair of functions the poller drives.
type Backend interface {
	// Provider names the remote platform, recorded on the render job.
	Provider() string
	Validate(req RenderRequest) error
	Jobs(req RenderRequest) (poller.SubmitFunc, poller.StatusFunc[Asset])
}

// Registry selects a Backend by Kind. Kind has no other effect on polling.
type Registry struct {
	backends map[poller.Kind]Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[poller.Kind]Backend)}
}

// NewDefaultRegistry registers the avatar platform's three kinds and, when
// legacy is non-nil, the legacy talk kind.
func NewDefaultRegistry(avatar *AvatarClient, legacy *LegacyClient) *Registry {
	r := NewRegistry()
	r.Register(poller.KindVideo, &videoBackend{c: avatar})
	r.Register(poller.KindPhoto, &photoBackend{c: avatar})
	r.Register(poller.KindAvatarTraining, &trainingBackend{c: avatar})
	if legacy != nil {
		r.Register(poller.KindLegacyVideo, &legacyBackend{c: legacy})
	}
	return r
}

func (r *Registry) Register(kind poller.Kind, b Backend) {
	r.backends[kind] = b
}

// Get returns the backend for kind or ErrUnsupportedKind.
func (r *Registry) Get(kind poller.Kind) (Backend, error) {
	b, ok := r.backends[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	return b, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []poller.Kind {
	kinds := make([]poller.Kind, 0, len(r.backends))
	for k := range r.backends {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func validateScript(script string) error {
	if strings.TrimSpace(script) == "" {
		return fmt.Errorf("%w: script is required", ErrInvalidRequest)
	}
	if len(script) > maxScriptLen {
		return fmt.Errorf("%w: script must be at most %d bytes", ErrInvalidRequest, maxScriptLen)
	}
	return nil
}

type videoBackend struct{ c *AvatarClient }

func (b *videoBackend) Provider() string { return "avatar" }

func (b *videoBackend) Validate(req RenderRequest) error {
	if req.AvatarID == "" || req.VoiceID == "" {
		return fmt.Errorf("%w: avatar_id and voice_id are required", ErrInvalidRequest)
	}
	return validateScript(req.Script)
}

func (b *videoBackend) Jobs(req RenderRequest) (poller.SubmitFunc, poller.StatusFunc[Asset]) {
	vr := VideoRequest{Title: req.Title, Script: req.Script, AvatarID: req.AvatarID, VoiceID: req.VoiceID}
	return func(ctx context.Context) (string, error) { return b.c.CreateVideo(ctx, vr) }, b.c.VideoStatus
}

type photoBackend struct{ c *AvatarClient }

func (b *photoBackend) Provider() string { return "avatar" }

func (b *photoBackend) Validate(req RenderRequest) error {
	if req.Appearance == "" {
		return fmt.Errorf("%w: appearance is required", ErrInvalidRequest)
	}
	return nil
}

func (b *photoBackend) Jobs(req RenderRequest) (poller.SubmitFunc, poller.StatusFunc[Asset]) {
	pr := PhotoRequest{
		Name:       firstNonEmpty(req.Name, req.Title),
		Age:        req.Age,
		Gender:     req.Gender,
		Style:      req.Style,
		Appearance: req.Appearance,
	}
	return func(ctx context.Context) (string, error) { return b.c.GeneratePhoto(ctx, pr) }, b.c.PhotoStatus
}

type trainingBackend struct{ c *AvatarClient }

func (b *trainingBackend) Provider() string { return "avatar" }

func (b *trainingBackend) Validate(req RenderRequest) error {
	if req.GroupID == "" {
		return fmt.Errorf("%w: group_id is required", ErrInvalidRequest)
	}
	return nil
}

func (b *trainingBackend) Jobs(req RenderRequest) (poller.SubmitFunc, poller.StatusFunc[Asset]) {
	tr := TrainingRequest{GroupID: req.GroupID}
	return func(ctx context.Context) (string, error) { return b.c.TrainAvatar(ctx, tr) }, b.c.TrainingStatus
}

type legacyBackend struct{ c *LegacyClient }

func (b *legacyBackend) Provider() string { return "legacy" }

func (b *legacyBackend) Validate(req RenderRequest) error {
	if !strings.HasPrefix(req.SourceURL, "http://") && !strings.HasPrefix(req.SourceURL, "https://") {
		return fmt.Errorf("%w: source_url must be an http(s) URL", ErrInvalidRequest)
	}
	return validateScript(req.Script)
}

func (b *legacyBackend) Jobs(req RenderRequest) (poller.SubmitFunc, poller.StatusFunc[Asset]) {
	tr := TalkRequest{SourceURL: req.SourceURL, Script: req.Script, VoiceID: req.VoiceID}
	return func(ctx context.Context) (string, error) { return b.c.CreateTalk(ctx, tr) }, b.c.TalkStatus
}
