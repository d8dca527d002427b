// Package storetest provides an in-memory store.Store for handler and
// service tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lingocast/internal/store"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

// Memory keeps every record in maps. Set PingErr to make Ping fail.
type Memory struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*models.Profile
	keys     map[uuid.UUID]*models.APIKey
	jobs     map[uuid.UUID]*models.RenderJob
	videos   map[uuid.UUID]*models.Video
	attempts []*models.PracticeAttempt

	PingErr error
}

func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[uuid.UUID]*models.Profile),
		keys:     make(map[uuid.UUID]*models.APIKey),
		jobs:     make(map[uuid.UUID]*models.RenderJob),
		videos:   make(map[uuid.UUID]*models.Video),
	}
}

var _ store.Store = (*Memory)(nil)

func (m *Memory) Ping(_ context.Context) error { return m.PingErr }

func (m *Memory) CreateProfile(_ context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *Memory) GetProfile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) UpdateProfile(_ context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; !ok {
		return store.ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *Memory) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.APIKey
	for _, k := range m.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.LastUsedAt = &now
	return nil
}

func (m *Memory) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *key
	m.keys[key.ID] = &cp
	return nil
}

func (m *Memory) ListAPIKeys(_ context.Context, profileID uuid.UUID) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.APIKey
	for _, k := range m.keys {
		if k.ProfileID == profileID && k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) RevokeAPIKey(_ context.Context, id uuid.UUID, profileID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.ProfileID != profileID || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	return nil
}

func (m *Memory) CreateRenderJob(_ context.Context, job *models.RenderJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *Memory) GetRenderJob(_ context.Context, id uuid.UUID, profileID uuid.UUID) (*models.RenderJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.ProfileID != profileID {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *Memory) UpdateRenderJobStatus(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if !store.ValidTransition(j.Status, status) {
		return store.ErrInvalidTransition
	}

	now := time.Now().UTC()
	if status == models.RenderStatusRunning && j.Status == models.RenderStatusPending {
		j.StartedAt = &now
	}
	if status == models.RenderStatusCompleted || status == models.RenderStatusFailed {
		j.CompletedAt = &now
	}
	errMsg, remoteID, resultURL, attempts := store.ApplyJobUpdateOptions(opts...)
	if errMsg != nil {
		j.ErrorMessage = errMsg
	}
	if remoteID != nil {
		j.RemoteJobID = remoteID
	}
	if resultURL != nil {
		j.ResultURL = resultURL
	}
	if attempts != nil {
		j.Attempts = *attempts
	}
	j.Status = status
	j.UpdatedAt = now
	return nil
}

func (m *Memory) ListUnfinishedRenderJobs(_ context.Context) ([]*models.RenderJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.RenderJob
	for _, j := range m.jobs {
		if j.Status == models.RenderStatusPending || j.Status == models.RenderStatusRunning {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateVideo(_ context.Context, v *models.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.videos {
		if existing.RenderJobID == v.RenderJobID {
			return store.ErrDuplicateKey
		}
	}
	cp := *v
	m.videos[v.ID] = &cp
	return nil
}

func (m *Memory) ListVideos(_ context.Context, f store.VideoFilter) ([]*models.Video, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*models.Video
	for _, v := range m.videos {
		if v.ProfileID != f.ProfileID {
			continue
		}
		if f.Kind != "" && v.Kind != f.Kind {
			continue
		}
		if f.Language != "" && v.Language != f.Language {
			continue
		}
		cp := *v
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return []*models.Video{}, len(matched), nil
	}
	end := min(start+limit, len(matched))
	return matched[start:end], len(matched), nil
}

func (m *Memory) DeleteVideo(_ context.Context, id uuid.UUID, profileID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok || v.ProfileID != profileID {
		return store.ErrNotFound
	}
	delete(m.videos, id)
	return nil
}

func (m *Memory) CreatePracticeAttempt(_ context.Context, a *models.PracticeAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts = append(m.attempts, &cp)
	return nil
}

func (m *Memory) ListPracticeAttempts(_ context.Context, profileID uuid.UUID, limit int) ([]*models.PracticeAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PracticeAttempt
	for i := len(m.attempts) - 1; i >= 0; i-- {
		if m.attempts[i].ProfileID == profileID {
			cp := *m.attempts[i]
			out = append(out, &cp)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
