package esign

import (
	"context"
	"fmt"
	"sync"
)

// MemoryProvider is the vendorless stand-in used in development and
// tests. With auto-complete enabled every status check reports the
// session as signed.
type MemoryProvider struct {
	mu           sync.Mutex
	sessions     map[string]SessionStatus
	seq          int
	autoComplete bool
	failing      bool
}

type MemoryOption func(*MemoryProvider)

func WithAutoComplete() MemoryOption {
	return func(p *MemoryProvider) { p.autoComplete = true }
}

func NewMemory(opts ...MemoryOption) *MemoryProvider {
	p := &MemoryProvider{sessions: make(map[string]SessionStatus)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *MemoryProvider) CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return Session{}, ErrUnavailable
	}

	p.seq++
	id := fmt.Sprintf("sess_%06d", p.seq)
	p.sessions[id] = SessionPending
	return Session{
		ID:          id,
		RedirectURL: "https://esign.invalid/sign/" + id,
		Status:      SessionPending,
	}, nil
}

func (p *MemoryProvider) SessionStatus(ctx context.Context, id string) (SessionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return "", ErrUnavailable
	}

	status, ok := p.sessions[id]
	if !ok {
		return SessionExpired, nil
	}
	if p.autoComplete && status == SessionPending {
		p.sessions[id] = SessionCompleted
		return SessionCompleted, nil
	}
	return status, nil
}

// Complete marks a session signed. Test helper.
func (p *MemoryProvider) Complete(id string) {
	p.mu.Lock()
	p.sessions[id] = SessionCompleted
	p.mu.Unlock()
}

// Expire marks a session expired. Test helper.
func (p *MemoryProvider) Expire(id string) {
	p.mu.Lock()
	p.sessions[id] = SessionExpired
	p.mu.Unlock()
}

// SetFailing makes subsequent calls return ErrUnavailable. Test helper.
func (p *MemoryProvider) SetFailing(failing bool) {
	p.mu.Lock()
	p.failing = failing
	p.mu.Unlock()
}
