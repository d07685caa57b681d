// Package recording fetches call recordings from the telephony platform and
// persists them for playback.
//
// Artifacts are keyed by session ID so concurrent calls do not clobber each
// other's audio. A "latest" pointer additionally preserves the legacy shared
// playback slot: /download.ogg always serves the most recently persisted
// recording, and under concurrent calls the later write wins.
package recording

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoArtifact is returned when no recording has been persisted yet.
var ErrNoArtifact = errors.New("recording: no artifact")

// FetchError wraps a failure retrieving or persisting a recording.
type FetchError struct {
	Ref string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("recording: fetch %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Artifact is one persisted recording.
type Artifact struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"` // local file path
	Size      int64  `json:"size"`
}

// ArtifactStore tracks persisted recordings. Safe for concurrent use.
type ArtifactStore struct {
	mu        sync.RWMutex
	bySession map[string]*Artifact
	latest    *Artifact
}

// NewArtifactStore creates an empty artifact store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{
		bySession: make(map[string]*Artifact),
	}
}

// Put registers a persisted artifact and makes it the latest.
func (s *ArtifactStore) Put(a *Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.bySession[a.SessionID] = &cp
	s.latest = &cp
}

// Get returns the artifact for a session.
func (s *ArtifactStore) Get(sessionID string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.bySession[sessionID]
	if !ok {
		return nil, ErrNoArtifact
	}
	cp := *a
	return &cp, nil
}

// Latest returns the most recently persisted artifact.
func (s *ArtifactStore) Latest() (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, ErrNoArtifact
	}
	cp := *s.latest
	return &cp, nil
}
