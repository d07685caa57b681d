package recording

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mbd888/callgate/internal/logging"
	"github.com/mbd888/callgate/internal/metrics"
	"github.com/mbd888/callgate/internal/security"
	"github.com/mbd888/callgate/internal/traces"
)

const fetchTimeout = 30 * time.Second

// TokenSource supplies bearer tokens for recording fetches.
type TokenSource interface {
	Mint() (string, error)
}

// Relay retrieves recordings by reference and writes them to disk.
type Relay struct {
	dir      string
	tokens   TokenSource
	store    *ArtifactStore
	http     *http.Client
	validate func(string) error
}

// NewRelay creates a relay persisting into dir. References are checked
// against the SSRF guard before fetching; they arrive in webhook payloads
// and must not point the relay at internal addresses.
func NewRelay(dir string, tokens TokenSource, store *ArtifactStore) (*Relay, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("recording: create dir %s: %w", dir, err)
	}
	return &Relay{
		dir:    dir,
		tokens: tokens,
		store:  store,
		http: &http.Client{
			Timeout: fetchTimeout,
		},
		validate: security.ValidateEndpointURL,
	}, nil
}

// WithRefValidator overrides the reference check. Passing nil disables it
// (for testing against local servers).
func (r *Relay) WithRefValidator(validate func(string) error) *Relay {
	r.validate = validate
	return r
}

// Store exposes the artifact store backing this relay.
func (r *Relay) Store() *ArtifactStore {
	return r.store
}

// Fetch downloads the recording at ref, persists it under the session ID,
// and registers the artifact. The file is written to a temp path and renamed
// so a transfer failure never leaves a partial artifact visible.
func (r *Relay) Fetch(ctx context.Context, sessionID, ref string) (*Artifact, error) {
	ctx, span := traces.StartSpan(ctx, "recording.fetch",
		traces.SessionID(sessionID), traces.RecordingRef(ref))
	defer span.End()

	artifact, err := r.fetch(ctx, sessionID, ref)
	if err != nil {
		logging.L(ctx).Error("recording relay failed", "ref", ref, "error", err)
		return nil, err
	}

	metrics.RecordingsTotal.WithLabelValues("ok").Inc()
	logging.L(ctx).Info("recording persisted",
		"path", artifact.Path,
		"bytes", artifact.Size,
	)
	return artifact, nil
}

func (r *Relay) fetch(ctx context.Context, sessionID, ref string) (*Artifact, error) {
	if r.validate != nil {
		if err := r.validate(ref); err != nil {
			metrics.RecordingsTotal.WithLabelValues("fetch_failed").Inc()
			return nil, &FetchError{Ref: ref, Err: fmt.Errorf("unsafe reference: %w", err)}
		}
	}

	token, err := r.tokens.Mint()
	if err != nil {
		metrics.RecordingsTotal.WithLabelValues("fetch_failed").Inc()
		return nil, &FetchError{Ref: ref, Err: fmt.Errorf("mint token: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		metrics.RecordingsTotal.WithLabelValues("fetch_failed").Inc()
		return nil, &FetchError{Ref: ref, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.http.Do(req)
	if err != nil {
		metrics.RecordingsTotal.WithLabelValues("fetch_failed").Inc()
		return nil, &FetchError{Ref: ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordingsTotal.WithLabelValues("fetch_failed").Inc()
		return nil, &FetchError{Ref: ref, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	final := filepath.Join(r.dir, sessionID+".ogg")
	tmp, err := os.CreateTemp(r.dir, "download-*.tmp")
	if err != nil {
		metrics.RecordingsTotal.WithLabelValues("write_failed").Inc()
		return nil, &FetchError{Ref: ref, Err: err}
	}

	size, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		metrics.RecordingsTotal.WithLabelValues("write_failed").Inc()
		return nil, &FetchError{Ref: ref, Err: fmt.Errorf("write: %w", err)}
	}

	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		metrics.RecordingsTotal.WithLabelValues("write_failed").Inc()
		return nil, &FetchError{Ref: ref, Err: fmt.Errorf("rename: %w", err)}
	}

	artifact := &Artifact{
		SessionID: sessionID,
		Path:      final,
		Size:      size,
	}
	r.store.Put(artifact)
	return artifact, nil
}
