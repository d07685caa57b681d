package recording

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct{}

func (staticTokens) Mint() (string, error) { return "tok-abc", nil }

func TestArtifactStoreEmpty(t *testing.T) {
	store := NewArtifactStore()

	_, err := store.Get("sess-1")
	assert.ErrorIs(t, err, ErrNoArtifact)

	_, err = store.Latest()
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestArtifactStorePerSessionAndLatest(t *testing.T) {
	store := NewArtifactStore()
	store.Put(&Artifact{SessionID: "sess-1", Path: "/a.ogg", Size: 10})
	store.Put(&Artifact{SessionID: "sess-2", Path: "/b.ogg", Size: 20})

	a, err := store.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "/a.ogg", a.Path)

	// Later write wins the shared latest slot.
	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "sess-2", latest.SessionID)

	// Re-recording a session overwrites its artifact and takes latest back.
	store.Put(&Artifact{SessionID: "sess-1", Path: "/a2.ogg", Size: 30})
	latest, err = store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "/a2.ogg", latest.Path)
}

func TestFetchPersistsArtifact(t *testing.T) {
	audio := []byte("OggS fake audio payload")
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write(audio)
	}))
	defer srv.Close()

	dir := t.TempDir()
	relay, err := NewRelay(dir, staticTokens{}, NewArtifactStore())
	require.NoError(t, err)
	relay.WithRefValidator(nil)

	artifact, err := relay.Fetch(context.Background(), "sess-1", srv.URL+"/rec/123")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-abc", gotAuth)
	assert.Equal(t, filepath.Join(dir, "sess-1.ogg"), artifact.Path)
	assert.Equal(t, int64(len(audio)), artifact.Size)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, audio, data)

	stored, err := relay.Store().Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, artifact.Path, stored.Path)
}

func TestFetchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	relay, err := NewRelay(dir, staticTokens{}, NewArtifactStore())
	require.NoError(t, err)
	relay.WithRefValidator(nil)

	_, err = relay.Fetch(context.Background(), "sess-1", srv.URL+"/rec/missing")
	require.Error(t, err)

	var fe *FetchError
	assert.ErrorAs(t, err, &fe)

	// No artifact registered, no partial file left behind.
	_, err = relay.Store().Get("sess-1")
	assert.ErrorIs(t, err, ErrNoArtifact)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	relay, err := NewRelay(t.TempDir(), staticTokens{}, NewArtifactStore())
	require.NoError(t, err)
	relay.WithRefValidator(nil)

	_, err = relay.Fetch(context.Background(), "sess-1", url)
	var fe *FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestFetchRejectsUnsafeReference(t *testing.T) {
	// Default validator refuses internal targets supplied via webhook.
	relay, err := NewRelay(t.TempDir(), staticTokens{}, NewArtifactStore())
	require.NoError(t, err)

	_, err = relay.Fetch(context.Background(), "sess-1", "http://169.254.169.254/latest/meta-data")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "unsafe reference")
}
