package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paritytech/command-bot-sub000/internal/hosting"
)

// newEnterpriseServer serves the GitHub Enterprise API layout under /api/v3.
func newEnterpriseServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ghp-test" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewWithToken(srv.URL, "ghp-test")
	require.NoError(t, err)
	return c
}

func TestUpsertComment_CreatesThenEdits(t *testing.T) {
	var created, edited atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v3/repos/paritytech/polkadot/issues/12/comments", func(w http.ResponseWriter, r *http.Request) {
		created.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "queued", body["body"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 555, "body": "queued"}`))
	})
	mux.HandleFunc("PATCH /api/v3/repos/paritytech/polkadot/issues/comments/555", func(w http.ResponseWriter, _ *http.Request) {
		edited.Add(1)
		_, _ = w.Write([]byte(`{"id": 555, "body": "done"}`))
	})
	c := newEnterpriseServer(t, mux)
	ctx := context.Background()

	id, err := c.UpsertComment(ctx, "paritytech", "polkadot", 12, 0, "queued")
	require.NoError(t, err)
	assert.Equal(t, int64(555), id)

	id, err = c.UpsertComment(ctx, "paritytech", "polkadot", 12, id, "done")
	require.NoError(t, err)
	assert.Equal(t, int64(555), id)

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(1), edited.Load())
}

func TestUpsertComment_RecreatesDeletedComment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/v3/repos/paritytech/polkadot/issues/comments/1", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	mux.HandleFunc("POST /api/v3/repos/paritytech/polkadot/issues/12/comments", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 2}`))
	})
	c := newEnterpriseServer(t, mux)

	id, err := c.UpsertComment(context.Background(), "paritytech", "polkadot", 12, 1, "done")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestUpsertComment_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
	}))
	t.Cleanup(srv.Close)
	c, err := NewWithToken(srv.URL, "nope")
	require.NoError(t, err)

	_, err = c.UpsertComment(context.Background(), "o", "r", 1, 0, "x")
	assert.ErrorIs(t, err, hosting.ErrAuthFailed)
}

func TestResolveToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp-env")
	token, err := ResolveToken(hosting.Config{})
	require.NoError(t, err)
	assert.Equal(t, "ghp-env", token)

	t.Setenv("GITHUB_TOKEN", "")
	_, err = New(hosting.Config{})
	assert.ErrorIs(t, err, hosting.ErrAuthFailed)
}
