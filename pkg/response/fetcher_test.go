package response

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "webscope-test", r.UserAgent())
		w.Header().Set("Server", "MobilityGuard v3.1")
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{UserAgent: "webscope-test"})
	ex, err := f.Fetch(context.Background(), srv.URL+"/", time.Second)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, ex.StatusCode)
	require.Equal(t, "MobilityGuard v3.1", ex.Header.Get("Server"))
	require.Equal(t, "hello", string(ex.Body))
}

func TestHTTPFetcher_DefaultUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.UserAgent()))
	}))
	defer srv.Close()

	ex, err := NewHTTPFetcher(HTTPOptions{}).Fetch(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	require.Equal(t, DefaultUserAgent, string(ex.Body))
}

func TestHTTPFetcher_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("login"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ex, err := NewHTTPFetcher(HTTPOptions{}).Fetch(context.Background(), srv.URL+"/", time.Second)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, ex.StatusCode, "redirects are not followed by default")

	ex, err = NewHTTPFetcher(HTTPOptions{FollowRedirects: true}).Fetch(context.Background(), srv.URL+"/", time.Second)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, ex.StatusCode)
	require.Equal(t, srv.URL+"/login", ex.URL)
	require.Equal(t, "login", string(ex.Body))
}

func TestHTTPFetcher_MaxBodyBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 1024)))
	}))
	defer srv.Close()

	ex, err := NewHTTPFetcher(HTTPOptions{MaxBodyBytes: 16}).Fetch(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	require.Len(t, ex.Body, 16)
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(done)

	_, err := NewHTTPFetcher(HTTPOptions{}).Fetch(context.Background(), srv.URL, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrFetchTimeout)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, srv.URL, fe.URL)
}

func TestHTTPFetcher_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher(HTTPOptions{}).Fetch(context.Background(), addr, time.Second)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	require.NotErrorIs(t, err, ErrFetchTimeout)
}
