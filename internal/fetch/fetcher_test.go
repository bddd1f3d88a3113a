package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<h1>Products</h1>
			<a href="/product/1">One</a>
			<a href="/product/2">Two</a>
			<a href="/login">Login</a>
			<a href="#frag">Frag</a>
			<a href="https://elsewhere.example/x">External</a>
		</body></html>`)
	}))
	defer srv.Close()

	f := NewCollyFetcher(5*time.Second, nil)
	result, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", result.StatusCode)
	}
	if len(result.Links) != 2 {
		t.Errorf("links = %v, want the two same-domain product links", result.Links)
	}
	if result.RecommendDynamic {
		t.Error("plain HTML page should not recommend dynamic rendering")
	}
	if result.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

func TestFetchSPADetection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><script id="__NEXT_DATA__">{}</script></body></html>`)
	}))
	defer srv.Close()

	f := NewCollyFetcher(5*time.Second, nil)
	result, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.RecommendDynamic {
		t.Error("expected SPA page to recommend dynamic rendering")
	}
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewCollyFetcher(5*time.Second, nil)
	_, err := f.Fetch(context.Background(), srv.URL)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", statusErr.Code)
	}
}

func TestFetchNetworkError(t *testing.T) {
	f := NewCollyFetcher(2*time.Second, nil)
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrNetwork) && !errors.Is(err, ErrTimeout) {
		t.Errorf("expected a classified fetch error, got %v", err)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewCollyFetcher(time.Second, nil)
	if _, err := f.Fetch(ctx, "http://example.invalid"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestClassifyFetchError(t *testing.T) {
	if !errors.Is(classifyFetchError(context.DeadlineExceeded, "u"), ErrTimeout) {
		t.Error("deadline exceeded should map to ErrTimeout")
	}
	if !errors.Is(classifyFetchError(errors.New("dial tcp: connection refused"), "u"), ErrNetwork) {
		t.Error("connection refused should map to ErrNetwork")
	}
	if !errors.Is(classifyFetchError(errors.New("request timeout while reading"), "u"), ErrTimeout) {
		t.Error("timeout message should map to ErrTimeout")
	}
}
