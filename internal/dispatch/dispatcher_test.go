package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// stubProvider fails with the queued errors before succeeding.
type stubProvider struct {
	errs  []error
	calls int
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Place(ctx context.Context, req PlaceRequest) (PlaceResult, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return PlaceResult{}, err
		}
	}
	return PlaceResult{CallID: "call-1"}, nil
}

func (s *stubProvider) ListActiveCalls(ctx context.Context) ([]ActiveCall, error) {
	return nil, ErrUnsupported
}

func testDispatcher() (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(rand.New(rand.NewSource(1)))
	var slept []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}
	return d, &slept
}

func TestPlace_RetriesTransientThenSucceeds(t *testing.T) {
	d, slept := testDispatcher()
	p := &stubProvider{errs: []error{
		&APIError{Provider: "stub", StatusCode: 503},
		&APIError{Provider: "stub", StatusCode: 503},
	}}

	res, err := d.Place(context.Background(), p, PlaceRequest{ExternalAgentID: "ag", ToNumber: "+1555"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.CallID != "call-1" {
		t.Fatalf("got call id %q", res.CallID)
	}
	if p.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", p.calls)
	}
	if len(*slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(*slept))
	}
}

func TestPlace_ExhaustsAttempts(t *testing.T) {
	d, _ := testDispatcher()
	p := &stubProvider{errs: []error{
		&APIError{StatusCode: 500},
		&APIError{StatusCode: 502},
		&APIError{StatusCode: 504},
		&APIError{StatusCode: 500}, // never reached
	}}

	_, err := d.Place(context.Background(), p, PlaceRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 504 {
		t.Fatalf("expected last transient error surfaced, got %v", err)
	}
	if p.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", p.calls)
	}
}

func TestPlace_NoRetryOn404(t *testing.T) {
	d, slept := testDispatcher()
	p := &stubProvider{errs: []error{&APIError{StatusCode: 404}}}

	_, err := d.Place(context.Background(), p, PlaceRequest{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if p.calls != 1 {
		t.Fatalf("404 must not be retried; got %d attempts", p.calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("no backoff expected, got %v", *slept)
	}
}

func TestPlace_NoRetryOnMalformedResponse(t *testing.T) {
	d, _ := testDispatcher()
	p := &stubProvider{errs: []error{fmt.Errorf("%w: truncated body", ErrMalformedResponse)}}

	_, err := d.Place(context.Background(), p, PlaceRequest{})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("malformed response must not be retried; got %d attempts", p.calls)
	}
}

func TestPlace_NetworkErrorIsRetried(t *testing.T) {
	d, _ := testDispatcher()
	p := &stubProvider{errs: []error{errors.New("dial tcp: connection refused")}}

	res, err := d.Place(context.Background(), p, PlaceRequest{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.CallID == "" || p.calls != 2 {
		t.Fatalf("expected success on attempt 2, got calls=%d", p.calls)
	}
}

func TestBackoff_CapAndJitterBounds(t *testing.T) {
	d, _ := testDispatcher()
	for attempt := 1; attempt <= 10; attempt++ {
		got := d.backoff(attempt)
		if got < 0 {
			t.Fatalf("attempt %d: negative delay %v", attempt, got)
		}
		if got > maxDelay+jitterSpan {
			t.Fatalf("attempt %d: delay %v exceeds cap+jitter", attempt, got)
		}
	}
}

func TestVapiProvider_Place(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.URL.Path != "/call" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"vapi-123"}`))
	}))
	defer srv.Close()

	p := NewVapiProvider(Credentials{APIKey: "key", BaseURL: srv.URL}, srv.Client())
	res, err := p.Place(context.Background(), PlaceRequest{ExternalAgentID: "as-1", ToNumber: "+1555", PromptOverride: "hi"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.CallID != "vapi-123" {
		t.Fatalf("got call id %q", res.CallID)
	}
	if auth != "Bearer key" {
		t.Fatalf("auth header %q", auth)
	}
}

func TestRetellProvider_SurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewRetellProvider(Credentials{APIKey: "key", BaseURL: srv.URL}, srv.Client())
	_, err := p.Place(context.Background(), PlaceRequest{ExternalAgentID: "ag", ToNumber: "+1555"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || !apiErr.Retryable() {
		t.Fatalf("expected retryable 429, got %+v", apiErr)
	}
}
