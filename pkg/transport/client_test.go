package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(maxRetries int) (*Client, *[]time.Duration) {
	client := NewClient(NewRateLimiter(1000), maxRetries, zap.NewNop())
	var slept []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return client, &slept
}

func TestClient_Get_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != UserAgent {
			t.Errorf("User-Agent = %q, want default browser UA", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q, want caller override", r.Header.Get("Accept"))
		}
		if r.Header.Get("Authorization") != "Bearer abc" {
			t.Errorf("Authorization = %q, want merged caller header", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	client, slept := newTestClient(3)
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	headers.Set("Authorization", "Bearer abc")

	body, err := client.Get(context.Background(), server.URL+"/x", headers)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("Get() body = %q, want %q", body, "hello")
	}
	if len(*slept) != 0 {
		t.Errorf("Get() slept %v, want no backoff", *slept)
	}
}

func TestClient_Get_TooManyRequestsBacksOffExponentially(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client, slept := newTestClient(3)

	body, err := client.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("Get() body = %q, want %q", body, "ok")
	}

	expected := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*slept) != len(expected) {
		t.Fatalf("backoffs = %v, want %v", *slept, expected)
	}
	for i := range expected {
		if (*slept)[i] != expected[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, (*slept)[i], expected[i])
		}
	}
}

func TestClient_Get_FailureExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, slept := newTestClient(3)

	_, err := client.Get(context.Background(), server.URL, nil)
	if err == nil {
		t.Fatal("Get() expected error")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Get() error = %T, want *StatusError", err)
	}
	if statusErr.StatusCode() != http.StatusInternalServerError {
		t.Errorf("StatusCode() = %d, want 500", statusErr.StatusCode())
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server saw %d attempts, want 3", got)
	}
	if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != time.Second {
		t.Errorf("backoffs = %v, want [1s 1s]", *slept)
	}
}

func TestClient_HTTPClient_SetsUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != UserAgent {
			t.Errorf("User-Agent = %q, want default browser UA", r.Header.Get("User-Agent"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, _ := newTestClient(1)
	resp, err := client.HTTPClient(nil).Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()

	if client.Limiter().GetStats().Origins != 1 {
		t.Errorf("limiter did not record the request origin")
	}
}

func TestClient_HTTPClient_RetriesLikeGet(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte("ok"))
		}
	}))
	defer server.Close()

	client, slept := newTestClient(3)
	resp, err := client.HTTPClient(nil).Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != time.Second {
		t.Errorf("backoffs = %v, want [1s 1s]", *slept)
	}
}

func TestClient_HTTPClient_ReturnsLastResponse(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, slept := newTestClient(3)
	resp, err := client.HTTPClient(nil).Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want the final 429", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server saw %d attempts, want 3", got)
	}
	if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
		t.Errorf("backoffs = %v, want [1s 2s]", *slept)
	}
}

func TestClient_HTTPClient_ReplaysBody(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := newTestClient(2)
	resp, err := client.HTTPClient(nil).Post(server.URL, "application/x-www-form-urlencoded",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	_ = resp.Body.Close()

	if len(bodies) != 2 || bodies[1] != "grant_type=client_credentials" {
		t.Errorf("bodies = %q, want the form sent twice", bodies)
	}
}

func TestStatusError_OmitsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, _ := newTestClient(1)
	_, err := client.Get(context.Background(), server.URL+"/resolve?client_id=secret123&url=x", nil)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Get() error = %v, want *StatusError", err)
	}
	if statusErr.URL != server.URL+"/resolve" {
		t.Errorf("URL = %q, want %q", statusErr.URL, server.URL+"/resolve")
	}
	if strings.Contains(err.Error(), "secret123") {
		t.Errorf("error %q leaks the query string", err)
	}
}
