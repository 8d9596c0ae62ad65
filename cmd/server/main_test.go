package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func stubServe(t *testing.T, fn func(context.Context, string, http.Handler) error) {
	t.Helper()
	origListen := listenAndServe
	origExit := exitFunc
	t.Cleanup(func() {
		listenAndServe = origListen
		exitFunc = origExit
	})
	listenAndServe = fn
}

func TestRunReturnsListenError(t *testing.T) {
	stubServe(t, func(_ context.Context, addr string, handler http.Handler) error {
		if handler == nil {
			t.Fatalf("expected handler")
		}
		if addr != ":9090" {
			t.Fatalf("expected addr :9090, got %s", addr)
		}
		return errors.New("boom")
	})
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "")

	if err := run(context.Background()); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom error, got %v", err)
	}
}

func TestRunServesRoutes(t *testing.T) {
	stubServe(t, func(_ context.Context, _ string, handler http.Handler) error {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
			t.Fatalf("expected healthy router, got %d %q", rec.Code, rec.Body.String())
		}
		return nil
	})
	t.Setenv("PORT", "")
	t.Setenv("REDIS_ADDR", "")

	if err := run(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestRunWithRedisPublisher(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	stubServe(t, func(context.Context, string, http.Handler) error { return nil })
	t.Setenv("PORT", "8080")
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("SESSION_IDLE_TTL", "1h")

	if err := run(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	stubServe(t, func(context.Context, string, http.Handler) error {
		t.Fatal("server must not start with invalid config")
		return nil
	})
	t.Setenv("PORT", "not-a-port")

	if err := run(context.Background()); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestMainHandlesError(t *testing.T) {
	stubServe(t, func(context.Context, string, http.Handler) error { return errors.New("main boom") })
	var got error
	exitFunc = func(err error) { got = err }
	t.Setenv("PORT", "9092")
	t.Setenv("REDIS_ADDR", "")

	main()

	if got == nil || got.Error() != "main boom" {
		t.Fatalf("expected exitFunc to capture error, got %v", got)
	}
}

func TestMainCompletes(t *testing.T) {
	stubServe(t, func(context.Context, string, http.Handler) error { return nil })
	exitFunc = func(error) { t.Fatal("exitFunc should not be called") }
	t.Setenv("PORT", "9091")
	t.Setenv("REDIS_ADDR", "")

	main()
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, "127.0.0.1:0", http.NotFoundHandler()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
}

func TestDefaultExit(t *testing.T) {
	origExit := exit
	origStderr := stderr
	t.Cleanup(func() {
		exit = origExit
		stderr = origStderr
	})

	var gotCode int
	exit = func(code int) { gotCode = code }
	var buf bytes.Buffer
	stderr = &buf

	defaultExit(errors.New("boom"))
	if gotCode != 1 {
		t.Fatalf("expected exit code 1, got %d", gotCode)
	}
	if !bytes.Contains(buf.Bytes(), []byte("boom")) {
		t.Fatalf("expected output to contain boom, got %q", buf.String())
	}
}
