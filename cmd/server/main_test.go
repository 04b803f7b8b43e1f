package main

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func stubListen(t *testing.T, fn func(srv *http.Server) error) {
	t.Helper()
	origListen := listenAndServe
	origExit := exitFunc
	t.Cleanup(func() {
		listenAndServe = origListen
		exitFunc = origExit
	})
	listenAndServe = fn
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CONFIG_FILE", "REDIS_ADDR", "SANDBOX_ENABLED", "GEMINI_API_KEY", "STATS_SCHEDULE"} {
		t.Setenv(key, "")
	}
}

func TestRunReturnsListenError(t *testing.T) {
	clearEnv(t)
	stubListen(t, func(srv *http.Server) error {
		if srv.Handler == nil {
			t.Fatalf("expected handler")
		}
		if srv.Addr != ":9090" {
			t.Fatalf("expected addr :9090, got %s", srv.Addr)
		}
		return errors.New("boom")
	})
	exitFunc = func(error) {}
	t.Setenv("PORT", "9090")

	if err := run(context.TODO()); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom error, got %v", err)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	clearEnv(t)
	stubListen(t, func(*http.Server) error {
		t.Fatal("server should not start")
		return nil
	})
	t.Setenv("JOIN_COOLDOWN", "soon")

	if err := run(context.Background()); err == nil {
		t.Fatal("expected config error")
	}
}

func TestMainCompletes(t *testing.T) {
	clearEnv(t)
	stubListen(t, func(*http.Server) error { return nil })
	exitFunc = func(error) { t.Fatal("exitFunc should not be called") }
	t.Setenv("PORT", "9091")

	main()
}

func TestMainHandlesError(t *testing.T) {
	clearEnv(t)
	stubListen(t, func(*http.Server) error { return errors.New("main boom") })
	var got error
	exitFunc = func(err error) { got = err }
	t.Setenv("PORT", "9092")

	main()

	if got == nil || got.Error() != "main boom" {
		t.Fatalf("expected exitFunc to capture error, got %v", got)
	}
}

func TestRunServesHealthWithRedisFeed(t *testing.T) {
	clearEnv(t)
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	t.Setenv("REDIS_ADDR", mr.Addr())

	stubListen(t, func(srv *http.Server) error {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil))
		if rec.Body.String() != "ok" {
			t.Fatalf("expected ok, got %q", rec.Body.String())
		}
		rec = httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rooms/r1/status", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for an unknown room with the feed enabled, got %d", rec.Code)
		}
		return nil
	})

	if err := run(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	clearEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stubListen(t, func(srv *http.Server) error {
		shutdown := make(chan struct{})
		srv.RegisterOnShutdown(func() { close(shutdown) })
		cancel()
		select {
		case <-shutdown:
			return http.ErrServerClosed
		case <-time.After(2 * time.Second):
			t.Fatal("server was not shut down")
			return nil
		}
	})

	if err := run(ctx); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestDefaultExit(t *testing.T) {
	origExit := exit
	origWriter := log.Writer()
	t.Cleanup(func() {
		exit = origExit
		log.SetOutput(origWriter)
	})

	var gotCode int
	exit = func(code int) { gotCode = code }
	var buf bytes.Buffer
	log.SetOutput(&buf)

	defaultExit(errors.New("boom"))
	if gotCode != 1 {
		t.Fatalf("expected exit code 1, got %d", gotCode)
	}
	if !bytes.Contains(buf.Bytes(), []byte("boom")) {
		t.Fatalf("expected log to contain boom, got %q", buf.String())
	}
}
