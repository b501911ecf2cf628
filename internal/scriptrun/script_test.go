package scriptrun_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/scriptrun-bridge/internal/models"
	"github.com/example/scriptrun-bridge/internal/scriptrun"
	"github.com/example/scriptrun-bridge/internal/transport"
)

type recorder struct {
	mu        sync.Mutex
	successes []models.Outcome
	failures  []models.Outcome
}

func (r *recorder) success(out models.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, out)
}

func (r *recorder) failure(out models.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, out)
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.successes), len(r.failures)
}

func newBackendRunner(t *testing.T, handler http.HandlerFunc) *scriptrun.Runner {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := transport.New(srv.URL, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected client error: %v", err)
	}
	return newRunner(t, client)
}

func TestScriptFetchPPCData(t *testing.T) {
	const body = `{"success":true,"data":[{"id":"T-1","task":"Pour slab"}],"headers":["id","task"]}`
	r := newBackendRunner(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/data" || req.URL.Query().Get("sheet") != "PPCV3" {
			t.Errorf("unexpected request %s", req.URL.String())
		}
		_, _ = io.WriteString(w, body)
	})

	rec := &recorder{}
	r.Script().
		WithSuccessHandler(rec.success).
		WithFailureHandler(rec.failure).
		Run("apiFetchPPCData")
	r.Wait()

	successes, failures := rec.counts()
	if successes != 1 || failures != 0 {
		t.Fatalf("expected one success, got %d success / %d failure", successes, failures)
	}
	if string(rec.successes[0].Payload) != body {
		t.Fatalf("expected verbatim body, got %s", rec.successes[0].Payload)
	}
}

func TestScriptLoginUnauthorized(t *testing.T) {
	r := newBackendRunner(t, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost || req.URL.Path != "/api/login" {
			t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	rec := &recorder{}
	r.Script().
		WithSuccessHandler(rec.success).
		WithFailureHandler(rec.failure).
		Run("apiLogin", "maria", "wrong")
	r.Wait()

	successes, failures := rec.counts()
	if successes != 0 || failures != 1 {
		t.Fatalf("expected one failure, got %d success / %d failure", successes, failures)
	}
	got := rec.failures[0]
	if got.Success || got.Message != "Connection Error: Error: Network response was not ok" {
		t.Fatalf("unexpected failure outcome %+v", got)
	}
}

func TestScriptRejectedLoginIsSuccessHandler(t *testing.T) {
	r := newBackendRunner(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"message":"Invalid credentials"}`)
	})

	rec := &recorder{}
	r.Script().
		WithSuccessHandler(rec.success).
		WithFailureHandler(rec.failure).
		Run("apiLogin", "maria", "wrong")
	r.Wait()

	successes, failures := rec.counts()
	if successes != 1 || failures != 0 {
		t.Fatalf("expected settled rejection on success handler, got %d / %d", successes, failures)
	}
	if rec.successes[0].Success || rec.successes[0].Message != "Invalid credentials" {
		t.Fatalf("unexpected outcome %+v", rec.successes[0])
	}
}

func TestScriptNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client, err := transport.New(srv.URL, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected client error: %v", err)
	}
	srv.Close()
	r := newRunner(t, client)

	rec := &recorder{}
	r.Script().
		WithSuccessHandler(rec.success).
		WithFailureHandler(rec.failure).
		Run("apiGetNextWorkOrderSeq")
	r.Wait()

	successes, failures := rec.counts()
	if successes != 0 || failures != 1 {
		t.Fatalf("expected one failure, got %d success / %d failure", successes, failures)
	}
	if got := rec.failures[0]; got.Failure != models.FailureConnection || !strings.HasPrefix(got.Message, models.ConnectionErrorPrefix) {
		t.Fatalf("unexpected failure outcome %+v", got)
	}
}

func TestScriptHandlersAreCopyOnWrite(t *testing.T) {
	r := newRunner(t, newFakeBackend())

	first, second := &recorder{}, &recorder{}
	base := r.Script().WithSuccessHandler(first.success)
	derived := base.WithSuccessHandler(second.success)

	base.Run("apiLogout")
	derived.Run("apiLogout")
	r.Wait()

	if n, _ := first.counts(); n != 1 {
		t.Fatalf("expected base handler fired once, got %d", n)
	}
	if n, _ := second.counts(); n != 1 {
		t.Fatalf("expected derived handler fired once, got %d", n)
	}
	if base.Handlers().OnFailure != nil || derived.Handlers().OnSuccess == nil {
		t.Fatalf("unexpected handler pairs")
	}
}

func TestScriptCapturesHandlersAtRun(t *testing.T) {
	backend := newFakeBackend()
	backend.block = make(chan struct{})
	r := newRunner(t, backend)

	first, second := &recorder{}, &recorder{}
	s := r.Script().WithSuccessHandler(first.success)
	s.Run("apiGetNextWorkOrderSeq")
	s = s.WithSuccessHandler(second.success)
	close(backend.block)
	r.Wait()

	if n, _ := first.counts(); n != 1 {
		t.Fatalf("expected captured handler fired, got %d", n)
	}
	if n, _ := second.counts(); n != 0 {
		t.Fatalf("reassigned handler must not see earlier run, got %d", n)
	}
	_ = s
}

func TestScriptWithContextCancelled(t *testing.T) {
	backend := newFakeBackend()
	backend.block = make(chan struct{})
	backend.outcome = models.ConnectionFailure(models.FailureConnection, context.Canceled)
	r := newRunner(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	r.Script().WithContext(ctx).WithFailureHandler(rec.failure).WithSuccessHandler(rec.success).Run("apiFetchPPCData")
	cancel()
	r.Wait()

	if successes, failures := rec.counts(); successes != 0 || failures != 1 {
		t.Fatalf("expected failure after cancel, got %d / %d", successes, failures)
	}
}

func TestUnboundScriptFailsOnce(t *testing.T) {
	rec := &recorder{}
	scriptrun.Script{}.
		WithSuccessHandler(rec.success).
		WithFailureHandler(rec.failure).
		Run("apiLogin", "maria", "secret")

	successes, failures := rec.counts()
	if successes != 0 || failures != 1 {
		t.Fatalf("expected one failure, got %d / %d", successes, failures)
	}
	if rec.failures[0].Failure != models.FailureInvalidCall {
		t.Fatalf("unexpected failure %+v", rec.failures[0])
	}
}
