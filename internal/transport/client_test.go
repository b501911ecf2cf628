package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/example/scriptrun-bridge/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(srv.URL, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return client
}

func TestNewValidatesBaseURL(t *testing.T) {
	for _, raw := range []string{"ftp://backend", "http://", "::not a url"} {
		if _, err := New(raw, zerolog.Nop()); err == nil {
			t.Fatalf("expected error for base url %q", raw)
		}
	}

	client, err := New("", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error for empty base url: %v", err)
	}
	if client.BaseURL() != defaultBaseURL {
		t.Fatalf("expected default base url, got %s", client.BaseURL())
	}
}

func TestFetchSheetDataPassesBodyThrough(t *testing.T) {
	const body = `{"success":true,"data":[{"id":1}]}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/data" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("sheet"); got != "PPCV3" {
			t.Errorf("expected sheet PPCV3, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})

	out := client.FetchSheetData(context.Background(), "PPCV3")
	if out.IsFailure() {
		t.Fatalf("unexpected failure: %+v", out)
	}
	if !out.Success {
		t.Fatalf("expected success flag from body")
	}
	if string(out.Payload) != body {
		t.Fatalf("expected payload %s, got %s", body, out.Payload)
	}
}

func TestFetchSheetDataPercentEncodesSheetName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "sheet=ANTONIA%20VENTAS%26CO" {
			t.Errorf("unexpected raw query %q", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"success":true,"data":[]}`)
	})

	if out := client.FetchSheetData(context.Background(), "ANTONIA VENTAS&CO"); out.IsFailure() {
		t.Fatalf("unexpected failure: %+v", out)
	}
}

func TestLoginUnauthorizedWithoutBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var creds loginRequest
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("decode credentials: %v", err)
		}
		if creds.Username != "bob" || creds.Password != "wrong" {
			t.Errorf("unexpected credentials %+v", creds)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	out := client.Login(context.Background(), "bob", "wrong")
	if !out.IsFailure() || out.Failure != models.FailureServer {
		t.Fatalf("expected server failure, got %+v", out)
	}
	if out.Success {
		t.Fatalf("expected success=false")
	}
	if out.Message != "Connection Error: Error: Network response was not ok" {
		t.Fatalf("unexpected message %q", out.Message)
	}
}

func TestSavePPCServerErrorIncludesBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Payload    []map[string]any `json:"payload"`
			ActiveUser string           `json:"activeUser"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.ActiveUser != "LUIS_CARLOS" || len(req.Payload) != 1 || req.Payload[0]["concepto"] != "X" {
			t.Errorf("unexpected save request %+v", req)
		}
		http.Error(w, "worksheet locked", http.StatusInternalServerError)
	})

	out := client.SavePPC(context.Background(), []map[string]any{{"concepto": "X"}}, "LUIS_CARLOS")
	if out.Failure != models.FailureServer {
		t.Fatalf("expected server failure, got %+v", out)
	}
	want := "Connection Error: Error: Network response was not ok: worksheet locked"
	if out.Message != want {
		t.Fatalf("expected %q, got %q", want, out.Message)
	}
}

func TestSavePPCNilPayloadSendsEmptyList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if string(raw) != `{"payload":[],"activeUser":"ana"}` {
			t.Errorf("unexpected body %s", raw)
		}
		_, _ = io.WriteString(w, `{"success":true,"ids":[]}`)
	})

	if out := client.SavePPC(context.Background(), nil, "ana"); out.IsFailure() {
		t.Fatalf("unexpected failure: %+v", out)
	}
}

func TestConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	client, err := New(baseURL, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	out := client.Login(context.Background(), "bob", "secret")
	if out.Failure != models.FailureConnection {
		t.Fatalf("expected connection failure, got %+v", out)
	}
	if !strings.HasPrefix(out.Message, models.ConnectionErrorPrefix) {
		t.Fatalf("expected connection error prefix, got %q", out.Message)
	}
}

func TestInvalidJSONIsDecodeFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>proxy error</html>")
	})

	out := client.SystemConfig(context.Background(), "ADMIN")
	if out.Failure != models.FailureDecode {
		t.Fatalf("expected decode failure, got %+v", out)
	}
	if !strings.HasPrefix(out.Message, "Connection Error: decode response: ") {
		t.Fatalf("unexpected message %q", out.Message)
	}
}

func TestBodyLimitTruncatesResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":[1,2,3]}`)
	}, WithBodyLimit(8))

	if out := client.FetchSheetData(context.Background(), "PPCV3"); out.Failure != models.FailureDecode {
		t.Fatalf("expected truncated body to fail decoding, got %+v", out)
	}
}

func TestSystemConfigSendsRole(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/config" || r.URL.Query().Get("role") != "PPC_ADMIN" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = io.WriteString(w, `{"departments":{},"staff":[],"accessProjects":true}`)
	})

	out := client.SystemConfig(context.Background(), "PPC_ADMIN")
	if out.IsFailure() || !out.Success {
		t.Fatalf("expected object without success field to settle, got %+v", out)
	}
	fields := out.Fields()
	if fields["accessProjects"] != true {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestNextSequenceBareString(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/nextSeq" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `"1001"`)
	})

	out := client.NextSequence(context.Background())
	if out.IsFailure() {
		t.Fatalf("unexpected failure: %+v", out)
	}
	var seq string
	if err := out.Decode(&seq); err != nil || seq != "1001" {
		t.Fatalf("expected sequence 1001, got %q (%v)", seq, err)
	}
}

func TestRequestIDForwarded(t *testing.T) {
	var got []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get(RequestIDHeader))
		_, _ = io.WriteString(w, `{"status":"online"}`)
	})

	ctx := WithRequestID(context.Background(), "call-123")
	client.Ping(ctx)
	client.Ping(context.Background())

	if len(got) != 2 {
		t.Fatalf("expected two requests, got %d", len(got))
	}
	if got[0] != "call-123" {
		t.Fatalf("expected forwarded request id, got %q", got[0])
	}
	if got[1] == "" || got[1] == "call-123" {
		t.Fatalf("expected generated request id, got %q", got[1])
	}
}

func TestTranscribeAndAnalyzeUploadsMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("apiKey") != "key-1" {
			t.Errorf("expected api key, got %q", r.FormValue("apiKey"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "note.ogg" || string(data) != "audio-bytes" {
			t.Errorf("unexpected upload %s %q", header.Filename, data)
		}
		_, _ = io.WriteString(w, `{"success":true,"transcription":"hola","data":{}}`)
	})

	out := client.TranscribeAndAnalyze(context.Background(), "/tmp/note.ogg", []byte("audio-bytes"), "key-1")
	if out.IsFailure() || !out.Success {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestRateLimitHonoursContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true}`)
	}, WithRateLimit(0.001, 1))

	if out := client.Ping(context.Background()); out.IsFailure() {
		t.Fatalf("expected first call to use the burst, got %+v", out)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := client.Ping(ctx)
	if out.Failure != models.FailureConnection || !strings.Contains(out.Message, "rate limit") {
		t.Fatalf("expected rate limit connection failure, got %+v", out)
	}
}

func TestSpansAndTraceHeaders(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var traceparent string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		w.WriteHeader(http.StatusBadGateway)
	}, WithTracer(tp.Tracer("test")), WithPropagator(propagation.TraceContext{}))

	client.Login(context.Background(), "bob", "wrong")

	if traceparent == "" {
		t.Fatalf("expected traceparent header to be injected")
	}
	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if spans[0].Name() != "scriptrun.login" {
		t.Fatalf("unexpected span name %s", spans[0].Name())
	}
	found := false
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == "http.response.status_code" && attr.Value.AsInt64() == http.StatusBadGateway {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected status code attribute on span")
	}
}

func TestRoutesListsEveryOperation(t *testing.T) {
	routes := Routes()
	if routes["login"] != "POST /api/login" || routes["nextSequence"] != "GET /api/nextSeq" {
		t.Fatalf("unexpected routes %v", routes)
	}
	if len(routes) != 7 {
		t.Fatalf("expected 7 routes, got %d", len(routes))
	}
}
