package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				calls = append(calls, name)
				return next(ctx, req)
			}
		}
	}
	ep := Chain(mw("a"), mw("b"), mw("c"))(func(context.Context, any) (any, error) {
		calls = append(calls, "endpoint")
		return nil, nil
	})
	ep(context.Background(), nil)

	want := "a,b,c,endpoint"
	if got := strings.Join(calls, ","); got != want {
		t.Errorf("call order = %q, want %q", got, want)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	boom := errors.New("boom")

	ok := Logging(logger, "search")(func(context.Context, any) (any, error) { return 1, nil })
	failing := Logging(logger, "match")(func(context.Context, any) (any, error) { return nil, boom })

	ctx := WithRequestID(WithTransport(context.Background(), "mcp"), "r-1")
	if resp, err := ok(ctx, nil); err != nil || resp != 1 {
		t.Fatalf("ok endpoint = %v, %v", resp, err)
	}
	if _, err := failing(ctx, nil); !errors.Is(err, boom) {
		t.Fatalf("failing endpoint err = %v, want boom", err)
	}

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG msg=\"endpoint served\" endpoint=search transport=mcp request_id=r-1",
		"level=WARN msg=\"endpoint failed\" endpoint=match transport=mcp request_id=r-1",
		"error=boom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestContextDefaults(t *testing.T) {
	ctx := context.Background()
	if got := GetTransport(ctx); got != "http" {
		t.Errorf("GetTransport default = %q, want http", got)
	}
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID default = %q, want empty", got)
	}
}

func TestRequestID(t *testing.T) {
	var seenID, seenTransport string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		seenTransport = GetTransport(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"caller id kept", "abc-123", true},
		{"missing id generated", "", false},
		{"oversized id replaced", strings.Repeat("x", 200), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			echoed := rec.Header().Get(RequestIDHeader)
			if echoed != seenID {
				t.Errorf("echoed %q, context %q", echoed, seenID)
			}
			if tt.keep && seenID != tt.header {
				t.Errorf("id = %q, want %q", seenID, tt.header)
			}
			if !tt.keep && len(seenID) != 36 {
				t.Errorf("generated id %q is not a UUID", seenID)
			}
			if seenTransport != "http" {
				t.Errorf("transport = %q, want http", seenTransport)
			}
		})
	}
}
