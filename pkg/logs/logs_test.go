package logs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/Alijeyrad/tabib_backend/pkg/reqctx"
)

func TestContextHandlerAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(contextHandler{slog.NewJSONHandler(&buf, nil)})

	ctx := reqctx.WithRequestMeta(context.Background(), &reqctx.RequestMeta{RequestID: "req-42"})
	logger.InfoContext(ctx, "visit: created")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", rec["request_id"])
	}
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := fanout([]slog.Handler{
		slog.NewJSONHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	})
	logger := slog.New(h)

	logger.Debug("debug only")
	logger.Warn("both")

	if got := bytes.Count(a.Bytes(), []byte("\n")); got != 2 {
		t.Errorf("debug handler got %d lines, want 2", got)
	}
	if got := bytes.Count(b.Bytes(), []byte("\n")); got != 1 {
		t.Errorf("warn handler got %d lines, want 1", got)
	}
}

func TestLokiPayload(t *testing.T) {
	lw := &lokiWriter{labels: map[string]string{"service": "tabib", "env": "test"}}
	at := time.Unix(0, 1700000000000000000)

	body, err := lw.payload([]byte(`{"msg":"a \"quoted\" line"}`+"\n"), at)
	if err != nil {
		t.Fatal(err)
	}

	var push lokiPush
	if err := json.Unmarshal(body, &push); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if len(push.Streams) != 1 || push.Streams[0].Stream["service"] != "tabib" {
		t.Fatalf("unexpected streams: %+v", push.Streams)
	}
	v := push.Streams[0].Values[0]
	if v[0] != "1700000000000000000" || v[1] != `{"msg":"a \"quoted\" line"}` {
		t.Errorf("unexpected value %v", v)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
