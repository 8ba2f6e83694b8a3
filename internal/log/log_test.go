package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sxledger/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewJSONLoggerTagsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentWorker, Output: &buf})
	l.Debug("hidden")
	l.Info("Run finished", "created", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if rec[FieldComponent] != ComponentWorker || rec["created"] != float64(2) {
		t.Errorf("unexpected record: %v", rec)
	}
	if strings.Count(lines[0], `"component"`) != 1 {
		t.Errorf("component repeated: %s", lines[0])
	}
	if l.Component() != ComponentWorker {
		t.Errorf("Component() = %q", l.Component())
	}
}

func TestFields(t *testing.T) {
	s := &core.Schedule{ID: "s1", Name: "Rent"}
	f := NewFields().WithSchedule(s).WithOperation(OpEffect).WithError(errors.New("boom")).WithError(nil)
	if f[FieldScheduleID] != "s1" || f[FieldSchedule] != "Rent" || f[FieldOperation] != OpEffect || f[FieldError] != "boom" {
		t.Errorf("unexpected fields: %v", f)
	}
	if got := len(f.ToSlice()); got != 8 {
		t.Errorf("ToSlice() len = %d, want 8", got)
	}
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: slog.LevelInfo, Format: "text", Output: &buf})

	var seen *Logger
	h := Middleware(base, func(r *http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = FromContext(r.Context())
			w.WriteHeader(http.StatusNotFound)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/instances", nil))

	if seen == nil || seen.Component() != ComponentHTTP {
		t.Fatalf("handler did not get the request logger: %+v", seen)
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "status_code=404", "request_id=req-1", "path=/api/instances"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}

	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("FromContext without logger should fall back")
	}
}
