package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.ObserveVariant("x4-c3-t130-line", "ok")
	r.ObserveVariant("x4-c3-t130-line", "ok")
	r.ObserveVariant("x4-c3-t130-line", "timeout")
	r.RecordAttempt("isagha", "rejected")
	r.RecordFields("isagha", "valid", 10)
	r.RecordSink("file", nil)
	r.RecordSink("redis", errors.New("down"))
	r.RecordLastPrice("gold", "24", "sell", 5765)
	r.RecordRun(true)

	if got := testutil.ToFloat64(r.variants.WithLabelValues("x4-c3-t130-line", "ok")); got != 2 {
		t.Fatalf("variant ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.fields.WithLabelValues("isagha", "valid")); got != 10 {
		t.Fatalf("valid fields = %v, want 10", got)
	}
	if got := testutil.ToFloat64(r.sinks.WithLabelValues("redis", "error")); got != 1 {
		t.Fatalf("redis errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.lastPrice.WithLabelValues("gold", "24", "sell")); got != 5765 {
		t.Fatalf("last price = %v, want 5765", got)
	}
	if got := testutil.ToFloat64(r.lastResult); got != 1 {
		t.Fatalf("last run = %v, want 1", got)
	}
}

func TestPush(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.RecordAttempt("isagha", "accepted")
	if err := r.Push(context.Background(), srv.URL, "bullionscraper"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if gotPath != "/metrics/job/bullionscraper" {
		t.Fatalf("push path = %q", gotPath)
	}
	if gotBody == "" {
		t.Fatalf("push body is empty")
	}
}

func TestPushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "bullionscraper")
	if err == nil || !strings.Contains(err.Error(), srv.URL) {
		t.Fatalf("Push() error = %v, want wrapped error naming the gateway", err)
	}
}
