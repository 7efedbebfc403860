package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 301: "3xx", 404: "4xx", 503: "5xx", 0: "other", 99: "other"}
	for code, want := range cases {
		if got := StatusClass(code); got != want {
			t.Errorf("StatusClass(%d) = %q; want %q", code, got, want)
		}
	}
}

func TestObserversRecord(t *testing.T) {
	Init()
	Init()

	ObserveTask("metrics-test", "success")
	ObserveTask("metrics-test", "success")
	if got := testutil.ToFloat64(poolTasksTotal.WithLabelValues("metrics-test", "success")); got != 2 {
		t.Errorf("expected 2 successful tasks, got %f", got)
	}

	IncActiveWorkers("metrics-test")
	IncActiveWorkers("metrics-test")
	DecActiveWorkers("metrics-test")
	if got := testutil.ToFloat64(poolActiveWorkers.WithLabelValues("metrics-test")); got != 1 {
		t.Errorf("expected 1 active worker, got %f", got)
	}

	SetQueueDepth("metrics-test", 7)
	if got := testutil.ToFloat64(poolQueueDepth.WithLabelValues("metrics-test")); got != 7 {
		t.Errorf("expected queue depth 7, got %f", got)
	}

	ObserveCrawl("https://metrics.example.org/a", "2xx", 128)
	if got := testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("metrics.example.org")); got != 128 {
		t.Errorf("expected 128 bytes, got %f", got)
	}

	ObserveRateLimitDelay("metrics.example.org", 10*time.Millisecond)
	ObserveTimerRun("success")
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
