package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStarted()
	IncLine("stdout")
	IncLine("stderr")
	AddSuppressed(3)
	IncKill("timeout")
	AddBusBacklog(2)
	ObserveFinished("completed", true, 1.25)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"procstream_operation_started_total":           false,
		"procstream_operation_finished_total":          false,
		"procstream_operation_duration_seconds":        false,
		"procstream_operation_running":                 false,
		"procstream_stream_lines_total":                false,
		"procstream_stream_duplicates_suppressed_total": false,
		"procstream_bus_backlog":                       false,
		"procstream_process_kills_total":               false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	// Reset regOK gate to allow registration with the default registry used by Handler().
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncStarted()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	s := string(b)
	if !strings.Contains(s, "procstream_operation_started_total") {
		t.Fatalf("metrics output missing started_total: %s", s[:min(200, len(s))])
	}
}

func TestConcurrentIncrements(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncLine("stdout")
			AddSuppressed(1)
			AddBusBacklog(1)
			AddBusBacklog(-1)
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// These should be no-ops and not panic when called before Register
	IncStarted()
	ObserveFinished("timed_out", false, 30)
	IncLine("stdout")
	AddSuppressed(2)
	IncKill("cancel")
	AddBusBacklog(-1)
	ResetProcessGauges()
}

func TestSampleProcessSelf(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("resource sampling test runs on Unix-like systems")
	}
	s, err := SampleProcess(os.Getpid())
	if err != nil {
		t.Fatalf("sample self: %v", err)
	}
	if s.MemoryRSS == 0 {
		t.Fatalf("expected non-zero RSS, got %+v", s)
	}
	if _, err := SampleProcess(0); err == nil {
		t.Fatal("expected error for pid 0")
	}
}

func TestRegisterError(t *testing.T) {
	errorRegisterer := &errorRegisterer{shouldError: true}

	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(errorRegisterer)
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Custom registerer for testing error handling
type errorRegisterer struct {
	shouldError bool
}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	if e.shouldError {
		return errors.New("test registration error")
	}
	return nil
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
