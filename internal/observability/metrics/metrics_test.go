package metrics

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExportsMetrics(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()

	Handler().ServeHTTP(rr, req)

	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rr.Body.String()
	required := []string{
		"# HELP encodly_operations_total",
		"# TYPE encodly_bytes_processed_total counter",
		"# TYPE encodly_operation_duration_seconds histogram",
		"# TYPE encodly_queue_items gauge",
		"# HELP encodly_worker_faults_total",
	}
	for _, metric := range required {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected metric %q to be exported, got %q", metric, body)
		}
	}
}

func TestRecordOperation(t *testing.T) {
	before := OperationCount("metrics_test_op", OutcomeSuccess)
	RecordOperation("metrics_test_op", OutcomeSuccess, 12, 3*time.Millisecond)
	RecordOperation("Metrics_Test_Op", OutcomeSuccess, 0, time.Second)

	if got := OperationCount("metrics_test_op", OutcomeSuccess); got != before+2 {
		t.Fatalf("expected %v operations, got %v", before+2, got)
	}

	var buf bytes.Buffer
	if err := Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	body := buf.String()
	for _, line := range []string{
		`encodly_operations_total{operation="metrics_test_op",outcome="success"}`,
		`encodly_bytes_processed_total{operation="metrics_test_op"} 12`,
		`encodly_operation_duration_seconds_bucket{operation="metrics_test_op",le="0.005"} 1`,
		`encodly_operation_duration_seconds_bucket{operation="metrics_test_op",le="+Inf"} 2`,
		`encodly_operation_duration_seconds_count{operation="metrics_test_op"} 2`,
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in output:\n%s", line, body)
		}
	}
}

func TestQueueGaugeAndFaults(t *testing.T) {
	SetQueueItems("pending", 4)
	SetQueueItems("pending", 2)
	before := WorkerFaults()
	RecordWorkerFault()

	var buf bytes.Buffer
	if err := Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	body := buf.String()
	if !strings.Contains(body, `encodly_queue_items{status="pending"} 2`) {
		t.Fatalf("expected gauge to hold last value, got:\n%s", body)
	}
	if WorkerFaults() != before+1 {
		t.Fatalf("expected fault counter to increase")
	}
	if !strings.Contains(body, "encodly_worker_faults_total ") {
		t.Fatalf("expected unlabelled fault counter, got:\n%s", body)
	}
}

func TestEscapeLabel(t *testing.T) {
	if got := escapeLabel("a\"b\\c\nd"); got != `a\"b\\c\nd` {
		t.Fatalf("unexpected escape: %q", got)
	}
}
