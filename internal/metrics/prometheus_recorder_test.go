package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveDestinationDuration("sonatype", 150*time.Millisecond)
	pr.IncDestinationResult("sonatype", ResultFailure, "upload")
	pr.IncUploadAttempt("sonatype", false)
	pr.IncRetry("sonatype", "upload")
	pr.ObserveSigningDuration(20 * time.Millisecond)
	pr.ObserveRunDuration(500 * time.Millisecond)
	pr.SetConcurrency(2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) != 7 {
		t.Fatalf("expected 7 metric families, got %d", len(mfs))
	}
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncRetry("x", "upload")
	pr.ObserveRunDuration(time.Second)
}

func TestWriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncDestinationResult("local", ResultSuccess, "")

	path := filepath.Join(t.TempDir(), "out", "relpub.prom")
	if err := WriteTextfile(pr.Registry(), path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `relpub_destination_results_total{category="",destination="local",result="success"} 1`) {
		t.Fatalf("unexpected textfile contents:\n%s", data)
	}
}
