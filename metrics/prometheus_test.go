package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDisabledMetricsAreSafe(t *testing.T) {
	m := New(Config{Enabled: false})
	if m.IsEnabled() {
		t.Fatal("metrics should be disabled")
	}

	// Every helper must be a no-op, not a panic, when disabled.
	m.RecordRowsIngested("etablissements", 10)
	m.RecordRowsAccepted("etablissements", 8)
	m.RecordRejection("etablissements", "pattern")
	m.RecordRowsFiltered("etablissements", 1)
	m.RecordKPIRows("etablissements_par_departement", 8)
	m.RecordError("validation")
	m.SetActiveWorkers(4)
	m.SetRunFailed(true)
	m.RecordLayerDuration("silver", time.Second)
	m.RecordBatchDuration(time.Millisecond)
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Address != ":9090" {
		t.Errorf("address = %s", cfg.Address)
	}
}

func TestEnabledMetricsExposed(t *testing.T) {
	m := New(Config{Enabled: true})
	if !m.IsEnabled() {
		t.Fatal("metrics should be enabled")
	}

	m.RecordRowsIngested("etablissements", 10)
	m.RecordRejection("etablissements", "pattern")
	m.SetRunFailed(false)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"sirene_rows_ingested_total",
		"sirene_rows_rejected_total",
		"sirene_run_failed 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
