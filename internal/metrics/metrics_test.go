package metrics

import "testing"

func TestNewRegistersWithoutPanic(t *testing.T) {
	t.Parallel()
	m := New()
	families, err := m.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected registered metric families, got none")
	}
}

func TestCountersIncrement(t *testing.T) {
	t.Parallel()
	m := New()
	m.JobRunsTotal.WithLabelValues("sync_universe", "success").Inc()
	m.SignalsEmittedTotal.WithLabelValues("ARB_BUY_BOTH").Inc()
	families, err := m.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "scheduler_job_runs_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected scheduler_job_runs_total in gathered families")
	}
}
