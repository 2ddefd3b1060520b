// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package reconcile

import (
	"testing"
	"time"
)

func TestReconcileGracePeriodScenario(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	pass1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	pass2 := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	pass3 := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)

	if _, err := store.Reconcile("d", []string{"https://d/a", "https://d/b"}, Options{Now: pass1}); err != nil {
		t.Fatalf("pass1: %v", err)
	}

	r2, err := store.Reconcile("d", []string{"https://d/a"}, Options{Now: pass2})
	if err != nil {
		t.Fatalf("pass2: %v", err)
	}
	if len(r2.URLsToDelete) != 0 {
		t.Fatalf("pass2: expected no deletions yet (grace period not elapsed), got %v", r2.URLsToDelete)
	}

	r3, err := store.Reconcile("d", []string{"https://d/a"}, Options{Now: pass3})
	if err != nil {
		t.Fatalf("pass3: %v", err)
	}
	if len(r3.URLsToDelete) != 1 || r3.URLsToDelete[0] != "https://d/b" {
		t.Fatalf("pass3: expected https://d/b scheduled for deletion, got %v", r3.URLsToDelete)
	}
}

func TestReconcileHardSyncDeletesImmediately(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.Reconcile("d", []string{"https://d/a", "https://d/b"}, Options{Now: now}); err != nil {
		t.Fatalf("seed pass: %v", err)
	}

	r, err := store.Reconcile("d", []string{"https://d/a"}, Options{HardSync: true, Now: now.Add(time.Minute)})
	if err != nil {
		t.Fatalf("hard sync pass: %v", err)
	}
	if len(r.URLsToDelete) != 1 || r.URLsToDelete[0] != "https://d/b" {
		t.Fatalf("expected immediate deletion under hardSync, got %v", r.URLsToDelete)
	}
}

func TestReconcileDryRunDoesNotPersist(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.Reconcile("d", []string{"https://d/a"}, Options{Now: now}); err != nil {
		t.Fatalf("seed pass: %v", err)
	}

	if _, err := store.Reconcile("d", []string{}, Options{DryRun: true, Now: now.Add(10 * 24 * time.Hour)}); err != nil {
		t.Fatalf("dry run pass: %v", err)
	}

	r, err := store.Reconcile("d", []string{"https://d/a"}, Options{Now: now.Add(20 * time.Hour)})
	if err != nil {
		t.Fatalf("followup pass: %v", err)
	}
	if r.TrackedBefore != 1 {
		t.Fatalf("expected dry run to leave tracked state untouched, trackedBefore=%d", r.TrackedBefore)
	}
}
