// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package equeue

import (
	"errors"
	"testing"
	"time"

	"github.com/northbound-system/axon/internal/apperr"
)

func testPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 10 * time.Millisecond
	return p
}

func TestEnqueueDedup(t *testing.T) {
	q, err := New(t.TempDir(), testPolicy())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	job := Job{JobID: "crawl-1", URL: "https://x/a", Collection: "web"}
	id1, err := q.Enqueue(job)
	if err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	id2, err := q.Enqueue(job)
	if err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same job id on duplicate enqueue, got %s and %s", id1, id2)
	}

	jobs, err := q.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected exactly one job in non-terminal state, got %d", len(jobs))
	}
}

func TestCrashRecoveryCoercesProcessingToPending(t *testing.T) {
	dir := t.TempDir()
	q, err := New(dir, testPolicy())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id, err := q.Enqueue(Job{JobID: "crawl-2", URL: "https://x/b", Collection: "web"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := q.ClaimDue(time.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != id {
		t.Fatalf("expected to claim the enqueued job, got %+v", claimed)
	}

	// Simulate a crash: reopen the same directory.
	q2, err := New(dir, testPolicy())
	if err != nil {
		t.Fatalf("reopen New: %v", err)
	}
	jobs, err := q2.List(StatusPending)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != id {
		t.Fatalf("expected processing job coerced back to pending on reopen, got %+v", jobs)
	}
}

func TestMarkRetryExhaustsToFailed(t *testing.T) {
	q, err := New(t.TempDir(), testPolicy())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id, err := q.Enqueue(Job{JobID: "crawl-3", URL: "https://x/c", Collection: "web", MaxRetries: 2})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	cause := errors.New("still scraping")
	for i := 0; i < 2; i++ {
		if err := q.MarkRetry(id, cause); err != nil {
			t.Fatalf("MarkRetry #%d: %v", i, err)
		}
	}

	jobs, err := q.List(StatusFailed)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != id {
		t.Fatalf("expected job to be failed after exhausting retries, got %+v", jobs)
	}
}

func TestUpdateUnknownJobReturnsJobNotFound(t *testing.T) {
	q, err := New(t.TempDir(), testPolicy())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = q.MarkCompleted("does-not-exist")
	if apperr.KindOf(err) != apperr.JobNotFound {
		t.Fatalf("expected JobNotFound, got %v", err)
	}
}

func TestCleanupRemovesOldTerminalJobsOnly(t *testing.T) {
	dir := t.TempDir()
	q, err := New(dir, testPolicy())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	completedID, err := q.Enqueue(Job{JobID: "crawl-4", URL: "https://x/d", Collection: "web"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.MarkCompleted(completedID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	pendingID, err := q.Enqueue(Job{JobID: "crawl-5", URL: "https://x/e", Collection: "web"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	future := time.Now().UTC().Add(48 * time.Hour)
	removed, err := q.Cleanup(future)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 job removed, got %d", removed)
	}

	jobs, err := q.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != pendingID {
		t.Fatalf("expected only the pending job to survive cleanup, got %+v", jobs)
	}
}
