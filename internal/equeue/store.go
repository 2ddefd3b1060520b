// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package equeue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/northbound-system/axon/internal/apperr"
)

// RetryPolicy bounds the exponential backoff and retention windows a Queue
// applies, mirroring the http/{base,max}DelayMs shape EffectiveSettings
// already uses for the embedding backend's retry discipline.
type RetryPolicy struct {
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	MaxRetries      int
	Retention       time.Duration
	FailedRetention time.Duration
}

// DefaultRetryPolicy matches spec defaults: 24h retention for completed
// jobs, 7d for failed ones, 3 retries with the embedding backend's backoff
// shape reused here rather than invented fresh.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:       5 * time.Second,
		MaxDelay:        60 * time.Second,
		MaxRetries:      3,
		Retention:       24 * time.Hour,
		FailedRetention: 7 * 24 * time.Hour,
	}
}

// Queue is a crash-safe on-disk FIFO: one JSON file per job under dir,
// created with O_EXCL so two processes racing to enqueue the same job id
// never clobber each other. Grounded on the teacher's internal/queue
// interface/impl split (queue.Queue + queue.RedisQueue), redesigned onto a
// filesystem-backed store since the product has no Redis dependency
// (spec Non-goal).
type Queue struct {
	dir    string
	policy RetryPolicy

	mu sync.Mutex
}

// New opens (creating if absent) a queue directory and recovers any job
// left mid-flight by a prior crashed process: status == processing is
// coerced back to pending, since "processing" carries no durable meaning
// across restarts.
func New(dir string, policy RetryPolicy) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}
	q := &Queue{dir: dir, policy: policy}
	if err := q.recoverCrashedJobs(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) jobPath(id string) string {
	return filepath.Join(q.dir, id+".json")
}

func (q *Queue) recoverCrashedJobs() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.readAllLocked()
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.Status == StatusProcessing {
			j.Status = StatusPending
			j.UpdatedAt = time.Now().UTC()
			if err := q.writeLocked(j); err != nil {
				return fmt.Errorf("recover crashed job %s: %w", j.ID, err)
			}
		}
	}
	return nil
}

func (q *Queue) readAllLocked() ([]Job, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("read queue directory: %w", err)
	}

	jobs := make([]Job, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(q.dir, e.Name()))
		if err != nil {
			continue // a concurrent remove raced us; skip it
		}
		var j Job
		if err := json.Unmarshal(raw, &j); err != nil {
			continue // corrupt single-job file; leave it for operator inspection
		}
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })
	return jobs, nil
}

func (q *Queue) writeLocked(j Job) error {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", j.ID, err)
	}
	tmp := q.jobPath(j.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write job %s: %w", j.ID, err)
	}
	return os.Rename(tmp, q.jobPath(j.ID))
}

// Enqueue creates a new job unless one with the same (jobId, url,
// collection) triple already exists in a non-terminal state, in which case
// it returns that job's id instead (spec.md §8's queue-dedup property).
func (q *Queue) Enqueue(job Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	existing, err := q.readAllLocked()
	if err != nil {
		return "", err
	}
	for _, j := range existing {
		if !j.terminal() && j.fingerprint() == job.fingerprint() {
			return j.ID, nil
		}
	}

	now := time.Now().UTC()
	job.ID = uuid.New().String()
	job.Status = StatusPending
	job.Retries = 0
	if job.MaxRetries == 0 {
		job.MaxRetries = q.policy.MaxRetries
	}
	job.NextAttemptAt = now
	job.CreatedAt = now
	job.UpdatedAt = now

	f, err := os.OpenFile(q.jobPath(job.ID), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create job file: %w", err)
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		f.Close()
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write job file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close job file: %w", err)
	}

	return job.ID, nil
}

// List returns jobs, optionally filtered by status, oldest first.
func (q *Queue) List(status Status) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.readAllLocked()
	if err != nil {
		return nil, err
	}
	if status == "" {
		return jobs, nil
	}
	out := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

// ClaimDue atomically marks every pending job whose nextAttemptAt has
// elapsed as processing and returns them, oldest first.
func (q *Queue) ClaimDue(now time.Time) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.readAllLocked()
	if err != nil {
		return nil, err
	}

	claimed := make([]Job, 0)
	for _, j := range jobs {
		if j.Status != StatusPending || j.NextAttemptAt.After(now) {
			continue
		}
		j.Status = StatusProcessing
		j.UpdatedAt = now
		if err := q.writeLocked(j); err != nil {
			return claimed, fmt.Errorf("claim job %s: %w", j.ID, err)
		}
		claimed = append(claimed, j)
	}
	return claimed, nil
}

// MarkCompleted finalizes a successfully processed job.
func (q *Queue) MarkCompleted(id string) error {
	return q.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.LastError = ""
	})
}

// MarkFailedPermanent finalizes a job that cannot ever succeed (e.g. the
// upstream crawl job id no longer exists).
func (q *Queue) MarkFailedPermanent(id string, cause error) error {
	return q.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.LastError = cause.Error()
	})
}

// MarkRetry records a transient failure: increments retries and either
// requeues as pending with an exponential backoff delay, or, once
// maxRetries is exhausted, marks the job permanently failed.
func (q *Queue) MarkRetry(id string, cause error) error {
	return q.update(id, func(j *Job) {
		j.Retries++
		j.LastError = cause.Error()
		if j.Retries < j.MaxRetries {
			j.Status = StatusPending
			j.NextAttemptAt = time.Now().UTC().Add(backoff(j.Retries, q.policy.BaseDelay, q.policy.MaxDelay))
		} else {
			j.Status = StatusFailed
		}
	})
}

// Requeue reverts an in-flight job back to pending without touching its
// retry count, used on cooperative cancellation (spec.md §4.6).
func (q *Queue) Requeue(id string) error {
	return q.update(id, func(j *Job) {
		j.Status = StatusPending
		j.NextAttemptAt = time.Now().UTC()
	})
}

func (q *Queue) update(id string, mutate func(*Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	raw, err := os.ReadFile(q.jobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.New(apperr.JobNotFound, "job "+id+" not found")
		}
		return fmt.Errorf("read job %s: %w", id, err)
	}
	var j Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return fmt.Errorf("unmarshal job %s: %w", id, err)
	}

	mutate(&j)
	j.UpdatedAt = time.Now().UTC()
	return q.writeLocked(j)
}

// Remove deletes a job's on-disk record unconditionally.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.Remove(q.jobPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove job %s: %w", id, err)
	}
	return nil
}

// Cleanup deletes completed jobs older than the retention window and
// failed jobs older than the failed-retention window. pending and
// processing jobs are never removed.
func (q *Queue) Cleanup(now time.Time) (removed int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.readAllLocked()
	if err != nil {
		return 0, err
	}
	for _, j := range jobs {
		var window time.Duration
		switch j.Status {
		case StatusCompleted:
			window = q.policy.Retention
		case StatusFailed:
			window = q.policy.FailedRetention
		default:
			continue
		}
		if now.Sub(j.UpdatedAt) <= window {
			continue
		}
		if err := os.Remove(q.jobPath(j.ID)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("cleanup job %s: %w", j.ID, err)
		}
		removed++
	}
	return removed, nil
}
