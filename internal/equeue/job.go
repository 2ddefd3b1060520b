// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package equeue

import "time"

// Status is the lifecycle state of an EmbedJob. processing is never
// persisted as durable truth: a reopen of the queue coerces it back to
// pending, since it only ever means "a prior run crashed mid-flight".
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is one on-disk queue entry, grounded on the teacher's queue.Job shape
// but redesigned around a durable, crash-recoverable on-disk record instead
// of a transient Redis list element.
type Job struct {
	ID            string    `json:"id"`
	JobID         string    `json:"jobId"`
	URL           string    `json:"url"`
	Collection    string    `json:"collection"`
	Status        Status    `json:"status"`
	Retries       int       `json:"retries"`
	MaxRetries    int       `json:"maxRetries"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	LastError     string    `json:"lastError,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	SourceCommand string    `json:"sourceCommand"`
	HardSync      bool      `json:"hardSync"`
	APIKeyRef     string    `json:"apiKeyRef,omitempty"`
}

func (j Job) fingerprint() string {
	return j.JobID + "\x00" + j.URL + "\x00" + j.Collection
}

func (j Job) terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// backoff computes the delay before the n'th retry, exponential with a cap,
// per the §4.5 formula backoff(n) = min(baseDelayMs * 2^n, maxDelayMs).
func backoff(n int, base, max time.Duration) time.Duration {
	if n <= 0 {
		return base
	}
	d := base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
