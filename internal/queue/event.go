// Package queue carries migration processing jobs, either through RabbitMQ
// or through an in-process worker pool.
package queue

import (
	"context"
	"time"
)

// MigrationQueue is the durable queue migration jobs are published to.
const MigrationQueue = "migration.process"

// MigrationJob asks a worker to process one uploaded migration file.
type MigrationJob struct {
	LogID       uint64    `json:"log_id"`
	Path        string    `json:"path"`
	Attempt     int       `json:"attempt"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Handler processes one job.  A returned error is logged; the job is not
// redelivered.
type Handler func(ctx context.Context, job MigrationJob) error
