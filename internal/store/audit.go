package store

import (
	"context"
	"time"

	"factotum-server/internal/job"
)

// AuditLog appends an immutable history of job state transitions to
// Postgres. It supplements the live Store (which only ever holds the
// latest JobEntry) with a "how did we get here" trail - useful for
// after-the-fact debugging, never consulted by the admission path.
type AuditLog struct {
	db *PostgresDB
}

// NewAuditLog wraps an already-connected PostgresDB.
func NewAuditLog(db *PostgresDB) *AuditLog {
	return &AuditLog{db: db}
}

// Record is one row of a job's transition history.
type Record struct {
	JobID      string    `json:"jobId"`
	State      job.State `json:"state"`
	Outcome    job.Outcome `json:"outcome"`
	ServerID   string    `json:"serverId"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Append writes one transition row. Failures are the caller's to log
// and ignore, same advisory posture as the Store writes.
func (a *AuditLog) Append(ctx context.Context, jobID string, state job.State, outcome job.Outcome, serverID string) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO job_audit_log (job_id, state, outcome, server_id) VALUES ($1, $2, $3, $4)`,
		jobID, state, outcome, serverID)
	return err
}

// History returns every recorded transition for jobID, oldest first.
func (a *AuditLog) History(ctx context.Context, jobID string) ([]Record, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT job_id, state, outcome, server_id, recorded_at FROM job_audit_log WHERE job_id = $1 ORDER BY recorded_at ASC`,
		jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.JobID, &r.State, &r.Outcome, &r.ServerID, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
