// Package events publishes job lifecycle transitions to NATS for any
// external log/metrics consumer that wants a live feed instead of
// polling /status or /check. Publishing is best-effort, exactly like
// the Store writes - a publish failure never affects admission or
// execution.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"factotum-server/internal/job"
)

// Publisher is the minimal interface the dispatcher depends on.
type Publisher interface {
	PublishTransition(jobID string, state job.State, outcome job.Outcome)
	Close()
}

// NATSPublisher publishes to subject "factotum.jobs.<job_id>.state".
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher dials url. It does not treat an empty url specially;
// cmd/server uses NoopPublisher when no NATS URL is configured.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: conn}, nil
}

type transitionMessage struct {
	JobID     string      `json:"jobId"`
	State     job.State   `json:"state"`
	Outcome   job.Outcome `json:"outcome"`
	Timestamp time.Time   `json:"timestamp"`
}

// PublishTransition fires and forgets; errors are swallowed by design -
// callers that care should wrap this with their own logger.
func (p *NATSPublisher) PublishTransition(jobID string, state job.State, outcome job.Outcome) {
	msg := transitionMessage{JobID: jobID, State: state, Outcome: outcome, Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = p.conn.Publish("factotum.jobs."+jobID+".state", data)
}

// Close closes the underlying connection without draining it.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// NoopPublisher is used when NATS is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishTransition(string, job.State, job.Outcome) {}
func (NoopPublisher) Close()                                          {}
