// Package dispatcher owns the pending-job queue and the worker pool
// that drains it. A single goroutine reads the inbox; no other actor
// ever mutates queue state. This is the core subsystem the spec
// describes: admission, dispatch, and persisted state transitions all
// happen here.
package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"factotum-server/internal/events"
	"factotum-server/internal/job"
	"factotum-server/internal/observability"
	"factotum-server/internal/runner"
)

// AuditLog is the minimal write path the dispatcher needs to append a
// transition row. *store.AuditLog satisfies this; nil disables it.
type AuditLog interface {
	Append(ctx context.Context, jobID string, state job.State, outcome job.Outcome, serverID string) error
}

// Dispatcher is the single owner of the request queue and the sole
// mutator of queue state. It is driven entirely by messages sent to
// its Inbox; see message.go for the full protocol.
type Dispatcher struct {
	Inbox chan Message

	maxJobs  int
	queue    []job.Request
	pool     *Pool
	store    job.Store
	runner   runner.CommandRunner
	logger   *zap.Logger
	events   events.Publisher
	metrics  *observability.Metrics
	audit    AuditLog
	serverID string
	ns       string
	command  string // logical command name resolved via runner, e.g. "factotum"
}

// Options configures a new Dispatcher.
type Options struct {
	MaxJobs    int
	MaxWorkers int
	Store      job.Store
	Runner     runner.CommandRunner
	Logger     *zap.Logger
	Events     events.Publisher
	Metrics    *observability.Metrics
	Audit      AuditLog
	ServerID   string
	Namespace  string
	Command    string
}

// New builds a Dispatcher with an empty queue and a fresh worker pool.
// Callers must invoke Run in its own goroutine before sending messages.
func New(opts Options) *Dispatcher {
	if opts.Events == nil {
		opts.Events = events.NoopPublisher{}
	}
	d := &Dispatcher{
		Inbox:    make(chan Message, 2*opts.MaxJobs+64),
		maxJobs:  opts.MaxJobs,
		queue:    make([]job.Request, 0, opts.MaxJobs),
		pool:     NewPool(opts.MaxWorkers),
		store:    opts.Store,
		runner:   opts.Runner,
		logger:   opts.Logger,
		events:   opts.Events,
		metrics:  opts.Metrics,
		audit:    opts.Audit,
		serverID: opts.ServerID,
		ns:       opts.Namespace,
		command:  opts.Command,
	}
	if d.metrics != nil {
		d.metrics.WorkersCapacity.Set(float64(d.pool.Capacity()))
	}
	return d
}

// Run is the dispatcher's single cooperative loop. It blocks reading
// the inbox and handles messages strictly in arrival order, never
// holding a lock while blocked. It returns when StopProcessing arrives
// or the inbox channel is closed.
func (d *Dispatcher) Run() {
	for msg := range d.Inbox {
		switch m := msg.(type) {
		case StatusUpdate:
			d.handleStatusUpdate(m)
		case CheckQueue:
			d.handleCheckQueue(m)
		case NewRequest:
			d.handleNewRequest(m)
		case ProcessRequest:
			d.handleProcessRequest()
		case RequestComplete:
			d.handleRequestComplete(m)
		case RequestFailure:
			d.handleRequestFailure(m)
		case StopProcessing:
			d.logger.Info("stopping dispatcher")
			return
		}
	}
}

// post self-posts a message behind anything already in flight. Sends
// into our own inbox never fail (we own the only receiver) as long as
// the buffer doesn't overflow; New sizes the inbox at 2*max_jobs+64,
// so a full buffer here would indicate a configuration bug, not a
// normal runtime condition.
func (d *Dispatcher) post(msg Message) {
	d.Inbox <- msg
}

// transition persists a JobEntry for req at (state, outcome), appends
// the same fact to the audit trail when one is configured, publishes
// the lifecycle event, and updates the matching Prometheus series.
// Every inbox handler that changes a job's state routes through here
// so persistence, audit, events and metrics never drift apart.
func (d *Dispatcher) transition(req job.Request, state job.State, outcome job.Outcome) {
	ctx := context.Background()

	if !job.SetEntry(ctx, d.store, d.ns, req.JobID, req, state, outcome, d.serverID) {
		d.logger.Error("persistence error", zap.String("job_id", req.JobID), zap.String("state", string(state)))
		if d.metrics != nil {
			d.metrics.PersistenceFailures.WithLabelValues(string(state)).Inc()
		}
	}

	if d.audit != nil {
		if err := d.audit.Append(ctx, req.JobID, state, outcome, d.serverID); err != nil {
			d.logger.Error("audit append failed", zap.String("job_id", req.JobID), zap.Error(err))
		}
	}

	d.events.PublishTransition(req.JobID, state, outcome)

	if d.metrics != nil && state == job.StateDone {
		d.metrics.JobsCompletedTotal.WithLabelValues(string(outcome)).Inc()
	}
}

func (d *Dispatcher) reportGauges() {
	if d.metrics == nil {
		return
	}
	d.metrics.QueueDepth.Set(float64(len(d.queue)))
	d.metrics.WorkersActive.Set(float64(d.pool.Active()))
}

func (d *Dispatcher) handleStatusUpdate(m StatusUpdate) {
	snapshot := StatusSnapshot{
		Capacity:     d.pool.Capacity(),
		Active:       d.pool.Active(),
		MaxQueueSize: d.maxJobs,
		InQueue:      len(d.queue),
	}
	snapshot.Idle = snapshot.Capacity - snapshot.Active
	m.Query.Reply <- snapshot
}

func (d *Dispatcher) handleCheckQueue(m CheckQueue) {
	m.Query.Reply <- len(d.queue) >= d.maxJobs
}

func (d *Dispatcher) handleNewRequest(m NewRequest) {
	d.logger.Debug("adding new job", zap.String("job_id", m.Request.JobID))
	d.queue = append(d.queue, m.Request)

	d.transition(m.Request, job.StateQueued, job.OutcomeWaiting)
	if d.metrics != nil {
		d.metrics.JobsSubmittedTotal.WithLabelValues(m.Request.JobName).Inc()
	}
	d.reportGauges()

	if d.pool.Active() < d.pool.Capacity() {
		d.post(ProcessRequest{})
	}
	// else: leave it queued. The next RequestComplete/RequestFailure
	// will self-post ProcessRequest once a worker frees up.
}

func (d *Dispatcher) handleProcessRequest() {
	d.logger.Debug("queue size", zap.Int("size", len(d.queue)))
	if len(d.queue) == 0 {
		d.logger.Debug("queue empty")
		return
	}

	req := d.queue[0]
	d.queue = d.queue[1:]
	d.reportGauges()

	d.pool.Submit(func() {
		d.runJob(req)
	})
}

// runJob executes inside a pool worker goroutine: persist WORKING,
// resolve the command, run it, and report back to the dispatcher.
func (d *Dispatcher) runJob(req job.Request) {
	d.logger.Debug("processing job", zap.String("job_id", req.JobID))

	d.transition(req, job.StateWorking, job.OutcomeRunning)
	if d.metrics != nil {
		d.metrics.WorkersActive.Set(float64(d.pool.Active()))
	}

	path, err := d.runner.Resolve(d.command)
	if err != nil {
		d.logger.Error("command resolution failed", zap.String("job_id", req.JobID), zap.Error(err))
		d.post(RequestFailure{Request: req})
		return
	}

	output, err := d.runner.Execute(context.Background(), path, req.CommandArgs())
	if err != nil {
		d.logger.Error("job execution failed", zap.String("job_id", req.JobID), zap.Error(err))
		d.post(RequestFailure{Request: req})
		return
	}

	done := req
	done.ExecOutput = output
	done.EndTime = time.Now().UTC()
	d.post(RequestComplete{Request: done})
}

func (d *Dispatcher) handleRequestComplete(m RequestComplete) {
	d.transition(m.Request, job.StateDone, job.OutcomeSucceeded)
	d.logger.Info("completed job", zap.String("job_id", m.Request.JobID))
	d.reportGauges()
	d.post(ProcessRequest{})
}

func (d *Dispatcher) handleRequestFailure(m RequestFailure) {
	d.transition(m.Request, job.StateDone, job.OutcomeFailed)
	d.logger.Error("failed job", zap.String("job_id", m.Request.JobID))
	d.reportGauges()
	d.post(ProcessRequest{})
}
