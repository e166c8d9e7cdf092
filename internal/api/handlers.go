// Package api translates HTTP calls into dispatcher inbox messages and
// waits on single-shot reply channels where a synchronous answer is
// needed. It owns request parsing, validation ordering, and JSON
// encoding - none of which the dispatcher core knows anything about.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"factotum-server/internal/dispatcher"
	"factotum-server/internal/job"
	"factotum-server/internal/runner"
	"factotum-server/internal/server"
	"factotum-server/internal/store"
)

// Handlers holds everything an HTTP handler needs to talk to the
// dispatcher and the rest of the external collaborators.
type Handlers struct {
	logger       *zap.Logger
	disp         *dispatcher.Dispatcher
	store        job.Store
	runner       runner.CommandRunner
	manager      *server.Manager
	audit        *store.AuditLog // nil when no Postgres audit trail is configured
	namespace    string
	version      string
	queryTimeout time.Duration
}

// NewHandlers wires a Handlers against a running Dispatcher. audit may
// be nil, in which case /history reports 503.
func NewHandlers(logger *zap.Logger, disp *dispatcher.Dispatcher, jobStore job.Store, cmdRunner runner.CommandRunner, mgr *server.Manager, audit *store.AuditLog, namespace, version string) *Handlers {
	return &Handlers{
		logger:       logger,
		disp:         disp,
		store:        jobStore,
		runner:       cmdRunner,
		manager:      mgr,
		audit:        audit,
		namespace:    namespace,
		version:      version,
		queryTimeout: 5 * time.Second,
	}
}

func (h *Handlers) writeJSON(c *fiber.Ctx, status int, body interface{}) error {
	var raw []byte
	var err error
	if c.Query("pretty") == "1" {
		raw, err = json.MarshalIndent(body, "", "  ")
	} else {
		raw, err = json.Marshal(body)
	}
	if err != nil {
		return err
	}
	c.Set("Content-Type", "application/json; charset=UTF-8")
	return c.Status(status).Send(raw)
}

func (h *Handlers) message(c *fiber.Ctx, status int, msg string) error {
	return h.writeJSON(c, status, fiber.Map{"message": msg})
}

// Help handles GET / and GET /help.
func (h *Handlers) Help(c *fiber.Ctx) error {
	return h.writeJSON(c, fiber.StatusOK, fiber.Map{
		"name":    "factotum-server",
		"version": h.version,
		"endpoints": fiber.Map{
			"GET /status":     "dispatcher and server status",
			"POST /settings":  `{"state":"run"|"drain"}`,
			"POST /submit":    `{"jobId","jobName","factfilePath","factfileArgs"}`,
			"GET /check?id=":   "look up a job's current JobEntry",
			"GET /history?id=": "full transition history for a job (503 if no audit trail configured)",
		},
	})
}

// statusQuery issues a StatusUpdate query and waits for the reply, with
// a deadline so a disconnected dispatcher degrades to 503 instead of
// hanging the request forever.
func (h *Handlers) statusQuery() (dispatcher.StatusSnapshot, error) {
	q := dispatcher.NewQuery[dispatcher.StatusSnapshot]("status")
	select {
	case h.disp.Inbox <- dispatcher.StatusUpdate{Query: q}:
	case <-time.After(h.queryTimeout):
		return dispatcher.StatusSnapshot{}, fmt.Errorf("dispatcher inbox unavailable")
	}
	select {
	case snap := <-q.Reply:
		return snap, nil
	case <-time.After(h.queryTimeout):
		return dispatcher.StatusSnapshot{}, fmt.Errorf("dispatcher reply timed out")
	}
}

func (h *Handlers) queueFull() (bool, error) {
	q := dispatcher.NewQuery[bool]("queue-full")
	select {
	case h.disp.Inbox <- dispatcher.CheckQueue{Query: q}:
	case <-time.After(h.queryTimeout):
		return false, fmt.Errorf("dispatcher inbox unavailable")
	}
	select {
	case full := <-q.Reply:
		return full, nil
	case <-time.After(h.queryTimeout):
		return false, fmt.Errorf("dispatcher reply timed out")
	}
}

// Status handles GET /status.
func (h *Handlers) Status(c *fiber.Ctx) error {
	snap, err := h.statusQuery()
	if err != nil {
		h.logger.Error("status query failed", zap.Error(err))
		return h.message(c, fiber.StatusServiceUnavailable, "internal locks unavailable")
	}

	return h.writeJSON(c, fiber.StatusOK, fiber.Map{
		"version": h.version,
		"server": fiber.Map{
			"startTime": h.manager.StartTime(),
			"upTime":    h.manager.Uptime().Seconds(),
			"state":     h.manager.State(),
		},
		"dispatcher": fiber.Map{
			"workers": fiber.Map{
				"total":  snap.Capacity,
				"idle":   snap.Idle,
				"active": snap.Active,
			},
			"jobs": fiber.Map{
				"maxQueueSize": snap.MaxQueueSize,
				"inQueue":      snap.InQueue,
			},
		},
	})
}

type settingsRequest struct {
	State string `json:"state"`
}

// Settings handles POST /settings.
func (h *Handlers) Settings(c *fiber.Ctx) error {
	var req settingsRequest
	if err := c.BodyParser(&req); err != nil {
		return h.message(c, fiber.StatusBadRequest, "Validation Error: invalid request body")
	}

	switch req.State {
	case string(server.StateRun), string(server.StateDrain):
		h.manager.SetState(server.State(req.State))
		return h.message(c, fiber.StatusOK, fmt.Sprintf("Update acknowledged: [state: %s]", req.State))
	default:
		return h.message(c, fiber.StatusBadRequest, "Validation Error: Invalid 'state', must be one of (run|drain)")
	}
}

type submitRequest struct {
	JobID        string   `json:"jobId"`
	JobName      string   `json:"jobName"`
	FactfilePath string   `json:"factfilePath"`
	FactfileArgs []string `json:"factfileArgs"`
}

// Submit handles POST /submit. Every precondition check runs in the
// order the design notes specify: drain, then validation, then
// duplicate-job, then queue-full. Only after all four pass are
// server-supplied args appended and NewRequest posted.
func (h *Handlers) Submit(c *fiber.Ctx) error {
	if h.manager.IsDraining() {
		return h.message(c, fiber.StatusBadRequest, "Server in [drain] state - cannot submit job")
	}

	var body submitRequest
	if err := c.BodyParser(&body); err != nil {
		return h.message(c, fiber.StatusBadRequest, "Validation Error: invalid request body")
	}

	req := job.Request{
		JobID:        body.JobID,
		JobName:      body.JobName,
		FactfilePath: body.FactfilePath,
		FactfileArgs: append([]string(nil), body.FactfileArgs...),
		StartTime:    time.Now().UTC(),
	}

	if err := req.Validate(); err != nil {
		return h.message(c, fiber.StatusBadRequest, err.Error())
	}
	if _, err := h.runner.Resolve("factotum"); err != nil {
		return h.message(c, fiber.StatusBadRequest, fmt.Sprintf("Validation Error: %s", err.Error()))
	}

	existing, err := job.GetEntry(c.Context(), h.store, h.namespace, req.JobID)
	if err != nil {
		h.logger.Error("store lookup failed", zap.Error(err))
	}
	if existing != nil && existing.State != job.StateDone {
		return h.message(c, fiber.StatusBadRequest, "Job is already being processed")
	}

	full, err := h.queueFull()
	if err != nil {
		h.logger.Error("queue-full query failed", zap.Error(err))
		return h.message(c, fiber.StatusServiceUnavailable, "internal locks unavailable")
	}
	if full {
		return h.message(c, fiber.StatusBadRequest, "Queue is full, cannot add job")
	}

	req.AppendArgs(h.manager.Webhook, h.manager.NoColour, h.manager.MaxStdouterrSize)
	h.disp.Inbox <- dispatcher.NewRequest{Request: req}

	return h.message(c, fiber.StatusOK, fmt.Sprintf("SUBMITTING JOB REQ jobId:[%s]", req.JobID))
}

// Check handles GET /check?id=<job_id>.
func (h *Handlers) Check(c *fiber.Ctx) error {
	id := c.Query("id")
	if id == "" {
		return h.message(c, fiber.StatusBadRequest, "missing required query parameter 'id'")
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.queryTimeout)
	defer cancel()

	entry, err := job.GetEntry(ctx, h.store, h.namespace, id)
	if err != nil {
		h.logger.Error("check lookup failed", zap.Error(err), zap.String("job_id", id))
		return h.message(c, fiber.StatusBadRequest, fmt.Sprintf("No job entry found for id=%s", id))
	}
	if entry == nil {
		return h.message(c, fiber.StatusBadRequest, fmt.Sprintf("No job entry found for id=%s", id))
	}

	return h.writeJSON(c, fiber.StatusOK, entry)
}

// History handles GET /history?id=<job_id>: the full append-only
// transition trail recorded in the Postgres audit log, oldest first.
// Returns 503 when no audit trail is configured.
func (h *Handlers) History(c *fiber.Ctx) error {
	if h.audit == nil {
		return h.message(c, fiber.StatusServiceUnavailable, "audit trail is not configured")
	}

	id := c.Query("id")
	if id == "" {
		return h.message(c, fiber.StatusBadRequest, "missing required query parameter 'id'")
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.queryTimeout)
	defer cancel()

	records, err := h.audit.History(ctx, id)
	if err != nil {
		h.logger.Error("audit history lookup failed", zap.Error(err), zap.String("job_id", id))
		return h.message(c, fiber.StatusInternalServerError, "failed to read audit history")
	}

	return h.writeJSON(c, fiber.StatusOK, fiber.Map{"jobId": id, "history": records})
}

// HealthCheck handles GET /healthz.
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return h.writeJSON(c, fiber.StatusOK, fiber.Map{"status": "ok"})
}

// ReadyCheck handles GET /readyz: ready only once the dispatcher answers.
func (h *Handlers) ReadyCheck(c *fiber.Ctx) error {
	if _, err := h.statusQuery(); err != nil {
		return h.writeJSON(c, fiber.StatusServiceUnavailable, fiber.Map{"status": "not ready"})
	}
	return h.writeJSON(c, fiber.StatusOK, fiber.Map{"status": "ready"})
}
