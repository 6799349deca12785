// Package orchestrator is the top-level turn handler. It owns the session
// update path: every request loads the session, runs the routine engine,
// dispatches side effects, folds results, and persists exactly once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/job"
	"github.com/rosterflow/rosterflow/logging"
	"github.com/rosterflow/rosterflow/resume"
	"github.com/rosterflow/rosterflow/routine"
	"github.com/rosterflow/rosterflow/tool"
)

// Phraser optionally rewrites an outgoing message in a warmer voice. A
// failing phraser never fails the turn; the raw message is used instead.
type Phraser interface {
	Rephrase(ctx context.Context, message string, fields map[string]any) (string, error)
}

// ArtifactPurger is implemented by artifact stores that can drop a whole
// session's staged uploads on reset.
type ArtifactPurger interface {
	PurgeSession(sessionID string) error
}

// TurnRequest is one inbound user message.
type TurnRequest struct {
	SessionID string
	Input     routine.Input
	// ForceSync runs a long-running step inline instead of through the job
	// manager. Only safe when the caller's transport ceiling is known to
	// exceed worst-case processing time.
	ForceSync bool
}

// TurnResponse is the orchestrator's answer to one turn.
type TurnResponse struct {
	SessionID      string `json:"session_id"`
	Message        string `json:"response_text"`
	PositionMarker string `json:"position_marker"`
	Completed      bool   `json:"completed,omitempty"`
	JobID          string `json:"job_id,omitempty"`
	JobStatus      string `json:"job_status,omitempty"`
}

// Options holds dependency overrides passed to New.
type Options struct {
	Resolver  *resume.Resolver
	Jobs      *job.Manager
	Phraser   Phraser
	Artifacts core.ArtifactStore
	Logger    logging.Logger
}

// Orchestrator coordinates sessions, the engine, the dispatcher and the job
// manager. Safe for concurrent use across sessions; per-session serialization
// is the client's side of the contract, backed by the in-flight job guard.
type Orchestrator struct {
	sessions   core.SessionStore
	engine     *routine.Engine
	dispatcher *tool.Dispatcher
	resolver   *resume.Resolver
	jobs       *job.Manager
	phraser    Phraser
	artifacts  core.ArtifactStore
	logger     logging.Logger
}

// New wires an orchestrator. Session store, engine and dispatcher are
// mandatory; the resolver, job manager and phraser are optional features.
func New(sessions core.SessionStore, engine *routine.Engine, dispatcher *tool.Dispatcher, optFns ...func(o *Options)) (*Orchestrator, error) {
	if sessions == nil || engine == nil || dispatcher == nil {
		return nil, core.E(core.CodeConfig, "orchestrator.new", "session store, engine and dispatcher are required")
	}
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		sessions:   sessions,
		engine:     engine,
		dispatcher: dispatcher,
		resolver:   opts.Resolver,
		jobs:       opts.Jobs,
		phraser:    opts.Phraser,
		artifacts:  opts.Artifacts,
		logger:     opts.Logger,
	}, nil
}

// HandleTurn processes one user message and returns the reply, advancing the
// session at most one step (plus any gate traversal).
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	start := time.Now()
	sess, firstContact, err := o.loadOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	// A session with an in-flight job only accepts polls, not new input.
	if o.jobs != nil {
		if active, ok := o.jobs.ActiveJob(sess.ID); ok {
			return &TurnResponse{
				SessionID:      sess.ID,
				Message:        "I'm still working on your photo. Please check back in a moment.",
				PositionMarker: o.marker(sess),
				JobID:          active.ID,
				JobStatus:      string(active.Status),
			}, nil
		}
	}

	if _, ok := sess.CurrentPosition(); !ok {
		pos, err := o.engine.StartPosition(routine.IntakeName)
		if err != nil {
			return nil, err
		}
		sess.SetPosition(pos)
	}

	out, err := o.engine.Advance(sess, req.Input)
	if err != nil {
		return nil, err
	}

	if out.Reprompt {
		sess.MarkActive()
		if err := o.sessions.Save(ctx, sess); err != nil {
			return nil, err
		}
		return o.respond(ctx, sess, out.Message, false), nil
	}

	if out.Completed && out.Action == "" && len(out.FieldDelta) == 0 {
		// Terminal step revisited: just replay the closing message.
		return o.respond(ctx, sess, out.Message, true), nil
	}

	sess.ApplyFieldDelta(out.FieldDelta)

	// First contact with a complete identity is a resume attempt.
	if firstContact && o.resolver != nil {
		if resp, handled := o.tryResume(ctx, sess); handled {
			return resp, nil
		}
	}

	if out.Action != "" && out.LongRunning && !req.ForceSync {
		return o.delegate(ctx, sess, out)
	}

	if out.Action != "" {
		res, err := o.dispatcher.Invoke(ctx, sess, out.Action, out.ActionArgs)
		if err != nil {
			return nil, err
		}
		if res.Status == tool.StatusError {
			// Position unchanged so the same step can be retried.
			if err := o.sessions.Save(ctx, sess); err != nil {
				return nil, err
			}
			return o.respond(ctx, sess, failureMessage(res), false), nil
		}
		sess.ApplyFieldDelta(res.FieldDelta)
	}

	msg, completed, err := o.settle(ctx, sess, out.Next, out.Message)
	if err != nil {
		return nil, err
	}

	sess.MarkActive()
	if completed {
		sess.MarkCompleted()
	}
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	o.logger.Info("turn handled", "session_id", sess.ID, "position", o.marker(sess), "duration_ms", time.Since(start).Milliseconds())
	return o.respond(ctx, sess, msg, completed), nil
}

// settle moves the session to next, traverses any gate chain dispatching
// gate actions, and returns the resting message. fallback is used when the
// resting step renders nothing.
func (o *Orchestrator) settle(ctx context.Context, sess *core.Session, next core.Position, fallback string) (string, bool, error) {
	pos, actions, msg, err := o.engine.Route(next, sess.FieldSnapshot())
	if err != nil {
		return "", false, err
	}
	for _, ga := range actions {
		res, err := o.dispatcher.Invoke(ctx, sess, ga.Name, ga.Args)
		if err != nil {
			return "", false, err
		}
		if res.Status == tool.StatusError {
			// Gate effects are best-effort notifications in this table; a
			// failure is logged and flagged but does not strand the session.
			o.logger.Error("gate action failed", "action", ga.Name, "session_id", sess.ID, "error_code", string(res.ErrorCode))
			continue
		}
		sess.ApplyFieldDelta(res.FieldDelta)
	}
	if len(actions) > 0 {
		// Re-render with post-action fields.
		if pos, _, msg, err = o.engine.Route(pos, sess.FieldSnapshot()); err != nil {
			return "", false, err
		}
	}
	sess.SetPosition(pos)
	if msg == "" {
		msg = fallback
	}

	r, _ := o.engine.Routine(pos.Agent)
	step, ok := r.Step(pos.StepIndex)
	return msg, ok && step.Terminal, nil
}

// tryResume checks the just-captured identity against the registration
// datastore. Returns (response, true) when the turn was fully handled as a
// resume; (nil, false) falls through to the new-registration path.
func (o *Orchestrator) tryResume(ctx context.Context, sess *core.Session) (*TurnResponse, bool) {
	id := core.Identity{
		GuardianName: sess.FieldString(routine.FieldGuardianName),
		PlayerName:   sess.FieldString(routine.FieldPlayerName),
	}
	res, err := o.resolver.Resolve(ctx, id)
	if err != nil {
		// Lookup outage: fall back to the new-registration path.
		o.logger.Warn("resume lookup unavailable, continuing as new", "session_id", sess.ID, "error", err.Error())
		return nil, false
	}
	if !res.Found {
		return nil, false
	}

	sess.ApplyFieldDelta(res.Fields)
	sess.SetPosition(res.Position)
	sess.MarkActive()

	_, _, msg, err := o.engine.Route(res.Position, sess.FieldSnapshot())
	if err != nil {
		o.logger.Error("resume render failed", "session_id", sess.ID, "error", err.Error())
		return nil, false
	}
	msg = "Welcome back! I found your registration. " + msg
	if err := o.sessions.Save(ctx, sess); err != nil {
		o.logger.Error("resume save failed", "session_id", sess.ID, "error", err.Error())
		return nil, false
	}
	return o.respond(ctx, sess, msg, false), true
}

// delegate hands a long-running action to the job manager and replies with a
// pollable handle. The session is persisted before submission so the worker
// sees the staged fields.
func (o *Orchestrator) delegate(ctx context.Context, sess *core.Session, out *routine.Outcome) (*TurnResponse, error) {
	if o.jobs == nil {
		return nil, core.E(core.CodeConfig, "orchestrator.delegate", fmt.Sprintf("long-running action %q with no job manager wired", out.Action))
	}

	sess.MarkActive()
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	sessionID := sess.ID
	action, args, next, doneMsg := out.Action, out.ActionArgs, out.Next, out.Message
	j, err := o.jobs.Submit(sessionID, func(jobCtx context.Context) (*tool.Result, error) {
		return o.runAsync(jobCtx, sessionID, action, args, next, doneMsg)
	})
	if err != nil {
		if errors.Is(err, job.ErrJobInFlight) {
			return o.respond(ctx, sess, "I'm still working on your previous upload. Please check back in a moment.", false), nil
		}
		return nil, err
	}

	return &TurnResponse{
		SessionID:      sessionID,
		Message:        "Got it! I'm processing the photo now. This can take a little while; poll the job status to see when it's done.",
		PositionMarker: o.marker(sess),
		JobID:          j.ID,
		JobStatus:      string(j.Status),
	}, nil
}

// runAsync executes a delegated action on a worker. It reloads the session
// so it observes any state persisted after submission, and owns the position
// advance that the synchronous path would have done.
func (o *Orchestrator) runAsync(ctx context.Context, sessionID, action string, args map[string]any, next core.Position, doneMsg string) (*tool.Result, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	res, err := o.dispatcher.Invoke(ctx, sess, action, args)
	if err != nil {
		return nil, err
	}
	if res.Status == tool.StatusError {
		return res, nil
	}
	sess.ApplyFieldDelta(res.FieldDelta)

	msg, completed, err := o.settle(ctx, sess, next, doneMsg)
	if err != nil {
		return nil, err
	}
	if completed {
		sess.MarkCompleted()
	}
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	payload, ok := res.Payload.(map[string]any)
	if !ok || payload == nil {
		payload = map[string]any{}
	}
	payload["message"] = msg
	payload["position_marker"] = o.marker(sess)
	payload["completed"] = completed
	res.Payload = payload
	return res, nil
}

// JobStatus reports a polled job in transport shape.
func (o *Orchestrator) JobStatus(jobID string) (*job.Job, error) {
	if o.jobs == nil {
		return nil, job.ErrJobNotFound
	}
	return o.jobs.Status(jobID)
}

// Reset abandons the session and hands out a fresh identifier. It clears
// stored position, fields and staged artifacts but never mutates the
// external registration datastore.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) (string, error) {
	if sessionID != "" {
		if err := o.sessions.Delete(ctx, sessionID); err != nil {
			return "", err
		}
		if purger, ok := o.artifacts.(ArtifactPurger); ok && purger != nil {
			if err := purger.PurgeSession(sessionID); err != nil {
				o.logger.Warn("artifact purge failed on reset", "session_id", sessionID, "error", err.Error())
			}
		}
	}
	fresh, err := o.sessions.Create(ctx, "")
	if err != nil {
		return "", err
	}
	o.logger.Info("session reset", "old_session_id", sessionID, "new_session_id", fresh.ID)
	return fresh.ID, nil
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, id string) (*core.Session, bool, error) {
	if id == "" {
		sess, err := o.sessions.Create(ctx, "")
		return sess, true, err
	}
	sess, err := o.sessions.Get(ctx, id)
	if errors.Is(err, core.ErrSessionNotFound) {
		sess, err = o.sessions.Create(ctx, id)
		return sess, true, err
	}
	if err != nil {
		return nil, false, err
	}
	_, hasPos := sess.CurrentPosition()
	return sess, !hasPos, nil
}

func (o *Orchestrator) respond(ctx context.Context, sess *core.Session, msg string, completed bool) *TurnResponse {
	if o.phraser != nil {
		if rephrased, err := o.phraser.Rephrase(ctx, msg, sess.FieldSnapshot()); err == nil && rephrased != "" {
			msg = rephrased
		}
	}
	return &TurnResponse{
		SessionID:      sess.ID,
		Message:        msg,
		PositionMarker: o.marker(sess),
		Completed:      completed,
	}
}

func (o *Orchestrator) marker(sess *core.Session) string {
	if pos, ok := sess.CurrentPosition(); ok {
		return pos.Marker()
	}
	return ""
}

// failureMessage maps an action failure envelope to user-facing copy.
// Transient failures invite a retry; anything else gets a generic apology
// with no workflow detail.
func failureMessage(res *tool.Result) string {
	if res.ErrorCode == core.CodeCollaboratorTransient {
		return "Sorry, I couldn't reach one of our services just now. Please try that again."
	}
	return "Sorry, something went wrong on our side. The team has been notified; please try again later."
}
