// Package rosterflow provides a high-level façade over the intake workflow:
// the routine engine, tool dispatcher, session and record stores, and the
// async job manager. Most applications interact with this package by:
//  1. Creating a Rosterflow via New() (optionally overriding default in-memory services)
//  2. Starting it, which brings up the background job workers
//  3. Driving conversations through HandleTurn and polling jobs via JobStatus
//
// All defaults are safe for local development and testing; production
// deployments supply durable store implementations and a structured logger
// (see cmd/rosterflowd for the full wiring).
package rosterflow

import (
	"context"

	"github.com/rosterflow/rosterflow/artifact"
	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/job"
	"github.com/rosterflow/rosterflow/kit"
	"github.com/rosterflow/rosterflow/logging"
	"github.com/rosterflow/rosterflow/notify"
	"github.com/rosterflow/rosterflow/orchestrator"
	"github.com/rosterflow/rosterflow/payment"
	"github.com/rosterflow/rosterflow/photo"
	"github.com/rosterflow/rosterflow/record"
	"github.com/rosterflow/rosterflow/resume"
	"github.com/rosterflow/rosterflow/routine"
	"github.com/rosterflow/rosterflow/session"
	"github.com/rosterflow/rosterflow/tool"
)

// Options configures the Rosterflow instance.
type Options struct {
	// Stores (default to in-memory implementations if not provided).
	SessionStore  core.SessionStore
	RecordStore   core.RecordStore
	ArtifactStore core.ArtifactStore

	// Collaborators (default to local fakes if not provided).
	Payments core.PaymentProvider
	Notifier core.Notifier
	Photos   core.PhotoProcessor
	Kit      core.KitPolicy

	// Ledger backs the dispatcher's idempotency guard.
	Ledger tool.EffectLedger

	// Phraser optionally rewrites outgoing prompts; nil serves them verbatim.
	Phraser orchestrator.Phraser

	// JobOptions tune the async job manager.
	JobOptions []func(o *job.Options)

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Rosterflow is the high-level façade aggregating the orchestrator and its
// services.
type Rosterflow struct {
	opts Options
	orch *orchestrator.Orchestrator
	jobs *job.Manager
}

// New creates a Rosterflow instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) (*Rosterflow, error) {
	opts := Options{
		SessionStore:  session.NewInMemoryStore(),
		RecordStore:   record.NewInMemoryStore(),
		ArtifactStore: artifact.NewInMemoryStore(),
		Payments:      payment.NewFake(),
		Notifier:      notify.NewFake(),
		Photos:        &photo.Passthrough{},
		Kit:           kit.NewStaticPolicy(nil, false),
		Ledger:        tool.NewMemoryLedger(),
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	intake, err := routine.NewIntakeRoutine()
	if err != nil {
		return nil, err
	}
	engine, err := routine.NewEngine(intake)
	if err != nil {
		return nil, err
	}

	dispatcher, err := tool.NewDispatcher(tool.IntakeTools(), func(o *tool.Options) {
		o.Collaborators = core.ToolContextConfig{
			Records:   opts.RecordStore,
			Artifacts: opts.ArtifactStore,
			Payments:  opts.Payments,
			Notifier:  opts.Notifier,
			Photos:    opts.Photos,
			Kit:       opts.Kit,
		}
		o.Ledger = opts.Ledger
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}
	if err := dispatcher.Verify(intake.Actions()); err != nil {
		return nil, err
	}

	jobs := job.NewManager(append([]func(o *job.Options){func(o *job.Options) {
		o.Logger = opts.Logger
	}}, opts.JobOptions...)...)

	orch, err := orchestrator.New(opts.SessionStore, engine, dispatcher, func(o *orchestrator.Options) {
		o.Resolver = resume.NewResolver(opts.RecordStore, opts.Kit, func(ro *resume.Options) {
			ro.Logger = opts.Logger
		})
		o.Jobs = jobs
		o.Artifacts = opts.ArtifactStore
		o.Phraser = opts.Phraser
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return &Rosterflow{opts: opts, orch: orch, jobs: jobs}, nil
}

// Start brings up the background job workers. Must be called before any
// asynchronous upload can run.
func (r *Rosterflow) Start() { r.jobs.Start() }

// Close stops the job manager and waits for in-flight jobs to settle.
func (r *Rosterflow) Close() { r.jobs.Stop() }

// HandleTurn advances a conversation by one user turn.
func (r *Rosterflow) HandleTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResponse, error) {
	return r.orch.HandleTurn(ctx, req)
}

// JobStatus reports the state of an asynchronous upload job.
func (r *Rosterflow) JobStatus(jobID string) (*job.Job, error) {
	return r.orch.JobStatus(jobID)
}

// Reset abandons the session and issues a fresh one. Registration records
// are kept.
func (r *Rosterflow) Reset(ctx context.Context, sessionID string) (string, error) {
	return r.orch.Reset(ctx, sessionID)
}

// Orchestrator exposes the underlying orchestrator for transports that need
// it directly, such as httpapi.NewServer.
func (r *Rosterflow) Orchestrator() *orchestrator.Orchestrator { return r.orch }
