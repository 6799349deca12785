package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/rosterflow/rosterflow/artifact"
	"github.com/rosterflow/rosterflow/config"
	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/httpapi"
	"github.com/rosterflow/rosterflow/job"
	"github.com/rosterflow/rosterflow/kit"
	"github.com/rosterflow/rosterflow/logging"
	"github.com/rosterflow/rosterflow/model"
	anthropicmodel "github.com/rosterflow/rosterflow/model/anthropic"
	openaimodel "github.com/rosterflow/rosterflow/model/openai"
	"github.com/rosterflow/rosterflow/notify"
	"github.com/rosterflow/rosterflow/orchestrator"
	"github.com/rosterflow/rosterflow/payment"
	"github.com/rosterflow/rosterflow/photo"
	"github.com/rosterflow/rosterflow/phrase"
	"github.com/rosterflow/rosterflow/record"
	"github.com/rosterflow/rosterflow/resume"
	"github.com/rosterflow/rosterflow/routine"
	"github.com/rosterflow/rosterflow/session"
	"github.com/rosterflow/rosterflow/tool"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewLogger(nil).Error("load config", "error", err.Error())
		os.Exit(1)
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Format:    "json",
		Output:    os.Stdout,
		Component: "rosterflowd",
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.RosterflowLogger) error {
	sessions, closeSessions, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	records, ledger, closeRecords, err := openRecordStore(cfg)
	if err != nil {
		return err
	}
	defer closeRecords()

	var artifacts core.ArtifactStore
	if cfg.StoreDriver == "memory" {
		artifacts = artifact.NewInMemoryStore()
	} else {
		fsStore, err := artifact.NewFSStore(cfg.ArtifactDir)
		if err != nil {
			return err
		}
		artifacts = fsStore
	}

	newKitByTeam := make(map[string]bool, len(cfg.KitNewKitTeams))
	for _, team := range cfg.KitNewKitTeams {
		newKitByTeam[team] = true
	}
	policy := kit.NewStaticPolicy(newKitByTeam, cfg.KitDefaultNewRequired)

	intake, err := routine.NewIntakeRoutine()
	if err != nil {
		return err
	}
	engine, err := routine.NewEngine(intake)
	if err != nil {
		return err
	}

	dispatcher, err := tool.NewDispatcher(tool.IntakeTools(), func(o *tool.Options) {
		o.Collaborators = core.ToolContextConfig{
			Records:   records,
			Artifacts: artifacts,
			Payments:  payment.NewFake(),
			Notifier:  notify.NewFake(),
			Photos:    &photo.Passthrough{},
			Kit:       policy,
		}
		o.Ledger = ledger
		o.Logger = logger.WithComponent("dispatcher")
	})
	if err != nil {
		return err
	}
	// Every action the routine can emit must have a registered tool before
	// the first session is accepted.
	if err := dispatcher.Verify(intake.Actions()); err != nil {
		return err
	}

	jobs := job.NewManager(func(o *job.Options) {
		o.Workers = cfg.JobWorkers
		o.QueueSize = cfg.JobQueueSize
		o.JobTimeout = cfg.JobTimeout
		o.Retention = cfg.JobRetention
		o.WatchdogGrace = cfg.WatchdogGrace
		o.Logger = logger.WithComponent("jobs")
	})
	jobs.Start()
	defer jobs.Stop()

	orch, err := orchestrator.New(sessions, engine, dispatcher, func(o *orchestrator.Options) {
		o.Resolver = resume.NewResolver(records, policy, func(ro *resume.Options) {
			ro.Logger = logger.WithComponent("resume")
		})
		o.Jobs = jobs
		o.Artifacts = artifacts
		o.Phraser = buildPhraser(cfg, logger)
		o.Logger = logger.WithComponent("orchestrator")
	})
	if err != nil {
		return err
	}

	janitorStop := startJanitor(sessions, cfg, logger)
	defer janitorStop()

	srv := httpapi.NewServer(cfg.HTTPAddr, orch, artifacts, logger.WithComponent("httpapi"))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func openSessionStore(cfg *config.Config) (core.SessionStore, func(), error) {
	if cfg.StoreDriver == "memory" {
		return session.NewInMemoryStore(), func() {}, nil
	}
	store, err := session.NewGormStore(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func openRecordStore(cfg *config.Config) (core.RecordStore, tool.EffectLedger, func(), error) {
	if cfg.StoreDriver == "memory" {
		return record.NewInMemoryStore(), tool.NewMemoryLedger(), func() {}, nil
	}
	store, err := record.NewGormStore(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	ledger, err := record.NewGormLedger(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}
	closer := func() {
		_ = ledger.Close()
		_ = store.Close()
	}
	return store, ledger, closer, nil
}

// buildPhraser returns nil when no provider is configured; the orchestrator
// then serves the deterministic step prompts verbatim.
func buildPhraser(cfg *config.Config, logger *logging.RosterflowLogger) orchestrator.Phraser {
	var m model.Model
	switch cfg.PhraseProvider {
	case "anthropic":
		m = anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.APIKey = cfg.AnthropicKey
			if cfg.PhraseModel != "" {
				o.Model = anthropic.Model(cfg.PhraseModel)
			}
		})
	case "openai":
		m = openaimodel.NewModel(func(o *openaimodel.Options) {
			o.APIKey = cfg.OpenAIKey
			if cfg.PhraseModel != "" {
				o.Model = cfg.PhraseModel
			}
		})
	default:
		return nil
	}
	return phrase.NewRewriter(m, func(o *phrase.Options) {
		o.Logger = logger.WithComponent("phrase")
	})
}

// startJanitor deletes sessions idle past the TTL on a fixed period.
func startJanitor(sessions core.SessionStore, cfg *config.Config, logger *logging.RosterflowLogger) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.JanitorPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-cfg.SessionTTL)
				n, err := sessions.DeleteExpired(context.Background(), cutoff)
				if err != nil {
					logger.Warn("session cleanup failed", "error", err.Error())
					continue
				}
				if n > 0 {
					logger.Info("expired sessions removed", "count", n)
				}
			}
		}
	}()
	return func() { close(stop) }
}
