package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/siteintel/internal/adapters/nats"
	"github.com/samirrijal/siteintel/internal/adapters/postgres"
	"github.com/samirrijal/siteintel/internal/adapters/valkey"
	"github.com/samirrijal/siteintel/internal/bootstrap"
	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/pkg/config"
	"github.com/samirrijal/siteintel/internal/pkg/logging"
	"github.com/samirrijal/siteintel/internal/pkg/telemetry"
	"github.com/samirrijal/siteintel/internal/workflows"
)

const service = "siteintel-matcher"

func main() {
	cfg, err := config.Load(service)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, service)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	cache, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Password, cfg.Valkey.KeyPrefix)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
	}

	svc, err := bootstrap.Build(cfg, db, cache, nil)
	if err != nil {
		log.Fatalf("services: %v", err)
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SurveyMatchWorkflow)
	w.RegisterActivity(&workflows.SurveyActivities{Surveys: svc.Surveys})

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer sub.Close()

	start := func(ctx context.Context, event *domain.SurveyUploadedEvent) error {
		return startSurveyWorkflow(ctx, c, cfg.Temporal.TaskQueue, event.SurveyID)
	}
	if err := sub.SubscribeSurveyUploaded(ctx, start); err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	slog.Info("matcher worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// startSurveyWorkflow starts one workflow per survey. A redelivered event for
// a survey that already has a workflow is acknowledged.
func startSurveyWorkflow(ctx context.Context, c client.Client, queue, surveyID string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := client.StartWorkflowOptions{
		ID:                    workflows.SurveyWorkflowID(surveyID),
		TaskQueue:             queue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	run, err := c.ExecuteWorkflow(ctx, opts, workflows.SurveyMatchWorkflow, workflows.SurveyMatchInput{SurveyID: surveyID})
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		slog.Debug("survey workflow already running", "survey_id", surveyID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("start survey workflow: %w", err)
	}
	slog.Info("survey workflow started", "survey_id", surveyID, "run_id", run.GetRunID())
	return nil
}
