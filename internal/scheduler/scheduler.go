package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"

	"github.com/commercegrid/adsync-api/internal/syncer"
	"github.com/commercegrid/adsync-api/internal/temporal"
)

// Schedule is one recurring sync trigger.
type Schedule struct {
	Name          string        `mapstructure:"name"`
	Cron          string        `mapstructure:"cron"`
	TenantID      string        `mapstructure:"tenant_id"`
	Provider      string        `mapstructure:"provider"`
	BindingID     string        `mapstructure:"binding_id"`
	ResourceScope string        `mapstructure:"resource_scope"`
	Mode          string        `mapstructure:"mode"`
	// Window truncates the firing time for the idempotency key, so retries
	// and overlapping scheduler replicas collapse onto one run per window.
	Window time.Duration `mapstructure:"window"`
}

// Scheduler fires configured schedules as sync workflows. Duplicate firings
// inside one window replay the same idempotency key and land on the same run.
type Scheduler struct {
	cron   *cron.Cron
	client client.Client
	now    func() time.Time
	logger zerolog.Logger
}

func New(temporalClient client.Client, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		client: temporalClient,
		now:    time.Now,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Register adds a schedule. Returns an error for an unparsable cron
// expression.
func (s *Scheduler) Register(sched Schedule) error {
	if sched.Window <= 0 {
		sched.Window = time.Hour
	}
	_, err := s.cron.AddFunc(sched.Cron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.fire(ctx, sched); err != nil {
			s.logger.Error().Err(err).Str("schedule", sched.Name).Msg("failed to fire schedule")
		}
	})
	return errors.Wrapf(err, "register schedule %s", sched.Name)
}

func (s *Scheduler) fire(ctx context.Context, sched Schedule) error {
	windowStart := s.now().UTC().Truncate(sched.Window)
	idempotencyKey := IdempotencyKey(sched.Name, windowStart)

	params := temporal.SyncParams{
		TenantID:       sched.TenantID,
		Provider:       sched.Provider,
		BindingID:      sched.BindingID,
		ResourceScope:  sched.ResourceScope,
		Mode:           sched.Mode,
		IdempotencyKey: idempotencyKey,
		Actor:          "scheduler:" + sched.Name,
		Options:        syncer.Options{Mode: sched.Mode},
	}
	opts := client.StartWorkflowOptions{
		ID:        temporal.SyncWorkflowIDPrefix + idempotencyKey,
		TaskQueue: temporal.TaskQueueName,
	}
	run, err := s.client.ExecuteWorkflow(ctx, opts, "SyncWorkflow", params)
	if err != nil {
		return errors.Wrap(err, "start sync workflow")
	}
	s.logger.Info().
		Str("schedule", sched.Name).
		Str("workflow_id", run.GetID()).
		Str("idempotency_key", idempotencyKey).
		Msg("schedule fired")
	return nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for in-flight firings.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// IdempotencyKey names the run bound to one schedule window.
func IdempotencyKey(name string, windowStart time.Time) string {
	return fmt.Sprintf("sched:%s:%d", name, windowStart.Unix())
}
