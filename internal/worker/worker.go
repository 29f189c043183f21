package worker

import (
	"github.com/pkg/errors"
	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/commercegrid/adsync-api/internal/dispatch"
	"github.com/commercegrid/adsync-api/internal/temporal"
	"github.com/commercegrid/adsync-api/internal/temporal/activities"
	"github.com/commercegrid/adsync-api/internal/temporal/workflows"
)

// Worker hosts the sync workflow and its dispatch activity on the shared
// task queue.
type Worker struct {
	inner sdkworker.Worker
}

func New(temporalClient client.Client, dispatcher *dispatch.Dispatcher) *Worker {
	w := sdkworker.New(temporalClient, temporal.TaskQueueName, sdkworker.Options{})
	w.RegisterWorkflow(workflows.SyncWorkflow)
	w.RegisterActivity(&activities.Activities{Dispatcher: dispatcher})
	return &Worker{inner: w}
}

// Run blocks until the interrupt channel closes or the worker fails.
func (w *Worker) Run(interrupt <-chan interface{}) error {
	if err := w.inner.Run(interrupt); err != nil {
		return errors.Wrap(err, "run temporal worker")
	}
	return nil
}

// Start runs the worker without blocking; Stop shuts it down.
func (w *Worker) Start() error {
	return errors.Wrap(w.inner.Start(), "start temporal worker")
}

func (w *Worker) Stop() {
	w.inner.Stop()
}
