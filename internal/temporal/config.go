package temporal

import (
	"time"

	"github.com/commercegrid/adsync-api/internal/models"
	"github.com/commercegrid/adsync-api/internal/syncer"
)

// TaskQueueName is the Temporal task queue carrying sync dispatch workflows.
const TaskQueueName = "ADSYNC_DISPATCH"

// SyncWorkflowIDPrefix prefixes sync workflow IDs.
const SyncWorkflowIDPrefix = "adsync-"

// DefaultActivityTimeout bounds one dispatch activity attempt. A full
// four-phase pass over a large binding can page for a while.
const DefaultActivityTimeout = 30 * time.Minute

// MaxDispatchAttempts is the retry ceiling for a failed dispatch activity.
const MaxDispatchAttempts = 5

// SyncParams is the workflow input: one trigger for one binding.
type SyncParams struct {
	TenantID       string
	Provider       string
	BindingID      string
	ResourceScope  string
	Mode           string
	IdempotencyKey string
	Actor          string
	Options        syncer.Options
}

// SyncResult reports the terminal run back to the workflow caller.
type SyncResult struct {
	RunID     string
	Status    string
	ErrorCode string
	Stats     map[string]models.PhaseStats
}
