package syncer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/commercegrid/adsync-api/internal/models"
	"github.com/commercegrid/adsync-api/internal/provider"
	"github.com/commercegrid/adsync-api/internal/reconcile"
)

// Source tags recorded on relationship edges, naming the endpoint that
// produced each signal.
const (
	sourceAdvertiserList = "advertiser_list"
	sourceAdvertiserInfo = "advertiser_info"
	sourceStoreList      = "store_list"
)

// ProviderAPI is the slice of the provider client the orchestrator consumes.
type ProviderAPI interface {
	ListBusinessCenters(opts provider.ListOptions) *provider.PageStream
	ListAdvertisers(opts provider.ListOptions) *provider.PageStream
	ListStores(opts provider.ListOptions) *provider.PageStream
	ListProducts(opts provider.ListOptions) *provider.PageStream
	GetAdvertiserDetails(ctx context.Context, ids []string) ([]map[string]any, error)
}

// Options narrows one orchestrator invocation. StoreID and Eligibility are
// passed through to the client unchanged; the orchestrator does not interpret
// them.
type Options struct {
	Mode        string
	Limit       int
	StoreID     string
	Eligibility string
}

func (o Options) full() bool { return o.Mode == models.ModeFull }

// PhaseError names the phase that failed inside a composite invocation.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string { return fmt.Sprintf("phase %s: %v", e.Phase, e.Err) }
func (e *PhaseError) Unwrap() error { return e.Err }

// Orchestrator sequences the resource-type passes for one binding. Phases run
// strictly in order because later phases iterate identifiers written by
// earlier ones. Each phase commits its own unit of work; a failure never rolls
// back a previous phase.
type Orchestrator struct {
	client       ProviderAPI
	rec          *reconcile.Reconciler
	cursors      *reconcile.CursorTracker
	entities     reconcile.EntityStore
	hydrateBatch int
	logger       zerolog.Logger
}

func NewOrchestrator(client ProviderAPI, rec *reconcile.Reconciler, cursors *reconcile.CursorTracker, entities reconcile.EntityStore, hydrateBatch int, logger zerolog.Logger) *Orchestrator {
	if hydrateBatch > provider.MaxDetailBatch {
		hydrateBatch = provider.MaxDetailBatch
	}
	return &Orchestrator{
		client:       client,
		rec:          rec,
		cursors:      cursors,
		entities:     entities,
		hydrateBatch: hydrateBatch,
		logger:       logger.With().Str("component", "orchestrator").Logger(),
	}
}

// phaseRun accumulates one pass.
type phaseRun struct {
	stats    models.PhaseStats
	observed []string
	maxRev   string
}

func (p *phaseRun) item(result reconcile.UpsertResult) {
	p.stats.Upserted++
	p.observed = append(p.observed, result.NaturalID)
	p.maxRev = laterRev(p.maxRev, result.Rev)
}

// SyncBusinessCenters pulls every business center visible to the binding.
func (o *Orchestrator) SyncBusinessCenters(ctx context.Context, scope models.Scope, opts Options) (models.PhaseStats, error) {
	run := &phaseRun{}
	cursor, err := o.cursors.GetOrCreate(ctx, scope, models.ResourceBusinessCenters)
	if err != nil {
		return run.stats, err
	}
	before, err := o.entities.ListNaturalIDs(ctx, scope, models.ResourceBusinessCenters)
	if err != nil {
		return run.stats, errors.Wrap(err, "list business center ids")
	}

	stream := o.client.ListBusinessCenters(o.listOptions(cursor, opts))
	if err := o.drain(ctx, stream, run, opts, func(ctx context.Context, item map[string]any) (reconcile.UpsertResult, error) {
		return o.rec.UpsertBusinessCenter(ctx, scope, item)
	}); err != nil {
		return run.stats, err
	}

	return o.finishPhase(ctx, run, cursor, before, opts, "")
}

// SyncAdvertisers pulls the advertiser list and then hydrates detail fields
// absent from the list endpoint in batches.
func (o *Orchestrator) SyncAdvertisers(ctx context.Context, scope models.Scope, opts Options) (models.PhaseStats, error) {
	run := &phaseRun{}
	cursor, err := o.cursors.GetOrCreate(ctx, scope, models.ResourceAdvertisers)
	if err != nil {
		return run.stats, err
	}
	before, err := o.entities.ListNaturalIDs(ctx, scope, models.ResourceAdvertisers)
	if err != nil {
		return run.stats, errors.Wrap(err, "list advertiser ids")
	}

	stream := o.client.ListAdvertisers(o.listOptions(cursor, opts))
	if err := o.drain(ctx, stream, run, opts, func(ctx context.Context, item map[string]any) (reconcile.UpsertResult, error) {
		return o.rec.UpsertAdvertiser(ctx, scope, item, sourceAdvertiserList)
	}); err != nil {
		return run.stats, err
	}

	if o.hydrateBatch > 0 && len(run.observed) > 0 {
		if err := o.hydrateAdvertisers(ctx, scope, run); err != nil {
			return run.stats, err
		}
	}

	return o.finishPhase(ctx, run, cursor, before, opts, "")
}

func (o *Orchestrator) hydrateAdvertisers(ctx context.Context, scope models.Scope, run *phaseRun) error {
	ids := run.observed
	for start := 0; start < len(ids); start += o.hydrateBatch {
		end := start + o.hydrateBatch
		if end > len(ids) {
			end = len(ids)
		}
		details, err := o.client.GetAdvertiserDetails(ctx, ids[start:end])
		if err != nil {
			return errors.Wrap(err, "hydrate advertiser details")
		}
		for _, item := range details {
			result, err := o.rec.UpsertAdvertiser(ctx, scope, item, sourceAdvertiserInfo)
			if err == reconcile.ErrMissingNaturalID {
				run.stats.Skipped++
				continue
			}
			if err != nil {
				return err
			}
			run.maxRev = laterRev(run.maxRev, result.Rev)
		}
	}
	return nil
}

// SyncStores pulls the stores linked to every known advertiser. Store
// payloads also carry business-center authorization hints; advertisers that
// never declared an owner get a parent link inferred by majority vote over
// those hints.
func (o *Orchestrator) SyncStores(ctx context.Context, scope models.Scope, opts Options) (models.PhaseStats, error) {
	run := &phaseRun{}
	cursor, err := o.cursors.GetOrCreate(ctx, scope, models.ResourceStores)
	if err != nil {
		return run.stats, err
	}
	before, err := o.entities.ListNaturalIDs(ctx, scope, models.ResourceStores)
	if err != nil {
		return run.stats, errors.Wrap(err, "list store ids")
	}
	advertisers, err := o.entities.ListNaturalIDs(ctx, scope, models.ResourceAdvertisers)
	if err != nil {
		return run.stats, errors.Wrap(err, "list advertisers for store sync")
	}

	for _, advID := range advertisers {
		hints := map[string]int{}
		listOpts := o.listOptions(cursor, opts)
		listOpts.State = provider.PageState{}
		listOpts.AdvertiserID = advID
		stream := o.client.ListStores(listOpts)
		if err := o.drain(ctx, stream, run, opts, func(ctx context.Context, item map[string]any) (reconcile.UpsertResult, error) {
			result, err := o.rec.UpsertStore(ctx, scope, advID, item, sourceStoreList)
			if err == nil && result.BCHint != "" {
				hints[result.BCHint]++
			}
			return result, err
		}); err != nil {
			return run.stats, err
		}
		if len(hints) > 0 {
			if err := o.rec.InferOwnerBC(ctx, scope, advID, hints, sourceStoreList); err != nil {
				return run.stats, err
			}
		}
	}

	return o.finishPhase(ctx, run, cursor, before, opts, "")
}

// SyncProducts pulls products per store, optionally narrowed to one store and
// to an eligibility program filter.
func (o *Orchestrator) SyncProducts(ctx context.Context, scope models.Scope, opts Options) (models.PhaseStats, error) {
	run := &phaseRun{}
	cursor, err := o.cursors.GetOrCreate(ctx, scope, models.ResourceProducts)
	if err != nil {
		return run.stats, err
	}
	before, err := o.entities.ListNaturalIDs(ctx, scope, models.ResourceProducts)
	if err != nil {
		return run.stats, errors.Wrap(err, "list product ids")
	}

	var stores []string
	if opts.StoreID != "" {
		stores = []string{opts.StoreID}
	} else {
		stores, err = o.entities.ListNaturalIDs(ctx, scope, models.ResourceStores)
		if err != nil {
			return run.stats, errors.Wrap(err, "list stores for product sync")
		}
	}

	var lastToken string
	for _, storeID := range stores {
		listOpts := o.listOptions(cursor, opts)
		listOpts.StoreID = storeID
		listOpts.Eligibility = opts.Eligibility
		if opts.StoreID == "" {
			// The stored cursor token only resumes a single-store pass.
			listOpts.State = provider.PageState{}
		}
		stream := o.client.ListProducts(listOpts)
		if err := o.drain(ctx, stream, run, opts, func(ctx context.Context, item map[string]any) (reconcile.UpsertResult, error) {
			return o.rec.UpsertProduct(ctx, scope, storeID, item)
		}); err != nil {
			return run.stats, err
		}
		lastToken = stream.State().Cursor
	}
	if opts.StoreID == "" {
		lastToken = ""
	}

	return o.finishPhase(ctx, run, cursor, before, opts, lastToken)
}

// SyncAll composes the four phases in dependency order and maps phase name to
// its stats. A failing phase stops the composite but keeps every stat and row
// committed by earlier phases.
func (o *Orchestrator) SyncAll(ctx context.Context, scope models.Scope, opts Options) (map[string]models.PhaseStats, error) {
	stats := map[string]models.PhaseStats{}
	phases := []struct {
		name string
		fn   func(context.Context, models.Scope, Options) (models.PhaseStats, error)
	}{
		{models.ResourceBusinessCenters, o.SyncBusinessCenters},
		{models.ResourceAdvertisers, o.SyncAdvertisers},
		{models.ResourceStores, o.SyncStores},
		{models.ResourceProducts, o.SyncProducts},
	}
	for _, phase := range phases {
		phaseStats, err := phase.fn(ctx, scope, opts)
		stats[phase.name] = phaseStats
		if err != nil {
			o.logger.Error().Err(err).Str("phase", phase.name).Msg("sync phase failed")
			return stats, &PhaseError{Phase: phase.name, Err: err}
		}
	}
	return stats, nil
}

// SyncScope dispatches a single resource scope, or the composite for "all".
func (o *Orchestrator) SyncScope(ctx context.Context, scope models.Scope, resourceScope string, opts Options) (map[string]models.PhaseStats, error) {
	switch resourceScope {
	case models.ResourceAll:
		return o.SyncAll(ctx, scope, opts)
	case models.ResourceBusinessCenters:
		stats, err := o.SyncBusinessCenters(ctx, scope, opts)
		return map[string]models.PhaseStats{resourceScope: stats}, err
	case models.ResourceAdvertisers:
		stats, err := o.SyncAdvertisers(ctx, scope, opts)
		return map[string]models.PhaseStats{resourceScope: stats}, err
	case models.ResourceStores:
		stats, err := o.SyncStores(ctx, scope, opts)
		return map[string]models.PhaseStats{resourceScope: stats}, err
	case models.ResourceProducts:
		stats, err := o.SyncProducts(ctx, scope, opts)
		return map[string]models.PhaseStats{resourceScope: stats}, err
	default:
		return nil, fmt.Errorf("unknown resource scope %q", resourceScope)
	}
}

// drain consumes a page stream, upserting every item. A malformed item is
// counted and skipped; any other failure stops the pass with the pages
// already upserted left committed.
func (o *Orchestrator) drain(ctx context.Context, stream *provider.PageStream, run *phaseRun, opts Options, upsert func(context.Context, map[string]any) (reconcile.UpsertResult, error)) error {
	for stream.Next(ctx) {
		for _, item := range stream.Items() {
			run.stats.Fetched++
			result, err := upsert(ctx, item)
			if err == reconcile.ErrMissingNaturalID {
				run.stats.Skipped++
				o.logger.Warn().Msg("skipping item without natural id")
				continue
			}
			if err != nil {
				return err
			}
			run.item(result)
		}
		if opts.Limit > 0 && run.stats.Fetched >= opts.Limit {
			break
		}
	}
	return stream.Err()
}

// finishPhase checkpoints the cursor and computes diff accounting. An empty
// pass leaves the cursor untouched.
func (o *Orchestrator) finishPhase(ctx context.Context, run *phaseRun, cursor models.SyncCursor, before []string, opts Options, token string) (models.PhaseStats, error) {
	if run.stats.Fetched == 0 {
		run.stats.Cursor.LastRev = cursor.LastRev
		return run.stats, nil
	}
	checkpointed, err := o.cursors.Checkpoint(ctx, cursor, run.maxRev, token)
	if err != nil {
		return run.stats, err
	}
	run.stats.Cursor.LastRev = checkpointed.LastRev
	run.stats.Diff = reconcile.DiffIDs(before, run.observed, opts.full())
	return run.stats, nil
}

func (o *Orchestrator) listOptions(cursor models.SyncCursor, opts Options) provider.ListOptions {
	listOpts := provider.ListOptions{}
	if !opts.full() {
		listOpts.State = provider.PageState{Cursor: cursor.CursorToken}
		if cursor.LastSyncedAt != nil {
			listOpts.Since = *cursor.LastSyncedAt
		}
	}
	return listOpts
}

// laterRev keeps the newest of two revision markers: numeric markers compare
// numerically, otherwise the later observation wins.
func laterRev(current, candidate string) string {
	if candidate == "" {
		return current
	}
	if current == "" {
		return candidate
	}
	ci, errC := strconv.ParseInt(current, 10, 64)
	ni, errN := strconv.ParseInt(candidate, 10, 64)
	if errC == nil && errN == nil && ci > ni {
		return current
	}
	return candidate
}
