package reconcile

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/commercegrid/adsync-api/internal/models"
)

// ErrMissingNaturalID marks an item that cannot be upserted because no
// candidate id field is present. The caller counts it as skipped and the pass
// continues; one bad row never aborts a page.
var ErrMissingNaturalID = errors.New("item is missing a natural id")

// EntityStore is the persistence surface the reconciler writes entities
// through. Satisfied by repository.EntityRepository.
type EntityStore interface {
	UpsertBusinessCenter(ctx context.Context, bc models.BusinessCenter) (bool, error)
	UpsertAdvertiser(ctx context.Context, adv models.Advertiser) (bool, error)
	UpsertStore(ctx context.Context, store models.Store) (bool, error)
	UpsertProduct(ctx context.Context, product models.Product) (bool, error)
	ListNaturalIDs(ctx context.Context, scope models.Scope, resourceType string) ([]string, error)
	GetAdvertiser(ctx context.Context, scope models.Scope, naturalID string) (models.Advertiser, error)
}

// LinkStore is the persistence surface for relationship edges. Satisfied by
// repository.LinkRepository.
type LinkStore interface {
	Get(ctx context.Context, scope models.Scope, advertiserID, otherID, linkKind string) (*models.EntityLink, error)
	Save(ctx context.Context, link models.EntityLink) error
}

// UpsertResult reports one reconciled item.
type UpsertResult struct {
	NaturalID string
	Inserted  bool
	Rev       string
	// BCHint carries the authorizing business-center id a store payload named,
	// collected by the orchestrator for majority-vote parent inference.
	BCHint string
}

// Reconciler maps raw provider payloads to canonical local entities and
// resolves relationship edges with the deterministic rank rule.
type Reconciler struct {
	entities EntityStore
	links    LinkStore
	logger   zerolog.Logger
}

func New(entities EntityStore, links LinkStore, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		entities: entities,
		links:    links,
		logger:   logger.With().Str("component", "reconciler").Logger(),
	}
}

func (r *Reconciler) UpsertBusinessCenter(ctx context.Context, scope models.Scope, item map[string]any) (UpsertResult, error) {
	id := Field(item, "bc_id")
	if id == "" {
		return UpsertResult{}, ErrMissingNaturalID
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return UpsertResult{}, errors.Wrap(err, "marshal business center payload")
	}
	bc := models.BusinessCenter{
		TenantID:  scope.TenantID,
		BindingID: scope.BindingID,
		NaturalID: id,
		Name:      Field(item, "name"),
		Status:    Field(item, "status"),
		Currency:  Field(item, "currency"),
		Timezone:  Field(item, "timezone"),
		Raw:       raw,
		SyncRev:   Revision(item),
	}
	inserted, err := r.entities.UpsertBusinessCenter(ctx, bc)
	if err != nil {
		return UpsertResult{}, errors.Wrap(err, "upsert business center")
	}
	return UpsertResult{NaturalID: id, Inserted: inserted, Rev: bc.SyncRev}, nil
}

// UpsertAdvertiser reconciles one advertiser item. When the payload names its
// owning business center, the edge is touched with the OWNER relation.
func (r *Reconciler) UpsertAdvertiser(ctx context.Context, scope models.Scope, item map[string]any, source string) (UpsertResult, error) {
	id := Field(item, "advertiser_id")
	if id == "" {
		return UpsertResult{}, ErrMissingNaturalID
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return UpsertResult{}, errors.Wrap(err, "marshal advertiser payload")
	}
	adv := models.Advertiser{
		TenantID:  scope.TenantID,
		BindingID: scope.BindingID,
		NaturalID: id,
		Name:      Field(item, "name"),
		Status:    Field(item, "status"),
		Currency:  Field(item, "currency"),
		Timezone:  Field(item, "timezone"),
		Industry:  Field(item, "industry"),
		OwnerBCID: Field(item, "owner_bc_id"),
		Raw:       raw,
		SyncRev:   Revision(item),
	}
	inserted, err := r.entities.UpsertAdvertiser(ctx, adv)
	if err != nil {
		return UpsertResult{}, errors.Wrap(err, "upsert advertiser")
	}
	if adv.OwnerBCID != "" {
		if err := r.TouchEdge(ctx, scope, id, adv.OwnerBCID, models.LinkKindBusinessCenter, models.RelationOwner, source, raw); err != nil {
			return UpsertResult{}, err
		}
	}
	return UpsertResult{NaturalID: id, Inserted: inserted, Rev: adv.SyncRev}, nil
}

// UpsertStore reconciles one store item listed under advertiserID. The store
// edge to its advertiser is touched with the relation the payload declares,
// and a store_authorized_bc_id hint additionally touches the advertiser's
// business-center edge as AUTHORIZER.
func (r *Reconciler) UpsertStore(ctx context.Context, scope models.Scope, advertiserID string, item map[string]any, source string) (UpsertResult, error) {
	id := Field(item, "store_id")
	if id == "" {
		return UpsertResult{}, ErrMissingNaturalID
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return UpsertResult{}, errors.Wrap(err, "marshal store payload")
	}
	store := models.Store{
		TenantID:     scope.TenantID,
		BindingID:    scope.BindingID,
		NaturalID:    id,
		Name:         Field(item, "name"),
		Status:       Field(item, "status"),
		StoreType:    Field(item, "store_type"),
		Region:       Field(item, "region"),
		AdvertiserID: advertiserID,
		Raw:          raw,
		SyncRev:      Revision(item),
	}
	inserted, err := r.entities.UpsertStore(ctx, store)
	if err != nil {
		return UpsertResult{}, errors.Wrap(err, "upsert store")
	}

	if advertiserID != "" {
		rel := ParseRelation(Field(item, "relation"))
		if err := r.TouchEdge(ctx, scope, advertiserID, id, models.LinkKindStore, rel, source, raw); err != nil {
			return UpsertResult{}, err
		}
	}

	hint := Field(item, "authorized_bc_id")
	if hint != "" && advertiserID != "" {
		if err := r.TouchEdge(ctx, scope, advertiserID, hint, models.LinkKindBusinessCenter, models.RelationAuthorizer, source, raw); err != nil {
			return UpsertResult{}, err
		}
	}
	return UpsertResult{NaturalID: id, Inserted: inserted, Rev: store.SyncRev, BCHint: hint}, nil
}

func (r *Reconciler) UpsertProduct(ctx context.Context, scope models.Scope, storeID string, item map[string]any) (UpsertResult, error) {
	id := Field(item, "product_id")
	if id == "" {
		return UpsertResult{}, ErrMissingNaturalID
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return UpsertResult{}, errors.Wrap(err, "marshal product payload")
	}
	product := models.Product{
		TenantID:    scope.TenantID,
		BindingID:   scope.BindingID,
		NaturalID:   id,
		StoreID:     storeID,
		Title:       Field(item, "title"),
		Status:      Field(item, "status"),
		Eligibility: Field(item, "eligibility"),
		Raw:         raw,
		SyncRev:     Revision(item),
	}
	inserted, err := r.entities.UpsertProduct(ctx, product)
	if err != nil {
		return UpsertResult{}, errors.Wrap(err, "upsert product")
	}
	return UpsertResult{NaturalID: id, Inserted: inserted, Rev: product.SyncRev}, nil
}

// TouchEdge resolves a relationship signal against the stored edge. A new
// pair is inserted as observed; an existing pair keeps the stronger (lower
// rank) relation and is otherwise only refreshed. Downgrades never happen by
// staleness, only by a future stronger observation.
func (r *Reconciler) TouchEdge(ctx context.Context, scope models.Scope, advertiserID, otherID, linkKind string, rel models.RelationType, source string, raw json.RawMessage) error {
	existing, err := r.links.Get(ctx, scope, advertiserID, otherID, linkKind)
	if err != nil {
		return errors.Wrap(err, "get entity link")
	}

	link := models.EntityLink{
		TenantID:     scope.TenantID,
		BindingID:    scope.BindingID,
		AdvertiserID: advertiserID,
		OtherID:      otherID,
		LinkKind:     linkKind,
		RelationType: rel,
		Source:       source,
		Raw:          raw,
	}
	if existing != nil && existing.RelationType.Rank() <= rel.Rank() {
		// Keep the stronger stored relation; still refresh the snapshot.
		link.RelationType = existing.RelationType
	}
	return errors.Wrap(r.links.Save(ctx, link), "save entity link")
}

// ResolveParentHint picks a business-center parent for an advertiser from
// hint candidates cited by sibling rows, by majority vote. Ties resolve to
// the lexicographically smallest candidate id and are reported as ambiguous;
// this is never an error.
func (r *Reconciler) ResolveParentHint(hints map[string]int) (string, bool) {
	if len(hints) == 0 {
		return "", false
	}
	candidates := make([]string, 0, len(hints))
	for id := range hints {
		candidates = append(candidates, id)
	}
	sort.Strings(candidates)

	winner := candidates[0]
	tied := false
	for _, id := range candidates[1:] {
		if hints[id] > hints[winner] {
			winner = id
			tied = false
		} else if hints[id] == hints[winner] {
			tied = true
		}
	}
	if tied {
		r.logger.Warn().
			Strs("candidates", candidates).
			Str("chosen", winner).
			Msg("ambiguous business center hint, proceeding with first candidate")
	}
	return winner, tied
}

// InferOwnerBC fills a missing advertiser→business-center link from collected
// sibling hints, when the advertiser itself never declared an owner.
func (r *Reconciler) InferOwnerBC(ctx context.Context, scope models.Scope, advertiserID string, hints map[string]int, source string) error {
	adv, err := r.entities.GetAdvertiser(ctx, scope, advertiserID)
	if err != nil {
		return errors.Wrap(err, "get advertiser for parent inference")
	}
	if adv.OwnerBCID != "" {
		return nil
	}
	winner, _ := r.ResolveParentHint(hints)
	if winner == "" {
		return nil
	}
	raw, err := json.Marshal(map[string]any{"inferred_from_hints": hints})
	if err != nil {
		return errors.Wrap(err, "marshal inference snapshot")
	}
	return r.TouchEdge(ctx, scope, advertiserID, winner, models.LinkKindBusinessCenter, models.RelationAuthorizer, source, raw)
}

// ParseRelation normalizes a provider relation string to the canonical enum;
// anything unrecognized ranks weakest.
func ParseRelation(s string) models.RelationType {
	switch models.RelationType(strings.ToUpper(strings.TrimSpace(s))) {
	case models.RelationOwner:
		return models.RelationOwner
	case models.RelationAuthorizer:
		return models.RelationAuthorizer
	case models.RelationPartner:
		return models.RelationPartner
	default:
		return models.RelationUnknown
	}
}
