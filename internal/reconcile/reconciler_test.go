package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercegrid/adsync-api/internal/models"
)

type fakeEntityStore struct {
	bcs         map[string]models.BusinessCenter
	advertisers map[string]models.Advertiser
	stores      map[string]models.Store
	products    map[string]models.Product
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{
		bcs:         map[string]models.BusinessCenter{},
		advertisers: map[string]models.Advertiser{},
		stores:      map[string]models.Store{},
		products:    map[string]models.Product{},
	}
}

func (f *fakeEntityStore) UpsertBusinessCenter(_ context.Context, bc models.BusinessCenter) (bool, error) {
	_, exists := f.bcs[bc.NaturalID]
	f.bcs[bc.NaturalID] = bc
	return !exists, nil
}

func (f *fakeEntityStore) UpsertAdvertiser(_ context.Context, adv models.Advertiser) (bool, error) {
	_, exists := f.advertisers[adv.NaturalID]
	f.advertisers[adv.NaturalID] = adv
	return !exists, nil
}

func (f *fakeEntityStore) UpsertStore(_ context.Context, store models.Store) (bool, error) {
	_, exists := f.stores[store.NaturalID]
	f.stores[store.NaturalID] = store
	return !exists, nil
}

func (f *fakeEntityStore) UpsertProduct(_ context.Context, product models.Product) (bool, error) {
	_, exists := f.products[product.NaturalID]
	f.products[product.NaturalID] = product
	return !exists, nil
}

func (f *fakeEntityStore) ListNaturalIDs(_ context.Context, _ models.Scope, resourceType string) ([]string, error) {
	var ids []string
	switch resourceType {
	case models.ResourceBusinessCenters:
		for id := range f.bcs {
			ids = append(ids, id)
		}
	case models.ResourceAdvertisers:
		for id := range f.advertisers {
			ids = append(ids, id)
		}
	case models.ResourceStores:
		for id := range f.stores {
			ids = append(ids, id)
		}
	case models.ResourceProducts:
		for id := range f.products {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeEntityStore) GetAdvertiser(_ context.Context, _ models.Scope, naturalID string) (models.Advertiser, error) {
	adv, ok := f.advertisers[naturalID]
	if !ok {
		return models.Advertiser{}, fmt.Errorf("advertiser %s not found", naturalID)
	}
	return adv, nil
}

type fakeLinkStore struct {
	links map[string]models.EntityLink
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{links: map[string]models.EntityLink{}}
}

func linkFakeKey(advertiserID, otherID, linkKind string) string {
	return advertiserID + "|" + otherID + "|" + linkKind
}

func (f *fakeLinkStore) Get(_ context.Context, _ models.Scope, advertiserID, otherID, linkKind string) (*models.EntityLink, error) {
	link, ok := f.links[linkFakeKey(advertiserID, otherID, linkKind)]
	if !ok {
		return nil, nil
	}
	return &link, nil
}

func (f *fakeLinkStore) Save(_ context.Context, link models.EntityLink) error {
	f.links[linkFakeKey(link.AdvertiserID, link.OtherID, link.LinkKind)] = link
	return nil
}

func testScope() models.Scope {
	return models.Scope{TenantID: "t-1", Provider: "adplatform", BindingID: "b-1"}
}

func newTestReconciler() (*Reconciler, *fakeEntityStore, *fakeLinkStore) {
	entities := newFakeEntityStore()
	links := newFakeLinkStore()
	return New(entities, links, zerolog.Nop()), entities, links
}

func TestUpsertBusinessCenter(t *testing.T) {
	rec, entities, _ := newTestReconciler()
	ctx := context.Background()
	item := map[string]any{"bc_id": "bc-1", "name": "Main BC", "status": "ACTIVE", "update_time": "1700000100"}

	result, err := rec.UpsertBusinessCenter(ctx, testScope(), item)
	require.NoError(t, err)
	assert.True(t, result.Inserted)
	assert.Equal(t, "bc-1", result.NaturalID)
	assert.Equal(t, "1700000100", result.Rev)

	// Second pass over the same item updates in place.
	result, err = rec.UpsertBusinessCenter(ctx, testScope(), item)
	require.NoError(t, err)
	assert.False(t, result.Inserted)

	stored := entities.bcs["bc-1"]
	assert.Equal(t, "Main BC", stored.Name)
	assert.Equal(t, "ACTIVE", stored.Status)
	assert.JSONEq(t, `{"bc_id":"bc-1","name":"Main BC","status":"ACTIVE","update_time":"1700000100"}`, string(stored.Raw))
}

func TestUpsertBusinessCenter_MissingNaturalID(t *testing.T) {
	rec, _, _ := newTestReconciler()

	_, err := rec.UpsertBusinessCenter(context.Background(), testScope(), map[string]any{"name": "orphan"})
	assert.ErrorIs(t, err, ErrMissingNaturalID)
}

func TestUpsertAdvertiser_DeclaredOwnerTouchesEdge(t *testing.T) {
	rec, entities, links := newTestReconciler()
	item := map[string]any{"advertiser_id": "adv-1", "name": "Acme", "owner_bc_id": "bc-1"}

	result, err := rec.UpsertAdvertiser(context.Background(), testScope(), item, "advertiser_list")
	require.NoError(t, err)
	assert.True(t, result.Inserted)
	assert.Equal(t, "bc-1", entities.advertisers["adv-1"].OwnerBCID)

	edge, err := links.Get(context.Background(), testScope(), "adv-1", "bc-1", models.LinkKindBusinessCenter)
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Equal(t, models.RelationOwner, edge.RelationType)
	assert.Equal(t, "advertiser_list", edge.Source)
}

func TestUpsertStore_EdgesAndHint(t *testing.T) {
	rec, _, links := newTestReconciler()
	item := map[string]any{
		"store_id":               "store-1",
		"store_name":             "Flagship",
		"relation_type":          "partner",
		"store_authorized_bc_id": "bc-7",
	}

	result, err := rec.UpsertStore(context.Background(), testScope(), "adv-1", item, "store_list")
	require.NoError(t, err)
	assert.Equal(t, "bc-7", result.BCHint)

	storeEdge, err := links.Get(context.Background(), testScope(), "adv-1", "store-1", models.LinkKindStore)
	require.NoError(t, err)
	require.NotNil(t, storeEdge)
	assert.Equal(t, models.RelationPartner, storeEdge.RelationType)

	bcEdge, err := links.Get(context.Background(), testScope(), "adv-1", "bc-7", models.LinkKindBusinessCenter)
	require.NoError(t, err)
	require.NotNil(t, bcEdge)
	assert.Equal(t, models.RelationAuthorizer, bcEdge.RelationType)
}

func TestUpsertProduct_NumericID(t *testing.T) {
	rec, entities, _ := newTestReconciler()
	item := map[string]any{"item_id": float64(990011), "title": "Desk Lamp", "eligibility": "grocery"}

	result, err := rec.UpsertProduct(context.Background(), testScope(), "store-1", item)
	require.NoError(t, err)
	assert.Equal(t, "990011", result.NaturalID)
	assert.Equal(t, "store-1", entities.products["990011"].StoreID)
	assert.Equal(t, "Desk Lamp", entities.products["990011"].Title)
}

func TestTouchEdge_KeepsStrongerRelation(t *testing.T) {
	rec, _, links := newTestReconciler()
	ctx := context.Background()
	scope := testScope()

	require.NoError(t, rec.TouchEdge(ctx, scope, "adv-1", "bc-1", models.LinkKindBusinessCenter, models.RelationOwner, "advertiser_list", nil))

	// A weaker later observation must not downgrade the stored relation.
	require.NoError(t, rec.TouchEdge(ctx, scope, "adv-1", "bc-1", models.LinkKindBusinessCenter, models.RelationPartner, "store_list", nil))
	edge, _ := links.Get(ctx, scope, "adv-1", "bc-1", models.LinkKindBusinessCenter)
	assert.Equal(t, models.RelationOwner, edge.RelationType)
	assert.Equal(t, "store_list", edge.Source, "snapshot still refreshes")

	// A stronger observation upgrades.
	require.NoError(t, rec.TouchEdge(ctx, scope, "adv-2", "bc-1", models.LinkKindBusinessCenter, models.RelationUnknown, "store_list", nil))
	require.NoError(t, rec.TouchEdge(ctx, scope, "adv-2", "bc-1", models.LinkKindBusinessCenter, models.RelationAuthorizer, "advertiser_info", nil))
	edge, _ = links.Get(ctx, scope, "adv-2", "bc-1", models.LinkKindBusinessCenter)
	assert.Equal(t, models.RelationAuthorizer, edge.RelationType)
}

func TestResolveParentHint(t *testing.T) {
	rec, _, _ := newTestReconciler()

	tests := []struct {
		name   string
		hints  map[string]int
		winner string
		tied   bool
	}{
		{"majority wins", map[string]int{"bc-a": 1, "bc-b": 3}, "bc-b", false},
		{"tie picks lexicographically smallest", map[string]int{"bc-b": 2, "bc-a": 2}, "bc-a", true},
		{"three way with late majority", map[string]int{"bc-a": 1, "bc-b": 1, "bc-c": 4}, "bc-c", false},
		{"single candidate", map[string]int{"bc-z": 1}, "bc-z", false},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			winner, tied := rec.ResolveParentHint(tt.hints)
			assert.Equal(t, tt.winner, winner)
			assert.Equal(t, tt.tied, tied)
		})
	}
}

func TestInferOwnerBC(t *testing.T) {
	rec, entities, links := newTestReconciler()
	ctx := context.Background()
	scope := testScope()

	entities.advertisers["adv-1"] = models.Advertiser{NaturalID: "adv-1"}
	entities.advertisers["adv-2"] = models.Advertiser{NaturalID: "adv-2", OwnerBCID: "bc-own"}

	hints := map[string]int{"bc-1": 2, "bc-2": 1}
	require.NoError(t, rec.InferOwnerBC(ctx, scope, "adv-1", hints, "store_list"))

	edge, err := links.Get(ctx, scope, "adv-1", "bc-1", models.LinkKindBusinessCenter)
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Equal(t, models.RelationAuthorizer, edge.RelationType)

	// Declared owners never get inferred links.
	require.NoError(t, rec.InferOwnerBC(ctx, scope, "adv-2", hints, "store_list"))
	edge, err = links.Get(ctx, scope, "adv-2", "bc-1", models.LinkKindBusinessCenter)
	require.NoError(t, err)
	assert.Nil(t, edge)
}

func TestParseRelation(t *testing.T) {
	assert.Equal(t, models.RelationOwner, ParseRelation("OWNER"))
	assert.Equal(t, models.RelationOwner, ParseRelation(" owner "))
	assert.Equal(t, models.RelationAuthorizer, ParseRelation("authorizer"))
	assert.Equal(t, models.RelationPartner, ParseRelation("Partner"))
	assert.Equal(t, models.RelationUnknown, ParseRelation("affiliate"))
	assert.Equal(t, models.RelationUnknown, ParseRelation(""))
}

func TestField_CandidateOrder(t *testing.T) {
	item := map[string]any{"id": "fallback", "bc_id": "bc-1"}
	assert.Equal(t, "bc-1", Field(item, "bc_id"))

	assert.Equal(t, "fallback", Field(map[string]any{"id": "fallback"}, "bc_id"))
	assert.Equal(t, "", Field(map[string]any{}, "bc_id"))

	// Numeric and boolean scalars normalize to strings.
	assert.Equal(t, "42", Field(map[string]any{"id": float64(42)}, "advertiser_id"))
	assert.Equal(t, "1700000000", Field(map[string]any{"update_time": float64(1700000000)}, "rev"))
}
