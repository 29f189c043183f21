package reconcile

import (
	"strconv"
)

// Provider payloads name the same logical attribute differently across
// endpoints. Each logical attribute maps to an ordered candidate list; the
// first present key wins. Kept in one table instead of scattered inline
// checks.
var fieldCandidates = map[string][]string{
	"bc_id":            {"bc_id", "id"},
	"advertiser_id":    {"advertiser_id", "id"},
	"store_id":         {"store_id", "id"},
	"product_id":       {"product_id", "item_id", "id"},
	"name":             {"bc_name", "advertiser_name", "store_name", "name"},
	"title":            {"title", "product_name", "name"},
	"status":           {"status", "store_status", "product_status"},
	"currency":         {"currency"},
	"timezone":         {"display_timezone", "timezone"},
	"industry":         {"industry"},
	"owner_bc_id":      {"owner_bc_id"},
	"authorized_bc_id": {"store_authorized_bc_id", "authorized_bc_id"},
	"region":           {"store_region", "region", "country_code"},
	"store_type":       {"store_type", "type"},
	"eligibility":      {"eligibility", "promotion_eligibility"},
	"relation":         {"relation_type", "store_relation", "relation"},
	"rev":              {"sync_rev", "rev", "update_time", "updated_at"},
}

// Field resolves a logical attribute from a raw provider item, trying each
// candidate key in order. Missing attributes resolve to "".
func Field(item map[string]any, logical string) string {
	for _, key := range fieldCandidates[logical] {
		if v, ok := item[key]; ok {
			if s := asString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// Revision extracts the provider-opaque sync revision from an item, if any.
func Revision(item map[string]any) string {
	return Field(item, "rev")
}

// asString renders scalar JSON values uniformly; provider ids arrive as both
// strings and numbers.
func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
