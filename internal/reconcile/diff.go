package reconcile

import "github.com/commercegrid/adsync-api/internal/models"

// DiffIDs reports the identity-set difference between the rows present before
// and after a pass. Purely observational: "removed" means absent from the
// latest snapshot's identity set, not deleted, and is only reported when the
// caller ran a full pass.
func DiffIDs(before, after []string, full bool) models.DiffStats {
	beforeSet := make(map[string]bool, len(before))
	for _, id := range before {
		beforeSet[id] = true
	}

	var stats models.DiffStats
	afterSet := make(map[string]bool, len(after))
	for _, id := range after {
		afterSet[id] = true
		if beforeSet[id] {
			stats.Unchanged++
		} else {
			stats.Added++
		}
	}
	if full {
		for _, id := range before {
			if !afterSet[id] {
				stats.Removed++
			}
		}
	}
	return stats
}
