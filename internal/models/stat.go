package models

// CursorStats reports the revision marker a phase checkpointed at.
type CursorStats struct {
	LastRev string `json:"last_rev"`
}

// DiffStats is the observational before/after identity-set difference for one
// phase. Removed is only meaningful for full passes; no row is ever deleted.
type DiffStats struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// PhaseStats summarizes one resource-type pass.
type PhaseStats struct {
	Fetched  int         `json:"fetched"`
	Upserted int         `json:"upserted"`
	Skipped  int         `json:"skipped"`
	Cursor   CursorStats `json:"cursor"`
	Diff     DiffStats   `json:"diff"`
}
