package provider

import "context"

// PageState is the resumable position inside a paginated listing. Cursor holds
// the opaque token for cursor-style endpoints; Page holds the 1-based page
// number for page/page_size endpoints. A stream seeded from a stored state
// resumes where the previous pass stopped instead of starting over.
type PageState struct {
	Cursor string
	Page   int
}

// FetchFunc fetches one page at the given state and returns the items, the
// state of the following page, and whether the listing is exhausted.
type FetchFunc func(ctx context.Context, state PageState) (items []map[string]any, next PageState, done bool, err error)

// PageStream drives a paginated listing as a lazy sequence of raw item maps,
// in the style of sql.Rows:
//
//	for stream.Next(ctx) {
//		items := stream.Items()
//		...
//	}
//	if err := stream.Err(); err != nil { ... }
type PageStream struct {
	fetch FetchFunc
	state PageState
	items []map[string]any
	done  bool
	err   error
}

// NewPageStream builds a stream starting at the given state. Exported so
// tests and fakes can construct streams without a live client.
func NewPageStream(start PageState, fetch FetchFunc) *PageStream {
	return &PageStream{fetch: fetch, state: start}
}

// Next fetches the following page. It returns false once the listing is
// exhausted or a fetch fails; check Err afterwards.
func (s *PageStream) Next(ctx context.Context) bool {
	if s.done || s.err != nil {
		return false
	}
	items, next, done, err := s.fetch(ctx, s.state)
	if err != nil {
		s.err = err
		return false
	}
	s.items = items
	s.state = next
	s.done = done
	if done && len(items) == 0 {
		return false
	}
	return true
}

// Items returns the current page's items.
func (s *PageStream) Items() []map[string]any { return s.items }

// Err returns the first fetch error, if any.
func (s *PageStream) Err() error { return s.err }

// State returns the resumable position after the last fetched page, suitable
// for checkpointing into a sync cursor.
func (s *PageStream) State() PageState { return s.state }
