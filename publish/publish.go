package publish

import "context"

// Publisher stores deliverable content somewhere content-addressable and
// returns the reference submitted on-chain.
type Publisher interface {
	// Publish stores content under the given name and returns its reference.
	Publish(ctx context.Context, name string, content []byte) (string, error)
}

// Fetcher retrieves previously published content by reference. Not every
// publisher can fetch; local references are process-lifetime only.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}
