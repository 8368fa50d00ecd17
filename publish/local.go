package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// LocalRefPrefix marks references produced without a pinning service.
// The content behind them lives only in this process; marketplaces
// treat the prefix as "verify out of band".
const LocalRefPrefix = "local-"

// LocalPublisher derives the reference from a sha256 of the content and
// keeps the content in memory. It is the fallback when no pinning
// endpoint is configured or reachable, so the agent can keep delivering.
type LocalPublisher struct {
	mu      sync.Mutex
	content map[string][]byte
}

// NewLocalPublisher creates an in-memory publisher.
func NewLocalPublisher() *LocalPublisher {
	return &LocalPublisher{content: make(map[string][]byte)}
}

// Publish returns "local-<sha256 hex>" for the content. Identical
// content always gets the identical reference.
func (p *LocalPublisher) Publish(ctx context.Context, name string, content []byte) (string, error) {
	sum := sha256.Sum256(content)
	ref := LocalRefPrefix + hex.EncodeToString(sum[:])

	p.mu.Lock()
	p.content[ref] = append([]byte(nil), content...)
	p.mu.Unlock()
	return ref, nil
}

// Fetch returns content published in this process.
func (p *LocalPublisher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.content[ref]
	if !ok {
		return nil, fmt.Errorf("unknown local reference %s", ref)
	}
	return append([]byte(nil), data...), nil
}
