package publish

import (
	"context"

	"github.com/flowwork/agent/logging"
)

// FallbackPublisher tries a primary publisher and falls back to a local
// content-hash reference when it fails. A delivery with a local
// reference beats no delivery at all.
type FallbackPublisher struct {
	primary Publisher
	local   *LocalPublisher
	log     *logging.Logger
}

// NewFallbackPublisher wraps primary with a local fallback. primary may
// be nil, in which case every publish is local.
func NewFallbackPublisher(primary Publisher, log *logging.Logger) *FallbackPublisher {
	if log == nil {
		log = logging.New()
	}
	return &FallbackPublisher{
		primary: primary,
		local:   NewLocalPublisher(),
		log:     log.WithComponent("publish"),
	}
}

// Publish stores the content, preferring the primary publisher.
func (p *FallbackPublisher) Publish(ctx context.Context, name string, content []byte) (string, error) {
	if p.primary != nil {
		ref, err := p.primary.Publish(ctx, name, content)
		if err == nil {
			return ref, nil
		}
		p.log.Warn("primary publish failed, using local reference", map[string]interface{}{
			"name":  name,
			"error": err.Error(),
		})
	}
	return p.local.Publish(ctx, name, content)
}

// Fetch retrieves content, trying the local store first and then the
// primary when it supports fetching.
func (p *FallbackPublisher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if data, err := p.local.Fetch(ctx, ref); err == nil {
		return data, nil
	}
	if f, ok := p.primary.(Fetcher); ok && p.primary != nil {
		return f.Fetch(ctx, ref)
	}
	return p.local.Fetch(ctx, ref)
}
