package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// FallbackEvent records one downgrade from a failed provider to the next
// in the chain.
type FallbackEvent struct {
	From   string
	To     string
	Reason string
}

// Chain tries providers in configured preference order. Availability is
// checked once at construction; per request each available provider gets
// exactly one attempt (the provider's own client handles transient-error
// retries internally), and the same input is handed to the next provider
// on failure.
type Chain struct {
	providers []Provider
	logger    *log.Logger

	mu     sync.Mutex
	events []FallbackEvent
}

// NewChain filters the given providers down to the available ones,
// preserving order. At least one must be available.
func NewChain(logger *log.Logger, providers ...Provider) (*Chain, error) {
	chain := &Chain{logger: logger}
	for _, p := range providers {
		if p.Available() {
			chain.providers = append(chain.providers, p)
		} else {
			logger.Info("provider unavailable, skipping", "provider", p.Name())
		}
	}
	if len(chain.providers) == 0 {
		return nil, fmt.Errorf("%w: no provider available", ErrAllProvidersExhausted)
	}
	return chain, nil
}

// Providers returns the names of the available providers in order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Events returns the fallback events recorded so far.
func (c *Chain) Events() []FallbackEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FallbackEvent(nil), c.events...)
}

// Transcribe runs the chain against one audio file. A provider fails the
// request on error or on an empty result; the chain then downgrades to
// the next provider with the same input. When every provider has failed
// the chain returns ErrAllProvidersExhausted with the per-provider
// reasons, never a panic.
func (c *Chain) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	var reasons []string

	for i, p := range c.providers {
		result, err := p.Transcribe(ctx, audioPath)

		var reason string
		switch {
		case err != nil:
			reason = fmt.Sprintf("%s exhausted retries", p.Name())
			c.logger.Warn("provider failed", "provider", p.Name(), "error", err)
		case emptyResult(result):
			reason = fmt.Sprintf("%s returned empty result", p.Name())
			c.logger.Warn("provider returned empty result", "provider", p.Name())
		default:
			result.Provider = p.Name()
			return result, nil
		}

		reasons = append(reasons, reason)
		if i+1 < len(c.providers) {
			c.record(FallbackEvent{
				From:   p.Name(),
				To:     c.providers[i+1].Name(),
				Reason: reason,
			})
		}
	}

	return Result{}, fmt.Errorf("%w: %s", ErrAllProvidersExhausted, strings.Join(reasons, "; "))
}

func (c *Chain) record(ev FallbackEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.logger.Info("falling back", "from", ev.From, "to", ev.To, "reason", ev.Reason)
}

func emptyResult(r Result) bool {
	return strings.TrimSpace(r.Text) == "" && len(r.Segments) == 0 && len(r.Words) == 0
}
