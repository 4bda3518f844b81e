package stt

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
)

type fakeProvider struct {
	name      string
	available bool
	result    Result
	err       error
	calls     int
}

func (p *fakeProvider) Name() string    { return p.name }
func (p *fakeProvider) Available() bool { return p.available }

func (p *fakeProvider) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	p.calls++
	return p.result, p.err
}

func TestChainFallsBackOnFailure(t *testing.T) {
	primary := &fakeProvider{name: "scribe", available: true, err: errors.New("http 500")}
	secondary := &fakeProvider{name: "whisper", available: true, result: Result{Text: "hello from whisper"}}

	chain, err := NewChain(log.New(io.Discard), primary, secondary)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	result, err := chain.Transcribe(context.Background(), "audio.wav")
	if err != nil {
		t.Fatalf("expected success via fallback, got %v", err)
	}
	if result.Text != "hello from whisper" || result.Provider != "whisper" {
		t.Errorf("unexpected result: %+v", result)
	}
	if primary.calls != 1 {
		t.Errorf("failed provider retried %d times within chain, want 1 attempt", primary.calls)
	}

	events := chain.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 fallback event, got %d", len(events))
	}
	if events[0].Reason != "scribe exhausted retries" {
		t.Errorf("event reason = %q", events[0].Reason)
	}
	if events[0].From != "scribe" || events[0].To != "whisper" {
		t.Errorf("event route = %s -> %s", events[0].From, events[0].To)
	}
}

func TestChainTreatsEmptyResultAsFailure(t *testing.T) {
	empty := &fakeProvider{name: "scribe", available: true, result: Result{}}
	backup := &fakeProvider{name: "whisper", available: true, result: Result{Text: "something"}}

	chain, _ := NewChain(log.New(io.Discard), empty, backup)
	result, err := chain.Transcribe(context.Background(), "audio.wav")
	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	if result.Provider != "whisper" {
		t.Errorf("provider = %q, want whisper", result.Provider)
	}
}

func TestChainSkipsUnavailableProviders(t *testing.T) {
	offline := &fakeProvider{name: "scribe", available: false}
	online := &fakeProvider{name: "whisper", available: true, result: Result{Text: "ok then"}}

	chain, err := NewChain(log.New(io.Discard), offline, online)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	if names := chain.Providers(); len(names) != 1 || names[0] != "whisper" {
		t.Errorf("providers = %v", names)
	}

	if _, err := chain.Transcribe(context.Background(), "audio.wav"); err != nil {
		t.Errorf("transcribe: %v", err)
	}
	if offline.calls != 0 {
		t.Error("unavailable provider was invoked")
	}
}

func TestChainExhaustion(t *testing.T) {
	a := &fakeProvider{name: "scribe", available: true, err: errors.New("down")}
	b := &fakeProvider{name: "whisper", available: true, err: errors.New("also down")}

	chain, _ := NewChain(log.New(io.Discard), a, b)
	_, err := chain.Transcribe(context.Background(), "audio.wav")
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("expected ErrAllProvidersExhausted, got %v", err)
	}
}

func TestChainRequiresOneAvailableProvider(t *testing.T) {
	_, err := NewChain(log.New(io.Discard), &fakeProvider{name: "scribe"})
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("expected ErrAllProvidersExhausted, got %v", err)
	}
}
