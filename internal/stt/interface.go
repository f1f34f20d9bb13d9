package stt

import (
	"context"

	"scribeflow/internal/media"
)

// Engine identifiers. The set is static; anything else is rejected at submission.
const (
	EngineLocal  = "local"
	EngineGoogle = "google"
	EngineOpenAI = "openai"
	EngineFPT    = "fpt"

	// EngineMock marks synthetic results. It cannot be requested by callers.
	EngineMock = "mock"
)

// KnownEngines lists every engine a caller may pin, in default priority order.
var KnownEngines = []string{EngineLocal, EngineGoogle, EngineOpenAI, EngineFPT}

// IsKnownEngine reports whether name is one of KnownEngines.
func IsKnownEngine(name string) bool {
	for _, e := range KnownEngines {
		if e == name {
			return true
		}
	}
	return false
}

// Request is the input handed to a provider for one attempt.
type Request struct {
	Path     string
	Audio    media.AudioInfo
	Language string // empty or "auto" lets the provider detect it
}

//go:generate mockgen -destination=sttmock/provider.go -package=sttmock scribeflow/internal/stt Provider

// Provider defines the interface for speech-to-text providers
type Provider interface {
	// Transcribe returns normalized segments or an *Error.
	Transcribe(ctx context.Context, req Request) (*Transcript, error)

	// Name returns the engine identifier (e.g., "local", "google")
	Name() string
}
