// Package assess talks to the external speech-assessment provider and turns
// its loosely shaped result documents into typed scores.
package assess

import "context"

// Mode selects the provider's assessment flavour.
type Mode string

const (
	// ModeScripted compares the recording against an expected text.
	ModeScripted Mode = "scripted"
	// ModeUnscripted assesses free speech against a question context.
	ModeUnscripted Mode = "unscripted"
)

// Request describes one recording to assess.
type Request struct {
	AudioPath string
	Mode      Mode
	Accent    string

	// ExpectedText is required for ModeScripted.
	ExpectedText string

	// Question and ContextDescription describe what an unscripted answer
	// should be about.
	Question           string
	ContextDescription string
}

// Document is a provider result as decoded from JSON.
type Document = map[string]any

// Provider assesses recordings. Implementations must be safe for concurrent use.
type Provider interface {
	Assess(ctx context.Context, req Request) (Document, error)
}
