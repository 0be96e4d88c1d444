package stt

import "context"

// Transcriber turns one WAV payload into recognized text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}
