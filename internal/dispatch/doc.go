// Package dispatch runs the per-utterance processing pipeline behind a
// bounded worker pool: assemble the buffered audio, transcribe it, hand the
// transcript to the calendar agent, and send the reply back over UDP.
// Queue overflow and pipeline failures both guarantee session removal.
package dispatch
