// Package session implements per-client utterance buffering and lifecycle
// management. It provides the address-keyed registry, the generation-aware
// session state machine, and the inactivity sweeper that seals a buffer
// exactly once per generation and hands it off for processing.
package session
