// Package cli defines the calendar-agent command tree: serve runs the voice
// agent server, send streams an audio file at a running server for manual
// end-to-end testing.
package cli
