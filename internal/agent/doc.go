// Package agent implements the HTTP client for the conversational calendar
// agent. Each completed utterance becomes one JSON request carrying the
// transcript, a per-utterance thread ID, and the configured toolset.
package agent
