// Package audio handles utterance assembly and format normalization.
// It concatenates buffered datagram payloads, sniffs the container
// (WAV, MP3, or headerless PCM), and produces a WAV payload suitable
// for the transcription API.
package audio
