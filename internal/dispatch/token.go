package dispatch

import (
	"crypto/rand"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewThreadID generates the 8-character alphanumeric token that scopes one
// utterance's conversation on the agent side. Each flush gets a fresh token,
// so the agent never mixes state across utterances.
func NewThreadID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic(err)
	}

	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}

	return string(buf)
}
