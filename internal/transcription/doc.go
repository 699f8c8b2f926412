// Package transcription implements the HTTP client for the external
// speech-to-text API. Requests carry the assembled utterance audio as a
// multipart file upload; the client bounds concurrency with a semaphore and
// retries transient failures with exponential backoff.
package transcription
