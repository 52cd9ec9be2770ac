// Package transcription implements the HTTP client for the streaming ASR API.
// It covers the three session operations (start, push chunk, finish), sends
// chunk bodies as raw float32 PCM, and surfaces non-success responses as
// typed errors without retrying.
package transcription
