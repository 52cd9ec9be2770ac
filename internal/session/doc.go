// Package session owns the recording session lifecycle. It wires the capture
// source through resampling into the segment buffer, runs the single-flight
// delivery pump that ships fixed-size chunks to the transcription service in
// capture order, and reconciles responses into the session transcript.
package session
