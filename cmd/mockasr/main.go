// Command mockasr is a stand-in transcription service for local development.
// It accepts the session protocol, counts received audio and returns fake
// incremental transcripts.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	sampleRate     = 16000
	bytesPerSample = 4
	sessionTTL     = 10 * time.Minute
)

type mockSession struct {
	id         string
	samples    int
	chunks     int
	lastActive time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*mockSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*mockSession)}
}

func (s *sessionStore) create() *mockSession {
	sess := &mockSession{
		id:         strings.ReplaceAll(uuid.New().String(), "-", ""),
		lastActive: time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *sessionStore) get(id string) (*mockSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if ok {
		sess.lastActive = time.Now()
	}
	return sess, ok
}

func (s *sessionStore) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// reap drops sessions idle longer than the TTL.
func (s *sessionStore) reap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-sessionTTL)
	for id, sess := range s.sessions {
		if sess.lastActive.Before(cutoff) {
			delete(s.sessions, id)
			log.Printf("Reaped idle session %s", id)
		}
	}
}

func (s *sessionStore) reapLoop() {
	for range time.Tick(time.Minute) {
		s.reap()
	}
}

type chunkResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func fakeText(samples, chunks int) string {
	seconds := float64(samples) / float64(sampleRate)
	return fmt.Sprintf("[mock transcript: %d chunks, %.1f seconds of audio]", chunks, seconds)
}

func startHandler(store *sessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		sess := store.create()
		log.Printf("Session started: %s", sess.id)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"session_id": sess.id})
	}
}

func chunkHandler(store *sessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		sess, ok := store.get(r.URL.Query().Get("session_id"))
		if !ok {
			http.Error(w, "Unknown session", http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Error reading body", http.StatusBadRequest)
			return
		}
		if len(body)%bytesPerSample != 0 {
			http.Error(w, "Audio payload is not a whole number of float32 samples", http.StatusBadRequest)
			return
		}

		sess.samples += len(body) / bytesPerSample
		sess.chunks++

		log.Printf("Chunk received: session=%s chunk=%d bytes=%d", sess.id, sess.chunks, len(body))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chunkResponse{
			Text:     fakeText(sess.samples, sess.chunks),
			Language: "en",
		})
	}
}

func finishHandler(store *sessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		sess, ok := store.get(r.URL.Query().Get("session_id"))
		if !ok {
			http.Error(w, "Unknown session", http.StatusNotFound)
			return
		}
		store.remove(sess.id)

		log.Printf("Session finished: %s (%d chunks, %d samples)", sess.id, sess.chunks, sess.samples)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chunkResponse{
			Text:     fakeText(sess.samples, sess.chunks),
			Language: "en",
		})
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func main() {
	addr := flag.String("addr", ":8000", "Listen address")
	flag.Parse()

	store := newSessionStore()
	go store.reapLoop()

	http.HandleFunc("/api/start", startHandler(store))
	http.HandleFunc("/api/chunk", chunkHandler(store))
	http.HandleFunc("/api/finish", finishHandler(store))
	http.HandleFunc("/health", healthHandler)

	log.Printf("Mock transcription server starting on %s", *addr)
	log.Printf("Point the client at: http://localhost%s", *addr)

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
