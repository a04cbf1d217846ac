// Package web exposes the daemon over HTTP: health, command
// processing, voice upload and a websocket chat channel.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"aura/internal/sampler"
	"aura/pkg/audioconv"
	"aura/pkg/stt"
)

const (
	maxUploadBytes = 16 << 20
	maxVoiceClip   = 30 * audioconv.TargetRate
)

// Processor answers one command.
type Processor interface {
	Process(ctx context.Context, command string) (string, error)
}

// ContextSource supplies the latest screen snapshot.
type ContextSource interface {
	Context() sampler.Snapshot
}

// Commands pops queued wake-phrase commands.
type Commands interface {
	Next() (string, bool)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server is the HTTP front of the daemon.
type Server struct {
	http        *http.Server
	processor   Processor
	snapshots   ContextSource
	commands    Commands
	transcriber stt.Transcriber
}

func NewServer(addr string, processor Processor, snapshots ContextSource, commands Commands, transcriber stt.Transcriber) *Server {
	s := &Server{
		processor:   processor,
		snapshots:   snapshots,
		commands:    commands,
		transcriber: transcriber,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("POST /command", s.handleCommand)
	mux.HandleFunc("POST /voice", s.handleVoice)
	mux.HandleFunc("GET /voice_commands", s.handleVoiceCommands)
	mux.HandleFunc("GET /context", s.handleContext)
	mux.HandleFunc("GET /chat", s.handleChat)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
	}
	return s
}

// ListenAndServe blocks until the server stops. http.ErrServerClosed
// is swallowed, a clean shutdown is not an error.
func (s *Server) ListenAndServe() error {
	log.Info("HTTP API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	result, err := s.processor.Process(r.Context(), req.Command)
	if err != nil {
		log.Error("Command processing failed", "command", req.Command, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": result})
}

// handleVoice accepts a multipart "audio" file, transcribes it and
// processes the transcript like a typed command.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'audio' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	pcm, err := audioconv.DecodeToPCM16k(data, header.Filename, audioconv.Options{MaxSamples: maxVoiceClip})
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	transcript, err := s.transcriber.Transcribe(r.Context(), pcm)
	switch {
	case errors.Is(err, stt.ErrNoSpeech):
		writeError(w, http.StatusUnprocessableEntity, "no speech detected")
		return
	case err != nil:
		log.Error("Transcription failed", "err", err)
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}

	result, err := s.processor.Process(r.Context(), transcript)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"transcript": transcript,
		"result":     result,
	})
}

// handleVoiceCommands pops the oldest wake-phrase command and runs it
// through the assistant, exactly like a typed command. One command per
// poll; an empty queue is not an error.
func (s *Server) handleVoiceCommands(w http.ResponseWriter, r *http.Request) {
	cmd, ok := s.commands.Next()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"result": "No voice command available"})
		return
	}

	result, err := s.processor.Process(r.Context(), cmd)
	if err != nil {
		log.Error("Voice command failed", "command", cmd, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"command": cmd,
		"result":  result,
	})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshots.Context())
}

// handleChat upgrades to a websocket and answers each text frame with
// the processed result. One in-flight command per connection.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("Chat connection closed", "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		result, err := s.processor.Process(r.Context(), string(msg))
		if err != nil {
			result = fmt.Sprintf("error: %v", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(result)); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
