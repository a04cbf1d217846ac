package llm

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sort"
	"strings"
	"time"
)

// ErrNoBackends is returned when dispatch is attempted with an empty
// backend list; distinct from every backend failing.
var ErrNoBackends = errors.New("no language model backends configured")

// Attempt records one failed backend try.
type Attempt struct {
	Backend string
	Err     error
}

// AllFailedError is returned when every configured backend was tried
// and none succeeded.
type AllFailedError struct {
	Attempts []Attempt
}

func (e *AllFailedError) Error() string {
	names := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		names[i] = a.Backend
	}
	return fmt.Sprintf("all language model backends failed (%s)", strings.Join(names, ", "))
}

// Dispatcher tries backends strictly in configured order with a bounded
// time budget per attempt. It holds no mutable state after construction.
type Dispatcher struct {
	backends []Backend
}

func NewDispatcher(backends ...Backend) *Dispatcher {
	return &Dispatcher{backends: backends}
}

// Backends reports the configured provider names in rank order.
func (d *Dispatcher) Backends() []string {
	names := make([]string, len(d.backends))
	for i, b := range d.backends {
		names[i] = b.Name()
	}
	return names
}

// Query serializes the context bundle into a system message, the
// command into a user message, and consults backends one at a time.
// The first success wins; a timeout or error moves on to the next
// backend. Attempts never run concurrently.
func (d *Dispatcher) Query(ctx context.Context, command string, contextInfo map[string]string, perAttempt time.Duration) (string, error) {
	if len(d.backends) == 0 {
		return "", ErrNoBackends
	}

	messages := []Message{
		{Role: RoleSystem, Content: "Current context:\n" + formatContext(contextInfo)},
		{Role: RoleUser, Content: command},
	}

	var attempts []Attempt
	for _, backend := range d.backends {
		attemptCtx, cancel := context.WithTimeout(ctx, perAttempt)
		text, err := backend.Query(attemptCtx, messages)
		cancel()

		if err == nil {
			return text, nil
		}

		if errors.Is(err, context.DeadlineExceeded) {
			log.Error("Backend timed out", "backend", backend.Name(), "timeout", perAttempt)
		} else {
			log.Error("Backend failed", "backend", backend.Name(), "err", err)
		}
		attempts = append(attempts, Attempt{Backend: backend.Name(), Err: err})

		// The caller giving up trumps further fallback.
		if ctx.Err() != nil {
			break
		}
	}

	return "", &AllFailedError{Attempts: attempts}
}

// formatContext renders the context map as sorted "key: value" lines so
// the prompt is deterministic for a given snapshot.
func formatContext(info map[string]string) string {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + ": " + info[k]
	}
	return strings.Join(lines, "\n")
}
