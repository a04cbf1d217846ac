// Package automation executes desktop-side actions. Each platform gets
// its own implementation selected at startup; only the Linux one is
// built here.
package automation

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// Linux performs desktop actions through standard freedesktop tooling.
type Linux struct{}

func NewLinux() *Linux { return &Linux{} }

// Execute handles "open <target>" commands by delegating to xdg-open.
// Anything else is reported back as unsupported rather than guessed at.
func (l *Linux) Execute(command string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(command))

	if strings.HasPrefix(lower, "open ") {
		target := strings.TrimSpace(command[len("open "):])
		if target == "" {
			return "", fmt.Errorf("nothing to open")
		}
		if err := exec.Command("xdg-open", target).Start(); err != nil {
			return "", fmt.Errorf("xdg-open %s: %w", target, err)
		}
		return "Opened " + target, nil
	}

	return "", fmt.Errorf("unsupported automation command: %q", command)
}

// SendEmail opens the default mail client prefilled via a mailto URL.
func (l *Linux) SendEmail(to, subject, body string) error {
	q := url.Values{}
	if subject != "" {
		q.Set("subject", subject)
	}
	if body != "" {
		q.Set("body", body)
	}

	mailto := "mailto:" + to + "?" + q.Encode()
	if err := exec.Command("xdg-open", mailto).Start(); err != nil {
		return fmt.Errorf("open mail client: %w", err)
	}
	return nil
}
