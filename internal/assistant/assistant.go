// Package assistant is the thin coordinator between perceived context,
// queued voice commands and the language-model dispatcher. Everything
// it touches beyond those is an external collaborator consumed through
// a narrow interface.
package assistant

import (
	"context"
	"fmt"
	log "log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"aura/internal/sampler"
)

var urlRe = regexp.MustCompile(`https?://[^\s]+`)

// ContextSource supplies the latest screen snapshot.
type ContextSource interface {
	Context() sampler.Snapshot
}

// Dispatcher answers a command given a context bundle.
type Dispatcher interface {
	Query(ctx context.Context, command string, contextInfo map[string]string, perAttempt time.Duration) (string, error)
}

// Automation executes desktop-side actions.
type Automation interface {
	Execute(command string) (string, error)
	SendEmail(to, subject, body string) error
}

// Fetcher pulls remote content used to enrich the model context.
type Fetcher interface {
	PageContent(ctx context.Context, url string) (string, error)
	Search(ctx context.Context, query string) (string, error)
	YouTubeTranscript(ctx context.Context, pageText string) (string, error)
	PDFText(ctx context.Context, pageText string) (string, error)
}

// Speaker voices a response out loud.
type Speaker interface {
	Speak(text string) error
}

type Assistant struct {
	snapshots  ContextSource
	dispatcher Dispatcher
	automation Automation
	fetcher    Fetcher
	speaker    Speaker // nil disables spoken responses
	timeout    time.Duration
}

func New(snapshots ContextSource, dispatcher Dispatcher, automation Automation, fetcher Fetcher, timeout time.Duration) *Assistant {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Assistant{
		snapshots:  snapshots,
		dispatcher: dispatcher,
		automation: automation,
		fetcher:    fetcher,
		timeout:    timeout,
	}
}

// SetSpeaker enables speaking results after each processed command.
func (a *Assistant) SetSpeaker(s Speaker) { a.speaker = s }

// Process classifies one command, enriches the current snapshot with
// whatever the command kind needs, and routes it.
func (a *Assistant) Process(ctx context.Context, command string) (string, error) {
	kind := Classify(command)
	snap := a.snapshots.Context()
	info := snapshotContext(snap)

	log.Info("Processing command", "kind", kind, "command", command)

	var (
		result string
		err    error
	)

	switch kind {
	case KindWebSummary:
		result, err = a.webSummary(ctx, command, info)

	case KindSearch:
		if results, ferr := a.fetcher.Search(ctx, command); ferr != nil {
			log.Warn("Search failed", "err", ferr)
		} else {
			info["search_results"] = results
		}
		result, err = a.dispatcher.Query(ctx, command, info, a.timeout)

	case KindAutomation:
		result, err = a.automation.Execute(command)

	case KindQuery:
		a.enrichForQuery(ctx, command, snap, info)
		result, err = a.dispatcher.Query(ctx, command, info, a.timeout)

	case KindEmailReply:
		result, err = a.emailReply(ctx, info)

	default:
		result = "Command not recognized"
	}

	if err != nil {
		return "", err
	}

	if a.speaker != nil {
		if serr := a.speaker.Speak(result); serr != nil {
			log.Warn("Speaking response failed", "err", serr)
		}
	}

	return result, nil
}

func (a *Assistant) webSummary(ctx context.Context, command string, info map[string]string) (string, error) {
	url := urlRe.FindString(command)
	if url == "" {
		return "No valid URL found in command", nil
	}

	if _, err := a.automation.Execute("open " + url); err != nil {
		log.Warn("Opening URL failed", "url", url, "err", err)
	}

	if content, err := a.fetcher.PageContent(ctx, url); err != nil {
		log.Warn("Fetching page failed", "url", url, "err", err)
	} else {
		info["web_content"] = content
	}

	return a.dispatcher.Query(ctx, "Summarize this content", info, a.timeout)
}

// enrichForQuery pulls extra content for "summarize this" style queries
// based on what the snapshot says is on screen.
func (a *Assistant) enrichForQuery(ctx context.Context, command string, snap sampler.Snapshot, info map[string]string) {
	if !strings.EqualFold(command, "summarize this") {
		return
	}

	switch {
	case snap.IsVideoPlayer:
		if transcript, err := a.fetcher.YouTubeTranscript(ctx, snap.ScreenText); err != nil {
			log.Warn("YouTube transcript unavailable", "err", err)
		} else {
			info["youtube_transcript"] = transcript
		}
	case snap.IsDocumentViewer:
		if text, err := a.fetcher.PDFText(ctx, snap.ScreenText); err != nil {
			log.Warn("PDF text unavailable", "err", err)
		} else {
			info["pdf_content"] = text
		}
	case snap.IsMailClient:
		info["email_content"] = snap.ScreenText
	}
}

func (a *Assistant) emailReply(ctx context.Context, info map[string]string) (string, error) {
	info["email_content"] = info["screen_content"]

	reply, err := a.dispatcher.Query(ctx, "Generate a reply to this email", info, a.timeout)
	if err != nil {
		return "", err
	}

	if err := a.automation.SendEmail("", "Re: Email", reply); err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}

	return reply, nil
}

// snapshotContext flattens a snapshot into the string map fed to the
// dispatcher as the system-message context bundle.
func snapshotContext(snap sampler.Snapshot) map[string]string {
	return map[string]string{
		"active_app":     snap.ActiveApp,
		"screen_content": snap.ScreenText,
		"is_youtube":     strconv.FormatBool(snap.IsVideoPlayer),
		"is_pdf":         strconv.FormatBool(snap.IsDocumentViewer),
		"is_email":       strconv.FormatBool(snap.IsMailClient),
	}
}
