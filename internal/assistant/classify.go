package assistant

import "strings"

// Kind is the coarse routing category of a command.
type Kind string

const (
	KindAutomation Kind = "automation"
	KindWebSummary Kind = "web_summary"
	KindQuery      Kind = "query"
	KindSearch     Kind = "search"
	KindEmailReply Kind = "email_reply"
	KindUnknown    Kind = "unknown"
)

var (
	automationWords = []string{"open", "change", "reject", "order", "shut down"}
	queryWords      = []string{"read", "summarize", "what"}
)

// Classify routes a command by keyword rules. Automation verbs win,
// except "summarize <url>" which is a web summary.
func Classify(command string) Kind {
	if command == "" {
		return KindUnknown
	}
	lower := strings.ToLower(command)

	for _, w := range automationWords {
		if strings.Contains(lower, w) {
			if strings.Contains(lower, "summarize") && strings.Contains(lower, "http") {
				return KindWebSummary
			}
			return KindAutomation
		}
	}

	for _, w := range queryWords {
		if strings.Contains(lower, w) {
			return KindQuery
		}
	}

	if strings.Contains(lower, "search for") {
		return KindSearch
	}
	if strings.Contains(lower, "reply to this") {
		return KindEmailReply
	}

	return KindUnknown
}
