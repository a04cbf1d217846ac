package sampler

import "strings"

// Substring rules for the derived context flags. All matching is
// case-insensitive against the extracted text and the active app name.
var (
	browserNames = []string{"chrome", "chromium", "firefox", "edge", "brave"}
	videoSites   = []string{"youtube.com/watch"}
	pdfViewers   = []string{"adobe acrobat", "evince", "okular", "zathura"}
	mailClients  = []string{"gmail", "outlook", "thunderbird"}
)

func containsAny(s string, subs []string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isVideoPlayer(text, app string) bool {
	return containsAny(app, browserNames) && containsAny(text, videoSites)
}

func isDocumentViewer(text, app string) bool {
	if containsAny(app, pdfViewers) {
		return true
	}
	return containsAny(app, browserNames) && strings.Contains(strings.ToLower(text), ".pdf")
}

func isMailClient(_, app string) bool {
	return containsAny(app, mailClients)
}
