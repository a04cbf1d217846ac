// Package fetch pulls remote content used to enrich model context:
// page bodies, search results and media transcripts.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const maxBodyBytes = 512 << 10

var (
	tagRe    = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
	markupRe = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)

	youtubeRe = regexp.MustCompile(`youtube\.com/watch\?v=([\w-]{6,})`)
	pdfRe     = regexp.MustCompile(`https?://[^\s]+\.pdf`)
)

// Client fetches web content over a shared HTTP client, so a configured
// proxy applies to every outbound request.
type Client struct {
	http      *http.Client
	searchURL string
}

func New(httpClient *http.Client, searchURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if searchURL == "" {
		searchURL = "https://duckduckgo.com/html/?q="
	}
	return &Client{http: httpClient, searchURL: searchURL}
}

// PageContent downloads a page and strips it down to readable text.
func (c *Client) PageContent(ctx context.Context, pageURL string) (string, error) {
	body, err := c.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return stripMarkup(body), nil
}

// Search runs the query against the configured search frontend and
// returns the result page as plain text.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	body, err := c.get(ctx, c.searchURL+url.QueryEscape(query))
	if err != nil {
		return "", err
	}
	return stripMarkup(body), nil
}

// YouTubeTranscript finds a video ID in the page text and fetches its
// timedtext track. Videos without published captions return an error.
func (c *Client) YouTubeTranscript(ctx context.Context, pageText string) (string, error) {
	m := youtubeRe.FindStringSubmatch(pageText)
	if m == nil {
		return "", fmt.Errorf("no video id in page text")
	}

	body, err := c.get(ctx, "https://video.google.com/timedtext?lang=en&v="+m[1])
	if err != nil {
		return "", err
	}
	text := stripMarkup(body)
	if text == "" {
		return "", fmt.Errorf("video %s has no captions", m[1])
	}
	return text, nil
}

// PDFText finds a PDF link in the page text and returns whatever
// printable text the raw document exposes. Good enough for text-based
// PDFs; scanned ones come back empty.
func (c *Client) PDFText(ctx context.Context, pageText string) (string, error) {
	link := pdfRe.FindString(pageText)
	if link == "" {
		return "", fmt.Errorf("no pdf link in page text")
	}

	body, err := c.get(ctx, link)
	if err != nil {
		return "", err
	}
	return printableRuns(body), nil
}

func (c *Client) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "aura/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	return string(data), nil
}

func stripMarkup(html string) string {
	text := tagRe.ReplaceAllString(html, " ")
	text = markupRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// printableRuns keeps runs of printable ASCII long enough to be words,
// which is the cheap way to scrape text out of an uncompressed PDF.
func printableRuns(raw string) string {
	var sb strings.Builder
	run := 0
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if b >= 0x20 && b < 0x7f {
			run++
			continue
		}
		if run >= 4 {
			sb.WriteString(raw[i-run : i])
			sb.WriteByte(' ')
		}
		run = 0
	}
	if run >= 4 {
		sb.WriteString(raw[len(raw)-run:])
	}
	return strings.TrimSpace(sb.String())
}
