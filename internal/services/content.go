package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/wisenet/wisenet-backend/internal/platform/envutil"
	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// ContentExtractor turns an uploaded file or a URL into plain text.
// Rich format loaders (PDF, DOCX) plug in behind this interface; the
// built-in implementation handles plain text and basic HTML.
type ContentExtractor interface {
	ExtractFile(ctx context.Context, path string) (string, error)
	ExtractURL(ctx context.Context, url string) (string, error)
}

type plainExtractor struct {
	httpClient *http.Client
	log        *logger.Logger
}

func NewPlainExtractor(baseLog *logger.Logger) ContentExtractor {
	timeout := time.Duration(envutil.Int("EXTRACTOR_TIMEOUT_SECONDS", 30)) * time.Second
	return &plainExtractor{
		httpClient: &http.Client{Timeout: timeout},
		log:        baseLog.With("service", "extractor"),
	}
}

func (e *plainExtractor) ExtractFile(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("extract file %s: %w", path, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (e *plainExtractor) ExtractURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("extract url %s: %w", url, err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("extract url %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("extract url %s: status %d", url, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("extract url %s: %w", url, err)
	}
	return StripHTML(string(raw)), nil
}

// StripHTML drops tags, scripts and styles, collapsing the remaining
// text to whitespace-separated words.
func StripHTML(html string) string {
	var out strings.Builder
	inTag := false
	skipDepth := 0
	lower := strings.ToLower(html)
	i := 0
	for i < len(html) {
		if html[i] == '<' {
			rest := lower[i:]
			if strings.HasPrefix(rest, "<script") || strings.HasPrefix(rest, "<style") {
				skipDepth++
			} else if skipDepth > 0 && (strings.HasPrefix(rest, "</script") || strings.HasPrefix(rest, "</style")) {
				skipDepth--
			}
			inTag = true
			i++
			continue
		}
		if html[i] == '>' {
			inTag = false
			out.WriteByte(' ')
			i++
			continue
		}
		if !inTag && skipDepth == 0 {
			out.WriteByte(html[i])
		}
		i++
	}
	return strings.Join(strings.Fields(out.String()), " ")
}

// SplitPages slices text into consecutive pages of at most maxChars,
// preferring paragraph boundaries. Order is preserved.
func SplitPages(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}
	paragraphs := strings.Split(text, "\n\n")
	var pages []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			pages = append(pages, s)
		}
		current.Reset()
	}
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > maxChars {
			flush()
		}
		for len(p) > maxChars {
			pages = append(pages, p[:maxChars])
			p = p[maxChars:]
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()
	return pages
}
