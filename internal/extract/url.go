package extract

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/supai/backend/pkg/logger"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

// Block-level elements whose text becomes one line each, preserving
// enough line structure for paragraph chunking downstream.
const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, blockquote, td, pre"

// FromURL fetches a page and extracts its readable text.
func FromURL(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", url, err)
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var lines []string
	doc.Find(blockSelector).Each(func(i int, s *goquery.Selection) {
		if line := strings.TrimSpace(s.Text()); line != "" {
			lines = append(lines, line)
		}
	})

	text := strings.Join(lines, "\n")
	if len(strings.TrimSpace(text)) < minTextLength {
		// Pages built without block elements fall back to body text.
		text = strings.TrimSpace(doc.Find("body").Text())
	}

	if len(strings.TrimSpace(text)) < minTextLength {
		return nil, fmt.Errorf("%s: %w", url, ErrNoText)
	}

	logger.Debug("URL extracted",
		zap.String("url", url),
		zap.Int("text_length", len(text)),
	)

	return &Document{Source: url, Text: text}, nil
}
