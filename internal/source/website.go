package source

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/boxhunt/internal/crawler"
	"github.com/nao1215/boxhunt/internal/model"
)

// Website discovers images by crawling one website. Its "keyword" is the
// start URL. Its id and storage domain are the site name.
type Website struct {
	name   string
	spider *crawler.Spider
	now    func() time.Time
}

// NewWebsite creates a website adapter for startURL.
func NewWebsite(spider *crawler.Spider, startURL string) (*Website, error) {
	if _, err := crawler.ValidateStartURL(startURL); err != nil {
		return nil, err
	}
	return &Website{
		name:   crawler.SiteName(startURL),
		spider: spider,
		now:    time.Now,
	}, nil
}

// ID implements Adapter.
func (w *Website) ID() string {
	return w.name
}

// Domain implements Partitioned.
func (w *Website) Domain() string {
	return w.name
}

// Search implements Adapter. A site whose robots.txt forbids crawling
// yields no candidates.
func (w *Website) Search(ctx context.Context, startURL string, limit int) ([]model.ImageCandidate, error) {
	result, err := w.spider.Crawl(ctx, startURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, w.name, err)
	}
	if result.PagesVisited == 0 && !result.Blocked {
		return nil, unavailable(w.name, "no page of %s could be loaded", startURL)
	}

	now := w.now()
	out := make([]model.ImageCandidate, 0, max(0, min(len(result.Images), limit)))
	for _, img := range result.Images {
		if len(out) >= limit {
			break
		}
		out = append(out, model.ImageCandidate{
			SourceID:     w.name,
			URL:          img.URL,
			Title:        img.Title,
			Width:        img.Width,
			Height:       img.Height,
			DiscoveredAt: now,
		})
	}
	return out, nil
}
