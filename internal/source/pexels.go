package source

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nao1215/boxhunt/internal/model"
)

const (
	// PexelsID is the adapter id of the Pexels source.
	PexelsID = "pexels"

	// PexelsBaseURL is the Pexels API endpoint.
	PexelsBaseURL = "https://api.pexels.com/v1"

	pexelsMaxPerPage = 80
)

// Pexels searches the Pexels photo API.
type Pexels struct {
	api    *apiClient
	apiKey string
}

// NewPexels creates a Pexels adapter. An empty key yields an adapter whose
// searches fail with ErrSourceUnavailable.
func NewPexels(apiKey string, opts ...Option) *Pexels {
	return &Pexels{
		api:    newAPIClient(PexelsID, PexelsBaseURL, opts),
		apiKey: apiKey,
	}
}

// ID implements Adapter.
func (p *Pexels) ID() string {
	return PexelsID
}

type pexelsResponse struct {
	Page     int    `json:"page"`
	NextPage string `json:"next_page"`
	Photos   []struct {
		ID     int64  `json:"id"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Alt    string `json:"alt"`
		Src    struct {
			Original string `json:"original"`
		} `json:"src"`
	} `json:"photos"`
}

// Search implements Adapter. It pages through the results until limit
// candidates were collected or the source has no more.
func (p *Pexels) Search(ctx context.Context, keyword string, limit int) ([]model.ImageCandidate, error) {
	if p.apiKey == "" {
		return nil, unavailable(PexelsID, "no API key configured")
	}

	header := http.Header{}
	header.Set("Authorization", p.apiKey)

	var out []model.ImageCandidate
	seen := make(map[string]bool)
	// per_page stays fixed so that page offsets line up.
	perPage := strconv.Itoa(min(limit, pexelsMaxPerPage))
	for page := 1; len(out) < limit; page++ {
		query := url.Values{}
		query.Set("query", keyword)
		query.Set("per_page", perPage)
		query.Set("page", strconv.Itoa(page))

		var resp pexelsResponse
		if err := p.api.getJSON(ctx, "/search", query, header, &resp); err != nil {
			return nil, err
		}

		now := p.api.now()
		for _, photo := range resp.Photos {
			u := photo.Src.Original
			if u == "" || seen[u] || len(out) >= limit {
				continue
			}
			seen[u] = true
			out = append(out, model.ImageCandidate{
				SourceID:     PexelsID,
				URL:          u,
				Title:        photo.Alt,
				Width:        photo.Width,
				Height:       photo.Height,
				DiscoveredAt: now,
			})
		}

		if len(resp.Photos) == 0 || resp.NextPage == "" {
			break
		}
	}
	return out, nil
}
