package source

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nao1215/boxhunt/internal/model"
)

const (
	// UnsplashID is the adapter id of the Unsplash source.
	UnsplashID = "unsplash"

	// UnsplashBaseURL is the Unsplash API endpoint.
	UnsplashBaseURL = "https://api.unsplash.com"

	unsplashMaxPerPage = 30

	// unsplashRegularWidth is the width of the "regular" rendition.
	unsplashRegularWidth = 1080
)

// Unsplash searches the Unsplash photo API.
type Unsplash struct {
	api       *apiClient
	accessKey string
}

// NewUnsplash creates an Unsplash adapter. An empty key yields an adapter
// whose searches fail with ErrSourceUnavailable.
func NewUnsplash(accessKey string, opts ...Option) *Unsplash {
	return &Unsplash{
		api:       newAPIClient(UnsplashID, UnsplashBaseURL, opts),
		accessKey: accessKey,
	}
}

// ID implements Adapter.
func (u *Unsplash) ID() string {
	return UnsplashID
}

type unsplashResponse struct {
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
	Results    []struct {
		ID             string `json:"id"`
		Width          int    `json:"width"`
		Height         int    `json:"height"`
		Description    string `json:"description"`
		AltDescription string `json:"alt_description"`
		URLs           struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

// Search implements Adapter.
func (u *Unsplash) Search(ctx context.Context, keyword string, limit int) ([]model.ImageCandidate, error) {
	if u.accessKey == "" {
		return nil, unavailable(UnsplashID, "no access key configured")
	}

	header := http.Header{}
	header.Set("Authorization", "Client-ID "+u.accessKey)
	header.Set("Accept-Version", "v1")

	var out []model.ImageCandidate
	seen := make(map[string]bool)
	// per_page stays fixed so that page offsets line up.
	perPage := strconv.Itoa(min(limit, unsplashMaxPerPage))
	for page := 1; len(out) < limit; page++ {
		query := url.Values{}
		query.Set("query", keyword)
		query.Set("per_page", perPage)
		query.Set("page", strconv.Itoa(page))

		var resp unsplashResponse
		if err := u.api.getJSON(ctx, "/search/photos", query, header, &resp); err != nil {
			return nil, err
		}

		now := u.api.now()
		for _, photo := range resp.Results {
			link := photo.URLs.Regular
			if link == "" || seen[link] || len(out) >= limit {
				continue
			}
			seen[link] = true

			title := photo.Description
			if title == "" {
				title = photo.AltDescription
			}
			width, height := regularSize(photo.Width, photo.Height)
			out = append(out, model.ImageCandidate{
				SourceID:     UnsplashID,
				URL:          link,
				Title:        title,
				Width:        width,
				Height:       height,
				DiscoveredAt: now,
			})
		}

		if len(resp.Results) == 0 || page >= resp.TotalPages {
			break
		}
	}
	return out, nil
}

// regularSize scales the original dimensions to the "regular" rendition,
// which is what the candidate URL serves.
func regularSize(width, height int) (int, int) {
	if width <= unsplashRegularWidth || width <= 0 || height <= 0 {
		return width, height
	}
	return unsplashRegularWidth, height * unsplashRegularWidth / width
}
