package clients

import (
	"context"
	"net/http"

	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/pipeline"
)

var _ pipeline.Scraper = (*ScraperClient)(nil)

// ScraperClient calls the content extraction service, which turns a product
// page into a product profile.
type ScraperClient struct {
	client *jsonClient
}

func NewScraperClient(opts Options) *ScraperClient {
	return &ScraperClient{client: newJSONClient("scraper", opts)}
}

type scrapeRequest struct {
	URL string `json:"url"`
}

type scrapeResponse struct {
	Success bool                `json:"success"`
	Data    *models.ProductData `json:"data"`
	Error   string              `json:"error"`
}

func (c *ScraperClient) Scrape(ctx context.Context, url string) (*models.ProductData, error) {
	const op = "ScraperClient.Scrape"

	var resp scrapeResponse
	if err := c.client.do(ctx, op, http.MethodPost, "/scrape", scrapeRequest{URL: url}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "extraction unsuccessful"
		}
		return nil, newClientError("scraper", op, 0, nil, msg)
	}
	if resp.Data != nil && resp.Data.SourceURL == "" {
		resp.Data.SourceURL = url
	}
	return resp.Data, nil
}
