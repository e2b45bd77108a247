package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/nijaru/reelsmith/models"
)

// CVStatusClient polls the external computer-vision service that derives
// cursor data from uploaded recordings.
type CVStatusClient struct {
	client *jsonClient
}

func NewCVStatusClient(opts Options) *CVStatusClient {
	return &CVStatusClient{client: newJSONClient("cv", opts)}
}

func (c *CVStatusClient) RecordingStatus(ctx context.Context, id string) (*models.RecordingStatusResponse, error) {
	const op = "CVStatusClient.RecordingStatus"

	var resp models.RecordingStatusResponse
	path := "/recordings/" + url.PathEscape(id) + "/status"
	if err := c.client.do(ctx, op, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit registers a recording with the CV service so it starts processing.
func (c *CVStatusClient) Submit(ctx context.Context, rec *models.ScreenRecording) error {
	const op = "CVStatusClient.Submit"

	body := map[string]any{
		"recordingId": rec.ID,
		"videoUrl":    rec.VideoURL,
		"duration":    rec.Duration,
	}
	return c.client.do(ctx, op, http.MethodPost, "/recordings", body, nil)
}
