package clients

import (
	"context"
	"net/http"

	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/pipeline"
)

var _ pipeline.Renderer = (*RenderClient)(nil)

// RenderClient submits Remotion code to the render service and waits for
// the finished video.
type RenderClient struct {
	client *jsonClient
}

func NewRenderClient(opts Options) *RenderClient {
	return &RenderClient{client: newJSONClient("renderer", opts)}
}

func (c *RenderClient) Render(ctx context.Context, req *models.RenderRequest) (*models.RenderResponse, error) {
	const op = "RenderClient.Render"

	var resp models.RenderResponse
	if err := c.client.do(ctx, op, http.MethodPost, "/render", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
