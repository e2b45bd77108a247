// Command reelctl starts a generation run against a reelsmith server and
// follows its progress stream.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/stream"
)

type options struct {
	server      string
	url         string
	description string
	style       string
	duration    int
	approve     bool
	timeout     time.Duration
	verbose     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.server, "server", "http://localhost:8080", "reelsmith server address")
	flag.StringVar(&opts.url, "url", "", "product page to scrape")
	flag.StringVar(&opts.description, "description", "", "product description, used when no URL is given")
	flag.StringVar(&opts.style, "style", "", "visual style hint")
	flag.IntVar(&opts.duration, "duration", 0, "video length in seconds (0 uses the server default)")
	flag.BoolVar(&opts.approve, "approve", false, "approve the script at review and render the video")
	flag.DurationVar(&opts.timeout, "timeout", 15*time.Minute, "overall deadline")
	flag.BoolVar(&opts.verbose, "v", false, "log every status message")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if opts.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if opts.url == "" && opts.description == "" {
		fmt.Fprintln(os.Stderr, "reelctl: one of -url or -description is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	if err := run(ctx, opts, logger); err != nil {
		logger.WithError(err).Error("Run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *logrus.Logger) error {
	client := &http.Client{}
	base := strings.TrimRight(opts.server, "/")

	req := &models.GenerationRequest{
		URL:         opts.url,
		Description: opts.description,
		Style:       opts.style,
		Duration:    opts.duration,
	}
	p, err := follow(ctx, client, base+"/api/generate", req, logger)
	if err != nil {
		return err
	}

	if p.State.CurrentStep != models.StepReview {
		return result(p, logger)
	}
	if p.State.VideoScript != nil {
		logger.WithFields(logrus.Fields{
			"run_id": p.State.RunID,
			"scenes": len(p.State.VideoScript.Scenes),
		}).Info("Script ready for review")
	}
	if !opts.approve {
		return nil
	}

	next := &models.ContinueRequest{
		RunID:       p.State.RunID,
		VideoScript: p.State.VideoScript,
		ProductData: p.State.ProductData,
		UserPreferences: models.UserPreferences{
			Style:    opts.style,
			Duration: opts.duration,
		},
	}
	p, err = follow(ctx, client, base+"/api/generate/continue", next, logger)
	if err != nil {
		return err
	}
	return result(p, logger)
}

// follow posts body to endpoint and consumes the NDJSON response, logging
// each progress bucket the first time it is reached.
func follow(ctx context.Context, client *http.Client, endpoint string, body any, logger *logrus.Logger) (*stream.Projection, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "post %s", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	lastProgress := -1
	p, err := stream.Consume(ctx, resp.Body, logger, func(ev stream.Event, p *stream.Projection) {
		switch ev.Type {
		case stream.EventStatus:
			logger.Debug(ev.Text())
			if p.Progress > lastProgress {
				lastProgress = p.Progress
				logger.WithField("progress", fmt.Sprintf("%d%%", p.Progress)).Info(ev.Text())
			}
		case stream.EventProductData:
			logger.WithField("product", p.State.ProductData.Name).Info("Product data received")
		case stream.EventVideoURL:
			logger.WithField("video_url", p.State.VideoURL).Info("Video rendered")
		}
	})
	if errors.Is(err, stream.ErrTruncated) {
		return p, errors.Wrap(err, "server closed the stream early")
	}
	return p, err
}

func result(p *stream.Projection, logger *logrus.Logger) error {
	if p.Terminal == stream.EventError {
		return errors.New(strings.Join(p.State.Errors, "; "))
	}
	logger.WithFields(logrus.Fields{
		"run_id":    p.State.RunID,
		"step":      p.State.CurrentStep,
		"video_url": p.State.VideoURL,
	}).Info("Run finished")
	return nil
}
