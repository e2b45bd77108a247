package stream

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/reelsmith/models"
)

var ErrTruncated = errors.New("stream ended without a terminal event")

// Projection is the client-side view of a run, rebuilt from events alone.
type Projection struct {
	State    models.PipelineState
	Progress int
	Statuses []string
	Terminal EventType
}

func NewProjection() *Projection {
	return &Projection{
		State: models.PipelineState{CurrentStep: models.StepIdle, Errors: []string{}},
	}
}

// Apply folds one event into the projection. Progress never moves backwards.
func (p *Projection) Apply(ev Event) error {
	switch ev.Type {
	case EventStatus:
		msg := ev.Text()
		p.Statuses = append(p.Statuses, msg)
		if pct, ok := Progress(msg); ok && pct > p.Progress {
			p.Progress = pct
		}
	case EventProductData:
		var product models.ProductData
		if err := ev.Decode(&product); err != nil {
			return err
		}
		p.State.ProductData = &product
	case EventVideoScript:
		var script models.VideoScript
		if err := ev.Decode(&script); err != nil {
			return err
		}
		p.State.VideoScript = &script
	case EventRemotionCode:
		p.State.RemotionCode = ev.Text()
	case EventVideoURL:
		p.State.VideoURL = ev.Text()
	case EventError:
		p.State.Errors = append(p.State.Errors, ev.Text())
		p.State.CurrentStep = models.StepError
		p.Terminal = ev.Type
	case EventComplete:
		var payload CompletePayload
		if len(ev.Data) > 0 {
			if err := ev.Decode(&payload); err != nil {
				return err
			}
		}
		p.State.CurrentStep = models.StepComplete
		if payload.Step != "" {
			p.State.CurrentStep = payload.Step
		}
		if payload.RunID != "" {
			p.State.RunID = payload.RunID
		}
		if payload.VideoURL != "" && p.State.VideoURL == "" {
			p.State.VideoURL = payload.VideoURL
		}
		if p.State.CurrentStep == models.StepComplete {
			p.Progress = 100
		}
		p.Terminal = ev.Type
	default:
		return errors.Wrapf(ErrUnknownType, "apply %q", ev.Type)
	}
	return nil
}

// Consume reads r to the end, applying each event to a fresh projection and
// then calling onEvent if it is non-nil. Events that fail to apply are
// logged and skipped. A stream that ends before an error or complete event
// returns ErrTruncated along with the partial projection.
func Consume(ctx context.Context, r io.Reader, logger *logrus.Logger, onEvent func(Event, *Projection)) (*Projection, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	reader := NewReader(r, logger)
	p := NewProjection()

	for {
		if err := ctx.Err(); err != nil {
			return p, err
		}

		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return p, errors.Wrap(err, "read stream")
		}

		if err := p.Apply(ev); err != nil {
			logger.WithError(err).WithField("type", ev.Type).Warn("Ignoring unusable stream event")
			continue
		}
		if onEvent != nil {
			onEvent(ev, p)
		}
		if p.Terminal != "" {
			return p, nil
		}
	}

	if p.Terminal == "" {
		return p, ErrTruncated
	}
	return p, nil
}
