package validation

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/nijaru/reelsmith/config"
	"github.com/nijaru/reelsmith/errors"
	"github.com/nijaru/reelsmith/models"
)

const (
	maxDescriptionLength = 5000
	maxEditMessageLength = 2000
	maxRecordings        = 20
)

type Validator struct {
	config *config.Config
}

func NewValidator(cfg *config.Config) *Validator {
	return &Validator{config: cfg}
}

// ValidateURL accepts absolute http(s) URLs. Loopback and private hosts are
// rejected unless the config allows them.
func (v *Validator) ValidateURL(urlStr string) error {
	const op = "Validator.ValidateURL"

	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return errors.InvalidInput(op, nil, "URL is required")
	}

	parsedURL, err := url.ParseRequestURI(urlStr)
	if err != nil {
		return errors.InvalidInput(op, err, "Invalid URL format")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.InvalidInput(op, nil, "URL must use HTTP or HTTPS")
	}

	host := parsedURL.Hostname()
	if host == "" {
		return errors.InvalidInput(op, nil, "URL must have a host")
	}

	if !v.config.Pipeline.AllowPrivateIP && isPrivateHost(host) {
		return errors.InvalidInput(op, nil, "URL must point to a public host")
	}

	return nil
}

func isPrivateHost(host string) bool {
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

func (v *Validator) ValidateGenerationRequest(req *models.GenerationRequest) error {
	const op = "Validator.ValidateGenerationRequest"

	if req == nil || !req.HasSource() {
		return errors.InvalidInput(op, nil, "Either a product URL or a description is required")
	}
	if strings.TrimSpace(req.URL) != "" {
		if err := v.ValidateURL(req.URL); err != nil {
			return err
		}
	}
	if len(req.Description) > maxDescriptionLength {
		return errors.InvalidInput(op, nil, fmt.Sprintf("Description must be at most %d characters", maxDescriptionLength))
	}
	if err := v.validateDuration(op, req.Duration); err != nil {
		return err
	}
	if err := validateAudio(op, req.Audio); err != nil {
		return err
	}
	return validateRecordings(op, req.Recordings)
}

func (v *Validator) ValidateContinueRequest(req *models.ContinueRequest) error {
	const op = "Validator.ValidateContinueRequest"

	if req == nil || req.VideoScript == nil {
		return errors.InvalidInput(op, nil, "Video script is required")
	}
	if !req.ProductData.Valid() {
		return errors.InvalidInput(op, nil, "Product data is required")
	}
	if err := validateScript(op, req.VideoScript); err != nil {
		return err
	}
	if err := v.validateDuration(op, req.UserPreferences.Duration); err != nil {
		return err
	}
	if err := validateAudio(op, req.Audio); err != nil {
		return err
	}
	return validateRecordings(op, req.Recordings)
}

func (v *Validator) ValidateEditRequest(req *models.EditRequest) error {
	const op = "Validator.ValidateEditRequest"

	if req == nil || strings.TrimSpace(req.Message) == "" {
		return errors.InvalidInput(op, nil, "Edit message is required")
	}
	if len(req.Message) > maxEditMessageLength {
		return errors.InvalidInput(op, nil, fmt.Sprintf("Edit message must be at most %d characters", maxEditMessageLength))
	}
	if req.VideoScript == nil {
		return errors.InvalidInput(op, nil, "Video script is required")
	}
	return validateScript(op, req.VideoScript)
}

func (v *Validator) ValidateZoomPoint(p models.ZoomPoint) error {
	const op = "Validator.ValidateZoomPoint"

	if p.Time < 0 {
		return errors.InvalidInput(op, nil, "Zoom point time must not be negative")
	}
	if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
		return errors.InvalidInput(op, nil, "Zoom point coordinates must be between 0 and 1")
	}
	if p.Scale < 0 || p.Duration < 0 {
		return errors.InvalidInput(op, nil, "Zoom point scale and duration must not be negative")
	}
	return nil
}

// validateDuration treats zero as "use the default".
func (v *Validator) validateDuration(op string, duration int) error {
	if duration == 0 {
		return nil
	}
	lo, hi := v.config.Pipeline.MinDuration, v.config.Pipeline.MaxDuration
	if duration < lo || duration > hi {
		return errors.InvalidInput(op, nil, fmt.Sprintf("Duration must be between %d and %d seconds", lo, hi))
	}
	return nil
}

func validateScript(op string, script *models.VideoScript) error {
	if len(script.Scenes) == 0 {
		return errors.InvalidInput(op, nil, "Video script has no scenes")
	}
	if script.FPS < 0 {
		return errors.InvalidInput(op, nil, "Video script fps must not be negative")
	}
	for i, scene := range script.Scenes {
		if scene.Duration() < 1 {
			return errors.InvalidInput(op, models.ErrSceneDuration, fmt.Sprintf("Scene %d must last at least one frame", i+1))
		}
	}
	return nil
}

func validateAudio(op string, audio *models.AudioRef) error {
	if audio == nil {
		return nil
	}
	if audio.BPM < 0 || audio.Duration < 0 {
		return errors.InvalidInput(op, nil, "Audio BPM and duration must not be negative")
	}
	return nil
}

func validateRecordings(op string, refs []models.RecordingRef) error {
	if len(refs) > maxRecordings {
		return errors.InvalidInput(op, nil, fmt.Sprintf("At most %d recordings are allowed", maxRecordings))
	}
	for _, ref := range refs {
		if ref.ID == "" {
			return errors.InvalidInput(op, nil, "Recording ID is required")
		}
		rec := models.RecordingFromRef(ref)
		if err := rec.ValidateTrim(); err != nil {
			return errors.InvalidInput(op, err, fmt.Sprintf("Recording %s has an invalid trim range", ref.ID))
		}
	}
	return nil
}

// RequestValidationOpts holds options for request validation
type RequestValidationOpts struct {
	MaxContentLength int64
	RequireJSON      bool
}

// ValidateRequest checks content type and declared size before the body is
// read.
func (v *Validator) ValidateRequest(r *http.Request, opts RequestValidationOpts) error {
	const op = "Validator.ValidateRequest"

	if opts.RequireJSON {
		if contentType := r.Header.Get("Content-Type"); !strings.Contains(contentType, "application/json") {
			return errors.InvalidInput(op, nil, "Content-Type must be application/json")
		}
	}

	if opts.MaxContentLength > 0 && r.ContentLength > opts.MaxContentLength {
		return errors.InvalidInput(op, nil, "Request body too large")
	}

	return nil
}
