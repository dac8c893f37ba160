package publisher

import (
	"errors"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
)

var (
	ErrUnsupported   = errors.New("operation not supported by platform")
	ErrQuotaExceeded = errors.New("publishing quota exceeded")
	ErrMediaRequired = errors.New("media is required")
	ErrProcessing    = errors.New("media processing failed")

	// ErrPartiallyPublished marks a sequence that failed after something was
	// already posted. Retrying would post those parts a second time.
	ErrPartiallyPublished = errors.New("partially published")
)

// ChannelPublishError reports a failed step of a platform publish sequence.
// Body holds the raw platform response when there was one.
type ChannelPublishError struct {
	Platform   models.Platform
	Step       string
	StatusCode int
	Body       string
	Err        error
}

func (e *ChannelPublishError) Error() string {
	msg := fmt.Sprintf("%s: %s failed", e.Platform, e.Step)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *ChannelPublishError) Unwrap() error {
	return e.Err
}

func failure(p models.Platform, step string, err error) *ChannelPublishError {
	var cpe *ChannelPublishError
	if errors.As(err, &cpe) {
		return cpe
	}
	return &ChannelPublishError{Platform: p, Step: step, Err: err}
}

func unsupported(p models.Platform, step string) *ChannelPublishError {
	return &ChannelPublishError{Platform: p, Step: step, Err: ErrUnsupported}
}
