package audio

import (
	"context"
	"time"

	"github.com/PieroV/guitarbiro/internal/pitch"
)

// acquisitionTick is the pause between two drains of the ring. Short enough
// to feel immediate, long enough for full analysis windows to accumulate.
const acquisitionTick = 20 * time.Millisecond

// Session ties a Capturer to a Detector: it wakes on a periodic tick and
// lets the detector drain whatever the capture callback produced since.
type Session struct {
	capturer *Capturer
	detector *pitch.Detector
}

// NewSession prepares the analysis loop for a capturer/detector pair. The
// detector must have been created with the capturer's sample rate.
func NewSession(capturer *Capturer, detector *pitch.Detector) *Session {
	return &Session{capturer: capturer, detector: detector}
}

// Run drives the analysis loop until ctx is canceled. Cancellation is
// honored at block boundaries only; one final drain picks up the trailing
// samples before returning.
//
// Run owns the read side of the ring for its whole duration and must not
// be called concurrently with itself.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(acquisitionTick)
	defer ticker.Stop()

	ring := s.capturer.Ring()
	for {
		select {
		case <-ctx.Done():
			return s.detector.Analyze(ring)
		case <-ticker.C:
			if s.capturer.Overflowed() {
				return ErrOverflow
			}
			if err := s.detector.Analyze(ring); err != nil {
				return err
			}
		}
	}
}
