package pipeline

import (
	"context"
	"time"

	"go.viam.com/rdk/logging"

	"github.com/hedgepigdaniel/stabilize/collab"
)

// Profile decorates a Source with the same accounting the original
// implementation's Profiler class reported: accumulated inner time spent
// actually pulling a frame, against the wall-clock time since the first
// Pull, reported as ms/frame, percentage of wall time, and effective fps.
type Profile struct {
	name   string
	source Source
	logger logging.Logger

	numFrames int
	innerTime time.Duration
	startTime time.Time
	haveStart bool
}

// NewProfile wraps source, reporting its Pull timing under name.
func NewProfile(name string, source Source, logger logging.Logger) *Profile {
	return &Profile{name: name, source: source, logger: logger}
}

// Peek delegates without affecting the profile, matching the original's
// FrameSourceProfile::peek_frame, which passes straight through.
func (p *Profile) Peek(ctx context.Context) (collab.Frame, error) {
	return p.source.Peek(ctx)
}

// Pull times the wrapped source's Pull and logs the running average once it
// returns: ms/frame (this stage's own inner time), the inclusive percentage
// of total wall time since the first Pull this stage's work accounts for,
// and the effective frames-per-second implied by that wall time.
func (p *Profile) Pull(ctx context.Context) (collab.Frame, error) {
	if !p.haveStart {
		p.startTime = time.Now()
		p.haveStart = true
	}

	entry := time.Now()
	frame, err := p.source.Pull(ctx)
	exit := time.Now()
	if err != nil {
		return frame, err
	}

	p.numFrames++
	p.innerTime += exit.Sub(entry)

	averageInner := p.innerTime / time.Duration(p.numFrames)
	averageExternal := exit.Sub(p.startTime) / time.Duration(p.numFrames)

	msPerFrame := float64(averageInner.Microseconds()) / 1000.0
	wallMs := float64(averageExternal.Microseconds()) / 1000.0
	pctOfWall := 0
	fps := 0
	if averageExternal > 0 {
		pctOfWall = int(100 * averageInner / averageExternal)
		fps = int(time.Second / averageExternal)
	}

	p.logger.Infof(
		"%s: %.1f ms/frame (%d%% of %.1fms total/%dfps)",
		p.name, msPerFrame, pctOfWall, wallMs, fps,
	)

	return frame, nil
}
