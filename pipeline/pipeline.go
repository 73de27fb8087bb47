// Package pipeline composes the decoder, surface-mapper, colorplane-source
// and stabiliser stages into a single pull/peek chain, traced at the chain's
// Pull/Peek, and decorates any stage with profiling (spec §4.6).
package pipeline

import (
	"context"

	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils/trace"

	"github.com/hedgepigdaniel/stabilize/collab"
)

// Frame and Source re-export the capability shapes the chain is built from;
// every stage programs against these, not against a concrete decoder or
// GPU implementation.
type Frame = collab.Frame
type Source = collab.Source

// Stage names a link in the chain purely for logging/tracing/teardown
// purposes; it wraps a Source with a name and optional Close.
type Stage struct {
	Name   string
	Source Source
	Close  func() error
}

// DecodedFrameSource wraps a collab.Decoder, the chain's root stage.
func DecodedFrameSource(decoder collab.Decoder) Stage {
	return Stage{Name: "decode", Source: decoder}
}

// SurfaceMapSource wraps a collab.SurfaceMapper over its upstream stage.
func SurfaceMapSource(mapper collab.SurfaceMapper) Stage {
	return Stage{Name: "surface-map", Source: mapper}
}

// ColorplaneSource wraps a collab.ColorplaneSource over its upstream stage.
func ColorplaneSource(source collab.ColorplaneSource) Stage {
	return Stage{Name: "colorplane", Source: source}
}

// StabiliserStage wraps the smoothing/warp stage; its Source is typically
// *smooth.Stabiliser, which satisfies collab.Source structurally.
func StabiliserStage(name string, source Source, close func() error) Stage {
	return Stage{Name: name, Source: source, Close: close}
}

// Chain is an ordered sequence of stages; Pull/Peek delegate to the last
// (outermost) stage, and Close tears every stage down in reverse order,
// aggregating failures with multierr so one stage's close error never
// hides another's.
type Chain struct {
	stages []Stage
	logger logging.Logger
}

// NewChain builds a Chain from stages in upstream-to-downstream order; the
// last stage is the one Pull/Peek is called against.
func NewChain(logger logging.Logger, stages ...Stage) *Chain {
	return &Chain{stages: stages, logger: logger}
}

func (c *Chain) last() Source {
	return c.stages[len(c.stages)-1].Source
}

// Pull advances and returns the next frame from the chain's final stage.
func (c *Chain) Pull(ctx context.Context) (collab.Frame, error) {
	ctx, span := trace.StartSpan(ctx, "pipeline::Pull")
	defer span.End()
	return c.last().Pull(ctx)
}

// Peek returns the next frame from the chain's final stage without
// advancing it.
func (c *Chain) Peek(ctx context.Context) (collab.Frame, error) {
	ctx, span := trace.StartSpan(ctx, "pipeline::Peek")
	defer span.End()
	return c.last().Peek(ctx)
}

// Close tears every stage down synchronously in reverse (downstream-first)
// order, per spec §5's resource-release rule, aggregating every close
// error rather than stopping at the first.
func (c *Chain) Close() error {
	var err error
	for i := len(c.stages) - 1; i >= 0; i-- {
		stage := c.stages[i]
		if stage.Close == nil {
			continue
		}
		if closeErr := stage.Close(); closeErr != nil {
			c.logger.Warnf("%s: close failed: %v", stage.Name, closeErr)
			err = multierr.Combine(err, closeErr)
		}
	}
	return err
}
