package main

import (
	"context"
	"fmt"

	"go.viam.com/rdk/logging"

	"github.com/hedgepigdaniel/stabilize/collab"
)

// newDecoder would demux inputPath, hand frames to the hardware decoder,
// and allocate the shared GPU device context backing the rest of the
// chain. The hardware decoder itself is an out-of-scope external
// collaborator (only its Go interface contract, collab.Decoder, is
// specified): no backend is wired in here, so construction always reports
// the hardware-acceleration-unavailable condition the CLI's exit code 2 is
// for.
func newDecoder(ctx context.Context, inputPath string, logger logging.Logger) (collab.Decoder, error) {
	logger.Debugf("opening %s", inputPath)
	return nil, collab.NewError(
		"decode",
		collab.Configuration,
		"no-hardware-decoder-backend",
		fmt.Errorf("no hardware decoder backend is compiled into this build"),
	)
}
