package collab

import "gocv.io/x/gocv"

// memFrame is a plain in-process Frame backed by gocv Mats, used by the CPU
// reference paths and by tests that don't have a real decoder/GPU surface
// mapper to hand frames from.
type memFrame struct {
	width, height int
	layout        PixelLayout
	full          gocv.Mat
	gray          gocv.Mat
}

// NewFrame wraps full (the complete frame, BGR or YUV 4:2:0 planar per
// layout) and gray (the luma-plane view) into a Frame.
func NewFrame(full, gray gocv.Mat, layout PixelLayout) Frame {
	return &memFrame{
		width:  full.Cols(),
		height: full.Rows(),
		layout: layout,
		full:   full,
		gray:   gray,
	}
}

func (f *memFrame) Width() int            { return f.width }
func (f *memFrame) Height() int           { return f.height }
func (f *memFrame) Layout() PixelLayout   { return f.layout }
func (f *memFrame) Full() gocv.Mat        { return f.full }
func (f *memFrame) Gray() gocv.Mat        { return f.gray }
func (f *memFrame) Release() error {
	if err := f.full.Close(); err != nil {
		return err
	}
	return f.gray.Close()
}
