// Package reproject builds the per-pixel sampling-coordinate tables that
// reproject a fisheye input image through a rotation into a rectilinear
// output image, and applies them with a bilinear remap.
package reproject

import (
	"encoding/binary"
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"github.com/hedgepigdaniel/stabilize/camera"
	"github.com/hedgepigdaniel/stabilize/gpu"
	"github.com/hedgepigdaniel/stabilize/rotation"
)

// Maps holds the two sampling-coordinate tables produced by BuildMaps: for
// each output pixel (u, v), MapX[v*Width+u] and MapY[v*Width+u] are the
// coordinates to sample from the input image.
type Maps struct {
	Width, Height int
	MapX, MapY    []float32
}

// MapBuilder owns the input/output camera pair and runs the pixel remap
// kernel (spec §4.2), either through a bound gpu.ComputeRuntime or the
// in-process CPU reference implementation.
type MapBuilder struct {
	input  camera.Camera
	output camera.Camera
	rt     gpu.ComputeRuntime
}

// NewMapBuilder constructs a MapBuilder for the given input/output camera
// pair. rt may be nil, in which case BuildMaps always uses the CPU
// reference path.
func NewMapBuilder(input, output camera.Camera, rt gpu.ComputeRuntime) *MapBuilder {
	return &MapBuilder{input: input, output: output, rt: rt}
}

// BuildMaps computes the sampling-coordinate tables for rotation r, applying
// the algorithm of spec §4.2 per output pixel. When the builder has a bound
// GPU runtime it dispatches there; otherwise it runs the CPU reference
// implementation, which is also what tests exercise directly.
func (b *MapBuilder) BuildMaps(r rotation.Matrix) (*Maps, error) {
	if b.rt != nil {
		return b.buildMapsGPU(r)
	}
	return BuildMapsCPU(b.input, b.output, r)
}

func (b *MapBuilder) buildMapsGPU(r rotation.Matrix) (*Maps, error) {
	program, err := b.rt.CreateProgram(kernelSourceCache)
	if err != nil {
		return nil, fmt.Errorf("reproject: create program: %w", err)
	}
	maps := &Maps{
		Width:  b.output.Size.Width,
		Height: b.output.Size.Height,
		MapX:   make([]float32, b.output.Size.Width*b.output.Size.Height),
		MapY:   make([]float32, b.output.Size.Width*b.output.Size.Height),
	}
	args := make([]any, 0, 11)
	args = append(args, maps.MapX, maps.MapY)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			args = append(args, r[i][j])
		}
	}
	args = append(args,
		b.input.Matrix.Fx, b.input.Matrix.Fy, b.input.Matrix.Cx, b.input.Matrix.Cy,
		b.output.Matrix.Fx, b.output.Matrix.Fy, b.output.Matrix.Cx, b.output.Matrix.Cy,
	)
	if err := program.Bind(args...); err != nil {
		return nil, fmt.Errorf("reproject: bind kernel args: %w", err)
	}
	if err := program.Enqueue2D(maps.Width, maps.Height); err != nil {
		return nil, fmt.Errorf("reproject: enqueue kernel: %w", err)
	}
	if err := program.Finish(); err != nil {
		return nil, fmt.Errorf("reproject: finish: %w", err)
	}
	return maps, nil
}

// kernelSourceCache holds the createMap.cl source once loaded by
// SetKernelSourcePath; the GPU path needs a source string to compile even
// though this package never runs it.
var kernelSourceCache string

// SetKernelSourcePath loads the pixel-remap kernel from the working
// directory file createMap.cl (spec §4.2/§6), caching its contents for
// subsequent GPU-backed MapBuilder calls. A missing file is a
// construction-time configuration failure.
func SetKernelSourcePath(path string) error {
	src, err := gpu.LoadKernelSource(path)
	if err != nil {
		return err
	}
	kernelSourceCache = src
	return nil
}

// BuildMapsCPU computes the sampling-coordinate tables on the CPU, following
// spec §4.2's five steps for every output pixel. This is both the reference
// implementation used by tests and the graceful-degradation path when no
// gpu.ComputeRuntime is bound.
func BuildMapsCPU(input, output camera.Camera, r rotation.Matrix) (*Maps, error) {
	if output.Size.Width <= 0 || output.Size.Height <= 0 {
		return nil, fmt.Errorf("reproject: invalid output size %+v", output.Size)
	}
	maps := &Maps{
		Width:  output.Size.Width,
		Height: output.Size.Height,
		MapX:   make([]float32, output.Size.Width*output.Size.Height),
		MapY:   make([]float32, output.Size.Width*output.Size.Height),
	}
	for v := 0; v < output.Size.Height; v++ {
		for u := 0; u < output.Size.Width; u++ {
			x, y := sampleCoordinate(input, output, r, u, v)
			idx := v*output.Size.Width + u
			maps.MapX[idx] = float32(x)
			maps.MapY[idx] = float32(y)
		}
	}
	return maps, nil
}

// sampleCoordinate implements the per-pixel kernel math of spec §4.2 steps
// 1-4 for a single output pixel (u, v).
func sampleCoordinate(input, output camera.Camera, r rotation.Matrix, u, v int) (float64, float64) {
	// Step 1: back-project to a 3-D ray in output-camera space.
	px := (float64(u) - output.Matrix.Cx) / output.Matrix.Fx
	py := (float64(v) - output.Matrix.Cy) / output.Matrix.Fy
	pz := 1.0

	// Step 2: rotate into input-camera space, p' = R * p.
	rx := r[0][0]*px + r[0][1]*py + r[0][2]*pz
	ry := r[1][0]*px + r[1][1]*py + r[1][2]*pz
	rz := r[2][0]*px + r[2][1]*py + r[2][2]*pz

	// Step 3: fisheye angle and azimuth.
	theta := math.Atan2(math.Hypot(rx, ry), rz)
	phi := math.Atan2(ry, rx)

	// Step 4: equidistant projection, r = theta (plus polynomial distortion
	// terms, applied as a standard radial series in theta if any are
	// nonzero). A rectilinear input camera is projected as a pinhole instead,
	// r = tan(theta).
	radius := theta
	if input.Model == camera.Rectilinear {
		radius = math.Tan(theta)
	} else if input.Distortion != [4]float64{} {
		t2 := theta * theta
		poly := 1 + input.Distortion[0]*t2 +
			input.Distortion[1]*t2*t2 +
			input.Distortion[2]*t2*t2*t2 +
			input.Distortion[3]*t2*t2*t2*t2
		radius = theta * poly
	}

	x := input.Matrix.Cx + input.Matrix.Fx*radius*math.Cos(phi)
	y := input.Matrix.Cy + input.Matrix.Fy*radius*math.Sin(phi)
	return x, y
}

// Remap applies maps to src using bilinear interpolation via gocv.Remap,
// producing the reprojected/stabilised output frame.
func Remap(src gocv.Mat, maps *Maps) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.Mat{}, fmt.Errorf("reproject: empty source frame")
	}
	mapX, err := gocv.NewMatFromBytes(maps.Height, maps.Width, gocv.MatTypeCV32F, float32SliceToBytes(maps.MapX))
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("reproject: build map_x: %w", err)
	}
	defer mapX.Close()
	mapY, err := gocv.NewMatFromBytes(maps.Height, maps.Width, gocv.MatTypeCV32F, float32SliceToBytes(maps.MapY))
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("reproject: build map_y: %w", err)
	}
	defer mapY.Close()

	dst := gocv.NewMat()
	gocv.Remap(src, &dst, &mapX, &mapY, gocv.InterpolationLinear, gocv.BorderConstant, gocv.NewScalar(0, 0, 0, 0))
	return dst, nil
}

func float32SliceToBytes(s []float32) []byte {
	buf := make([]byte, 4*len(s))
	for i, f := range s {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
