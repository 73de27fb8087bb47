// Package gpu specifies the Go interface contract for the GPU compute
// runtime collaborator (spec §6). The runtime itself — kernel compilation,
// device scheduling, buffer binding — is an out-of-scope external
// collaborator; only the shape the rest of the pipeline programs against is
// defined here, plus a kernel-source loader and a one-shot device context
// acquisition guard.
package gpu

import (
	"fmt"
	"os"
	"sync"
)

// DeviceContext is the shared GPU device binding. It is created once and
// held by reference across every stage that needs it; Release must be
// idempotent and is only effective once the last holder calls it.
type DeviceContext interface {
	Release() error
}

// Program is a compiled kernel bound to a DeviceContext.
type Program interface {
	// Bind attaches scalar and image/buffer arguments, in kernel argument
	// order, for the next Enqueue2D call.
	Bind(args ...any) error
	// Enqueue2D submits a 2-D NDRange dispatch of the given dimensions.
	Enqueue2D(width, height int) error
	// Finish blocks until all previously enqueued work on this program's
	// device context has completed.
	Finish() error
}

// ComputeRuntime creates programs from kernel source against a device
// context. A concrete binding (OpenCL, Vulkan compute, etc.) is supplied by
// the hosting application; this package only pins the contract (the CPU
// reference path is reproject.BuildMapsCPU).
type ComputeRuntime interface {
	DeviceContext() DeviceContext
	CreateProgram(source string) (Program, error)
}

// LoadKernelSource reads the pixel-remap kernel source from path (the
// working-directory createMap.cl file per spec §4.2/§6). A missing file is
// a construction-time configuration failure, not a runtime one.
func LoadKernelSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("gpu: load kernel source %q: %w", path, err)
	}
	return string(data), nil
}

// acquisition is a one-shot guard against re-entrant device binding, per the
// design note that the GPU device context binding is process-wide.
type acquisition struct {
	mu      sync.Mutex
	bound   bool
	current DeviceContext
}

var globalAcquisition acquisition

// Acquire binds ctx as the process-wide device context. It fails if a
// context is already bound; callers must Release the prior one first. This
// does not itself talk to any device — it only guards against the
// process-wide binding being stomped by a second, unrelated acquisition.
func Acquire(ctx DeviceContext) error {
	globalAcquisition.mu.Lock()
	defer globalAcquisition.mu.Unlock()
	if globalAcquisition.bound {
		return fmt.Errorf("gpu: device context already acquired")
	}
	globalAcquisition.bound = true
	globalAcquisition.current = ctx
	return nil
}

// ReleaseGlobal releases the currently-bound process-wide device context, if
// any, and clears the guard so a later Acquire can succeed.
func ReleaseGlobal() error {
	globalAcquisition.mu.Lock()
	defer globalAcquisition.mu.Unlock()
	if !globalAcquisition.bound {
		return nil
	}
	err := globalAcquisition.current.Release()
	globalAcquisition.bound = false
	globalAcquisition.current = nil
	return err
}
