package gpu

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeContext struct {
	released bool
}

func (f *fakeContext) Release() error {
	f.released = true
	return nil
}

func TestAcquireRejectsDoubleBinding(t *testing.T) {
	t.Cleanup(func() { _ = ReleaseGlobal() })

	ctx1 := &fakeContext{}
	if err := Acquire(ctx1); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	ctx2 := &fakeContext{}
	if err := Acquire(ctx2); err == nil {
		t.Fatalf("expected second Acquire to fail while first is bound")
	}
	if err := ReleaseGlobal(); err != nil {
		t.Fatalf("ReleaseGlobal: %v", err)
	}
	if !ctx1.released {
		t.Fatalf("expected ctx1 to be released")
	}
	if err := Acquire(ctx2); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestLoadKernelSourceMissingFileIsConfigurationError(t *testing.T) {
	_, err := LoadKernelSource(filepath.Join(t.TempDir(), "createMap.cl"))
	if err == nil {
		t.Fatalf("expected error for missing kernel source")
	}
}

func TestLoadKernelSourceReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "createMap.cl")
	if err := os.WriteFile(path, []byte("__kernel void createMap() {}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	src, err := LoadKernelSource(path)
	if err != nil {
		t.Fatalf("LoadKernelSource: %v", err)
	}
	if src == "" {
		t.Fatalf("expected non-empty kernel source")
	}
}
