package camera

import "testing"

func TestResolvePresetPublishedMatchesWorkedExample(t *testing.T) {
	cam, err := ResolvePreset(H4BWide43Published, Size{Width: 1920, Height: 1440})
	if err != nil {
		t.Fatalf("ResolvePreset: %v", err)
	}
	tests := []struct {
		name string
		got  float64
		want float64
		tol  float64
	}{
		{"fx", cam.Matrix.Fx, 897.5, 1},
		{"fy", cam.Matrix.Fy, 874.0, 1},
		{"cx", cam.Matrix.Cx, 959.5, 0.01},
		{"cy", cam.Matrix.Cy, 719.5, 0.01},
	}
	for _, tc := range tests {
		diff := tc.got - tc.want
		if diff < 0 {
			diff = -diff
		}
		if diff > tc.tol {
			t.Errorf("%s: got %v, want %v +/- %v", tc.name, tc.got, tc.want, tc.tol)
		}
	}
}

func TestResolvePresetScalingIsLinear(t *testing.T) {
	presets := []Preset{
		H4BWide43Published, H4BWide43Measured, H4BWide43MeasuredStabilised,
		H4BWide169Published, H4BWide169Measured, H4BWide169MeasuredStabilised,
	}
	s1 := Size{Width: 1920, Height: 1440}
	s2 := Size{Width: 960, Height: 720}
	for _, p := range presets {
		c1, err := ResolvePreset(p, s1)
		if err != nil {
			t.Fatalf("%v: %v", p, err)
		}
		c2, err := ResolvePreset(p, s2)
		if err != nil {
			t.Fatalf("%v: %v", p, err)
		}
		got := c2.Matrix.Fx / c1.Matrix.Fx
		want := float64(s2.Width) / float64(s1.Width)
		if diff := got - want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%v: fx ratio = %v, want %v", p, got, want)
		}
	}
}

func TestValidateRejectsBadPrincipalPoint(t *testing.T) {
	cam := Camera{
		Model:  Rectilinear,
		Matrix: Matrix{Fx: 100, Fy: 100, Cx: 2000, Cy: 50},
		Size:   Size{Width: 100, Height: 100},
	}
	if err := cam.Validate(); err == nil {
		t.Fatalf("expected validation error for out-of-range cx")
	}
}

func TestSynthesizeOutputCameraRectilinearRoundTrip(t *testing.T) {
	input := Camera{
		Model:  Rectilinear,
		Matrix: Matrix{Fx: 500, Fy: 500, Cx: 320, Cy: 240},
		Size:   Size{Width: 640, Height: 480},
	}
	out, err := SynthesizeOutputCamera(input, 1.0, 1.0, false)
	if err != nil {
		t.Fatalf("SynthesizeOutputCamera: %v", err)
	}
	if out.Model != Rectilinear {
		t.Errorf("expected rectilinear output, got %v", out.Model)
	}
	if out.Size.Width <= 0 || out.Size.Height <= 0 {
		t.Errorf("expected positive output size, got %+v", out.Size)
	}
}

func TestSynthesizeOutputCameraZoomShrinksViewport(t *testing.T) {
	input := Camera{
		Model:  Rectilinear,
		Matrix: Matrix{Fx: 500, Fy: 500, Cx: 320, Cy: 240},
		Size:   Size{Width: 640, Height: 480},
	}
	unzoomed, err := SynthesizeOutputCamera(input, 1.0, 1.0, false)
	if err != nil {
		t.Fatalf("SynthesizeOutputCamera: %v", err)
	}
	zoomed, err := SynthesizeOutputCamera(input, 1.0, 2.0, false)
	if err != nil {
		t.Fatalf("SynthesizeOutputCamera zoomed: %v", err)
	}
	if zoomed.Size.Width >= unzoomed.Size.Width {
		t.Errorf("zoom=2 should shrink viewport width: zoomed=%d unzoomed=%d", zoomed.Size.Width, unzoomed.Size.Width)
	}
}
