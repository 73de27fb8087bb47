package rotation

import (
	"math"
	"testing"
)

func TestIdentityValidates(t *testing.T) {
	if err := Identity().Validate(); err != nil {
		t.Fatalf("identity should validate: %v", err)
	}
}

func TestInverseIsTranspose(t *testing.T) {
	m := Matrix{
		{0, -1, 0},
		{1, 0, 0},
		{0, 0, 1},
	}
	inv := m.Inverse()
	roundTrip := m.Mul(inv)
	if roundTrip != Identity() {
		t.Fatalf("m * m^-1 should be identity, got %+v", roundTrip)
	}
}

func TestValidateRejectsNonOrthogonal(t *testing.T) {
	m := Matrix{
		{2, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	if err := m.Validate(); err == nil {
		t.Fatalf("expected validation failure for scaled matrix")
	}
}

func TestLogExpRoundTrip(t *testing.T) {
	ref := Identity()
	target := Matrix{
		{math.Cos(0.1), -math.Sin(0.1), 0},
		{math.Sin(0.1), math.Cos(0.1), 0},
		{0, 0, 1},
	}
	tangent, err := Log(ref, target)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	back, err := Exp(ref, tangent)
	if err != nil {
		t.Fatalf("Exp: %v", err)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(back[i][j]-target[i][j]) > 1e-6 {
				t.Fatalf("round trip mismatch at (%d,%d): got %v want %v", i, j, back[i][j], target[i][j])
			}
		}
	}
}
