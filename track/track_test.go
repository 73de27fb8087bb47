package track

import "testing"

func TestNeedsRefreshWhenEmpty(t *testing.T) {
	tr := NewTracker()
	if !tr.NeedsRefresh(0) {
		t.Fatalf("expected refresh on first use")
	}
}

func TestNeedsRefreshByAge(t *testing.T) {
	tr := &Tracker{
		lastCorners:       make([]Point, 160),
		lastKeyframeIndex: 0,
		haveKeyframe:      true,
	}
	if tr.NeedsRefresh(20) {
		t.Fatalf("age 20 should not yet require refresh")
	}
	if !tr.NeedsRefresh(21) {
		t.Fatalf("age 21 should require refresh")
	}
}

func TestNeedsRefreshByCarriedSetSize(t *testing.T) {
	tr := &Tracker{
		lastCorners:       make([]Point, 149),
		lastKeyframeIndex: 0,
		haveKeyframe:      true,
	}
	if !tr.NeedsRefresh(1) {
		t.Fatalf("carried set below 150 should require refresh")
	}
	tr.lastCorners = make([]Point, 150)
	if tr.NeedsRefresh(1) {
		t.Fatalf("carried set of exactly 150 should not require refresh")
	}
}

// syntheticTranslation builds a synthetic correspondence where every point
// in base is shifted by (dx, dy), the fixture used to check invariant 4
// (correspondence integrity) without needing a real optical-flow pass.
func syntheticTranslation(base []Point, dx, dy float32) Correspondence {
	curr := make([]Point, len(base))
	for i, p := range base {
		curr[i] = Point{X: p.X + dx, Y: p.Y + dy}
	}
	return Correspondence{Previous: base, Current: curr}
}

func TestSyntheticTranslationPreservesCorrespondenceLength(t *testing.T) {
	base := []Point{{X: 10, Y: 10}, {X: 20, Y: 15}, {X: 5, Y: 30}}
	corr := syntheticTranslation(base, 2, -1)
	if len(corr.Previous) != len(corr.Current) {
		t.Fatalf("expected equal-length correspondence, got %d vs %d", len(corr.Previous), len(corr.Current))
	}
	for i := range corr.Previous {
		gotDX := corr.Current[i].X - corr.Previous[i].X
		gotDY := corr.Current[i].Y - corr.Previous[i].Y
		if gotDX != 2 || gotDY != -1 {
			t.Fatalf("index %d: flow vector = (%v, %v), want (2, -1)", i, gotDX, gotDY)
		}
	}
}
