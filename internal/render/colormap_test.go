package render

import (
	"testing"
)

func TestColorMapper_Clamping(t *testing.T) {
	cm := NewColorMapper(SchemeGrayscale, -100, 0)

	below := cm.Color(-200)
	if below != cm.MinColor() {
		t.Errorf("Power below range should map to the minimum color, got %v", below)
	}

	above := cm.Color(50)
	top := cm.Color(0)
	if above != top {
		t.Errorf("Power above range should map to the maximum color: %v vs %v", above, top)
	}
}

func TestColorMapper_GrayscaleMonotonic(t *testing.T) {
	cm := NewColorMapper(SchemeGrayscale, -100, 0)

	// Brightness must never decrease as power rises
	prev := -1
	for p := -100.0; p <= 0; p += 5 {
		c := cm.Color(p)
		lum := int(c.R) + int(c.G) + int(c.B)
		if lum < prev {
			t.Fatalf("Brightness fell at %.0f dB: %d < %d", p, lum, prev)
		}
		prev = lum
	}

	lo := cm.Color(-100)
	hi := cm.Color(0)
	if lo.R >= hi.R {
		t.Errorf("Expected dark-to-bright ramp, got %v to %v", lo, hi)
	}
}

func TestColorMapper_SetBounds(t *testing.T) {
	cm := NewColorMapper(SchemeHot, -100, 0)
	mid := cm.Color(-50)

	// Re-scaling the ramp moves the same power to a new color
	cm.SetBounds(-55, -10)
	rescaled := cm.Color(-50)
	if mid == rescaled {
		t.Error("Rescaled bounds should change the mid-range color")
	}

	// Degenerate bounds fall back to a sane range instead of dividing by zero
	cm.SetBounds(-50, -50)
	_ = cm.Color(-50)
}

func TestColorMapper_SchemeSwitch(t *testing.T) {
	cm := NewColorMapper(SchemeDefault, -100, 0)
	before := cm.Color(-20)

	cm.SetScheme(SchemeViridis)
	if cm.Scheme() != SchemeViridis {
		t.Errorf("Expected scheme viridis, got %s", cm.Scheme())
	}
	after := cm.Color(-20)
	if before == after {
		t.Error("Switching schemes should change the output color")
	}
}

func TestNextScheme_CyclesAll(t *testing.T) {
	seen := map[Scheme]bool{}
	s := SchemeDefault
	for i := 0; i < len(Schemes()); i++ {
		seen[s] = true
		s = NextScheme(s)
	}
	if s != SchemeDefault {
		t.Errorf("Expected cycle back to default, got %s", s)
	}
	if len(seen) != len(Schemes()) {
		t.Errorf("Expected all %d schemes visited, got %d", len(Schemes()), len(seen))
	}

	// Unknown schemes restart the cycle
	if next := NextScheme(Scheme("bogus")); next != SchemeDefault {
		t.Errorf("Unknown scheme should wrap to default, got %s", next)
	}
}
