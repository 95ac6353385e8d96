package registry

import "testing"

func TestRouterDirectionsAlternate(t *testing.T) {
	dirs := DirectionsFor(StrategyRouter)
	if len(dirs) != 2 {
		t.Fatalf("router has %d directions, want 2", len(dirs))
	}
	if dirs[0].TokenIn != WPOLAddress || dirs[0].TokenOut != TPOLAddress {
		t.Fatal("first router direction should be WPOL -> TPOL")
	}
	if dirs[1].TokenIn != TPOLAddress || dirs[1].TokenOut != WPOLAddress {
		t.Fatal("second router direction should be TPOL -> WPOL")
	}
	if dirs[0].TypeCode != 2 || dirs[1].TypeCode != 3 {
		t.Fatalf("router type codes = %d, %d, want 2, 3", dirs[0].TypeCode, dirs[1].TypeCode)
	}
}

func TestWrapDirectionsUseNativeSentinel(t *testing.T) {
	dirs := DirectionsFor(StrategyWrap)
	if dirs[0].TokenIn != Native {
		t.Fatal("wrap direction must start from the native asset")
	}
	if dirs[1].TokenOut != Native {
		t.Fatal("unwrap direction must end at the native asset")
	}
	if dirs[0].TypeCode != 0 || dirs[1].TypeCode != 1 {
		t.Fatalf("wrap type codes = %d, %d, want 0, 1", dirs[0].TypeCode, dirs[1].TypeCode)
	}
}

func TestEveryDirectionCarriesARangeKey(t *testing.T) {
	for _, strategy := range []string{StrategyRouter, StrategyWrap} {
		for i, dir := range DirectionsFor(strategy) {
			if dir.RangeKey == "" {
				t.Errorf("%s direction %d has no range key", strategy, i)
			}
		}
	}
	// The native side borrows its wrapped form's range.
	if DirectionsFor(StrategyWrap)[0].RangeKey != "wpol" {
		t.Fatal("native wrap direction should use the wpol range")
	}
}

func TestUnknownStrategyFallsBackToRouter(t *testing.T) {
	dirs := DirectionsFor("whatever")
	if dirs[0].TokenIn != WPOLAddress {
		t.Fatal("unknown strategy should fall back to the router set")
	}
}
