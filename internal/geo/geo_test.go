package geo

import (
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	// Ben Thanh market to Tan Son Nhat airport, Ho Chi Minh City.
	d := HaversineKm(10.7725, 106.6980, 10.8185, 106.6588)
	if d < 6.5 || d > 6.9 {
		t.Errorf("expected ~6.7km, got %.3f", d)
	}

	if d := HaversineKm(10.0, 106.0, 10.0, 106.0); d != 0 {
		t.Errorf("expected zero distance for identical points, got %f", d)
	}
}

func TestValidCoordinate(t *testing.T) {
	tests := []struct {
		lat, lng float64
		want     bool
	}{
		{10.77, 106.69, true},
		{90, 180, true},
		{-90, -180, true},
		{90.1, 0, false},
		{0, -180.5, false},
		{math.NaN(), 0, false},
	}
	for _, tt := range tests {
		if got := ValidCoordinate(tt.lat, tt.lng); got != tt.want {
			t.Errorf("ValidCoordinate(%v, %v) = %v, want %v", tt.lat, tt.lng, got, tt.want)
		}
	}
}

func TestCells_NestedPrefixes(t *testing.T) {
	cells := Cells(10.7725, 106.6980)
	if len(cells) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(cells))
	}
	if len(cells[0]) != 6 || len(cells[1]) != 5 || len(cells[2]) != 4 {
		t.Fatalf("unexpected cell lengths: %v", cells)
	}
	if cells[0][:5] != cells[1] || cells[1][:4] != cells[2] {
		t.Errorf("coarser cells must be prefixes of finer cells: %v", cells)
	}
}

func TestSearchCells_CenterAndNeighbours(t *testing.T) {
	cells := SearchCells(10.7725, 106.6980, 6)
	if len(cells) != 9 {
		t.Fatalf("expected 9 cells, got %d", len(cells))
	}
	seen := make(map[string]bool)
	for _, c := range cells {
		if seen[c] {
			t.Errorf("duplicate cell %s", c)
		}
		seen[c] = true
	}
	if cells[0] != Cell(10.7725, 106.6980, 6) {
		t.Errorf("first cell should be the centre cell")
	}
}

func TestETAMinutes(t *testing.T) {
	if got := ETAMinutes(10, 30, 2); got != 20 {
		t.Errorf("expected 20, got %d", got)
	}
	if got := ETAMinutes(0.1, 30, 2); got != 2 {
		t.Errorf("expected floor of 2, got %d", got)
	}
	if got := ETAMinutes(1, 25, 2); got != 3 {
		t.Errorf("expected 3 (2.4 rounded up), got %d", got)
	}
}

func TestSortByDistance_Stable(t *testing.T) {
	type item struct {
		id   string
		dist float64
	}
	items := []item{{"c", 3}, {"a", 1}, {"b1", 2}, {"b2", 2}}
	SortByDistance(items, func(i item) float64 { return i.dist })

	want := []string{"a", "b1", "b2", "c"}
	for i, it := range items {
		if it.id != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, it.id, want[i])
		}
	}
}
