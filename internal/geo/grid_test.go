package geo

import (
	"testing"

	"github.com/spotmeet/spotmeet/internal/model"
)

func TestCellID_Deterministic(t *testing.T) {
	coords := [][2]float64{
		{37.563, 127.013},
		{0, 0},
		{-33.8688, 151.2093},
		{37.5615, 127.0131}, // exact lat cell boundary
	}
	for _, c := range coords {
		first := CellID(c[0], c[1])
		for i := 0; i < 100; i++ {
			if got := CellID(c[0], c[1]); got != first {
				t.Fatalf("CellID(%v, %v) unstable: %q vs %q", c[0], c[1], got, first)
			}
		}
	}
}

func TestCellID_AdjacentCellsDiffer(t *testing.T) {
	lat, lng := 37.563, 127.013
	if CellID(lat, lng) == CellID(lat+LatStep, lng) {
		t.Fatal("north neighbour shares cell id")
	}
	if CellID(lat, lng) == CellID(lat, lng+LngStep) {
		t.Fatal("east neighbour shares cell id")
	}
}

func TestCellIDsForBBox_CoversContainedPoints(t *testing.T) {
	box := model.BBox{SWLat: 37.563, SWLng: 127.013, NELat: 37.567, NELng: 127.017}
	cells := CellIDsForBBox(box)
	if len(cells) == 0 {
		t.Fatal("no cells for non-empty box")
	}
	cellSet := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		cellSet[c] = struct{}{}
	}

	// Sample a lattice of points inside the box; every one must fall in a
	// returned cell.
	const n = 20
	for i := 0; i <= n; i++ {
		for j := 0; j <= n; j++ {
			lat := box.SWLat + (box.NELat-box.SWLat)*float64(i)/n
			lng := box.SWLng + (box.NELng-box.SWLng)*float64(j)/n
			if !InArea(box, lat, lng) {
				t.Fatalf("lattice point (%v,%v) not in area", lat, lng)
			}
			if _, ok := cellSet[CellID(lat, lng)]; !ok {
				t.Fatalf("point (%v,%v) in box but cell %s not returned", lat, lng, CellID(lat, lng))
			}
		}
	}
}

func TestCellIDsForBBox_DegeneratePointBox(t *testing.T) {
	box := model.BBox{SWLat: 37.563, SWLng: 127.013, NELat: 37.563, NELng: 127.013}
	cells := CellIDsForBBox(box)
	if len(cells) != 1 {
		t.Fatalf("degenerate box cells = %v, want exactly one", cells)
	}
	if cells[0] != CellID(37.563, 127.013) {
		t.Fatalf("degenerate box cell = %q, want %q", cells[0], CellID(37.563, 127.013))
	}
}

func TestCellIDsForBBox_InvertedBoxIsEmpty(t *testing.T) {
	if cells := CellIDsForBBox(model.BBox{SWLat: 37.6, SWLng: 127.0, NELat: 37.5, NELng: 127.1}); len(cells) != 0 {
		t.Fatalf("inverted lat box yielded %v", cells)
	}
	if cells := CellIDsForBBox(model.BBox{SWLat: 37.5, SWLng: 127.2, NELat: 37.6, NELng: 127.1}); len(cells) != 0 {
		t.Fatalf("inverted lng box yielded %v", cells)
	}

	// both corners floor into the same cell; still inverted, still empty
	if cells := CellIDsForBBox(model.BBox{SWLat: 37.5646, SWLng: 127.013, NELat: 37.5644, NELng: 127.013}); len(cells) != 0 {
		t.Fatalf("same-cell inverted box yielded %v", cells)
	}
	if cells := CellIDsForBBox(model.BBox{SWLat: 37.563, SWLng: 127.0155, NELat: 37.563, NELng: 127.0152}); len(cells) != 0 {
		t.Fatalf("same-cell inverted lng box yielded %v", cells)
	}
}

func TestCellIDsForBBox_NoDuplicates(t *testing.T) {
	cells := CellIDsForBBox(model.BBox{SWLat: 37.55, SWLng: 127.00, NELat: 37.58, NELng: 127.03})
	seen := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		if _, dup := seen[c]; dup {
			t.Fatalf("duplicate cell %s", c)
		}
		seen[c] = struct{}{}
	}
}

func TestInArea_InclusiveBoundsWithEpsilon(t *testing.T) {
	box := model.BBox{SWLat: 37.563, SWLng: 127.013, NELat: 37.567, NELng: 127.017}

	cases := []struct {
		name     string
		lat, lng float64
		want     bool
	}{
		{"interior", 37.565, 127.015, true},
		{"exact sw corner", 37.563, 127.013, true},
		{"exact ne corner", 37.567, 127.017, true},
		{"just inside epsilon below swLat", 37.563 - 5e-10, 127.015, true},
		{"well outside south", 37.5629, 127.015, false},
		{"well outside east", 37.565, 127.0171, false},
	}
	for _, tc := range cases {
		if got := InArea(box, tc.lat, tc.lng); got != tc.want {
			t.Errorf("%s: InArea = %v, want %v", tc.name, got, tc.want)
		}
	}
}
