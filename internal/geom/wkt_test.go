package geom

import "testing"

const squareWKT = "POLYGON((0 0, 10 0, 10 10, 0 10, 0 0))"

func TestParseWKTPolygon(t *testing.T) {
	mp, err := ParseWKT(squareWKT)
	if err != nil {
		t.Fatalf("ParseWKT: %v", err)
	}
	if len(mp) != 1 {
		t.Fatalf("expected 1 polygon, got %d", len(mp))
	}
	if len(mp[0].Outer) != 5 {
		t.Fatalf("expected 5 ring points, got %d", len(mp[0].Outer))
	}
}

func TestParseWKTMultiPolygon(t *testing.T) {
	wkt := "MULTIPOLYGON(((0 0, 1 0, 1 1, 0 1, 0 0)), ((5 5, 6 5, 6 6, 5 6, 5 5)))"
	mp, err := ParseWKT(wkt)
	if err != nil {
		t.Fatalf("ParseWKT: %v", err)
	}
	if len(mp) != 2 {
		t.Fatalf("expected 2 polygons, got %d", len(mp))
	}
	if !mp.Contains(Point{X: 0.5, Y: 0.5}) {
		t.Fatal("point in first polygon not contained")
	}
	if !mp.Contains(Point{X: 5.5, Y: 5.5}) {
		t.Fatal("point in second polygon not contained")
	}
	if mp.Contains(Point{X: 3, Y: 3}) {
		t.Fatal("point between polygons reported contained")
	}
}

func TestParseWKTWithSRID(t *testing.T) {
	mp, err := ParseWKT("SRID=4326;" + squareWKT)
	if err != nil {
		t.Fatalf("ParseWKT with SRID: %v", err)
	}
	if !mp.Contains(Point{X: 5, Y: 5}) {
		t.Fatal("center point not contained")
	}
}

func TestParseWKTRejectsOtherTypes(t *testing.T) {
	for _, wkt := range []string{
		"POINT(1 2)",
		"LINESTRING(0 0, 1 1)",
		"POLYGON((0 0, 1 1))",
		"POLYGON(0 0, 1 1, 2 2, 0 0)",
		"",
	} {
		if _, err := ParseWKT(wkt); err == nil {
			t.Errorf("expected error for %q", wkt)
		}
	}
}

func TestContainsWithHole(t *testing.T) {
	wkt := "POLYGON((0 0, 10 0, 10 10, 0 10, 0 0), (4 4, 6 4, 6 6, 4 6, 4 4))"
	mp, err := ParseWKT(wkt)
	if err != nil {
		t.Fatalf("ParseWKT: %v", err)
	}
	if mp.Contains(Point{X: 5, Y: 5}) {
		t.Fatal("point inside hole reported contained")
	}
	if !mp.Contains(Point{X: 2, Y: 2}) {
		t.Fatal("point outside hole not contained")
	}
}

func TestContainsBoundary(t *testing.T) {
	mp, err := ParseWKT(squareWKT)
	if err != nil {
		t.Fatalf("ParseWKT: %v", err)
	}
	cases := []struct {
		name string
		p    Point
		want bool
	}{
		{"edge", Point{X: 0, Y: 5}, true},
		{"vertex", Point{X: 10, Y: 10}, true},
		{"just outside", Point{X: 10.001, Y: 5}, false},
		{"inside", Point{X: 9.999, Y: 9.999}, true},
	}
	for _, tc := range cases {
		if got := mp.Contains(tc.p); got != tc.want {
			t.Errorf("%s: Contains(%v) = %v, want %v", tc.name, tc.p, got, tc.want)
		}
	}
}

func TestBounds(t *testing.T) {
	mp, err := ParseWKT("MULTIPOLYGON(((1 2, 3 2, 3 8, 1 8, 1 2)), ((-4 0, 0 0, 0 1, -4 1, -4 0)))")
	if err != nil {
		t.Fatalf("ParseWKT: %v", err)
	}
	minX, minY, maxX, maxY := mp.Bounds()
	if minX != -4 || minY != 0 || maxX != 3 || maxY != 8 {
		t.Fatalf("Bounds = (%v %v %v %v), want (-4 0 3 8)", minX, minY, maxX, maxY)
	}
}

func TestParseWKTRealisticSection(t *testing.T) {
	// Shape roughly around Tarragona city center.
	wkt := "POLYGON((1.24 41.11, 1.26 41.11, 1.26 41.13, 1.24 41.13, 1.24 41.11))"
	mp, err := ParseWKT(wkt)
	if err != nil {
		t.Fatalf("ParseWKT: %v", err)
	}
	if !mp.Contains(Point{X: 1.25, Y: 41.12}) {
		t.Fatal("city center point not contained")
	}
	if mp.Contains(Point{X: 2.17, Y: 41.39}) {
		t.Fatal("Barcelona point reported inside Tarragona section")
	}
}
