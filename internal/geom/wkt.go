// Package geom parses the WKT polygon subset stored for census sections and
// answers point-in-polygon queries in process. It backs section assignment
// when the database cannot run spatial queries itself.
package geom

import (
	"fmt"
	"strconv"
	"strings"
)

// Point is a WGS84 coordinate. X is longitude, Y is latitude, matching WKT
// axis order.
type Point struct {
	X float64
	Y float64
}

// Ring is a closed linear ring of coordinates.
type Ring []Point

// Polygon is an outer ring plus optional holes.
type Polygon struct {
	Outer Ring
	Holes []Ring
}

// MultiPolygon is a collection of polygons.
type MultiPolygon []Polygon

// ParseWKT accepts POLYGON and MULTIPOLYGON text, case-insensitive, with
// optional SRID prefix. Other geometry types are rejected.
func ParseWKT(wkt string) (MultiPolygon, error) {
	s := strings.TrimSpace(wkt)
	if idx := strings.Index(s, ";"); idx >= 0 && strings.HasPrefix(strings.ToUpper(s), "SRID=") {
		s = strings.TrimSpace(s[idx+1:])
	}

	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "MULTIPOLYGON"):
		body, err := parens(s[len("MULTIPOLYGON"):])
		if err != nil {
			return nil, err
		}
		return parseMultiPolygonBody(body)
	case strings.HasPrefix(upper, "POLYGON"):
		body, err := parens(s[len("POLYGON"):])
		if err != nil {
			return nil, err
		}
		poly, err := parsePolygonBody(body)
		if err != nil {
			return nil, err
		}
		return MultiPolygon{poly}, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type in %q", truncate(s, 32))
	}
}

// Contains reports whether the point lies inside any polygon of the
// collection. Points on an edge count as inside.
func (mp MultiPolygon) Contains(p Point) bool {
	for _, poly := range mp {
		if poly.Contains(p) {
			return true
		}
	}
	return false
}

// Contains reports whether the point lies inside the outer ring and outside
// every hole.
func (poly Polygon) Contains(p Point) bool {
	if !poly.Outer.contains(p) {
		return false
	}
	for _, hole := range poly.Holes {
		if hole.contains(p) {
			return false
		}
	}
	return true
}

// Bounds returns the bounding box of the collection as minX, minY, maxX,
// maxY. An empty collection returns all zeros.
func (mp MultiPolygon) Bounds() (minX, minY, maxX, maxY float64) {
	first := true
	for _, poly := range mp {
		for _, pt := range poly.Outer {
			if first {
				minX, maxX = pt.X, pt.X
				minY, maxY = pt.Y, pt.Y
				first = false
				continue
			}
			if pt.X < minX {
				minX = pt.X
			}
			if pt.X > maxX {
				maxX = pt.X
			}
			if pt.Y < minY {
				minY = pt.Y
			}
			if pt.Y > maxY {
				maxY = pt.Y
			}
		}
	}
	return minX, minY, maxX, maxY
}

// contains runs the even-odd ray casting test, with an explicit edge check
// so boundary points are not dropped by floating point luck.
func (r Ring) contains(p Point) bool {
	n := len(r)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		a, b := r[i], r[j]
		if onSegment(p, a, b) {
			return true
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

const segmentEpsilon = 1e-12

func onSegment(p, a, b Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if cross > segmentEpsilon || cross < -segmentEpsilon {
		return false
	}
	dot := (p.X-a.X)*(b.X-a.X) + (p.Y-a.Y)*(b.Y-a.Y)
	if dot < 0 {
		return false
	}
	lenSq := (b.X-a.X)*(b.X-a.X) + (b.Y-a.Y)*(b.Y-a.Y)
	return dot <= lenSq
}

func parseMultiPolygonBody(body string) (MultiPolygon, error) {
	groups, err := splitGroups(body)
	if err != nil {
		return nil, err
	}
	mp := make(MultiPolygon, 0, len(groups))
	for _, g := range groups {
		inner, err := parens(g)
		if err != nil {
			return nil, err
		}
		poly, err := parsePolygonBody(inner)
		if err != nil {
			return nil, err
		}
		mp = append(mp, poly)
	}
	return mp, nil
}

func parsePolygonBody(body string) (Polygon, error) {
	groups, err := splitGroups(body)
	if err != nil {
		return Polygon{}, err
	}
	if len(groups) == 0 {
		return Polygon{}, fmt.Errorf("polygon without rings")
	}
	var poly Polygon
	for i, g := range groups {
		inner, err := parens(g)
		if err != nil {
			return Polygon{}, err
		}
		ring, err := parseRing(inner)
		if err != nil {
			return Polygon{}, err
		}
		if i == 0 {
			poly.Outer = ring
		} else {
			poly.Holes = append(poly.Holes, ring)
		}
	}
	return poly, nil
}

func parseRing(body string) (Ring, error) {
	pairs := strings.Split(body, ",")
	ring := make(Ring, 0, len(pairs))
	for _, pair := range pairs {
		fields := strings.Fields(strings.TrimSpace(pair))
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed coordinate %q", truncate(pair, 32))
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse longitude %q: %w", fields[0], err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse latitude %q: %w", fields[1], err)
		}
		ring = append(ring, Point{X: x, Y: y})
	}
	if len(ring) < 4 {
		return nil, fmt.Errorf("ring needs at least 4 points, got %d", len(ring))
	}
	return ring, nil
}

// parens strips one outer level of parentheses, validating balance.
func parens(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return "", fmt.Errorf("expected parenthesized group, got %q", truncate(s, 32))
	}
	return s[1 : len(s)-1], nil
}

// splitGroups splits "(...),(...)" at depth zero commas.
func splitGroups(s string) ([]string, error) {
	var groups []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
		case ',':
			if depth == 0 {
				groups = append(groups, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses")
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" {
		groups = append(groups, tail)
	}
	return groups, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
