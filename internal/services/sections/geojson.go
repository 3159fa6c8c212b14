package sections

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/civicmap/civicmap/internal/domain/geo"
)

// ImportStats summarizes one GeoJSON import run.
type ImportStats struct {
	Districts int
	Sections  int
	Skipped   int
}

type geoJSONFile struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Geometry   struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
}

// ImportGeoJSON loads census sections from a GeoJSON FeatureCollection.
// Features without a recognizable district and section code are skipped.
func (s *Service) ImportGeoJSON(ctx context.Context, r io.Reader) (ImportStats, error) {
	var file geoJSONFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return ImportStats{}, fmt.Errorf("decode geojson: %w", err)
	}
	if file.Type != "FeatureCollection" {
		return ImportStats{}, fmt.Errorf("expected FeatureCollection, got %q", file.Type)
	}

	stats := ImportStats{}
	seenDistricts := make(map[string]string) // code -> id

	for _, feat := range file.Features {
		districtCode := propString(feat.Properties, "district_code", "CDIS", "cdis", "DIS")
		sectionCode := propString(feat.Properties, "section_code", "CSEC", "csec", "SEC")
		if districtCode == "" || sectionCode == "" {
			stats.Skipped++
			continue
		}

		wkt, err := geometryToWKT(feat.Geometry.Type, feat.Geometry.Coordinates)
		if err != nil {
			s.log.WithError(err).
				WithField("district", districtCode).
				WithField("section", sectionCode).
				Warn("skipping feature with bad geometry")
			stats.Skipped++
			continue
		}

		districtID, ok := seenDistricts[districtCode]
		if !ok {
			d, err := s.store.UpsertDistrict(ctx, geo.District{
				Code: districtCode,
				Name: propString(feat.Properties, "district_name", "NDIS"),
			})
			if err != nil {
				return stats, fmt.Errorf("upsert district %s: %w", districtCode, err)
			}
			districtID = d.ID
			seenDistricts[districtCode] = districtID
			stats.Districts++
		}

		if _, err := s.store.UpsertSection(ctx, geo.Section{
			DistrictID:   districtID,
			DistrictCode: districtCode,
			Code:         sectionCode,
			Name:         propString(feat.Properties, "section_name", "NSEC"),
			Geometry:     wkt,
		}); err != nil {
			return stats, fmt.Errorf("upsert section %s-%s: %w", districtCode, sectionCode, err)
		}
		stats.Sections++
	}

	s.InvalidateCache()
	s.log.WithFields(map[string]interface{}{
		"districts": stats.Districts,
		"sections":  stats.Sections,
		"skipped":   stats.Skipped,
	}).Info("geojson import finished")
	return stats, nil
}

// propString returns the first non-empty property under any of the keys,
// stringifying numeric codes.
func propString(props map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := props[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if trimmed := strings.TrimSpace(t); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}

// geometryToWKT converts GeoJSON Polygon or MultiPolygon coordinates into
// WKT text.
func geometryToWKT(geomType string, raw json.RawMessage) (string, error) {
	switch geomType {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(raw, &rings); err != nil {
			return "", fmt.Errorf("polygon coordinates: %w", err)
		}
		body, err := ringsToWKT(rings)
		if err != nil {
			return "", err
		}
		return "POLYGON" + body, nil
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(raw, &polys); err != nil {
			return "", fmt.Errorf("multipolygon coordinates: %w", err)
		}
		parts := make([]string, 0, len(polys))
		for _, rings := range polys {
			body, err := ringsToWKT(rings)
			if err != nil {
				return "", err
			}
			parts = append(parts, body)
		}
		return "MULTIPOLYGON(" + strings.Join(parts, ", ") + ")", nil
	default:
		return "", fmt.Errorf("unsupported geometry type %q", geomType)
	}
}

// ringsToWKT accepts positions with trailing dimensions (altitude) and keeps
// only longitude and latitude.
func ringsToWKT(rings [][][]float64) (string, error) {
	ringParts := make([]string, 0, len(rings))
	for _, ring := range rings {
		coords := make([]string, 0, len(ring))
		for _, pt := range ring {
			if len(pt) < 2 {
				return "", fmt.Errorf("position with %d ordinates", len(pt))
			}
			coords = append(coords, strconv.FormatFloat(pt[0], 'f', -1, 64)+" "+strconv.FormatFloat(pt[1], 'f', -1, 64))
		}
		ringParts = append(ringParts, "("+strings.Join(coords, ", ")+")")
	}
	return "(" + strings.Join(ringParts, ", ") + ")", nil
}
