package sections

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/civicmap/civicmap/internal/domain/geo"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/internal/storage/memory"
)

// A unit square around the origin, in WKT.
const unitSquare = "POLYGON((0 0, 1 0, 1 1, 0 1, 0 0))"

func seedSection(t *testing.T, store *memory.Store, districtCode, code, wkt string) geo.Section {
	t.Helper()
	d, err := store.UpsertDistrict(context.Background(), geo.District{Code: districtCode, Name: "Districte " + districtCode})
	if err != nil {
		t.Fatalf("upsert district: %v", err)
	}
	sec, err := store.UpsertSection(context.Background(), geo.Section{
		DistrictID:   d.ID,
		DistrictCode: d.Code,
		Code:         code,
		Geometry:     wkt,
	})
	if err != nil {
		t.Fatalf("upsert section: %v", err)
	}
	return sec
}

func TestLocateFallsBackToInProcess(t *testing.T) {
	store := memory.New()
	want := seedSection(t, store, "01", "001", unitSquare)

	svc := New(store, Bounds{}, nil)
	match, err := svc.Locate(context.Background(), 0.5, 0.5)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if match.Section.ID != want.ID {
		t.Fatalf("wrong section: %s", match.Section.ID)
	}
	// The memory backend has no spatial query, so the lookup must come from
	// the in-process evaluator.
	if match.Method != geo.MethodInProcess {
		t.Fatalf("unexpected method: %s", match.Method)
	}
}

func TestLocateOutsideEverySection(t *testing.T) {
	store := memory.New()
	seedSection(t, store, "01", "001", unitSquare)

	svc := New(store, Bounds{}, nil)
	_, err := svc.Locate(context.Background(), 5, 5)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWithinBoundaryUsesFallbackBoxWithoutSections(t *testing.T) {
	svc := New(memory.New(), Bounds{MinLat: 40, MaxLat: 42, MinLng: 0, MaxLng: 2}, nil)

	inside, err := svc.WithinBoundary(context.Background(), 41.1, 1.2)
	if err != nil {
		t.Fatalf("within boundary: %v", err)
	}
	if !inside {
		t.Fatal("expected coordinate inside fallback box")
	}

	inside, err = svc.WithinBoundary(context.Background(), 48.8, 2.3)
	if err != nil {
		t.Fatalf("within boundary: %v", err)
	}
	if inside {
		t.Fatal("expected coordinate outside fallback box")
	}
}

func TestWithinBoundaryUsesSectionsWhenImported(t *testing.T) {
	store := memory.New()
	seedSection(t, store, "01", "001", unitSquare)

	// The fallback box would accept both points; the imported geometry must
	// take precedence.
	svc := New(store, Bounds{MinLat: -90, MaxLat: 90, MinLng: -180, MaxLng: 180}, nil)

	inside, err := svc.WithinBoundary(context.Background(), 0.5, 0.5)
	if err != nil {
		t.Fatalf("within boundary: %v", err)
	}
	if !inside {
		t.Fatal("expected point inside section")
	}

	inside, err = svc.WithinBoundary(context.Background(), 30, 30)
	if err != nil {
		t.Fatalf("within boundary: %v", err)
	}
	if inside {
		t.Fatal("expected point outside every section")
	}
}

func TestAssignRecordsMethod(t *testing.T) {
	store := memory.New()
	sec := seedSection(t, store, "01", "001", unitSquare)

	svc := New(store, Bounds{}, nil)
	match, err := svc.Locate(context.Background(), 0.2, 0.2)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if err := svc.Assign(context.Background(), "item-1", match); err != nil {
		t.Fatalf("assign: %v", err)
	}

	a, err := store.GetAssignment(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if a.SectionID != sec.ID || a.Method != geo.MethodInProcess {
		t.Fatalf("unexpected assignment: %+v", a)
	}
}

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"CDIS": "01", "CSEC": "001"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[1.24, 41.11], [1.26, 41.11], [1.26, 41.13], [1.24, 41.13], [1.24, 41.11]]]
      }
    },
    {
      "type": "Feature",
      "properties": {"CDIS": "01", "CSEC": "002"},
      "geometry": {
        "type": "MultiPolygon",
        "coordinates": [[[[1.26, 41.11], [1.28, 41.11], [1.28, 41.13], [1.26, 41.13], [1.26, 41.11]]]]
      }
    },
    {
      "type": "Feature",
      "properties": {"CSEC": "999"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[0, 0], [1, 0], [1, 1], [0, 1], [0, 0]]]
      }
    }
  ]
}`

func TestImportGeoJSON(t *testing.T) {
	store := memory.New()
	svc := New(store, Bounds{}, nil)

	stats, err := svc.ImportGeoJSON(context.Background(), strings.NewReader(sampleGeoJSON))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if stats.Districts != 1 {
		t.Fatalf("districts: %d", stats.Districts)
	}
	if stats.Sections != 2 {
		t.Fatalf("sections: %d", stats.Sections)
	}
	if stats.Skipped != 1 {
		t.Fatalf("skipped: %d", stats.Skipped)
	}

	match, err := svc.Locate(context.Background(), 41.12, 1.25)
	if err != nil {
		t.Fatalf("locate after import: %v", err)
	}
	if match.Section.Code != "001" {
		t.Fatalf("wrong section: %s", match.Section.Code)
	}

	match, err = svc.Locate(context.Background(), 41.12, 1.27)
	if err != nil {
		t.Fatalf("locate in multipolygon section: %v", err)
	}
	if match.Section.Code != "002" {
		t.Fatalf("wrong section: %s", match.Section.Code)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	store := memory.New()
	svc := New(store, Bounds{}, nil)

	if _, err := svc.ImportGeoJSON(context.Background(), strings.NewReader(sampleGeoJSON)); err != nil {
		t.Fatalf("first import: %v", err)
	}
	if _, err := svc.ImportGeoJSON(context.Background(), strings.NewReader(sampleGeoJSON)); err != nil {
		t.Fatalf("second import: %v", err)
	}

	sectionList, err := store.ListSections(context.Background())
	if err != nil {
		t.Fatalf("list sections: %v", err)
	}
	if len(sectionList) != 2 {
		t.Fatalf("sections duplicated on reimport: %d", len(sectionList))
	}
}
