package gazetteer

import (
	"archive/zip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

const testGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "properties": {"gemeinde.NAME": "Zürich", "kanton.KUERZEL": "ZH", "kanton.NAME": "Zürich", "gemeinde.BFS_NUMMER": 261},
     "geometry": {"type": "Polygon", "coordinates": [[[8.45,47.32],[8.62,47.32],[8.62,47.43],[8.45,47.43],[8.45,47.32]]]}},
    {"type": "Feature",
     "properties": {"NAME": "Basel", "KANTON": "BS", "KANTON_NAME": "Basel-Stadt", "BFS_NUMMER": 2701},
     "geometry": {"type": "Polygon", "coordinates": [[[7.55,47.52],[7.63,47.52],[7.63,47.59],[7.55,47.59],[7.55,47.52]]]}},
    {"type": "Feature",
     "properties": {"name": "Bern"},
     "geometry": null},
    {"type": "Feature",
     "properties": {"see": "Zürichsee"},
     "geometry": null}
  ]
}`

func writeGeo(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestNewIndex_SortedAndCached(t *testing.T) {
	x := NewIndex([]Municipality{
		{Name: "Zürich"}, {Name: "Basel"}, {Name: "Bern"}, {Name: "Basel"},
	}, nil)

	names := x.Names()
	want := []string{"Basel", "Bern", "Zürich"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	m, ok := x.Record("Zürich")
	if !ok {
		t.Fatal("expected record for Zürich")
	}
	if m.NormalizedName() != "zrich" {
		t.Errorf("normalized = %q, want zrich", m.NormalizedName())
	}

	byKey, ok := x.RecordByNormalizedName("zrich")
	if !ok || byKey != m {
		t.Errorf("RecordByNormalizedName(zrich) = %v, %v; want the Zürich record", byKey, ok)
	}
	if _, ok := x.RecordByNormalizedName("geneva"); ok {
		t.Error("unexpected record for geneva")
	}
}

func TestNewIndex_CustomNormalizer(t *testing.T) {
	x := NewIndex([]Municipality{{Name: "Zürich"}}, NormalizeAlnumFold)
	if _, ok := x.RecordByNormalizedName("zurich"); !ok {
		t.Error("expected folded key zurich")
	}
	if got, ok := x.Match("Zurich Hallenstadion"); !ok || got != "Zürich" {
		t.Errorf("Match = %q, %v; want Zürich", got, ok)
	}
}

func TestLoad_PropertyKeyFallbacks(t *testing.T) {
	path := writeGeo(t, t.TempDir(), "gemeinden.geojson", testGeoJSON)

	x, err := Load(context.Background(), []string{path}, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if x.Len() != 3 {
		t.Fatalf("Len = %d, want 3 (unnamed feature skipped)", x.Len())
	}
	if x.Source() != path {
		t.Errorf("Source = %q, want %q", x.Source(), path)
	}

	zh, _ := x.Record("Zürich")
	if zh.CantonCode != "ZH" || zh.CantonName != "Zürich" || zh.BFSNumber != "261" {
		t.Errorf("Zürich metadata = %+v", zh)
	}
	if zh.Geometry == nil {
		t.Error("Zürich geometry missing")
	}
	if zh.Properties["gemeinde.NAME"] != "Zürich" {
		t.Errorf("properties not kept: %v", zh.Properties)
	}

	bs, _ := x.Record("Basel")
	if bs.CantonCode != "BS" || bs.CantonName != "Basel-Stadt" || bs.BFSNumber != "2701" {
		t.Errorf("Basel metadata = %+v", bs)
	}

	be, ok := x.Record("Bern")
	if !ok || be.Geometry != nil {
		t.Errorf("Bern = %+v, %v; want record with nil geometry", be, ok)
	}
}

func TestLoad_CustomKeys(t *testing.T) {
	path := writeGeo(t, t.TempDir(), "lakes.geojson", testGeoJSON)

	x, err := Load(context.Background(), []string{path}, Options{Keys: PropertyKeys{Name: []string{"see"}}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if x.Len() != 1 || x.Names()[0] != "Zürichsee" {
		t.Errorf("names = %v, want [Zürichsee]", x.Names())
	}
}

func TestLoad_FallsBackToNextCandidate(t *testing.T) {
	dir := t.TempDir()
	broken := writeGeo(t, dir, "broken.geojson", `{"type": "FeatureCollection", "features": [`)
	unnamed := writeGeo(t, dir, "unnamed.geojson", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":null}]}`)
	good := writeGeo(t, dir, "geo.json", testGeoJSON)

	x, err := Load(context.Background(), []string{
		filepath.Join(dir, "missing.geojson"), broken, unnamed, "", good,
	}, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if x.Source() != good {
		t.Errorf("Source = %q, want %q", x.Source(), good)
	}
}

func TestLoad_DataUnavailable(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(context.Background(), []string{
		filepath.Join(dir, "a.geojson"), filepath.Join(dir, "b.geojson"),
	}, Options{})
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}

	_, err = Load(context.Background(), nil, Options{})
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("no candidates: err = %v, want ErrDataUnavailable", err)
	}
}

func TestLoad_URLAndZip(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "gemeinden.zip")
	zf, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(zf)
	if w, err := zw.Create("README.txt"); err == nil {
		w.Write([]byte("swissBOUNDARIES3D extract"))
	}
	w, err := zw.Create("data/gemeinden.geojson")
	if err != nil {
		t.Fatalf("zip entry: %v", err)
	}
	w.Write([]byte(testGeoJSON))
	zw.Close()
	zf.Close()

	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		http.ServeFile(w, r, zipPath)
	}))
	defer ts.Close()

	x, err := Load(context.Background(), []string{ts.URL + "/gemeinden.zip?v=2024"}, Options{Backoff: 1})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if x.Len() != 3 {
		t.Errorf("Len = %d, want 3", x.Len())
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestLoad_Latin1Source(t *testing.T) {
	// "Zürich" with ü as the single byte 0xFC.
	latin1 := "{\"type\":\"FeatureCollection\",\"features\":[{\"type\":\"Feature\",\"properties\":{\"NAME\":\"Z\xfcrich\"},\"geometry\":null}]}"
	path := writeGeo(t, t.TempDir(), "latin1.geojson", latin1)

	x, err := Load(context.Background(), []string{path}, Options{Encoding: "iso-8859-1"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := x.Record("Zürich"); !ok {
		t.Errorf("names = %v, want Zürich decoded", x.Names())
	}
}

func TestLoad_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, []string{"whatever.geojson"}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
