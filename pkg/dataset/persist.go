package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"

	"github.com/hazyhaar/swiss-bandmap/pkg/gig"
)

// Artifact file names inside an output directory.
const (
	FileGigs         = "gigs.json"
	FileMunicipality = "municipality_gigs.json"
	FileGeo          = "geo.json"
	FileMetadata     = "metadata.json"
	FileUnmatched    = "unmatched_locations.json"
)

// Save writes the dataset artifacts into dir. Every artifact is encoded
// before anything touches the disk, then each one replaces its predecessor
// through a rename, so readers see either the old file or the new one.
func Save(dir string, ds *Dataset) error {
	if ds == nil {
		return errors.New("nil dataset")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	geo := ds.Geo
	if geo == nil {
		geo = geojson.NewFeatureCollection()
	}
	events := ds.Events
	if events == nil {
		events = []gig.Event{}
	}
	grouped := ds.Municipalities
	if grouped == nil {
		grouped = newMunicipalities()
	}
	unmatched := ds.Unmatched
	if unmatched == nil {
		unmatched = []string{}
	}

	blobs := []struct {
		name string
		v    any
	}{
		{FileGigs, events},
		{FileMunicipality, grouped},
		{FileGeo, geo},
		{FileMetadata, ds.Metadata},
		{FileUnmatched, unmatched},
	}
	encoded := make([][]byte, len(blobs))
	for i, b := range blobs {
		data, err := json.MarshalIndent(b.v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", b.name, err)
		}
		encoded[i] = data
	}

	for i, b := range blobs {
		if err := writeFileAtomic(filepath.Join(dir, b.name), encoded[i]); err != nil {
			return fmt.Errorf("write %s: %w", b.name, err)
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads a dataset previously written by Save. The unmatched list is
// optional.
func Load(dir string) (*Dataset, error) {
	ds := &Dataset{Municipalities: newMunicipalities()}

	if err := readJSON(filepath.Join(dir, FileGigs), &ds.Events); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, FileMunicipality), ds.Municipalities); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, FileMetadata), &ds.Metadata); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, FileGeo))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", FileGeo, err)
	}
	ds.Geo, err = geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", FileGeo, err)
	}

	err = readJSON(filepath.Join(dir, FileUnmatched), &ds.Unmatched)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return ds, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
