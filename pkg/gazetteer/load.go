package gazetteer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ErrDataUnavailable is returned by Load when no candidate source could be read.
var ErrDataUnavailable = errors.New("geography data unavailable")

// PropertyKeys lists, per logical field, the feature property keys to try in
// priority order. Different extracts of the Swiss boundaries spell them
// differently.
type PropertyKeys struct {
	Name       []string `yaml:"name_keys"`
	CantonCode []string `yaml:"canton_code_keys"`
	CantonName []string `yaml:"canton_name_keys"`
	BFSNumber  []string `yaml:"bfs_keys"`
}

// DefaultPropertyKeys returns the key variants found in swisstopo exports and
// in datasets previously written by this tool.
func DefaultPropertyKeys() PropertyKeys {
	return PropertyKeys{
		Name:       []string{"gemeinde.NAME", "NAME", "name"},
		CantonCode: []string{"kanton.KUERZEL", "KANTON"},
		CantonName: []string{"kanton.NAME", "KANTON_NAME"},
		BFSNumber:  []string{"gemeinde.BFS_NUMMER", "BFS_NUMMER"},
	}
}

func (k PropertyKeys) withDefaults() PropertyKeys {
	def := DefaultPropertyKeys()
	if len(k.Name) == 0 {
		k.Name = def.Name
	}
	if len(k.CantonCode) == 0 {
		k.CantonCode = def.CantonCode
	}
	if len(k.CantonName) == 0 {
		k.CantonName = def.CantonName
	}
	if len(k.BFSNumber) == 0 {
		k.BFSNumber = def.BFSNumber
	}
	return k
}

// Options controls how geography sources are read.
type Options struct {
	Keys      PropertyKeys
	Normalize Normalizer
	// Encoding of the source files when not UTF-8 (e.g. "iso-8859-1").
	Encoding string
	// HTTPClient is used for http(s) candidates. Nil uses a client with a
	// ten minute timeout.
	HTTPClient *http.Client
	// Backoff is the initial delay between download attempts.
	Backoff time.Duration
	Logger  *slog.Logger
}

// Load reads the first usable geography source among candidates and builds
// the municipality index. A candidate is a file path or an http(s) URL;
// ".zip" archives are searched for the first GeoJSON file. Candidates that are
// missing, unreadable or contain no named feature are skipped. When all of
// them fail the error wraps ErrDataUnavailable.
func Load(ctx context.Context, candidates []string, opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var tried []string
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		tried = append(tried, c)

		fc, err := readCandidate(ctx, c, opts)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Debug("geography source not found", "source", c)
			} else {
				logger.Warn("geography source unreadable", "source", c, "error", err)
			}
			continue
		}

		x, err := FromFeatureCollection(fc, opts)
		if err != nil {
			logger.Warn("geography source unusable", "source", c, "error", err)
			continue
		}
		x.source = c
		logger.Info("geography loaded", "source", c, "features", len(fc.Features), "municipalities", x.Len())
		return x, nil
	}
	return nil, fmt.Errorf("%w: tried %v", ErrDataUnavailable, tried)
}

// FromFeatureCollection builds an index from decoded GeoJSON features.
// Features without a name under any of the configured keys are ignored.
func FromFeatureCollection(fc *geojson.FeatureCollection, opts Options) (*Index, error) {
	keys := opts.Keys.withDefaults()

	records := make([]Municipality, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		props := map[string]any(f.Properties)
		name := pickProperty(props, keys.Name)
		if name == "" {
			continue
		}
		records = append(records, Municipality{
			Name:       name,
			CantonCode: pickProperty(props, keys.CantonCode),
			CantonName: pickProperty(props, keys.CantonName),
			BFSNumber:  pickProperty(props, keys.BFSNumber),
			Properties: props,
			Geometry:   f.Geometry,
		})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no named feature among %d (keys %v)", len(fc.Features), keys.Name)
	}
	return NewIndex(records, opts.Normalize), nil
}

// Source returns the candidate the index was loaded from, if any.
func (x *Index) Source() string {
	return x.source
}

// pickProperty returns the first non-empty value among keys, as text.
func pickProperty(props map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			if v != 0 {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		case bool:
			if v {
				return "true"
			}
		case nil:
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func readCandidate(ctx context.Context, candidate string, opts Options) (*geojson.FeatureCollection, error) {
	path := candidate
	if isURL(candidate) {
		dlDir, err := os.MkdirTemp("", "bandmap-geo-")
		if err != nil {
			return nil, fmt.Errorf("create download dir: %w", err)
		}
		defer os.RemoveAll(dlDir)

		path = filepath.Join(dlDir, downloadName(candidate))
		if err := downloadFile(ctx, opts.HTTPClient, candidate, path, opts.Backoff); err != nil {
			return nil, fmt.Errorf("download: %w", err)
		}
	}

	if strings.HasSuffix(strings.ToLower(path), ".zip") {
		extractDir, err := os.MkdirTemp("", "bandmap-geo-zip-")
		if err != nil {
			return nil, fmt.Errorf("create extract dir: %w", err)
		}
		defer os.RemoveAll(extractDir)

		files, err := unzipFile(path, extractDir)
		if err != nil {
			return nil, fmt.Errorf("unzip: %w", err)
		}
		path = ""
		for _, f := range files {
			ext := strings.ToLower(filepath.Ext(f))
			if ext == ".geojson" || ext == ".json" {
				path = f
				break
			}
		}
		if path == "" {
			return nil, fmt.Errorf("no GeoJSON file in archive %s", candidate)
		}
	}

	return readFeatureCollection(path, opts.Encoding)
}

func readFeatureCollection(path, encoding string) (*geojson.FeatureCollection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reader io.Reader = f
	if encoding != "" && !isUTF8(encoding) {
		e, err := htmlindex.Get(encoding)
		if err != nil {
			return nil, fmt.Errorf("unsupported encoding %q: %w", encoding, err)
		}
		reader = transform.NewReader(f, e.NewDecoder())
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return fc, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func downloadName(url string) string {
	name := url
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	name = filepath.Base(name)
	if name == "" || name == "." || name == "/" {
		return "geography.geojson"
	}
	return name
}

func isUTF8(enc string) bool {
	e := strings.ToLower(strings.ReplaceAll(enc, "-", ""))
	return e == "utf8" || e == ""
}
