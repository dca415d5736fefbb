package hydrofabric

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// Hydrofabric file names inside a hydrofabric directory.
const (
	CatchmentFile = "catchment_data.geojson"
	NexusFile     = "nexus_data.geojson"
)

// Provider loads hydrofabric graphs by uid.
type Provider interface {
	LoadGraph(uid string) (*Graph, error)
}

// Loader reads ngen GeoJSON hydrofabrics from <Dir>/<uid>/.
type Loader struct {
	Dir string
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// LoadGraph reads and builds the graph for uid. A uid with no directory is
// unknown; unreadable or malformed files inside it are internal failures.
func (l *Loader) LoadGraph(uid string) (*Graph, error) {
	if uid == "" || uid != filepath.Base(uid) || strings.HasPrefix(uid, ".") {
		return nil, errors.Validation("invalid hydrofabric uid %q", uid)
	}

	root := filepath.Join(l.Dir, uid)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, errors.Graph(errors.ErrUnknownHydrofabric, "unknown hydrofabric %q", uid)
	}

	catchments, err := readFeatures(filepath.Join(root, CatchmentFile))
	if err != nil {
		return nil, err
	}
	nexuses, err := readFeatures(filepath.Join(root, NexusFile))
	if err != nil {
		return nil, err
	}

	b := NewBuilder()
	for _, f := range catchments {
		b.AddCatchment(f.id, f.toID)
	}
	for _, f := range nexuses {
		if f.toID == "" {
			b.AddNexus(f.id)
			continue
		}
		b.AddNexus(f.id, strings.Split(f.toID, ",")...)
	}
	return b.Build(), nil
}

type feature struct {
	id   string
	toID string
}

type geoJSONFeature struct {
	ID         json.RawMessage `json:"id"`
	Properties struct {
		ID   json.RawMessage `json:"id"`
		ToID json.RawMessage `json:"toid"`
	} `json:"properties"`
}

type featureCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

func readFeatures(path string) ([]feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewKind(errors.KindInternal, err, "read %s", filepath.Base(path))
	}
	return parseFeatures(data, filepath.Base(path))
}

func parseFeatures(data []byte, name string) ([]feature, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, errors.NewKind(errors.KindInternal, errors.ErrParsingFailed, "parse %s: %v", name, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, errors.NewKind(errors.KindInternal, errors.ErrParsingFailed, "%s is not a FeatureCollection", name)
	}

	out := make([]feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		id := scalar(f.ID)
		if id == "" {
			id = scalar(f.Properties.ID)
		}
		if id == "" {
			return nil, errors.NewKind(errors.KindInternal, errors.ErrParsingFailed, "%s feature %d has no id", name, i)
		}
		out = append(out, feature{id: id, toID: scalar(f.Properties.ToID)})
	}
	return out, nil
}

// scalar renders a JSON string or number as text; null and absent yield "".
func scalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}
