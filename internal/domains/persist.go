package domains

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

// The on-disk record is a map keyed by domain name, each value
// holding the four normalized coordinates:
//
//	{"gate": {"x1": 0.1, "y1": 0.1, "x2": 0.3, "y2": 0.3}}
//
// The same shape is used for JSON and YAML.

var coordKeys = []string{"x1", "y1", "x2", "y2"}

type fileFormat int

const (
	formatJSON fileFormat = iota
	formatYAML
)

func formatForPath(path string) (fileFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yml", ".yaml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Save serializes the domain table to path. The format is chosen by
// extension; unsupported extensions fail before any I/O.
func (r *Registry) Save(path string) error {
	format, err := formatForPath(path)
	if err != nil {
		return err
	}

	table := r.snapshot()
	records := make(map[string]map[string]float64, len(table))
	for name, rect := range table {
		records[name] = map[string]float64{
			"x1": rect.X1,
			"y1": rect.Y1,
			"x2": rect.X2,
			"y2": rect.Y2,
		}
	}

	var data []byte
	switch format {
	case formatJSON:
		data, err = json.MarshalIndent(records, "", "  ")
	case formatYAML:
		data, err = yaml.Marshal(records)
	}
	if err != nil {
		return fmt.Errorf("domains: encode %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("domains: write %s: %w", path, err)
	}
	return nil
}

// Load reads a domain file and merges it into the table. The load is
// all-or-nothing: every record is validated first, and a record that
// is missing a coordinate field (ErrMalformedRecord) or that names a
// domain already present (ErrDuplicateName) rejects the whole file
// with zero mutation.
func (r *Registry) Load(path string) error {
	format, err := formatForPath(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("domains: read %s: %w", path, err)
	}

	records := make(map[string]map[string]float64)
	switch format {
	case formatJSON:
		err = json.Unmarshal(data, &records)
	case formatYAML:
		err = yaml.Unmarshal(data, &records)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedRecord, path, err)
	}

	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	r.mu.Lock()
	defer r.mu.Unlock()

	incoming := make(map[string]types.Rect, len(records))
	for _, name := range names {
		coords := records[name]
		for _, key := range coordKeys {
			if _, ok := coords[key]; !ok {
				return fmt.Errorf("%w: %q is missing %q", ErrMalformedRecord, name, key)
			}
		}
		if _, ok := r.domains[name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		incoming[name] = types.Rect{
			X1: coords["x1"],
			Y1: coords["y1"],
			X2: coords["x2"],
			Y2: coords["y2"],
		}
	}

	for name, rect := range incoming {
		r.domains[name] = rect
	}
	return nil
}
