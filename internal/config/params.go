package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"
)

// Params are the user-supplied parameters of one zone-records run.
// Items are kept as raw maps; the keys a request understands are picked
// out when the request is built.
type Params struct {
	ZoneID        string `yaml:"zone_id"`
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	ZoneName      string `yaml:"zone_name"`
	CompartmentID string `yaml:"compartment_id"`
	State         string `yaml:"state"`

	// A nil slice means the parameter was not given; an empty one means
	// it was given with no items.
	UpdateItems []map[string]interface{} `yaml:"update_items"`
	PatchItems  []map[string]interface{} `yaml:"patch_items"`
}

// LoadParams decodes a YAML or JSON parameters document.
// Unknown top-level parameters are rejected.
func LoadParams(r io.Reader) (*Params, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Params
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing parameters: %w", err)
	}
	return &p, nil
}

// LoadParamsFromPath reads parameters from path, or from stdin when path is "-".
func LoadParamsFromPath(path string) (*Params, error) {
	if path == "-" {
		return LoadParams(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameters file: %w", err)
	}
	defer f.Close()
	return LoadParams(f)
}
