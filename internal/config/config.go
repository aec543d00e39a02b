// Package config loads conversion presets from YAML, TOML or JSON files
// and layers them onto convert.Options.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/komkom/toml"

	"github.com/vertti/gxf2bed/internal/aggregate"
	"github.com/vertti/gxf2bed/internal/bed"
	"github.com/vertti/gxf2bed/internal/convert"
	"github.com/vertti/gxf2bed/internal/format"
)

// Preset is a saved set of conversion settings. Unset fields leave the
// underlying option untouched.
type Preset struct {
	Format           string   `json:"format,omitempty"`
	ParentFeature    string   `json:"parent_feature,omitempty"`
	ChildFeatures    []string `json:"child_features,omitempty"`
	ParentAttribute  string   `json:"parent_attribute,omitempty"`
	ChildAttribute   string   `json:"child_attribute,omitempty"`
	ThickFeature     string   `json:"thick_feature,omitempty"`
	BedType          int      `json:"bed_type,omitempty"`
	ExtraFields      []string `json:"extra_fields,omitempty"`
	ScorePassthrough *bool    `json:"score_passthrough,omitempty"`
	Orphans          string   `json:"orphans,omitempty"`
	ChunkSize        int      `json:"chunk_size,omitempty"`
	Threads          int      `json:"threads,omitempty"`
}

// Syntax is a preset file syntax.
type Syntax uint8

// Supported preset syntaxes.
const (
	JSON Syntax = iota
	YAML
	TOML
)

// SyntaxFromPath picks the syntax from a file extension.
func SyntaxFromPath(path string) (Syntax, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	case ".json":
		return JSON, nil
	default:
		return JSON, fmt.Errorf("unrecognized preset extension %q (want .yaml, .toml or .json)", filepath.Ext(path))
	}
}

// Load reads the preset file at path.
func Load(path string) (*Preset, error) {
	syntax, err := SyntaxFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // CLI tool needs to open user-specified files
	if err != nil {
		return nil, fmt.Errorf("cannot open preset: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	p, err := Decode(f, syntax)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", path, err)
	}
	return p, nil
}

// Decode parses a preset. YAML and TOML are converted to JSON first so all
// three syntaxes share one schema; unknown keys are rejected.
func Decode(r io.Reader, syntax Syntax) (*Preset, error) {
	var js io.Reader
	switch syntax {
	case YAML:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return &Preset{}, nil
		}
		buf, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
		js = bytes.NewReader(buf)
	case TOML:
		js = toml.New(r)
	default:
		js = r
	}

	var p Preset
	dec := json.NewDecoder(js)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return &p, nil
		}
		return nil, fmt.Errorf("decoding preset: %w", err)
	}
	return &p, nil
}

// Apply overlays the preset's set fields onto opts.
func (p *Preset) Apply(opts *convert.Options) error {
	if p.Format != "" {
		f, err := format.Parse(p.Format)
		if err != nil {
			return err
		}
		opts.Format = f
	}
	if p.ParentFeature != "" {
		opts.ParentFeature = p.ParentFeature
	}
	if len(p.ChildFeatures) > 0 {
		opts.ChildFeatures = p.ChildFeatures
	}
	if p.ParentAttribute != "" {
		opts.ParentAttribute = p.ParentAttribute
	}
	if p.ChildAttribute != "" {
		opts.ChildAttribute = p.ChildAttribute
	}
	if p.ThickFeature != "" {
		opts.ThickFeature = p.ThickFeature
	}
	if p.BedType != 0 {
		t, err := bed.ParseType(p.BedType)
		if err != nil {
			return err
		}
		opts.BedType = t
	}
	if len(p.ExtraFields) > 0 {
		opts.ExtraFields = p.ExtraFields
	}
	if p.ScorePassthrough != nil {
		opts.ScorePassthrough = *p.ScorePassthrough
	}
	if p.Orphans != "" {
		policy, err := aggregate.ParseOrphanPolicy(p.Orphans)
		if err != nil {
			return err
		}
		opts.OrphanPolicy = policy
	}
	if p.ChunkSize < 0 || p.Threads < 0 {
		return errors.New("chunk_size and threads must not be negative")
	}
	if p.ChunkSize > 0 {
		opts.ChunkSize = p.ChunkSize
	}
	if p.Threads > 0 {
		opts.Workers = p.Threads
	}
	return nil
}
