// Package config loads the service's YAML configuration: facet groups,
// preserved URL parameters, paging and tile defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-rec/internal/filter"
	"github.com/joeblew999/plat-rec/internal/search"
)

// Facet sources known to the search service.
const (
	SourceActivities = "activities"
	SourceType       = "type"
	SourceDistrict   = "district"
	SourceAccess     = "access"
	SourceStatus     = "status"
)

var knownSources = []string{SourceActivities, SourceType, SourceDistrict, SourceAccess, SourceStatus}

// Facet configures one filter group.
type Facet struct {
	Source string `yaml:"source"`
	Label  string `yaml:"label"`
	Param  string `yaml:"param"`
}

// Search holds paging defaults.
type Search struct {
	DefaultLimit int `yaml:"default_limit"`
}

// Tiles holds vector tile defaults.
type Tiles struct {
	Layer   string `yaml:"layer"`
	MinZoom int    `yaml:"min_zoom"`
	MaxZoom int    `yaml:"max_zoom"`
}

// Config is the service configuration.
type Config struct {
	Facets          []Facet  `yaml:"facets"`
	PreservedParams []string `yaml:"preserved_params"`
	Search          Search   `yaml:"search"`
	Tiles           Tiles    `yaml:"tiles"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Facets: []Facet{
			{Source: SourceActivities, Label: "Things to do", Param: "activities"},
			{Source: SourceType, Label: "Type", Param: "type"},
			{Source: SourceDistrict, Label: "District", Param: "district"},
			{Source: SourceAccess, Label: "Access type", Param: "access"},
			{Source: SourceStatus, Label: "Status", Param: "status"},
		},
		PreservedParams: slices.Clone(filter.PreservedParams),
		Search:          Search{DefaultLimit: search.DefaultLimit},
		Tiles:           Tiles{Layer: "rec-resources", MinZoom: 0, MaxZoom: 14},
	}
}

// Load reads the config at path. A missing file yields Default(). Fields
// left empty in the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg := Default()
	if len(file.Facets) > 0 {
		cfg.Facets = file.Facets
	}
	if file.PreservedParams != nil {
		cfg.PreservedParams = file.PreservedParams
	}
	if file.Search.DefaultLimit > 0 {
		cfg.Search.DefaultLimit = min(file.Search.DefaultLimit, search.MaxLimit)
	}
	if file.Tiles.Layer != "" {
		cfg.Tiles.Layer = file.Tiles.Layer
	}
	if file.Tiles.MinZoom > 0 {
		cfg.Tiles.MinZoom = file.Tiles.MinZoom
	}
	if file.Tiles.MaxZoom > 0 {
		cfg.Tiles.MaxZoom = file.Tiles.MaxZoom
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks facet sources and params.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for _, f := range c.Facets {
		if !slices.Contains(knownSources, f.Source) {
			return fmt.Errorf("facet %q: unknown source %q", f.Label, f.Source)
		}
		if f.Param == "" {
			return fmt.Errorf("facet %q: param is required", f.Label)
		}
		if slices.Contains(c.PreservedParams, f.Param) || f.Param == search.ParamLimit {
			return fmt.Errorf("facet %q: param %q is reserved", f.Label, f.Param)
		}
		if seen[f.Param] {
			return fmt.Errorf("facet %q: duplicate param %q", f.Label, f.Param)
		}
		seen[f.Param] = true
	}
	if c.Tiles.MinZoom > c.Tiles.MaxZoom {
		return fmt.Errorf("tiles: min_zoom %d above max_zoom %d", c.Tiles.MinZoom, c.Tiles.MaxZoom)
	}
	return nil
}

// FacetParams returns the URL params of all facets in order.
func (c *Config) FacetParams() []string {
	params := make([]string, len(c.Facets))
	for i, f := range c.Facets {
		params[i] = f.Param
	}
	return params
}
