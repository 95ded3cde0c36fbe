package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-rec/internal/db"
	"github.com/joeblew999/plat-rec/internal/geo"
)

// SeedFile is the YAML seed format. Coordinates are lon/lat and are
// stored projected to BC Albers.
type SeedFile struct {
	Lookups struct {
		Activities []Lookup `yaml:"activities"`
		Types      []Lookup `yaml:"types"`
		Districts  []Lookup `yaml:"districts"`
		Access     []Lookup `yaml:"access"`
		Statuses   []Lookup `yaml:"statuses"`
	} `yaml:"lookups"`
	Resources []SeedResource `yaml:"resources"`
}

// SeedResource is one resource in a seed file.
type SeedResource struct {
	ID               string           `yaml:"id"`
	Name             string           `yaml:"name"`
	ClosestCommunity string           `yaml:"closest_community"`
	Description      string           `yaml:"description"`
	District         string           `yaml:"district"`
	Type             string           `yaml:"type"`
	Access           string           `yaml:"access"`
	Status           string           `yaml:"status"`
	Activities       []string         `yaml:"activities"`
	Fees             []Fee            `yaml:"fees"`
	SitePoint        []float64        `yaml:"site_point"`
	Features         []map[string]any `yaml:"features"`
}

// SeedStats counts what a seed run wrote.
type SeedStats struct {
	Lookups int
	Created int
	Updated int
}

// Seed loads a YAML seed into the database. Existing resources are
// replaced.
func Seed(ctx context.Context, svc *RecResourceService, r io.Reader) (SeedStats, error) {
	var (
		file  SeedFile
		stats SeedStats
	)
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return stats, fmt.Errorf("decoding seed: %w", err)
	}

	tables := []struct {
		name  string
		items []Lookup
	}{
		{db.TableActivity, file.Lookups.Activities},
		{db.TableResourceType, file.Lookups.Types},
		{db.TableDistrict, file.Lookups.Districts},
		{db.TableAccess, file.Lookups.Access},
		{db.TableStatus, file.Lookups.Statuses},
	}
	for _, t := range tables {
		for _, l := range t.items {
			if err := svc.UpsertLookup(ctx, t.name, l); err != nil {
				return stats, err
			}
			stats.Lookups++
		}
	}

	for _, sr := range file.Resources {
		in, err := sr.input()
		if err != nil {
			return stats, fmt.Errorf("seed resource %q: %w", sr.ID, err)
		}
		counter := &stats.Created
		_, err = svc.Create(ctx, in)
		if errors.Is(err, ErrExists) {
			counter = &stats.Updated
			_, err = svc.Update(ctx, in.ID, in)
		}
		if err != nil {
			return stats, fmt.Errorf("seed resource %q: %w", sr.ID, err)
		}
		*counter++
	}
	return stats, nil
}

func (sr SeedResource) input() (RecResourceInput, error) {
	in := RecResourceInput{
		ID:               sr.ID,
		Name:             sr.Name,
		ClosestCommunity: sr.ClosestCommunity,
		Description:      sr.Description,
		DistrictCode:     sr.District,
		ResourceTypeCode: sr.Type,
		AccessCode:       sr.Access,
		StatusCode:       sr.Status,
		ActivityCodes:    sr.Activities,
		Fees:             sr.Fees,
		SpatialFeatures:  []string{},
	}

	if len(sr.SitePoint) == 2 {
		p := geo.BCAlbers.FromWGS84(orb.Point{sr.SitePoint[0], sr.SitePoint[1]})
		raw, err := geojson.NewGeometry(p).MarshalJSON()
		if err != nil {
			return in, err
		}
		in.SitePoint = string(raw)
	} else if len(sr.SitePoint) != 0 {
		return in, fmt.Errorf("site_point needs [lon, lat]: %w", ErrInvalid)
	}

	for i, f := range sr.Features {
		raw, err := json.Marshal(f)
		if err != nil {
			return in, err
		}
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return in, fmt.Errorf("feature %d: %w", i, ErrInvalid)
		}
		albers := project.Geometry(orb.Clone(g.Geometry()), geo.BCAlbers.FromWGS84)
		out, err := geojson.NewGeometry(albers).MarshalJSON()
		if err != nil {
			return in, err
		}
		in.SpatialFeatures = append(in.SpatialFeatures, string(out))
	}
	return in, nil
}
