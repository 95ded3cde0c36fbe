// Package service contains business logic for the recreation resource
// catalogue: search, detail, admin mutations, seeding and UI sessions.
package service

import (
	"errors"
	"time"
)

// Sentinel errors. Callers match with errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
	ErrInvalid  = errors.New("invalid")
)

// ResourceRecResource is the Event.Resource for recreation resources.
const ResourceRecResource = "rec-resources"

// Lookup is a coded value such as an activity or district.
type Lookup struct {
	Code        string `json:"code" yaml:"code" doc:"Lookup code" example:"1"`
	Description string `json:"description" yaml:"description" doc:"Human readable description" example:"Angling"`
}

// Fee is a charge at a recreation resource.
type Fee struct {
	Type   string  `json:"fee_type" yaml:"type" minLength:"1" doc:"Fee type" example:"camping"`
	Amount float64 `json:"amount" yaml:"amount" minimum:"0" doc:"Amount in CAD" example:"18"`
	Season string  `json:"season,omitempty" yaml:"season" doc:"Season the fee applies to" example:"May to September"`
}

// RecResource is the full detail of one recreation resource.
type RecResource struct {
	ID               string    `json:"rec_resource_id" doc:"Recreation resource id" example:"REC0001"`
	Name             string    `json:"name" doc:"Resource name" example:"Goldstream Lake"`
	ClosestCommunity string    `json:"closest_community,omitempty" doc:"Closest community"`
	Description      string    `json:"description,omitempty" doc:"Long description"`
	District         *Lookup   `json:"district,omitempty" doc:"Recreation district"`
	ResourceType     *Lookup   `json:"resource_type,omitempty" doc:"Resource type"`
	AccessType       *Lookup   `json:"access_type,omitempty" doc:"Access type"`
	Status           *Lookup   `json:"status,omitempty" doc:"Open/closed status"`
	Activities       []Lookup  `json:"activities" doc:"Activities available"`
	Fees             []Fee     `json:"fees" doc:"Fees"`
	SitePoint        string    `json:"site_point_geometry,omitempty" doc:"Site point as BC Albers GeoJSON"`
	SpatialFeatures  []string  `json:"spatial_feature_geometry" doc:"Spatial features as BC Albers GeoJSON"`
	UpdatedAt        time.Time `json:"updated_at" doc:"Last modification time"`
}

// RecResourceInput is the admin create/update payload.
type RecResourceInput struct {
	ID               string   `json:"rec_resource_id,omitempty" pattern:"^[A-Za-z0-9-]*$" maxLength:"50" doc:"Id; derived from the name when empty" example:"REC0001"`
	Name             string   `json:"name" minLength:"1" maxLength:"200" doc:"Resource name" example:"Goldstream Lake"`
	ClosestCommunity string   `json:"closest_community,omitempty" maxLength:"200" doc:"Closest community"`
	Description      string   `json:"description,omitempty" doc:"Long description"`
	DistrictCode     string   `json:"district_code,omitempty" doc:"District lookup code"`
	ResourceTypeCode string   `json:"resource_type_code,omitempty" doc:"Resource type lookup code"`
	AccessCode       string   `json:"access_code,omitempty" doc:"Access type lookup code"`
	StatusCode       string   `json:"status_code,omitempty" doc:"Status lookup code"`
	ActivityCodes    []string `json:"activity_codes,omitempty" doc:"Activity lookup codes"`
	Fees             []Fee    `json:"fees,omitempty" doc:"Fees"`
	SitePoint        string   `json:"site_point_geometry,omitempty" doc:"Site point as BC Albers GeoJSON"`
	SpatialFeatures  []string `json:"spatial_feature_geometry,omitempty" doc:"Spatial features as BC Albers GeoJSON"`
}

// Stats summarises the catalogue for the info endpoint.
type Stats struct {
	Resources  int       `json:"resources" doc:"Number of recreation resources"`
	Activities int       `json:"activities" doc:"Number of activity codes"`
	LastUpdate time.Time `json:"last_update,omitempty" doc:"Most recent resource modification"`
}
