package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/joeblew999/plat-rec/internal/config"
	"github.com/joeblew999/plat-rec/internal/db"
	"github.com/joeblew999/plat-rec/internal/filter"
	"github.com/joeblew999/plat-rec/internal/geo"
)

// RecResourceService reads and mutates recreation resources in DuckDB.
type RecResourceService struct {
	db  *sql.DB
	bus *EventBus
	log *zap.Logger

	mu     sync.RWMutex
	facets []config.Facet
}

// NewRecResourceService creates a service over an open database.
func NewRecResourceService(conn *sql.DB, facets []config.Facet, bus *EventBus, log *zap.Logger) *RecResourceService {
	if bus == nil {
		bus = NewEventBus()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RecResourceService{db: conn, bus: bus, log: log, facets: slices.Clone(facets)}
}

// Bus returns the event bus mutations publish on.
func (s *RecResourceService) Bus() *EventBus { return s.bus }

// Facets returns the configured facet groups.
func (s *RecResourceService) Facets() []config.Facet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.facets)
}

// SetFacets swaps the facet configuration, e.g. after a config reload.
func (s *RecResourceService) SetFacets(facets []config.Facet) {
	s.mu.Lock()
	s.facets = slices.Clone(facets)
	s.mu.Unlock()
}

// FacetParams returns the URL params of the configured facets.
func (s *RecResourceService) FacetParams() []string {
	facets := s.Facets()
	params := make([]string, len(facets))
	for i, f := range facets {
		params[i] = f.Param
	}
	return params
}

// Get returns one resource with activities and fees.
func (s *RecResourceService) Get(ctx context.Context, id string) (RecResource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.rec_resource_id, r.name, r.closest_community, r.description,
		       r.district_code, d.description,
		       r.resource_type_code, t.description,
		       r.access_code, a.description,
		       r.status_code, st.description,
		       r.site_point_geometry, r.spatial_feature_geometry, r.updated_at
		FROM rec_resource r
		LEFT JOIN `+db.TableDistrict+` d ON d.code = r.district_code
		LEFT JOIN `+db.TableResourceType+` t ON t.code = r.resource_type_code
		LEFT JOIN `+db.TableAccess+` a ON a.code = r.access_code
		LEFT JOIN `+db.TableStatus+` st ON st.code = r.status_code
		WHERE r.rec_resource_id = ?`, id)

	var (
		r            RecResource
		dCode, dDesc sql.NullString
		tCode, tDesc sql.NullString
		aCode, aDesc sql.NullString
		sCode, sDesc sql.NullString
		spatial      string
	)
	err := row.Scan(&r.ID, &r.Name, &r.ClosestCommunity, &r.Description,
		&dCode, &dDesc, &tCode, &tDesc, &aCode, &aDesc, &sCode, &sDesc,
		&r.SitePoint, &spatial, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RecResource{}, fmt.Errorf("rec resource %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return RecResource{}, fmt.Errorf("reading rec resource %q: %w", id, err)
	}
	r.District = lookupOf(dCode, dDesc)
	r.ResourceType = lookupOf(tCode, tDesc)
	r.AccessType = lookupOf(aCode, aDesc)
	r.Status = lookupOf(sCode, sDesc)
	r.SpatialFeatures = decodeFeatures(spatial)

	if r.Activities, err = s.resourceActivities(ctx, id); err != nil {
		return RecResource{}, err
	}
	if r.Fees, err = s.resourceFees(ctx, id); err != nil {
		return RecResource{}, err
	}
	return r, nil
}

// MapResource returns the stored geometries of one resource.
func (s *RecResourceService) MapResource(ctx context.Context, id string) (*geo.Resource, error) {
	var (
		r       geo.Resource
		spatial string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT rec_resource_id, name, site_point_geometry, spatial_feature_geometry
		FROM rec_resource WHERE rec_resource_id = ?`, id).
		Scan(&r.ID, &r.Name, &r.SitePointGeometry, &spatial)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rec resource %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading rec resource %q: %w", id, err)
	}
	r.SpatialFeatureGeometry = decodeFeatures(spatial)
	return &r, nil
}

// MapResources returns the geometries of every resource, ordered by id.
func (s *RecResourceService) MapResources(ctx context.Context) ([]*geo.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rec_resource_id, name, site_point_geometry, spatial_feature_geometry
		FROM rec_resource ORDER BY rec_resource_id`)
	if err != nil {
		return nil, fmt.Errorf("listing rec resource geometries: %w", err)
	}
	defer rows.Close()

	var out []*geo.Resource
	for rows.Next() {
		var (
			r       geo.Resource
			spatial string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.SitePointGeometry, &spatial); err != nil {
			return nil, err
		}
		r.SpatialFeatureGeometry = decodeFeatures(spatial)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Create inserts a resource. A duplicate id returns ErrExists.
func (s *RecResourceService) Create(ctx context.Context, in RecResourceInput) (RecResource, error) {
	if in.ID == "" {
		in.ID = generateID(in.Name)
	}
	if err := s.validate(ctx, in); err != nil {
		return RecResource{}, err
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM rec_resource WHERE rec_resource_id = ?`, in.ID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("rec resource %q: %w", in.ID, ErrExists)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rec_resource (rec_resource_id, name, closest_community, description,
				district_code, resource_type_code, access_code, status_code,
				site_point_geometry, spatial_feature_geometry)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.ID, in.Name, in.ClosestCommunity, in.Description,
			nullable(in.DistrictCode), nullable(in.ResourceTypeCode), nullable(in.AccessCode), nullable(in.StatusCode),
			in.SitePoint, encodeFeatures(in.SpatialFeatures))
		if err != nil {
			return err
		}
		return writeChildren(ctx, tx, in)
	})
	if err != nil {
		return RecResource{}, err
	}

	s.publish(ActionCreated, in.ID)
	return s.Get(ctx, in.ID)
}

// Update replaces a resource by id.
func (s *RecResourceService) Update(ctx context.Context, id string, in RecResourceInput) (RecResource, error) {
	in.ID = id
	if err := s.validate(ctx, in); err != nil {
		return RecResource{}, err
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE rec_resource SET name = ?, closest_community = ?, description = ?,
				district_code = ?, resource_type_code = ?, access_code = ?, status_code = ?,
				site_point_geometry = ?, spatial_feature_geometry = ?, updated_at = current_timestamp
			WHERE rec_resource_id = ?`,
			in.Name, in.ClosestCommunity, in.Description,
			nullable(in.DistrictCode), nullable(in.ResourceTypeCode), nullable(in.AccessCode), nullable(in.StatusCode),
			in.SitePoint, encodeFeatures(in.SpatialFeatures), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("rec resource %q: %w", id, ErrNotFound)
		}
		if err := deleteChildren(ctx, tx, id); err != nil {
			return err
		}
		return writeChildren(ctx, tx, in)
	})
	if err != nil {
		return RecResource{}, err
	}

	s.publish(ActionUpdated, id)
	return s.Get(ctx, id)
}

// Delete removes a resource and its activities and fees.
func (s *RecResourceService) Delete(ctx context.Context, id string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteChildren(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM rec_resource WHERE rec_resource_id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("rec resource %q: %w", id, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ActionDeleted, id)
	return nil
}

// Activities lists activity codes in collation order of description.
func (s *RecResourceService) Activities(ctx context.Context) ([]Lookup, error) {
	return s.Lookups(ctx, db.TableActivity)
}

// Lookups lists one lookup table in collation order of description.
func (s *RecResourceService) Lookups(ctx context.Context, table string) ([]Lookup, error) {
	if !slices.Contains(db.LookupTables, table) {
		return nil, fmt.Errorf("lookup table %q: %w", table, ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT code, description FROM `+table)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	out := []Lookup{}
	for rows.Next() {
		var l Lookup
		if err := rows.Scan(&l.Code, &l.Description); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c := newCollator()
	slices.SortStableFunc(out, func(a, b Lookup) int {
		if n := c.CompareString(a.Description, b.Description); n != 0 {
			return n
		}
		return strings.Compare(a.Code, b.Code)
	})
	return out, nil
}

// UpsertLookup inserts or replaces a lookup code. Codes may not contain
// the URL id separator.
func (s *RecResourceService) UpsertLookup(ctx context.Context, table string, l Lookup) error {
	if !slices.Contains(db.LookupTables, table) {
		return fmt.Errorf("lookup table %q: %w", table, ErrNotFound)
	}
	if l.Code == "" || strings.Contains(l.Code, filter.IDSeparator) {
		return fmt.Errorf("lookup code %q: %w", l.Code, ErrInvalid)
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO `+table+` (code, description) VALUES (?, ?)`, l.Code, l.Description)
	if err != nil {
		return fmt.Errorf("upserting %s %q: %w", table, l.Code, err)
	}
	return nil
}

// Stats summarises the catalogue.
func (s *RecResourceService) Stats(ctx context.Context) (Stats, error) {
	var (
		st   Stats
		last sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT count(*) FROM rec_resource),
		       (SELECT count(*) FROM `+db.TableActivity+`),
		       (SELECT max(updated_at) FROM rec_resource)`).
		Scan(&st.Resources, &st.Activities, &last)
	if err != nil {
		return Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	if last.Valid {
		st.LastUpdate = last.Time
	}
	return st, nil
}

func (s *RecResourceService) publish(action, id string) {
	s.log.Info("rec resource changed", zap.String("action", action), zap.String("id", id))
	s.bus.Publish(Event{Resource: ResourceRecResource, Action: action, ID: id})
}

func (s *RecResourceService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// validate checks geometries parse and lookup codes exist.
func (s *RecResourceService) validate(ctx context.Context, in RecResourceInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required: %w", ErrInvalid)
	}
	if in.ID == "" {
		return fmt.Errorf("id is required: %w", ErrInvalid)
	}
	if in.SitePoint != "" {
		if _, err := geojson.UnmarshalGeometry([]byte(in.SitePoint)); err != nil {
			return fmt.Errorf("site point geometry: %w", ErrInvalid)
		}
	}
	for i, raw := range in.SpatialFeatures {
		if _, err := geojson.UnmarshalGeometry([]byte(raw)); err != nil {
			return fmt.Errorf("spatial feature %d: %w", i, ErrInvalid)
		}
	}

	checks := []struct {
		table string
		codes []string
	}{
		{db.TableDistrict, nonEmpty(in.DistrictCode)},
		{db.TableResourceType, nonEmpty(in.ResourceTypeCode)},
		{db.TableAccess, nonEmpty(in.AccessCode)},
		{db.TableStatus, nonEmpty(in.StatusCode)},
		{db.TableActivity, in.ActivityCodes},
	}
	for _, c := range checks {
		for _, code := range c.codes {
			var n int
			if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+c.table+` WHERE code = ?`, code).Scan(&n); err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("unknown %s code %q: %w", c.table, code, ErrInvalid)
			}
		}
	}
	return nil
}

func (s *RecResourceService) resourceActivities(ctx context.Context, id string) ([]Lookup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.code, l.description
		FROM rec_resource_activity ra
		JOIN `+db.TableActivity+` l ON l.code = ra.activity_code
		WHERE ra.rec_resource_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("reading activities of %q: %w", id, err)
	}
	defer rows.Close()

	out := []Lookup{}
	for rows.Next() {
		var l Lookup
		if err := rows.Scan(&l.Code, &l.Description); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	c := newCollator()
	slices.SortFunc(out, func(a, b Lookup) int { return c.CompareString(a.Description, b.Description) })
	return out, rows.Err()
}

func (s *RecResourceService) resourceFees(ctx context.Context, id string) ([]Fee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fee_type, amount, season FROM rec_resource_fee
		WHERE rec_resource_id = ? ORDER BY fee_type`, id)
	if err != nil {
		return nil, fmt.Errorf("reading fees of %q: %w", id, err)
	}
	defer rows.Close()

	out := []Fee{}
	for rows.Next() {
		var f Fee
		if err := rows.Scan(&f.Type, &f.Amount, &f.Season); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func writeChildren(ctx context.Context, tx *sql.Tx, in RecResourceInput) error {
	seen := map[string]bool{}
	for _, code := range in.ActivityCodes {
		if seen[code] {
			continue
		}
		seen[code] = true
		if _, err := tx.ExecContext(ctx, `INSERT INTO rec_resource_activity (rec_resource_id, activity_code) VALUES (?, ?)`, in.ID, code); err != nil {
			return fmt.Errorf("inserting activity %q: %w", code, err)
		}
	}
	clear(seen)
	for _, f := range in.Fees {
		if seen[f.Type] {
			return fmt.Errorf("duplicate fee type %q: %w", f.Type, ErrInvalid)
		}
		seen[f.Type] = true
		if _, err := tx.ExecContext(ctx, `INSERT INTO rec_resource_fee (rec_resource_id, fee_type, amount, season) VALUES (?, ?, ?, ?)`,
			in.ID, f.Type, f.Amount, f.Season); err != nil {
			return fmt.Errorf("inserting fee %q: %w", f.Type, err)
		}
	}
	return nil
}

func deleteChildren(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM rec_resource_activity WHERE rec_resource_id = ?`, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM rec_resource_fee WHERE rec_resource_id = ?`, id)
	return err
}

func newCollator() *collate.Collator {
	return collate.New(language.English, collate.IgnoreCase, collate.Loose)
}

func lookupOf(code, desc sql.NullString) *Lookup {
	if !code.Valid {
		return nil
	}
	return &Lookup{Code: code.String, Description: desc.String}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// decodeFeatures reads the stored JSON array of geometry strings. Bad
// data yields an empty list.
func decodeFeatures(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}

func encodeFeatures(fs []string) string {
	if fs == nil {
		fs = []string{}
	}
	b, _ := json.Marshal(fs)
	return string(b)
}

// generateID creates an upper-case id from a name.
func generateID(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToUpper(strings.TrimSpace(name)) {
		switch {
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
