package db

// Lookup tables share the (code, description) shape.
const (
	TableActivity     = "recreation_activity"
	TableResourceType = "recreation_resource_type"
	TableDistrict     = "recreation_district"
	TableAccess       = "recreation_access"
	TableStatus       = "recreation_status"
)

// LookupTables lists every (code, description) table.
var LookupTables = []string{TableActivity, TableResourceType, TableDistrict, TableAccess, TableStatus}

var schema = []string{
	lookupDDL(TableActivity),
	lookupDDL(TableResourceType),
	lookupDDL(TableDistrict),
	lookupDDL(TableAccess),
	lookupDDL(TableStatus),
	`CREATE TABLE IF NOT EXISTS rec_resource (
		rec_resource_id          VARCHAR PRIMARY KEY,
		name                     VARCHAR NOT NULL,
		closest_community        VARCHAR NOT NULL DEFAULT '',
		description              VARCHAR NOT NULL DEFAULT '',
		district_code            VARCHAR,
		resource_type_code       VARCHAR,
		access_code              VARCHAR,
		status_code              VARCHAR,
		site_point_geometry      VARCHAR NOT NULL DEFAULT '',
		spatial_feature_geometry VARCHAR NOT NULL DEFAULT '[]',
		updated_at               TIMESTAMP NOT NULL DEFAULT current_timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS rec_resource_activity (
		rec_resource_id VARCHAR NOT NULL,
		activity_code   VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rec_resource_fee (
		rec_resource_id VARCHAR NOT NULL,
		fee_type        VARCHAR NOT NULL,
		amount          DOUBLE NOT NULL,
		season          VARCHAR NOT NULL DEFAULT ''
	)`,
}

func lookupDDL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
		code        VARCHAR PRIMARY KEY,
		description VARCHAR NOT NULL
	)`
}
