package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"sfportal/internal/domain/incident"
)

// IncidentStore reads the six normalized incident tables
type IncidentStore struct {
	db *pgxpool.Pool
}

// NewIncidentStore creates a new incident store
func NewIncidentStore(db *pgxpool.Pool) *IncidentStore {
	return &IncidentStore{
		db: db,
	}
}

// TimelineRow is one combined timeline record. Pointer fields serialize as
// JSON null when the source row has no value, matching the API contract.
type TimelineRow struct {
	SourceTable  string     `json:"source_table"`
	IncidentTime *time.Time `json:"incident_time"`
	IncidentType *string    `json:"incident_type"`
	Description  *string    `json:"description"`
	Address      *string    `json:"address"`
	Neighborhood *string    `json:"neighborhood"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
}

// TimelineOptions parameterizes the combined timeline query
type TimelineOptions struct {
	Source           incident.SourceTable
	Limit            int
	PrioritizeCoords bool
}

// timelineUnion maps each source table onto the shared timeline shape.
// fire_safety_complaints and fire_violations carry no coordinate columns;
// fire_incidents coordinates are filled in over time by the geocode backfill.
const timelineUnion = `
	SELECT
		'311_service_requests' AS source_table,
		created_date AS incident_time,
		category AS incident_type,
		complaint_type AS description,
		incident_address AS address,
		neighborhood,
		latitude,
		longitude
	FROM "311_service_requests"
	WHERE created_date IS NOT NULL

	UNION ALL

	SELECT
		'fire_incidents' AS source_table,
		incident_date AS incident_time,
		primary_situation AS incident_type,
		action_taken_primary AS description,
		address,
		analysis_neighborhood AS neighborhood,
		latitude,
		longitude
	FROM fire_incidents
	WHERE incident_date IS NOT NULL

	UNION ALL

	SELECT
		'fire_safety_complaints' AS source_table,
		received_date AS incident_time,
		complaint_item_type_description AS incident_type,
		disposition AS description,
		address,
		neighborhood_district AS neighborhood,
		NULL::double precision AS latitude,
		NULL::double precision AS longitude
	FROM fire_safety_complaints
	WHERE received_date IS NOT NULL

	UNION ALL

	SELECT
		'fire_violations' AS source_table,
		violation_date AS incident_time,
		violation_item_description AS incident_type,
		status AS description,
		address,
		neighborhood_district AS neighborhood,
		NULL::double precision AS latitude,
		NULL::double precision AS longitude
	FROM fire_violations
	WHERE violation_date IS NOT NULL

	UNION ALL

	SELECT
		'sffd_service_calls' AS source_table,
		call_date AS incident_time,
		call_type AS incident_type,
		call_final_disposition AS description,
		address,
		supervisor_district AS neighborhood,
		latitude,
		longitude
	FROM sffd_service_calls
	WHERE call_date IS NOT NULL

	UNION ALL

	SELECT
		'sfpd_incidents' AS source_table,
		"timestamp" AS incident_time,
		category AS incident_type,
		descript AS description,
		address,
		pddistrict AS neighborhood,
		latitude,
		longitude
	FROM sfpd_incidents
	WHERE "timestamp" IS NOT NULL
`

// Timeline returns incidents from the selected sources combined and ordered
// by time, newest first. With PrioritizeCoords set, rows carrying usable
// coordinates sort ahead of rows without, so a bounded batch favors mappable
// records.
func (s *IncidentStore) Timeline(ctx context.Context, opts TimelineOptions) ([]TimelineRow, map[string]int, error) {
	query := "SELECT * FROM (" + timelineUnion + ") incidents"

	args := []interface{}{}
	if opts.Source != "" {
		query += " WHERE source_table = $1"
		args = append(args, string(opts.Source))
	}

	if opts.PrioritizeCoords {
		query += `
			ORDER BY
				CASE
					WHEN latitude IS NOT NULL AND longitude IS NOT NULL
						AND latitude != 0 AND longitude != 0
					THEN 0 ELSE 1
				END,
				incident_time DESC`
	} else {
		query += " ORDER BY incident_time DESC"
	}

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("error executing timeline query: %w", err)
	}
	defer rows.Close()

	var result []TimelineRow
	counts := make(map[string]int)
	for rows.Next() {
		var r TimelineRow
		if err := rows.Scan(
			&r.SourceTable,
			&r.IncidentTime,
			&r.IncidentType,
			&r.Description,
			&r.Address,
			&r.Neighborhood,
			&r.Latitude,
			&r.Longitude,
		); err != nil {
			return nil, nil, fmt.Errorf("error scanning timeline row: %w", err)
		}
		result = append(result, r)
		counts[r.SourceTable]++
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating timeline rows: %w", err)
	}

	return result, counts, nil
}

// BackfillCandidate is an incident with an address but no usable coordinates
type BackfillCandidate struct {
	Source  incident.SourceTable
	Key     string
	Address string
}

// MissingCoordinates returns up to limit incidents eligible for coordinate
// backfill. Only the keyed tables are eligible; the complaint and violation
// tables have no stable key to update against.
func (s *IncidentStore) MissingCoordinates(ctx context.Context, limit int) ([]BackfillCandidate, error) {
	query := `
		SELECT source_table, key, address FROM (
			SELECT
				'311_service_requests' AS source_table,
				unique_key AS key,
				incident_address AS address,
				created_date AS incident_time
			FROM "311_service_requests"
			WHERE incident_address IS NOT NULL AND incident_address != ''
			AND (latitude IS NULL OR longitude IS NULL OR latitude = 0 OR longitude = 0)

			UNION ALL

			SELECT
				'fire_incidents' AS source_table,
				incident_number AS key,
				address,
				incident_date AS incident_time
			FROM fire_incidents
			WHERE address IS NOT NULL AND address != ''
			AND (latitude IS NULL OR longitude IS NULL)

			UNION ALL

			SELECT
				'sfpd_incidents' AS source_table,
				unique_key AS key,
				address,
				"timestamp" AS incident_time
			FROM sfpd_incidents
			WHERE address IS NOT NULL AND address != ''
			AND (latitude IS NULL OR longitude IS NULL OR latitude = 0 OR longitude = 0)
		) candidates
		ORDER BY incident_time DESC
		LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying backfill candidates: %w", err)
	}
	defer rows.Close()

	var candidates []BackfillCandidate
	for rows.Next() {
		var c BackfillCandidate
		var source string
		if err := rows.Scan(&source, &c.Key, &c.Address); err != nil {
			return nil, fmt.Errorf("error scanning backfill candidate: %w", err)
		}
		c.Source = incident.SourceTable(source)
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backfill candidates: %w", err)
	}

	return candidates, nil
}

// UpdateCoordinates writes geocoded coordinates back to the source table
func (s *IncidentStore) UpdateCoordinates(ctx context.Context, source incident.SourceTable, key string, lat, lon float64) error {
	var query string
	switch source {
	case incident.Source311Requests:
		query = `UPDATE "311_service_requests" SET latitude = $1, longitude = $2 WHERE unique_key = $3`
	case incident.SourceFireIncidents:
		query = `UPDATE fire_incidents SET latitude = $1, longitude = $2 WHERE incident_number = $3`
	case incident.SourceSFPDIncidents:
		query = `UPDATE sfpd_incidents SET latitude = $1, longitude = $2 WHERE unique_key = $3`
	default:
		return fmt.Errorf("source %q does not support coordinate updates", source)
	}

	if _, err := s.db.Exec(ctx, query, lat, lon, key); err != nil {
		return fmt.Errorf("error updating coordinates: %w", err)
	}
	return nil
}
