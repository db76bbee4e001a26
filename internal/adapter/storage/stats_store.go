package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

// StatsStore runs the analytics queries behind the dashboard panels
type StatsStore struct {
	db *pgxpool.Pool
}

// NewStatsStore creates a new stats store
func NewStatsStore(db *pgxpool.Pool) *StatsStore {
	return &StatsStore{
		db: db,
	}
}

// NeighborhoodCount ranks one neighborhood by total incidents
type NeighborhoodCount struct {
	Neighborhood  string `json:"neighborhood"`
	IncidentCount int    `json:"incident_count"`
	DataSources   int    `json:"data_sources"`
	IncidentTypes int    `json:"incident_types"`
}

// NeighborhoodSummary holds aggregate stats over a neighborhood ranking
type NeighborhoodSummary struct {
	AverageIncidents float64 `json:"average_incidents"`
	MedianIncidents  int     `json:"median_incidents"`
	MaxIncidents     int     `json:"max_incidents"`
	MinIncidents     int     `json:"min_incidents"`
}

const neighborhoodUnion = `
	SELECT '311_service_requests' AS source_table, category AS incident_type, neighborhood
	FROM "311_service_requests"
	WHERE neighborhood IS NOT NULL AND neighborhood != ''

	UNION ALL

	SELECT 'fire_incidents', primary_situation, analysis_neighborhood
	FROM fire_incidents
	WHERE analysis_neighborhood IS NOT NULL AND analysis_neighborhood != ''

	UNION ALL

	SELECT 'fire_safety_complaints', complaint_item_type_description, neighborhood_district
	FROM fire_safety_complaints
	WHERE neighborhood_district IS NOT NULL AND neighborhood_district != ''

	UNION ALL

	SELECT 'fire_violations', violation_item_description, neighborhood_district
	FROM fire_violations
	WHERE neighborhood_district IS NOT NULL AND neighborhood_district != ''

	UNION ALL

	SELECT 'sffd_service_calls', call_type, supervisor_district
	FROM sffd_service_calls
	WHERE supervisor_district IS NOT NULL AND supervisor_district != ''

	UNION ALL

	SELECT 'sfpd_incidents', category, pddistrict
	FROM sfpd_incidents
	WHERE pddistrict IS NOT NULL AND pddistrict != ''
`

// TopNeighborhoods ranks neighborhoods by total incident count across every
// source. minIncidents, when non-nil, drops neighborhoods below the
// threshold.
func (s *StatsStore) TopNeighborhoods(ctx context.Context, limit int, minIncidents *int) ([]NeighborhoodCount, error) {
	query := `
		SELECT
			neighborhood,
			COUNT(*) AS incident_count,
			COUNT(DISTINCT source_table) AS data_sources,
			COUNT(DISTINCT incident_type) AS incident_types
		FROM (` + neighborhoodUnion + `) incidents
		GROUP BY neighborhood
	`

	args := []interface{}{}
	argIndex := 1

	if minIncidents != nil {
		query += fmt.Sprintf(" HAVING COUNT(*) >= $%d", argIndex)
		args = append(args, *minIncidents)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY incident_count DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing neighborhood query: %w", err)
	}
	defer rows.Close()

	var result []NeighborhoodCount
	for rows.Next() {
		var n NeighborhoodCount
		if err := rows.Scan(&n.Neighborhood, &n.IncidentCount, &n.DataSources, &n.IncidentTypes); err != nil {
			return nil, fmt.Errorf("error scanning neighborhood row: %w", err)
		}
		result = append(result, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating neighborhood rows: %w", err)
	}

	return result, nil
}

// SummarizeNeighborhoods computes the ranking's summary block. Returns nil
// for an empty ranking.
func SummarizeNeighborhoods(ranking []NeighborhoodCount) *NeighborhoodSummary {
	if len(ranking) == 0 {
		return nil
	}

	counts := make([]int, 0, len(ranking))
	total := 0
	max := ranking[0].IncidentCount
	min := ranking[0].IncidentCount
	for _, n := range ranking {
		counts = append(counts, n.IncidentCount)
		total += n.IncidentCount
		if n.IncidentCount > max {
			max = n.IncidentCount
		}
		if n.IncidentCount < min {
			min = n.IncidentCount
		}
	}

	// The ranking arrives sorted descending, so the middle element is the
	// median without re-sorting
	return &NeighborhoodSummary{
		AverageIncidents: float64(total) / float64(len(counts)),
		MedianIncidents:  counts[len(counts)/2],
		MaxIncidents:     max,
		MinIncidents:     min,
	}
}

// DangerRow is one neighborhood/time-period/day-type bucket
type DangerRow struct {
	Neighborhood      string  `json:"neighborhood"`
	TimePeriod        string  `json:"time_period"`
	DayType           string  `json:"day_type"`
	IncidentCount     int     `json:"incident_count"`
	IncidentTypes     int     `json:"incident_types"`
	PctOfNeighborhood float64 `json:"pct_of_neighborhood_incidents"`
}

// DangerFilter narrows the danger analysis
type DangerFilter struct {
	Neighborhood string
	TimePeriod   string
	DayType      string
	TopN         int
}

const dangerUnion = `
	SELECT neighborhood, created_date AS incident_time, category AS incident_type
	FROM "311_service_requests"
	WHERE created_date IS NOT NULL AND neighborhood IS NOT NULL AND neighborhood != ''

	UNION ALL

	SELECT analysis_neighborhood, incident_date, primary_situation
	FROM fire_incidents
	WHERE incident_date IS NOT NULL AND analysis_neighborhood IS NOT NULL AND analysis_neighborhood != ''

	UNION ALL

	SELECT neighborhood_district, received_date, complaint_item_type_description
	FROM fire_safety_complaints
	WHERE received_date IS NOT NULL AND neighborhood_district IS NOT NULL AND neighborhood_district != ''

	UNION ALL

	SELECT neighborhood_district, violation_date, violation_item_description
	FROM fire_violations
	WHERE violation_date IS NOT NULL AND neighborhood_district IS NOT NULL AND neighborhood_district != ''

	UNION ALL

	SELECT supervisor_district, call_date, call_type
	FROM sffd_service_calls
	WHERE call_date IS NOT NULL AND supervisor_district IS NOT NULL AND supervisor_district != ''

	UNION ALL

	SELECT pddistrict, "timestamp", category
	FROM sfpd_incidents
	WHERE "timestamp" IS NOT NULL AND pddistrict IS NOT NULL AND pddistrict != ''
`

// DangerAnalysis buckets incidents by neighborhood, time of day and day type
// and ranks the most incident-heavy combinations
func (s *StatsStore) DangerAnalysis(ctx context.Context, filter DangerFilter) ([]DangerRow, error) {
	query := `
		WITH time_parsed AS (
			SELECT
				neighborhood,
				incident_type,
				CASE
					WHEN EXTRACT(HOUR FROM incident_time) BETWEEN 6 AND 11 THEN 'Morning'
					WHEN EXTRACT(HOUR FROM incident_time) BETWEEN 12 AND 17 THEN 'Afternoon'
					WHEN EXTRACT(HOUR FROM incident_time) BETWEEN 18 AND 21 THEN 'Evening'
					ELSE 'Night'
				END AS time_period,
				CASE
					WHEN EXTRACT(DOW FROM incident_time) IN (0, 6) THEN 'Weekend'
					ELSE 'Weekday'
				END AS day_type
			FROM (` + dangerUnion + `) incidents
		)
		SELECT
			neighborhood,
			time_period,
			day_type,
			COUNT(*) AS incident_count,
			COUNT(DISTINCT incident_type) AS incident_types,
			ROUND((COUNT(*) * 100.0 / SUM(COUNT(*)) OVER (PARTITION BY neighborhood))::numeric, 2) AS pct
		FROM time_parsed
		WHERE 1=1
	`

	args := []interface{}{}
	argIndex := 1

	if filter.Neighborhood != "" {
		query += fmt.Sprintf(" AND neighborhood = $%d", argIndex)
		args = append(args, filter.Neighborhood)
		argIndex++
	}
	if filter.TimePeriod != "" {
		query += fmt.Sprintf(" AND time_period = $%d", argIndex)
		args = append(args, filter.TimePeriod)
		argIndex++
	}
	if filter.DayType != "" {
		query += fmt.Sprintf(" AND day_type = $%d", argIndex)
		args = append(args, filter.DayType)
		argIndex++
	}

	query += " GROUP BY neighborhood, time_period, day_type ORDER BY incident_count DESC"

	if filter.TopN > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.TopN)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing danger analysis query: %w", err)
	}
	defer rows.Close()

	var result []DangerRow
	for rows.Next() {
		var r DangerRow
		if err := rows.Scan(
			&r.Neighborhood,
			&r.TimePeriod,
			&r.DayType,
			&r.IncidentCount,
			&r.IncidentTypes,
			&r.PctOfNeighborhood,
		); err != nil {
			return nil, fmt.Errorf("error scanning danger row: %w", err)
		}
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating danger rows: %w", err)
	}

	return result, nil
}

// TypeBreakdown returns total crime and fire incident counts
func (s *StatsStore) TypeBreakdown(ctx context.Context) (crime int, fire int, err error) {
	if err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM sfpd_incidents WHERE "timestamp" IS NOT NULL`,
	).Scan(&crime); err != nil {
		return 0, 0, fmt.Errorf("error counting crime incidents: %w", err)
	}

	if err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM fire_incidents WHERE incident_date IS NOT NULL`,
	).Scan(&fire); err != nil {
		return 0, 0, fmt.Errorf("error counting fire incidents: %w", err)
	}

	return crime, fire, nil
}

// MonthlyCount aggregates one calendar month
type MonthlyCount struct {
	Month string `json:"-"`
	Crime int    `json:"crime_cnt"`
	Fire  int    `json:"fire_cnt"`
	Total int    `json:"total_incidents"`
}

// MonthlyIncidents aggregates crime and fire counts per month across years
func (s *StatsStore) MonthlyIncidents(ctx context.Context) ([]MonthlyCount, error) {
	query := `
		WITH crime AS (
			SELECT to_char("timestamp", 'YYYY-MM') AS month, COUNT(DISTINCT unique_key) AS cnt
			FROM sfpd_incidents
			WHERE "timestamp" IS NOT NULL
			GROUP BY 1
		),
		fire AS (
			SELECT to_char(incident_date, 'YYYY-MM') AS month, COUNT(*) AS cnt
			FROM fire_incidents
			WHERE incident_date IS NOT NULL
			GROUP BY 1
		),
		months AS (
			SELECT month FROM crime
			UNION
			SELECT month FROM fire
		)
		SELECT
			m.month,
			COALESCE(c.cnt, 0) AS crime_cnt,
			COALESCE(f.cnt, 0) AS fire_cnt,
			COALESCE(c.cnt, 0) + COALESCE(f.cnt, 0) AS total_incidents
		FROM months m
		LEFT JOIN crime c ON c.month = m.month
		LEFT JOIN fire f ON f.month = m.month
		ORDER BY m.month
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error executing monthly query: %w", err)
	}
	defer rows.Close()

	var result []MonthlyCount
	for rows.Next() {
		var m MonthlyCount
		if err := rows.Scan(&m.Month, &m.Crime, &m.Fire, &m.Total); err != nil {
			return nil, fmt.Errorf("error scanning monthly row: %w", err)
		}
		result = append(result, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly rows: %w", err)
	}

	return result, nil
}

// CategoryTotal is one crime category with its report count
type CategoryTotal struct {
	Category string
	Count    int
}

// TopCrimeCategories returns the most frequently reported crime categories
func (s *StatsStore) TopCrimeCategories(ctx context.Context, limit int) ([]CategoryTotal, error) {
	query := `
		SELECT category, COUNT(*) AS cnt
		FROM sfpd_incidents
		GROUP BY category
		ORDER BY cnt DESC
		LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error executing category query: %w", err)
	}
	defer rows.Close()

	var result []CategoryTotal
	for rows.Next() {
		var c CategoryTotal
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("error scanning category row: %w", err)
		}
		result = append(result, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category rows: %w", err)
	}

	return result, nil
}

// SituationAction pairs a fire situation with its most common response
type SituationAction struct {
	PrimarySituation   string `json:"primary_situation"`
	ActionTakenPrimary string `json:"action_taken_primary"`
}

// PrimarySituationActions returns, for the ten most common fire primary
// situations, the primary action most often taken
func (s *StatsStore) PrimarySituationActions(ctx context.Context) ([]SituationAction, error) {
	query := `
		WITH top_situations AS (
			SELECT primary_situation, COUNT(*) AS count
			FROM fire_incidents
			GROUP BY primary_situation
			ORDER BY COUNT(*) DESC
			LIMIT 10
		),
		actions AS (
			SELECT
				primary_situation,
				action_taken_primary,
				ROW_NUMBER() OVER (PARTITION BY primary_situation ORDER BY COUNT(*) DESC) AS row_num
			FROM fire_incidents
			WHERE primary_situation IN (SELECT primary_situation FROM top_situations)
			GROUP BY primary_situation, action_taken_primary
		)
		SELECT a.primary_situation, a.action_taken_primary
		FROM actions a
		JOIN top_situations t ON a.primary_situation = t.primary_situation
		WHERE a.row_num = 1
		ORDER BY t.count DESC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error executing situation query: %w", err)
	}
	defer rows.Close()

	var result []SituationAction
	for rows.Next() {
		var sa SituationAction
		if err := rows.Scan(&sa.PrimarySituation, &sa.ActionTakenPrimary); err != nil {
			return nil, fmt.Errorf("error scanning situation row: %w", err)
		}
		result = append(result, sa)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating situation rows: %w", err)
	}

	return result, nil
}

// Inspection is one fire inspection record
type Inspection struct {
	Number          string     `json:"inspection_number"`
	StartDate       *time.Time `json:"inspection_start_date"`
	EndDate         *time.Time `json:"inspection_end_date"`
	Status          *string    `json:"inspection_status"`
	Type            *string    `json:"inspection_type"`
	TypeDescription *string    `json:"inspection_type_description"`
	Address         *string    `json:"address"`
	Zipcode         *string    `json:"zipcode"`
}

// IncompleteInspections lists fire inspections without an end date, most
// recently started first
func (s *StatsStore) IncompleteInspections(ctx context.Context, limit int) ([]Inspection, error) {
	query := `
		SELECT
			inspection_number,
			inspection_start_date,
			inspection_end_date,
			inspection_status,
			inspection_type,
			inspection_type_description,
			address,
			zipcode
		FROM fire_inspections
		WHERE inspection_number IS NOT NULL AND inspection_end_date IS NULL
		ORDER BY inspection_start_date DESC
		LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error executing inspections query: %w", err)
	}
	defer rows.Close()

	var result []Inspection
	for rows.Next() {
		var i Inspection
		if err := rows.Scan(
			&i.Number,
			&i.StartDate,
			&i.EndDate,
			&i.Status,
			&i.Type,
			&i.TypeDescription,
			&i.Address,
			&i.Zipcode,
		); err != nil {
			return nil, fmt.Errorf("error scanning inspection row: %w", err)
		}
		result = append(result, i)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inspection rows: %w", err)
	}

	return result, nil
}

// FireNeighborhoodRank is one neighborhood's standing within a year
type FireNeighborhoodRank struct {
	Year         int     `json:"year"`
	Rank         int     `json:"rank"`
	Neighborhood string  `json:"neighborhood"`
	TotalFires   int     `json:"total_fires"`
	PctOfTotal   float64 `json:"percentage_of_total"`
}

// TopFireNeighborhoods returns the top neighborhoods by fire incidents for
// each of the latest years
func (s *StatsStore) TopFireNeighborhoods(ctx context.Context, limit, years int) ([]FireNeighborhoodRank, error) {
	query := `
		WITH neighborhood_stats AS (
			SELECT
				EXTRACT(YEAR FROM incident_date)::int AS year,
				analysis_neighborhood AS neighborhood,
				COUNT(*) AS total_fires,
				ROUND((COUNT(*) * 100.0 / (
					SELECT COUNT(*) FROM fire_incidents
					WHERE analysis_neighborhood IS NOT NULL AND analysis_neighborhood != ''
				))::numeric, 2) AS percentage_of_total
			FROM fire_incidents
			WHERE analysis_neighborhood IS NOT NULL AND analysis_neighborhood != ''
			GROUP BY 1, 2
		),
		ranked AS (
			SELECT
				year,
				ROW_NUMBER() OVER (PARTITION BY year ORDER BY total_fires DESC) AS rank,
				neighborhood,
				total_fires,
				percentage_of_total
			FROM neighborhood_stats
		)
		SELECT year, rank, neighborhood, total_fires, percentage_of_total
		FROM ranked
		WHERE year >= (SELECT MAX(year) FROM neighborhood_stats) - ($1 - 1)
		AND rank <= $2
		ORDER BY year DESC, rank ASC
	`

	rows, err := s.db.Query(ctx, query, years, limit)
	if err != nil {
		return nil, fmt.Errorf("error executing fire neighborhoods query: %w", err)
	}
	defer rows.Close()

	var result []FireNeighborhoodRank
	for rows.Next() {
		var r FireNeighborhoodRank
		if err := rows.Scan(&r.Year, &r.Rank, &r.Neighborhood, &r.TotalFires, &r.PctOfTotal); err != nil {
			return nil, fmt.Errorf("error scanning fire neighborhood row: %w", err)
		}
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fire neighborhood rows: %w", err)
	}

	return result, nil
}

// ResponseTimeRow holds response-time stats for one SFFD call type
type ResponseTimeRow struct {
	Rank       int     `json:"rank"`
	CallType   string  `json:"call_type"`
	TotalCalls int     `json:"total_calls"`
	AvgMinutes float64 `json:"avg_response_minutes"`
	MinMinutes float64 `json:"min_response_minutes"`
	MaxMinutes float64 `json:"max_response_minutes"`
}

// responseTimeSortColumns whitelists the sortable columns; the sort key is
// interpolated into the query, so nothing outside this map may reach it
var responseTimeSortColumns = map[string]string{
	"avg_response": "avg_response_minutes",
	"min_response": "min_response_minutes",
	"max_response": "max_response_minutes",
}

// ResponseTimes computes avg/min/max response minutes per SFFD call type,
// counting only call types with at least five usable calls. sortBy must be a
// key of responseTimeSortColumns and order must be ASC or DESC; callers
// validate both before reaching the store.
func (s *StatsStore) ResponseTimes(ctx context.Context, limit int, sortBy, order string) ([]ResponseTimeRow, error) {
	column, ok := responseTimeSortColumns[sortBy]
	if !ok {
		return nil, fmt.Errorf("unsupported sort key %q", sortBy)
	}
	if order != "ASC" && order != "DESC" {
		return nil, fmt.Errorf("unsupported sort order %q", order)
	}

	query := fmt.Sprintf(`
		WITH stats AS (
			SELECT
				call_type,
				COUNT(*) AS total_calls,
				ROUND(AVG(EXTRACT(EPOCH FROM (on_scene_timestamp - received_timestamp)) / 60)::numeric, 2)
					AS avg_response_minutes,
				ROUND(MIN(EXTRACT(EPOCH FROM (on_scene_timestamp - received_timestamp)) / 60)::numeric, 2)
					AS min_response_minutes,
				ROUND(MAX(EXTRACT(EPOCH FROM (on_scene_timestamp - received_timestamp)) / 60)::numeric, 2)
					AS max_response_minutes
			FROM sffd_service_calls
			WHERE call_type IS NOT NULL
			AND call_type != ''
			AND received_timestamp IS NOT NULL
			AND on_scene_timestamp IS NOT NULL
			AND on_scene_timestamp >= received_timestamp
			GROUP BY call_type
			HAVING COUNT(*) >= 5
		),
		sorted AS (
			SELECT *, ROW_NUMBER() OVER (ORDER BY %s %s) AS rank
			FROM stats
		)
		SELECT rank, call_type, total_calls, avg_response_minutes, min_response_minutes, max_response_minutes
		FROM sorted
		ORDER BY rank
		LIMIT $1
	`, column, order)

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error executing response times query: %w", err)
	}
	defer rows.Close()

	var result []ResponseTimeRow
	for rows.Next() {
		var r ResponseTimeRow
		if err := rows.Scan(&r.Rank, &r.CallType, &r.TotalCalls, &r.AvgMinutes, &r.MinMinutes, &r.MaxMinutes); err != nil {
			return nil, fmt.Errorf("error scanning response time row: %w", err)
		}
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating response time rows: %w", err)
	}

	return result, nil
}
