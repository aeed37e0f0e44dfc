package trials

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSearcher queries the clinical_trials and trial_sites tables.
type PostgresSearcher struct {
	pool querier
}

// NewPostgresSearcher initializes a searcher backed by pgxpool.
func NewPostgresSearcher(pool *pgxpool.Pool) *PostgresSearcher {
	if pool == nil {
		panic("trials: pgx pool required")
	}
	return &PostgresSearcher{pool: pool}
}

func newPostgresSearcherWithDB(db querier) *PostgresSearcher {
	if db == nil {
		panic("trials: db required")
	}
	return &PostgresSearcher{pool: db}
}

var _ Searcher = (*PostgresSearcher)(nil)

const trialColumns = `
	ct.id, ct.trial_name, ct.conditions, ts.site_location, ts.investigator_name,
	COALESCE(ct.brief_summary, ''), COALESCE(ct.phase, ''), COALESCE(ct.status, '')`

// SearchByConditionAndLocation returns trials matching both filters.
func (s *PostgresSearcher) SearchByConditionAndLocation(ctx context.Context, condition, location string, limit int) ([]Trial, error) {
	query := `
		SELECT DISTINCT` + trialColumns + `
		FROM clinical_trials ct
		JOIN trial_sites ts ON ct.id = ts.trial_id
		WHERE ct.conditions ILIKE $1
		AND ts.site_location ILIKE $2
		ORDER BY ct.conditions, ct.trial_name
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, "%"+condition+"%", "%"+location+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("trials: condition and location search failed: %w", err)
	}
	defer rows.Close()
	return scanTrials(rows)
}

// SearchByLocation returns every trial with a site in the location.
func (s *PostgresSearcher) SearchByLocation(ctx context.Context, location string, limit int) ([]Trial, error) {
	query := `
		SELECT DISTINCT` + trialColumns + `
		FROM clinical_trials ct
		JOIN trial_sites ts ON ct.id = ts.trial_id
		WHERE ts.site_location ILIKE $1
		ORDER BY ct.conditions, ct.trial_name
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, "%"+location+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("trials: location search failed: %w", err)
	}
	defer rows.Close()
	return scanTrials(rows)
}

// ConditionsInLocation lists the distinct conditions with at least one trial
// in the location.
func (s *PostgresSearcher) ConditionsInLocation(ctx context.Context, location string, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT ct.conditions
		FROM clinical_trials ct
		JOIN trial_sites ts ON ct.id = ts.trial_id
		WHERE ts.site_location ILIKE $1
		ORDER BY ct.conditions
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, "%"+location+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("trials: conditions lookup failed: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// LocationsWithCondition lists other locations running trials for the
// condition, for the no-results fallback.
func (s *PostgresSearcher) LocationsWithCondition(ctx context.Context, condition, excludeLocation string, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT ts.site_location
		FROM clinical_trials ct
		JOIN trial_sites ts ON ct.id = ts.trial_id
		WHERE ct.conditions ILIKE $1
		AND ts.site_location NOT ILIKE $2
		ORDER BY ts.site_location
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, "%"+condition+"%", "%"+excludeLocation+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("trials: nearby locations lookup failed: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanTrials(rows pgx.Rows) ([]Trial, error) {
	var trials []Trial
	for rows.Next() {
		var t Trial
		if err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.Conditions,
			&t.SiteLocation,
			&t.InvestigatorName,
			&t.BriefSummary,
			&t.Phase,
			&t.Status,
		); err != nil {
			return nil, fmt.Errorf("trials: scan failed: %w", err)
		}
		trials = append(trials, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trials: rows failed: %w", err)
	}
	return trials, nil
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("trials: scan failed: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trials: rows failed: %w", err)
	}
	return out, nil
}
