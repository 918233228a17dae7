package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yabodle/sitescan/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type ListParams struct {
	Search   string
	Source   string
	Category string
	Status   string
	MinScore int
	MinValue float64
	Active   *bool
	SortBy   string
	Limit    int
	Offset   int
}

type ListResult struct {
	Projects []models.Project `json:"projects"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// selectCols is the comprehensive column list for all project queries.
const selectCols = `id, source_id, external_id, title, description, agency, location,
	latitude, longitude, category, status, source_status, solicitation_number,
	permit_number, contractor, naics_code, source_url, posted_date, due_date,
	estimated_value, trade_tags, match_score, raw_payload, is_active,
	first_seen, last_seen, last_changed`

func scanProject(scan func(dest ...interface{}) error) (models.Project, error) {
	var p models.Project
	var agency, location, sourceStatus, solicitationNo, permitNumber *string
	var contractor, naicsCode, sourceURL *string

	err := scan(
		&p.ID, &p.SourceID, &p.ExternalID, &p.Title, &p.Description, &agency, &location,
		&p.Latitude, &p.Longitude, &p.Category, &p.Status, &sourceStatus, &solicitationNo,
		&permitNumber, &contractor, &naicsCode, &sourceURL, &p.PostedDate, &p.DueDate,
		&p.EstimatedValue, &p.TradeTags, &p.MatchScore, &p.RawPayload, &p.IsActive,
		&p.FirstSeen, &p.LastSeen, &p.LastChanged,
	)
	if err != nil {
		return p, err
	}

	if agency != nil {
		p.Agency = *agency
	}
	if location != nil {
		p.Location = *location
	}
	if sourceStatus != nil {
		p.SourceStatus = *sourceStatus
	}
	if solicitationNo != nil {
		p.SolicitationNo = *solicitationNo
	}
	if permitNumber != nil {
		p.PermitNumber = *permitNumber
	}
	if contractor != nil {
		p.Contractor = *contractor
	}
	if naicsCode != nil {
		p.NAICSCode = *naicsCode
	}
	if sourceURL != nil {
		p.SourceURL = *sourceURL
	}

	return p, nil
}

// FindByKey looks up a project by its dedup key. Returns (nil, nil) when
// no row exists.
func (s *Store) FindByKey(ctx context.Context, sourceID, externalID string) (*models.Project, error) {
	sql := fmt.Sprintf(`SELECT %s FROM projects WHERE source_id = $1 AND external_id = $2`, selectCols)
	row := s.pool.QueryRow(ctx, sql, sourceID, externalID)

	p, err := scanProject(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by key failed: %w", err)
	}

	return &p, nil
}

// Insert writes a brand-new project row and fills in the generated id.
func (s *Store) Insert(ctx context.Context, p *models.Project) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (
			source_id, external_id, title, description, agency, location,
			latitude, longitude, category, status, source_status, solicitation_number,
			permit_number, contractor, naics_code, source_url, posted_date, due_date,
			estimated_value, trade_tags, match_score, raw_payload, is_active,
			first_seen, last_seen, last_changed
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, TRUE,
			$23, $23, $23
		)
		RETURNING id
	`,
		p.SourceID, p.ExternalID, p.Title, p.Description, nilIfEmpty(p.Agency), nilIfEmpty(p.Location),
		p.Latitude, p.Longitude, p.Category, p.Status, nilIfEmpty(p.SourceStatus), nilIfEmpty(p.SolicitationNo),
		nilIfEmpty(p.PermitNumber), nilIfEmpty(p.Contractor), nilIfEmpty(p.NAICSCode), nilIfEmpty(p.SourceURL),
		p.PostedDate, p.DueDate, p.EstimatedValue, p.TradeTags, p.MatchScore, p.RawPayload, p.FirstSeen,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert project failed: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing project row.
func (s *Store) Update(ctx context.Context, p *models.Project) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE projects SET
			title = $1,
			description = $2,
			agency = COALESCE(NULLIF($3, ''), agency),
			location = COALESCE(NULLIF($4, ''), location),
			latitude = COALESCE($5, latitude),
			longitude = COALESCE($6, longitude),
			category = $7,
			status = $8,
			source_status = COALESCE(NULLIF($9, ''), source_status),
			due_date = $10,
			estimated_value = $11,
			trade_tags = $12,
			match_score = $13,
			raw_payload = COALESCE($14, raw_payload),
			is_active = TRUE,
			last_seen = $15,
			last_changed = $16
		WHERE id = $17
	`,
		p.Title, p.Description, p.Agency, p.Location, p.Latitude, p.Longitude,
		p.Category, p.Status, p.SourceStatus, p.DueDate, p.EstimatedValue,
		p.TradeTags, p.MatchScore, p.RawPayload, p.LastSeen, p.LastChanged, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project failed: %w", err)
	}
	return nil
}

// Touch bumps last_seen for a row whose content did not change.
func (s *Store) Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE projects SET status = $1, is_active = TRUE, last_seen = $2 WHERE id = $3
	`, models.StatusUnchanged, seenAt, id)
	if err != nil {
		return fmt.Errorf("touch project failed: %w", err)
	}
	return nil
}

// MarkStale flips is_active off for projects not seen since the cutoff.
// Rows are kept; the pipeline never deletes.
func (s *Store) MarkStale(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects SET is_active = FALSE WHERE is_active = TRUE AND last_seen < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark stale failed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ListProjects(ctx context.Context, params ListParams) (*ListResult, error) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if params.Search != "" {
		where += fmt.Sprintf(" AND (title ILIKE '%%' || $%d || '%%' OR description ILIKE '%%' || $%d || '%%')", argIdx, argIdx)
		args = append(args, params.Search)
		argIdx++
	}
	if params.Source != "" {
		where += fmt.Sprintf(" AND source_id = $%d", argIdx)
		args = append(args, params.Source)
		argIdx++
	}
	if params.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, params.Category)
		argIdx++
	}
	if params.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, params.Status)
		argIdx++
	}
	if params.MinScore > 0 {
		where += fmt.Sprintf(" AND match_score >= $%d", argIdx)
		args = append(args, params.MinScore)
		argIdx++
	}
	if params.MinValue > 0 {
		where += fmt.Sprintf(" AND estimated_value >= $%d", argIdx)
		args = append(args, params.MinValue)
		argIdx++
	}
	if params.Active != nil {
		where += fmt.Sprintf(" AND is_active = $%d", argIdx)
		args = append(args, *params.Active)
		argIdx++
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM projects " + where
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM projects %s", selectCols, where)

	switch params.SortBy {
	case "due_date":
		selectSQL += " ORDER BY due_date ASC NULLS LAST"
	case "value_desc":
		selectSQL += " ORDER BY estimated_value DESC NULLS LAST"
	case "newest":
		selectSQL += " ORDER BY first_seen DESC"
	default: // "score"
		selectSQL += " ORDER BY match_score DESC NULLS LAST, last_changed DESC"
	}

	selectSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	if projects == nil {
		projects = []models.Project{}
	}

	return &ListResult{
		Projects: projects,
		Total:    total,
		Limit:    params.Limit,
		Offset:   params.Offset,
	}, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	sql := fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1`, selectCols)
	row := s.pool.QueryRow(ctx, sql, id)

	p, err := scanProject(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("not found: %w", err)
	}

	return &p, nil
}

func (s *Store) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM projects").Scan(&total)
	stats["total"] = total

	var active int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM projects WHERE is_active = TRUE").Scan(&active)
	stats["active"] = active

	var highValue int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM projects WHERE match_score >= 75").Scan(&highValue)
	stats["strong_matches"] = highValue

	categoryCounts := map[string]int{}
	rows, err := s.pool.Query(ctx, "SELECT category, COUNT(*) FROM projects GROUP BY category")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var category string
			var count int
			if scanErr := rows.Scan(&category, &count); scanErr == nil {
				categoryCounts[category] = count
			}
		}
	}
	stats["category_counts"] = categoryCounts

	return stats, nil
}

// nilIfEmpty returns nil for empty strings so NULL is stored in DB.
func nilIfEmpty(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
