package orgtree

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

const unitColumns = "id, organization_id, parent_id, type, active"

// SQLSource reads org units from the org_units table (PostgreSQL)
type SQLSource struct {
	db *sql.DB
}

// NewSQLSource creates a new SQL-backed source
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// Unit implements Source
func (s *SQLSource) Unit(ctx context.Context, id string) (*hierarchy.OrgUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM org_units WHERE id = $1`

	u, err := scanUnit(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, hierarchy.NotFound("unit", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return u, nil
}

// Children implements Source. One query is issued per tree level.
func (s *SQLSource) Children(ctx context.Context, parentIDs []string) ([]hierarchy.OrgUnit, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + unitColumns + ` FROM org_units WHERE parent_id = ANY($1) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(parentIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list child units: %w", err)
	}
	defer rows.Close()

	var units []hierarchy.OrgUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate units: %w", err)
	}
	return units, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUnit(row scanner) (*hierarchy.OrgUnit, error) {
	var (
		u        hierarchy.OrgUnit
		parentID sql.NullString
		unitType string
	)
	if err := row.Scan(&u.ID, &u.OrganizationID, &parentID, &unitType, &u.Active); err != nil {
		return nil, err
	}
	if parentID.Valid {
		u.ParentID = parentID.String
	}
	u.Type = hierarchy.UnitType(unitType)
	return &u, nil
}
