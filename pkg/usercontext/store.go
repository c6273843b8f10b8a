package usercontext

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

// Store reads the user, position and department rows a context is built from
type Store interface {
	// GetUser returns the user row or an error wrapping ErrUserNotFound
	GetUser(ctx context.Context, userID string) (*hierarchy.User, error)

	// ActivePositions returns the user's active positions, newest first
	ActivePositions(ctx context.Context, userID string) ([]hierarchy.Position, error)

	// Departments returns the department codes attached to a position
	Departments(ctx context.Context, positionID string) ([]string, error)

	// Position returns a position whether or not it is active
	Position(ctx context.Context, positionID string) (*hierarchy.Position, error)
}

// SQLStore implements Store over the users, positions and
// position_departments tables
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQL store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// GetUser implements Store
func (s *SQLStore) GetUser(ctx context.Context, userID string) (*hierarchy.User, error) {
	var u hierarchy.User
	var orgID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, is_master, status
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &orgID, &u.IsMaster, &u.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w %s", hierarchy.ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.OrganizationID = orgID.String
	return &u, nil
}

// ActivePositions implements Store
func (s *SQLStore) ActivePositions(ctx context.Context, userID string) ([]hierarchy.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, unit_id, level, active, assigned_at
		FROM positions
		WHERE user_id = $1 AND active = TRUE
		ORDER BY assigned_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var positions []hierarchy.Position
	for rows.Next() {
		var p hierarchy.Position
		var unitID sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &unitID, &p.Level, &p.Active, &p.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.UnitID = unitID.String
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Departments implements Store
func (s *SQLStore) Departments(ctx context.Context, positionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT department_code
		FROM position_departments
		WHERE position_id = $1
		ORDER BY department_code
	`, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// Position implements Store
func (s *SQLStore) Position(ctx context.Context, positionID string) (*hierarchy.Position, error) {
	var p hierarchy.Position
	var unitID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, unit_id, level, active, assigned_at
		FROM positions
		WHERE id = $1
	`, positionID).Scan(&p.ID, &p.UserID, &unitID, &p.Level, &p.Active, &p.AssignedAt)
	if err == sql.ErrNoRows {
		return nil, hierarchy.NotFound("position", positionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	p.UnitID = unitID.String
	return &p, nil
}

// ActivatePositionTx makes positionID the only active position of userID
// within tx. A position owned by another user is reported as not found and
// nothing is changed once the caller rolls back.
func ActivatePositionTx(ctx context.Context, tx *sql.Tx, userID, positionID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE positions SET active = TRUE
		WHERE id = $1 AND user_id = $2
	`, positionID, userID)
	if err != nil {
		return fmt.Errorf("failed to activate position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to activate position: %w", err)
	}
	if n == 0 {
		return hierarchy.NotFound("position", positionID)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE positions SET active = FALSE
		WHERE user_id = $1 AND id <> $2 AND active = TRUE
	`, userID, positionID); err != nil {
		return fmt.Errorf("failed to deactivate positions: %w", err)
	}
	return nil
}
