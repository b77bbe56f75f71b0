package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// ModuleRepository handles the business-domain catalog. Modules are
// immutable after creation except for the active flag.
type ModuleRepository struct {
	db *database.DB
}

// NewModuleRepository creates a new ModuleRepository.
func NewModuleRepository(db *database.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// SaveModule inserts a module, or toggles activation on an existing one.
func (r *ModuleRepository) SaveModule(ctx context.Context, m *Module) error {
	if m.ID == "" {
		query := `
			INSERT INTO modules (name, is_active)
			VALUES ($1, $2)
			RETURNING id, created_at, updated_at
		`
		err := r.db.QueryRow(ctx, query, m.Name, m.IsActive).
			Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create module")
	}

	query := `
		UPDATE modules
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, m.ID, m.IsActive).Scan(&m.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("module", m.ID)
	}
	return errors.Wrap(err, errors.ErrCodeInternal, "failed to update module")
}

// GetModule retrieves a module by id.
func (r *ModuleRepository) GetModule(ctx context.Context, id string) (*Module, error) {
	query := `
		SELECT id, name, is_active, created_at, updated_at
		FROM modules
		WHERE id = $1
	`
	m := &Module{}
	err := r.db.QueryRow(ctx, query, id).
		Scan(&m.ID, &m.Name, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("module", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get module")
	}
	return m, nil
}

// ListModules returns all modules ordered by name.
func (r *ModuleRepository) ListModules(ctx context.Context) ([]*Module, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, is_active, created_at, updated_at
		FROM modules
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list modules")
	}
	defer rows.Close()

	var modules []*Module
	for rows.Next() {
		m := &Module{}
		if err := rows.Scan(&m.ID, &m.Name, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan module")
		}
		modules = append(modules, m)
	}
	return modules, nil
}
