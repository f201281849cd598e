package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studentcrm/studentcrm-api/internal/models"
)

// CoordinatorRepository manages persistence for coordinator profiles.
type CoordinatorRepository struct {
	db *sqlx.DB
}

// NewCoordinatorRepository constructs a CoordinatorRepository.
func NewCoordinatorRepository(db *sqlx.DB) *CoordinatorRepository {
	return &CoordinatorRepository{db: db}
}

// List returns active coordinators matching the provided filters.
func (r *CoordinatorRepository) List(ctx context.Context, filter models.CoordinatorFilter) ([]models.Coordinator, int, error) {
	base := "FROM coordinators c WHERE c.is_deleted = FALSE"
	var args []interface{}

	if filter.Department != "" {
		base += fmt.Sprintf(" AND c.department = $%d", len(args)+1)
		args = append(args, filter.Department)
	}
	if filter.Search != "" {
		base += fmt.Sprintf(" AND (LOWER(c.full_name) LIKE $%d OR LOWER(c.coordinator_no) LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	allowedSorts := map[string]string{
		"coordinator_no": "c.coordinator_no",
		"full_name":      "c.full_name",
		"created_at":     "c.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "c.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.coordinator_no, c.full_name, c.email, c.department, c.account_id, c.is_deleted, c.created_at, c.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var coordinators []models.Coordinator
	if err := r.db.SelectContext(ctx, &coordinators, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list coordinators: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count coordinators: %w", err)
	}
	return coordinators, total, nil
}

// FindByID fetches an active coordinator by id.
func (r *CoordinatorRepository) FindByID(ctx context.Context, id string) (*models.Coordinator, error) {
	const query = `SELECT id, coordinator_no, full_name, email, department, account_id, is_deleted, created_at, updated_at
        FROM coordinators WHERE id = $1 AND is_deleted = FALSE`
	var coordinator models.Coordinator
	if err := r.db.GetContext(ctx, &coordinator, query, id); err != nil {
		return nil, err
	}
	return &coordinator, nil
}

// ExistsByCoordinatorNo checks whether an active coordinator holds the given
// CoordinatorNo, optionally excluding an id.
func (r *CoordinatorRepository) ExistsByCoordinatorNo(ctx context.Context, coordinatorNo, excludeID string) (bool, error) {
	query := "SELECT 1 FROM coordinators WHERE coordinator_no = $1 AND is_deleted = FALSE"
	args := []interface{}{coordinatorNo}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check coordinator_no: %w", err)
	}
	return true, nil
}

// Create inserts a new coordinator profile.
func (r *CoordinatorRepository) Create(ctx context.Context, coordinator *models.Coordinator) error {
	if coordinator.ID == "" {
		coordinator.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	coordinator.CreatedAt = now
	coordinator.UpdatedAt = now
	const query = `INSERT INTO coordinators (id, coordinator_no, full_name, email, department, account_id, is_deleted, created_at, updated_at)
        VALUES (:id, :coordinator_no, :full_name, :email, :department, :account_id, :is_deleted, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, coordinator); err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}
	return nil
}

// Update modifies an existing coordinator profile.
func (r *CoordinatorRepository) Update(ctx context.Context, coordinator *models.Coordinator) error {
	coordinator.UpdatedAt = time.Now().UTC()
	const query = `UPDATE coordinators SET coordinator_no = :coordinator_no, full_name = :full_name, email = :email,
        department = :department, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, coordinator); err != nil {
		return fmt.Errorf("update coordinator: %w", err)
	}
	return nil
}

// SoftDelete marks the coordinator deleted.
func (r *CoordinatorRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE coordinators SET is_deleted = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("soft delete coordinator: %w", err)
	}
	return nil
}
