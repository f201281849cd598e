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
	"github.com/studentcrm/studentcrm-api/pkg/database"
)

// TeacherRepository manages persistence for teacher profiles.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns active teachers matching the provided filters.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers t WHERE t.is_deleted = FALSE"
	var args []interface{}

	if filter.Search != "" {
		base += fmt.Sprintf(" AND (LOWER(t.name) LIKE $%d OR LOWER(t.surname) LIKE $%d OR LOWER(t.staff_no) LIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	allowedSorts := map[string]string{
		"staff_no":   "t.staff_no",
		"surname":    "t.surname",
		"created_at": "t.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "t.created_at"
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

	query := fmt.Sprintf(`SELECT t.id, t.staff_no, t.name, t.surname, t.email, t.phone, t.account_id, t.is_deleted, t.created_at, t.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}
	return teachers, total, nil
}

// FindByID fetches an active teacher by id.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	const query = `SELECT id, staff_no, name, surname, email, phone, account_id, is_deleted, created_at, updated_at
        FROM teachers WHERE id = $1 AND is_deleted = FALSE`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ExistsByStaffNo checks whether an active teacher holds the given StaffNo,
// optionally excluding an id.
func (r *TeacherRepository) ExistsByStaffNo(ctx context.Context, staffNo, excludeID string) (bool, error) {
	query := "SELECT 1 FROM teachers WHERE staff_no = $1 AND is_deleted = FALSE"
	args := []interface{}{staffNo}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check staff_no: %w", err)
	}
	return true, nil
}

// Create inserts a new teacher profile.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	teacher.CreatedAt = now
	teacher.UpdatedAt = now
	const query = `INSERT INTO teachers (id, staff_no, name, surname, email, phone, account_id, is_deleted, created_at, updated_at)
        VALUES (:id, :staff_no, :name, :surname, :email, :phone, :account_id, :is_deleted, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// Update modifies an existing teacher profile.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teachers SET staff_no = :staff_no, name = :name, surname = :surname, email = :email,
        phone = :phone, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return nil
}

// SoftDeleteAndUnassignSections marks the teacher deleted and clears the
// teacher reference on their active sections, in one transaction. Sections
// survive with a NULL teacher until reassigned.
func (r *TeacherRepository) SoftDeleteAndUnassignSections(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return database.Transact(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sections SET teacher_id = NULL, updated_at = $2 WHERE teacher_id = $1 AND is_deleted = FALSE`, id, now); err != nil {
			return fmt.Errorf("unassign teacher sections: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE teachers SET is_deleted = TRUE, updated_at = $2 WHERE id = $1`, id, now); err != nil {
			return fmt.Errorf("soft delete teacher: %w", err)
		}
		return nil
	})
}
