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

// StudentRepository manages persistence for student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns active students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students s WHERE s.is_deleted = FALSE"
	var args []interface{}

	if filter.Major != "" {
		base += fmt.Sprintf(" AND s.major = $%d", len(args)+1)
		args = append(args, filter.Major)
	}
	if filter.Search != "" {
		base += fmt.Sprintf(" AND (LOWER(s.name) LIKE $%d OR LOWER(s.surname) LIKE $%d OR LOWER(s.student_no) LIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	allowedSorts := map[string]string{
		"student_no": "s.student_no",
		"surname":    "s.surname",
		"created_at": "s.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "s.created_at"
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

	query := fmt.Sprintf(`SELECT s.id, s.student_no, s.name, s.surname, s.email, s.phone, s.major, s.gpa, s.account_id, s.is_deleted, s.created_at, s.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches an active student with account context.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.student_no, s.name, s.surname, s.email, s.phone, s.major, s.gpa, s.account_id, s.is_deleted, s.created_at, s.updated_at,
        a.must_change_password
        FROM students s
        JOIN accounts a ON a.id = s.account_id
        WHERE s.id = $1 AND s.is_deleted = FALSE`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByStudentNo checks whether an active student holds the given
// StudentNo, optionally excluding an id.
func (r *StudentRepository) ExistsByStudentNo(ctx context.Context, studentNo, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE student_no = $1 AND is_deleted = FALSE"
	args := []interface{}{studentNo}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student_no: %w", err)
	}
	return true, nil
}

// Create inserts a new student profile.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, student_no, name, surname, email, phone, major, gpa, account_id, is_deleted, created_at, updated_at)
        VALUES (:id, :student_no, :name, :surname, :email, :phone, :major, :gpa, :account_id, :is_deleted, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student profile.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET student_no = :student_no, name = :name, surname = :surname, email = :email,
        phone = :phone, major = :major, gpa = :gpa, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// SoftDelete marks the student deleted. The linked account is removed by the
// service afterwards; the profile row is kept as a tombstone.
func (r *StudentRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE students SET is_deleted = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("soft delete student: %w", err)
	}
	return nil
}
