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

// EnrollmentRepository handles persistence of enrollments, including the
// soft-delete tombstones used by the restore-on-re-enroll path.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns active enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN students st ON st.id = e.student_id
JOIN sections s ON s.id = e.section_id
JOIN courses c ON c.id = s.course_id
JOIN terms t ON t.id = s.term_id
WHERE e.is_deleted = FALSE`
	var args []interface{}

	if filter.StudentID != "" {
		base += fmt.Sprintf(" AND e.student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		base += fmt.Sprintf(" AND e.section_id = $%d", len(args)+1)
		args = append(args, filter.SectionID)
	}

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"student_name": "st.surname",
		"course_code":  "c.code",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "e.created_at"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.section_id, e.total_grade, e.letter_grade, e.is_deleted, e.created_at, e.updated_at,
        st.student_no, st.name || ' ' || st.surname AS student_name,
        c.code AS course_code, s.section_code, t.name AS term_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an active enrollment by its id.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, total_grade, letter_grade, is_deleted, created_at, updated_at
        FROM enrollments WHERE id = $1 AND is_deleted = FALSE`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an active enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.section_id, e.total_grade, e.letter_grade, e.is_deleted, e.created_at, e.updated_at,
        st.student_no, st.name || ' ' || st.surname AS student_name,
        c.code AS course_code, s.section_code, t.name AS term_name
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.id = s.course_id
        JOIN terms t ON t.id = s.term_id
        WHERE e.id = $1 AND e.is_deleted = FALSE`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByPair returns the enrollment row for (studentID, sectionID) with the
// given deletion state, or sql.ErrNoRows.
func (r *EnrollmentRepository) FindByPair(ctx context.Context, studentID, sectionID string, deleted bool) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, total_grade, letter_grade, is_deleted, created_at, updated_at
        FROM enrollments WHERE student_id = $1 AND section_id = $2 AND is_deleted = $3 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, sectionID, deleted); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ExistsActivePair checks whether an active enrollment exists for the pair,
// optionally excluding an id.
func (r *EnrollmentRepository) ExistsActivePair(ctx context.Context, studentID, sectionID, excludeID string) (bool, error) {
	query := "SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 AND is_deleted = FALSE"
	args := []interface{}{studentID, sectionID}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new active enrollment row.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, section_id, total_grade, letter_grade, is_deleted, created_at, updated_at)
        VALUES (:id, :student_id, :section_id, :total_grade, :letter_grade, :is_deleted, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Restore reactivates a soft-deleted enrollment in place, overwriting only the
// grade fields. The row identity is preserved.
func (r *EnrollmentRepository) Restore(ctx context.Context, id string, totalGrade *float64, letterGrade *string) error {
	const query = `UPDATE enrollments SET is_deleted = FALSE, total_grade = $2, letter_grade = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, totalGrade, letterGrade, time.Now().UTC()); err != nil {
		return fmt.Errorf("restore enrollment: %w", err)
	}
	return nil
}

// Update modifies an existing enrollment.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET student_id = :student_id, section_id = :section_id,
        total_grade = :total_grade, letter_grade = :letter_grade, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

// SoftDelete marks the enrollment deleted. The tombstone keeps the pair
// reserved so a later re-enroll restores it instead of inserting.
func (r *EnrollmentRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE enrollments SET is_deleted = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("soft delete enrollment: %w", err)
	}
	return nil
}
