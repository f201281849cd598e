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

// SectionRepository manages persistence for course sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs a SectionRepository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// List returns active sections with display context.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	base := `FROM sections s
JOIN courses c ON c.id = s.course_id
JOIN terms t ON t.id = s.term_id
LEFT JOIN teachers te ON te.id = s.teacher_id
WHERE s.is_deleted = FALSE`
	var args []interface{}

	if filter.CourseID != "" {
		base += fmt.Sprintf(" AND s.course_id = $%d", len(args)+1)
		args = append(args, filter.CourseID)
	}
	if filter.TermID != "" {
		base += fmt.Sprintf(" AND s.term_id = $%d", len(args)+1)
		args = append(args, filter.TermID)
	}
	if filter.TeacherID != "" {
		base += fmt.Sprintf(" AND s.teacher_id = $%d", len(args)+1)
		args = append(args, filter.TeacherID)
	}

	allowedSorts := map[string]string{
		"section_code": "s.section_code",
		"course_code":  "c.code",
		"created_at":   "s.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT s.id, s.section_code, s.course_id, s.term_id, s.teacher_id, s.is_deleted, s.created_at, s.updated_at,
        c.code AS course_code, c.title AS course_title, t.name AS term_name,
        CASE WHEN te.id IS NULL THEN NULL ELSE te.name || ' ' || te.surname END AS teacher_name
        %s ORDER BY %s %s, s.section_code ASC LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// FindByID fetches an active section by id.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT id, section_code, course_id, term_id, teacher_id, is_deleted, created_at, updated_at
        FROM sections WHERE id = $1 AND is_deleted = FALSE`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindDetailByID fetches an active section with display context.
func (r *SectionRepository) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	const query = `SELECT s.id, s.section_code, s.course_id, s.term_id, s.teacher_id, s.is_deleted, s.created_at, s.updated_at,
        c.code AS course_code, c.title AS course_title, t.name AS term_name,
        CASE WHEN te.id IS NULL THEN NULL ELSE te.name || ' ' || te.surname END AS teacher_name
        FROM sections s
        JOIN courses c ON c.id = s.course_id
        JOIN terms t ON t.id = s.term_id
        LEFT JOIN teachers te ON te.id = s.teacher_id
        WHERE s.id = $1 AND s.is_deleted = FALSE`
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsComposite checks the (course_id, term_id, section_code) uniqueness
// among active sections, optionally excluding an id.
func (r *SectionRepository) ExistsComposite(ctx context.Context, courseID, termID, sectionCode, excludeID string) (bool, error) {
	query := "SELECT 1 FROM sections WHERE course_id = $1 AND term_id = $2 AND section_code = $3 AND is_deleted = FALSE"
	args := []interface{}{courseID, termID, sectionCode}
	if excludeID != "" {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check section composite key: %w", err)
	}
	return true, nil
}

// CountActiveByCourse returns the number of active sections for a course.
func (r *SectionRepository) CountActiveByCourse(ctx context.Context, courseID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM sections WHERE course_id = $1 AND is_deleted = FALSE`, courseID); err != nil {
		return 0, fmt.Errorf("count course sections: %w", err)
	}
	return count, nil
}

// CountActiveByTerm returns the number of active sections for a term.
func (r *SectionRepository) CountActiveByTerm(ctx context.Context, termID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM sections WHERE term_id = $1 AND is_deleted = FALSE`, termID); err != nil {
		return 0, fmt.Errorf("count term sections: %w", err)
	}
	return count, nil
}

// Create inserts a new section.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	section.CreatedAt = now
	section.UpdatedAt = now
	const query = `INSERT INTO sections (id, section_code, course_id, term_id, teacher_id, is_deleted, created_at, updated_at)
        VALUES (:id, :section_code, :course_id, :term_id, :teacher_id, :is_deleted, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// Update modifies an existing section.
func (r *SectionRepository) Update(ctx context.Context, section *models.Section) error {
	section.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sections SET section_code = :section_code, course_id = :course_id, term_id = :term_id,
        teacher_id = :teacher_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}

// SoftDelete marks the section deleted.
func (r *SectionRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE sections SET is_deleted = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("soft delete section: %w", err)
	}
	return nil
}
