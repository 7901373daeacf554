package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/conces/conces-api/internal/models"
)

// alumniSorts whitelists client-facing sort fields against real columns.
var alumniSorts = map[string]string{
	"full_name":       "a.full_name",
	"email":           "a.email",
	"graduation_year": "a.graduation_year",
	"specialization":  "a.specialization",
	"created_at":      "a.created_at",
	"updated_at":      "a.updated_at",
}

// AlumniRepository manages persistence for alumni records.
type AlumniRepository struct {
	db *sqlx.DB
}

// NewAlumniRepository constructs an AlumniRepository.
func NewAlumniRepository(db *sqlx.DB) *AlumniRepository {
	return &AlumniRepository{db: db}
}

// List returns alumni matching the provided filters together with the total
// count. Empty filter values add no condition to the query.
func (r *AlumniRepository) List(ctx context.Context, filter models.AlumniFilter) ([]models.AlumniDetail, int, error) {
	base := "FROM alumni a LEFT JOIN branches b ON b.id = a.branch_id"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(a.full_name) LIKE $%d OR LOWER(a.email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.GraduationYear != nil {
		conditions = append(conditions, fmt.Sprintf("a.graduation_year = $%d", len(args)+1))
		args = append(args, *filter.GraduationYear)
	}
	if filter.Specialization != "" {
		conditions = append(conditions, fmt.Sprintf("a.specialization = $%d", len(args)+1))
		args = append(args, filter.Specialization)
	}
	if filter.BranchID != "" {
		conditions = append(conditions, fmt.Sprintf("a.branch_id = $%d", len(args)+1))
		args = append(args, filter.BranchID)
	}
	if filter.AvailableForMentorship != nil {
		conditions = append(conditions, fmt.Sprintf("a.available_for_mentorship = $%d", len(args)+1))
		args = append(args, *filter.AvailableForMentorship)
	}
	if filter.IsMentor != nil {
		conditions = append(conditions, fmt.Sprintf("a.is_mentor = $%d", len(args)+1))
		args = append(args, *filter.IsMentor)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("a.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	params := filter.ListParams.Normalize(alumniSorts, "a.created_at")

	query := fmt.Sprintf(`SELECT a.id, a.user_id, a.full_name, a.email, a.phone, a.graduation_year, a.specialization, a.occupation,
        a.branch_id, a.available_for_mentorship, a.is_mentor, a.active, a.created_at, a.updated_at, b.name AS branch_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, params.SortBy, params.SortOrder, params.Limit, params.Offset())

	var alumni []models.AlumniDetail
	if err := r.db.SelectContext(ctx, &alumni, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list alumni: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count alumni: %w", err)
	}
	return alumni, total, nil
}

// FindByID fetches an alumni detail by ID.
func (r *AlumniRepository) FindByID(ctx context.Context, id string) (*models.AlumniDetail, error) {
	const query = `SELECT a.id, a.user_id, a.full_name, a.email, a.phone, a.graduation_year, a.specialization, a.occupation,
        a.branch_id, a.available_for_mentorship, a.is_mentor, a.active, a.created_at, a.updated_at, b.name AS branch_name
        FROM alumni a LEFT JOIN branches b ON b.id = a.branch_id WHERE a.id = $1`
	var detail models.AlumniDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByEmail checks whether an alumni with the email exists, optionally
// excluding an ID.
func (r *AlumniRepository) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	query := "SELECT EXISTS(SELECT 1 FROM alumni WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += ")"
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("check alumni email: %w", err)
	}
	return exists, nil
}

// Create inserts a new alumni record.
func (r *AlumniRepository) Create(ctx context.Context, alumni *models.Alumni) error {
	if alumni.ID == "" {
		alumni.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if alumni.CreatedAt.IsZero() {
		alumni.CreatedAt = now
	}
	alumni.UpdatedAt = now
	const query = `INSERT INTO alumni (id, user_id, full_name, email, phone, graduation_year, specialization, occupation,
        branch_id, available_for_mentorship, is_mentor, active, created_at, updated_at)
        VALUES (:id, :user_id, :full_name, :email, :phone, :graduation_year, :specialization, :occupation,
        :branch_id, :available_for_mentorship, :is_mentor, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, alumni); err != nil {
		return fmt.Errorf("create alumni: %w", err)
	}
	return nil
}

// UpdatePartial applies only the non-nil fields of the update. Used both by
// the edit form and by single-flag toggles from the directory table.
func (r *AlumniRepository) UpdatePartial(ctx context.Context, id string, update models.AlumniUpdate) error {
	set := make([]string, 0, 9)
	args := make([]interface{}, 0, 10)

	add := func(column string, value interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}

	if update.FullName != nil {
		add("full_name", *update.FullName)
	}
	if update.Phone != nil {
		add("phone", *update.Phone)
	}
	if update.GraduationYear != nil {
		add("graduation_year", *update.GraduationYear)
	}
	if update.Specialization != nil {
		add("specialization", *update.Specialization)
	}
	if update.Occupation != nil {
		add("occupation", *update.Occupation)
	}
	if update.BranchID != nil {
		add("branch_id", *update.BranchID)
	}
	if update.AvailableForMentorship != nil {
		add("available_for_mentorship", *update.AvailableForMentorship)
	}
	if update.IsMentor != nil {
		add("is_mentor", *update.IsMentor)
	}
	if update.Active != nil {
		add("active", *update.Active)
	}

	if len(set) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf("UPDATE alumni SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)+1)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update alumni: %w", err)
	}
	return nil
}

// Deactivate marks an alumni record inactive (soft delete).
func (r *AlumniRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE alumni SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate alumni: %w", err)
	}
	return nil
}
