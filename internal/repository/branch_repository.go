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

var branchSorts = map[string]string{
	"name":         "b.name",
	"region":       "b.region",
	"created_at":   "b.created_at",
	"member_count": "member_count",
}

// BranchRepository manages persistence for branch chapters.
type BranchRepository struct {
	db *sqlx.DB
}

// NewBranchRepository constructs a BranchRepository.
func NewBranchRepository(db *sqlx.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

// List returns branches with member counts for oversight screens.
func (r *BranchRepository) List(ctx context.Context, filter models.BranchFilter) ([]models.BranchDetail, int, error) {
	base := "FROM branches b LEFT JOIN alumni a ON a.branch_id = b.id AND a.active = true"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(b.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Region != "" {
		conditions = append(conditions, fmt.Sprintf("b.region = $%d", len(args)+1))
		args = append(args, filter.Region)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("b.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	whereClause := strings.Join(conditions, " AND ")
	params := filter.ListParams.Normalize(branchSorts, "b.created_at")

	query := fmt.Sprintf(`SELECT b.id, b.name, b.region, b.address, b.active, b.created_at, b.updated_at, COUNT(a.id) AS member_count
        %s WHERE %s
        GROUP BY b.id, b.name, b.region, b.address, b.active, b.created_at, b.updated_at
        ORDER BY %s %s LIMIT %d OFFSET %d`, base, whereClause, params.SortBy, params.SortOrder, params.Limit, params.Offset())

	var branches []models.BranchDetail
	if err := r.db.SelectContext(ctx, &branches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list branches: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT b.id) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count branches: %w", err)
	}
	return branches, total, nil
}

// FindByID fetches a branch with its member count.
func (r *BranchRepository) FindByID(ctx context.Context, id string) (*models.BranchDetail, error) {
	const query = `SELECT b.id, b.name, b.region, b.address, b.active, b.created_at, b.updated_at, COUNT(a.id) AS member_count
        FROM branches b LEFT JOIN alumni a ON a.branch_id = b.id AND a.active = true
        WHERE b.id = $1
        GROUP BY b.id, b.name, b.region, b.address, b.active, b.created_at, b.updated_at`
	var detail models.BranchDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByName checks for a duplicate branch name, optionally excluding an ID.
func (r *BranchRepository) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	query := "SELECT EXISTS(SELECT 1 FROM branches WHERE LOWER(name) = LOWER($1)"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += ")"
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("check branch name: %w", err)
	}
	return exists, nil
}

// Create inserts a new branch.
func (r *BranchRepository) Create(ctx context.Context, branch *models.Branch) error {
	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = now
	}
	branch.UpdatedAt = now
	const query = `INSERT INTO branches (id, name, region, address, active, created_at, updated_at)
        VALUES (:id, :name, :region, :address, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, branch); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}

// Update modifies an existing branch.
func (r *BranchRepository) Update(ctx context.Context, branch *models.Branch) error {
	branch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE branches SET name = :name, region = :region, address = :address, active = :active, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, branch); err != nil {
		return fmt.Errorf("update branch: %w", err)
	}
	return nil
}

// Deactivate marks a branch inactive.
func (r *BranchRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE branches SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate branch: %w", err)
	}
	return nil
}
