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

// PostRepository provides persistence for community feed posts.
type PostRepository struct {
	db *sqlx.DB
}

// NewPostRepository creates the repository.
func NewPostRepository(db *sqlx.DB) *PostRepository {
	return &PostRepository{db: db}
}

// List returns feed posts, pinned entries first, newest next.
func (r *PostRepository) List(ctx context.Context, filter models.PostFilter) ([]models.PostDetail, int, error) {
	base := "FROM posts p JOIN users u ON u.id = p.author_id"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.AuthorID != "" {
		conditions = append(conditions, fmt.Sprintf("p.author_id = $%d", len(args)+1))
		args = append(args, filter.AuthorID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.title) LIKE $%d OR LOWER(p.content) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	whereClause := strings.Join(conditions, " AND ")

	params := filter.ListParams.Normalize(map[string]string{"created_at": "p.created_at"}, "p.created_at")

	query := fmt.Sprintf(`SELECT p.id, p.author_id, p.title, p.content, p.pinned, p.created_at, p.updated_at, u.full_name AS author_name
        %s WHERE %s ORDER BY p.pinned DESC, %s %s LIMIT %d OFFSET %d`,
		base, whereClause, params.SortBy, params.SortOrder, params.Limit, params.Offset())

	var posts []models.PostDetail
	if err := r.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}
	return posts, total, nil
}

// FindByID returns a post by identifier.
func (r *PostRepository) FindByID(ctx context.Context, id string) (*models.PostDetail, error) {
	const query = `SELECT p.id, p.author_id, p.title, p.content, p.pinned, p.created_at, p.updated_at, u.full_name AS author_name
        FROM posts p JOIN users u ON u.id = p.author_id WHERE p.id = $1`
	var post models.PostDetail
	if err := r.db.GetContext(ctx, &post, query, id); err != nil {
		return nil, err
	}
	return &post, nil
}

// Create inserts a new post.
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	const query = `INSERT INTO posts (id, author_id, title, content, pinned, created_at, updated_at)
        VALUES (:id, :author_id, :title, :content, :pinned, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// Delete removes a post.
func (r *PostRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM posts WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}
