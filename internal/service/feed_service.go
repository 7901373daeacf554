package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/conces/conces-api/internal/models"
	appErrors "github.com/conces/conces-api/pkg/errors"
)

type postRepository interface {
	List(ctx context.Context, filter models.PostFilter) ([]models.PostDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.PostDetail, error)
	Create(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id string) error
}

// CreatePostRequest is the payload for publishing a feed post.
type CreatePostRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"required"`
	Pinned  bool   `json:"pinned"`
}

// FeedService manages the community feed.
type FeedService struct {
	repo      postRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFeedService constructs a FeedService.
func NewFeedService(repo postRepository, validate *validator.Validate, logger *zap.Logger) *FeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FeedService{repo: repo, validator: validate, logger: logger}
}

// List returns feed posts, pinned entries first.
func (s *FeedService) List(ctx context.Context, filter models.PostFilter) ([]models.PostDetail, *models.Pagination, error) {
	posts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list posts")
	}
	if posts == nil {
		posts = []models.PostDetail{}
	}
	params := filter.ListParams.Normalize(nil, "")
	return posts, models.NewPagination(params.Page, params.Limit, total), nil
}

// Get returns a single post.
func (s *FeedService) Get(ctx context.Context, id string) (*models.PostDetail, error) {
	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	return post, nil
}

// Create publishes a new post authored by the caller.
func (s *FeedService) Create(ctx context.Context, authorID string, req CreatePostRequest) (*models.Post, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid post payload")
	}

	post := &models.Post{
		AuthorID: authorID,
		Title:    req.Title,
		Content:  req.Content,
		Pinned:   req.Pinned,
	}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create post")
	}
	return post, nil
}

// Delete removes a post. Authors may delete their own posts; admins may
// delete any.
func (s *FeedService) Delete(ctx context.Context, id string, actorID string, actorRole models.UserRole) error {
	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}

	isAdmin := actorRole == models.RoleSuperAdmin || actorRole == models.RoleAdmin
	if !isAdmin && post.AuthorID != actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the author or an admin can delete this post")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete post")
	}
	return nil
}
