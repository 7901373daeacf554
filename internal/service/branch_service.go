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

type branchRepository interface {
	List(ctx context.Context, filter models.BranchFilter) ([]models.BranchDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.BranchDetail, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, branch *models.Branch) error
	Update(ctx context.Context, branch *models.Branch) error
	Deactivate(ctx context.Context, id string) error
}

// BranchRequest is the payload for creating or updating a branch.
type BranchRequest struct {
	Name    string `json:"name" validate:"required"`
	Region  string `json:"region" validate:"required"`
	Address string `json:"address"`
	Active  *bool  `json:"active"`
}

// BranchService handles the regional chapter registry.
type BranchService struct {
	repo      branchRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBranchService constructs a BranchService.
func NewBranchService(repo branchRepository, validate *validator.Validate, logger *zap.Logger) *BranchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &BranchService{repo: repo, validator: validate, logger: logger}
}

// List returns branches with member counts and pagination metadata.
func (s *BranchService) List(ctx context.Context, filter models.BranchFilter) ([]models.BranchDetail, *models.Pagination, error) {
	branches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list branches")
	}
	if branches == nil {
		branches = []models.BranchDetail{}
	}
	params := filter.ListParams.Normalize(nil, "")
	return branches, models.NewPagination(params.Page, params.Limit, total), nil
}

// Get returns a branch by ID.
func (s *BranchService) Get(ctx context.Context, id string) (*models.BranchDetail, error) {
	branch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}
	return branch, nil
}

// Create registers a new branch. Branch names are unique.
func (s *BranchService) Create(ctx context.Context, req BranchRequest) (*models.Branch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid branch payload")
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check branch name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a branch with this name already exists")
	}

	branch := &models.Branch{
		Name:    req.Name,
		Region:  req.Region,
		Address: req.Address,
		Active:  true,
	}
	if req.Active != nil {
		branch.Active = *req.Active
	}

	if err := s.repo.Create(ctx, branch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create branch")
	}
	return branch, nil
}

// Update modifies an existing branch.
func (s *BranchService) Update(ctx context.Context, id string, req BranchRequest) (*models.Branch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid branch payload")
	}

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check branch name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a branch with this name already exists")
	}

	branch := detail.Branch
	branch.Name = req.Name
	branch.Region = req.Region
	branch.Address = req.Address
	if req.Active != nil {
		branch.Active = *req.Active
	}

	if err := s.repo.Update(ctx, &branch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update branch")
	}
	return &branch, nil
}

// Delete marks a branch inactive. Member profiles keep their branch link.
func (s *BranchService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate branch")
	}
	return nil
}
