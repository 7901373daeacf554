package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conces/conces-api/internal/dto"
	"github.com/conces/conces-api/internal/models"
	appErrors "github.com/conces/conces-api/pkg/errors"
)

// bulkConcurrency bounds the fan-out of a bulk action.
const bulkConcurrency = 8

type alumniRepository interface {
	List(ctx context.Context, filter models.AlumniFilter) ([]models.AlumniDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.AlumniDetail, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, alumni *models.Alumni) error
	UpdatePartial(ctx context.Context, id string, update models.AlumniUpdate) error
	Deactivate(ctx context.Context, id string) error
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type listCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// CreateAlumniRequest represents payload for registering an alumni profile.
type CreateAlumniRequest struct {
	FullName               string  `json:"full_name" validate:"required"`
	Email                  string  `json:"email" validate:"required,email"`
	Phone                  string  `json:"phone"`
	GraduationYear         int     `json:"graduation_year" validate:"required,min=1950,max=2100"`
	Specialization         string  `json:"specialization" validate:"required"`
	Occupation             string  `json:"occupation"`
	BranchID               *string `json:"branch_id"`
	AvailableForMentorship bool    `json:"available_for_mentorship"`
}

type cachedAlumniList struct {
	Items []models.AlumniDetail `json:"items"`
	Total int                   `json:"total"`
}

// AlumniService implements the alumni directory use cases.
type AlumniService struct {
	repo      alumniRepository
	audit     auditRecorder
	cache     listCache
	cacheTTL  time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAlumniService constructs an AlumniService. Cache and metrics may be
// nil to disable list caching and query instrumentation.
func NewAlumniService(repo alumniRepository, audit auditRecorder, cache listCache, cacheTTL time.Duration, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AlumniService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}
	return &AlumniService{repo: repo, audit: audit, cache: cache, cacheTTL: cacheTTL, metrics: metrics, validator: validate, logger: logger}
}

// List returns a page of the alumni directory with pagination metadata.
// Results are cached per filter combination until the next mutation; the
// boolean reports whether this page was served from cache.
func (s *AlumniService) List(ctx context.Context, filter models.AlumniFilter) ([]models.AlumniDetail, *models.Pagination, bool, error) {
	params := filter.ListParams.Normalize(nil, "")
	key := alumniListCacheKey(filter)

	if s.cache != nil {
		var cached cachedAlumniList
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached.Items, models.NewPagination(params.Page, params.Limit, cached.Total), true, nil
		}
	}

	start := time.Now()
	items, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("alumni_list", time.Since(start))
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list alumni")
	}
	if items == nil {
		items = []models.AlumniDetail{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedAlumniList{Items: items, Total: total}, s.cacheTTL); err != nil {
			s.logger.Warn("alumni list cache write failed", zap.Error(err))
		}
	}

	return items, models.NewPagination(params.Page, params.Limit, total), false, nil
}

// Get returns a single alumni profile.
func (s *AlumniService) Get(ctx context.Context, id string) (*models.AlumniDetail, error) {
	start := time.Now()
	detail, err := s.repo.FindByID(ctx, id)
	s.metrics.ObserveDBQuery("alumni_find", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "alumni not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load alumni")
	}
	return detail, nil
}

// Create registers a new alumni profile.
func (s *AlumniService) Create(ctx context.Context, req CreateAlumniRequest, actorID string, meta models.LoginRequest) (*models.Alumni, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid alumni payload")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check alumni email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an alumni profile with this email already exists")
	}

	alumni := &models.Alumni{
		FullName:               req.FullName,
		Email:                  strings.ToLower(req.Email),
		Phone:                  req.Phone,
		GraduationYear:         req.GraduationYear,
		Specialization:         req.Specialization,
		Occupation:             req.Occupation,
		BranchID:               req.BranchID,
		AvailableForMentorship: req.AvailableForMentorship,
		Active:                 true,
	}

	if err := s.repo.Create(ctx, alumni); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create alumni")
	}

	s.invalidateListCache(ctx)
	s.recordAudit(ctx, actorID, models.AuditActionAlumniUpdate, alumni.ID, nil,
		map[string]interface{}{"email": alumni.Email, "graduation_year": alumni.GraduationYear}, meta)

	return alumni, nil
}

// Update applies a partial update. Nil fields are left untouched, so a
// single-flag toggle and a full edit form go through the same path.
func (s *AlumniService) Update(ctx context.Context, id string, update models.AlumniUpdate, actorID string, meta models.LoginRequest) (*models.AlumniDetail, error) {
	if update.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no fields to update")
	}

	before, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "alumni not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load alumni")
	}

	if err := s.repo.UpdatePartial(ctx, id, update); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update alumni")
	}

	after, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload alumni")
	}

	s.invalidateListCache(ctx)
	s.recordAudit(ctx, actorID, models.AuditActionAlumniUpdate, id,
		map[string]interface{}{"is_mentor": before.IsMentor, "active": before.Active},
		map[string]interface{}{"is_mentor": after.IsMentor, "active": after.Active}, meta)

	return after, nil
}

// Delete soft-deletes an alumni profile by marking it inactive.
func (s *AlumniService) Delete(ctx context.Context, id string, actorID string, meta models.LoginRequest) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "alumni not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load alumni")
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate alumni")
	}

	s.invalidateListCache(ctx)
	s.recordAudit(ctx, actorID, models.AuditActionAlumniDelete, id,
		map[string]interface{}{"active": true}, map[string]interface{}{"active": false}, meta)

	return nil
}

// Bulk applies one action to every requested id. Each id is attempted
// regardless of earlier failures; the response settles every id into either
// Succeeded or Failed.
func (s *AlumniService) Bulk(ctx context.Context, req dto.BulkActionRequest, actorID string, meta models.LoginRequest) (*dto.BulkActionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk action payload")
	}

	apply, err := s.bulkApplier(req.Action)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	succeeded := make([]string, 0, len(req.IDs))
	failed := make([]dto.BulkFailure, 0)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for _, id := range req.IDs {
		id := id
		g.Go(func() error {
			err := apply(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, dto.BulkFailure{ID: id, Error: bulkErrorMessage(err)})
				return nil
			}
			succeeded = append(succeeded, id)
			return nil
		})
	}
	// Workers never return errors; Wait only observes context cancellation.
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "bulk action aborted")
	}

	sort.Strings(succeeded)
	sort.Slice(failed, func(i, j int) bool { return failed[i].ID < failed[j].ID })

	s.invalidateListCache(ctx)
	s.recordAudit(ctx, actorID, models.AuditActionBulkAction, string(req.Action), nil,
		map[string]interface{}{"action": req.Action, "total": len(req.IDs), "succeeded": len(succeeded), "failed": len(failed)}, meta)

	return &dto.BulkActionResponse{
		Action:    req.Action,
		Total:     len(req.IDs),
		Succeeded: succeeded,
		Failed:    failed,
	}, nil
}

func (s *AlumniService) bulkApplier(action dto.BulkAction) (func(context.Context, string) error, error) {
	toggle := func(set func(*models.AlumniUpdate)) func(context.Context, string) error {
		return func(ctx context.Context, id string) error {
			if err := s.ensureExists(ctx, id); err != nil {
				return err
			}
			var update models.AlumniUpdate
			set(&update)
			return s.repo.UpdatePartial(ctx, id, update)
		}
	}

	boolPtr := func(v bool) *bool { return &v }

	switch action {
	case dto.BulkActionActivate:
		return toggle(func(u *models.AlumniUpdate) { u.Active = boolPtr(true) }), nil
	case dto.BulkActionDeactivate, dto.BulkActionDelete:
		return func(ctx context.Context, id string) error {
			if err := s.ensureExists(ctx, id); err != nil {
				return err
			}
			return s.repo.Deactivate(ctx, id)
		}, nil
	case dto.BulkActionSetMentor:
		return toggle(func(u *models.AlumniUpdate) { u.IsMentor = boolPtr(true) }), nil
	case dto.BulkActionUnsetMentor:
		return toggle(func(u *models.AlumniUpdate) { u.IsMentor = boolPtr(false) }), nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported bulk action %q", action))
	}
}

func (s *AlumniService) ensureExists(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "alumni not found")
		}
		return err
	}
	return nil
}

func (s *AlumniService) invalidateListCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "alumni:list:*"); err != nil {
		s.logger.Warn("alumni list cache invalidation failed", zap.Error(err))
	}
}

func (s *AlumniService) recordAudit(ctx context.Context, actorID, action, resourceID string, oldValues, newValues map[string]interface{}, meta models.LoginRequest) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   "alumni",
		ResourceID: &resourceID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if oldValues != nil {
		log.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		log.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record alumni audit log", zap.Error(err))
	}
}

func bulkErrorMessage(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// alumniSortFields mirrors the repository sort whitelist. The cache key
// normalizes against it so queries the repository treats as identical
// share one entry.
var alumniSortFields = map[string]string{
	"full_name":       "full_name",
	"email":           "email",
	"graduation_year": "graduation_year",
	"specialization":  "specialization",
	"created_at":      "created_at",
	"updated_at":      "updated_at",
}

func alumniListCacheKey(filter models.AlumniFilter) string {
	params := filter.ListParams.Normalize(alumniSortFields, "created_at")
	payload, _ := json.Marshal(map[string]interface{}{
		"search":    strings.ToLower(params.Search),
		"page":      params.Page,
		"limit":     params.Limit,
		"sort_by":   params.SortBy,
		"sort_ord":  params.SortOrder,
		"grad_year": filter.GraduationYear,
		"spec":      filter.Specialization,
		"branch":    filter.BranchID,
		"avail":     filter.AvailableForMentorship,
		"mentor":    filter.IsMentor,
		"active":    filter.Active,
	})
	sum := sha256.Sum256(payload)
	return "alumni:list:" + hex.EncodeToString(sum[:8])
}
