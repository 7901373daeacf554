package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/conces/conces-api/internal/dto"
	"github.com/conces/conces-api/internal/models"
	"github.com/conces/conces-api/internal/repository"
	appErrors "github.com/conces/conces-api/pkg/errors"
	"github.com/conces/conces-api/pkg/export"
	"github.com/conces/conces-api/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ExportJob, error)
}

type alumniLister interface {
	List(ctx context.Context, filter models.AlumniFilter) ([]models.AlumniDetail, int, error)
}

type userLister interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type branchLister interface {
	List(ctx context.Context, filter models.BranchFilter) ([]models.BranchDetail, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type exportEnqueuer interface {
	EnqueueExport(ctx context.Context, jobID string) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type jsonRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	PageSize  int
	ResultTTL time.Duration
}

// ExportService builds collection snapshots and persists rendered files.
// Datasets are assembled page by page through the same repository queries
// the list endpoints use, so an export always matches what a client would
// see by walking every page of the listing.
type ExportService struct {
	jobs      exportJobStore
	alumni    alumniLister
	users     userLister
	branches  branchLister
	storage   fileStorage
	enqueuer  exportEnqueuer
	signer    *storage.SignedURLSigner
	csv       csvRenderer
	json      jsonRenderer
	pdf       pdfRenderer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(jobs exportJobStore, alumni alumniLister, users userLister, branches branchLister,
	files fileStorage, enqueuer exportEnqueuer, signer *storage.SignedURLSigner,
	cfg ExportConfig, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	// Repositories normalize any limit above models.MaxPageSize down to the
	// default page size, so a larger walk size would make every page come
	// back "short" and end the walk after the first page.
	if cfg.PageSize <= 0 || cfg.PageSize > models.MaxPageSize {
		cfg.PageSize = models.MaxPageSize
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		jobs:      jobs,
		alumni:    alumni,
		users:     users,
		branches:  branches,
		storage:   files,
		enqueuer:  enqueuer,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		json:      export.NewJSONExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Enqueue records a new export job and hands it to the background queue.
func (s *ExportService) Enqueue(ctx context.Context, req dto.ExportRequest, actorID string) (*models.ExportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}

	job := &models.ExportJob{
		Resource:  req.Resource,
		Params:    models.ExportJobParams{Format: req.Format, Filters: req.Filters},
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueExport(ctx, job.ID); err != nil {
			msg := "failed to enqueue export task"
			status := models.ExportStatusFailed
			if uerr := s.jobs.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &status, ErrorMessage: &msg}); uerr != nil {
				s.logger.Warn("failed to mark export job failed", zap.String("job_id", job.ID), zap.Error(uerr))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
		}
	}

	return job, nil
}

// Status returns the job state. Non-admin callers may only see their own
// jobs.
func (s *ExportService) Status(ctx context.Context, jobID, actorID string, actorRole models.UserRole) (*dto.ExportStatusResponse, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}

	isAdmin := actorRole == models.RoleSuperAdmin || actorRole == models.RoleAdmin
	if !isAdmin && job.CreatedBy != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export job belongs to another user")
	}

	return &dto.ExportStatusResponse{
		ID:        job.ID,
		Resource:  job.Resource,
		Format:    job.Params.Format,
		Status:    job.Status,
		ResultURL: job.ResultURL,
		Error:     job.ErrorMessage,
	}, nil
}

// ListForUser returns the recent export jobs of the caller.
func (s *ExportService) ListForUser(ctx context.Context, actorID string, limit int) ([]models.ExportJob, error) {
	jobs, err := s.jobs.ListByUser(ctx, actorID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list export jobs")
	}
	return jobs, nil
}

// Process executes a queued job: builds the dataset, renders it, stores the
// file and records the signed download URL. Failures are written back to
// the job row so Status can surface them.
func (s *ExportService) Process(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", jobID, err)
	}
	if job.Status == models.ExportStatusFinished {
		return nil
	}

	processing := models.ExportStatusProcessing
	if err := s.jobs.Update(ctx, jobID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		return fmt.Errorf("mark export job processing: %w", err)
	}

	payload, filename, _, err := s.Render(ctx, job.Resource, job.Params.Format, job.Params.Filters)
	if err != nil {
		s.failJob(ctx, jobID, err)
		return err
	}

	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		s.failJob(ctx, jobID, err)
		return err
	}

	token, _, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		s.failJob(ctx, jobID, err)
		return err
	}
	resultURL := fmt.Sprintf("%s/export/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)

	finished := models.ExportStatusFinished
	now := time.Now().UTC()
	if err := s.jobs.Update(ctx, jobID, repository.UpdateExportJobParams{
		Status:     &finished,
		ResultURL:  &resultURL,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("mark export job finished: %w", err)
	}

	s.logger.Info("export job finished",
		zap.String("job_id", jobID),
		zap.String("resource", string(job.Resource)),
		zap.String("format", string(job.Params.Format)),
		zap.Int("bytes", len(payload)))
	return nil
}

// Render builds and renders the full dataset for a resource. Used by both
// the background worker and the synchronous download endpoints.
func (s *ExportService) Render(ctx context.Context, resource models.ExportResource, format models.ExportFormat, filters map[string]string) (payload []byte, filename, contentType string, err error) {
	dataset, title, err := s.buildDataset(ctx, resource, filters)
	if err != nil {
		return nil, "", "", err
	}

	switch format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case models.ExportFormatJSON:
		payload, err = s.json.Render(dataset)
		contentType = "application/json"
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
	default:
		err = fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, "", "", err
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	filename = fmt.Sprintf("%s_%s.%s", resource, timestamp, format)
	return payload, filename, contentType, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl (configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) failJob(ctx context.Context, jobID string, cause error) {
	failed := models.ExportStatusFailed
	msg := cause.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	now := time.Now().UTC()
	if err := s.jobs.Update(ctx, jobID, repository.UpdateExportJobParams{
		Status:       &failed,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *ExportService) buildDataset(ctx context.Context, resource models.ExportResource, filters map[string]string) (export.Dataset, string, error) {
	switch resource {
	case models.ExportResourceAlumni:
		return s.buildAlumniDataset(ctx, filters)
	case models.ExportResourceUsers:
		return s.buildUserDataset(ctx, filters)
	case models.ExportResourceBranches:
		return s.buildBranchDataset(ctx, filters)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported export resource %q", resource)
	}
}

// buildAlumniDataset walks every page of the filtered directory. The loop
// ends when a page comes back short, so the snapshot covers the entire
// result set no matter how large.
func (s *ExportService) buildAlumniDataset(ctx context.Context, filters map[string]string) (export.Dataset, string, error) {
	filter := AlumniFilterFromQuery(filters)
	filter.Limit = s.cfg.PageSize

	headers := []string{"Full Name", "Email", "Phone", "Graduation Year", "Specialization", "Occupation", "Branch", "Mentor", "Available For Mentorship", "Active"}
	var rows []map[string]string

	for page := 1; ; page++ {
		filter.Page = page
		items, total, err := s.alumni.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("list alumni page %d: %w", page, err)
		}
		for _, a := range items {
			branch := ""
			if a.BranchName != nil {
				branch = *a.BranchName
			}
			rows = append(rows, map[string]string{
				"Full Name":                a.FullName,
				"Email":                    a.Email,
				"Phone":                    a.Phone,
				"Graduation Year":          strconv.Itoa(a.GraduationYear),
				"Specialization":           a.Specialization,
				"Occupation":               a.Occupation,
				"Branch":                   branch,
				"Mentor":                   formatBool(a.IsMentor),
				"Available For Mentorship": formatBool(a.AvailableForMentorship),
				"Active":                   formatBool(a.Active),
			})
		}
		if len(items) < s.cfg.PageSize || len(rows) >= total {
			break
		}
	}

	return export.Dataset{Headers: headers, Rows: rows}, "Alumni Directory", nil
}

func (s *ExportService) buildUserDataset(ctx context.Context, filters map[string]string) (export.Dataset, string, error) {
	filter := UserFilterFromQuery(filters)
	filter.Limit = s.cfg.PageSize

	headers := []string{"Email", "Full Name", "Role", "Branch ID", "Active", "Last Login"}
	var rows []map[string]string

	for page := 1; ; page++ {
		filter.Page = page
		items, total, err := s.users.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("list users page %d: %w", page, err)
		}
		for _, u := range items {
			branchID := ""
			if u.BranchID != nil {
				branchID = *u.BranchID
			}
			lastLogin := ""
			if u.LastLogin != nil {
				lastLogin = u.LastLogin.UTC().Format(time.RFC3339)
			}
			rows = append(rows, map[string]string{
				"Email":      u.Email,
				"Full Name":  u.FullName,
				"Role":       string(u.Role),
				"Branch ID":  branchID,
				"Active":     formatBool(u.Active),
				"Last Login": lastLogin,
			})
		}
		if len(items) < s.cfg.PageSize || len(rows) >= total {
			break
		}
	}

	return export.Dataset{Headers: headers, Rows: rows}, "User Accounts", nil
}

func (s *ExportService) buildBranchDataset(ctx context.Context, filters map[string]string) (export.Dataset, string, error) {
	filter := BranchFilterFromQuery(filters)
	filter.Limit = s.cfg.PageSize

	headers := []string{"Name", "Region", "Address", "Members", "Active"}
	var rows []map[string]string

	for page := 1; ; page++ {
		filter.Page = page
		items, total, err := s.branches.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("list branches page %d: %w", page, err)
		}
		for _, b := range items {
			rows = append(rows, map[string]string{
				"Name":    b.Name,
				"Region":  b.Region,
				"Address": b.Address,
				"Members": strconv.Itoa(b.MemberCount),
				"Active":  formatBool(b.Active),
			})
		}
		if len(items) < s.cfg.PageSize || len(rows) >= total {
			break
		}
	}

	return export.Dataset{Headers: headers, Rows: rows}, "Branch Registry", nil
}

// AlumniFilterFromQuery maps list endpoint query parameters onto a filter.
// Unknown keys are ignored; malformed values fall back to the unset state.
func AlumniFilterFromQuery(params map[string]string) models.AlumniFilter {
	var filter models.AlumniFilter
	filter.Search = params["search"]
	filter.SortBy = params["sort_by"]
	filter.SortOrder = params["sort_order"]
	filter.Specialization = params["specialization"]
	filter.BranchID = params["branch_id"]
	if raw, ok := params["graduation_year"]; ok {
		if year, err := strconv.Atoi(raw); err == nil {
			filter.GraduationYear = &year
		}
	}
	filter.AvailableForMentorship = parseBoolParam(params, "available_for_mentorship")
	filter.IsMentor = parseBoolParam(params, "is_mentor")
	filter.Active = parseBoolParam(params, "active")
	return filter
}

// UserFilterFromQuery maps list endpoint query parameters onto a filter.
func UserFilterFromQuery(params map[string]string) models.UserFilter {
	var filter models.UserFilter
	filter.Search = params["search"]
	filter.SortBy = params["sort_by"]
	filter.SortOrder = params["sort_order"]
	filter.BranchID = params["branch_id"]
	if raw, ok := params["role"]; ok && raw != "" {
		role := models.UserRole(strings.ToUpper(raw))
		filter.Role = &role
	}
	filter.Active = parseBoolParam(params, "active")
	return filter
}

// BranchFilterFromQuery maps list endpoint query parameters onto a filter.
func BranchFilterFromQuery(params map[string]string) models.BranchFilter {
	var filter models.BranchFilter
	filter.Search = params["search"]
	filter.SortBy = params["sort_by"]
	filter.SortOrder = params["sort_order"]
	filter.Region = params["region"]
	filter.Active = parseBoolParam(params, "active")
	return filter
}

func parseBoolParam(params map[string]string, key string) *bool {
	raw, ok := params[key]
	if !ok || raw == "" {
		return nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &value
}

func formatBool(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
