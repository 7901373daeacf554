package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conces/conces-api/internal/dto"
	"github.com/conces/conces-api/internal/models"
	"github.com/conces/conces-api/internal/repository"
	appErrors "github.com/conces/conces-api/pkg/errors"
	"github.com/conces/conces-api/pkg/storage"
)

type fakeJobStore struct {
	jobs map[string]*models.ExportJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*models.ExportJob)}
}

func (f *fakeJobStore) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", len(f.jobs)+1)
	}
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (f *fakeJobStore) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := f.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (f *fakeJobStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.ExportJob, error) {
	out := make([]models.ExportJob, 0)
	for _, job := range f.jobs {
		if job.CreatedBy == userID {
			out = append(out, *job)
		}
	}
	return out, nil
}

// pagedAlumniLister serves a fixed directory in repository page order so
// tests can assert the export walks every page.
type pagedAlumniLister struct {
	all      []models.AlumniDetail
	pages    []int
	listErr  error
	maxPages int
}

func (p *pagedAlumniLister) List(ctx context.Context, filter models.AlumniFilter) ([]models.AlumniDetail, int, error) {
	if p.listErr != nil {
		return nil, 0, p.listErr
	}
	params := filter.ListParams.Normalize(nil, "")
	p.pages = append(p.pages, params.Page)
	if p.maxPages > 0 && len(p.pages) > p.maxPages {
		return nil, len(p.all), fmt.Errorf("unexpected page %d", params.Page)
	}
	start := (params.Page - 1) * params.Limit
	if start >= len(p.all) {
		return []models.AlumniDetail{}, len(p.all), nil
	}
	end := start + params.Limit
	if end > len(p.all) {
		end = len(p.all)
	}
	return p.all[start:end], len(p.all), nil
}

type fakeFileStorage struct {
	saved map[string][]byte
}

func (f *fakeFileStorage) Save(filename string, data []byte) (string, error) {
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[filename] = data
	return filename, nil
}

func (f *fakeFileStorage) Open(filename string) (*os.File, error) { return nil, os.ErrNotExist }
func (f *fakeFileStorage) Delete(filename string) error           { return nil }
func (f *fakeFileStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	return nil, nil
}

type fakeEnqueuer struct {
	jobIDs []string
	err    error
}

func (f *fakeEnqueuer) EnqueueExport(ctx context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.jobIDs = append(f.jobIDs, jobID)
	return nil
}

func directoryOf(n int) []models.AlumniDetail {
	out := make([]models.AlumniDetail, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, models.AlumniDetail{Alumni: models.Alumni{
			ID:             fmt.Sprintf("a-%d", i),
			FullName:       fmt.Sprintf("Alumni %02d", i),
			Email:          fmt.Sprintf("alumni%02d@conces.org", i),
			GraduationYear: 2000 + i,
			Active:         true,
		}})
	}
	return out
}

func newExportService(jobs *fakeJobStore, alumni alumniLister, files fileStorage, enqueuer exportEnqueuer, pageSize int) *ExportService {
	signer := storage.NewSignedURLSigner("export-secret", time.Hour)
	return NewExportService(jobs, alumni, nil, nil, files, enqueuer, signer,
		ExportConfig{APIPrefix: "/api/v1", PageSize: pageSize}, validator.New(), zap.NewNop())
}

func TestExportServiceProcessWalksEveryPage(t *testing.T) {
	jobs := newFakeJobStore()
	lister := &pagedAlumniLister{all: directoryOf(5), maxPages: 5}
	files := &fakeFileStorage{}
	svc := newExportService(jobs, lister, files, nil, 2)

	job := &models.ExportJob{
		Resource:  models.ExportResourceAlumni,
		Params:    models.ExportJobParams{Format: models.ExportFormatCSV},
		Status:    models.ExportStatusQueued,
		CreatedBy: "admin",
	}
	require.NoError(t, jobs.Create(context.Background(), job))

	require.NoError(t, svc.Process(context.Background(), job.ID))

	// Three pages of two cover all five records.
	assert.Equal(t, []int{1, 2, 3}, lister.pages)
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	require.NotNil(t, job.ResultURL)
	assert.True(t, strings.HasPrefix(*job.ResultURL, "/api/v1/export/"))
	require.NotNil(t, job.FinishedAt)

	require.Len(t, files.saved, 1)
	for _, payload := range files.saved {
		lines := strings.Split(strings.TrimRight(string(payload), "\n"), "\n")
		assert.Len(t, lines, 6)
		assert.Contains(t, lines[0], "Full Name")
		assert.Contains(t, string(payload), "Alumni 05")
	}
}

func TestExportServiceWalkSizeClampedToRepositoryMax(t *testing.T) {
	// Repositories cap a requested limit at models.MaxPageSize. A walk size
	// above that cap would make the first page come back short and end the
	// export after one page, so the constructor clamps it down.
	jobs := newFakeJobStore()
	lister := &pagedAlumniLister{all: directoryOf(150), maxPages: 5}
	files := &fakeFileStorage{}
	svc := newExportService(jobs, lister, files, nil, 500)

	job := &models.ExportJob{
		Resource:  models.ExportResourceAlumni,
		Params:    models.ExportJobParams{Format: models.ExportFormatCSV},
		Status:    models.ExportStatusQueued,
		CreatedBy: "admin",
	}
	require.NoError(t, jobs.Create(context.Background(), job))
	require.NoError(t, svc.Process(context.Background(), job.ID))

	assert.Equal(t, []int{1, 2}, lister.pages)
	require.Len(t, files.saved, 1)
	for _, payload := range files.saved {
		lines := strings.Split(strings.TrimRight(string(payload), "\n"), "\n")
		assert.Len(t, lines, 151)
		assert.Contains(t, string(payload), "Alumni 150")
	}
}

func TestExportServiceProcessFailureRecorded(t *testing.T) {
	jobs := newFakeJobStore()
	lister := &pagedAlumniLister{listErr: errors.New("connection reset")}
	svc := newExportService(jobs, lister, &fakeFileStorage{}, nil, 2)

	job := &models.ExportJob{
		Resource:  models.ExportResourceAlumni,
		Params:    models.ExportJobParams{Format: models.ExportFormatCSV},
		CreatedBy: "admin",
	}
	require.NoError(t, jobs.Create(context.Background(), job))

	err := svc.Process(context.Background(), job.ID)
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "connection reset")
}

func TestExportServiceEnqueue(t *testing.T) {
	jobs := newFakeJobStore()
	enqueuer := &fakeEnqueuer{}
	svc := newExportService(jobs, &pagedAlumniLister{}, &fakeFileStorage{}, enqueuer, 2)

	job, err := svc.Enqueue(context.Background(), dto.ExportRequest{
		Resource: models.ExportResourceAlumni,
		Format:   models.ExportFormatJSON,
		Filters:  map[string]string{"is_mentor": "true"},
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	assert.Equal(t, []string{job.ID}, enqueuer.jobIDs)
}

func TestExportServiceEnqueueFailureMarksJob(t *testing.T) {
	jobs := newFakeJobStore()
	enqueuer := &fakeEnqueuer{err: errors.New("redis down")}
	svc := newExportService(jobs, &pagedAlumniLister{}, &fakeFileStorage{}, enqueuer, 2)

	_, err := svc.Enqueue(context.Background(), dto.ExportRequest{
		Resource: models.ExportResourceAlumni,
		Format:   models.ExportFormatCSV,
	}, "admin")
	require.Error(t, err)
	require.Len(t, jobs.jobs, 1)
	for _, job := range jobs.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
	}
}

func TestExportServiceStatusOwnership(t *testing.T) {
	jobs := newFakeJobStore()
	svc := newExportService(jobs, &pagedAlumniLister{}, &fakeFileStorage{}, nil, 2)

	job := &models.ExportJob{
		Resource:  models.ExportResourceAlumni,
		Params:    models.ExportJobParams{Format: models.ExportFormatCSV},
		Status:    models.ExportStatusQueued,
		CreatedBy: "owner",
	}
	require.NoError(t, jobs.Create(context.Background(), job))

	_, err := svc.Status(context.Background(), job.ID, "someone-else", models.RoleAlumni)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	res, err := svc.Status(context.Background(), job.ID, "someone-else", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, res.Status)

	res, err = svc.Status(context.Background(), job.ID, "owner", models.RoleAlumni)
	require.NoError(t, err)
	assert.Equal(t, job.ID, res.ID)
}

func TestExportServiceRenderJSON(t *testing.T) {
	svc := newExportService(newFakeJobStore(), &pagedAlumniLister{all: directoryOf(3)}, &fakeFileStorage{}, nil, 10)

	payload, filename, contentType, err := svc.Render(context.Background(), models.ExportResourceAlumni, models.ExportFormatJSON, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.True(t, strings.HasSuffix(filename, ".json"))
	assert.Contains(t, string(payload), "Alumni 02")
}

func TestExportServiceFilterParsing(t *testing.T) {
	filter := AlumniFilterFromQuery(map[string]string{
		"search":          "ada",
		"graduation_year": "2018",
		"is_mentor":       "true",
		"active":          "notabool",
	})
	assert.Equal(t, "ada", filter.Search)
	require.NotNil(t, filter.GraduationYear)
	assert.Equal(t, 2018, *filter.GraduationYear)
	require.NotNil(t, filter.IsMentor)
	assert.True(t, *filter.IsMentor)
	// Malformed values leave the field unset instead of failing the export.
	assert.Nil(t, filter.Active)
}
