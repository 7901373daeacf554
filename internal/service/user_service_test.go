package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/conces/conces-api/internal/models"
	appErrors "github.com/conces/conces-api/pkg/errors"
)

type fakeUserRepo struct {
	users     map[string]*models.User
	byEmail   map[string]*models.User
	listTotal int
	auditLogs []*models.AuditLog
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*models.User), byEmail: make(map[string]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
		repo.byEmail[u.Email] = u
	}
	return repo
}

func (f *fakeUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	out := make([]models.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	total := f.listTotal
	if total == 0 {
		total = len(out)
	}
	return out, total, nil
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	f.users[user.ID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, id string) error {
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Active = false
	return nil
}

func (f *fakeUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.auditLogs = append(f.auditLogs, log)
	return nil
}

func TestUserServiceCreateHashesPassword(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "New.Admin@CONCES.org",
		FullName: "New Admin",
		Role:     models.RoleAdmin,
		Active:   true,
		Password: "supersecret",
	}, "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "new.admin@conces.org", user.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("supersecret")))
	assert.NotEmpty(t, repo.auditLogs)
}

func TestUserServiceCreateDuplicateEmail(t *testing.T) {
	existing := &models.User{ID: "u1", Email: "taken@conces.org", Active: true}
	repo := newFakeUserRepo(existing)
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "taken@conces.org",
		FullName: "Dup",
		Role:     models.RoleAlumni,
		Password: "supersecret",
	}, "actor", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateBranchAdminNeedsBranch(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "lagos@conces.org",
		FullName: "Lagos Admin",
		Role:     models.RoleBranchAdmin,
		Password: "supersecret",
	}, "actor", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdateTogglesActive(t *testing.T) {
	existing := &models.User{ID: "u1", Email: "user@conces.org", FullName: "User", Role: models.RoleAlumni, Active: true}
	repo := newFakeUserRepo(existing)
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	inactive := false
	updated, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		FullName: "User",
		Role:     models.RoleAlumni,
		Active:   &inactive,
	}, "actor", models.RoleAdmin, models.LoginRequest{})
	require.NoError(t, err)
	assert.False(t, updated.Active)
}

func TestUserServiceSelfUpdateCannotEscalate(t *testing.T) {
	existing := &models.User{ID: "u1", Email: "student@conces.org", FullName: "Student", Role: models.RoleStudent, Active: true}
	repo := newFakeUserRepo(existing)
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		FullName: "Student",
		Role:     models.RoleSuperAdmin,
	}, "u1", models.RoleStudent, models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.RoleStudent, existing.Role)

	branch := "b-1"
	_, err = svc.Update(context.Background(), "u1", UpdateUserRequest{
		FullName: "Student",
		Role:     models.RoleStudent,
		BranchID: &branch,
	}, "u1", models.RoleStudent, models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUserServiceSelfUpdateProfileAllowed(t *testing.T) {
	existing := &models.User{ID: "u1", Email: "student@conces.org", FullName: "Student", Role: models.RoleStudent, Active: true}
	repo := newFakeUserRepo(existing)
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	updated, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		FullName: "Student Renamed",
		Role:     models.RoleStudent,
	}, "u1", models.RoleStudent, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Student Renamed", updated.FullName)
	assert.Equal(t, models.RoleStudent, updated.Role)
}

func TestUserServiceDeleteSelfRejected(t *testing.T) {
	existing := &models.User{ID: "u1", Email: "user@conces.org", Active: true}
	repo := newFakeUserRepo(existing)
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "u1", "u1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.True(t, existing.Active)
}

func TestUserServiceListPagination(t *testing.T) {
	repo := newFakeUserRepo(&models.User{ID: "u1", Email: "a@conces.org"}, &models.User{ID: "u2", Email: "b@conces.org"})
	repo.listTotal = 45
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	filter := models.UserFilter{}
	filter.Page = 2
	filter.Limit = 10
	_, pagination, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 10, pagination.Limit)
	assert.Equal(t, 45, pagination.Total)
	assert.Equal(t, 5, pagination.Pages)
}
