package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conces/conces-api/internal/models"
)

func newAlumniMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func alumniRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "full_name", "email", "phone", "graduation_year", "specialization", "occupation",
		"branch_id", "available_for_mentorship", "is_mentor", "active", "created_at", "updated_at", "branch_name",
	}).AddRow("a-1", nil, "Ada Obi", "ada@example.com", "080", 2018, "Civil", "Engineer",
		nil, true, false, true, time.Now(), time.Now(), nil)
}

func TestAlumniRepositoryListDefaults(t *testing.T) {
	db, mock, cleanup := newAlumniMock(t)
	defer cleanup()
	repo := NewAlumniRepository(db)

	// Empty filters add no condition and no argument.
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 ORDER BY a.created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs().
		WillReturnRows(alumniRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM alumni a LEFT JOIN branches b ON b.id = a.branch_id WHERE 1=1")).
		WithArgs().
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	alumni, total, err := repo.List(context.Background(), models.AlumniFilter{})
	require.NoError(t, err)
	assert.Len(t, alumni, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlumniRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newAlumniMock(t)
	defer cleanup()
	repo := NewAlumniRepository(db)

	year := 2018
	mentor := true
	mock.ExpectQuery(regexp.QuoteMeta("(LOWER(a.full_name) LIKE $1 OR LOWER(a.email) LIKE $1) AND a.graduation_year = $2 AND a.is_mentor = $3")).
		WithArgs("%ada%", year, mentor).
		WillReturnRows(alumniRows())
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("%ada%", year, mentor).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	filter := models.AlumniFilter{GraduationYear: &year, IsMentor: &mentor}
	filter.Search = "Ada"
	_, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlumniRepositoryListPagination(t *testing.T) {
	db, mock, cleanup := newAlumniMock(t)
	defer cleanup()
	repo := NewAlumniRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY a.full_name ASC LIMIT 50 OFFSET 100")).
		WithArgs().
		WillReturnRows(alumniRows())
	mock.ExpectQuery("SELECT COUNT").
		WithArgs().
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(250))

	filter := models.AlumniFilter{}
	filter.Page = 3
	filter.Limit = 50
	filter.SortBy = "full_name"
	filter.SortOrder = "asc"
	_, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 250, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlumniRepositoryUpdatePartialSingleFlag(t *testing.T) {
	db, mock, cleanup := newAlumniMock(t)
	defer cleanup()
	repo := NewAlumniRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE alumni SET is_mentor = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(true, sqlmock.AnyArg(), "a-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mentor := true
	err := repo.UpdatePartial(context.Background(), "a-1", models.AlumniUpdate{IsMentor: &mentor})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlumniRepositoryUpdatePartialNoFields(t *testing.T) {
	db, mock, cleanup := newAlumniMock(t)
	defer cleanup()
	repo := NewAlumniRepository(db)

	// No fields set means no statement issued.
	err := repo.UpdatePartial(context.Background(), "a-1", models.AlumniUpdate{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlumniRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAlumniMock(t)
	defer cleanup()
	repo := NewAlumniRepository(db)

	mock.ExpectExec("INSERT INTO alumni").
		WillReturnResult(sqlmock.NewResult(1, 1))

	alumni := &models.Alumni{FullName: "Ada Obi", Email: "ada@example.com", GraduationYear: 2018, Active: true}
	err := repo.Create(context.Background(), alumni)
	require.NoError(t, err)
	assert.NotEmpty(t, alumni.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlumniRepositoryDeactivate(t *testing.T) {
	db, mock, cleanup := newAlumniMock(t)
	defer cleanup()
	repo := NewAlumniRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE alumni SET active = false, updated_at = $2 WHERE id = $1")).
		WithArgs("a-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "a-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
