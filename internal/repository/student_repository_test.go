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

	"github.com/openregistrar/registrar-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func studentRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "user_id", "student_no", "first_name", "middle_name", "last_name", "email", "gender", "birth_date",
		"address", "phone", "course", "year_level", "photo_path", "active", "created_at", "updated_at"}).
		AddRow("stu-1", nil, "2026-00042", "Ana", "", "Reyes", "ana@example.edu", "F", nil,
			"Poblacion", "0917", "BSCS", "2", nil, true, now, now)
}

func TestStudentRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	active := true
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE 1=1 AND course = $1 AND active = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("BSCS", true).
		WillReturnRows(studentRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE 1=1 AND course = $1 AND active = $2")).
		WithArgs("BSCS", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{Course: "BSCS", Active: &active})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "2026-00042", students[0].StudentNo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListRejectsUnknownSort(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	// An unlisted sort column falls back to created_at; it is never
	// interpolated into the query.
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(studentRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), models.StudentFilter{SortBy: "id; DROP TABLE students"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByStudentNo(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE student_no = $1 LIMIT 1")).
		WithArgs("2026-00042").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.ExistsByStudentNo(context.Background(), "2026-00042")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE student_no = $1 LIMIT 1")).
		WithArgs("2026-99999").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}))

	exists, err = repo.ExistsByStudentNo(context.Background(), "2026-99999")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCountActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE active = true")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	total, err := repo.CountActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateWithUserRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO students").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.CreateWithUser(context.Background(),
		&models.Student{StudentNo: "2026-00042", FirstName: "Ana", LastName: "Reyes"},
		&models.User{Email: "ana@example.edu", PasswordHash: "hash", FullName: "Ana Reyes", Role: models.RoleStudent, Active: true})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeactivate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET active = false, updated_at = $2 WHERE id = $1")).
		WithArgs("stu-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Deactivate(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
