package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openregistrar/registrar-api/internal/models"
)

func requestDetailRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "student_id", "document_type", "purpose", "status", "amount", "result_path",
		"created_by", "created_at", "updated_at", "student_no", "student_name"}).
		AddRow("req-1", "stu-1", "TOR", "board exam", "PENDING", nil, nil,
			"user-1", now, now, "2026-00042", "Ana Reyes")
}

func TestRequestRepositoryListScopesByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM document_requests r JOIN students s ON s.id = r.student_id WHERE 1=1 AND r.student_id = $1 AND r.status = $2 ORDER BY r.created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("stu-1", models.RequestPending).
		WillReturnRows(requestDetailRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM document_requests r JOIN students s ON s.id = r.student_id WHERE 1=1 AND r.student_id = $1 AND r.status = $2")).
		WithArgs("stu-1", models.RequestPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	requests, total, err := repo.List(context.Background(), models.RequestFilter{StudentID: "stu-1", Status: models.RequestPending})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Ana Reyes", requests[0].StudentName)
	assert.False(t, requests[0].Amount.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE document_requests SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("req-1", models.RequestPaymentRequired, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "req-1", models.RequestPaymentRequired)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateStatusAndAmountIsOneStatement(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	amount := decimal.NewFromInt(150)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE document_requests SET status = $2, amount = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("req-1", models.RequestPaymentRequired, amount, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatusAndAmount(context.Background(), "req-1", models.RequestPaymentRequired, amount)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS total FROM document_requests GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "total"}).
			AddRow("PENDING", 3).
			AddRow("READY_FOR_PICKUP", 1))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.RequestPending])
	assert.Equal(t, 1, counts[models.RequestReadyForPickup])
	assert.Zero(t, counts[models.RequestApproved])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec("INSERT INTO document_requests").
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.DocumentRequest{
		StudentID:    "stu-1",
		DocumentType: models.DocumentTOR,
		Purpose:      "board exam",
		Status:       models.RequestPending,
		CreatedBy:    "user-1",
	}
	err := repo.Create(context.Background(), request)
	require.NoError(t, err)
	assert.NotEmpty(t, request.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
