package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/tams-dev/tams-api/internal/models"
)

func newProctoringRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestProctoringRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newProctoringRepoMock(t)
	defer cleanup()
	repo := NewProctoringRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("e1", "ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO proctoring_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assignment := &models.ProctoringAssignment{ExamID: "e1", TAID: "ta-1", Department: "CS"}
	require.NoError(t, repo.Create(context.Background(), assignment))
	require.NotEmpty(t, assignment.ID)
	require.Equal(t, models.AssignmentStatusPending, assignment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProctoringRepositoryCreateDuplicateActive(t *testing.T) {
	db, mock, cleanup := newProctoringRepoMock(t)
	defer cleanup()
	repo := NewProctoringRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("e1", "ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.Create(context.Background(), &models.ProctoringAssignment{ExamID: "e1", TAID: "ta-1"})
	require.ErrorIs(t, err, ErrDuplicateActiveAssignment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProctoringRepositoryCreateUniqueViolationRace(t *testing.T) {
	db, mock, cleanup := newProctoringRepoMock(t)
	defer cleanup()
	repo := NewProctoringRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("e1", "ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO proctoring_assignments")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.ProctoringAssignment{ExamID: "e1", TAID: "ta-1"})
	require.ErrorIs(t, err, ErrDuplicateActiveAssignment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProctoringRepositoryTransition(t *testing.T) {
	db, mock, cleanup := newProctoringRepoMock(t)
	defer cleanup()
	repo := NewProctoringRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM proctoring_assignments WHERE id = $1 FOR UPDATE")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE proctoring_assignments SET status = $2")).
		WithArgs("a1", models.AssignmentStatusAccepted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	prior, err := repo.Transition(context.Background(), "a1",
		[]models.AssignmentStatus{models.AssignmentStatusPending}, models.AssignmentStatusAccepted)
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusPending, prior)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProctoringRepositoryTransitionNotAllowed(t *testing.T) {
	db, mock, cleanup := newProctoringRepoMock(t)
	defer cleanup()
	repo := NewProctoringRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM proctoring_assignments WHERE id = $1 FOR UPDATE")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("SWAPPED"))
	mock.ExpectRollback()

	prior, err := repo.Transition(context.Background(), "a1",
		[]models.AssignmentStatus{models.AssignmentStatusPending, models.AssignmentStatusAccepted},
		models.AssignmentStatusSwapped)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, models.AssignmentStatusSwapped, prior)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProctoringRepositoryStatusCounts(t *testing.T) {
	db, mock, cleanup := newProctoringRepoMock(t)
	defer cleanup()
	repo := NewProctoringRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM proctoring_assignments")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("PENDING", 2).
			AddRow("ACCEPTED", 1))

	counts, err := repo.StatusCounts(context.Background(), "ta-1")
	require.NoError(t, err)
	require.Equal(t, 2, counts[models.AssignmentStatusPending])
	require.Equal(t, 1, counts[models.AssignmentStatusAccepted])
	require.NoError(t, mock.ExpectationsWereMet())
}
