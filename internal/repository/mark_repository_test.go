package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesishub/thesishub-api/internal/models"
)

func newMarkMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestMarkRepositoryUpsertWithResultRecomputesTotal(t *testing.T) {
	db, mock, cleanup := newMarkMock(t)
	defer cleanup()
	repo := NewMarkRepository(db)

	batch := &models.Batch{SupervisorPct: 50, InternalPct: 30, ExternalPct: 20}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO marks").
		WithArgs(sqlmock.AnyArg(), "group-1", "student-1", "grader-3", "EXTERNAL", 90, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM marks WHERE group_id = \\$1 AND student_id = \\$2 FOR UPDATE").
		WithArgs("group-1", "student-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "student_id", "grader_id", "role", "value", "comment", "created_at", "updated_at"}).
			AddRow("m1", "group-1", "student-1", "grader-1", "SUPERVISOR", 80, "", now, now).
			AddRow("m2", "group-1", "student-1", "grader-2", "INTERNAL", 70, "", now, now).
			AddRow("m3", "group-1", "student-1", "grader-3", "EXTERNAL", 90, "", now, now))
	mock.ExpectExec("INSERT INTO results").
		WithArgs(sqlmock.AnyArg(), "group-1", "student-1", 79.0, "A", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.UpsertWithResult(context.Background(), &models.Mark{
		GroupID:   "group-1",
		StudentID: "student-1",
		GraderID:  "grader-3",
		Role:      models.RoleExternal,
		Value:     90,
	}, batch)
	require.NoError(t, err)
	assert.InDelta(t, 79.0, result.Total, 0.001)
	assert.Equal(t, "A", result.Grade)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRepositoryUpsertWithResultPartialMarks(t *testing.T) {
	db, mock, cleanup := newMarkMock(t)
	defer cleanup()
	repo := NewMarkRepository(db)

	batch := &models.Batch{SupervisorPct: 50, InternalPct: 30, ExternalPct: 20}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO marks").
		WithArgs(sqlmock.AnyArg(), "group-1", "student-1", "grader-1", "SUPERVISOR", 60, "solid work", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM marks WHERE group_id = \\$1 AND student_id = \\$2 FOR UPDATE").
		WithArgs("group-1", "student-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "student_id", "grader_id", "role", "value", "comment", "created_at", "updated_at"}).
			AddRow("m1", "group-1", "student-1", "grader-1", "SUPERVISOR", 60, "solid work", now, now))
	mock.ExpectExec("INSERT INTO results").
		WithArgs(sqlmock.AnyArg(), "group-1", "student-1", 30.0, "F", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.UpsertWithResult(context.Background(), &models.Mark{
		GroupID:   "group-1",
		StudentID: "student-1",
		GraderID:  "grader-1",
		Role:      models.RoleSupervisor,
		Value:     60,
		Comment:   "solid work",
	}, batch)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, result.Total, 0.001)
	assert.Equal(t, "F", result.Grade)
	assert.NoError(t, mock.ExpectationsWereMet())
}
