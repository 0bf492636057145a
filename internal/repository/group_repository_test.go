package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGroupMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestGroupRepositoryMoveStudentDeletesEmptiedGroup(t *testing.T) {
	db, mock, cleanup := newGroupMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT group_id FROM students WHERE user_id = $1 FOR UPDATE")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow("group-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET group_id = $2, updated_at = $3 WHERE user_id = $1")).
		WithArgs("student-1", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE group_id = $1")).
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM groups WHERE id = $1")).
		WithArgs("group-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := repo.MoveStudent(context.Background(), "student-1", nil, 5)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, "group-1", *deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRepositoryMoveStudentKeepsGroupWithRemainingMembers(t *testing.T) {
	db, mock, cleanup := newGroupMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT group_id FROM students WHERE user_id = $1 FOR UPDATE")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow("group-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET group_id = $2, updated_at = $3 WHERE user_id = $1")).
		WithArgs("student-1", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE group_id = $1")).
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectCommit()

	deleted, err := repo.MoveStudent(context.Background(), "student-1", nil, 5)
	require.NoError(t, err)
	assert.Nil(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRepositoryMoveStudentRejectsFullGroup(t *testing.T) {
	db, mock, cleanup := newGroupMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	target := "group-2"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT group_id FROM students WHERE user_id = $1 FOR UPDATE")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow(nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT approved FROM groups WHERE id = $1 FOR UPDATE")).
		WithArgs("group-2").
		WillReturnRows(sqlmock.NewRows([]string{"approved"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE group_id = $1")).
		WithArgs("group-2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectRollback()

	deleted, err := repo.MoveStudent(context.Background(), "student-1", &target, 5)
	assert.ErrorIs(t, err, ErrGroupFull)
	assert.Nil(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRepositoryMoveStudentRejectsApprovedGroup(t *testing.T) {
	db, mock, cleanup := newGroupMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	target := "group-2"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT group_id FROM students WHERE user_id = $1 FOR UPDATE")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow(nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT approved FROM groups WHERE id = $1 FOR UPDATE")).
		WithArgs("group-2").
		WillReturnRows(sqlmock.NewRows([]string{"approved"}).AddRow(true))
	mock.ExpectRollback()

	deleted, err := repo.MoveStudent(context.Background(), "student-1", &target, 5)
	assert.ErrorIs(t, err, ErrMembershipClosed)
	assert.Nil(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRepositoryMoveStudentJoinOpenGroup(t *testing.T) {
	db, mock, cleanup := newGroupMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	target := "group-2"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT group_id FROM students WHERE user_id = $1 FOR UPDATE")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow(nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT approved FROM groups WHERE id = $1 FOR UPDATE")).
		WithArgs("group-2").
		WillReturnRows(sqlmock.NewRows([]string{"approved"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE group_id = $1")).
		WithArgs("group-2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET group_id = $2, updated_at = $3 WHERE user_id = $1")).
		WithArgs("student-1", "group-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := repo.MoveStudent(context.Background(), "student-1", &target, 5)
	require.NoError(t, err)
	assert.Nil(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
