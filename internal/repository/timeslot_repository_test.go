package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/lingua-enrollment/internal/model"
)

func TestListWithOccupancyDerivesState(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN reservations r ON r.timeslot_id = s.id")).
		WithArgs(now, 9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "teacher_id", "name", "weekday", "start_time", "c", "b", "p"}).
			AddRow(101, 9, "Ana", 1, "09:30", "1", "0", "1").
			AddRow(102, 9, "Ana", 3, "17:00", "0", "0", "0"))

	rows, err := NewTimeslotRepo(db).ListWithOccupancy(context.Background(), now, SlotFilter{TeacherID: 9})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.SlotOccupied, rows[0].Occupancy.State())
	assert.Equal(t, model.Monday, rows[0].Weekday)
	assert.Equal(t, model.SlotAvailable, rows[1].Occupancy.State())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeslotDeleteBlockedByConfirmed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM timeslots WHERE id = ? FOR UPDATE")).
		WithArgs(101).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM reservations WHERE timeslot_id = ? AND state = 'confirmed' FOR UPDATE")).
		WithArgs(101).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectRollback()

	err = NewTimeslotRepo(db).Delete(context.Background(), 101)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeslotCreateDuplicateIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timeslots (teacher_id, weekday, start_time) VALUES (?, ?, ?)")).
		WithArgs(9, 1, "09:30:00").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err = NewTimeslotRepo(db).Create(context.Background(), 9, model.Monday, "09:30")
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
