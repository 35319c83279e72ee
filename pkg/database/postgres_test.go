package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialhub/internal/common"
)

func newPostgresMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &SQLStore{db: db, dialect: postgresDialect}, mock
}

func TestPostgres_GetFound(t *testing.T) {
	s, mock := newPostgresMock(t)

	q := `(?s)^SELECT body FROM documents WHERE collection = \$1 AND id = \$2$`
	mock.ExpectQuery(q).
		WithArgs("counters", "a").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte(`{"id":"a","value":7}`)))

	got, err := Get[counter](context.Background(), s.Collection("counters"), "a")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetNotFound(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectQuery(`SELECT body FROM documents`).
		WithArgs("counters", "a").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))

	_, err := Get[counter](context.Background(), s.Collection("counters"), "a")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPostgres_GetDBError(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectQuery(`SELECT body FROM documents`).
		WithArgs("counters", "a").
		WillReturnError(errors.New("db down"))

	_, err := Get[counter](context.Background(), s.Collection("counters"), "a")
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
}

func TestPostgres_PutUpserts(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectExec(`(?s)INSERT INTO documents .* ON CONFLICT \(collection, id\) DO UPDATE`).
		WithArgs("counters", "a", `{"id":"a","value":1}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Collection("counters").Put(context.Background(), "a", &counter{ID: "a", Value: 1})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateLocksRow(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT body FROM documents WHERE collection = \$1 AND id = \$2 FOR UPDATE`).
		WithArgs("counters", "a").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte(`{"id":"a","value":1}`)))
	mock.ExpectExec(`UPDATE documents SET body = \$1, updated_at = \$2 WHERE collection = \$3 AND id = \$4`).
		WithArgs(`{"id":"a","value":2}`, sqlmock.AnyArg(), "counters", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := Mutate(context.Background(), s.Collection("counters"), "a", func(cur *counter) (*counter, error) {
		cur.Value++
		return cur, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateInsertRaceRetries(t *testing.T) {
	s, mock := newPostgresMock(t)

	// first attempt loses the insert race
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("counters", "a").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))
	mock.ExpectExec(`ON CONFLICT \(collection, id\) DO NOTHING`).
		WithArgs("counters", "a", `{"id":"a","value":1}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	// second attempt sees the winner's row
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("counters", "a").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte(`{"id":"a","value":1}`)))
	mock.ExpectExec(`UPDATE documents`).
		WithArgs(`{"id":"a","value":2}`, sqlmock.AnyArg(), "counters", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := Mutate(context.Background(), s.Collection("counters"), "a", func(cur *counter) (*counter, error) {
		if cur == nil {
			cur = &counter{ID: "a"}
		}
		cur.Value++
		return cur, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateDeletes(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("counters", "a").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte(`{"id":"a"}`)))
	mock.ExpectExec(`DELETE FROM documents WHERE collection = \$1 AND id = \$2`).
		WithArgs("counters", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := Mutate(context.Background(), s.Collection("counters"), "a", func(cur *counter) (*counter, error) {
		return nil, nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ForEach(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectQuery(`SELECT id, body FROM documents WHERE collection = \$1 ORDER BY id`).
		WithArgs("counters").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).
			AddRow("a", []byte(`{"id":"a","value":1}`)).
			AddRow("b", []byte(`{"id":"b","value":2}`)))

	all, err := List[counter](context.Background(), s.Collection("counters"), nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[1].Value)
}
