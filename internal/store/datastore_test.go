package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSeeded(t *testing.T) *DataStore {
	t.Helper()
	ds, err := Open(Config{Driver: DriverSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	n, err := ds.Seed(context.Background())
	require.NoError(t, err)
	require.Equal(t, len(demoEmployees), n)
	return ds
}

func TestSeedIsIdempotent(t *testing.T) {
	ds := openSeeded(t)
	n, err := ds.Seed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExecuteWithParameters(t *testing.T) {
	ds := openSeeded(t)

	res := ds.Execute(context.Background(),
		`SELECT name, salary FROM employees WHERE occupation = ? AND city = ? ORDER BY salary`,
		[]any{"nurse", "Seattle"})

	require.True(t, res.Success, res.Error)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "Carmen Ruiz", res.Rows[0]["name"])
	assert.EqualValues(t, 79000, res.Rows[0]["salary"])
}

func TestExecuteReportsFailure(t *testing.T) {
	ds := openSeeded(t)

	res := ds.Execute(context.Background(), `SELECT nope FROM missing_table`, nil)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Nil(t, res.Rows)
}

func TestExecuteCapsRows(t *testing.T) {
	ds := openSeeded(t)
	ds.maxRows = 4

	res := ds.Execute(context.Background(), `SELECT * FROM employees`, nil)
	require.True(t, res.Success)
	assert.Len(t, res.Rows, 4)
	assert.Equal(t, len(demoEmployees), res.RowCount)
}

func TestExecuteCountsPastCap(t *testing.T) {
	ds := openSeeded(t)
	ds.maxRows = 5

	res := ds.Execute(context.Background(),
		`WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < 20) SELECT i FROM n`, nil)
	require.True(t, res.Success, res.Error)
	assert.Len(t, res.Rows, 5)
	assert.Equal(t, 20, res.RowCount)
}

func TestExecuteIsReadOnly(t *testing.T) {
	ds := openSeeded(t)
	ctx := context.Background()

	before := ds.Execute(ctx, `SELECT sum(salary) AS total FROM employees`, nil)
	require.True(t, before.Success, before.Error)

	writes := []string{
		`WITH a AS (SELECT 1) UPDATE "employees" SET salary = 0`,
		`WITH a AS (SELECT 1) DELETE FROM employees`,
		`UPDATE employees SET salary = 0 RETURNING id`,
	}
	for _, stmt := range writes {
		res := ds.Execute(ctx, stmt, nil)
		assert.False(t, res.Success, stmt)
	}

	after := ds.Execute(ctx, `SELECT sum(salary) AS total FROM employees`, nil)
	require.True(t, after.Success, after.Error)
	assert.Equal(t, before.Rows, after.Rows)

	// the connection is writable again for seeding
	_, err := ds.DB.ExecContext(ctx, `DELETE FROM employees WHERE id = 1`)
	assert.NoError(t, err)
}

func TestSchemaSQLite(t *testing.T) {
	ds := openSeeded(t)

	tables, err := ds.Schema(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "employees", tables[0].Name)
	assert.Equal(t, "id", tables[0].Columns[0].Name)
	assert.Len(t, tables[0].Columns, 6)

	desc := ds.DescribeSchema(context.Background())
	assert.Contains(t, desc, "employees(id INTEGER, name TEXT")
}

func TestExecuteDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT salary FROM employees").
		WithArgs("nurse").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	ds := New(db, DriverPostgres, Config{Timeout: time.Second}, nil)
	res := ds.Execute(context.Background(), "SELECT salary FROM employees WHERE occupation = $1", []any{"nurse"})

	assert.False(t, res.Success)
	assert.Equal(t, "connection reset", res.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteNormalizesBytes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT city").
		WillReturnRows(sqlmock.NewRows([]string{"city", "n"}).AddRow([]byte("Seattle"), int64(3)))
	mock.ExpectRollback()

	ds := New(db, DriverPostgres, Config{}, nil)
	res := ds.Execute(context.Background(), "SELECT city, count(*) AS n FROM employees GROUP BY city", nil)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Seattle", res.Rows[0]["city"])
	assert.Equal(t, int64(3), res.Rows[0]["n"])
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, "$1, $2, ...", ds.Placeholder())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle", DSN: "x"}, nil)
	assert.Error(t, err)
}
