package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func writeSQL(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestUpAppliesPendingMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	writeSQL(t, dir, "0001_demo.up.sql", "create table demo (id text primary key);")

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table demo").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0001_demo.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mgr := NewManager(db, dir, "")
	require.NoError(t, mgr.Up(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpSkipsAlreadyApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	writeSQL(t, dir, "0001_demo.up.sql", "create table demo (id text primary key);")

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_demo.up.sql"))

	mgr := NewManager(db, dir, "")
	require.NoError(t, mgr.Up(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownRequiresDownFile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	writeSQL(t, dir, "0001_demo.up.sql", "create table demo (id text primary key);")

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations order by applied_at asc").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_demo.up.sql"))

	mgr := NewManager(db, dir, "")
	err = mgr.Down(context.Background())
	require.ErrorContains(t, err, "missing down migration")
}

func TestSeedAppliesOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	seeds := t.TempDir()
	writeSQL(t, seeds, "0001_categories.sql", "insert into categories (id, name) values ('c1', 'Fiction');")

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_seeds").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("insert into categories").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_seeds").
		WithArgs("0001_categories.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mgr := NewManager(db, t.TempDir(), seeds)
	require.NoError(t, mgr.Seed(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusListsAppliedInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations order by applied_at asc").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("0001_accounts.up.sql").
			AddRow("0002_catalog.up.sql"))

	mgr := NewManager(db, t.TempDir(), "")
	history, err := mgr.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"0001_accounts.up.sql", "0002_catalog.up.sql"}, history)
}

func TestSplitStatementsIgnoresSemicolonsInStrings(t *testing.T) {
	stmts := splitStatements("insert into t values ('a;b'); update t set x = 1;")
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[0], "a;b")
}
