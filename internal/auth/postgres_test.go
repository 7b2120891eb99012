package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreCreateAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("insert into accounts").
		WithArgs(sqlmock.AnyArg(), "new@school.example", "hash", "active").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into profiles").
		WithArgs(sqlmock.AnyArg(), "New", "Reader", "6", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPGStore(db)
	acc := &Account{Email: "new@school.example", PasswordHash: "hash"}
	profile := &Profile{FirstName: "New", LastName: "Reader", Grade: "6"}
	if err := store.CreateAccount(context.Background(), acc, profile); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if acc.ID == "" || profile.UserID != acc.ID {
		t.Fatalf("ids not assigned: %q %q", acc.ID, profile.UserID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFindAccountByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "status", "created_at", "updated_at"}).
		AddRow("acc-1", "reader@school.example", "hash", "active", now, now)
	mock.ExpectQuery("select id, email, password_hash, status, created_at, updated_at from accounts where email").
		WithArgs("reader@school.example").
		WillReturnRows(rows)

	store := NewPGStore(db)
	acc, err := store.FindAccountByEmail(context.Background(), "reader@school.example")
	if err != nil {
		t.Fatalf("FindAccountByEmail: %v", err)
	}
	if acc.ID != "acc-1" {
		t.Fatalf("unexpected account: %+v", acc)
	}

	mock.ExpectQuery("select id, email, password_hash, status").
		WithArgs("ghost@school.example").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.FindAccountByEmail(context.Background(), "ghost@school.example"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreSetRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("delete from user_roles").WithArgs("acc-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_roles").
		WithArgs(sqlmock.AnyArg(), "acc-1", RoleAdmin).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPGStore(db)
	if err := store.SetRole(context.Background(), "acc-1", RoleAdmin); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
