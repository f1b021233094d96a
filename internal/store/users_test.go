package store

import (
	"context"
	"testing"

	"github.com/tbechet/safestep/internal/db"
	"github.com/tbechet/safestep/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "worker@example.com", "hash", "Ana", "Silva", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "worker@example.com" || user.Role != model.RoleUser {
		t.Errorf("unexpected user: %+v", user)
	}

	byEmail, _ := GetUserByEmail(ctx, database, "worker@example.com")
	if byEmail == nil || byEmail.ID != user.ID {
		t.Error("expected lookup by email to find the user")
	}
}

func TestDuplicateEmailRejected(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, err := CreateUser(ctx, database, "dup@example.com", "hash", "", "", model.RoleUser); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := CreateUser(ctx, database, "dup@example.com", "hash", "", "", model.RoleUser); err == nil {
		t.Error("expected duplicate email to be rejected")
	}
}

func TestGetUserNotFound(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := GetUser(ctx, database, 999)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil for missing user, got %+v", user)
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "worker@example.com", "old", "", "", model.RoleUser)
	if err := UpdateUserPassword(ctx, database, user.ID, "new"); err != nil {
		t.Fatalf("UpdateUserPassword: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "new" {
		t.Errorf("expected updated hash, got %q", got.PasswordHash)
	}
}
