package repository

import "testing"

// PostgresAccountRepoはAccountRepositoryインターフェースを満たすことを検証
func TestPostgresAccountRepo_ImplementsInterface(t *testing.T) {
	var _ AccountRepository = (*PostgresAccountRepo)(nil)
}

// PostgresTaskRepoはTaskRepositoryインターフェースを満たすことを検証
func TestPostgresTaskRepo_ImplementsInterface(t *testing.T) {
	var _ TaskRepository = (*PostgresTaskRepo)(nil)
}

// NewPostgresAccountRepoが正しく初期化されることを検証
func TestNewPostgresAccountRepo_Initializes(t *testing.T) {
	repo := NewPostgresAccountRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresTaskRepoが正しく初期化されることを検証
func TestNewPostgresTaskRepo_Initializes(t *testing.T) {
	repo := NewPostgresTaskRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}
