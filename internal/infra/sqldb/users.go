package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quiz-session-service/internal/domain"
	"github.com/uptrace/bun"
)

// CreateUser inserts an account, rejecting a username or email already in use.
func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	var created domain.User
	err := runInTx(ctx, s.db, "create user", func(ctx context.Context, tx bun.Tx) error {
		taken, err := tx.NewSelect().
			Model((*userRow)(nil)).
			Where("username = ? OR email = ?", user.Username, user.Email).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if taken {
			return domain.ErrDuplicateUsername
		}

		row := userRow{
			Username:     user.Username,
			PasswordHash: user.PasswordHash,
			Email:        user.Email,
			IsAdmin:      user.Admin,
		}
		if _, err := tx.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if row.ID == 0 {
			return domain.ErrMissingGeneratedID
		}
		created = user
		created.ID = row.ID
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return created, nil
}

// GetUserByID returns (nil, nil) when the user does not exist.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByUsername returns (nil, nil) when the user does not exist.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

func (s *Store) getUser(ctx context.Context, where string, arg interface{}) (*domain.User, error) {
	var row userRow
	if err := s.db.NewSelect().Model(&row).Where(where, arg).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, readErr("get user", err)
	}
	user := row.toDomain()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, readErr("list users", err)
	}
	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toDomain())
	}
	return users, nil
}

// UpdateUser replaces username, email and admin flag. The password is changed
// only through UpdatePasswordHash.
func (s *Store) UpdateUser(ctx context.Context, user domain.User) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*userRow)(nil)).
		Set("username = ?", user.Username).
		Set("email = ?", user.Email).
		Set("is_admin = ?", user.Admin).
		Where("id = ?", user.ID).
		Exec(ctx)
	return affected("update user", res, err)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID int64, hash string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*userRow)(nil)).
		Set("password_hash = ?", hash).
		Where("id = ?", userID).
		Exec(ctx)
	return affected("update password", res, err)
}

// DeleteUser removes the account with its quizzes and results.
func (s *Store) DeleteUser(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.NewDelete().Model((*userRow)(nil)).Where("id = ?", id).Exec(ctx)
	return affected("delete user", res, err)
}
