package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
	apperrors "messaging-service/pkg/errors"
)

const userColumns = `id, username, email, password_hash, display_name, about, avatar_url, created_at`

// UserRepository is the identity store. Everything else references users
// by id and treats the records as immutable.
type UserRepository interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	GetByID(ctx context.Context, id int) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	Exists(ctx context.Context, id int) (bool, error)
	Search(ctx context.Context, query string, limit int) ([]models.User, error)
	UpdateProfile(ctx context.Context, id int, displayName, about, avatarURL string) (models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create stores a new user, rejecting duplicate usernames and emails.
func (r *UserRepo) Create(ctx context.Context, user models.User) (models.User, error) {
	if _, err := r.GetByUsername(ctx, user.Username); err == nil {
		return models.User{}, apperrors.AlreadyExists("username is already taken")
	}
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return models.User{}, apperrors.AlreadyExists("email is already registered")
	}

	user.CreatedAt = time.Now().UTC()
	query := r.db.Rebind(`INSERT INTO users (username, email, password_hash, display_name, about, avatar_url, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	if err := r.db.QueryRowxContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.DisplayName, user.About, user.AvatarURL, user.CreatedAt,
	).Scan(&user.ID); err != nil {
		return models.User{}, apperrors.Wrap(apperrors.CodeInternal, "create user", err)
	}
	return user, nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperrors.NotFound(fmt.Sprintf("user with id %d not found", id))
	}
	if err != nil {
		return models.User{}, apperrors.Wrap(apperrors.CodeInternal, "get user", err)
	}
	return user, nil
}

// GetByUsername fetches a user by unique username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`), username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperrors.NotFound("user not found")
	}
	if err != nil {
		return models.User{}, apperrors.Wrap(apperrors.CodeInternal, "get user by username", err)
	}
	return user, nil
}

// GetByEmail fetches a user by unique email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperrors.NotFound("user not found")
	}
	if err != nil {
		return models.User{}, apperrors.Wrap(apperrors.CodeInternal, "get user by email", err)
	}
	return user, nil
}

// Exists reports whether a user id resolves.
func (r *UserRepo) Exists(ctx context.Context, id int) (bool, error) {
	return userExists(ctx, r.db, id)
}

// Search finds users whose username or display name contains the query.
func (r *UserRepo) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	var users []models.User
	err := r.db.SelectContext(ctx, &users, r.db.Rebind(`SELECT `+userColumns+` FROM users
        WHERE username LIKE ? OR display_name LIKE ? ORDER BY username LIMIT ?`), pattern, pattern, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "search users", err)
	}
	return users, nil
}

// UpdateProfile updates the mutable profile fields.
func (r *UserRepo) UpdateProfile(ctx context.Context, id int, displayName, about, avatarURL string) (models.User, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET display_name = ?, about = ?, avatar_url = ? WHERE id = ?`),
		displayName, about, avatarURL, id)
	if err != nil {
		return models.User{}, apperrors.Wrap(apperrors.CodeInternal, "update profile", err)
	}
	if count, err := res.RowsAffected(); err == nil && count == 0 {
		return models.User{}, apperrors.NotFound(fmt.Sprintf("user with id %d not found", id))
	}
	return r.GetByID(ctx, id)
}

// userExists checks a user id against any queryer, including transactions.
func userExists(ctx context.Context, q sqlx.ExtContext, id int) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q, &exists, q.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`), id)
	return exists, err
}
