package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/avissapr/advisordesk/internal/database"
	"github.com/avissapr/advisordesk/internal/models"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, firm_id, email, name, role, password_hash, avatar_path, created_at`

// UserRepository reads and writes staff and client accounts.
type UserRepository struct{}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// FindByEmail loads the account used to sign in, password hash included.
// An unknown email wraps ErrNotFound.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByID loads an account by primary key. An unknown id wraps ErrNotFound.
func (r *UserRepository) FindByID(ctx context.Context, id int) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) findOne(ctx context.Context, query string, key interface{}) (*models.User, error) {
	var u models.User
	err := database.DB.QueryRow(ctx, query, key).Scan(
		&u.ID, &u.FirmID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.AvatarPath, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %v: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListClients returns the client accounts of a firm ordered by name, for the
// "send form" picker on the dashboard. Password hashes are not selected.
func (r *UserRepository) ListClients(ctx context.Context, firmID int) ([]models.User, error) {
	rows, err := database.DB.Query(ctx,
		`SELECT id, firm_id, email, name, role, created_at FROM users WHERE firm_id = $1 AND role = 'client' ORDER BY name`,
		firmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.FirmID, &u.Email, &u.Name, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, u)
	}
	return clients, rows.Err()
}

// UpdateAvatar records the storage key of a user's profile picture.
func (r *UserRepository) UpdateAvatar(ctx context.Context, userID int, path string) error {
	tag, err := database.DB.Exec(ctx, `UPDATE users SET avatar_path = $1 WHERE id = $2`, path, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

// Create inserts an account and fills in its id and creation time. The
// password must already be a bcrypt hash; a duplicate email fails on the
// unique constraint.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return database.DB.QueryRow(ctx, `
		INSERT INTO users (firm_id, email, name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		user.FirmID, user.Email, user.Name, user.Role, user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt)
}

// Delete removes an account. Forms and audit entries that reference it keep
// their rows with the reference set to NULL.
func (r *UserRepository) Delete(ctx context.Context, userID int) error {
	_, err := database.DB.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	return err
}
