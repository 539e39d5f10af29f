package repository

import (
	"context"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
)

const userColumns = `id, email, first_name, last_name, image_url, role, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.ImageURL, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// InsertUserIfAbsent inserts u and reports whether a row was created.
func (q *Queries) InsertUserIfAbsent(ctx context.Context, u *models.User) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, image_url, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, u.ID, u.Email, u.FirstName, u.LastName, u.ImageURL, u.Role)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (q *Queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (q *Queries) UpdateUserIdentity(ctx context.Context, id models.Identity) error {
	return requireRow(q.db.ExecContext(ctx, `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, image_url = $5, updated_at = NOW()
		WHERE id = $1
	`, id.ID, id.Email, id.FirstName, id.LastName, id.ImageURL))
}

func (q *Queries) UpdateUserNames(ctx context.Context, userID, firstName, lastName string) error {
	return requireRow(q.db.ExecContext(ctx, `
		UPDATE users SET first_name = $2, last_name = $3, updated_at = NOW() WHERE id = $1
	`, userID, firstName, lastName))
}

func (q *Queries) SetUserRole(ctx context.Context, userID string, role models.Role) error {
	return requireRow(q.db.ExecContext(ctx, `
		UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1
	`, userID, role))
}

func (q *Queries) DeleteUser(ctx context.Context, id string) error {
	return requireRow(q.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id))
}

func (q *Queries) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
