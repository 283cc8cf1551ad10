package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"questionforum/pkg/models"
)

// CreateUser registers a user. A taken username or email is ErrDuplicate.
func (db *DB) CreateUser(ctx context.Context, u models.User, password string) (models.User, error) {
	hash, err := db.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := db.ExecContext(ctx, `
		INSERT INTO users (username, firstname, lastname, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.Username, u.Firstname, u.Lastname, u.Email, hash, db.now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrDuplicate
		}
		return models.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, err
	}
	u.ID = int(id)
	return u, nil
}

// Authenticate checks an email and password pair.
func (db *DB) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	var (
		u    models.User
		hash string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, username, firstname, lastname, email, password_hash
		FROM users WHERE email = ?
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&u.ID, &u.Username, &u.Firstname, &u.Lastname, &u.Email, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	if !CheckPasswordHash(password, hash) {
		return models.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (db *DB) UserByID(ctx context.Context, id int) (models.User, error) {
	var u models.User
	err := db.QueryRowContext(ctx, `
		SELECT id, username, firstname, lastname, email FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Username, &u.Firstname, &u.Lastname, &u.Email)
	if err != nil {
		return models.User{}, notFound(err)
	}
	return u, nil
}
