// internal/repository/user_repository.go
package repository

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// UserRepositoryInterface defines the read-only view of the user directory
// the engine needs. Users are owned by an external collaborator.
type UserRepositoryInterface interface {
	ListAll() ([]model.User, error)
	GetByID(id int64) (*model.User, error)
}

type UserRepository struct {
	DB *sqlx.DB
}

// ListAll fetches every user in the directory's natural id-ascending order.
// Segment resolution depends on this ordering being stable.
func (r *UserRepository) ListAll() ([]model.User, error) {
	users := []model.User{}
	err := r.DB.Select(&users, `
        SELECT id, name, email, tags
        FROM users
        ORDER BY id ASC
    `)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) GetByID(id int64) (*model.User, error) {
	var u model.User
	err := r.DB.Get(&u, `
        SELECT id, name, email, tags
        FROM users
        WHERE id = $1
    `, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

var _ UserRepositoryInterface = (*UserRepository)(nil)
