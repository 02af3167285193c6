package postgres

import (
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/user"
	subscriptionpkg "github.com/frahmantamala/subscription-billing/internal/subscription"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) subscriptionpkg.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(id int64) (*user.User, error) {
	var u user.User
	err := r.db.First(&u, id).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &u, nil
}
