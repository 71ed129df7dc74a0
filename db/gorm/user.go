package gorm

import (
	"errors"

	"github.com/taskdeck-io/taskdeck"
	stdgorm "gorm.io/gorm"
)

type userRepository struct {
	db *stdgorm.DB
}

func NewUserRepository(db *stdgorm.DB) taskdeck.UserRepository {
	return &userRepository{db}
}

func (u *userRepository) Create(user taskdeck.User) (taskdeck.User, error) {
	result := u.db.Create(&user)

	return user, result.Error
}

func (u *userRepository) Find(userID uint64) (taskdeck.User, error) {
	var user taskdeck.User
	result := u.db.First(&user, userID)
	if errors.Is(result.Error, stdgorm.ErrRecordNotFound) {
		return taskdeck.User{}, taskdeck.ErrUserNotFound
	}

	return user, result.Error
}

func (u *userRepository) FindByEmail(email string) (taskdeck.User, error) {
	var user taskdeck.User
	result := u.db.Where("email = ?", email).First(&user)
	if errors.Is(result.Error, stdgorm.ErrRecordNotFound) {
		return taskdeck.User{}, taskdeck.ErrUserNotFound
	}

	return user, result.Error
}

func (u *userRepository) UpdatePassword(userID uint64, hashedPassword string) error {
	result := u.db.Model(&taskdeck.User{ID: userID}).Update("hashed_password", hashedPassword)

	return result.Error
}
