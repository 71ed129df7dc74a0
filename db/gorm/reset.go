package gorm

import (
	"errors"

	"github.com/taskdeck-io/taskdeck"
	stdgorm "gorm.io/gorm"
)

type passwordResetRepository struct {
	db *stdgorm.DB
}

func NewPasswordResetRepository(db *stdgorm.DB) taskdeck.PasswordResetRepository {
	return &passwordResetRepository{db}
}

func (p *passwordResetRepository) Create(reset taskdeck.PasswordReset) (taskdeck.PasswordReset, error) {
	result := p.db.Create(&reset)

	return reset, result.Error
}

func (p *passwordResetRepository) FindByToken(token string) (taskdeck.PasswordReset, error) {
	var reset taskdeck.PasswordReset
	result := p.db.Where("token = ?", token).First(&reset)
	if errors.Is(result.Error, stdgorm.ErrRecordNotFound) {
		return taskdeck.PasswordReset{}, taskdeck.ErrResetTokenInvalid
	}

	return reset, result.Error
}

func (p *passwordResetRepository) Delete(resetID uint64) error {
	result := p.db.Delete(&taskdeck.PasswordReset{}, resetID)

	return result.Error
}
