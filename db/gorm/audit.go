package gorm

import (
	"github.com/taskdeck-io/taskdeck"
	stdgorm "gorm.io/gorm"
)

type auditLogRepository struct {
	db *stdgorm.DB
}

func NewAuditLogRepository(db *stdgorm.DB) taskdeck.AuditLogRepository {
	return &auditLogRepository{db}
}

func (a *auditLogRepository) Append(entry taskdeck.AuditLog) error {
	result := a.db.Create(&entry)

	return result.Error
}

func (a *auditLogRepository) FindAll() ([]taskdeck.AuditLog, error) {
	var entries []taskdeck.AuditLog
	result := a.db.Order("timestamp desc").Find(&entries)

	return entries, result.Error
}
