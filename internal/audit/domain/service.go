package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Service interface {
	AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error

	// AuditLogTx writes through the caller's open transaction so the audit
	// row commits and rolls back with the operation it describes.
	AuditLogTx(ctx context.Context, tx *gorm.DB, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
}

var (
	ErrInvalidAction = errors.New("invalid_action")
)
