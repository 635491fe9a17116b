package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service detects suspicious money movement and manages review of flags.
type Service interface {
	// Evaluate records the operation in the rolling window and raises auto
	// flags for any threshold it crosses. It never rejects the operation.
	Evaluate(ctx context.Context, userID, accountID snowflake.ID, op OpClass, amount int64) ([]*FraudFlag, error)

	// RaiseFlag creates an auto generated flag outside the threshold path,
	// for signals detected by other services.
	RaiseFlag(ctx context.Context, userID snowflake.ID, flagType FlagType, severity Severity) (*FraudFlag, error)

	// CreateFlag files a manual report. Detection is skipped.
	CreateFlag(ctx context.Context, userID snowflake.ID, flagType FlagType, severity Severity, reporterID snowflake.ID) (*FraudFlag, error)

	ReviewFlag(ctx context.Context, flagID, reviewerID snowflake.ID, action ReviewAction) (*FraudFlag, error)
	GetFlag(ctx context.Context, flagID snowflake.ID) (*FraudFlag, error)
	ListOpenFlags(ctx context.Context, userID snowflake.ID) ([]*FraudFlag, error)
}
