package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrPaymentNotFound = errors.New("payment_not_found")
	ErrGateway         = errors.New("gateway_error")
)

// Service sweeps matured streamer earnings into scheduled payments.
type Service interface {
	RunSweep(ctx context.Context) (*SweepResult, error)
	GetPayment(ctx context.Context, paymentID snowflake.ID) (*ScheduledPayment, error)
	ListPayments(ctx context.Context, streamerID snowflake.ID) ([]*ScheduledPayment, error)
}
