package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service files and resolves disputes over ledger entries.
type Service interface {
	File(ctx context.Context, entryID snowflake.ID, reason string) (*Chargeback, error)
	Investigate(ctx context.Context, chargebackID, operatorID snowflake.ID) (*Chargeback, error)

	// Decide closes the dispute. refund reverses the disputed entry in
	// full, keep leaves the ledger untouched, partial refunds the
	// negotiated sub amount.
	Decide(ctx context.Context, chargebackID snowflake.ID, decision Decision, partialAmount int64, deciderID snowflake.ID, notes string) (*Chargeback, error)

	Get(ctx context.Context, chargebackID snowflake.ID) (*Chargeback, error)
}
