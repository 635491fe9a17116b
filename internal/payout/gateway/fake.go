// Package gateway carries the payout gateway adapters. Only the fake ships
// with the engine; production deployments provide their own implementation
// of the domain interface.
package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
	payoutdomain "github.com/minutepay/minutepay/internal/payout/domain"
)

// Fake acknowledges every transfer with a generated reference. FailNext
// makes the following calls fail, for exercising the failure path.
type Fake struct {
	mu       sync.Mutex
	failWith error
	calls    []FakeCall
}

type FakeCall struct {
	DestinationKey string
	Amount         int64
	Memo           string
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) InitiateTransfer(ctx context.Context, destinationKey string, amount int64, memo string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, FakeCall{DestinationKey: destinationKey, Amount: amount, Memo: memo})
	if f.failWith != nil {
		return "", f.failWith
	}
	return uuid.NewString(), nil
}

// FailNext makes subsequent transfers fail with err until reset with nil.
func (f *Fake) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

var _ payoutdomain.Gateway = (*Fake)(nil)
