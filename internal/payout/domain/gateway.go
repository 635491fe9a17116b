package domain

import "context"

// Gateway moves money to the streamer's bank. The production adapter lives
// outside this repo; the engine only depends on this interface.
type Gateway interface {
	InitiateTransfer(ctx context.Context, destinationKey string, amount int64, memo string) (reference string, err error)
}
