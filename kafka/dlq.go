package kafka

import "context"

// Dispatcher is the contract the core holds with the dead-letter-queue
// collaborator (spec: "the DLQ dispatcher beyond its contract with the
// coordinator" is out of core scope; this interface is the contract).
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message, cause error) error
}
