package billing

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Domain error sentinels. Everything the engines raise wraps one of these, so
// callers match with errors.Is and never see a raw gateway or storage error.
var (
	// ErrGateway marks failures returned by the remote payment gateway.
	ErrGateway = errors.New("gateway error")

	// ErrSyncFailed marks a sync whose bounded retries are exhausted.
	ErrSyncFailed = errors.New("sync failed")

	// ErrInvalidTransition marks a lifecycle operation whose precondition
	// does not hold. No state is mutated when it is returned.
	ErrInvalidTransition = errors.New("invalid subscription transition")
)

// GatewayError wraps a transport/validation failure from a gateway client,
// preserving the original message for diagnostics.
type GatewayError struct {
	Processor string
	Status    int
	Message   string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway error (status=%d): %s", e.Processor, e.Status, e.Message)
}

func (e *GatewayError) Unwrap() error { return ErrGateway }

// IsTransientConflict reports whether err is the storage-layer race the sync
// retry loop is allowed to absorb: two concurrent creates for the same unique
// key, one of which the constraint rejected.
func IsTransientConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// MySQL 1062 in case the dialect did not translate the error.
	return strings.Contains(err.Error(), "Duplicate entry")
}
