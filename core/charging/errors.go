package charging

import "fmt"

// ValidationError reports a malformed request. It is returned before any
// state mutation takes place.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return "invalid request: " + e.Reason }

// ConflictError reports a request that the current state does not permit,
// such as a duplicate active ticket or a full staging area. The request has
// no partial effect.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string { return e.Reason }

// NotFoundError reports an unknown ticket or pile id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

// InvariantError reports ledger/ticket desynchronization, e.g. a billing
// record without its ticket. It indicates internal corruption and must be
// logged, never swallowed.
type InvariantError struct {
	Reason string
}

func (e InvariantError) Error() string { return "invariant violation: " + e.Reason }
