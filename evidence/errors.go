package evidence

import (
	"errors"
	"fmt"
)

// Kinded is implemented by every error in the pipeline taxonomy. Kind returns
// the taxonomy name that the CLI reports on the error stream.
type Kinded interface {
	ErrorKind() string
}

// Kind resolves the taxonomy name of err, walking wrapped errors. Errors
// outside the taxonomy report as InternalError.
func Kind(err error) string {
	var k Kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return "InternalError"
}

// IntegrityError reports a lineage or versioning violation: a missing parent,
// a version kind that does not strictly follow its parent's, or evidence
// whose id does not match its content. Always fatal, never retried.
type IntegrityError struct {
	Stage    string
	Evidence string
	Reason   string
}

func (e *IntegrityError) Error() string {
	msg := "integrity violation"
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	if e.Evidence != "" {
		msg = fmt.Sprintf("%s on evidence %s", msg, e.Evidence)
	}
	return fmt.Sprintf("%s: %s", msg, e.Reason)
}

func (e *IntegrityError) ErrorKind() string { return "IntegrityError" }

// NotFoundError reports a reference to an evidence id absent from the store.
type NotFoundError struct {
	Evidence string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("evidence %s not found", e.Evidence)
}

func (e *NotFoundError) ErrorKind() string { return "NotFoundError" }
