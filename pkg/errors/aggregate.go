// Package errors provides the tools for gathering errors for the processes in
// this program which keep working when there are errors.
package errors

import "strings"

// Aggregate groups a list of errors together.
type Aggregate struct {
	errlist []error
}

// NewAggregate returns an Aggregate containing the given list of errors.
func NewAggregate(errlist []error) *Aggregate {
	return &Aggregate{errlist}
}

// Add appends an error to the aggregate. Nil errors are ignored.
func (a *Aggregate) Add(err error) {
	if err != nil {
		a.errlist = append(a.errlist, err)
	}
}

// ErrorOrNil returns nil when nothing has been collected and the aggregate
// itself otherwise. This avoids the typed-nil trap when returning an
// *Aggregate as an error.
func (a *Aggregate) ErrorOrNil() error {
	if a == nil || len(a.errlist) == 0 {
		return nil
	}
	return a
}

// Error returns the combined error message for the Aggregate.
func (a *Aggregate) Error() string {
	msg := new(strings.Builder)
	first := true
	for _, err := range a.errlist {
		if !first {
			msg.WriteString("; ")
		}
		msg.WriteString(err.Error())
		first = false
	}
	return msg.String()
}

// Errors returns the individual errors which make up the aggregate.
func (a *Aggregate) Errors() []error {
	return a.errlist
}

// Unwrap lets errors.Is and errors.As see each contained error.
func (a *Aggregate) Unwrap() []error {
	return a.errlist
}
