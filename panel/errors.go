package panel

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMissingAddress is returned by every operation of a panel whose contract address is
	// not configured.
	ErrMissingAddress = errors.New("contract address not configured")
	// ErrReadOnly is returned when submitting without a configured signer.
	ErrReadOnly = errors.New("no signer configured, the console is read-only")
	// ErrUnknownAction is returned when submitting an action the panel does not expose.
	ErrUnknownAction = errors.New("unknown action")
)

// ValidationError reports one rejected input.
type ValidationError struct {
	Input   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Input, e.Message)
}

// ValidationErrors collects every rejected input of a submission. Nothing is submitted when
// any input fails.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}

	return "invalid inputs: " + strings.Join(msgs, "; ")
}

// Map returns the messages keyed by input name.
func (v ValidationErrors) Map() map[string]string {
	out := make(map[string]string, len(v))
	for _, e := range v {
		out[e.Input] = e.Message
	}

	return out
}

func (v ValidationErrors) sorted() ValidationErrors {
	sort.SliceStable(v, func(i, j int) bool { return v[i].Input < v[j].Input })

	return v
}

// addressError carries the display message of a panel without a usable contract address.
type addressError struct {
	msg string
}

func (e *addressError) Error() string { return e.msg }

func (e *addressError) Unwrap() error { return ErrMissingAddress }
