package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/repository"
)

// Bounds on rejection and revoke reasons, counted in runes.
const (
	MinReasonLength = 10
	MaxReasonLength = 500
)

// ValidationError reports a request that can never succeed as sent:
// missing fields, bad quantities, a short reason or an action that is not
// legal from the event's current state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ConflictError carries the bookings that collide with a requested slot.
type ConflictError struct {
	Venue     string
	Conflicts []model.VenueBooking
}

func (e *ConflictError) Error() string {
	names := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		names = append(names, fmt.Sprintf("#%d %s (%s)", c.EventID, c.EventName, c.Status))
	}
	return fmt.Sprintf("venue %q is already booked by %s", e.Venue, strings.Join(names, ", "))
}

// InsufficientInventoryError is returned when a decision or a ledger
// reduction would drive available below zero.
type InsufficientInventoryError struct {
	ItemName  string
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for %q: requested %d, available %d", e.ItemName, e.Requested, e.Available)
}

// AuthorizationError means the actor may not perform the action.
type AuthorizationError struct {
	Role    model.Role
	Action  string
	Message string
}

func (e *AuthorizationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("role %s may not %s", e.Role, e.Action)
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// ErrPredictorUnavailable is returned by Suggest when no predictor is
// configured.
var ErrPredictorUnavailable = errors.New("predictor unavailable")

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// notFound maps the storage sentinel onto a typed error, leaving any
// other error untouched.
func notFound(err error, resource string, key any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Resource: resource, Key: fmt.Sprint(key)}
	}
	return err
}

func checkReason(field, reason string) error {
	n := len([]rune(strings.TrimSpace(reason)))
	if n < MinReasonLength {
		return invalid(field, "must be at least %d characters", MinReasonLength)
	}
	if n > MaxReasonLength {
		return invalid(field, "must be at most %d characters", MaxReasonLength)
	}
	return nil
}
