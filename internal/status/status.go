package status

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAlreadyQueued         Kind = "AlreadyQueued"
	KindNotFound              Kind = "NotFound"
	KindOfferExpiredOrInvalid Kind = "OfferExpiredOrInvalid"
	KindInsufficientInventory Kind = "InsufficientInventory"
	KindBelowSoldCount        Kind = "BelowSoldCount"
	KindEventCancelled        Kind = "EventCancelled"
	KindInvalidArgument       Kind = "InvalidArgument"
	KindEventExists           Kind = "EventExists"
	KindContention            Kind = "Contention"
	KindAlreadyCheckedIn      Kind = "AlreadyCheckedIn"
	KindInternal              Kind = "Internal"
)

var (
	ErrAlreadyQueued         = errors.New("waiting list: customer already has an active entry")
	ErrNotFound              = errors.New("inventory: not found")
	ErrOfferExpiredOrInvalid = errors.New("waiting list: offer expired or invalid")
	ErrInsufficientInventory = errors.New("inventory: insufficient inventory")
	ErrBelowSoldCount        = errors.New("inventory: quantity below sold count")
	ErrEventCancelled        = errors.New("event: event cancelled")
	ErrInvalidArgument       = errors.New("request: invalid argument")
	ErrEventExists           = errors.New("event: event already registered")
	ErrContention            = errors.New("store: too many concurrent writers")
	ErrAlreadyCheckedIn      = errors.New("ticket: already checked in")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrAlreadyQueued, KindAlreadyQueued},
	{ErrNotFound, KindNotFound},
	{ErrOfferExpiredOrInvalid, KindOfferExpiredOrInvalid},
	{ErrInsufficientInventory, KindInsufficientInventory},
	{ErrBelowSoldCount, KindBelowSoldCount},
	{ErrEventCancelled, KindEventCancelled},
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrEventExists, KindEventExists},
	{ErrContention, KindContention},
	{ErrAlreadyCheckedIn, KindAlreadyCheckedIn},
}

// KindOf classifies err. Unknown errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// InventoryError names the first pool that could not cover a reservation.
type InventoryError struct {
	Pool      string
	Requested int
	Available int
}

func (e *InventoryError) Error() string {
	return fmt.Sprintf("inventory: insufficient inventory in pool %s: requested %d, available %d", e.Pool, e.Requested, e.Available)
}

func (e *InventoryError) Unwrap() error {
	return ErrInsufficientInventory
}

// NotFound wraps ErrNotFound with the missing object.
func NotFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}

// Invalid wraps ErrInvalidArgument with a reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}
