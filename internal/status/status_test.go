package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"nil", nil, ""},
		{"sentinel", ErrAlreadyQueued, KindAlreadyQueued},
		{"wrapped", fmt.Errorf("join: %w", ErrEventCancelled), KindEventCancelled},
		{"inventory error", &InventoryError{Pool: "type:ga", Requested: 3, Available: 2}, KindInsufficientInventory},
		{"not found helper", NotFound("event", "evt-1"), KindNotFound},
		{"invalid helper", Invalid("quantity must be positive"), KindInvalidArgument},
		{"unknown", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestInventoryError_NamesPool(t *testing.T) {
	err := fmt.Errorf("purchase: %w", &InventoryError{Pool: "table:vip", Requested: 1, Available: 0})

	var invErr *InventoryError
	assert.True(t, errors.As(err, &invErr))
	assert.Equal(t, "table:vip", invErr.Pool)
	assert.ErrorIs(t, err, ErrInsufficientInventory)
	assert.Contains(t, err.Error(), "table:vip")
}
