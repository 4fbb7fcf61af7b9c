package services

import (
	"fmt"
	"time"

	"ticket-engine/internal/status"
	"ticket-engine/models"

	"github.com/google/uuid"
)

var allowedTransitions = map[models.EntryStatus][]models.EntryStatus{
	models.EntryWaiting: {models.EntryOffered, models.EntryExpired},
	models.EntryOffered: {models.EntryPurchased, models.EntryExpired},
}

func canTransition(from, to models.EntryStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// appendEntry adds a WAITING entry with the next FIFO sequence number.
func appendEntry(state *models.EventState, customerID string, now time.Time) *models.WaitingListEntry {
	state.NextSeq++
	entry := &models.WaitingListEntry{
		ID:         uuid.NewString(),
		EventID:    state.Event.ID,
		CustomerID: customerID,
		Seq:        state.NextSeq,
		Status:     models.EntryWaiting,
		JoinedAt:   now,
		UpdatedAt:  now,
	}
	state.Entries[entry.ID] = entry
	return entry
}

func offerEntry(entry *models.WaitingListEntry, now time.Time, window time.Duration) {
	expires := now.Add(window)
	offered := now
	entry.Status = models.EntryOffered
	entry.OfferedAt = &offered
	entry.OfferExpiresAt = &expires
	entry.UpdatedAt = now
}

func expireEntry(entry *models.WaitingListEntry, now time.Time) {
	entry.Status = models.EntryExpired
	entry.UpdatedAt = now
}

func purchaseEntry(entry *models.WaitingListEntry, now time.Time) {
	entry.Status = models.EntryPurchased
	entry.UpdatedAt = now
}

// validateOffer checks that entry can be turned into a purchase by customerID at now.
func validateOffer(entry *models.WaitingListEntry, customerID string, now time.Time) error {
	if entry.CustomerID != customerID {
		return fmt.Errorf("entry %s belongs to another customer: %w", entry.ID, status.ErrOfferExpiredOrInvalid)
	}
	if !canTransition(entry.Status, models.EntryPurchased) {
		return fmt.Errorf("entry %s is %s: %w", entry.ID, entry.Status, status.ErrOfferExpiredOrInvalid)
	}
	if !entry.ActiveOffer(now) {
		return fmt.Errorf("offer for entry %s has lapsed: %w", entry.ID, status.ErrOfferExpiredOrInvalid)
	}
	return nil
}

// queuePosition is the 1-based FIFO position of a WAITING entry, or 0.
func queuePosition(state *models.EventState, entryID string) int {
	for i, e := range state.WaitingInOrder() {
		if e.ID == entryID {
			return i + 1
		}
	}
	return 0
}
