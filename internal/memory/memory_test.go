package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gather-events/gather/internal/ledger"
	"github.com/gather-events/gather/internal/model"
)

func newStoreWithEvent(t *testing.T, capacity int) (*Store, *model.Event) {
	t.Helper()
	store := NewStore()
	event, err := store.Create(context.Background(), model.CreateEventRequest{
		Title:       "Go Meetup",
		Date:        "2030-06-01",
		Capacity:    capacity,
		OrganizerID: "org-1",
	})
	require.NoError(t, err)
	return store, event
}

func insert(t *testing.T, store *Store, eventID, userID string, status model.Status) *model.Registration {
	t.Helper()
	var reg *model.Registration
	err := store.WithEventLock(context.Background(), eventID, func(tx ledger.Txn) error {
		var err error
		reg, err = tx.Insert(&model.Registration{
			UserID:    userID,
			UserEmail: userID + "@example.com",
			UserName:  userID,
			Status:    status,
		})
		return err
	})
	require.NoError(t, err)
	return reg
}

func TestWithEventLock_UnknownEvent(t *testing.T) {
	store := NewStore()
	err := store.WithEventLock(context.Background(), "missing", func(tx ledger.Txn) error {
		t.Fatal("callback must not run for an unknown event")
		return nil
	})
	require.ErrorIs(t, err, ledger.ErrEventNotFound)
}

func TestWithEventLock_RollsBackOnError(t *testing.T) {
	store, event := newStoreWithEvent(t, 5)
	ctx := context.Background()

	existing := insert(t, store, event.ID, "alice", model.StatusConfirmed)

	boom := errors.New("boom")
	err := store.WithEventLock(ctx, event.ID, func(tx ledger.Txn) error {
		if _, err := tx.Insert(&model.Registration{UserID: "bob", Status: model.StatusConfirmed}); err != nil {
			return err
		}
		if _, err := tx.UpdateStatus(existing.ID, model.StatusCancelled); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Neither the insert nor the status change survives.
	count, err := store.CountByStatus(ctx, event.ID, model.StatusConfirmed)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	reg, err := store.FindByID(ctx, existing.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, reg.Status)

	bob, err := store.FindByEventAndUser(ctx, event.ID, "bob")
	require.NoError(t, err)
	require.Nil(t, bob)
}

func TestInsert_AssignsMonotonicIDs(t *testing.T) {
	store, event := newStoreWithEvent(t, 5)

	r1 := insert(t, store, event.ID, "alice", model.StatusConfirmed)
	r2 := insert(t, store, event.ID, "bob", model.StatusConfirmed)
	r3 := insert(t, store, event.ID, "carol", model.StatusWaitlist)

	require.Less(t, r1.ID, r2.ID)
	require.Less(t, r2.ID, r3.ID)
	require.False(t, r1.RegisteredAt.After(r2.RegisteredAt))
}

func TestListWaitlistOrdered_TieBrokenByID(t *testing.T) {
	store, event := newStoreWithEvent(t, 1)
	ctx := context.Background()

	// Inserted back to back; equal timestamps must fall back to id order.
	insert(t, store, event.ID, "w1", model.StatusWaitlist)
	insert(t, store, event.ID, "w2", model.StatusWaitlist)
	insert(t, store, event.ID, "w3", model.StatusWaitlist)

	waitlist, err := store.ListWaitlistOrdered(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, waitlist, 3)
	require.Equal(t, []string{"w1", "w2", "w3"}, []string{
		waitlist[0].UserID, waitlist[1].UserID, waitlist[2].UserID,
	})
}

func TestCountByStatus_ExcludesCancelled(t *testing.T) {
	store, event := newStoreWithEvent(t, 5)
	ctx := context.Background()

	insert(t, store, event.ID, "alice", model.StatusConfirmed)
	victim := insert(t, store, event.ID, "bob", model.StatusConfirmed)

	err := store.WithEventLock(ctx, event.ID, func(tx ledger.Txn) error {
		_, err := tx.UpdateStatus(victim.ID, model.StatusCancelled)
		return err
	})
	require.NoError(t, err)

	confirmed, err := store.CountByStatus(ctx, event.ID, model.StatusConfirmed)
	require.NoError(t, err)
	require.Equal(t, 1, confirmed)

	waitlist, err := store.CountByStatus(ctx, event.ID, model.StatusWaitlist)
	require.NoError(t, err)
	require.Zero(t, waitlist)
}

func TestFindByEventAndUser_IgnoresCancelled(t *testing.T) {
	store, event := newStoreWithEvent(t, 5)
	ctx := context.Background()

	reg := insert(t, store, event.ID, "alice", model.StatusConfirmed)
	err := store.WithEventLock(ctx, event.ID, func(tx ledger.Txn) error {
		_, err := tx.UpdateStatus(reg.ID, model.StatusCancelled)
		return err
	})
	require.NoError(t, err)

	found, err := store.FindByEventAndUser(ctx, event.ID, "alice")
	require.NoError(t, err)
	require.Nil(t, found, "cancelled registrations do not count as active")
}

func TestUpdateStatus_UnknownID(t *testing.T) {
	store, event := newStoreWithEvent(t, 5)

	err := store.WithEventLock(context.Background(), event.ID, func(tx ledger.Txn) error {
		_, err := tx.UpdateStatus(42, model.StatusCancelled)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrRegistrationNotFound)
}

func TestDelete_RemovesEventRegistrations(t *testing.T) {
	store, event := newStoreWithEvent(t, 5)
	ctx := context.Background()

	reg := insert(t, store, event.ID, "alice", model.StatusConfirmed)
	require.NoError(t, store.Delete(ctx, event.ID))

	_, err := store.FindByID(ctx, reg.ID)
	require.ErrorIs(t, err, ledger.ErrRegistrationNotFound)
}
