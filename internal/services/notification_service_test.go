package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notifyd/internal/database/testutil"
	"github.com/charlesng35/notifyd/internal/dispatcher"
	"github.com/charlesng35/notifyd/internal/store"
	apperrors "github.com/charlesng35/notifyd/pkg/errors"
)

func newTestService(t *testing.T) (*NotificationService, *dispatcher.Dispatcher) {
	t.Helper()

	st, err := store.NewStore(testutil.MustOpenTestDB(t))
	require.NoError(t, err)

	d := dispatcher.New()
	svc, err := NewNotificationService(st, st, d)
	require.NoError(t, err)
	return svc, d
}

func TestCreateThenListAndMarkRead(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	dto, err := svc.Create(ctx, CreateNotificationInput{UserID: "1", Message: "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, dto.ID)
	require.Equal(t, "1", dto.UserID)
	require.Equal(t, "hi", dto.Message)
	require.False(t, dto.Read)

	count, err := svc.UnreadCount(ctx, "1")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	read, err := svc.MarkRead(ctx, dto.ID)
	require.NoError(t, err)
	require.True(t, read.Read)
	require.NotNil(t, read.ReadAt)

	count, err = svc.UnreadCount(ctx, "1")
	require.NoError(t, err)
	require.EqualValues(t, 0, count)

	items, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: "1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, dto.ID, items[0].ID)
	require.True(t, items[0].Read)
}

func TestCreateRejectsEmptyMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateNotificationInput{UserID: "1", Message: "   "})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	// Rejected before any write: no record, no counter movement.
	items, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: "1"})
	require.NoError(t, err)
	require.Empty(t, items)

	count, err := svc.UnreadCount(ctx, "1")
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}

func TestCreateRejectsUnknownSeverity(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:   "1",
		Message:  "hi",
		Severity: "catastrophic",
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	dto, err := svc.Create(ctx, CreateNotificationInput{UserID: "1", Message: "x"})
	require.NoError(t, err)

	_, err = svc.MarkRead(ctx, dto.ID)
	require.NoError(t, err)
	_, err = svc.MarkRead(ctx, dto.ID)
	require.NoError(t, err)

	count, err := svc.UnreadCount(ctx, "1")
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}

func TestMarkReadUnknownID(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.MarkRead(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUnreadCountMatchesListAcrossSequence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		dto, err := svc.Create(ctx, CreateNotificationInput{UserID: "1", Message: "m"})
		require.NoError(t, err)
		ids = append(ids, dto.ID)
	}
	_, err := svc.MarkRead(ctx, ids[0])
	require.NoError(t, err)
	_, err = svc.MarkRead(ctx, ids[2])
	require.NoError(t, err)

	items, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: "1", Limit: 100})
	require.NoError(t, err)

	var unread int64
	for _, item := range items {
		if !item.Read {
			unread++
		}
	}

	count, err := svc.UnreadCount(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, unread, count)
}

func TestSubscriberReceivesCreatedNotificationsInOrder(t *testing.T) {
	svc, d := newTestService(t)
	ctx := context.Background()

	sub := d.Subscribe("1")

	var want []string
	for i := 0; i < 5; i++ {
		dto, err := svc.Create(ctx, CreateNotificationInput{UserID: "1", Message: "m"})
		require.NoError(t, err)
		want = append(want, dto.ID)
	}

	for i := 0; i < 5; i++ {
		select {
		case got := <-sub.C():
			require.Equal(t, want[i], got.ID)
			require.False(t, got.Read)
		case <-time.After(time.Second):
			t.Fatalf("missing delivery %d", i)
		}
	}
}

func TestSubscriberIsolationAcrossUsers(t *testing.T) {
	svc, d := newTestService(t)
	ctx := context.Background()

	subA := d.Subscribe("user-a")

	_, err := svc.Create(ctx, CreateNotificationInput{UserID: "user-b", Message: "for b"})
	require.NoError(t, err)

	select {
	case got := <-subA.C():
		t.Fatalf("user-a received user-b's notification %q", got.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribedChannelReceivesNothingFurther(t *testing.T) {
	svc, d := newTestService(t)
	ctx := context.Background()

	sub := d.Subscribe("1")

	first, err := svc.Create(ctx, CreateNotificationInput{UserID: "1", Message: "x"})
	require.NoError(t, err)

	got := <-sub.C()
	require.Equal(t, first.ID, got.ID)

	d.Unsubscribe(sub)

	_, err = svc.Create(ctx, CreateNotificationInput{UserID: "1", Message: "y"})
	require.NoError(t, err)

	_, ok := <-sub.C()
	require.False(t, ok, "closed subscription must receive nothing further")
}

func TestCreateSucceedsWithBrokenSubscriber(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	st, err := store.NewStore(db)
	require.NoError(t, err)

	d := dispatcher.New(dispatcher.WithBufferSize(1))
	svc, err := NewNotificationService(st, st, d)
	require.NoError(t, err)

	ctx := context.Background()

	// A subscriber that never drains; its buffer fills after one create.
	d.Subscribe("1")

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, CreateNotificationInput{UserID: "1", Message: "m"})
		require.NoError(t, err, "create must not fail on delivery problems")
	}

	items, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: "1"})
	require.NoError(t, err)
	require.Len(t, items, 3, "records must be durable regardless of dispatch")
}

func TestCreateStorageFailureSkipsDispatch(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	st, err := store.NewStore(db)
	require.NoError(t, err)

	d := dispatcher.New()
	svc, err := NewNotificationService(st, st, d)
	require.NoError(t, err)

	sub := d.Subscribe("1")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = svc.Create(context.Background(), CreateNotificationInput{UserID: "1", Message: "hi"})
	require.ErrorIs(t, err, apperrors.ErrStorageUnavailable)

	// The write never became durable, so nothing may reach the subscriber.
	select {
	case got := <-sub.C():
		t.Fatalf("subscriber received %q despite failed persist", got.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCreateWithMetadataRoundTrips(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	dto, err := svc.Create(ctx, CreateNotificationInput{
		UserID:   "1",
		Message:  "deploy finished",
		Severity: "warning",
		Metadata: map[string]any{"job": "deploy-42"},
	})
	require.NoError(t, err)
	require.Equal(t, "warning", dto.Severity)
	require.Equal(t, "deploy-42", dto.Metadata["job"])

	items, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: "1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "deploy-42", items[0].Metadata["job"])
}
