package checkout

import (
	"context"
	"errors"
	"testing"

	"pickandplay/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizer_NotifyOnce(t *testing.T) {
	notifier := &countingNotifier{}
	f := NewFinalizer(newCountingStore(), notifier, nil, 0, discardLogger())

	assert.True(t, f.NotifyOnce(context.Background(), "7"))
	assert.False(t, f.NotifyOnce(context.Background(), "7"))
	assert.True(t, f.NotifyOnce(context.Background(), "8"))
	f.Wait()

	assert.ElementsMatch(t, []string{"7", "8"}, notifier.notified())
	assert.True(t, f.Notified("7"))
	assert.False(t, f.Notified("9"))
}

func TestFinalizer_RunsAllSteps(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	require.NoError(t, store.SaveCart(ctx, sampleCart(t)))
	notifier := &countingNotifier{}
	nav := &recordingNavigator{}
	f := NewFinalizer(store, notifier, nav, 0, discardLogger())

	f.Finalize(ctx, "7")
	f.Wait()

	c, err := store.LoadCart(ctx)
	require.NoError(t, err)
	assert.True(t, c.Empty())
	assert.Equal(t, []string{"7"}, notifier.notified())
	assert.Equal(t, []string{"7"}, nav.visited())
}

func TestFinalizer_FallsBackToRawKeyDelete(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	require.NoError(t, store.SaveCart(ctx, sampleCart(t)))
	store.clearErr = errors.New("encode cart")
	nav := &recordingNavigator{}
	f := NewFinalizer(store, nil, nav, 0, discardLogger())

	f.Finalize(ctx, "7")

	assert.Equal(t, []string{storage.KeyCart}, store.deletes)
	c, err := store.LoadCart(ctx)
	require.NoError(t, err)
	assert.True(t, c.Empty())
	assert.Equal(t, []string{"7"}, nav.visited())
}

func TestFinalizer_FailuresDoNotBlockLaterSteps(t *testing.T) {
	store := newCountingStore()
	store.clearErr = errors.New("redis down")
	store.deleteErr = errors.New("redis down")
	notifier := &countingNotifier{err: errors.New("broker unreachable")}
	nav := &recordingNavigator{}
	f := NewFinalizer(store, notifier, nav, 0, discardLogger())

	f.Finalize(context.Background(), "7")
	f.Wait()

	assert.Equal(t, []string{"7"}, notifier.notified())
	assert.Equal(t, []string{"7"}, nav.visited())
}

type panickingCarts struct{}

func (panickingCarts) ClearCart(context.Context) error { panic("corrupt cart") }
func (panickingCarts) DeleteKey(context.Context, string) error { return nil }

func TestFinalizer_RecoversFromPanickingStep(t *testing.T) {
	notifier := &countingNotifier{}
	nav := &recordingNavigator{}
	f := NewFinalizer(panickingCarts{}, notifier, nav, 0, discardLogger())

	require.NotPanics(t, func() { f.Finalize(context.Background(), "7") })
	f.Wait()

	assert.Equal(t, []string{"7"}, notifier.notified())
	assert.Equal(t, []string{"7"}, nav.visited())
}
