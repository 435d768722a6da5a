package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
)

func TestService_Defaults(t *testing.T) {
	svc := NewService(NewInMemStore(), Policy{MaxDevicesPerStudent: 1, EnforcementEnabled: true})
	ctx := context.Background()

	policy, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, Policy{MaxDevicesPerStudent: 1, EnforcementEnabled: true}, policy)
}

func TestService_InvalidDefaultFallsBack(t *testing.T) {
	svc := NewService(NewInMemStore(), Policy{MaxDevicesPerStudent: 7})
	n, err := svc.MaxDevicesPerStudent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestService_SetMaxDevicesPerStudent(t *testing.T) {
	store := NewInMemStore()
	svc := NewService(store, Policy{MaxDevicesPerStudent: 2, EnforcementEnabled: true})
	ctx := context.Background()

	require.NoError(t, svc.SetMaxDevicesPerStudent(ctx, 1))
	n, err := svc.MaxDevicesPerStudent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, bad := range []int{0, 3, -1} {
		err := svc.SetMaxDevicesPerStudent(ctx, bad)
		assert.True(t, lmserrors.IsCode(err, lmserrors.ErrCodeInvalidPolicyValue), bad)
	}

	// rejected values never reach the store
	raw, _, _ := store.Get(ctx, KeyMaxDevicesPerStudent)
	assert.Equal(t, "1", raw)
}

func TestService_EnforcementToggle(t *testing.T) {
	svc := NewService(NewInMemStore(), Policy{MaxDevicesPerStudent: 2, EnforcementEnabled: true})
	ctx := context.Background()

	require.NoError(t, svc.SetEnforcementEnabled(ctx, false))
	enabled, err := svc.EnforcementEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, svc.SetEnforcementEnabled(ctx, true))
	enabled, err = svc.EnforcementEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestService_GarbageStoredValues(t *testing.T) {
	store := NewInMemStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, KeyMaxDevicesPerStudent, "lots"))
	require.NoError(t, store.Set(ctx, KeyDeviceTrackingEnabled, "maybe"))

	svc := NewService(store, Policy{MaxDevicesPerStudent: 1, EnforcementEnabled: false})
	policy, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, policy.MaxDevicesPerStudent)
	assert.False(t, policy.EnforcementEnabled)
}

func TestService_SharedStoreSeenByAllInstances(t *testing.T) {
	store := NewInMemStore()
	ctx := context.Background()
	a := NewService(store, Policy{MaxDevicesPerStudent: 2, EnforcementEnabled: true})
	b := NewService(store, Policy{MaxDevicesPerStudent: 2, EnforcementEnabled: true})

	require.NoError(t, a.SetEnforcementEnabled(ctx, false))
	enabled, err := b.EnforcementEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)
}
