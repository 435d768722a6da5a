// Package settings stores the process-wide device policy values shared by every
// server instance: the per-student device cap and the enforcement toggle.
//
// Values are read from the backing Store on every call. There is no in-process
// cache, so an administrator's change is observed by all instances on their next
// policy decision.
//
//	store := settings.NewPostgresStore(pool)        // or NewRedisStore(client), NewInMemStore()
//	svc := settings.NewService(store, settings.Policy{MaxDevicesPerStudent: 2, EnforcementEnabled: true})
//
//	enabled, err := svc.EnforcementEnabled(ctx)
//	err = svc.SetMaxDevicesPerStudent(ctx, 1)
package settings
