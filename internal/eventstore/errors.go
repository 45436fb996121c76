package eventstore

import (
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Sentinel errors. Failures returned by the store wrap the underlying
// cause and compare equal to these with errors.Is.
var (
	ErrDatabaseOpenFailed     = ferrors.EventStoreError("could not open event store database").Build()
	ErrInitializeSchemaFailed = ferrors.EventStoreError("failed to initialize event store schema").Build()
	ErrEventAppendFailed      = ferrors.EventStoreError("failed to append event to store").Build()
	ErrEventQueryFailed       = ferrors.EventStoreError("failed to query events from store").Build()
)

func wrap(err error, sentinel *ferrors.ClassifiedError) error {
	return ferrors.WrapError(err, ferrors.CategoryEventStore, sentinel.Message()).Build()
}
