package ledger

import (
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = ferrors.LedgerError("could not open publication ledger").Build()

	// ErrInitializeSchemaFailed indicates the ledger schema could not be created.
	ErrInitializeSchemaFailed = ferrors.LedgerError("failed to initialize ledger schema").Build()

	// ErrRecordFailed indicates inserting a ledger entry failed.
	ErrRecordFailed = ferrors.LedgerError("failed to record publication outcome").Build()

	// ErrQueryFailed indicates querying the ledger failed.
	ErrQueryFailed = ferrors.LedgerError("failed to query publication ledger").Build()
)

func wrap(sentinel *ferrors.ClassifiedError, err error) error {
	return ferrors.WrapError(err, ferrors.CategoryLedger, sentinel.Message()).Build()
}
