package storage

import "context"

// Tx is the handle for one ambient transaction. Repositories and the event
// publication log enlist their writes in it so that business state and
// envelopes commit or roll back together.
type Tx interface {
	// AfterCommit registers fn to run once the transaction has committed.
	// Hooks run in registration order, outside the transaction. They never
	// run on rollback.
	AfterCommit(fn func(ctx context.Context))
}

// TxRunner executes fn inside a transaction. A nil error from fn commits;
// any error (or panic) rolls back and no after-commit hook fires.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
