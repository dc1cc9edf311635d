// Package stm provides software transactional memory for Go.
//
// STM-ive Go coordinates reads and writes across shared mutable cells
// with atomicity, optimistic conflict detection, and transparent
// retry, without the caller holding a single lock during the body of
// a transaction.
//
// # What is a transactional cell?
//
// Two kinds of cells are provided:
//   - Ref: a versioned cell that participates in multi-cell atomic
//     transactions,
//   - Atom: a single, independent cell updated through a lock-free
//     compare-and-set loop, outside any transaction.
//
// Both carry an optional validator: a predicate every committed value
// must satisfy.
//
// # How does a transaction work?
//
// A transaction is a plain function run under Atomically. The active
// transaction travels in the context, so any code that receives the
// context can read, write, or commute refs inside the same atomic
// scope:
//
//	a := stm.NewRef(100)
//	b := stm.NewRef(0)
//
//	err := stm.Atomically(ctx, func(ctx context.Context) error {
//	    cur, _ := a.Read(ctx)
//	    if err := a.Write(ctx, cur-10); err != nil {
//	        return err
//	    }
//	    cur, _ = b.Read(ctx)
//	    return b.Write(ctx, cur+10)
//	})
//
// While the body runs, reads and writes are only recorded. At commit
// time the engine locks every written ref in a deterministic order,
// validates that nothing it depends on has changed since the
// transaction began, and either applies every staged update or none
// of them. A version conflict is never visible to the caller: the
// body is simply re-executed against a fresh snapshot.
//
// # Caller obligations
//
// The body may run more than once, so it must not perform
// irreversible external actions (I/O, non-idempotent calls). Values
// stored in cells should be immutable value types, or defensively
// copied: the engine hands committed values to concurrent readers
// without copying them.
//
// # Commute
//
// Commute stages an update function instead of a value. The function
// is applied to the value the ref holds at commit time, so two
// transactions that both commute the same ref never conflict with
// each other. The caller promises the staged functions commute in
// effect; the engine cannot check this.
//
// # Isolation
//
// Snapshot (the default) validates only the refs a transaction wrote.
// Serializable additionally requires every ref the transaction read
// to be unchanged at commit, which rules out read-skew.
package stm
