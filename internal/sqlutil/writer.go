// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package sqlutil

import (
	"database/sql"
	"sync"
)

// The Writer interface serialises database writes. SQLite only supports one
// writer at a time, so performing writes through a Writer keeps "database is
// locked" errors at bay. The caller can supply an existing transaction, in
// which case the work runs inside it, otherwise a new transaction is created
// for the duration of the function.
type Writer interface {
	// Queue up one or more database write operations within the
	// provided function to be executed when it is safe to do so.
	Do(db *sql.DB, txn *sql.Tx, f func(txn *sql.Tx) error) error
}

// ExclusiveWriter implements Writer by holding a mutex for the duration of
// the write. All writes to a given database should go through the same
// ExclusiveWriter instance.
type ExclusiveWriter struct {
	mutex sync.Mutex
}

func NewExclusiveWriter() Writer {
	return &ExclusiveWriter{}
}

// Do runs the given function, either inside the supplied transaction or a
// new one if txn is nil, while holding the writer lock.
func (w *ExclusiveWriter) Do(db *sql.DB, txn *sql.Tx, f func(txn *sql.Tx) error) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if txn != nil || db == nil {
		return f(txn)
	}
	return WithTransaction(db, f)
}
