// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package internal

import (
	"context"
	"io"

	"github.com/matrix-org/util"
)

// CloseAndLogIfError closes the given closer, logging any error through the
// logger attached to the context. Used for deferred row/statement cleanup
// where the error cannot usefully change control flow.
func CloseAndLogIfError(ctx context.Context, closer io.Closer, message string) {
	if closer == nil {
		return
	}
	err := closer.Close()
	if ctx == nil {
		ctx = context.TODO()
	}
	if err != nil {
		util.GetLogger(ctx).WithError(err).Error(message)
	}
}
