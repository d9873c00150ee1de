// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package sendqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

var sendQueueDepthValue atomic.Int64

var sendQueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "nativechat",
		Subsystem: "sendqueue",
		Name:      "pending_events",
		Help:      "Number of outbound events queued and not yet resolved.",
	},
)

var sendAttempts = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "nativechat",
		Subsystem: "sendqueue",
		Name:      "send_attempts_total",
		Help:      "Total transmission attempts, including retries.",
	},
)

func observeSendQueueDepth(delta int64) {
	sendQueueDepth.Set(float64(sendQueueDepthValue.Add(delta)))
}
