// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("folio.cache")

// Metrics for store operations.
var (
	storeReads         metric.Int64Counter
	storeAborted       metric.Int64Counter
	storeStaleDiscards metric.Int64Counter
	storeNotifications metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		storeReads, err = meter.Int64Counter(
			"folio_store_reads_total",
			metric.WithDescription("Exact-key store reads, by hit"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		storeAborted, err = meter.Int64Counter(
			"folio_store_batches_aborted_total",
			metric.WithDescription("Batches whose writes were discarded"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		storeStaleDiscards, err = meter.Int64Counter(
			"folio_store_stale_discards_total",
			metric.WithDescription("Fetch results rejected by a token check"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		storeNotifications, err = meter.Int64Counter(
			"folio_store_notifications_total",
			metric.WithDescription("Subscriber callbacks delivered, by event type"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordStoreRead(ctx context.Context, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	storeReads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

func recordBatchAborted(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	storeAborted.Add(ctx, 1)
}

func recordStaleDiscard(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	storeStaleDiscards.Add(ctx, 1)
}

func recordNotification(ctx context.Context, t EventType) {
	if err := initMetrics(); err != nil {
		return
	}
	storeNotifications.Add(ctx, 1, metric.WithAttributes(attribute.String("event", t.String())))
}
