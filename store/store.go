// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store is the durable-store collaborator consumed by the engine,
// indexer, flusher and fallback matcher.
package store

import (
	"context"

	"github.com/adxyz/adserve/core"
)

// Delta is one campaign's accumulated spend awaiting reconciliation.
type Delta struct {
	CampaignID int64
	Minor      int64
}

// Store is the durable source of truth for campaigns and their budgets.
type Store interface {
	// CampaignIDs enumerates campaign ids in pages, ordered by id.
	CampaignIDs(ctx context.Context, offset, limit int) ([]int64, error)

	// Campaigns reads full campaign + filter records for the given ids.
	// Unknown ids are silently absent from the result.
	Campaigns(ctx context.Context, ids []int64) ([]core.Campaign, error)

	// TrySpend conditionally subtracts amount (minor units) from a
	// campaign's remaining budget. ok is false when the balance is
	// insufficient or the campaign does not exist.
	TrySpend(ctx context.Context, id int64, amountMinor int64) (newRemainingMinor int64, ok bool, err error)

	// TopCampaignIDs returns up to limit campaign ids with positive
	// remaining budget whose coarse filters match the key, ranked by bid
	// descending. Wildcard slots constrain nothing.
	TopCampaignIDs(ctx context.Context, key core.CoarseKey, limit int) ([]int64, error)

	// SubtractDeltas applies a batch of flush write-backs in one round trip.
	SubtractDeltas(ctx context.Context, deltas []Delta) error

	// Save creates or replaces a campaign and its filters.
	Save(ctx context.Context, c core.Campaign) error
}
