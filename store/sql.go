// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/adxyz/adserve/core"
	"github.com/adxyz/adserve/pkg/money"
)

// Filter dimension tags in campaign_filter_values.
const (
	dimCountry       = "country"
	dimLanguage      = "language"
	dimDevice        = "device"
	dimPlatform      = "platform"
	dimAllowBrowser  = "allow_browser"
	dimAllowCategory = "allow_category"
	dimAllowIP       = "allow_ip"
	dimAllowDomain   = "allow_domain"
	dimBlockIP       = "block_ip"
	dimBlockDomain   = "block_domain"
)

// SQLStore implements Store on database/sql. Monetary columns are exact
// decimal strings; conversion to minor units happens here and nowhere else.
type SQLStore struct {
	db *sql.DB
}

// Open opens (or creates) the campaign database and ensures schema and
// indexes exist.
func Open(path string) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS campaign (
	campaign_id      INTEGER PRIMARY KEY,
	delivery_link    TEXT NOT NULL,
	total_budget     TEXT NOT NULL,
	remaining_budget TEXT NOT NULL,
	bidding_rate     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS campaign_filter_values (
	campaign_id INTEGER NOT NULL REFERENCES campaign(campaign_id) ON DELETE CASCADE,
	dim         TEXT NOT NULL,
	value       TEXT NOT NULL,
	PRIMARY KEY (campaign_id, dim, value)
);
CREATE INDEX IF NOT EXISTS ix_cfv_dim_value ON campaign_filter_values(dim, value, campaign_id);
CREATE INDEX IF NOT EXISTS ix_campaign_bid  ON campaign(bidding_rate DESC);
`)
	return err
}

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) CampaignIDs(ctx context.Context, offset, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id FROM campaign ORDER BY campaign_id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) Campaigns(ctx context.Context, ids []int64) ([]core.Campaign, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph, args := placeholders(ids)

	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id, delivery_link, total_budget, remaining_budget, bidding_rate
		 FROM campaign WHERE campaign_id IN (`+ph+`) ORDER BY campaign_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]*core.Campaign, len(ids))
	var order []int64
	for rows.Next() {
		var (
			c               core.Campaign
			total, rem, bid string
		)
		if err := rows.Scan(&c.ID, &c.DeliveryLink, &total, &rem, &bid); err != nil {
			return nil, err
		}
		if c.TotalMinor, err = money.ParseMinor(total); err != nil {
			return nil, fmt.Errorf("campaign %d total budget: %w", c.ID, err)
		}
		if c.RemainingMinor, err = money.ParseMinor(rem); err != nil {
			return nil, fmt.Errorf("campaign %d remaining budget: %w", c.ID, err)
		}
		if c.BidMinor, err = money.ParseMinor(bid); err != nil {
			return nil, fmt.Errorf("campaign %d bidding rate: %w", c.ID, err)
		}
		byID[c.ID] = &c
		order = append(order, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadFilters(ctx, ph, args, byID); err != nil {
		return nil, err
	}

	out := make([]core.Campaign, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (s *SQLStore) loadFilters(ctx context.Context, ph string, args []any, byID map[int64]*core.Campaign) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id, dim, value FROM campaign_filter_values WHERE campaign_id IN (`+ph+`)`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         int64
			dim, value string
		)
		if err := rows.Scan(&id, &dim, &value); err != nil {
			return err
		}
		c, ok := byID[id]
		if !ok {
			continue
		}
		set := filterSet(&c.Filters, dim)
		if set == nil {
			continue
		}
		if *set == nil {
			*set = make(core.StringSet)
		}
		if dim == dimAllowDomain || dim == dimBlockDomain {
			value = strings.ToLower(value)
		}
		(*set)[value] = struct{}{}
	}
	return rows.Err()
}

func filterSet(f *core.Filters, dim string) *core.StringSet {
	switch dim {
	case dimCountry:
		return &f.Countries
	case dimLanguage:
		return &f.Languages
	case dimDevice:
		return &f.Devices
	case dimPlatform:
		return &f.Platforms
	case dimAllowBrowser:
		return &f.AllowBrowsers
	case dimAllowCategory:
		return &f.AllowCategories
	case dimAllowIP:
		return &f.AllowIPs
	case dimAllowDomain:
		return &f.AllowDomains
	case dimBlockIP:
		return &f.BlockIPs
	case dimBlockDomain:
		return &f.BlockDomains
	}
	return nil
}

// TrySpend loops a compare-and-swap transaction: read the balance, then
// subtract guarded by the old value. A lost race retries with the fresh
// balance instead of surfacing an error.
func (s *SQLStore) TrySpend(ctx context.Context, id int64, amountMinor int64) (int64, bool, error) {
	for {
		newRem, ok, retry, err := s.trySpendOnce(ctx, id, amountMinor)
		if err != nil || !retry {
			return newRem, ok, err
		}
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
	}
}

func (s *SQLStore) trySpendOnce(ctx context.Context, id int64, amountMinor int64) (newRem int64, ok, retry bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, false, err
	}
	defer tx.Rollback()

	var remStr string
	err = tx.QueryRowContext(ctx,
		`SELECT remaining_budget FROM campaign WHERE campaign_id = ?`, id).Scan(&remStr)
	if err == sql.ErrNoRows {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, err
	}
	rem, err := money.ParseMinor(remStr)
	if err != nil {
		return 0, false, false, fmt.Errorf("campaign %d remaining budget: %w", id, err)
	}
	if rem < amountMinor {
		return rem, false, false, nil
	}

	newRem = rem - amountMinor
	res, err := tx.ExecContext(ctx,
		`UPDATE campaign SET remaining_budget = ? WHERE campaign_id = ? AND remaining_budget = ?`,
		money.FormatMinor(newRem), id, remStr)
	if err != nil {
		return 0, false, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, false, err
	}
	if n == 0 {
		return 0, false, true, nil
	}
	return newRem, true, false, tx.Commit()
}

func (s *SQLStore) TopCampaignIDs(ctx context.Context, key core.CoarseKey, limit int) ([]int64, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT c.campaign_id FROM campaign c WHERE CAST(c.remaining_budget AS REAL) > 0`)

	var args []any
	for _, slot := range []struct{ dim, val string }{
		{dimCountry, key.Country},
		{dimLanguage, key.Language},
		{dimDevice, key.Device},
		{dimPlatform, key.Platform},
	} {
		if slot.val == core.Wildcard {
			continue
		}
		sb.WriteString(` AND EXISTS (SELECT 1 FROM campaign_filter_values v
			WHERE v.campaign_id = c.campaign_id AND v.dim = ? AND v.value = ?)`)
		args = append(args, slot.dim, slot.val)
	}
	sb.WriteString(` ORDER BY CAST(c.bidding_rate AS REAL) DESC, c.campaign_id LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) SubtractDeltas(ctx context.Context, deltas []Delta) error {
	if len(deltas) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range deltas {
		var remStr string
		err := tx.QueryRowContext(ctx,
			`SELECT remaining_budget FROM campaign WHERE campaign_id = ?`, d.CampaignID).Scan(&remStr)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return err
		}
		rem, err := money.ParseMinor(remStr)
		if err != nil {
			return fmt.Errorf("campaign %d remaining budget: %w", d.CampaignID, err)
		}
		newRem := rem - d.Minor
		if newRem < 0 {
			newRem = 0
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE campaign SET remaining_budget = ? WHERE campaign_id = ?`,
			money.FormatMinor(newRem), d.CampaignID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Save(ctx context.Context, c core.Campaign) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO campaign (campaign_id, delivery_link, total_budget, remaining_budget, bidding_rate)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(campaign_id) DO UPDATE SET
			delivery_link = excluded.delivery_link,
			total_budget = excluded.total_budget,
			remaining_budget = excluded.remaining_budget,
			bidding_rate = excluded.bidding_rate`,
		c.ID, c.DeliveryLink,
		money.FormatMinor(c.TotalMinor),
		money.FormatMinor(c.RemainingMinor),
		money.FormatMinor(c.BidMinor)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM campaign_filter_values WHERE campaign_id = ?`, c.ID); err != nil {
		return err
	}

	ins, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO campaign_filter_values (campaign_id, dim, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer ins.Close()

	for dim, set := range map[string]core.StringSet{
		dimCountry:       c.Filters.Countries,
		dimLanguage:      c.Filters.Languages,
		dimDevice:        c.Filters.Devices,
		dimPlatform:      c.Filters.Platforms,
		dimAllowBrowser:  c.Filters.AllowBrowsers,
		dimAllowCategory: c.Filters.AllowCategories,
		dimAllowIP:       c.Filters.AllowIPs,
		dimAllowDomain:   c.Filters.AllowDomains,
		dimBlockIP:       c.Filters.BlockIPs,
		dimBlockDomain:   c.Filters.BlockDomains,
	} {
		for v := range set {
			if dim == dimAllowDomain || dim == dimBlockDomain {
				v = strings.ToLower(v)
			}
			if _, err := ins.ExecContext(ctx, c.ID, dim, v); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func placeholders(ids []int64) (string, []any) {
	ph := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return ph, args
}
