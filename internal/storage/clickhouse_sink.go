package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amm-analytics/internal/models"
)

// Liquidity event kinds in the liquidity_events table
const (
	liquidityKindMint = "mint"
	liquidityKindBurn = "burn"
)

// ClickHouseRecordSink appends finalized swaps, mints and burns to ClickHouse.
// Both tables are ReplacingMergeTree on id, so a re-sent record collapses.
type ClickHouseRecordSink struct {
	db *ClickHouseDB
}

// NewClickHouseRecordSink creates a record sink
func NewClickHouseRecordSink(db *ClickHouseDB) *ClickHouseRecordSink {
	return &ClickHouseRecordSink{db: db}
}

// Record writes the records of one committed event
func (s *ClickHouseRecordSink) Record(ctx context.Context, records []models.Entity) error {
	swaps, liquidity := partitionRecords(records)

	if len(swaps) > 0 {
		if err := s.insert(ctx, `
			INSERT INTO swaps (
				id, transaction, pair, timestamp, sender, from, to,
				amount0_in, amount1_in, amount0_out, amount1_out,
				amount_usd, amount_secondary, log_index
			)
		`, swaps); err != nil {
			return fmt.Errorf("failed to record swaps: %w", err)
		}
	}
	if len(liquidity) > 0 {
		if err := s.insert(ctx, `
			INSERT INTO liquidity_events (
				id, kind, transaction, pair, timestamp, owner, liquidity,
				amount0, amount1, amount_usd, amount_secondary, fee_to, fee_liquidity
			)
		`, liquidity); err != nil {
			return fmt.Errorf("failed to record liquidity events: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseRecordSink) insert(ctx context.Context, query string, rows [][]interface{}) error {
	batch, err := s.db.Conn().PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}
	return batch.Send()
}

// partitionRecords converts records into swap rows and liquidity event rows.
// Other entity kinds are ignored.
func partitionRecords(records []models.Entity) (swaps, liquidity [][]interface{}) {
	for _, record := range records {
		switch r := record.(type) {
		case *models.Swap:
			swaps = append(swaps, swapRow(r))
		case *models.Mint:
			liquidity = append(liquidity, mintRow(r))
		case *models.Burn:
			liquidity = append(liquidity, burnRow(r))
		}
	}
	return swaps, liquidity
}

func swapRow(s *models.Swap) []interface{} {
	return []interface{}{
		s.ID,
		s.Transaction,
		s.Pair,
		time.Unix(s.Timestamp, 0).UTC(),
		s.Sender,
		s.From,
		s.To,
		s.Amount0In.String(),
		s.Amount1In.String(),
		s.Amount0Out.String(),
		s.Amount1Out.String(),
		s.AmountUSD.String(),
		s.AmountSecondary.String(),
		uint32(s.LogIndex), // #nosec G115 - log indexes fit in uint32
	}
}

func mintRow(m *models.Mint) []interface{} {
	return []interface{}{
		m.ID,
		liquidityKindMint,
		m.Transaction,
		m.Pair,
		time.Unix(m.Timestamp, 0).UTC(),
		m.To,
		m.Liquidity.String(),
		nullString(m.Amount0),
		nullString(m.Amount1),
		nullString(m.AmountUSD),
		nullString(m.AmountSecondary),
		"",
		"0",
	}
}

func burnRow(b *models.Burn) []interface{} {
	return []interface{}{
		b.ID,
		liquidityKindBurn,
		b.Transaction,
		b.Pair,
		time.Unix(b.Timestamp, 0).UTC(),
		derefString(b.Sender),
		b.Liquidity.String(),
		nullString(b.Amount0),
		nullString(b.Amount1),
		nullString(b.AmountUSD),
		nullString(b.AmountSecondary),
		derefString(b.FeeTo),
		nullString(b.FeeLiquidity),
	}
}

func nullString(v decimal.NullDecimal) string {
	return models.OrZero(v).String()
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
