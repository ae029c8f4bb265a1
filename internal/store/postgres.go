package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sharescan/engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertTrades(ctx context.Context, trades []model.Trade) ([]model.Trade, error) {
	var inserted []model.Trade
	for i := range trades {
		t := &trades[i]
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO trades (trader, subject, is_buy, share_amount, eth_amount,
			                     protocol_eth_amount, subject_eth_amount, supply,
			                     transaction_hash, block_number, timestamp)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9, $10, $11)
			 ON CONFLICT (transaction_hash) DO NOTHING`,
			t.Trader, t.Subject, t.IsBuy, t.ShareAmount,
			t.EthAmount.String(), t.ProtocolEthAmount.String(), t.SubjectEthAmount.String(),
			t.Supply, t.TransactionHash, t.BlockNumber, t.Timestamp,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert trade %s: %w", t.TransactionHash, err)
		}
		if tag.RowsAffected() > 0 {
			inserted = append(inserted, *t)
		}
	}
	return inserted, nil
}

const tradeColumns = `trader, subject, is_buy, share_amount,
	eth_amount::TEXT, protocol_eth_amount::TEXT, subject_eth_amount::TEXT,
	supply, transaction_hash, block_number, timestamp`

func (s *PostgresStore) ListTrades(ctx context.Context) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades ORDER BY block_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) TradesAfterBlock(ctx context.Context, block int64) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE block_number > $1 ORDER BY block_number`,
		block)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) LastBlock(ctx context.Context) (int64, error) {
	var last *int64
	if err := s.pool.QueryRow(ctx, `SELECT MAX(block_number) FROM trades`).Scan(&last); err != nil {
		return 0, err
	}
	if last == nil {
		return 0, nil
	}
	return *last, nil
}

func (s *PostgresStore) UpsertShare(ctx context.Context, sh *model.Share) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO shares (address, registered, last_transaction, balance,
		                     buy_price, sell_price, supply)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7)
		 ON CONFLICT (address) DO UPDATE SET
		   last_transaction = EXCLUDED.last_transaction,
		   balance = EXCLUDED.balance,
		   buy_price = EXCLUDED.buy_price,
		   sell_price = EXCLUDED.sell_price,
		   supply = EXCLUDED.supply`,
		sh.Address, sh.Registered, sh.LastTransaction,
		sh.Balance.String(), sh.BuyPrice.String(), sh.SellPrice.String(),
		sh.Supply,
	)
	return err
}

const shareColumns = `address, twitter_username, twitter_name, twitter_score::TEXT,
	registered, last_transaction, balance::TEXT, buy_price::TEXT, sell_price::TEXT,
	supply, rank`

func (s *PostgresStore) GetShare(ctx context.Context, address string) (*model.Share, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE address = $1`, address)

	sh, err := scanShare(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: share %s", ErrNotFound, address)
		}
		return nil, fmt.Errorf("get share %s: %w", address, err)
	}
	return sh, nil
}

func (s *PostgresStore) ListShares(ctx context.Context) ([]model.Share, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+shareColumns+` FROM shares ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanShares(rows)
}

func (s *PostgresStore) ListSharesMissingSocial(ctx context.Context, limit int) ([]model.Share, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+shareColumns+` FROM shares
		 WHERE twitter_username IS NULL
		 ORDER BY balance DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanShares(rows)
}

func (s *PostgresStore) UpdateShareSocial(ctx context.Context, address string, info SocialInfo) error {
	var score *string
	if info.TwitterScore != nil {
		v := info.TwitterScore.String()
		score = &v
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE shares
		 SET twitter_username = $2, twitter_name = $3, twitter_score = $4::NUMERIC, rank = $5
		 WHERE address = $1`,
		address, info.TwitterUsername, info.TwitterName, score, info.Rank,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: share %s", ErrNotFound, address)
	}
	return nil
}

// --- row scanning ---

type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanShare(row pgxRow) (*model.Share, error) {
	var sh model.Share
	var scoreS, balanceS, buyS, sellS *string

	if err := row.Scan(&sh.Address, &sh.TwitterUsername, &sh.TwitterName, &scoreS,
		&sh.Registered, &sh.LastTransaction, &balanceS, &buyS, &sellS,
		&sh.Supply, &sh.Rank); err != nil {
		return nil, err
	}

	if scoreS != nil {
		score, _ := decimal.NewFromString(*scoreS)
		sh.TwitterScore = &score
	}
	if balanceS != nil {
		sh.Balance, _ = decimal.NewFromString(*balanceS)
	}
	if buyS != nil {
		sh.BuyPrice, _ = decimal.NewFromString(*buyS)
	}
	if sellS != nil {
		sh.SellPrice, _ = decimal.NewFromString(*sellS)
	}
	return &sh, nil
}

func scanShares(rows pgx.Rows) ([]model.Share, error) {
	var shares []model.Share
	for rows.Next() {
		sh, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, *sh)
	}
	return shares, rows.Err()
}

func scanTrades(rows pgx.Rows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var ethS, protocolS, subjectS string

		if err := rows.Scan(&t.Trader, &t.Subject, &t.IsBuy, &t.ShareAmount,
			&ethS, &protocolS, &subjectS,
			&t.Supply, &t.TransactionHash, &t.BlockNumber, &t.Timestamp); err != nil {
			return nil, err
		}

		t.EthAmount, _ = decimal.NewFromString(ethS)
		t.ProtocolEthAmount, _ = decimal.NewFromString(protocolS)
		t.SubjectEthAmount, _ = decimal.NewFromString(subjectS)

		trades = append(trades, t)
	}
	return trades, rows.Err()
}
