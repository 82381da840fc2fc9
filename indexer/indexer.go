package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"offerswap/core/events"
	"offerswap/core/types"
	"offerswap/native/escrow"
)

var ErrOfferNotFound = errors.New("indexer: offer not found")

// ChainSource is the read side of the chain the indexer folds into SQL.
type ChainSource interface {
	GetHeight() uint64
	GetBlockByHeight(height uint64) (*types.Block, error)
	Receipt(hash common.Hash) (*types.Receipt, error)
}

// Indexer maintains an SQL view of every offer ever made, including those
// already taken, which the ledger itself forgets.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the configured database. driver is "sqlite" or
// "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return db, nil
}

// New migrates db and returns an indexer writing to it.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: logger.With(slog.String("component", "indexer"))}, nil
}

// Close releases the underlying connection pool.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Height returns the last block folded into the index.
func (ix *Indexer) Height(ctx context.Context) (uint64, error) {
	var cursor Cursor
	err := ix.db.WithContext(ctx).Where("name = ?", cursorName).Take(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return uint64(cursor.Height), err
}

// Run catches up with src and then re-syncs whenever the bus reports
// committed events. Events only serve as a wake-up signal; the chain is the
// source of truth, so events dropped by the bus are still indexed.
func (ix *Indexer) Run(ctx context.Context, bus *events.Bus, src ChainSource) error {
	id, updates := bus.Subscribe()
	defer bus.Unsubscribe(id)

	if err := ix.Sync(ctx, src); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-updates:
			if !ok {
				return nil
			}
			drain(updates)
			if err := ix.Sync(ctx, src); err != nil {
				ix.logger.Error("index sync failed", slog.Any("error", err))
			}
		}
	}
}

func drain(ch <-chan types.Event) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Sync folds every block above the cursor into the index. Each block is
// written in one database transaction together with the cursor.
func (ix *Indexer) Sync(ctx context.Context, src ChainSource) error {
	from, err := ix.Height(ctx)
	if err != nil {
		return err
	}
	tip := src.GetHeight()
	for height := from + 1; height <= tip; height++ {
		block, err := src.GetBlockByHeight(height)
		if err != nil {
			return fmt.Errorf("indexer: load block %d: %w", height, err)
		}
		var committed []types.Event
		for _, tx := range block.Transactions {
			hash, err := tx.TxHash()
			if err != nil {
				return err
			}
			receipt, err := src.Receipt(hash)
			if err != nil {
				return fmt.Errorf("indexer: receipt %s: %w", hash.Hex(), err)
			}
			for _, evt := range receipt.Events {
				committed = append(committed, evt.Committed(height, hash.Hex()))
			}
		}
		err = ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, evt := range committed {
				if err := apply(tx, evt); err != nil {
					return err
				}
			}
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"height"}),
			}).Create(&Cursor{Name: cursorName, Height: Uint64(height)}).Error
		})
		if err != nil {
			return fmt.Errorf("indexer: block %d: %w", height, err)
		}
		if len(committed) > 0 {
			ix.logger.Debug("indexed block", slog.Uint64("height", height), slog.Int("events", len(committed)))
		}
	}
	return nil
}

// Apply folds a single committed event into the index. Events other than
// offer lifecycle events are ignored. Applying an event twice has no effect.
func (ix *Indexer) Apply(ctx context.Context, evt types.Event) error {
	return apply(ix.db.WithContext(ctx), evt)
}

func apply(db *gorm.DB, evt types.Event) error {
	attrs := evt.Attributes
	switch evt.Type {
	case escrow.EventTypeOfferMade:
		id, err := uintAttr(attrs, "id")
		if err != nil {
			return err
		}
		wanted, err := uintAttr(attrs, "wantedB")
		if err != nil {
			return err
		}
		opened, err := uintAttr(attrs, "openedAt")
		if err != nil {
			return err
		}
		row := &Offer{
			MadeTx:   attrs[types.EventAttrTx],
			Address:  attrs["offer"],
			OfferID:  Uint64(id),
			Maker:    attrs["maker"],
			AssetA:   attrs["assetA"],
			AssetB:   attrs["assetB"],
			AmountA:  attrs["amountA"],
			WantedB:  Uint64(wanted),
			OpenedAt: Uint64(opened),
			State:    StateOpen,
		}
		if row.MadeTx == "" {
			return fmt.Errorf("indexer: %s event without transaction", evt.Type)
		}
		return db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
	case escrow.EventTypeOfferTaken:
		height, err := uintAttr(attrs, types.EventAttrHeight)
		if err != nil {
			return err
		}
		return db.Model(&Offer{}).
			Where("address = ? AND state = ? AND opened_at <= ?", attrs["offer"], StateOpen, Uint64(height)).
			Updates(map[string]interface{}{
				"state":    StateTaken,
				"taker":    attrs["taker"],
				"taken_at": Uint64(height),
				"taken_tx": attrs[types.EventAttrTx],
			}).Error
	default:
		return nil
	}
}

func uintAttr(attrs map[string]string, key string) (uint64, error) {
	raw, ok := attrs[key]
	if !ok {
		return 0, fmt.Errorf("indexer: missing attribute %q", key)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("indexer: attribute %q: %w", key, err)
	}
	return v, nil
}

// Offer returns the most recent offer recorded at address.
func (ix *Indexer) Offer(ctx context.Context, address string) (*Offer, error) {
	var row Offer
	err := ix.db.WithContext(ctx).Where("address = ?", address).Order("id DESC").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// OffersByMaker lists every offer made by maker, oldest first.
func (ix *Indexer) OffersByMaker(ctx context.Context, maker string) ([]Offer, error) {
	var rows []Offer
	err := ix.db.WithContext(ctx).Where("maker = ?", maker).Order("id ASC").Find(&rows).Error
	return rows, err
}

// OpenOffers lists offers not yet taken, oldest first.
func (ix *Indexer) OpenOffers(ctx context.Context) ([]Offer, error) {
	var rows []Offer
	err := ix.db.WithContext(ctx).Where("state = ?", StateOpen).Order("opened_at ASC, id ASC").Find(&rows).Error
	return rows, err
}

// StaleOffers lists open offers at least minAge blocks old at height.
func (ix *Indexer) StaleOffers(ctx context.Context, height, minAge uint64) ([]Offer, error) {
	if minAge > height {
		return []Offer{}, nil
	}
	var rows []Offer
	err := ix.db.WithContext(ctx).
		Where("state = ? AND opened_at <= ?", StateOpen, Uint64(height-minAge)).
		Order("opened_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
