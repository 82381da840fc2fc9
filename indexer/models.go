package indexer

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// OfferState tracks an indexed offer through its lifecycle.
type OfferState string

const (
	StateOpen  OfferState = "OPEN"
	StateTaken OfferState = "TAKEN"
)

// Offer is one MakeOffer and, once fulfilled, its TakeOffer. An offer
// address can be reused after the offer is taken, so rows are keyed by the
// transaction that opened them.
type Offer struct {
	ID        uint       `gorm:"primaryKey"`
	MadeTx    string     `gorm:"size:66;uniqueIndex"`
	Address   string     `gorm:"size:64;index"`
	OfferID   Uint64     `gorm:"size:20;not null"`
	Maker     string     `gorm:"size:64;index"`
	AssetA    string     `gorm:"size:64;index"`
	AssetB    string     `gorm:"size:64;index"`
	AmountA   string     `gorm:"size:80"`
	WantedB   Uint64     `gorm:"size:20;not null"`
	OpenedAt  Uint64     `gorm:"size:20;index"`
	State     OfferState `gorm:"size:16;index"`
	Taker     string     `gorm:"size:64;index"`
	TakenAt   Uint64     `gorm:"size:20"`
	TakenTx   string `gorm:"size:66"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cursor records the last block folded into the index.
type Cursor struct {
	Name   string `gorm:"primaryKey;size:32"`
	Height Uint64 `gorm:"size:20"`
}

// Uint64 is an unsigned column stored as fixed-width decimal text.
// database/sql refuses uint64 arguments above math.MaxInt64, and offer ids
// and wanted amounts span the full range. Zero padding keeps text order
// equal to numeric order.
type Uint64 uint64

const uint64Width = 20

func (u Uint64) Value() (driver.Value, error) {
	return fmt.Sprintf("%0*d", uint64Width, uint64(u)), nil
}

func (u *Uint64) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*u = 0
		return nil
	case string:
		return u.parse(v)
	case []byte:
		return u.parse(string(v))
	case int64:
		if v < 0 {
			return fmt.Errorf("indexer: negative value %d", v)
		}
		*u = Uint64(v)
		return nil
	default:
		return fmt.Errorf("indexer: cannot scan %T into Uint64", src)
	}
}

func (u *Uint64) parse(raw string) error {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("indexer: %w", err)
	}
	*u = Uint64(v)
	return nil
}

// GormDataType maps the column to a text type on every dialect.
func (Uint64) GormDataType() string { return "string" }

const cursorName = "blocks"

// AutoMigrate creates or updates the indexer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Offer{}, &Cursor{})
}
