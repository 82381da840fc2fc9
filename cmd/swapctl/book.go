package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketOffers = []byte("offers")

var errIDsExhausted = errors.New("offer ids exhausted for maker")

// bookEntry is an offer made from this machine.
type bookEntry struct {
	Maker    string    `json:"maker"`
	ID       uint64    `json:"id"`
	Offer    string    `json:"offer"`
	AssetA   string    `json:"assetA"`
	AssetB   string    `json:"assetB"`
	Amount   uint64    `json:"amount"`
	Wanted   uint64    `json:"wanted"`
	TxHash   string    `json:"txHash"`
	Pending  bool      `json:"pending,omitempty"`
	Recorded time.Time `json:"recorded"`
}

// offerBook remembers the offers a maker submitted and hands out unused ids.
// Entries are keyed by maker address followed by the big-endian id, so a
// cursor walks one maker's offers in id order.
type offerBook struct {
	db *bolt.DB
}

func openOfferBook(path string) (*offerBook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open offer book %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOffers)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &offerBook{db: db}, nil
}

func (b *offerBook) Close() error { return b.db.Close() }

func bookKey(maker [20]byte, id uint64) []byte {
	key := make([]byte, 28)
	copy(key, maker[:])
	binary.BigEndian.PutUint64(key[20:], id)
	return key
}

// NextID returns one past the highest id recorded for maker, or 1 when the
// maker has no offers yet.
func (b *offerBook) NextID(maker [20]byte) (uint64, error) {
	var (
		last  uint64
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOffers).Cursor()
		for k, _ := c.Seek(maker[:]); k != nil && bytes.HasPrefix(k, maker[:]); k, _ = c.Next() {
			last = binary.BigEndian.Uint64(k[20:])
			found = true
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 1, nil
	}
	if last == math.MaxUint64 {
		return 0, errIDsExhausted
	}
	return last + 1, nil
}

// Record stores entry, replacing an earlier entry with the same maker and id.
func (b *offerBook) Record(maker [20]byte, entry bookEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOffers).Put(bookKey(maker, entry.ID), raw)
	})
}

// Entries lists recorded offers in maker and id order. A nil maker lists
// every maker.
func (b *offerBook) Entries(maker *[20]byte) ([]bookEntry, error) {
	out := []bookEntry{}
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOffers).Cursor()
		var prefix []byte
		k, v := c.First()
		if maker != nil {
			prefix = maker[:]
			k, v = c.Seek(prefix)
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var entry bookEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("offer book entry %x: %w", k, err)
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}
