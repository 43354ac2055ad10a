package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"stock_sim/internal/depth"

	"github.com/cockroachdb/pebble"
)

var depthPrefix = []byte("depth/")

// PebbleDepthStore keeps depth records in a Pebble key-value store, one JSON document
// per instrument under depth/<instrument>.
type PebbleDepthStore struct {
	db *pebble.DB
}

var _ depth.Repository = (*PebbleDepthStore)(nil)

// NewPebbleDepthStore opens a Pebble database at dir.
func NewPebbleDepthStore(dir string) (*PebbleDepthStore, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(16 << 20),
		MemTableSize: 8 << 20,
		MaxOpenFiles: 256,
		BytesPerSync: 512 << 10,
	}
	defer opts.Cache.Unref()

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dir, err)
	}
	return &PebbleDepthStore{db: db}, nil
}

// Close closes the database.
func (p *PebbleDepthStore) Close() error {
	return p.db.Close()
}

func depthKey(instrument string) []byte {
	return append(append([]byte{}, depthPrefix...), instrument...)
}

// keyUpperBound returns the smallest key greater than every key with prefix.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// LoadDepth returns nil, nil when no record exists.
func (p *PebbleDepthStore) LoadDepth(_ context.Context, instrument string) (*depth.Record, error) {
	data, closer, err := p.db.Get(depthKey(instrument))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get depth: %w", err)
	}
	defer closer.Close()

	var rec depth.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal depth: %w", err)
	}
	return &rec, nil
}

// SaveDepth persists r synchronously.
func (p *PebbleDepthStore) SaveDepth(_ context.Context, r *depth.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal depth: %w", err)
	}
	if err := p.db.Set(depthKey(r.Instrument), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save depth: %w", err)
	}
	return nil
}

// Instruments lists the codes that have a stored record.
func (p *PebbleDepthStore) Instruments() ([]string, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: depthPrefix,
		UpperBound: keyUpperBound(depthPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var codes []string
	for iter.First(); iter.Valid(); iter.Next() {
		codes = append(codes, string(iter.Key()[len(depthPrefix):]))
	}
	return codes, iter.Error()
}
