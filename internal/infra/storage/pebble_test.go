package storage

import (
	"context"
	"testing"
)

func TestPebbleDepthStore(t *testing.T) {
	p, err := NewPebbleDepthStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewPebbleDepthStore failed: %v", err)
	}
	defer p.Close()
	ctx := context.Background()

	missing, err := p.LoadDepth(ctx, "BHP")
	if err != nil || missing != nil {
		t.Fatalf("expected nil record, got %v, %v", missing, err)
	}

	rec := sampleRecord()
	if err := p.SaveDepth(ctx, rec); err != nil {
		t.Fatalf("SaveDepth failed: %v", err)
	}
	other := sampleRecord()
	other.Instrument = "CBA"
	if err := p.SaveDepth(ctx, other); err != nil {
		t.Fatalf("SaveDepth failed: %v", err)
	}

	loaded, err := p.LoadDepth(ctx, "BHP")
	if err != nil {
		t.Fatalf("LoadDepth failed: %v", err)
	}
	if loaded.Instrument != "BHP" || !loaded.Bids.Equal(rec.Bids) || !loaded.MinAsk.Equal(rec.MinAsk) {
		t.Errorf("loaded record differs from saved one")
	}

	codes, err := p.Instruments()
	if err != nil {
		t.Fatalf("Instruments failed: %v", err)
	}
	if len(codes) != 2 || codes[0] != "BHP" || codes[1] != "CBA" {
		t.Errorf("expected [BHP CBA], got %v", codes)
	}
}

func TestKeyUpperBound(t *testing.T) {
	if got := string(keyUpperBound([]byte("depth/"))); got != "depth0" {
		t.Errorf("expected depth0, got %q", got)
	}
	if got := keyUpperBound([]byte{0xff}); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
