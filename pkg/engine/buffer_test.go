package engine

import "testing"

func TestBatchBufferDrain(t *testing.T) {
	b := NewBatchBuffer(3)
	b.Add("orders", map[string]any{"id": 1.0})
	b.Add("orders", map[string]any{"id": 2.0})
	b.Add("items", map[string]any{"id": 3.0})

	if b.ShouldFlush("orders") {
		t.Error("threshold not reached yet")
	}
	b.Add("orders", map[string]any{"id": 4.0})
	if !b.ShouldFlush("orders") {
		t.Error("threshold reached")
	}

	batch := b.Drain("orders")
	if batch == nil || len(batch.Records) != 3 {
		t.Fatalf("batch = %+v", batch)
	}
	if batch.Stream != "orders" || batch.DrainedAt.IsZero() {
		t.Errorf("batch metadata = %+v", batch)
	}

	// Drain leaves the stream empty, other streams untouched
	if b.Len("orders") != 0 {
		t.Errorf("orders len = %d after drain", b.Len("orders"))
	}
	if b.Drain("orders") != nil {
		t.Error("second drain must return nil")
	}
	if b.Len("items") != 1 {
		t.Errorf("items len = %d", b.Len("items"))
	}

	streams := b.Streams()
	if len(streams) != 1 || streams[0] != "items" {
		t.Errorf("streams = %v", streams)
	}
}
