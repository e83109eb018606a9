package pool_test

import (
	"testing"

	"github.com/momentics/chatwire/pool"
)

func TestBytePoolReuse(t *testing.T) {
	bp := pool.NewBytePool(4096)
	buf := bp.Get()
	if len(buf) != 4096 {
		t.Fatalf("len = %d, want 4096", len(buf))
	}
	bp.Put(buf)
	again := bp.Get()
	if len(again) != 4096 {
		t.Fatalf("len after reuse = %d, want 4096", len(again))
	}
}

func TestBytePoolDropsForeignSizes(t *testing.T) {
	bp := pool.NewBytePool(64)
	bp.Put(make([]byte, 16))
	if got := bp.Get(); len(got) != 64 {
		t.Fatalf("len = %d, want 64", len(got))
	}
}
