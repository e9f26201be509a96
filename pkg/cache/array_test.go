package cache

import "testing"

func fillLine(c *ArrayCache, handle, index uint32, vals [4]uint32) {
	idx := c.BeginFill(handle, index)
	for slot, v := range vals {
		c.StoreFillWord(idx, slot, v)
	}
	c.CommitFill(idx)
}

func TestArrayCacheFillAndLookup(t *testing.T) {
	var c ArrayCache
	fillLine(&c, 5, 2, [4]uint32{10, 20, 30, 40})
	v, hit := c.Lookup(5, 2)
	if !hit || v != 30 {
		t.Fatalf("Lookup(5,2) = (%d,%v), want (30,true)", v, hit)
	}
	// Same line, different slot, no extra fill needed.
	v, hit = c.Lookup(5, 0)
	if !hit || v != 10 {
		t.Fatalf("Lookup(5,0) = (%d,%v), want (10,true)", v, hit)
	}
}

func TestArrayCacheWriteThroughAndSnoop(t *testing.T) {
	var c ArrayCache
	fillLine(&c, 5, 0, [4]uint32{1, 2, 3, 4})
	if !c.WriteThrough(5, 1, 99) {
		t.Fatal("write-through on a resident line should hit")
	}
	v, _ := c.Lookup(5, 1)
	if v != 99 {
		t.Fatalf("write-through value not visible, got %d", v)
	}
	c.Snoop(5, 1) // invalidates the whole line
	if _, hit := c.Lookup(5, 0); hit {
		t.Fatal("snoop invalidates the entire line, including unrelated slots")
	}
}

func TestArrayCacheSnoopDuringFillStaysInvalid(t *testing.T) {
	var c ArrayCache
	idx := c.BeginFill(7, 0)
	c.StoreFillWord(idx, 0, 111)
	c.Snoop(7, 0) // arrives before the fill completes
	c.StoreFillWord(idx, 1, 222)
	c.CommitFill(idx)
	if _, hit := c.Lookup(7, 0); hit {
		t.Fatal("a line snooped mid-fill must not validate on commit")
	}
}

func TestArrayCacheFIFOAdvancesOncePerMiss(t *testing.T) {
	var c ArrayCache
	idx1 := c.BeginFill(1, 0)
	idx2 := c.BeginFill(2, 0)
	if idx2 != (idx1+1)%NumArrayEntries {
		t.Fatalf("FIFO should advance by exactly 1 per miss: idx1=%d idx2=%d", idx1, idx2)
	}
}
