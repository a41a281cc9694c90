package idem

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestAcquireDetectsDuplicate(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	g := NewGuard(redisSrv.Addr(), "", "test:idem", time.Minute)
	ctx := context.Background()

	release, acquired := g.Acquire(ctx, "promote:cand-1")
	if !acquired {
		t.Fatalf("first acquire should succeed")
	}
	if _, dup := g.Acquire(ctx, "promote:cand-1"); dup {
		t.Fatalf("second acquire should report duplicate")
	}
	if _, other := g.Acquire(ctx, "promote:cand-2"); !other {
		t.Fatalf("different key should not be blocked")
	}

	release(ctx)
	if _, again := g.Acquire(ctx, "promote:cand-1"); !again {
		t.Fatalf("acquire after release should succeed")
	}
}

func TestAcquireExpiresWithTTL(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	g := NewGuard(redisSrv.Addr(), "", "test:idem", time.Second)
	ctx := context.Background()

	if _, acquired := g.Acquire(ctx, "attach:deadbeef"); !acquired {
		t.Fatalf("first acquire should succeed")
	}
	redisSrv.FastForward(2 * time.Second)
	if _, acquired := g.Acquire(ctx, "attach:deadbeef"); !acquired {
		t.Fatalf("acquire after TTL expiry should succeed")
	}
}

func TestGuardDegradesOpenWhenRedisDown(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	g := NewGuard(redisSrv.Addr(), "", "test:idem", time.Minute)
	redisSrv.Close()

	if _, acquired := g.Acquire(context.Background(), "promote:cand-1"); !acquired {
		t.Fatalf("guard must admit operations when redis is unreachable")
	}
}

func TestNilGuardAdmitsEverything(t *testing.T) {
	var g *Guard
	release, acquired := g.Acquire(context.Background(), "promote:cand-1")
	if !acquired {
		t.Fatalf("nil guard must admit")
	}
	release(context.Background())

	if g := NewGuard("", "", "", 0); g != nil {
		t.Fatalf("empty addr should yield nil guard")
	}
}
