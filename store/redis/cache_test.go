//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	rmodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/xraph/rvoc/session"
	"github.com/xraph/rvoc/store/memory"
	redisstore "github.com/xraph/rvoc/store/redis"
)

func setupCache(t *testing.T) (*redisstore.SessionCache, *memory.Store) {
	t.Helper()

	ctx := context.Background()
	container, err := rmodule.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	opts, err := goredis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	inner := memory.New()
	c := redisstore.NewSessionCache(client, inner, redisstore.WithTTL(time.Minute))
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return c, inner
}

func TestSessionCache(t *testing.T) {
	c, inner := setupCache(t)
	ctx := context.Background()

	id := session.ID("0123456789abcdef0123456789abcdef")
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	t.Run("ReadThrough", func(t *testing.T) {
		if res, err := c.CreateSession(ctx, id, expiry, session.Data{}); err != nil || res != session.WriteOK {
			t.Fatalf("create: %v %v", res, err)
		}
		rec, err := c.ReadSession(ctx, id)
		if err != nil || rec == nil {
			t.Fatalf("read: %v %v", rec, err)
		}
		if !rec.Expiry.Equal(expiry) {
			t.Errorf("expiry = %v, want %v", rec.Expiry, expiry)
		}

		// Removing the row behind the cache's back leaves the cached copy.
		if err := inner.DeleteSession(ctx, id); err != nil {
			t.Fatalf("inner delete: %v", err)
		}
		if rec, _ := c.ReadSession(ctx, id); rec == nil {
			t.Fatal("expected cached session")
		}
	})

	t.Run("DeleteInvalidates", func(t *testing.T) {
		if err := c.DeleteSession(ctx, id); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if rec, _ := c.ReadSession(ctx, id); rec != nil {
			t.Fatalf("read after delete = %+v", rec)
		}
	})

	t.Run("UpdateInvalidatesBothIDs", func(t *testing.T) {
		next := session.ID("fedcba9876543210fedcba9876543210")
		if _, err := c.CreateSession(ctx, id, expiry, session.Data{}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := c.ReadSession(ctx, id); err != nil {
			t.Fatalf("read: %v", err)
		}
		res, err := c.UpdateSession(ctx, next, id, expiry, session.Data{})
		if err != nil || res != session.WriteOK {
			t.Fatalf("update: %v %v", res, err)
		}
		if rec, _ := c.ReadSession(ctx, id); rec != nil {
			t.Fatal("previous id still readable")
		}
		if rec, _ := c.ReadSession(ctx, next); rec == nil {
			t.Fatal("current id not readable")
		}
	})

	t.Run("ClearOrphansEntries", func(t *testing.T) {
		other := session.ID("00000000000000000000000000000000")
		if _, err := c.CreateSession(ctx, other, expiry, session.Data{}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := c.ReadSession(ctx, other); err != nil {
			t.Fatalf("read: %v", err)
		}
		if err := c.ClearSessions(ctx); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if rec, _ := c.ReadSession(ctx, other); rec != nil {
			t.Fatal("session readable after clear")
		}
	})

	t.Run("InvalidateOrphansEntries", func(t *testing.T) {
		if err := inner.CreateUser(ctx, "tim", "", time.Now()); err != nil {
			t.Fatalf("create user: %v", err)
		}
		owned := session.ID("22222222222222222222222222222222")
		if _, err := c.CreateSession(ctx, owned, expiry, session.Data{Username: "tim"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if rec, _ := c.ReadSession(ctx, owned); rec == nil {
			t.Fatal("session not readable")
		}

		// The user's sessions go with the user, behind the cache.
		if err := inner.DeleteUser(ctx, "tim"); err != nil {
			t.Fatalf("delete user: %v", err)
		}
		if err := c.Invalidate(ctx); err != nil {
			t.Fatalf("invalidate: %v", err)
		}
		if rec, _ := c.ReadSession(ctx, owned); rec != nil {
			t.Fatal("session of deleted user readable after invalidate")
		}
	})

	t.Run("ExpiredNotCached", func(t *testing.T) {
		short := session.ID("11111111111111111111111111111111")
		past := time.Now().Add(-time.Minute)
		if _, err := c.CreateSession(ctx, short, past, session.Data{}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := c.ReadSession(ctx, short); err != nil {
			t.Fatalf("read: %v", err)
		}
		if err := inner.DeleteSession(ctx, short); err != nil {
			t.Fatalf("inner delete: %v", err)
		}
		if rec, _ := c.ReadSession(ctx, short); rec != nil {
			t.Fatal("expired session was cached")
		}
	})
}
