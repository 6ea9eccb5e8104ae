package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/idsync/internal/identitytype"
	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) Store { return NewMemory() }},
		{"sqlite", func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "idsync.db"))
			require.NoError(t, err)
			return s
		}},
		{"redis", func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			return NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
		}},
		{"cached", func(t *testing.T) Store {
			c, err := NewCached(NewMemory(), 2)
			require.NoError(t, err)
			return c
		}},
	}
}

func sampleRecord(mpid models.MPID) *models.Record {
	return &models.Record{
		MPID: mpid,
		UserIdentities: models.UserIdentities{
			identitytype.CustomerID: "c-" + string(mpid),
			identitytype.Email:      string(mpid) + "@example.com",
		},
		UserAttributes: models.Attributes{
			"Gender": "f",
			"tier":   "gold",
		},
		CookieSyncDates: models.CookieSyncDates{"5": 1700000000000},
	}
}

func TestStore_Contract(t *testing.T) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := b.open(t)
			t.Cleanup(func() { _ = s.Close() })

			t.Run("missing values", func(t *testing.T) {
				rec, err := s.GetRecord(ctx, "nope")
				require.NoError(t, err)
				assert.Nil(t, rec)

				st, err := s.GetState(ctx)
				require.NoError(t, err)
				assert.Nil(t, st)

				p, err := s.GetProducts(ctx, "nope")
				require.NoError(t, err)
				assert.Empty(t, p)
			})

			t.Run("record round trip", func(t *testing.T) {
				want := sampleRecord("101")
				require.NoError(t, s.PutRecord(ctx, want))

				got, err := s.GetRecord(ctx, "101")
				require.NoError(t, err)
				if diff := cmp.Diff(want, got); diff != "" {
					t.Fatalf("record mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("put replaces", func(t *testing.T) {
				rec := sampleRecord("102")
				require.NoError(t, s.PutRecord(ctx, rec))
				rec.UserAttributes = models.Attributes{"only": "this"}
				delete(rec.UserIdentities, identitytype.Email)
				require.NoError(t, s.PutRecord(ctx, rec))

				got, err := s.GetRecord(ctx, "102")
				require.NoError(t, err)
				assert.Equal(t, models.Attributes{"only": "this"}, got.UserAttributes)
				assert.Equal(t, models.UserIdentities{identitytype.CustomerID: "c-102"}, got.UserIdentities)
			})

			t.Run("returned values are independent", func(t *testing.T) {
				require.NoError(t, s.PutRecord(ctx, sampleRecord("103")))
				got, err := s.GetRecord(ctx, "103")
				require.NoError(t, err)
				got.UserAttributes["tier"] = "changed"

				again, err := s.GetRecord(ctx, "103")
				require.NoError(t, err)
				assert.Equal(t, "gold", again.UserAttributes["tier"])
			})

			t.Run("list", func(t *testing.T) {
				recs, err := s.ListRecords(ctx)
				require.NoError(t, err)
				var ids []models.MPID
				for _, r := range recs {
					ids = append(ids, r.MPID)
				}
				assert.Equal(t, []models.MPID{"101", "102", "103"}, ids)
			})

			t.Run("products keep order", func(t *testing.T) {
				products := []models.Product{
					{Name: "a", Sku: "sku-a", Price: 1.5, Quantity: 1},
					{Name: "b", Sku: "sku-b", Price: 2, Quantity: 3, Attributes: map[string]string{"k": "v"}},
				}
				require.NoError(t, s.SetProducts(ctx, "101", products))
				got, err := s.GetProducts(ctx, "101")
				require.NoError(t, err)
				if diff := cmp.Diff(products, got); diff != "" {
					t.Fatalf("products mismatch (-want +got):\n%s", diff)
				}

				require.NoError(t, s.SetProducts(ctx, "101", products[1:]))
				got, err = s.GetProducts(ctx, "101")
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, "sku-b", got[0].Sku)

				other, err := s.GetProducts(ctx, "102")
				require.NoError(t, err)
				assert.Empty(t, other)
			})

			t.Run("state round trip", func(t *testing.T) {
				want := &models.GlobalState{
					CurrentMPID:         "101",
					SessionID:           "s-1",
					CurrentSessionMPIDs: []models.MPID{"100", "101"},
					Context:             "ctx-1",
					DeviceID:            "dev-1",
				}
				require.NoError(t, s.PutState(ctx, want))
				got, err := s.GetState(ctx)
				require.NoError(t, err)
				assert.Equal(t, want, got)

				want.CurrentMPID = "102"
				require.NoError(t, s.PutState(ctx, want))
				got, err = s.GetState(ctx)
				require.NoError(t, err)
				assert.Equal(t, models.MPID("102"), got.CurrentMPID)
			})
		})
	}
}

func TestCached_ServesFromCacheAndEvicts(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	c, err := NewCached(inner, 2)
	require.NoError(t, err)

	for _, id := range []models.MPID{"1", "2", "3"} {
		require.NoError(t, c.PutRecord(ctx, sampleRecord(id)))
	}
	assert.Equal(t, 2, c.Len())

	// write behind the cache's back: cached entries win until evicted
	changed := sampleRecord("3")
	changed.UserAttributes["tier"] = "silver"
	require.NoError(t, inner.PutRecord(ctx, changed))

	got, err := c.GetRecord(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, "gold", got.UserAttributes["tier"])

	// "1" was evicted and is read through
	got, err = c.GetRecord(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.MPID("1"), got.MPID)
}

func TestNewCached_RejectsBadSize(t *testing.T) {
	_, err := NewCached(NewMemory(), 0)
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, Options{Backend: BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "x.db"), CacheSize: 8})
	require.NoError(t, err)
	c, ok := s.(*Cached)
	require.True(t, ok)
	assert.IsType(t, &SQLite{}, c.Store)
	require.NoError(t, s.Close())

	mr := miniredis.RunT(t)
	s, err = Open(ctx, Options{Backend: BackendRedis, RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Backend: BackendSQLite})
	require.Error(t, err)
	_, err = Open(ctx, Options{Backend: BackendRedis})
	require.Error(t, err)
	_, err = Open(ctx, Options{Backend: "etcd"})
	require.ErrorContains(t, err, "unknown store backend")
	_, err = Open(ctx, Options{Backend: BackendRedis, RedisURL: "not a url"})
	require.Error(t, err)
}

func TestRedis_KeyLayout(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "app")

	require.NoError(t, s.PutRecord(ctx, sampleRecord("7")))
	require.NoError(t, s.SetProducts(ctx, "7", []models.Product{{Sku: "x"}}))
	require.NoError(t, s.PutState(ctx, &models.GlobalState{CurrentMPID: "7"}))

	assert.True(t, mr.Exists("app:record:7"))
	assert.True(t, mr.Exists("app:products:7"))
	assert.True(t, mr.Exists("app:state"))
	members, err := mr.Members("app:mpids")
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, members)
}

func TestRedis_DefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	require.NoError(t, s.PutState(context.Background(), &models.GlobalState{}))
	assert.True(t, mr.Exists("idsync:state"))
}

func TestRedis_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), "x")
	mr.Close()

	_, err := s.GetRecord(context.Background(), "1")
	require.Error(t, err)
	require.Error(t, s.PutRecord(context.Background(), sampleRecord("1")))
}
