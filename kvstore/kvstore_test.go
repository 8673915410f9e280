package kvstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/e-learning/database/dbtest"
	"github.com/irsalhamdi/e-learning/kvstore"
)

func TestStore(t *testing.T) {
	rdb := dbtest.NewRedis(t)
	s := kvstore.New(rdb, "test:")
	ctx := context.Background()

	t.Run("take consumes once", func(t *testing.T) {
		if err := s.Put(ctx, "token:1", []byte("user-1"), time.Minute); err != nil {
			t.Fatal(err)
		}

		got, err := s.Take(ctx, "token:1")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff("user-1", string(got)); diff != "" {
			t.Fatalf("wrong value (-want +got):\n%s", diff)
		}

		if _, err := s.Take(ctx, "token:1"); !errors.Is(err, kvstore.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second take, got %v", err)
		}
	})

	t.Run("claim has one winner", func(t *testing.T) {
		first, err := s.Claim(ctx, "claim:pay_1", time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		second, err := s.Claim(ctx, "claim:pay_1", time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if !first || second {
			t.Fatalf("expected (true, false), got (%v, %v)", first, second)
		}
	})

	t.Run("values expire", func(t *testing.T) {
		if err := s.Put(ctx, "short", []byte("x"), 50*time.Millisecond); err != nil {
			t.Fatal(err)
		}
		time.Sleep(200 * time.Millisecond)
		if _, err := s.Get(ctx, "short"); !errors.Is(err, kvstore.ErrNotFound) {
			t.Fatalf("expected expiry, got %v", err)
		}
	})

	t.Run("sessions", func(t *testing.T) {
		ss := s.Sessions()
		if err := ss.Commit("tok", []byte("data"), time.Now().Add(time.Minute)); err != nil {
			t.Fatal(err)
		}

		b, found, err := ss.Find("tok")
		if err != nil || !found || string(b) != "data" {
			t.Fatalf("find: %q %v %v", b, found, err)
		}

		if err := ss.Delete("tok"); err != nil {
			t.Fatal(err)
		}
		if _, found, _ := ss.Find("tok"); found {
			t.Fatal("session still present after delete")
		}
	})
}
