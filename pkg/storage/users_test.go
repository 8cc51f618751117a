package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtreamly/tradekeeper/pkg/custody"
)

func openTestStore(t *testing.T) *UserStore {
	t.Helper()
	store, err := OpenUserStore(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testUser(address string) *User {
	set := custody.NewSessionCredentialSet()
	set.Add("https://node1.example", custody.SignedCredential{
		Signature:     "0xsig",
		SignedMessage: `{"capabilities":[]}`,
		Address:       address,
	})
	return &User{Address: address, CustodyKeyRef: "key-" + address, SessionCredentials: set}
}

func TestUserStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	u := testUser("0xAbCdEf0123456789aBcDeF0123456789AbCdEf01")
	if err := store.Upsert(u); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.Get(u.Address)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Address != u.Address || got.CustodyKeyRef != u.CustodyKeyRef {
		t.Fatalf("got %+v", got)
	}
	if got.SessionCredentials.Len() != 1 {
		t.Fatalf("credential set len = %d", got.SessionCredentials.Len())
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set on insert")
	}
}

func TestUserStoreGetCaseInsensitive(t *testing.T) {
	store := openTestStore(t)

	u := testUser("0xAbCdEf0123456789aBcDeF0123456789AbCdEf01")
	if err := store.Upsert(u); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.Get("0xabcdef0123456789abcdef0123456789abcdef01"); err != nil {
		t.Fatalf("get by lowercased address: %v", err)
	}
}

func TestUserStoreNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get("0x0000000000000000000000000000000000000000"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("got %v, want ErrUserNotFound", err)
	}
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	store := openTestStore(t)

	u := testUser("0x1111111111111111111111111111111111111111")
	if err := store.Upsert(u); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	first, err := store.Get(u.Address)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	again := testUser(u.Address)
	again.CustodyKeyRef = "rotated-ref"
	if err := store.Upsert(again); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	second, err := store.Get(u.Address)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("CreatedAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("UpdatedAt not bumped: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
	if second.CustodyKeyRef != "rotated-ref" {
		t.Fatalf("key ref = %q", second.CustodyKeyRef)
	}
}

func TestListAddressOrder(t *testing.T) {
	store := openTestStore(t)

	addrs := []string{
		"0xcccccccccccccccccccccccccccccccccccccccc",
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}
	for _, a := range addrs {
		if err := store.Upsert(testUser(a)); err != nil {
			t.Fatalf("upsert %s: %v", a, err)
		}
	}

	users, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("len = %d", len(users))
	}
	want := []string{addrs[1], addrs[2], addrs[0]}
	for i, u := range users {
		if u.Address != want[i] {
			t.Fatalf("order = %v", users)
		}
	}
}

func TestListEmpty(t *testing.T) {
	store := openTestStore(t)
	users, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected empty store, got %d users", len(users))
	}
}
