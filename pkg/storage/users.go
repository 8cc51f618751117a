// Package storage persists enrolled users. One record per owner address,
// created on signup and read-only for the trading path.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/xtreamly/tradekeeper/pkg/custody"
)

var ErrUserNotFound = errors.New("user not found")

// User is one enrolled owner.
type User struct {
	Address            string                        `json:"address"`
	CustodyKeyRef      string                        `json:"custodyKeyRef"`
	SessionCredentials *custody.SessionCredentialSet `json:"sessionCredentials"`
	CreatedAt          time.Time                     `json:"createdAt"`
	UpdatedAt          time.Time                     `json:"updatedAt"`
}

// UserStore is a Pebble-backed user table keyed by lowercase address.
type UserStore struct {
	db *pebble.DB
}

func OpenUserStore(path string) (*UserStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open user store at %s: %w", path, err)
	}
	return &UserStore{db: db}, nil
}

func (s *UserStore) Close() error { return s.db.Close() }

var userPrefix = []byte("u:")

func userKey(address string) []byte {
	return append(append([]byte(nil), userPrefix...), strings.ToLower(address)...)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// Upsert inserts or updates a user. Credential set and key reference are
// replaced; CreatedAt is preserved for existing records, UpdatedAt bumped.
func (s *UserStore) Upsert(u *User) error {
	now := time.Now().UTC()

	existing, err := s.Get(u.Address)
	switch {
	case err == nil:
		u.CreatedAt = existing.CreatedAt
	case errors.Is(err, ErrUserNotFound):
		u.CreatedAt = now
	default:
		return err
	}
	u.UpdatedAt = now

	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.db.Set(userKey(u.Address), data, pebble.Sync); err != nil {
		return fmt.Errorf("save user %s: %w", u.Address, err)
	}
	return nil
}

func (s *UserStore) Get(address string) (*User, error) {
	val, closer, err := s.db.Get(userKey(address))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %s: %w", address, err)
	}
	defer closer.Close()

	var u User
	if err := json.Unmarshal(val, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", address, err)
	}
	return &u, nil
}

// List returns all users in key (address) order. The returned slice is a
// point-in-time snapshot; the trading path treats it as read-only.
func (s *UserStore) List() ([]User, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: userPrefix,
		UpperBound: keyUpperBound(userPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	defer iter.Close()

	var users []User
	for iter.First(); iter.Valid(); iter.Next() {
		var u User
		if err := json.Unmarshal(iter.Value(), &u); err != nil {
			continue // skip invalid entries
		}
		users = append(users, u)
	}
	return users, nil
}
