// Package devicestore is the client's local key-value storage: the PIN gate,
// a deep link waiting for sign-in and the session token.
package devicestore

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"golang.org/x/crypto/bcrypt"

	"realtime-chat/internal/deeplink"
)

var (
	keyPIN           = []byte("app_pin")
	keyPendingInvite = []byte("pending_invite")
	keyToken         = []byte("session_token")

	pinPattern = regexp.MustCompile(`^[0-9]{4}$`)
)

var (
	ErrInvalidPIN = errors.New("PIN must be exactly 4 digits")
	ErrNoPIN      = errors.New("no PIN set")
)

type Store struct {
	db *pebble.DB
}

// Open opens or creates the store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory returns a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) get(key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// SetPIN stores a bcrypt hash of pin. The PIN must be exactly four digits.
func (s *Store) SetPIN(pin string) error {
	if !pinPattern.MatchString(pin) {
		return ErrInvalidPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.db.Set(keyPIN, hash, pebble.Sync)
}

func (s *Store) HasPIN() (bool, error) {
	_, ok, err := s.get(keyPIN)
	return ok, err
}

// VerifyPIN compares pin against the stored hash. It returns ErrNoPIN when
// the gate is off.
func (s *Store) VerifyPIN(pin string) (bool, error) {
	hash, ok, err := s.get(keyPIN)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNoPIN
	}
	if !pinPattern.MatchString(pin) {
		return false, nil
	}
	err = bcrypt.CompareHashAndPassword(hash, []byte(pin))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return err == nil, err
}

// ClearPIN turns the gate off. Clearing an unset PIN is not an error.
func (s *Store) ClearPIN() error {
	return s.db.Delete(keyPIN, pebble.Sync)
}

// SetPendingInvite remembers a deep link opened before sign-in.
func (s *Store) SetPendingInvite(link deeplink.Link) error {
	if link.Kind == deeplink.KindNone {
		return deeplink.ErrInvalidLink
	}
	return s.db.Set(keyPendingInvite, []byte(link.String()), pebble.Sync)
}

// TakePendingInvite returns the remembered link and forgets it.
func (s *Store) TakePendingInvite() (deeplink.Link, bool, error) {
	v, ok, err := s.get(keyPendingInvite)
	if err != nil || !ok {
		return deeplink.Link{}, false, err
	}
	if err := s.db.Delete(keyPendingInvite, pebble.Sync); err != nil {
		return deeplink.Link{}, false, err
	}
	link, err := deeplink.Decode(string(v))
	if err != nil {
		return deeplink.Link{}, false, err
	}
	return link, true, nil
}

func (s *Store) SetToken(token string) error {
	return s.db.Set(keyToken, []byte(token), pebble.Sync)
}

// Token returns the saved session token, or "" when signed out.
func (s *Store) Token() (string, error) {
	v, _, err := s.get(keyToken)
	return string(v), err
}

func (s *Store) ClearToken() error {
	return s.db.Delete(keyToken, pebble.Sync)
}
