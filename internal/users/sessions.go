package users

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/quillwiki/quill/internal/keyValStore"
	"github.com/quillwiki/quill/pkg/types"
)

const sessionIDLen = 16

// SessionID is an opaque random token. It carries no user information;
// the mapping to a user lives only in the store.
type SessionID [sessionIDLen]byte

func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID decodes the textual form handed out by String. Malformed
// input never matches a stored session, so it is reported like one.
func ParseSessionID(text string) (SessionID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(text)
	if err != nil || len(raw) != sessionIDLen {
		return SessionID{}, fmt.Errorf("malformed session id")
	}
	var id SessionID
	copy(id[:], raw)
	return id, nil
}

// Session pairs a session token with the user it authenticates.
type Session struct {
	ID   SessionID
	User types.UserID
}

func (s *Store) createSession(user types.UserID) (Session, error) {
	var id SessionID
	if _, err := rand.Read(id[:]); err != nil {
		return Session{}, fmt.Errorf("error generating session id: %w", err)
	}
	err := s.kv.Update(func(txn *keyValStore.Txn) error {
		return txn.Set(relSessionID, id[:], user.Bytes())
	})
	if err != nil {
		return Session{}, err
	}
	return Session{ID: id, User: user}, nil
}

// SessionUser resolves a session token to its user. Unknown or destroyed
// sessions report ok=false.
func (s *Store) SessionUser(_ context.Context, id SessionID) (types.UserID, bool, error) {
	var (
		user  types.UserID
		found bool
	)
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		value, err := txn.Get(relSessionID, id[:])
		if err == keyValStore.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		user, err = types.UserIDFromBytes(value)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return user, found, err
}

// DestroySession logs a session out. Destroying an unknown session is a
// no-op.
func (s *Store) DestroySession(_ context.Context, id SessionID) error {
	return s.kv.Update(func(txn *keyValStore.Txn) error {
		return txn.Delete(relSessionID, id[:])
	})
}
