// Package users holds the user directory, credentials and sessions. Ids
// and the name bijection work exactly like the article directory; the
// credential is an argon2id hash stored next to the id, never the
// password itself.
package users

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/quillwiki/quill/internal/keyValStore"
	"github.com/quillwiki/quill/pkg/types"
	"github.com/quillwiki/quill/pkg/wikierror"
)

const (
	relNameID    keyValStore.Relation = "username_userid"
	relIDName    keyValStore.Relation = "userid_username"
	relIDHash    keyValStore.Relation = "userid_password"
	relSessionID keyValStore.Relation = "sessionid_userid"
	relFlags     keyValStore.Relation = "userid_flags"
)

// FlagAdmin marks a user as administrator. The first registered user gets
// it automatically.
const FlagAdmin = "admin"

type Store struct {
	kv  *keyValStore.KeyValStore
	log *logrus.Logger
}

func NewStore(kv *keyValStore.KeyValStore, log *logrus.Logger) *Store {
	return &Store{kv: kv, log: log}
}

func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	var exists bool
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		var err error
		exists, err = txn.Has(relNameID, []byte(name))
		return err
	})
	return exists, err
}

func (s *Store) IDByName(_ context.Context, name string) (types.UserID, bool, error) {
	var (
		id    types.UserID
		found bool
	)
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		value, err := txn.Get(relNameID, []byte(name))
		if err == keyValStore.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		id, err = types.UserIDFromBytes(value)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return id, found, err
}

// NameByID resolves an id obtained from the store itself, so absence is an
// inconsistency rather than a lookup miss.
func (s *Store) NameByID(_ context.Context, id types.UserID) (string, error) {
	var name string
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		value, err := txn.Get(relIDName, id.Bytes())
		if err == keyValStore.ErrKeyNotFound {
			return wikierror.UserDataInconsistent(uint32(id))
		}
		if err != nil {
			return err
		}
		name = string(value)
		return nil
	})
	return name, err
}

// Register creates a user with a fresh id and an argon2id credential. The
// very first user of the store becomes admin. Hashing happens before the
// transaction opens so the engine is never blocked on key stretching.
func (s *Store) Register(_ context.Context, name, password string) (types.UserID, error) {
	encoded, err := hashPassword(password)
	if err != nil {
		return 0, wikierror.Storage(err)
	}

	var id types.UserID
	err = s.kv.Update(func(txn *keyValStore.Txn) error {
		taken, err := txn.Has(relNameID, []byte(name))
		if err != nil {
			return err
		}
		if taken {
			return wikierror.UserAlreadyExists(name)
		}

		id = types.UserID(types.FirstID)
		lastKey, _, err := txn.LastInPrefix(relIDName, nil)
		if err == nil {
			curr, err := types.UserIDFromBytes(lastKey)
			if err != nil {
				return err
			}
			id = curr.Next()
		} else if err != keyValStore.ErrKeyNotFound {
			return err
		}

		// Reading the allocated slot puts it in this transaction's read
		// set, so two racing registrations cannot both commit the same id.
		occupied, err := txn.Has(relIDName, id.Bytes())
		if err != nil {
			return err
		}
		if occupied {
			return keyValStore.ErrConflict
		}

		if err := txn.Set(relNameID, []byte(name), id.Bytes()); err != nil {
			return err
		}
		if err := txn.Set(relIDName, id.Bytes(), []byte(name)); err != nil {
			return err
		}
		if err := txn.Set(relIDHash, id.Bytes(), []byte(encoded)); err != nil {
			return err
		}
		if id == types.UserID(types.FirstID) {
			return txn.Set(relFlags, flagKey(id, FlagAdmin), []byte{1})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{
		"user":  name,
		"id":    id,
		"admin": id == types.UserID(types.FirstID),
	}).Info("Registered user")
	return id, nil
}

// TryLogin verifies the credential of the named user and opens a session.
// A wrong password reports ok=false without an error; an unknown name is a
// lookup miss.
func (s *Store) TryLogin(ctx context.Context, name, password string) (Session, bool, error) {
	id, found, err := s.IDByName(ctx, name)
	if err != nil {
		return Session{}, false, err
	}
	if !found {
		return Session{}, false, wikierror.UserNotFound(name)
	}

	var encoded string
	err = s.kv.View(func(txn *keyValStore.Txn) error {
		value, err := txn.Get(relIDHash, id.Bytes())
		if err == keyValStore.ErrKeyNotFound {
			return wikierror.CredentialNotFound(uint32(id))
		}
		if err != nil {
			return err
		}
		encoded = string(value)
		return nil
	})
	if err != nil {
		return Session{}, false, err
	}

	ok, err := verifyPassword(encoded, password)
	if err != nil {
		return Session{}, false, wikierror.Storage(err)
	}
	if !ok {
		return Session{}, false, nil
	}

	session, err := s.createSession(id)
	if err != nil {
		return Session{}, false, err
	}
	return session, true, nil
}

// IsAdmin reports whether the user carries the admin flag. Unknown users
// are simply not admins.
func (s *Store) IsAdmin(ctx context.Context, id types.UserID) (bool, error) {
	return s.HasFlag(ctx, id, FlagAdmin)
}

func (s *Store) SetFlag(_ context.Context, id types.UserID, flag string, value bool) error {
	return s.kv.Update(func(txn *keyValStore.Txn) error {
		if value {
			return txn.Set(relFlags, flagKey(id, flag), []byte{1})
		}
		return txn.Delete(relFlags, flagKey(id, flag))
	})
}

func (s *Store) HasFlag(_ context.Context, id types.UserID, flag string) (bool, error) {
	var set bool
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		var err error
		set, err = txn.Has(relFlags, flagKey(id, flag))
		return err
	})
	return set, err
}

func flagKey(id types.UserID, flag string) []byte {
	return append(id.Bytes(), []byte(flag)...)
}
