package quill

import (
	"context"

	"github.com/quillwiki/quill/internal/keyValStore"
	"github.com/quillwiki/quill/pkg/types"
	"github.com/quillwiki/quill/pkg/wikierror"
)

const relSettings keyValStore.Relation = "settings"

var keyRegistrationEnabled = []byte("global:registration_enabled")

// RegistrationEnabled reports whether new users may register. Defaults to
// enabled until an admin turns it off.
func (w *Wiki) RegistrationEnabled(_ context.Context) (bool, error) {
	enabled := true
	err := w.kv.View(func(txn *keyValStore.Txn) error {
		value, err := txn.Get(relSettings, keyRegistrationEnabled)
		if err == keyValStore.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		enabled = len(value) > 0 && value[0] != 0
		return nil
	})
	return enabled, err
}

func (w *Wiki) SetRegistrationEnabled(_ context.Context, value bool) error {
	b := byte(0)
	if value {
		b = 1
	}
	return w.kv.Update(func(txn *keyValStore.Txn) error {
		return txn.Set(relSettings, keyRegistrationEnabled, []byte{b})
	})
}

// RegisterUser registers a new user, unless an admin has closed
// registration.
func (w *Wiki) RegisterUser(ctx context.Context, name, password string) (types.UserID, error) {
	enabled, err := w.RegistrationEnabled(ctx)
	if err != nil {
		return 0, err
	}
	if !enabled {
		return 0, wikierror.RegistrationDisabled()
	}
	return w.Users.Register(ctx, name, password)
}
