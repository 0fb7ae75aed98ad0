package wikierror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClasses(t *testing.T) {
	cases := []struct {
		err  *Error
		want Class
	}{
		{IdenticalNewRevision(), ClassBadRequest},
		{DuplicateArticleName("Main"), ClassBadRequest},
		{UserAlreadyExists("someone"), ClassBadRequest},
		{RegistrationDisabled(), ClassBadRequest},
		{RevisionUnknown(1, 2), ClassNotFound},
		{UserNotFound("nobody"), ClassNotFound},
		{MalformedKey(3, 4), ClassInternal},
		{ArticleDataInconsistent(1), ClassInternal},
		{RevisionDataInconsistent(1, 2), ClassInternal},
		{UserDataInconsistent(1), ClassInternal},
		{CredentialNotFound(1), ClassInternal},
		{Storage(errors.New("disk on fire")), ClassInternal},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.err.Class(), c.err.Error())
	}
}

func TestStorageKeepsDomainErrors(t *testing.T) {
	// A domain abort travelling through the transaction machinery must
	// surface with its original code, not as a storage fault.
	abort := DuplicateArticleName("Main")
	wrapped := Storage(fmt.Errorf("txn failed: %w", abort))
	assert.Equal(t, CodeDuplicateArticleName, wrapped.Code)

	fault := Storage(errors.New("io error"))
	assert.Equal(t, CodeStorage, fault.Code)
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("adding revision: %w", IdenticalNewRevision())
	assert.True(t, errors.Is(err, IdenticalNewRevision()))
	assert.False(t, errors.Is(err, DuplicateArticleName("x")))
	assert.True(t, HasCode(err, CodeIdenticalNewRevision))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("broken")
	err := Storage(cause)
	assert.ErrorIs(t, err, cause)
}
