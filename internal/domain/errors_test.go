package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{ErrBidTooLow, KindValidation},
		{ErrInvalidAmount, KindValidation},
		{ErrInvalidInput, KindValidation},
		{ErrInvalidSelection, KindValidation},
		{ErrSelfPurchase, KindValidation},
		{ErrInvalidBidder, KindValidation},
		{ErrForbidden, KindAuthorization},
		{ErrAlreadySold, KindConflict},
		{ErrAlreadyResolved, KindConflict},
		{ErrAlreadyFinalized, KindConflict},
		{ErrListingClosed, KindConflict},
		{ErrInvalidState, KindConflict},
		{ErrLockHeld, KindConflict},
		{ErrNotFound, KindNotFound},
		{ErrRateLimited, KindRateLimited},
		{ErrStoreUnavailable, KindUnavailable},
		{errors.New("something else"), KindInternal},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.want, Kind(tc.err))
		})
	}
}

func TestKind_UnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("ledger_service: place bid: %w", ErrBidTooLow)
	assert.Equal(t, KindValidation, Kind(wrapped))

	deep := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrAlreadySold))
	assert.Equal(t, KindConflict, Kind(deep))
}

func TestKind_Nil(t *testing.T) {
	assert.Equal(t, ErrorKind(""), Kind(nil))
}
