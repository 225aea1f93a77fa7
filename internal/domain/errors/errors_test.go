package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"
)

func TestKernelError_CategoryAndRetryable(t *testing.T) {
	cases := []struct {
		err       *kernelerrors.KernelError
		category  kernelerrors.Category
		retryable bool
	}{
		{kernelerrors.SortGap("gap"), kernelerrors.CategoryInput, false},
		{kernelerrors.NoSuchSlot("ref"), kernelerrors.CategoryLookup, false},
		{kernelerrors.UnsupportedRefChain("chain"), kernelerrors.CategoryUnsupported, false},
		{kernelerrors.RepoFailed(nil), kernelerrors.CategoryExternal, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.category, tc.err.Category())
		assert.Equal(t, tc.retryable, tc.err.Retryable())
	}
}

func TestKernelError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	wrapped := kernelerrors.TransportFailed(cause)
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "timeout")
}

func TestAsSignal_RecognizesFlashUpload(t *testing.T) {
	sig := kernelerrors.FlashUpload("abc123", "meta-1", "already-1")
	got, ok := kernelerrors.AsSignal(sig)
	assert.True(t, ok)
	assert.Equal(t, "FlashUpload", got.Name)
	assert.Equal(t, "already-1", got.Details["alreadyId"])
}

func TestAsSignal_RejectsOrdinaryError(t *testing.T) {
	_, ok := kernelerrors.AsSignal(kernelerrors.NoSuchMove("x"))
	assert.False(t, ok)
}
