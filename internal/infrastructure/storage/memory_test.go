package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciflow/kernel/internal/domain"
)

func TestMatchKeyPattern_MetaWildcard(t *testing.T) {
	assert.True(t, matchKeyPattern("movereg_*_abc", "movereg_xyz_abc"))
	assert.False(t, matchKeyPattern("movereg_*_abc", "movereg_xyz_def"))
}

func TestMatchKeyPattern_MoveWildcard(t *testing.T) {
	assert.True(t, matchKeyPattern("movereg_xyz_*", "movereg_xyz_abc"))
	assert.False(t, matchKeyPattern("movereg_xyz_*", "movereg_other_abc"))
}

func TestMatchKeyPattern_NoWildcardRequiresExactMatch(t *testing.T) {
	assert.True(t, matchKeyPattern("exact", "exact"))
	assert.False(t, matchKeyPattern("exact", "exactly"))
}

func TestMoveRegistry_ExpiredLeaseIsTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	registry := NewMoveRegistry()
	now := time.Now()
	registry.now = func() time.Time { return now }

	reg := domain.MoveRegistration{ID: uuid.New(), MetaID: uuid.New(), FileName: "a.txt", Destination: domain.DestinationStorageServer{}}
	require.NoError(t, registry.InsertWithLease(ctx, reg, 10))

	_, err := registry.GetOneByKeyRegex(ctx, moveKeyPattern(reg.ID))
	require.NoError(t, err)

	registry.now = func() time.Time { return now.Add(11 * time.Second) }
	_, err = registry.GetOneByKeyRegex(ctx, moveKeyPattern(reg.ID))
	assert.Error(t, err, "a lease past its TTL must be treated as absent")
}

func moveKeyPattern(moveID uuid.UUID) string {
	return "movereg_" + moveID.String() + "_*"
}
