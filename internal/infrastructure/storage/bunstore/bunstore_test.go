package bunstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveIDOrMetaID_MetaPattern(t *testing.T) {
	metaID := uuid.New()
	moveID, gotMeta, err := moveIDOrMetaID("movereg_*_" + metaID.String())
	require.NoError(t, err)
	assert.Nil(t, moveID)
	require.NotNil(t, gotMeta)
	assert.Equal(t, metaID, *gotMeta)
}

func TestMoveIDOrMetaID_MovePattern(t *testing.T) {
	moveID := uuid.New()
	gotMove, metaID, err := moveIDOrMetaID("movereg_" + moveID.String() + "_*")
	require.NoError(t, err)
	assert.Nil(t, metaID)
	require.NotNil(t, gotMove)
	assert.Equal(t, moveID, *gotMove)
}

func TestMoveIDOrMetaID_MalformedID(t *testing.T) {
	_, _, err := moveIDOrMetaID("movereg_*_not-a-uuid")
	assert.Error(t, err)
}

func TestMoveIDOrMetaID_UnsupportedPattern(t *testing.T) {
	_, _, err := moveIDOrMetaID("something_else")
	assert.Error(t, err)
}
