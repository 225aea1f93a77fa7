package importer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciflow/kernel/internal/application/importer"
	"github.com/sciflow/kernel/internal/domain"
)

const validDoc = `
metadata:
  name: demo
nodes:
  - id: fetch
    name: Fetch
    kind:
      type: noAction
    outputSlots:
      - descriptor: ref
        kind: file
  - id: align
    name: Align
    kind:
      type: softwareUsecaseComputing
      softwareVersionId: 11111111-1111-1111-1111-111111111111
      usecaseVersionId: 22222222-2222-2222-2222-222222222222
    inputSlots:
      - descriptor: ref
        kind: file
    requirements:
      cpus: 2
      memoryMb: 1024
      maxWallTimeSeconds: 60
edges:
  - from: fetch
    to: align
    slotRelations:
      - fromSlot: ref
        toSlot: ref
        transferStrategy: disk
`

func TestFromYAML_ValidDocumentRoundTripsIntoValidatableSpec(t *testing.T) {
	spec, err := importer.FromYAML([]byte(validDoc))
	require.NoError(t, err)
	require.NoError(t, spec.ValidateStructure())

	require.Len(t, spec.NodeSpecs, 2)
	require.Len(t, spec.NodeRelations, 1)

	align := spec.NodeSpecs[1]
	kind, ok := align.Kind.(domain.NodeKindSoftwareUsecaseComputing)
	require.True(t, ok)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", kind.SoftwareVersionID.String())
	require.NotNil(t, align.Requirements)
	assert.Equal(t, 2, align.Requirements.CPUs)

	rel := spec.NodeRelations[0]
	require.Len(t, rel.SlotRelations, 1)
	assert.Equal(t, domain.TransferStrategyDisk{}, rel.SlotRelations[0].TransferStrategy)
}

func TestFromYAML_MissingMetadataName(t *testing.T) {
	_, err := importer.FromYAML([]byte(`
metadata:
  name: ""
nodes:
  - id: a
    name: A
    kind:
      type: noAction
`))
	require.Error(t, err)
	var verr *importer.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "metadata.name", verr.Field)
}

func TestFromYAML_NoNodes(t *testing.T) {
	_, err := importer.FromYAML([]byte(`
metadata:
  name: demo
nodes: []
`))
	require.Error(t, err)
	var verr *importer.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "nodes", verr.Field)
}

func TestFromYAML_DuplicateNodeID(t *testing.T) {
	_, err := importer.FromYAML([]byte(`
metadata:
  name: demo
nodes:
  - id: a
    name: A
    kind:
      type: noAction
  - id: a
    name: A2
    kind:
      type: noAction
`))
	require.Error(t, err)
	var verr *importer.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "duplicate")
}

func TestFromYAML_EdgeReferencesUnknownNode(t *testing.T) {
	_, err := importer.FromYAML([]byte(`
metadata:
  name: demo
nodes:
  - id: a
    name: A
    kind:
      type: noAction
edges:
  - from: a
    to: ghost
    slotRelations: []
`))
	require.Error(t, err)
	var verr *importer.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "edges[0].to", verr.Field)
}

func TestFromYAML_SelfLoopEdgeRejected(t *testing.T) {
	_, err := importer.FromYAML([]byte(`
metadata:
  name: demo
nodes:
  - id: a
    name: A
    kind:
      type: noAction
edges:
  - from: a
    to: a
    slotRelations: []
`))
	require.Error(t, err)
	var verr *importer.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "self-loop")
}

func TestFromYAML_UnknownNodeKindTag(t *testing.T) {
	_, err := importer.FromYAML([]byte(`
metadata:
  name: demo
nodes:
  - id: a
    name: A
    kind:
      type: notARealKind
`))
	require.Error(t, err)
}

func TestFromYAML_UnknownSlotKindTag(t *testing.T) {
	_, err := importer.FromYAML([]byte(`
metadata:
  name: demo
nodes:
  - id: a
    name: A
    kind:
      type: noAction
    outputSlots:
      - descriptor: out
        kind: notAKind
`))
	require.Error(t, err)
}

func TestFromYAML_MatchRegexBatchStrategyRequiresFiller(t *testing.T) {
	_, err := importer.FromYAML([]byte(`
metadata:
  name: demo
nodes:
  - id: a
    name: A
    kind:
      type: noAction
    batchStrategies:
      in:
        type: matchRegex
        regexToMatch: "\\d+"
        fillCount: 3
`))
	require.Error(t, err)
}
