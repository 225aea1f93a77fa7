package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciflow/kernel/internal/domain"
	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"
)

func twoNodeSpec() (a, b domain.NodeSpec) {
	a = domain.NodeSpec{ID: uuid.New(), Name: "a", Kind: domain.NodeKindNoAction{}}
	b = domain.NodeSpec{ID: uuid.New(), Name: "b", Kind: domain.NodeKindNoAction{}}
	return a, b
}

func TestValidateStructure_RejectsCycle(t *testing.T) {
	a, b := twoNodeSpec()
	spec := domain.WorkflowSpec{
		NodeSpecs: []domain.NodeSpec{a, b},
		NodeRelations: []domain.NodeRelation{
			{FromID: a.ID, ToID: b.ID},
			{FromID: b.ID, ToID: a.ID},
		},
	}

	err := spec.ValidateStructure()
	require.Error(t, err)
	var kerr *kernelerrors.KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kernelerrors.CodeWorkflowCyclic, kerr.Code)
}

func TestValidateStructure_RejectsSelfLoop(t *testing.T) {
	a, _ := twoNodeSpec()
	spec := domain.WorkflowSpec{
		NodeSpecs:     []domain.NodeSpec{a},
		NodeRelations: []domain.NodeRelation{{FromID: a.ID, ToID: a.ID}},
	}

	err := spec.ValidateStructure()
	require.Error(t, err)
	var kerr *kernelerrors.KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kernelerrors.CodeWorkflowCyclic, kerr.Code)
}

func TestValidateStructure_RejectsDanglingRelation(t *testing.T) {
	a, _ := twoNodeSpec()
	spec := domain.WorkflowSpec{
		NodeSpecs:     []domain.NodeSpec{a},
		NodeRelations: []domain.NodeRelation{{FromID: a.ID, ToID: uuid.New()}},
	}

	err := spec.ValidateStructure()
	require.Error(t, err)
	var kerr *kernelerrors.KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kernelerrors.CodeNoSuchNode, kerr.Code)
}

func TestValidateStructure_AcceptsAcyclicDiamond(t *testing.T) {
	a, b := twoNodeSpec()
	c := domain.NodeSpec{ID: uuid.New(), Name: "c", Kind: domain.NodeKindNoAction{}}
	d := domain.NodeSpec{ID: uuid.New(), Name: "d", Kind: domain.NodeKindNoAction{}}
	spec := domain.WorkflowSpec{
		NodeSpecs: []domain.NodeSpec{a, b, c, d},
		NodeRelations: []domain.NodeRelation{
			{FromID: a.ID, ToID: b.ID},
			{FromID: a.ID, ToID: c.ID},
			{FromID: b.ID, ToID: d.ID},
			{FromID: c.ID, ToID: d.ID},
		},
	}
	assert.NoError(t, spec.ValidateStructure())
}

func TestNodeSpec_ValidateUniqueSlots_RejectsDuplicateDescriptor(t *testing.T) {
	n := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "n",
		Kind: domain.NodeKindNoAction{},
		InputSlots: []domain.InputSlot{
			{Descriptor: "x", Kind: domain.InputSlotText{}},
			{Descriptor: "x", Kind: domain.InputSlotText{}},
		},
	}
	err := n.ValidateUniqueSlots()
	require.Error(t, err)
	var kerr *kernelerrors.KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kernelerrors.CodeSlotKindMismatch, kerr.Code)
}

func TestNodeSpec_JSONRoundTrip(t *testing.T) {
	original := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "align",
		Kind: domain.NodeKindSoftwareUsecaseComputing{SoftwareVersionID: uuid.New(), UsecaseVersionID: uuid.New()},
		InputSlots: []domain.InputSlot{
			{Descriptor: "ref", Kind: domain.InputSlotFile{ExpectedFileName: "ref.fa"}, Optional: false},
		},
		OutputSlots: []domain.OutputSlot{
			{Descriptor: "out", Kind: domain.OutputSlotFile{AllTasksPreparedFileIDs: []uuid.UUID{uuid.New()}}},
		},
		BatchStrategies: map[string]domain.BatchStrategy{
			"ref": domain.BatchStrategyMatchRegex{RegexToMatch: `\d+`, FillCount: 3, Filler: domain.FillerAutoNumber{Start: 1, Step: 1}},
		},
		SchedulingStrategy: "default",
	}

	raw, err := original.MarshalJSON()
	require.NoError(t, err)

	var decoded domain.NodeSpec
	require.NoError(t, decoded.UnmarshalJSON(raw))

	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.Name, decoded.Name)
	assert.Equal(t, original.Kind, decoded.Kind)
	assert.Equal(t, original.InputSlots, decoded.InputSlots)
	assert.Equal(t, original.OutputSlots, decoded.OutputSlots)
	assert.Equal(t, original.BatchStrategies, decoded.BatchStrategies)
}

func TestNodeSpec_UnmarshalJSON_RejectsUnknownField(t *testing.T) {
	raw := []byte(`{"id":"` + uuid.New().String() + `","name":"n","kind":{"type":"NoAction"},"inputSlots":[],"outputSlots":[],"batchStrategies":{},"schedulingStrategy":"","unexpectedField":true}`)
	var decoded domain.NodeSpec
	err := decoded.UnmarshalJSON(raw)
	assert.Error(t, err)
}

func TestUnmarshalNodeKind_RejectsUnknownTag(t *testing.T) {
	_, err := domain.UnmarshalNodeKind([]byte(`{"type":"NotARealKind"}`))
	assert.Error(t, err)
}
