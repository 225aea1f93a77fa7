package expander_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciflow/kernel/internal/application/expander"
	"github.com/sciflow/kernel/internal/domain"
)

func newExpander() *expander.Expander {
	return expander.New(zerolog.Nop())
}

func TestExpand_NonBatchNode_OneInstance(t *testing.T) {
	node := domain.NodeSpec{ID: uuid.New(), Name: "solo", Kind: domain.NodeKindNoAction{}}
	spec := domain.WorkflowSpec{NodeSpecs: []domain.NodeSpec{node}}
	instance := domain.WorkflowInstance{ID: uuid.New(), Spec: spec}

	out, err := newExpander().Expand(context.Background(), instance)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, node.ID, out[0].ID)
	assert.False(t, out[0].IsParent)
	assert.Equal(t, domain.StatusCreated, out[0].Status)
}

func TestExpand_OriginalBatchNode_FansOutByBoundInputCount(t *testing.T) {
	node := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "batch",
		Kind: domain.NodeKindNoAction{},
		InputSlots: []domain.InputSlot{
			{Descriptor: "in", Kind: domain.InputSlotFile{FileInputs: []domain.FileInput{{}, {}, {}}}},
		},
		BatchStrategies: map[string]domain.BatchStrategy{
			"in": domain.BatchStrategyOriginalBatch{},
		},
	}
	spec := domain.WorkflowSpec{NodeSpecs: []domain.NodeSpec{node}}
	instance := domain.WorkflowInstance{ID: uuid.New(), Spec: spec}

	out, err := newExpander().Expand(context.Background(), instance)
	require.NoError(t, err)
	// one root (parent) plus 3 sub-instances
	require.Len(t, out, 4)
	assert.True(t, out[0].IsParent)
	for _, sub := range out[1:] {
		require.NotNil(t, sub.BatchParentID)
		assert.Equal(t, node.ID, *sub.BatchParentID)
	}
}

func TestExpand_MatchRegexBatch_FansOutByFillCount(t *testing.T) {
	node := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "batch",
		Kind: domain.NodeKindNoAction{},
		InputSlots: []domain.InputSlot{
			{Descriptor: "in", Kind: domain.InputSlotText{}},
		},
		BatchStrategies: map[string]domain.BatchStrategy{
			"in": domain.BatchStrategyMatchRegex{RegexToMatch: `\d+`, FillCount: 5, Filler: domain.FillerAutoNumber{Start: 0, Step: 1}},
		},
	}
	spec := domain.WorkflowSpec{NodeSpecs: []domain.NodeSpec{node}}
	instance := domain.WorkflowInstance{ID: uuid.New(), Spec: spec}

	out, err := newExpander().Expand(context.Background(), instance)
	require.NoError(t, err)
	require.Len(t, out, 6) // 1 root + 5 sub
}

func TestExpand_FromBatchOutputs_PropagatesUpstreamCount(t *testing.T) {
	upstream := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "upstream",
		Kind: domain.NodeKindNoAction{},
		InputSlots: []domain.InputSlot{
			{Descriptor: "in", Kind: domain.InputSlotFile{FileInputs: []domain.FileInput{{}, {}}}},
		},
		OutputSlots: []domain.OutputSlot{{Descriptor: "out", Kind: domain.OutputSlotFile{}}},
		BatchStrategies: map[string]domain.BatchStrategy{
			"in": domain.BatchStrategyOriginalBatch{},
		},
	}
	downstream := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "downstream",
		Kind: domain.NodeKindNoAction{},
		InputSlots: []domain.InputSlot{
			{Descriptor: "in2", Kind: domain.InputSlotFile{}},
		},
		BatchStrategies: map[string]domain.BatchStrategy{
			"in2": domain.BatchStrategyFromBatchOutputs{},
		},
	}
	spec := domain.WorkflowSpec{
		NodeSpecs: []domain.NodeSpec{upstream, downstream},
		NodeRelations: []domain.NodeRelation{
			{FromID: upstream.ID, ToID: downstream.ID, SlotRelations: []domain.SlotRelation{
				{FromSlot: "out", ToSlot: "in2", TransferStrategy: domain.TransferStrategyNetwork{}},
			}},
		},
	}
	instance := domain.WorkflowInstance{ID: uuid.New(), Spec: spec}

	out, err := newExpander().Expand(context.Background(), instance)
	require.NoError(t, err)
	// upstream: 1 root + 2 subs = 3; downstream: 1 root + 2 subs = 3
	assert.Len(t, out, 6)
}

func TestExpand_CyclicWorkflow_Rejected(t *testing.T) {
	a := domain.NodeSpec{ID: uuid.New(), Name: "a", Kind: domain.NodeKindNoAction{}}
	b := domain.NodeSpec{ID: uuid.New(), Name: "b", Kind: domain.NodeKindNoAction{}}
	spec := domain.WorkflowSpec{
		NodeSpecs: []domain.NodeSpec{a, b},
		NodeRelations: []domain.NodeRelation{
			{FromID: a.ID, ToID: b.ID},
			{FromID: b.ID, ToID: a.ID},
		},
	}
	instance := domain.WorkflowInstance{ID: uuid.New(), Spec: spec}

	_, err := newExpander().Expand(context.Background(), instance)
	require.Error(t, err)
}
