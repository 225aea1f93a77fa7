// Package expander implements the workflow expander (C2): it turns a
// WorkflowInstance's static spec into the concrete, ordered list of
// NodeInstance records, including batch fan-out counts that depend
// transitively on upstream batch nodes (spec §4.2).
package expander

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sciflow/kernel/internal/domain"
	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"
	"github.com/sciflow/kernel/internal/infrastructure/tracing"
)

// Expander computes node-instance fan-out for a WorkflowSpec.
type Expander struct {
	Log zerolog.Logger
}

// New builds an Expander bound to the given logger.
func New(log zerolog.Logger) *Expander {
	return &Expander{Log: log}
}

// Expand computes the ordered NodeInstance list for instance.Spec: one root
// per NodeSpec, followed by sub_node_count(p) child instances for each
// batch parent p (spec §4.2).
func (e *Expander) Expand(ctx context.Context, instance domain.WorkflowInstance) ([]domain.NodeInstance, error) {
	ctx, span := tracing.StartSpan(ctx, "expander.Expand")
	defer span.End()

	spec := instance.Spec
	if cyclic, cause := domain.DetectCycle(spec); cyclic {
		e.Log.Warn().Str("workflowInstanceId", instance.ID.String()).Str("cause", cause).Msg("workflow cyclic, refusing expansion")
		return nil, kernelerrors.WorkflowCyclic(cause)
	}

	counts := map[uuid.UUID]int{}
	for _, node := range spec.NodeSpecs {
		if _, err := e.subNodeCount(spec, node.ID, counts, map[uuid.UUID]bool{}); err != nil {
			return nil, err
		}
	}

	var out []domain.NodeInstance
	for _, node := range spec.NodeSpecs {
		root := domain.NodeInstance{
			ID:             node.ID,
			Name:           node.Name,
			Kind:           node.Kind,
			IsParent:       node.IsBatchParent(),
			FlowInstanceID: instance.ID,
			Status:         domain.StatusCreated,
		}
		out = append(out, root)

		if !node.IsBatchParent() {
			continue
		}
		n := counts[node.ID]
		for i := 0; i < n; i++ {
			sub := domain.NodeInstance{
				ID:             uuid.New(),
				Name:           fmt.Sprintf("%s_sub_task_%d", node.Name, i),
				Kind:           node.Kind,
				IsParent:       false,
				BatchParentID:  ptr(node.ID),
				FlowInstanceID: instance.ID,
				Status:         domain.StatusCreated,
			}
			out = append(out, sub)
		}
	}

	e.Log.Debug().
		Str("workflowInstanceId", instance.ID.String()).
		Int("nodeInstanceCount", len(out)).
		Msg("expanded workflow instance")
	return out, nil
}

// subNodeCount computes the product, across node's batch_strategies, of
// each strategy's contribution (spec §4.2). visiting guards against cycles
// independent of the upfront DetectCycle check, so a malformed graph that
// slips past validation still fails fast instead of recursing forever.
func (e *Expander) subNodeCount(spec domain.WorkflowSpec, nodeID uuid.UUID, memo map[uuid.UUID]int, visiting map[uuid.UUID]bool) (int, error) {
	if n, ok := memo[nodeID]; ok {
		return n, nil
	}
	if visiting[nodeID] {
		return 0, kernelerrors.WorkflowCyclic(fmt.Sprintf("cycle detected while computing sub_node_count for %s", nodeID))
	}
	visiting[nodeID] = true
	defer delete(visiting, nodeID)

	node, ok := spec.NodeSpecByID(nodeID)
	if !ok {
		return 0, kernelerrors.NoSuchNode(nodeID.String())
	}

	count := 1
	for slotDescriptor, strategy := range node.BatchStrategies {
		contribution, err := e.strategyCount(spec, node, slotDescriptor, strategy, memo, visiting)
		if err != nil {
			return 0, err
		}
		count *= contribution
	}
	memo[nodeID] = count
	return count, nil
}

func (e *Expander) strategyCount(spec domain.WorkflowSpec, node domain.NodeSpec, slotDescriptor string, strategy domain.BatchStrategy, memo map[uuid.UUID]int, visiting map[uuid.UUID]bool) (int, error) {
	switch s := strategy.(type) {
	case domain.BatchStrategyOriginalBatch:
		slot, ok := node.InputSlotByDescriptor(slotDescriptor)
		if !ok {
			return 0, kernelerrors.NoSuchSlot(slotDescriptor)
		}
		return boundInputCount(slot), nil

	case domain.BatchStrategyMatchRegex:
		return s.FillCount, nil

	case domain.BatchStrategyFromBatchOutputs:
		upstream, ok := findUpstream(spec, node.ID, slotDescriptor)
		if !ok {
			return 0, kernelerrors.NoSuchSlot(slotDescriptor)
		}
		return e.subNodeCount(spec, upstream, memo, visiting)

	default:
		return 0, fmt.Errorf("expander: unhandled batch strategy %T", strategy)
	}
}

// findUpstream locates the node_relation whose slot_relations.to_slot
// equals slotDescriptor and returns its from_id (spec §4.2
// FromBatchOutputs).
func findUpstream(spec domain.WorkflowSpec, toNodeID uuid.UUID, toSlotDescriptor string) (uuid.UUID, bool) {
	for _, rel := range spec.NodeRelations {
		if rel.ToID != toNodeID {
			continue
		}
		for _, sr := range rel.SlotRelations {
			if sr.ToSlot == toSlotDescriptor {
				return rel.FromID, true
			}
		}
	}
	return uuid.Nil, false
}

func boundInputCount(slot domain.InputSlot) int {
	switch k := slot.Kind.(type) {
	case domain.InputSlotText:
		return len(k.TextKeys)
	case domain.InputSlotFile:
		return len(k.FileInputs)
	default:
		return 0
	}
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }
