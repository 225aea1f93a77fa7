// Package propagator implements the slot propagator (C3): once a node's
// predecessors complete, it fills that node's input slots from predecessor
// output slots, honoring per-slot-pair transfer rules (spec §4.3).
package propagator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sciflow/kernel/internal/domain"
	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"
)

// CompleteNodeInputs fills every input slot of node that appears as a
// to_slot in some relation of spec, reading the nth prepared value off the
// matching upstream output slot (spec §4.3
// produce_node_spec_by_complete_node_inputs). upstreamByID must carry the
// current NodeSpec (with its output slots already pre-allocated) for every
// node spec.NodeRelations names as a from_id into node.
func CompleteNodeInputs(spec domain.WorkflowSpec, upstreamByID map[uuid.UUID]domain.NodeSpec, node domain.NodeSpec, nth int) (domain.NodeSpec, error) {
	filled := node
	filled.InputSlots = append([]domain.InputSlot(nil), node.InputSlots...)

	for _, rel := range spec.RelationsInto(node.ID) {
		upstream, ok := upstreamByID[rel.FromID]
		if !ok {
			return domain.NodeSpec{}, kernelerrors.NoSuchNode(rel.FromID.String())
		}
		for _, sr := range rel.SlotRelations {
			if err := bindOne(&filled, upstream, sr, nth); err != nil {
				return domain.NodeSpec{}, err
			}
		}
	}
	return filled, nil
}

func bindOne(node *domain.NodeSpec, upstream domain.NodeSpec, sr domain.SlotRelation, nth int) error {
	idx := indexOfInputSlot(node.InputSlots, sr.ToSlot)
	if idx < 0 {
		return kernelerrors.NoSuchSlot(sr.ToSlot)
	}
	in := node.InputSlots[idx]

	if _, unknown := in.Kind.(domain.InputSlotUnknown); unknown {
		return kernelerrors.UnknownSlotKind("input slot kind is Unknown")
	}

	outSlot, ok := upstream.OutputSlotByDescriptor(sr.FromSlot)
	if !ok {
		return kernelerrors.NoSuchSlot(sr.FromSlot)
	}

	switch in.Kind.(type) {
	case domain.InputSlotText:
		outKind, ok := outSlot.Kind.(domain.OutputSlotText)
		if !ok {
			return kernelerrors.SlotKindMismatch(fmt.Sprintf("slot %q: input is Text, output is %T", sr.ToSlot, outSlot.Kind))
		}
		if nth < 0 || nth >= len(outKind.AllTasksPreparedTextIDs) {
			return kernelerrors.MissingOutput(nth)
		}
		node.InputSlots[idx].Kind = domain.InputSlotText{TextKeys: []string{outKind.AllTasksPreparedTextIDs[nth]}}

	case domain.InputSlotFile:
		outKind, ok := outSlot.Kind.(domain.OutputSlotFile)
		if !ok {
			return kernelerrors.SlotKindMismatch(fmt.Sprintf("slot %q: input is File, output is %T", sr.ToSlot, outSlot.Kind))
		}
		if nth < 0 || nth >= len(outKind.AllTasksPreparedFileIDs) {
			return kernelerrors.MissingOutput(nth)
		}
		fileID := outKind.AllTasksPreparedFileIDs[nth]
		existing := in.Kind.(domain.InputSlotFile)
		node.InputSlots[idx].Kind = domain.InputSlotFile{
			FileInputs:       []domain.FileInput{{MetaID: fileID}},
			ExpectedFileName: existing.ExpectedFileName,
			IsBatch:          existing.IsBatch,
		}

	default:
		return kernelerrors.UnknownSlotKind(fmt.Sprintf("input slot %q has unsupported kind %T", sr.ToSlot, in.Kind))
	}
	return nil
}

func indexOfInputSlot(slots []domain.InputSlot, descriptor string) int {
	for i, s := range slots {
		if s.Descriptor == descriptor {
			return i
		}
	}
	return -1
}

// SubNodeBinding is one (sub_id, bindings) tuple consumed by ParseSubNodes
// (spec §4.3).
type SubNodeBinding struct {
	SubID  uuid.UUID
	Inputs map[string]domain.InputSlotKind
}

// ParseSubNodes produces one clone of parent per binding: each clone takes
// the bound sub id, applies the binding's input-slot overrides (validating
// existence and kind match), and replaces every output-slot
// all_tasks_prepared_* array with a single freshly generated id (spec
// §4.3). This pre-allocation lets downstream nodes reference a sub-task's
// outputs by position before the sub-task executes.
func ParseSubNodes(parent domain.NodeSpec, bindings []SubNodeBinding) ([]domain.NodeSpec, error) {
	out := make([]domain.NodeSpec, 0, len(bindings))
	for _, binding := range bindings {
		clone := parent
		clone.ID = binding.SubID
		clone.InputSlots = append([]domain.InputSlot(nil), parent.InputSlots...)
		clone.OutputSlots = append([]domain.OutputSlot(nil), parent.OutputSlots...)

		if err := updateWithInputs(&clone, binding.Inputs); err != nil {
			return nil, err
		}
		preallocateOutputs(&clone)
		out = append(out, clone)
	}
	return out, nil
}

func updateWithInputs(node *domain.NodeSpec, inputs map[string]domain.InputSlotKind) error {
	for descriptor, kind := range inputs {
		idx := indexOfInputSlot(node.InputSlots, descriptor)
		if idx < 0 {
			return kernelerrors.NoSuchSlot(descriptor)
		}
		if !sameSlotKindType(node.InputSlots[idx].Kind, kind) {
			return kernelerrors.SlotKindMismatch(fmt.Sprintf("slot %q: binding kind %T does not match declared kind %T", descriptor, kind, node.InputSlots[idx].Kind))
		}
		node.InputSlots[idx].Kind = kind
	}
	return nil
}

func sameSlotKindType(a, b domain.InputSlotKind) bool {
	switch a.(type) {
	case domain.InputSlotText:
		_, ok := b.(domain.InputSlotText)
		return ok
	case domain.InputSlotFile:
		_, ok := b.(domain.InputSlotFile)
		return ok
	default:
		return false
	}
}

func preallocateOutputs(node *domain.NodeSpec) {
	for i, out := range node.OutputSlots {
		switch out.Kind.(type) {
		case domain.OutputSlotText:
			node.OutputSlots[i].Kind = domain.OutputSlotText{AllTasksPreparedTextIDs: []string{uuid.New().String()}}
		case domain.OutputSlotFile:
			node.OutputSlots[i].Kind = domain.OutputSlotFile{AllTasksPreparedFileIDs: []uuid.UUID{uuid.New()}}
		default:
			node.OutputSlots[i].Kind = domain.OutputSlotUnknown{}
		}
	}
}
