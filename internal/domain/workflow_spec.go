package domain

import (
	"encoding/json"
	"fmt"

	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"

	"github.com/google/uuid"
)

// NodeKind tags what a NodeSpec does when it runs (spec §3 NodeSpec).
type NodeKind interface {
	isNodeKind()
}

// NodeKindSoftwareUsecaseComputing invokes a packaged scientific
// application; the two version ids are resolved against PackageInfoGetter
// at compile time (spec §6, §4.4).
type NodeKindSoftwareUsecaseComputing struct {
	SoftwareVersionID uuid.UUID `json:"softwareVersionId"`
	UsecaseVersionID  uuid.UUID `json:"usecaseVersionId"`
}

// NodeKindNoAction is a no-op node; the dispatcher reports success without
// contacting any collaborator.
type NodeKindNoAction struct{}

// NodeKindScript currently enumerates only one (empty) variant; its
// dispatcher is a stub (spec §9 Open Questions).
type NodeKindScript struct{}

// NodeKindMilestone marks a point in the graph with no work attached.
type NodeKindMilestone struct{}

func (NodeKindSoftwareUsecaseComputing) isNodeKind() {}
func (NodeKindNoAction) isNodeKind()                 {}
func (NodeKindScript) isNodeKind()                   {}
func (NodeKindMilestone) isNodeKind()                {}

// MarshalNodeKind encodes a NodeKind as a flat tagged-union document.
func MarshalNodeKind(k NodeKind) ([]byte, error) {
	switch v := k.(type) {
	case NodeKindSoftwareUsecaseComputing:
		return encodeTagged("SoftwareUsecaseComputing", v)
	case NodeKindNoAction:
		return encodeTagged("NoAction", v)
	case NodeKindScript:
		return encodeTagged("Script", v)
	case NodeKindMilestone:
		return encodeTagged("Milestone", v)
	default:
		return nil, fmt.Errorf("marshal node kind: unhandled variant %T", k)
	}
}

// UnmarshalNodeKind decodes a flat tagged-union document into a NodeKind.
// An unrecognized tag is always a hard failure (spec §4.1 exhaustive tags).
func UnmarshalNodeKind(data []byte) (NodeKind, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal node kind: %w", err)
	}
	switch tag {
	case "SoftwareUsecaseComputing":
		var v NodeKindSoftwareUsecaseComputing
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "NoAction":
		var v NodeKindNoAction
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "Script":
		var v NodeKindScript
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "Milestone":
		var v NodeKindMilestone
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal node kind: unknown tag %q", tag)
	}
}

// TransferStrategy names how a slot relation moves bytes between two nodes
// (spec §3 NodeRelation). Both variants are empty; the tag round-trips
// through JSON and YAML, and no kernel component branches on it.
type TransferStrategy interface {
	isTransferStrategy()
}

type TransferStrategyNetwork struct{}
type TransferStrategyDisk struct{}

func (TransferStrategyNetwork) isTransferStrategy() {}
func (TransferStrategyDisk) isTransferStrategy()    {}

func marshalTransferStrategy(t TransferStrategy) ([]byte, error) {
	switch v := t.(type) {
	case TransferStrategyNetwork:
		return encodeTagged("Network", v)
	case TransferStrategyDisk:
		return encodeTagged("Disk", v)
	default:
		return nil, fmt.Errorf("marshal transfer strategy: unhandled variant %T", t)
	}
}

func unmarshalTransferStrategy(data []byte) (TransferStrategy, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal transfer strategy: %w", err)
	}
	switch tag {
	case "Network":
		var v TransferStrategyNetwork
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "Disk":
		var v TransferStrategyDisk
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal transfer strategy: unknown tag %q", tag)
	}
}

// Filler supplies values for a MatchRegex batch strategy's fill_count slots.
// Declared for round-trip completeness; neither variant is consulted during
// task compilation (spec §9 Open Questions — activation is a future
// batch-materialization pass).
type Filler interface {
	isFiller()
}

type FillerAutoNumber struct {
	Start int `json:"start"`
	Step  int `json:"step"`
}

type FillerEnumeration struct {
	Items []string `json:"items"`
}

func (FillerAutoNumber) isFiller()  {}
func (FillerEnumeration) isFiller() {}

func marshalFiller(f Filler) ([]byte, error) {
	switch v := f.(type) {
	case FillerAutoNumber:
		return encodeTagged("AutoNumber", v)
	case FillerEnumeration:
		return encodeTagged("Enumeration", v)
	default:
		return nil, fmt.Errorf("marshal filler: unhandled variant %T", f)
	}
}

func unmarshalFiller(data []byte) (Filler, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal filler: %w", err)
	}
	switch tag {
	case "AutoNumber":
		var v FillerAutoNumber
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "Enumeration":
		var v FillerEnumeration
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal filler: unknown tag %q", tag)
	}
}

// BatchStrategy governs how many sub-tasks a batch parent's input slot
// contributes to the fan-out product (spec §3, §4.2).
type BatchStrategy interface {
	isBatchStrategy()
}

// BatchStrategyOriginalBatch counts the number of inputs currently bound on
// the slot.
type BatchStrategyOriginalBatch struct{}

// BatchStrategyMatchRegex counts fill_count, with Filler declared for
// future materialization of the matched values.
type BatchStrategyMatchRegex struct {
	RegexToMatch string `json:"regexToMatch"`
	FillCount    int    `json:"fillCount"`
	Filler       Filler `json:"filler"`
}

// BatchStrategyFromBatchOutputs counts the sub_node_count of the upstream
// node supplying this slot.
type BatchStrategyFromBatchOutputs struct{}

func (BatchStrategyOriginalBatch) isBatchStrategy()    {}
func (BatchStrategyMatchRegex) isBatchStrategy()       {}
func (BatchStrategyFromBatchOutputs) isBatchStrategy() {}

func marshalBatchStrategy(b BatchStrategy) ([]byte, error) {
	switch v := b.(type) {
	case BatchStrategyOriginalBatch:
		return encodeTagged("OriginalBatch", v)
	case BatchStrategyMatchRegex:
		fillerBytes, err := marshalFiller(v.Filler)
		if err != nil {
			return nil, err
		}
		return encodeTagged("MatchRegex", struct {
			RegexToMatch string          `json:"regexToMatch"`
			FillCount    int             `json:"fillCount"`
			Filler       json.RawMessage `json:"filler"`
		}{v.RegexToMatch, v.FillCount, fillerBytes})
	case BatchStrategyFromBatchOutputs:
		return encodeTagged("FromBatchOutputs", v)
	default:
		return nil, fmt.Errorf("marshal batch strategy: unhandled variant %T", b)
	}
}

func unmarshalBatchStrategy(data []byte) (BatchStrategy, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal batch strategy: %w", err)
	}
	switch tag {
	case "OriginalBatch":
		var v BatchStrategyOriginalBatch
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "MatchRegex":
		var wire struct {
			RegexToMatch string          `json:"regexToMatch"`
			FillCount    int             `json:"fillCount"`
			Filler       json.RawMessage `json:"filler"`
		}
		if err := decodeTaggedStrict(data, &wire); err != nil {
			return nil, err
		}
		filler, err := unmarshalFiller(wire.Filler)
		if err != nil {
			return nil, err
		}
		return BatchStrategyMatchRegex{RegexToMatch: wire.RegexToMatch, FillCount: wire.FillCount, Filler: filler}, nil
	case "FromBatchOutputs":
		var v BatchStrategyFromBatchOutputs
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal batch strategy: unknown tag %q", tag)
	}
}

// SlotRelation binds one output slot descriptor on the upstream node of a
// NodeRelation to one input slot descriptor on the downstream node (spec
// §3 NodeRelation).
type SlotRelation struct {
	FromSlot         string
	ToSlot           string
	TransferStrategy TransferStrategy
}

type slotRelationWire struct {
	FromSlot         string          `json:"fromSlot"`
	ToSlot           string          `json:"toSlot"`
	TransferStrategy json.RawMessage `json:"transferStrategy"`
}

func (r SlotRelation) MarshalJSON() ([]byte, error) {
	tsBytes, err := marshalTransferStrategy(r.TransferStrategy)
	if err != nil {
		return nil, err
	}
	return json.Marshal(slotRelationWire{FromSlot: r.FromSlot, ToSlot: r.ToSlot, TransferStrategy: tsBytes})
}

func (r *SlotRelation) UnmarshalJSON(data []byte) error {
	var wire slotRelationWire
	if err := newStrictDecoder(data).Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal slot relation: %w", err)
	}
	ts, err := unmarshalTransferStrategy(wire.TransferStrategy)
	if err != nil {
		return err
	}
	r.FromSlot = wire.FromSlot
	r.ToSlot = wire.ToSlot
	r.TransferStrategy = ts
	return nil
}

// NodeRelation is a directed edge between two NodeSpecs within the same
// WorkflowSpec, carrying the per-slot-pair transfer rules (spec §3).
type NodeRelation struct {
	FromID        uuid.UUID      `json:"fromId"`
	ToID          uuid.UUID      `json:"toId"`
	SlotRelations []SlotRelation `json:"slotRelations"`
}

// NodeSpec is a static step definition within a WorkflowSpec (spec §3).
type NodeSpec struct {
	ID                 uuid.UUID
	Name                string
	Kind                NodeKind
	InputSlots          []InputSlot
	OutputSlots         []OutputSlot
	BatchStrategies     map[string]BatchStrategy // keyed by input slot descriptor
	SchedulingStrategy  string
	Requirements        *Requirements
}

// IsBatchParent reports whether this node fans out into sub-instances
// (spec §3 NodeInstance invariant: is_parent iff batch_strategies non-empty).
func (n NodeSpec) IsBatchParent() bool {
	return len(n.BatchStrategies) > 0
}

// InputSlotByDescriptor looks up an input slot by its unique descriptor.
func (n NodeSpec) InputSlotByDescriptor(descriptor string) (InputSlot, bool) {
	for _, s := range n.InputSlots {
		if s.Descriptor == descriptor {
			return s, true
		}
	}
	return InputSlot{}, false
}

// OutputSlotByDescriptor looks up an output slot by its unique descriptor.
func (n NodeSpec) OutputSlotByDescriptor(descriptor string) (OutputSlot, bool) {
	for _, s := range n.OutputSlots {
		if s.Descriptor == descriptor {
			return s, true
		}
	}
	return OutputSlot{}, false
}

// ValidateUniqueSlots enforces the NodeSpec invariant that input/output
// slot descriptors are unique within a node.
func (n NodeSpec) ValidateUniqueSlots() error {
	seen := map[string]bool{}
	for _, s := range n.InputSlots {
		if seen[s.Descriptor] {
			return kernelerrors.New(kernelerrors.CodeSlotKindMismatch, fmt.Sprintf("duplicate input slot descriptor %q on node %s", s.Descriptor, n.ID), nil)
		}
		seen[s.Descriptor] = true
	}
	seen = map[string]bool{}
	for _, s := range n.OutputSlots {
		if seen[s.Descriptor] {
			return kernelerrors.New(kernelerrors.CodeSlotKindMismatch, fmt.Sprintf("duplicate output slot descriptor %q on node %s", s.Descriptor, n.ID), nil)
		}
		seen[s.Descriptor] = true
	}
	return nil
}

type nodeSpecWire struct {
	ID                 uuid.UUID                  `json:"id"`
	Name               string                      `json:"name"`
	Kind               json.RawMessage             `json:"kind"`
	InputSlots         []InputSlot                 `json:"inputSlots"`
	OutputSlots        []OutputSlot                `json:"outputSlots"`
	BatchStrategies    map[string]json.RawMessage  `json:"batchStrategies"`
	SchedulingStrategy string                      `json:"schedulingStrategy"`
	Requirements       *Requirements               `json:"requirements,omitempty"`
}

func (n NodeSpec) MarshalJSON() ([]byte, error) {
	kindBytes, err := MarshalNodeKind(n.Kind)
	if err != nil {
		return nil, err
	}
	strategies := make(map[string]json.RawMessage, len(n.BatchStrategies))
	for descriptor, strategy := range n.BatchStrategies {
		b, err := marshalBatchStrategy(strategy)
		if err != nil {
			return nil, err
		}
		strategies[descriptor] = b
	}
	return json.Marshal(nodeSpecWire{
		ID:                 n.ID,
		Name:               n.Name,
		Kind:               kindBytes,
		InputSlots:         n.InputSlots,
		OutputSlots:        n.OutputSlots,
		BatchStrategies:    strategies,
		SchedulingStrategy: n.SchedulingStrategy,
		Requirements:       n.Requirements,
	})
}

func (n *NodeSpec) UnmarshalJSON(data []byte) error {
	var wire nodeSpecWire
	if err := newStrictDecoder(data).Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal node spec: %w", err)
	}
	kind, err := UnmarshalNodeKind(wire.Kind)
	if err != nil {
		return err
	}
	strategies := make(map[string]BatchStrategy, len(wire.BatchStrategies))
	for descriptor, raw := range wire.BatchStrategies {
		s, err := unmarshalBatchStrategy(raw)
		if err != nil {
			return err
		}
		strategies[descriptor] = s
	}
	n.ID = wire.ID
	n.Name = wire.Name
	n.Kind = kind
	n.InputSlots = wire.InputSlots
	n.OutputSlots = wire.OutputSlots
	n.BatchStrategies = strategies
	n.SchedulingStrategy = wire.SchedulingStrategy
	n.Requirements = wire.Requirements
	return nil
}

// WorkflowSpec is the static DAG definition (spec §3).
type WorkflowSpec struct {
	NodeSpecs     []NodeSpec     `json:"nodeSpecs"`
	NodeRelations []NodeRelation `json:"nodeRelations"`
}

// NodeSpecByID looks up a NodeSpec by id within this spec.
func (w WorkflowSpec) NodeSpecByID(id uuid.UUID) (NodeSpec, bool) {
	for _, n := range w.NodeSpecs {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSpec{}, false
}

// RelationsInto returns every NodeRelation whose ToID is id.
func (w WorkflowSpec) RelationsInto(id uuid.UUID) []NodeRelation {
	var out []NodeRelation
	for _, r := range w.NodeRelations {
		if r.ToID == id {
			out = append(out, r)
		}
	}
	return out
}

// ValidateStructure checks the WorkflowSpec invariants: every relation
// endpoint refers to a NodeSpec in this workflow, no self-loops, and the
// relation graph is acyclic. Cycle detection is delegated to DetectCycle so
// the expander can reuse the exact same check (spec §4.2).
func (w WorkflowSpec) ValidateStructure() error {
	ids := map[uuid.UUID]bool{}
	for _, n := range w.NodeSpecs {
		if err := n.ValidateUniqueSlots(); err != nil {
			return err
		}
		ids[n.ID] = true
	}
	for _, r := range w.NodeRelations {
		if !ids[r.FromID] {
			return kernelerrors.NoSuchNode(r.FromID.String())
		}
		if !ids[r.ToID] {
			return kernelerrors.NoSuchNode(r.ToID.String())
		}
		if r.FromID == r.ToID {
			return kernelerrors.WorkflowCyclic(fmt.Sprintf("self-loop on node %s", r.FromID))
		}
	}
	if cyclic, cause := DetectCycle(w); cyclic {
		return kernelerrors.WorkflowCyclic(cause)
	}
	return nil
}

// DetectCycle runs a DFS over the node-relation graph looking for a back
// edge. It returns (true, description) on the first cycle found.
func DetectCycle(w WorkflowSpec) (bool, string) {
	adjacency := map[uuid.UUID][]uuid.UUID{}
	for _, r := range w.NodeRelations {
		adjacency[r.FromID] = append(adjacency[r.FromID], r.ToID)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[uuid.UUID]int{}

	var visit func(id uuid.UUID) (bool, string)
	visit = func(id uuid.UUID) (bool, string) {
		color[id] = gray
		for _, next := range adjacency[id] {
			switch color[next] {
			case gray:
				return true, fmt.Sprintf("cycle through node %s", next)
			case white:
				if cyclic, msg := visit(next); cyclic {
					return true, msg
				}
			}
		}
		color[id] = black
		return false, ""
	}

	for _, n := range w.NodeSpecs {
		if color[n.ID] == white {
			if cyclic, msg := visit(n.ID); cyclic {
				return true, msg
			}
		}
	}
	return false, ""
}
