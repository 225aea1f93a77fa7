// Package importer converts a human-authored YAML workflow document into a
// domain.WorkflowSpec, standing in for the declarative submission path
// operators use instead of hand-building tagged-union JSON. Grounded on the
// teacher's YAML workflow importer
// (internal/application/importer/yaml_importer.go), whose flat
// metadata/nodes/edges shape and validate-then-convert structure this keeps;
// the node "type" vocabulary and per-slot "kind" tags are generalized to
// this kernel's NodeKind/InputSlotKind/OutputSlotKind tagged unions instead
// of the teacher's executor-registry type names.
package importer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sciflow/kernel/internal/domain"
)

// Document is the top-level YAML workflow configuration (spec §3
// WorkflowSpec).
type Document struct {
	Metadata Metadata `yaml:"metadata"`
	Nodes    []Node   `yaml:"nodes"`
	Edges    []Edge   `yaml:"edges,omitempty"`
}

// Metadata carries human-facing bookkeeping that has no domain.WorkflowSpec
// field; it is validated but otherwise discarded on import.
type Metadata struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// Node is one NodeSpec in YAML form.
type Node struct {
	ID                 string              `yaml:"id"`
	Name               string              `yaml:"name"`
	Kind               NodeKindDoc         `yaml:"kind"`
	InputSlots         []InputSlotDoc      `yaml:"inputSlots,omitempty"`
	OutputSlots        []OutputSlotDoc     `yaml:"outputSlots,omitempty"`
	BatchStrategies    map[string]BatchDoc `yaml:"batchStrategies,omitempty"`
	SchedulingStrategy string              `yaml:"schedulingStrategy,omitempty"`
	Requirements       *RequirementsDoc    `yaml:"requirements,omitempty"`
}

// NodeKindDoc picks one variant of domain.NodeKind by tag; exactly one of
// the typed fields may be set alongside a matching Type.
type NodeKindDoc struct {
	Type              string    `yaml:"type"`
	SoftwareVersionID string    `yaml:"softwareVersionId,omitempty"`
	UsecaseVersionID  string    `yaml:"usecaseVersionId,omitempty"`
}

// InputSlotDoc is one InputSlot in YAML form.
type InputSlotDoc struct {
	Descriptor       string   `yaml:"descriptor"`
	Kind             string   `yaml:"kind"` // "text" | "file" | "unknown"
	Optional         bool     `yaml:"optional,omitempty"`
	TextKeys         []string `yaml:"textKeys,omitempty"`
	ExpectedFileName string   `yaml:"expectedFileName,omitempty"`
	IsBatch          bool     `yaml:"isBatch,omitempty"`
}

// OutputSlotDoc is one OutputSlot in YAML form; the pre-allocated id arrays
// are never read from the document (propagator.ParseSubNodes fills them).
type OutputSlotDoc struct {
	Descriptor string `yaml:"descriptor"`
	Kind       string `yaml:"kind"` // "text" | "file" | "unknown"
}

// BatchDoc picks one variant of domain.BatchStrategy by tag.
type BatchDoc struct {
	Type         string       `yaml:"type"` // "originalBatch" | "matchRegex" | "fromBatchOutputs"
	RegexToMatch string       `yaml:"regexToMatch,omitempty"`
	FillCount    int          `yaml:"fillCount,omitempty"`
	Filler       *FillerDoc   `yaml:"filler,omitempty"`
}

// FillerDoc picks one variant of domain.Filler by tag.
type FillerDoc struct {
	Type  string   `yaml:"type"` // "autoNumber" | "enumeration"
	Start int      `yaml:"start,omitempty"`
	Step  int      `yaml:"step,omitempty"`
	Items []string `yaml:"items,omitempty"`
}

// RequirementsDoc is domain.Requirements in YAML form.
type RequirementsDoc struct {
	CPUs            int   `yaml:"cpus,omitempty"`
	MemoryMB        int64 `yaml:"memoryMb,omitempty"`
	MaxWallTimeSecs int   `yaml:"maxWallTimeSeconds,omitempty"`
}

// Edge is one NodeRelation in YAML form.
type Edge struct {
	From          string        `yaml:"from"`
	To            string        `yaml:"to"`
	SlotRelations []SlotRelDoc  `yaml:"slotRelations"`
}

// SlotRelDoc is one SlotRelation in YAML form.
type SlotRelDoc struct {
	FromSlot         string `yaml:"fromSlot"`
	ToSlot           string `yaml:"toSlot"`
	TransferStrategy string `yaml:"transferStrategy"` // "network" | "disk"
}

// ValidationError reports a document defect with the field path that
// triggered it, mirroring the teacher importer's error shape.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FromYAML parses data and converts it into a domain.WorkflowSpec. The
// returned spec is not yet validated against ValidateStructure; callers
// should run that themselves so cycle/reference errors surface through the
// same path a submitted spec would.
func FromYAML(data []byte) (domain.WorkflowSpec, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.WorkflowSpec{}, fmt.Errorf("importer: parse yaml: %w", err)
	}
	if doc.Metadata.Name == "" {
		return domain.WorkflowSpec{}, &ValidationError{Field: "metadata.name", Message: "workflow name is required"}
	}
	if len(doc.Nodes) == 0 {
		return domain.WorkflowSpec{}, &ValidationError{Field: "nodes", Message: "at least one node is required"}
	}

	idByDoc := make(map[string]uuid.UUID, len(doc.Nodes))
	seen := make(map[string]bool, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if n.ID == "" {
			return domain.WorkflowSpec{}, &ValidationError{Field: fmt.Sprintf("nodes[%d].id", i), Message: "node id is required"}
		}
		if seen[n.ID] {
			return domain.WorkflowSpec{}, &ValidationError{Field: fmt.Sprintf("nodes[%d].id", i), Message: fmt.Sprintf("duplicate node id %q", n.ID)}
		}
		seen[n.ID] = true
		idByDoc[n.ID] = uuid.New()
	}

	spec := domain.WorkflowSpec{
		NodeSpecs:     make([]domain.NodeSpec, 0, len(doc.Nodes)),
		NodeRelations: make([]domain.NodeRelation, 0, len(doc.Edges)),
	}

	for i, n := range doc.Nodes {
		node, err := convertNode(n, idByDoc)
		if err != nil {
			return domain.WorkflowSpec{}, fmt.Errorf("nodes[%d] (%s): %w", i, n.ID, err)
		}
		spec.NodeSpecs = append(spec.NodeSpecs, node)
	}

	for i, e := range doc.Edges {
		fromID, ok := idByDoc[e.From]
		if !ok {
			return domain.WorkflowSpec{}, &ValidationError{Field: fmt.Sprintf("edges[%d].from", i), Message: fmt.Sprintf("references unknown node %q", e.From)}
		}
		toID, ok := idByDoc[e.To]
		if !ok {
			return domain.WorkflowSpec{}, &ValidationError{Field: fmt.Sprintf("edges[%d].to", i), Message: fmt.Sprintf("references unknown node %q", e.To)}
		}
		if e.From == e.To {
			return domain.WorkflowSpec{}, &ValidationError{Field: fmt.Sprintf("edges[%d]", i), Message: "self-loop edges are not allowed"}
		}

		relations := make([]domain.SlotRelation, 0, len(e.SlotRelations))
		for j, sr := range e.SlotRelations {
			strategy, err := convertTransferStrategy(sr.TransferStrategy)
			if err != nil {
				return domain.WorkflowSpec{}, fmt.Errorf("edges[%d].slotRelations[%d]: %w", i, j, err)
			}
			relations = append(relations, domain.SlotRelation{
				FromSlot:         sr.FromSlot,
				ToSlot:           sr.ToSlot,
				TransferStrategy: strategy,
			})
		}

		spec.NodeRelations = append(spec.NodeRelations, domain.NodeRelation{
			FromID:        fromID,
			ToID:          toID,
			SlotRelations: relations,
		})
	}

	return spec, nil
}

func convertNode(n Node, idByDoc map[string]uuid.UUID) (domain.NodeSpec, error) {
	kind, err := convertNodeKind(n.Kind)
	if err != nil {
		return domain.NodeSpec{}, err
	}

	inputs := make([]domain.InputSlot, 0, len(n.InputSlots))
	for _, s := range n.InputSlots {
		slot, err := convertInputSlot(s)
		if err != nil {
			return domain.NodeSpec{}, err
		}
		inputs = append(inputs, slot)
	}

	outputs := make([]domain.OutputSlot, 0, len(n.OutputSlots))
	for _, s := range n.OutputSlots {
		slot, err := convertOutputSlot(s)
		if err != nil {
			return domain.NodeSpec{}, err
		}
		outputs = append(outputs, slot)
	}

	strategies := make(map[string]domain.BatchStrategy, len(n.BatchStrategies))
	for descriptor, b := range n.BatchStrategies {
		strategy, err := convertBatchStrategy(b)
		if err != nil {
			return domain.NodeSpec{}, fmt.Errorf("batchStrategies[%s]: %w", descriptor, err)
		}
		strategies[descriptor] = strategy
	}

	var requirements *domain.Requirements
	if n.Requirements != nil {
		requirements = &domain.Requirements{
			CPUs:        n.Requirements.CPUs,
			MemoryMB:    n.Requirements.MemoryMB,
			MaxWallTime: time.Duration(n.Requirements.MaxWallTimeSecs) * time.Second,
		}
	}

	return domain.NodeSpec{
		ID:                 idByDoc[n.ID],
		Name:               n.Name,
		Kind:               kind,
		InputSlots:         inputs,
		OutputSlots:        outputs,
		BatchStrategies:    strategies,
		SchedulingStrategy: n.SchedulingStrategy,
		Requirements:       requirements,
	}, nil
}

func convertNodeKind(k NodeKindDoc) (domain.NodeKind, error) {
	switch k.Type {
	case "softwareUsecaseComputing":
		softwareVersionID, err := uuid.Parse(k.SoftwareVersionID)
		if err != nil {
			return nil, fmt.Errorf("kind.softwareVersionId: %w", err)
		}
		usecaseVersionID, err := uuid.Parse(k.UsecaseVersionID)
		if err != nil {
			return nil, fmt.Errorf("kind.usecaseVersionId: %w", err)
		}
		return domain.NodeKindSoftwareUsecaseComputing{SoftwareVersionID: softwareVersionID, UsecaseVersionID: usecaseVersionID}, nil
	case "noAction":
		return domain.NodeKindNoAction{}, nil
	case "script":
		return domain.NodeKindScript{}, nil
	case "milestone":
		return domain.NodeKindMilestone{}, nil
	default:
		return nil, fmt.Errorf("kind.type: unknown node kind %q", k.Type)
	}
}

func convertInputSlot(s InputSlotDoc) (domain.InputSlot, error) {
	var kind domain.InputSlotKind
	switch s.Kind {
	case "text":
		kind = domain.InputSlotText{TextKeys: s.TextKeys}
	case "file":
		kind = domain.InputSlotFile{ExpectedFileName: s.ExpectedFileName, IsBatch: s.IsBatch}
	case "unknown", "":
		kind = domain.InputSlotUnknown{}
	default:
		return domain.InputSlot{}, fmt.Errorf("inputSlots[%s].kind: unknown kind %q", s.Descriptor, s.Kind)
	}
	return domain.InputSlot{Descriptor: s.Descriptor, Kind: kind, Optional: s.Optional}, nil
}

func convertOutputSlot(s OutputSlotDoc) (domain.OutputSlot, error) {
	var kind domain.OutputSlotKind
	switch s.Kind {
	case "text":
		kind = domain.OutputSlotText{}
	case "file":
		kind = domain.OutputSlotFile{}
	case "unknown", "":
		kind = domain.OutputSlotUnknown{}
	default:
		return domain.OutputSlot{}, fmt.Errorf("outputSlots[%s].kind: unknown kind %q", s.Descriptor, s.Kind)
	}
	return domain.OutputSlot{Descriptor: s.Descriptor, Kind: kind}, nil
}

func convertBatchStrategy(b BatchDoc) (domain.BatchStrategy, error) {
	switch b.Type {
	case "originalBatch":
		return domain.BatchStrategyOriginalBatch{}, nil
	case "fromBatchOutputs":
		return domain.BatchStrategyFromBatchOutputs{}, nil
	case "matchRegex":
		if b.Filler == nil {
			return nil, fmt.Errorf("matchRegex requires a filler")
		}
		filler, err := convertFiller(*b.Filler)
		if err != nil {
			return nil, err
		}
		return domain.BatchStrategyMatchRegex{RegexToMatch: b.RegexToMatch, FillCount: b.FillCount, Filler: filler}, nil
	default:
		return nil, fmt.Errorf("unknown batch strategy %q", b.Type)
	}
}

func convertFiller(f FillerDoc) (domain.Filler, error) {
	switch f.Type {
	case "autoNumber":
		return domain.FillerAutoNumber{Start: f.Start, Step: f.Step}, nil
	case "enumeration":
		return domain.FillerEnumeration{Items: f.Items}, nil
	default:
		return nil, fmt.Errorf("unknown filler %q", f.Type)
	}
}

func convertTransferStrategy(s string) (domain.TransferStrategy, error) {
	switch s {
	case "network", "":
		return domain.TransferStrategyNetwork{}, nil
	case "disk":
		return domain.TransferStrategyDisk{}, nil
	default:
		return nil, fmt.Errorf("unknown transfer strategy %q", s)
	}
}
