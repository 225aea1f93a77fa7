package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ResourceMeter records observed resource consumption reported back on the
// node_status topic (spec §6 TaskResult.used_resources).
type ResourceMeter struct {
	CPUSeconds float64 `json:"cpuSeconds"`
	MaxRSSMB   int64   `json:"maxRssMb"`
}

// NodeInstance is a materialized, runtime occurrence of a NodeSpec (spec
// §3). Root instances are materialized 1:1 with a NodeSpec; batch parents
// additionally own N sub-instances, flat in the arena and addressed by id
// (spec §9 "dynamic construction of sub-nodes").
type NodeInstance struct {
	ID             uuid.UUID
	Name           string
	Kind           NodeKind
	IsParent       bool
	BatchParentID  *uuid.UUID
	FlowInstanceID uuid.UUID
	Status         NodeInstanceStatus
	ClusterID      *uuid.UUID
	Log            string
	ResourceMeter  *ResourceMeter
}

// Transition moves the instance to `to`, returning an error if the move
// isn't legal from its current status (spec §4.6: only the driver mutates
// status, and only along the drawn edges).
func (n *NodeInstance) Transition(to NodeInstanceStatus) error {
	if !CanTransition(n.Status, to) {
		return fmt.Errorf("node %s: illegal transition %s -> %s", n.ID, n.Status, to)
	}
	n.Status = to
	return nil
}

type nodeInstanceWire struct {
	ID             uuid.UUID          `json:"id"`
	Name           string             `json:"name"`
	Kind           json.RawMessage    `json:"kind"`
	IsParent       bool               `json:"isParent"`
	BatchParentID  *uuid.UUID         `json:"batchParentId,omitempty"`
	FlowInstanceID uuid.UUID          `json:"flowInstanceId"`
	Status         NodeInstanceStatus `json:"status"`
	ClusterID      *uuid.UUID         `json:"clusterId,omitempty"`
	Log            string             `json:"log,omitempty"`
	ResourceMeter  *ResourceMeter     `json:"resourceMeter,omitempty"`
}

func (n NodeInstance) MarshalJSON() ([]byte, error) {
	kindBytes, err := MarshalNodeKind(n.Kind)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeInstanceWire{
		ID:             n.ID,
		Name:           n.Name,
		Kind:           kindBytes,
		IsParent:       n.IsParent,
		BatchParentID:  n.BatchParentID,
		FlowInstanceID: n.FlowInstanceID,
		Status:         n.Status,
		ClusterID:      n.ClusterID,
		Log:            n.Log,
		ResourceMeter:  n.ResourceMeter,
	})
}

func (n *NodeInstance) UnmarshalJSON(data []byte) error {
	var wire nodeInstanceWire
	if err := newStrictDecoder(data).Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal node instance: %w", err)
	}
	kind, err := UnmarshalNodeKind(wire.Kind)
	if err != nil {
		return err
	}
	n.ID = wire.ID
	n.Name = wire.Name
	n.Kind = kind
	n.IsParent = wire.IsParent
	n.BatchParentID = wire.BatchParentID
	n.FlowInstanceID = wire.FlowInstanceID
	n.Status = wire.Status
	n.ClusterID = wire.ClusterID
	n.Log = wire.Log
	n.ResourceMeter = wire.ResourceMeter
	return nil
}

// WorkflowInstance owns an id, the WorkflowSpec it was submitted against,
// and the node-instance arena produced by expansion (spec §3). The arena is
// appended once, at expansion time, and never renumbered.
type WorkflowInstance struct {
	ID    uuid.UUID
	Spec  WorkflowSpec
	Nodes []NodeInstance
}

// NodeByID finds a materialized NodeInstance by id.
func (w WorkflowInstance) NodeByID(id uuid.UUID) (NodeInstance, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeInstance{}, false
}

type workflowInstanceWire struct {
	ID    uuid.UUID      `json:"id"`
	Spec  WorkflowSpec   `json:"spec"`
	Nodes []NodeInstance `json:"nodes"`
}

func (w WorkflowInstance) MarshalJSON() ([]byte, error) {
	return json.Marshal(workflowInstanceWire{ID: w.ID, Spec: w.Spec, Nodes: w.Nodes})
}

func (w *WorkflowInstance) UnmarshalJSON(data []byte) error {
	var wire workflowInstanceWire
	if err := newStrictDecoder(data).Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal workflow instance: %w", err)
	}
	w.ID = wire.ID
	w.Spec = wire.Spec
	w.Nodes = wire.Nodes
	return nil
}
