package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// FileInput is one bound file's metadata, carried inside a File-kind slot
// (spec §3 Slot).
type FileInput struct {
	MetaID      uuid.UUID `json:"metaId"`
	DisplayName string    `json:"displayName"`
	Hash        string    `json:"hash"`
	Size        int64     `json:"size"`
}

// InputSlotKind is the tagged content of an input slot: Text, File, or
// Unknown (spec §3 Slot). Unknown always fails slot-dependent passes with
// UnknownSlotKind; it exists so a node can declare a slot whose kind isn't
// yet resolvable without rejecting the document at parse time.
type InputSlotKind interface {
	isInputSlotKind()
}

// InputSlotText is a text slot; TextKeys are ids into the text-storage
// collaborator and may be nil (an empty slot).
type InputSlotText struct {
	TextKeys []string `json:"textKeys,omitempty"`
}

// InputSlotFile is a file slot; FileInputs may be nil (an empty slot).
// ExpectedFileName, when set, overrides each bound file's effective name.
type InputSlotFile struct {
	FileInputs       []FileInput `json:"fileInputs,omitempty"`
	ExpectedFileName string      `json:"expectedFileName,omitempty"`
	IsBatch          bool        `json:"isBatch"`
}

// InputSlotUnknown marks a slot whose kind the declaring node could not
// resolve; every pass that touches it must fail with UnknownSlotKind.
type InputSlotUnknown struct{}

func (InputSlotText) isInputSlotKind()    {}
func (InputSlotFile) isInputSlotKind()    {}
func (InputSlotUnknown) isInputSlotKind() {}

func marshalInputSlotKind(k InputSlotKind) ([]byte, error) {
	switch v := k.(type) {
	case InputSlotText:
		return encodeTagged("Text", v)
	case InputSlotFile:
		return encodeTagged("File", v)
	case InputSlotUnknown:
		return encodeTagged("Unknown", v)
	default:
		return nil, fmt.Errorf("marshal input slot kind: unhandled variant %T", k)
	}
}

func unmarshalInputSlotKind(data []byte) (InputSlotKind, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal input slot kind: %w", err)
	}
	switch tag {
	case "Text":
		var v InputSlotText
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "File":
		var v InputSlotFile
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "Unknown":
		var v InputSlotUnknown
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal input slot kind: unknown tag %q", tag)
	}
}

// InputSlot is a named, typed port on a NodeSpec (spec §3 Slot). Optional
// slots may be empty (Kind carries no content); required slots may not.
type InputSlot struct {
	Descriptor string
	Kind       InputSlotKind
	Optional   bool
}

// IsEmpty reports whether the slot carries no bound content.
func (s InputSlot) IsEmpty() bool {
	switch k := s.Kind.(type) {
	case InputSlotText:
		return len(k.TextKeys) == 0
	case InputSlotFile:
		return len(k.FileInputs) == 0
	case InputSlotUnknown:
		return true
	default:
		return true
	}
}

type inputSlotWire struct {
	Descriptor string          `json:"descriptor"`
	Kind       json.RawMessage `json:"kind"`
	Optional   bool            `json:"optional"`
}

func (s InputSlot) MarshalJSON() ([]byte, error) {
	kindBytes, err := marshalInputSlotKind(s.Kind)
	if err != nil {
		return nil, err
	}
	return json.Marshal(inputSlotWire{Descriptor: s.Descriptor, Kind: kindBytes, Optional: s.Optional})
}

func (s *InputSlot) UnmarshalJSON(data []byte) error {
	var wire inputSlotWire
	dec := newStrictDecoder(data)
	if err := dec.Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal input slot: %w", err)
	}
	kind, err := unmarshalInputSlotKind(wire.Kind)
	if err != nil {
		return err
	}
	s.Descriptor = wire.Descriptor
	s.Kind = kind
	s.Optional = wire.Optional
	return nil
}

// OutputSlotKind mirrors InputSlotKind but carries all_tasks_prepared_*
// arrays: one pre-allocated id per sub-task, allocated by
// propagator.ParseSubNodes before the sub-tasks run so downstream slot relations can reference an output before it is produced
// (spec §3, §4.3).
type OutputSlotKind interface {
	isOutputSlotKind()
}

type OutputSlotText struct {
	AllTasksPreparedTextIDs []string `json:"allTasksPreparedTextIds,omitempty"`
}

type OutputSlotFile struct {
	AllTasksPreparedFileIDs []uuid.UUID `json:"allTasksPreparedFileIds,omitempty"`
}

type OutputSlotUnknown struct{}

func (OutputSlotText) isOutputSlotKind()    {}
func (OutputSlotFile) isOutputSlotKind()    {}
func (OutputSlotUnknown) isOutputSlotKind() {}

func marshalOutputSlotKind(k OutputSlotKind) ([]byte, error) {
	switch v := k.(type) {
	case OutputSlotText:
		return encodeTagged("Text", v)
	case OutputSlotFile:
		return encodeTagged("File", v)
	case OutputSlotUnknown:
		return encodeTagged("Unknown", v)
	default:
		return nil, fmt.Errorf("marshal output slot kind: unhandled variant %T", k)
	}
}

func unmarshalOutputSlotKind(data []byte) (OutputSlotKind, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal output slot kind: %w", err)
	}
	switch tag {
	case "Text":
		var v OutputSlotText
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "File":
		var v OutputSlotFile
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "Unknown":
		var v OutputSlotUnknown
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal output slot kind: unknown tag %q", tag)
	}
}

// OutputSlot is a named, typed output port. Non-batch nodes carry exactly
// one pre-allocated id in their Kind's array; batch parents carry N.
type OutputSlot struct {
	Descriptor string
	Kind       OutputSlotKind
}

// NthTextID returns the nth pre-allocated text id, or ("", false) if out of
// range or not a text slot.
func (s OutputSlot) NthTextID(nth int) (string, bool) {
	k, ok := s.Kind.(OutputSlotText)
	if !ok || nth < 0 || nth >= len(k.AllTasksPreparedTextIDs) {
		return "", false
	}
	return k.AllTasksPreparedTextIDs[nth], true
}

// NthFileID returns the nth pre-allocated file id, or (uuid.Nil, false) if
// out of range or not a file slot.
func (s OutputSlot) NthFileID(nth int) (uuid.UUID, bool) {
	k, ok := s.Kind.(OutputSlotFile)
	if !ok || nth < 0 || nth >= len(k.AllTasksPreparedFileIDs) {
		return uuid.Nil, false
	}
	return k.AllTasksPreparedFileIDs[nth], true
}

type outputSlotWire struct {
	Descriptor string          `json:"descriptor"`
	Kind       json.RawMessage `json:"kind"`
}

func (s OutputSlot) MarshalJSON() ([]byte, error) {
	kindBytes, err := marshalOutputSlotKind(s.Kind)
	if err != nil {
		return nil, err
	}
	return json.Marshal(outputSlotWire{Descriptor: s.Descriptor, Kind: kindBytes})
}

func (s *OutputSlot) UnmarshalJSON(data []byte) error {
	var wire outputSlotWire
	dec := newStrictDecoder(data)
	if err := dec.Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal output slot: %w", err)
	}
	kind, err := unmarshalOutputSlotKind(wire.Kind)
	if err != nil {
		return err
	}
	s.Descriptor = wire.Descriptor
	s.Kind = kind
	return nil
}
