package domain

import (
	"encoding/json"
	"fmt"
)

// FileForm tags how a File input's bytes are supplied: by reference to an
// already-uploaded meta id, or inline content produced by template
// rendering (spec §4.4.1).
type FileForm interface {
	isFileForm()
}

type FileFormID struct {
	MetaID string `json:"metaId"`
}

type FileFormContent struct {
	Content string `json:"content"`
}

func (FileFormID) isFileForm()      {}
func (FileFormContent) isFileForm() {}

func marshalFileForm(f FileForm) ([]byte, error) {
	switch v := f.(type) {
	case FileFormID:
		return encodeTagged("Id", v)
	case FileFormContent:
		return encodeTagged("Content", v)
	default:
		return nil, fmt.Errorf("marshal file form: unhandled variant %T", f)
	}
}

func unmarshalFileForm(data []byte) (FileForm, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal file form: %w", err)
	}
	switch tag {
	case "Id":
		var v FileFormID
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "Content":
		var v FileFormContent
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal file form: unknown tag %q", tag)
	}
}

// FileInfo tags one file attached to a compiled Task, either an Input the
// task consumes or an Output it is expected to produce (spec §4.4.1).
type FileInfo interface {
	isFileInfo()
}

type FileInfoInput struct {
	Path      string   `json:"path"`
	IsPackage bool     `json:"isPackage"`
	Form      FileForm `json:"form"`
}

type FileInfoOutput struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	IsPackage bool   `json:"isPackage"`
	Optional  bool   `json:"optional"`
}

func (FileInfoInput) isFileInfo()  {}
func (FileInfoOutput) isFileInfo() {}

func marshalFileInfo(f FileInfo) ([]byte, error) {
	switch v := f.(type) {
	case FileInfoInput:
		formBytes, err := marshalFileForm(v.Form)
		if err != nil {
			return nil, err
		}
		return encodeTagged("Input", struct {
			Path      string          `json:"path"`
			IsPackage bool            `json:"isPackage"`
			Form      json.RawMessage `json:"form"`
		}{v.Path, v.IsPackage, formBytes})
	case FileInfoOutput:
		return encodeTagged("Output", v)
	default:
		return nil, fmt.Errorf("marshal file info: unhandled variant %T", f)
	}
}

func unmarshalFileInfo(data []byte) (FileInfo, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal file info: %w", err)
	}
	switch tag {
	case "Input":
		var wire struct {
			Path      string          `json:"path"`
			IsPackage bool            `json:"isPackage"`
			Form      json.RawMessage `json:"form"`
		}
		if err := decodeTaggedStrict(data, &wire); err != nil {
			return nil, err
		}
		form, err := unmarshalFileForm(wire.Form)
		if err != nil {
			return nil, err
		}
		return FileInfoInput{Path: wire.Path, IsPackage: wire.IsPackage, Form: form}, nil
	case "Output":
		var v FileInfoOutput
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal file info: unknown tag %q", tag)
	}
}

// MarshalFileInfo encodes a FileInfo as a flat tagged-union document.
func MarshalFileInfo(f FileInfo) ([]byte, error) { return marshalFileInfo(f) }

// UnmarshalFileInfo decodes a flat tagged-union document into a FileInfo.
func UnmarshalFileInfo(data []byte) (FileInfo, error) { return unmarshalFileInfo(data) }

// StdIn tags at most one standard-input binding for a compiled task (spec
// §4.4.1).
type StdIn interface {
	isStdIn()
}

type StdInNone struct{}

type StdInText struct {
	Text string `json:"text"`
}

type StdInFile struct {
	Path string `json:"path"`
}

func (StdInNone) isStdIn() {}
func (StdInText) isStdIn() {}
func (StdInFile) isStdIn() {}

// MarshalStdIn encodes a StdIn as a flat tagged-union document.
func MarshalStdIn(s StdIn) ([]byte, error) {
	switch v := s.(type) {
	case StdInNone:
		return encodeTagged("None", v)
	case StdInText:
		return encodeTagged("Text", v)
	case StdInFile:
		return encodeTagged("File", v)
	default:
		return nil, fmt.Errorf("marshal std in: unhandled variant %T", s)
	}
}

// UnmarshalStdIn decodes a flat tagged-union document into a StdIn.
func UnmarshalStdIn(data []byte) (StdIn, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal std in: %w", err)
	}
	switch tag {
	case "None":
		var v StdInNone
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "Text":
		var v StdInText
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "File":
		var v StdInFile
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal std in: unknown tag %q", tag)
	}
}

// TaskEntry is one element of a compiled Task's ordered body (spec §3
// Task): an optional SoftwareDeployment, exactly one UsecaseExecution, then
// zero or more CollectedOut entries.
type TaskEntry interface {
	isTaskEntry()
}

type SoftwareDeployment struct {
	FacilityKind FacilityKind `json:"facilityKind"`
}

type UsecaseExecution struct {
	Name         string            `json:"name"`
	Arguments    []string          `json:"arguments"`
	Environments map[string]string `json:"environments"`
	Files        []FileInfo        `json:"files"`
	FacilityKind FacilityKind      `json:"facilityKind"`
	StdIn        StdIn             `json:"stdIn"`
	Requirements *Requirements     `json:"requirements,omitempty"`
}

type CollectedOut struct {
	From     CollectFrom `json:"from"`
	Rule     CollectRule `json:"rule"`
	To       CollectTo   `json:"to"`
	Optional bool        `json:"optional"`
}

func (SoftwareDeployment) isTaskEntry() {}
func (UsecaseExecution) isTaskEntry()   {}
func (CollectedOut) isTaskEntry()       {}

func marshalTaskEntry(e TaskEntry) ([]byte, error) {
	switch v := e.(type) {
	case SoftwareDeployment:
		facility, err := MarshalFacilityKind(v.FacilityKind)
		if err != nil {
			return nil, err
		}
		return encodeTagged("SoftwareDeployment", struct {
			FacilityKind json.RawMessage `json:"facilityKind"`
		}{facility})
	case UsecaseExecution:
		facility, err := MarshalFacilityKind(v.FacilityKind)
		if err != nil {
			return nil, err
		}
		stdIn, err := MarshalStdIn(v.StdIn)
		if err != nil {
			return nil, err
		}
		files := make([]json.RawMessage, 0, len(v.Files))
		for _, f := range v.Files {
			b, err := MarshalFileInfo(f)
			if err != nil {
				return nil, err
			}
			files = append(files, b)
		}
		return encodeTagged("UsecaseExecution", struct {
			Name         string            `json:"name"`
			Arguments    []string          `json:"arguments"`
			Environments map[string]string `json:"environments"`
			Files        []json.RawMessage `json:"files"`
			FacilityKind json.RawMessage   `json:"facilityKind"`
			StdIn        json.RawMessage   `json:"stdIn"`
			Requirements *Requirements     `json:"requirements,omitempty"`
		}{v.Name, v.Arguments, v.Environments, files, facility, stdIn, v.Requirements})
	case CollectedOut:
		from, err := marshalCollectFrom(v.From)
		if err != nil {
			return nil, err
		}
		rule, err := marshalCollectRule(v.Rule)
		if err != nil {
			return nil, err
		}
		to, err := marshalCollectTo(v.To)
		if err != nil {
			return nil, err
		}
		return encodeTagged("CollectedOut", struct {
			From     json.RawMessage `json:"from"`
			Rule     json.RawMessage `json:"rule"`
			To       json.RawMessage `json:"to"`
			Optional bool            `json:"optional"`
		}{from, rule, to, v.Optional})
	default:
		return nil, fmt.Errorf("marshal task entry: unhandled variant %T", e)
	}
}

func unmarshalTaskEntry(data []byte) (TaskEntry, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal task entry: %w", err)
	}
	switch tag {
	case "SoftwareDeployment":
		var wire struct {
			FacilityKind json.RawMessage `json:"facilityKind"`
		}
		if err := decodeTaggedStrict(data, &wire); err != nil {
			return nil, err
		}
		facility, err := UnmarshalFacilityKind(wire.FacilityKind)
		if err != nil {
			return nil, err
		}
		return SoftwareDeployment{FacilityKind: facility}, nil
	case "UsecaseExecution":
		var wire struct {
			Name         string            `json:"name"`
			Arguments    []string          `json:"arguments"`
			Environments map[string]string `json:"environments"`
			Files        []json.RawMessage `json:"files"`
			FacilityKind json.RawMessage   `json:"facilityKind"`
			StdIn        json.RawMessage   `json:"stdIn"`
			Requirements *Requirements     `json:"requirements,omitempty"`
		}
		if err := decodeTaggedStrict(data, &wire); err != nil {
			return nil, err
		}
		facility, err := UnmarshalFacilityKind(wire.FacilityKind)
		if err != nil {
			return nil, err
		}
		stdIn, err := UnmarshalStdIn(wire.StdIn)
		if err != nil {
			return nil, err
		}
		files := make([]FileInfo, 0, len(wire.Files))
		for _, raw := range wire.Files {
			f, err := UnmarshalFileInfo(raw)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
		return UsecaseExecution{
			Name: wire.Name, Arguments: wire.Arguments, Environments: wire.Environments,
			Files: files, FacilityKind: facility, StdIn: stdIn, Requirements: wire.Requirements,
		}, nil
	case "CollectedOut":
		var wire struct {
			From     json.RawMessage `json:"from"`
			Rule     json.RawMessage `json:"rule"`
			To       json.RawMessage `json:"to"`
			Optional bool            `json:"optional"`
		}
		if err := decodeTaggedStrict(data, &wire); err != nil {
			return nil, err
		}
		from, err := unmarshalCollectFrom(wire.From)
		if err != nil {
			return nil, err
		}
		rule, err := unmarshalCollectRule(wire.Rule)
		if err != nil {
			return nil, err
		}
		to, err := unmarshalCollectTo(wire.To)
		if err != nil {
			return nil, err
		}
		return CollectedOut{From: from, Rule: rule, To: to, Optional: wire.Optional}, nil
	default:
		return nil, fmt.Errorf("unmarshal task entry: unknown tag %q", tag)
	}
}

// Task is the materialized output of the task compiler (C4): an ordered
// body of entries (spec §3).
type Task struct {
	Entries []TaskEntry
}

// Execution returns the task's single UsecaseExecution entry.
func (t Task) Execution() (UsecaseExecution, bool) {
	for _, e := range t.Entries {
		if exec, ok := e.(UsecaseExecution); ok {
			return exec, true
		}
	}
	return UsecaseExecution{}, false
}

func (t Task) MarshalJSON() ([]byte, error) {
	entries := make([]json.RawMessage, 0, len(t.Entries))
	for _, e := range t.Entries {
		b, err := marshalTaskEntry(e)
		if err != nil {
			return nil, err
		}
		entries = append(entries, b)
	}
	return json.Marshal(struct {
		Entries []json.RawMessage `json:"entries"`
	}{entries})
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var wire struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := newStrictDecoder(data).Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal task: %w", err)
	}
	entries := make([]TaskEntry, 0, len(wire.Entries))
	for _, raw := range wire.Entries {
		e, err := unmarshalTaskEntry(raw)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	t.Entries = entries
	return nil
}
