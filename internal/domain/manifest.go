package domain

import (
	"encoding/json"
	"fmt"
)

// Manifest is the joined package description the task compiler (C4)
// receives from PackageInfoGetter.get_computing_usecase (spec §4.4, §6):
// the use-case contract plus every material family it declares.
type Manifest struct {
	UsecaseSpec          UsecaseSpec
	ArgumentMaterials    []ArgumentMaterial
	EnvironmentMaterials []EnvironmentMaterial
	FilesomeInputs       []FilesomeInputMaterial
	FilesomeOutputs      []FilesomeOutputMaterial
	SoftwareSpec         SoftwareSpec
	TemplateFileInfos    []TemplateFileInfo
	CollectedOuts        []CollectedOutMaterial

	// SlotRefs maps an input-slot descriptor (matching a NodeSpec input
	// slot) to the materials it feeds once resolved (spec §4.4.2 Pass B:
	// "iterate the slot's ref_materials").
	SlotRefs map[string][]MaterialRef
}

// ArgumentMaterial is one argv slot, anchored in Pass A regardless of
// whether any input slot or template ever fills it (spec §4.4.1, §4.4.2:
// "flag_argument").
type ArgumentMaterial struct {
	Descriptor  string `json:"descriptor"`
	Sort        int    `json:"sort"`
	ValueFormat string `json:"valueFormat"`
}

// EnvironmentMaterial is one environment-variable slot, anchored in Pass A
// the same way ArgumentMaterial is ("flag_environment").
type EnvironmentMaterial struct {
	Descriptor  string `json:"descriptor"`
	Key         string `json:"key"`
	ValueFormat string `json:"valueFormat"`
}

// FilesomeInputPathForm describes how a filesome input material names the
// files it expects, consulted when a template's as_file_name ref needs a
// path but has no direct slot context (spec §4.4.2 Pass C).
type FilesomeInputPathForm interface {
	isFilesomeInputPathForm()
}

type FilesomeInputPathFormNormal struct {
	Path string `json:"path"`
}

type FilesomeInputPathFormBatched struct {
	Wildcard string `json:"wildcard"`
}

func (FilesomeInputPathFormNormal) isFilesomeInputPathForm()  {}
func (FilesomeInputPathFormBatched) isFilesomeInputPathForm() {}

func marshalFilesomeInputPathForm(f FilesomeInputPathForm) ([]byte, error) {
	switch v := f.(type) {
	case FilesomeInputPathFormNormal:
		return encodeTagged("Normal", v)
	case FilesomeInputPathFormBatched:
		return encodeTagged("Batched", v)
	default:
		return nil, fmt.Errorf("marshal filesome input path form: unhandled variant %T", f)
	}
}

func unmarshalFilesomeInputPathForm(data []byte) (FilesomeInputPathForm, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal filesome input path form: %w", err)
	}
	switch tag {
	case "Normal":
		var v FilesomeInputPathFormNormal
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "Batched":
		var v FilesomeInputPathFormBatched
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal filesome input path form: unknown tag %q", tag)
	}
}

// FilesomeInputMaterial declares one input-file family a use case expects.
type FilesomeInputMaterial struct {
	Descriptor string
	PathForm   FilesomeInputPathForm
}

type filesomeInputMaterialWire struct {
	Descriptor string          `json:"descriptor"`
	PathForm   json.RawMessage `json:"pathForm"`
}

func (m FilesomeInputMaterial) MarshalJSON() ([]byte, error) {
	pf, err := marshalFilesomeInputPathForm(m.PathForm)
	if err != nil {
		return nil, err
	}
	return json.Marshal(filesomeInputMaterialWire{Descriptor: m.Descriptor, PathForm: pf})
}

func (m *FilesomeInputMaterial) UnmarshalJSON(data []byte) error {
	var wire filesomeInputMaterialWire
	if err := newStrictDecoder(data).Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal filesome input material: %w", err)
	}
	pf, err := unmarshalFilesomeInputPathForm(wire.PathForm)
	if err != nil {
		return err
	}
	m.Descriptor = wire.Descriptor
	m.PathForm = pf
	return nil
}

// AppointedBy resolves the effective path of a file-output material: either
// an input slot's bound text overrides the material default, or the
// material's own default is used verbatim (spec §4.4.3).
type AppointedBy interface {
	isAppointedBy()
}

type AppointedByInputSlot struct {
	TextInputDescriptor string `json:"textInputDescriptor"`
}

type AppointedByMaterial struct{}

func (AppointedByInputSlot) isAppointedBy() {}
func (AppointedByMaterial) isAppointedBy()  {}

func marshalAppointedBy(a AppointedBy) ([]byte, error) {
	switch v := a.(type) {
	case AppointedByInputSlot:
		return encodeTagged("InputSlot", v)
	case AppointedByMaterial:
		return encodeTagged("Material", v)
	default:
		return nil, fmt.Errorf("marshal appointed by: unhandled variant %T", a)
	}
}

func unmarshalAppointedBy(data []byte) (AppointedBy, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal appointed by: %w", err)
	}
	switch tag {
	case "InputSlot":
		var v AppointedByInputSlot
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "Material":
		var v AppointedByMaterial
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal appointed by: unknown tag %q", tag)
	}
}

// FileOutOrigin tags how a File-kind use-case output slot is produced
// (spec §4.4.3): directly from the use case's own process (UsecaseOut), or
// routed through a named collected-out rule (CollectedOut).
type FileOutOrigin interface {
	isFileOutOrigin()
}

type FileOutOriginUsecaseOut struct{}

type FileOutOriginCollectedOut struct {
	Descriptor string `json:"descriptor"`
}

func (FileOutOriginUsecaseOut) isFileOutOrigin()   {}
func (FileOutOriginCollectedOut) isFileOutOrigin() {}

func marshalFileOutOrigin(o FileOutOrigin) ([]byte, error) {
	switch v := o.(type) {
	case FileOutOriginUsecaseOut:
		return encodeTagged("UsecaseOut", v)
	case FileOutOriginCollectedOut:
		return encodeTagged("CollectedOut", v)
	default:
		return nil, fmt.Errorf("marshal file out origin: unhandled variant %T", o)
	}
}

func unmarshalFileOutOrigin(data []byte) (FileOutOrigin, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal file out origin: %w", err)
	}
	switch tag {
	case "UsecaseOut":
		var v FileOutOriginUsecaseOut
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "CollectedOut":
		var v FileOutOriginCollectedOut
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal file out origin: unknown tag %q", tag)
	}
}

// FilesomeOutputMaterial declares one output-file family a use case
// produces, bound to a NodeSpec output slot of kind File (spec §4.4.3).
type FilesomeOutputMaterial struct {
	Descriptor  string
	Appointed   AppointedBy
	DefaultPath string
	IsBatched   bool
	Origin      FileOutOrigin
	Optional    bool
}

type filesomeOutputMaterialWire struct {
	Descriptor  string          `json:"descriptor"`
	Appointed   json.RawMessage `json:"appointed"`
	DefaultPath string          `json:"defaultPath"`
	IsBatched   bool            `json:"isBatched"`
	Origin      json.RawMessage `json:"origin"`
	Optional    bool            `json:"optional"`
}

func (m FilesomeOutputMaterial) MarshalJSON() ([]byte, error) {
	appointed, err := marshalAppointedBy(m.Appointed)
	if err != nil {
		return nil, err
	}
	origin, err := marshalFileOutOrigin(m.Origin)
	if err != nil {
		return nil, err
	}
	return json.Marshal(filesomeOutputMaterialWire{
		Descriptor: m.Descriptor, Appointed: appointed, DefaultPath: m.DefaultPath,
		IsBatched: m.IsBatched, Origin: origin, Optional: m.Optional,
	})
}

func (m *FilesomeOutputMaterial) UnmarshalJSON(data []byte) error {
	var wire filesomeOutputMaterialWire
	if err := newStrictDecoder(data).Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal filesome output material: %w", err)
	}
	appointed, err := unmarshalAppointedBy(wire.Appointed)
	if err != nil {
		return err
	}
	origin, err := unmarshalFileOutOrigin(wire.Origin)
	if err != nil {
		return err
	}
	m.Descriptor = wire.Descriptor
	m.Appointed = appointed
	m.DefaultPath = wire.DefaultPath
	m.IsBatched = wire.IsBatched
	m.Origin = origin
	m.Optional = wire.Optional
	return nil
}

// CollectFrom tags the source a collected-out rule reads from (spec
// §4.4.3).
type CollectFrom interface {
	isCollectFrom()
}

type CollectFromStdout struct{}
type CollectFromStderr struct{}
type CollectFromFileOut struct {
	Descriptor string `json:"descriptor"`
	// Path is the file declaration's resolved effective path, filled in by
	// the compiler at compile time (spec §4.4.3: "FileOut requires ...
	// resolving its effective path").
	Path string `json:"path,omitempty"`
}

func (CollectFromStdout) isCollectFrom()  {}
func (CollectFromStderr) isCollectFrom()  {}
func (CollectFromFileOut) isCollectFrom() {}

func marshalCollectFrom(c CollectFrom) ([]byte, error) {
	switch v := c.(type) {
	case CollectFromStdout:
		return encodeTagged("Stdout", v)
	case CollectFromStderr:
		return encodeTagged("Stderr", v)
	case CollectFromFileOut:
		return encodeTagged("FileOut", v)
	default:
		return nil, fmt.Errorf("marshal collect from: unhandled variant %T", c)
	}
}

func unmarshalCollectFrom(data []byte) (CollectFrom, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal collect from: %w", err)
	}
	switch tag {
	case "Stdout":
		var v CollectFromStdout
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "Stderr":
		var v CollectFromStderr
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "FileOut":
		var v CollectFromFileOut
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal collect from: unknown tag %q", tag)
	}
}

// CollectRule tags how the raw collected text is reduced (spec §4.4.3).
type CollectRule interface {
	isCollectRule()
}

type CollectRuleRegex struct {
	Pattern string `json:"pattern"`
}
type CollectRuleTopLines struct {
	N int `json:"n"`
}
type CollectRuleBottomLines struct {
	N int `json:"n"`
}

func (CollectRuleRegex) isCollectRule()      {}
func (CollectRuleTopLines) isCollectRule()   {}
func (CollectRuleBottomLines) isCollectRule() {}

func marshalCollectRule(c CollectRule) ([]byte, error) {
	switch v := c.(type) {
	case CollectRuleRegex:
		return encodeTagged("Regex", v)
	case CollectRuleTopLines:
		return encodeTagged("TopLines", v)
	case CollectRuleBottomLines:
		return encodeTagged("BottomLines", v)
	default:
		return nil, fmt.Errorf("marshal collect rule: unhandled variant %T", c)
	}
}

func unmarshalCollectRule(data []byte) (CollectRule, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal collect rule: %w", err)
	}
	switch tag {
	case "Regex":
		var v CollectRuleRegex
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "TopLines":
		var v CollectRuleTopLines
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "BottomLines":
		var v CollectRuleBottomLines
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal collect rule: unknown tag %q", tag)
	}
}

// CollectTo tags the destination of a collected-out rule: a text id or a
// file path+id (spec §4.4.3).
type CollectTo interface {
	isCollectTo()
}

type CollectToText struct {
	ID string `json:"id"`
}

type CollectToFile struct {
	Path string `json:"path"`
	ID   string `json:"id"`
}

func (CollectToText) isCollectTo() {}
func (CollectToFile) isCollectTo() {}

func marshalCollectTo(c CollectTo) ([]byte, error) {
	switch v := c.(type) {
	case CollectToText:
		return encodeTagged("Text", v)
	case CollectToFile:
		return encodeTagged("File", v)
	default:
		return nil, fmt.Errorf("marshal collect to: unhandled variant %T", c)
	}
}

func unmarshalCollectTo(data []byte) (CollectTo, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal collect to: %w", err)
	}
	switch tag {
	case "Text":
		var v CollectToText
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "File":
		var v CollectToFile
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal collect to: unknown tag %q", tag)
	}
}

// CollectedOutMaterial is one use-case output-collection rule: read `From`,
// reduce by `Rule`, write to `ToSlotDescriptor` on the node (spec §4.4.3).
type CollectedOutMaterial struct {
	Descriptor       string
	From             CollectFrom
	Rule             CollectRule
	ToSlotDescriptor string
	Optional         bool
}

type collectedOutMaterialWire struct {
	Descriptor       string          `json:"descriptor"`
	From             json.RawMessage `json:"from"`
	Rule             json.RawMessage `json:"rule"`
	ToSlotDescriptor string          `json:"toSlotDescriptor"`
	Optional         bool            `json:"optional"`
}

func (m CollectedOutMaterial) MarshalJSON() ([]byte, error) {
	from, err := marshalCollectFrom(m.From)
	if err != nil {
		return nil, err
	}
	rule, err := marshalCollectRule(m.Rule)
	if err != nil {
		return nil, err
	}
	return json.Marshal(collectedOutMaterialWire{
		Descriptor: m.Descriptor, From: from, Rule: rule,
		ToSlotDescriptor: m.ToSlotDescriptor, Optional: m.Optional,
	})
}

func (m *CollectedOutMaterial) UnmarshalJSON(data []byte) error {
	var wire collectedOutMaterialWire
	if err := newStrictDecoder(data).Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal collected out material: %w", err)
	}
	from, err := unmarshalCollectFrom(wire.From)
	if err != nil {
		return err
	}
	rule, err := unmarshalCollectRule(wire.Rule)
	if err != nil {
		return err
	}
	m.Descriptor = wire.Descriptor
	m.From = from
	m.Rule = rule
	m.ToSlotDescriptor = wire.ToSlotDescriptor
	m.Optional = wire.Optional
	return nil
}

// TemplateFileInfo declares one template file a use case renders during
// Pass C (spec §4.4.2).
type TemplateFileInfo struct {
	Descriptor string
	FileName   string
	Content    string

	// AsContentRefs route the rendered string the same way Pass B routes a
	// slot's literal (Arg/Env/StdIn/Template refs).
	AsContentRefs []MaterialRef

	// AsFileNameTargets names the FileInputRef slot descriptors whose
	// resolved input file is replaced inline by this template's rendered
	// content. When empty, the rendered content is instead added as a new
	// Input file named FileName.
	AsFileNameTargets []string
}

type templateFileInfoWire struct {
	Descriptor        string            `json:"descriptor"`
	FileName          string            `json:"fileName"`
	Content           string            `json:"content"`
	AsContentRefs     []json.RawMessage `json:"asContentRefs"`
	AsFileNameTargets []string          `json:"asFileNameTargets,omitempty"`
}

func (t TemplateFileInfo) MarshalJSON() ([]byte, error) {
	refs := make([]json.RawMessage, 0, len(t.AsContentRefs))
	for _, ref := range t.AsContentRefs {
		b, err := MarshalMaterialRef(ref)
		if err != nil {
			return nil, err
		}
		refs = append(refs, b)
	}
	return json.Marshal(templateFileInfoWire{
		Descriptor: t.Descriptor, FileName: t.FileName, Content: t.Content,
		AsContentRefs: refs, AsFileNameTargets: t.AsFileNameTargets,
	})
}

func (t *TemplateFileInfo) UnmarshalJSON(data []byte) error {
	var wire templateFileInfoWire
	if err := newStrictDecoder(data).Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal template file info: %w", err)
	}
	refs := make([]MaterialRef, 0, len(wire.AsContentRefs))
	for _, raw := range wire.AsContentRefs {
		ref, err := UnmarshalMaterialRef(raw)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}
	t.Descriptor = wire.Descriptor
	t.FileName = wire.FileName
	t.Content = wire.Content
	t.AsContentRefs = refs
	t.AsFileNameTargets = wire.AsFileNameTargets
	return nil
}

// MaterialRef is a tagged reference from a resolved slot (or rendered
// template) literal to its destination in the compiler's intermediate
// state (spec §4.4.2).
type MaterialRef interface {
	isMaterialRef()
}

type ArgRef struct {
	Descriptor     string `json:"descriptor"`
	Sort           int    `json:"sort"`
	PlaceholderNth int    `json:"placeholderNth"`
}

type EnvRef struct {
	Key            string `json:"key"`
	PlaceholderNth int    `json:"placeholderNth"`
}

type StdInRef struct{}

type TemplateRef struct {
	Descriptor string `json:"descriptor"`
	RefKey     string `json:"refKey"`
}

type FileInputRef struct {
	SlotDescriptor string `json:"slotDescriptor"`
}

func (ArgRef) isMaterialRef()       {}
func (EnvRef) isMaterialRef()       {}
func (StdInRef) isMaterialRef()     {}
func (TemplateRef) isMaterialRef()  {}
func (FileInputRef) isMaterialRef() {}

// MarshalMaterialRef encodes a MaterialRef as a flat tagged-union document.
func MarshalMaterialRef(r MaterialRef) ([]byte, error) {
	switch v := r.(type) {
	case ArgRef:
		return encodeTagged("ArgRef", v)
	case EnvRef:
		return encodeTagged("EnvRef", v)
	case StdInRef:
		return encodeTagged("StdInRef", v)
	case TemplateRef:
		return encodeTagged("TemplateRef", v)
	case FileInputRef:
		return encodeTagged("FileInputRef", v)
	default:
		return nil, fmt.Errorf("marshal material ref: unhandled variant %T", r)
	}
}

// UnmarshalMaterialRef decodes a flat tagged-union document into a
// MaterialRef.
func UnmarshalMaterialRef(data []byte) (MaterialRef, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal material ref: %w", err)
	}
	switch tag {
	case "ArgRef":
		var v ArgRef
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "EnvRef":
		var v EnvRef
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "StdInRef":
		var v StdInRef
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "TemplateRef":
		var v TemplateRef
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "FileInputRef":
		var v FileInputRef
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal material ref: unknown tag %q", tag)
	}
}

// FacilityKind tags how a use case is executed on the target cluster (spec
// §4.4.4, derived from SoftwareSpec).
type FacilityKind interface {
	isFacilityKind()
}

type FacilityKindSpack struct {
	Spec string `json:"spec"`
}

type FacilityKindSingularity struct {
	Image string `json:"image"`
}

func (FacilityKindSpack) isFacilityKind()       {}
func (FacilityKindSingularity) isFacilityKind() {}

// MarshalFacilityKind encodes a FacilityKind as a flat tagged-union
// document.
func MarshalFacilityKind(f FacilityKind) ([]byte, error) {
	switch v := f.(type) {
	case FacilityKindSpack:
		return encodeTagged("Spack", v)
	case FacilityKindSingularity:
		return encodeTagged("Singularity", v)
	default:
		return nil, fmt.Errorf("marshal facility kind: unhandled variant %T", f)
	}
}

// UnmarshalFacilityKind decodes a flat tagged-union document into a
// FacilityKind.
func UnmarshalFacilityKind(data []byte) (FacilityKind, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal facility kind: %w", err)
	}
	switch tag {
	case "Spack":
		var v FacilityKindSpack
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "Singularity":
		var v FacilityKindSingularity
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal facility kind: unknown tag %q", tag)
	}
}

// SoftwareSpec describes the packaged application's deployment shape,
// consulted in Pass finalization to build facility_kind and to key the
// block-list/installed-software collaborators (spec §4.4.4).
type SoftwareSpec struct {
	SoftwareName            string
	SoftwareVersion         string
	RequireInstallArguments string
	Facility                FacilityKind
}

type softwareSpecWire struct {
	SoftwareName            string          `json:"softwareName"`
	SoftwareVersion         string          `json:"softwareVersion"`
	RequireInstallArguments string          `json:"requireInstallArguments"`
	Facility                json.RawMessage `json:"facility"`
}

func (s SoftwareSpec) MarshalJSON() ([]byte, error) {
	facility, err := MarshalFacilityKind(s.Facility)
	if err != nil {
		return nil, err
	}
	return json.Marshal(softwareSpecWire{
		SoftwareName: s.SoftwareName, SoftwareVersion: s.SoftwareVersion,
		RequireInstallArguments: s.RequireInstallArguments, Facility: facility,
	})
}

func (s *SoftwareSpec) UnmarshalJSON(data []byte) error {
	var wire softwareSpecWire
	if err := newStrictDecoder(data).Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal software spec: %w", err)
	}
	facility, err := UnmarshalFacilityKind(wire.Facility)
	if err != nil {
		return err
	}
	s.SoftwareName = wire.SoftwareName
	s.SoftwareVersion = wire.SoftwareVersion
	s.RequireInstallArguments = wire.RequireInstallArguments
	s.Facility = facility
	return nil
}

// UsecaseSpec names the compiled command and its default resource
// envelope (spec §4.4.4: "requirements ... else the use-case default").
type UsecaseSpec struct {
	Name                string        `json:"name"`
	DefaultRequirements *Requirements `json:"defaultRequirements,omitempty"`
}

type manifestWire struct {
	UsecaseSpec          UsecaseSpec                `json:"usecaseSpec"`
	ArgumentMaterials    []ArgumentMaterial         `json:"argumentMaterials"`
	EnvironmentMaterials []EnvironmentMaterial      `json:"environmentMaterials"`
	FilesomeInputs       []FilesomeInputMaterial    `json:"filesomeInputs"`
	FilesomeOutputs      []FilesomeOutputMaterial   `json:"filesomeOutputs"`
	SoftwareSpec         SoftwareSpec               `json:"softwareSpec"`
	TemplateFileInfos    []TemplateFileInfo         `json:"templateFileInfos"`
	CollectedOuts        []CollectedOutMaterial     `json:"collectedOuts"`
	SlotRefs             map[string][]json.RawMessage `json:"slotRefs"`
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	slotRefs := make(map[string][]json.RawMessage, len(m.SlotRefs))
	for descriptor, refs := range m.SlotRefs {
		encoded := make([]json.RawMessage, 0, len(refs))
		for _, ref := range refs {
			b, err := MarshalMaterialRef(ref)
			if err != nil {
				return nil, err
			}
			encoded = append(encoded, b)
		}
		slotRefs[descriptor] = encoded
	}
	return json.Marshal(manifestWire{
		UsecaseSpec: m.UsecaseSpec, ArgumentMaterials: m.ArgumentMaterials,
		EnvironmentMaterials: m.EnvironmentMaterials, FilesomeInputs: m.FilesomeInputs,
		FilesomeOutputs: m.FilesomeOutputs, SoftwareSpec: m.SoftwareSpec,
		TemplateFileInfos: m.TemplateFileInfos, CollectedOuts: m.CollectedOuts,
		SlotRefs: slotRefs,
	})
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var wire manifestWire
	if err := newStrictDecoder(data).Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal manifest: %w", err)
	}
	slotRefs := make(map[string][]MaterialRef, len(wire.SlotRefs))
	for descriptor, raws := range wire.SlotRefs {
		refs := make([]MaterialRef, 0, len(raws))
		for _, raw := range raws {
			ref, err := UnmarshalMaterialRef(raw)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		slotRefs[descriptor] = refs
	}
	m.UsecaseSpec = wire.UsecaseSpec
	m.ArgumentMaterials = wire.ArgumentMaterials
	m.EnvironmentMaterials = wire.EnvironmentMaterials
	m.FilesomeInputs = wire.FilesomeInputs
	m.FilesomeOutputs = wire.FilesomeOutputs
	m.SoftwareSpec = wire.SoftwareSpec
	m.TemplateFileInfos = wire.TemplateFileInfos
	m.CollectedOuts = wire.CollectedOuts
	m.SlotRefs = slotRefs
	return nil
}
