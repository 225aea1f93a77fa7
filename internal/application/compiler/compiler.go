// Package compiler implements the task compiler (C4): given a NodeSpec of
// kind SoftwareUsecaseComputing plus its joined package manifest, it
// produces a fully materialized Task (spec §4.4). This is the densest
// routine in the kernel — three assembly passes over intermediate argument,
// environment, file, std-in, and template state, followed by output
// resolution and finalization.
package compiler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/sciflow/kernel/internal/domain"
	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"
)

// argFormat is one argument_formats[sort] entry (spec §4.4.1).
type argFormat struct {
	format string
	fills  map[int]*string
}

// envFormat is one environment_formats[key] entry (spec §4.4.1).
type envFormat struct {
	format string
	fills  map[int]*string
}

// state is the compiler's working intermediate data, owned by a single
// Compile call and never shared (spec §5).
type state struct {
	argumentFormats    map[int]*argFormat
	environmentFormats map[string]*envFormat
	files              []domain.FileInfo
	stdIn              domain.StdIn
	templatesKV        map[string]map[string]*string
	slotLiterals       map[string]*string
}

// Collaborators bundles the external lookups Compile needs beyond the
// node spec and manifest it is given directly (spec §6).
type Collaborators struct {
	TextStorage        domain.TextStorageRepository
	SoftwareBlockList  domain.SoftwareBlockListRepository
	InstalledSoftware  domain.InstalledSoftwareRepository
}

// Compile turns node + manifest into a Task (spec §4.4).
func Compile(ctx context.Context, node domain.NodeSpec, manifest domain.Manifest, collaborators Collaborators) (domain.Task, error) {
	st := &state{
		argumentFormats:    map[int]*argFormat{},
		environmentFormats: map[string]*envFormat{},
		stdIn:              domain.StdInNone{},
		templatesKV:        map[string]map[string]*string{},
		slotLiterals:       map[string]*string{},
	}

	passA(st, manifest)

	if err := passB(ctx, st, node, manifest, collaborators.TextStorage); err != nil {
		return domain.Task{}, err
	}

	if err := passC(st, manifest); err != nil {
		return domain.Task{}, err
	}

	outputFiles, collected, err := resolveOutputs(st, node, manifest)
	if err != nil {
		return domain.Task{}, err
	}

	return finalize(ctx, st, node, manifest, outputFiles, collected, collaborators)
}

// passA registers a bare argument_formats/environment_formats entry for
// every material the use case declares, anchoring argv/env order before any
// slot fills them (spec §4.4.2 Pass A).
func passA(st *state, manifest domain.Manifest) {
	for _, am := range manifest.ArgumentMaterials {
		st.argumentFormats[am.Sort] = &argFormat{format: am.ValueFormat, fills: map[int]*string{}}
	}
	for _, em := range manifest.EnvironmentMaterials {
		st.environmentFormats[em.Key] = &envFormat{format: em.ValueFormat, fills: map[int]*string{}}
	}
}

// passB resolves every input slot's content and routes it through the
// slot's declared ref_materials (spec §4.4.2 Pass B).
func passB(ctx context.Context, st *state, node domain.NodeSpec, manifest domain.Manifest, textStorage domain.TextStorageRepository) error {
	for _, slot := range node.InputSlots {
		literal, err := resolveSlotContent(ctx, st, slot, textStorage)
		if err != nil {
			return err
		}
		st.slotLiterals[slot.Descriptor] = literal

		for _, ref := range manifest.SlotRefs[slot.Descriptor] {
			if err := routeRef(st, ref, literal, slot); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolveSlotContent(ctx context.Context, st *state, slot domain.InputSlot, textStorage domain.TextStorageRepository) (*string, error) {
	switch kind := slot.Kind.(type) {
	case domain.InputSlotText:
		if len(kind.TextKeys) == 0 {
			if slot.Optional {
				return nil, nil
			}
			return nil, kernelerrors.RequiredSlotEmpty(fmt.Sprintf("slot %q is required but empty", slot.Descriptor))
		}
		values := make([]string, 0, len(kind.TextKeys))
		for _, key := range kind.TextKeys {
			entry, err := textStorage.GetByID(ctx, key)
			if err != nil {
				return nil, kernelerrors.RepoFailed(err)
			}
			values = append(values, entry.Value)
		}
		joined := strings.Join(values, " ")
		return &joined, nil

	case domain.InputSlotFile:
		if len(kind.FileInputs) == 0 {
			if slot.Optional {
				return nil, nil
			}
			return nil, kernelerrors.RequiredSlotEmpty(fmt.Sprintf("slot %q is required but empty", slot.Descriptor))
		}
		names := make([]string, 0, len(kind.FileInputs))
		for _, fi := range kind.FileInputs {
			name := fi.DisplayName
			if kind.ExpectedFileName != "" {
				name = kind.ExpectedFileName
			}
			names = append(names, name)
			st.files = append(st.files, domain.FileInfoInput{
				Path:      name,
				IsPackage: kind.IsBatch,
				Form:      domain.FileFormID{MetaID: fi.MetaID.String()},
			})
		}
		joined := strings.Join(names, " ")
		return &joined, nil

	case domain.InputSlotUnknown:
		return nil, kernelerrors.UnknownSlotKind(fmt.Sprintf("slot %q has Unknown kind", slot.Descriptor))

	default:
		return nil, fmt.Errorf("compiler: unhandled input slot kind %T", slot.Kind)
	}
}

// routeRef applies one ref_materials entry, filling the destination named
// by its tag with literal (spec §4.4.2 Pass B ref routing).
func routeRef(st *state, ref domain.MaterialRef, literal *string, slot domain.InputSlot) error {
	switch r := ref.(type) {
	case domain.ArgRef:
		af, ok := st.argumentFormats[r.Sort]
		if !ok {
			return kernelerrors.NoSuchMaterial(r.Descriptor)
		}
		af.fills[r.PlaceholderNth] = literal

	case domain.EnvRef:
		ef, ok := st.environmentFormats[r.Key]
		if !ok {
			return kernelerrors.NoSuchMaterial(r.Key)
		}
		ef.fills[r.PlaceholderNth] = literal

	case domain.StdInRef:
		value := ""
		if literal != nil {
			value = *literal
		}
		switch slot.Kind.(type) {
		case domain.InputSlotText:
			st.stdIn = domain.StdInText{Text: value}
		case domain.InputSlotFile:
			st.stdIn = domain.StdInFile{Path: value}
		default:
			return kernelerrors.MismatchedInputKind(fmt.Sprintf("slot %q cannot bind std_in", slot.Descriptor))
		}

	case domain.TemplateRef:
		kv, ok := st.templatesKV[r.Descriptor]
		if !ok {
			kv = map[string]*string{}
			st.templatesKV[r.Descriptor] = kv
		}
		kv[r.RefKey] = literal

	case domain.FileInputRef:
		// Already emitted into st.files during content resolution; no-op.

	default:
		return fmt.Errorf("compiler: unhandled material ref %T", ref)
	}
	return nil
}

// passC renders every template named in templatesKV and routes its
// output through as_content/as_file_name refs (spec §4.4.2 Pass C).
func passC(st *state, manifest domain.Manifest) error {
	descriptors := make([]string, 0, len(st.templatesKV))
	for d := range st.templatesKV {
		descriptors = append(descriptors, d)
	}
	sort.Strings(descriptors)

	for _, descriptor := range descriptors {
		tfi, ok := templateByDescriptor(manifest, descriptor)
		if !ok {
			return kernelerrors.NoSuchMaterial(descriptor)
		}
		rendered := renderTemplate(tfi.Content, st.templatesKV[descriptor])

		for _, ref := range tfi.AsContentRefs {
			if tr, ok := ref.(domain.TemplateRef); ok && tr.Descriptor == tfi.Descriptor {
				return kernelerrors.UnsupportedRefChain(fmt.Sprintf("template %q refers to itself", tfi.Descriptor))
			}
			renderedCopy := rendered
			if err := routeRef(st, ref, &renderedCopy, domain.InputSlot{Descriptor: tfi.Descriptor, Kind: domain.InputSlotText{}}); err != nil {
				return err
			}
		}

		if len(tfi.AsFileNameTargets) == 0 {
			st.files = append(st.files, domain.FileInfoInput{
				Path:      tfi.FileName,
				IsPackage: false,
				Form:      domain.FileFormContent{Content: rendered},
			})
			continue
		}
		for _, slotDescriptor := range tfi.AsFileNameTargets {
			replaced := false
			if literal := st.slotLiterals[slotDescriptor]; literal != nil {
				replaced = replaceInlineInput(st.files, *literal, rendered)
			}
			if !replaced {
				st.files = append(st.files, domain.FileInfoInput{
					Path:      tfi.FileName,
					IsPackage: false,
					Form:      domain.FileFormContent{Content: rendered},
				})
			}
		}
	}
	return nil
}

// replaceInlineInput overwrites the Form of the Input file whose Path
// equals path (a target slot's resolved literal) with inline rendered content
// (spec §4.4.2: "the rendered content replaces that input file inline").
func replaceInlineInput(files []domain.FileInfo, path, rendered string) bool {
	for i, f := range files {
		in, ok := f.(domain.FileInfoInput)
		if !ok {
			continue
		}
		if in.Path == path {
			files[i] = domain.FileInfoInput{Path: in.Path, IsPackage: in.IsPackage, Form: domain.FileFormContent{Content: rendered}}
			return true
		}
	}
	return false
}

func templateByDescriptor(manifest domain.Manifest, descriptor string) (domain.TemplateFileInfo, bool) {
	for _, t := range manifest.TemplateFileInfos {
		if t.Descriptor == descriptor {
			return t, true
		}
	}
	return domain.TemplateFileInfo{}, false
}

var exprPattern = "${"

// renderTemplate performs the Handlebars-compatible substitution named in
// spec §4.4.2/§9: `{{key}}` is replaced by kv[key] (empty string when the
// key is missing or bound to nil), enriched with an optional `${expr}` pass
// evaluated via expr-lang before the {{}} substitution runs, mirroring the
// teacher's TemplateProcessor ordering. Unresolved `${}` expressions render
// empty rather than failing the whole template.
func renderTemplate(content string, kv map[string]*string) string {
	env := make(map[string]any, len(kv))
	for k, v := range kv {
		if v == nil {
			env[k] = ""
		} else {
			env[k] = *v
		}
	}

	rendered := content
	if strings.Contains(rendered, exprPattern) {
		rendered = renderExprExpressions(rendered, env)
	}
	return renderHandlebars(rendered, kv)
}

func renderExprExpressions(content string, env map[string]any) string {
	var b strings.Builder
	rest := content
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start
		b.WriteString(rest[:start])
		expression := rest[start+2 : end]
		if program, err := expr.Compile(expression, expr.Env(env)); err == nil {
			if out, err := expr.Run(program, env); err == nil {
				b.WriteString(fmt.Sprintf("%v", out))
			}
		}
		rest = rest[end+1:]
	}
	return b.String()
}

func renderHandlebars(content string, kv map[string]*string) string {
	var b strings.Builder
	rest := content
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start
		b.WriteString(rest[:start])
		key := strings.TrimSpace(rest[start+2 : end])
		if v, ok := kv[key]; ok && v != nil {
			b.WriteString(*v)
		}
		rest = rest[end+2:]
	}
	return b.String()
}
