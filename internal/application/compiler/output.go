package compiler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sciflow/kernel/internal/domain"
	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"
)

// resolveOutputs walks every use-case output declaration and produces the
// Output FileInfo entries and CollectedOut body entries they describe
// (spec §4.4.3).
func resolveOutputs(st *state, node domain.NodeSpec, manifest domain.Manifest) ([]domain.FileInfo, []domain.CollectedOut, error) {
	var outputFiles []domain.FileInfo
	var collected []domain.CollectedOut

	for _, fom := range manifest.FilesomeOutputs {
		path, err := resolvePath(fom.Appointed, fom.DefaultPath, st)
		if err != nil {
			return nil, nil, err
		}
		outSlot, ok := node.OutputSlotByDescriptor(fom.Descriptor)
		if !ok {
			return nil, nil, kernelerrors.NoSuchSlot(fom.Descriptor)
		}
		fileID, ok := outSlot.NthFileID(0)
		if !ok {
			return nil, nil, kernelerrors.MissingOutput(0)
		}

		switch origin := fom.Origin.(type) {
		case domain.FileOutOriginUsecaseOut:
			outputFiles = append(outputFiles, domain.FileInfoOutput{
				ID: fileID.String(), Path: path, IsPackage: fom.IsBatched, Optional: fom.Optional,
			})

		case domain.FileOutOriginCollectedOut:
			com, ok := collectedOutByDescriptor(manifest, origin.Descriptor)
			if !ok {
				return nil, nil, kernelerrors.NoSuchCollector(origin.Descriptor)
			}
			from, err := resolveCollectFrom(com.From, manifest, st)
			if err != nil {
				return nil, nil, err
			}
			collected = append(collected, domain.CollectedOut{
				From: from, Rule: com.Rule,
				To:       domain.CollectToFile{Path: path, ID: fileID.String()},
				Optional: com.Optional,
			})

		default:
			return nil, nil, fmt.Errorf("compiler: unhandled file out origin %T", fom.Origin)
		}
	}

	for _, com := range manifest.CollectedOuts {
		outSlot, ok := node.OutputSlotByDescriptor(com.ToSlotDescriptor)
		if !ok {
			return nil, nil, kernelerrors.NoSuchSlot(com.ToSlotDescriptor)
		}
		if _, isFile := outSlot.Kind.(domain.OutputSlotFile); isFile {
			// Handled above via the FilesomeOutputs/CollectedOut-origin loop.
			continue
		}
		textKind, ok := outSlot.Kind.(domain.OutputSlotText)
		if !ok {
			return nil, nil, kernelerrors.MismatchedCollectTarget(fmt.Sprintf("collected-out %q targets non-text/file slot %q", com.Descriptor, com.ToSlotDescriptor))
		}
		if len(textKind.AllTasksPreparedTextIDs) == 0 {
			return nil, nil, kernelerrors.MissingOutput(0)
		}
		from, err := resolveCollectFrom(com.From, manifest, st)
		if err != nil {
			return nil, nil, err
		}
		collected = append(collected, domain.CollectedOut{
			From: from, Rule: com.Rule,
			To:       domain.CollectToText{ID: textKind.AllTasksPreparedTextIDs[0]},
			Optional: com.Optional,
		})
	}

	return outputFiles, collected, nil
}

// resolvePath resolves a file-output material's effective path: an
// appointed input slot's resolved literal overrides the material default
// (spec §4.4.3).
func resolvePath(appointed domain.AppointedBy, defaultPath string, st *state) (string, error) {
	switch a := appointed.(type) {
	case domain.AppointedByInputSlot:
		literal, ok := st.slotLiterals[a.TextInputDescriptor]
		if !ok {
			return "", kernelerrors.NoSuchSlot(a.TextInputDescriptor)
		}
		if literal == nil {
			return "", kernelerrors.RequiredSlotEmpty(fmt.Sprintf("appointing slot %q is empty", a.TextInputDescriptor))
		}
		return *literal, nil
	case domain.AppointedByMaterial:
		return defaultPath, nil
	default:
		return "", fmt.Errorf("compiler: unhandled appointed-by variant %T", appointed)
	}
}

// resolveCollectFrom fills in CollectFromFileOut.Path by looking up the
// named file declaration's effective path (spec §4.4.3: "FileOut requires
// ... resolving its effective path").
func resolveCollectFrom(from domain.CollectFrom, manifest domain.Manifest, st *state) (domain.CollectFrom, error) {
	fileOut, ok := from.(domain.CollectFromFileOut)
	if !ok {
		return from, nil
	}
	fom, ok := filesomeOutputByDescriptor(manifest, fileOut.Descriptor)
	if !ok {
		return nil, kernelerrors.NoSuchMaterial(fileOut.Descriptor)
	}
	path, err := resolvePath(fom.Appointed, fom.DefaultPath, st)
	if err != nil {
		return nil, err
	}
	return domain.CollectFromFileOut{Descriptor: fileOut.Descriptor, Path: path}, nil
}

func collectedOutByDescriptor(manifest domain.Manifest, descriptor string) (domain.CollectedOutMaterial, bool) {
	for _, c := range manifest.CollectedOuts {
		if c.Descriptor == descriptor {
			return c, true
		}
	}
	return domain.CollectedOutMaterial{}, false
}

func filesomeOutputByDescriptor(manifest domain.Manifest, descriptor string) (domain.FilesomeOutputMaterial, bool) {
	for _, f := range manifest.FilesomeOutputs {
		if f.Descriptor == descriptor {
			return f, true
		}
	}
	return domain.FilesomeOutputMaterial{}, false
}

// finalize renders argument_formats/environment_formats into their final
// argv/env shape, assembles the UsecaseExecution entry, and prepends an
// optional SoftwareDeployment entry (spec §4.4.4).
func finalize(ctx context.Context, st *state, node domain.NodeSpec, manifest domain.Manifest, outputFiles []domain.FileInfo, collected []domain.CollectedOut, collaborators Collaborators) (domain.Task, error) {
	arguments, err := renderArguments(st.argumentFormats)
	if err != nil {
		return domain.Task{}, err
	}
	environments := renderEnvironments(st.environmentFormats)

	files := append(append([]domain.FileInfo(nil), st.files...), outputFiles...)

	requirements := node.Requirements
	if requirements == nil {
		requirements = manifest.UsecaseSpec.DefaultRequirements
	}

	execution := domain.UsecaseExecution{
		Name:         manifest.UsecaseSpec.Name,
		Arguments:    arguments,
		Environments: environments,
		Files:        files,
		FacilityKind: manifest.SoftwareSpec.Facility,
		StdIn:        st.stdIn,
		Requirements: requirements,
	}

	entries := make([]domain.TaskEntry, 0, 2+len(collected))

	blocked, err := collaborators.SoftwareBlockList.IsSoftwareVersionBlocked(ctx, manifest.SoftwareSpec.SoftwareName, manifest.SoftwareSpec.SoftwareVersion)
	if err != nil {
		return domain.Task{}, kernelerrors.RepoFailed(err)
	}
	satisfied, err := collaborators.InstalledSoftware.IsSoftwareSatisfied(ctx, manifest.SoftwareSpec.SoftwareName, manifest.SoftwareSpec.RequireInstallArguments)
	if err != nil {
		return domain.Task{}, kernelerrors.RepoFailed(err)
	}
	if !blocked && !satisfied {
		entries = append(entries, domain.SoftwareDeployment{FacilityKind: manifest.SoftwareSpec.Facility})
	}

	entries = append(entries, execution)
	for _, c := range collected {
		entries = append(entries, c)
	}

	return domain.Task{Entries: entries}, nil
}

func renderArguments(formats map[int]*argFormat) ([]string, error) {
	if len(formats) == 0 {
		return nil, nil
	}
	sorts := make([]int, 0, len(formats))
	for s := range formats {
		sorts = append(sorts, s)
	}
	sort.Ints(sorts)
	for i, s := range sorts {
		if s != i {
			return nil, kernelerrors.SortGap(fmt.Sprintf("argument sorts are not contiguous from 0: got %v", sorts))
		}
	}

	arguments := make([]string, 0, len(sorts))
	for _, s := range sorts {
		af := formats[s]
		arguments = append(arguments, renderPlaceholders(af.format, af.fills))
	}
	return arguments, nil
}

func renderEnvironments(formats map[string]*envFormat) map[string]string {
	if len(formats) == 0 {
		return nil
	}
	environments := make(map[string]string, len(formats))
	for key, ef := range formats {
		environments[key] = renderPlaceholders(ef.format, ef.fills)
	}
	return environments
}

// renderPlaceholders replaces each "{{}}" occurrence in format, in order,
// with its corresponding fill (a nil fill renders empty, spec §4.4.4).
func renderPlaceholders(format string, fills map[int]*string) string {
	var b strings.Builder
	rest := format
	nth := 0
	for {
		idx := strings.Index(rest, "{{}}")
		if idx < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:idx])
		if fill, ok := fills[nth]; ok && fill != nil {
			b.WriteString(*fill)
		}
		rest = rest[idx+4:]
		nth++
	}
	return b.String()
}
