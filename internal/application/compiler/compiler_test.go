package compiler_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciflow/kernel/internal/application/compiler"
	"github.com/sciflow/kernel/internal/domain"
	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"
	"github.com/sciflow/kernel/internal/infrastructure/storage"
)

func newCollaborators() compiler.Collaborators {
	return compiler.Collaborators{
		TextStorage:       storage.NewTextStore(),
		SoftwareBlockList: storage.NewSoftwareBlockList(),
		InstalledSoftware: storage.NewInstalledSoftware(),
	}
}

func baseManifest() domain.Manifest {
	return domain.Manifest{
		UsecaseSpec: domain.UsecaseSpec{Name: "align"},
		SoftwareSpec: domain.SoftwareSpec{
			SoftwareName:    "bwa",
			SoftwareVersion: "0.7",
			Facility:        domain.FacilityKindSpack{Spec: "bwa@0.7"},
		},
	}
}

func TestCompile_ArgumentAndEnvironmentAssembly(t *testing.T) {
	ctx := context.Background()
	collaborators := newCollaborators()
	require.NoError(t, collaborators.TextStorage.Insert(ctx, domain.TextStorageEntry{Key: "k1", Value: "reads.fq"}))

	node := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "align",
		Kind: domain.NodeKindSoftwareUsecaseComputing{},
		InputSlots: []domain.InputSlot{
			{Descriptor: "reads", Kind: domain.InputSlotText{TextKeys: []string{"k1"}}},
		},
	}

	manifest := baseManifest()
	manifest.ArgumentMaterials = []domain.ArgumentMaterial{
		{Descriptor: "input", Sort: 0, ValueFormat: "--in {{}}"},
	}
	manifest.EnvironmentMaterials = []domain.EnvironmentMaterial{
		{Descriptor: "threads", Key: "THREADS", ValueFormat: "{{}}"},
	}
	manifest.SlotRefs = map[string][]domain.MaterialRef{
		"reads": {domain.ArgRef{Descriptor: "input", Sort: 0, PlaceholderNth: 0}},
	}

	task, err := compiler.Compile(ctx, node, manifest, collaborators)
	require.NoError(t, err)

	exec, ok := task.Execution()
	require.True(t, ok)
	assert.Equal(t, []string{"--in reads.fq"}, exec.Arguments)
	assert.Equal(t, map[string]string{"THREADS": ""}, exec.Environments)
}

func TestCompile_RejectsSortGap(t *testing.T) {
	ctx := context.Background()
	collaborators := newCollaborators()

	node := domain.NodeSpec{ID: uuid.New(), Name: "align", Kind: domain.NodeKindSoftwareUsecaseComputing{}}
	manifest := baseManifest()
	manifest.ArgumentMaterials = []domain.ArgumentMaterial{
		{Descriptor: "a", Sort: 0, ValueFormat: "a"},
		{Descriptor: "b", Sort: 2, ValueFormat: "b"},
	}

	_, err := compiler.Compile(ctx, node, manifest, collaborators)
	require.Error(t, err)
	var kerr *kernelerrors.KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kernelerrors.CodeSortGap, kerr.Code)
}

func TestCompile_RequiredTextSlotEmpty(t *testing.T) {
	ctx := context.Background()
	collaborators := newCollaborators()

	node := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "align",
		Kind: domain.NodeKindSoftwareUsecaseComputing{},
		InputSlots: []domain.InputSlot{
			{Descriptor: "reads", Kind: domain.InputSlotText{}, Optional: false},
		},
	}
	manifest := baseManifest()

	_, err := compiler.Compile(ctx, node, manifest, collaborators)
	require.Error(t, err)
	var kerr *kernelerrors.KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kernelerrors.CodeRequiredSlotEmpty, kerr.Code)
}

func TestCompile_UnknownSlotKindRejected(t *testing.T) {
	ctx := context.Background()
	collaborators := newCollaborators()

	node := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "align",
		Kind: domain.NodeKindSoftwareUsecaseComputing{},
		InputSlots: []domain.InputSlot{
			{Descriptor: "mystery", Kind: domain.InputSlotUnknown{}},
		},
	}
	manifest := baseManifest()

	_, err := compiler.Compile(ctx, node, manifest, collaborators)
	require.Error(t, err)
	var kerr *kernelerrors.KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kernelerrors.CodeUnknownSlotKind, kerr.Code)
}

func TestCompile_TemplateRendersExprAndHandlebars(t *testing.T) {
	ctx := context.Background()
	collaborators := newCollaborators()
	require.NoError(t, collaborators.TextStorage.Insert(ctx, domain.TextStorageEntry{Key: "k1", Value: "3"}))

	node := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "align",
		Kind: domain.NodeKindSoftwareUsecaseComputing{},
		InputSlots: []domain.InputSlot{
			{Descriptor: "count", Kind: domain.InputSlotText{TextKeys: []string{"k1"}}},
		},
	}
	manifest := baseManifest()
	manifest.SlotRefs = map[string][]domain.MaterialRef{
		"count": {domain.TemplateRef{Descriptor: "tmpl", RefKey: "n"}},
	}
	manifest.TemplateFileInfos = []domain.TemplateFileInfo{
		{
			Descriptor: "tmpl",
			FileName:   "config.txt",
			Content:    "count=${n} label={{n}}",
		},
	}

	task, err := compiler.Compile(ctx, node, manifest, collaborators)
	require.NoError(t, err)

	exec, ok := task.Execution()
	require.True(t, ok)
	require.Len(t, exec.Files, 1)
	in, ok := exec.Files[0].(domain.FileInfoInput)
	require.True(t, ok)
	content, ok := in.Form.(domain.FileFormContent)
	require.True(t, ok)
	assert.Equal(t, "count=3 label=3", content.Content)
}

func TestCompile_ResolvesFileOutput(t *testing.T) {
	ctx := context.Background()
	collaborators := newCollaborators()

	outFileID := uuid.New()
	node := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "align",
		Kind: domain.NodeKindSoftwareUsecaseComputing{},
		OutputSlots: []domain.OutputSlot{
			{Descriptor: "bam", Kind: domain.OutputSlotFile{AllTasksPreparedFileIDs: []uuid.UUID{outFileID}}},
		},
	}
	manifest := baseManifest()
	manifest.FilesomeOutputs = []domain.FilesomeOutputMaterial{
		{
			Descriptor:  "bam",
			Appointed:   domain.AppointedByMaterial{},
			DefaultPath: "out.bam",
			Origin:      domain.FileOutOriginUsecaseOut{},
		},
	}

	task, err := compiler.Compile(ctx, node, manifest, collaborators)
	require.NoError(t, err)

	exec, ok := task.Execution()
	require.True(t, ok)
	require.Len(t, exec.Files, 1)
	out, ok := exec.Files[0].(domain.FileInfoOutput)
	require.True(t, ok)
	assert.Equal(t, outFileID.String(), out.ID)
	assert.Equal(t, "out.bam", out.Path)
}

func TestCompile_CollectTargetFileSlotAndMissingSlot(t *testing.T) {
	ctx := context.Background()
	collaborators := newCollaborators()

	node := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "align",
		Kind: domain.NodeKindSoftwareUsecaseComputing{},
		OutputSlots: []domain.OutputSlot{
			{Descriptor: "logfile", Kind: domain.OutputSlotFile{AllTasksPreparedFileIDs: []uuid.UUID{uuid.New()}}},
		},
	}
	manifest := baseManifest()
	manifest.CollectedOuts = []domain.CollectedOutMaterial{
		{
			Descriptor:       "tail",
			From:             domain.CollectFromStdout{},
			Rule:             domain.CollectRuleBottomLines{N: 5},
			ToSlotDescriptor: "logfile",
		},
	}

	_, err := compiler.Compile(ctx, node, manifest, collaborators)
	require.NoError(t, err) // File-kind target is handled via FilesomeOutputs, this just falls through with nothing collected.

	manifest.CollectedOuts[0].ToSlotDescriptor = "missing"
	_, err = compiler.Compile(ctx, node, manifest, collaborators)
	require.Error(t, err)
	var kerr *kernelerrors.KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kernelerrors.CodeNoSuchSlot, kerr.Code)
}

func TestCompile_SoftwareDeploymentPrependedWhenMissingAndNotBlocked(t *testing.T) {
	ctx := context.Background()
	collaborators := newCollaborators()

	node := domain.NodeSpec{ID: uuid.New(), Name: "align", Kind: domain.NodeKindSoftwareUsecaseComputing{}}
	manifest := baseManifest()

	task, err := compiler.Compile(ctx, node, manifest, collaborators)
	require.NoError(t, err)
	require.Len(t, task.Entries, 2)
	_, ok := task.Entries[0].(domain.SoftwareDeployment)
	assert.True(t, ok, "deployment entry should be prepended when the software is neither blocked nor already satisfied")
	_, ok = task.Entries[1].(domain.UsecaseExecution)
	assert.True(t, ok)
}

func TestCompile_SoftwareDeploymentSkippedWhenAlreadySatisfied(t *testing.T) {
	ctx := context.Background()
	installed := storage.NewInstalledSoftware()
	installed.MarkSatisfied("bwa", "")
	collaborators := compiler.Collaborators{
		TextStorage:       storage.NewTextStore(),
		SoftwareBlockList: storage.NewSoftwareBlockList(),
		InstalledSoftware: installed,
	}

	node := domain.NodeSpec{ID: uuid.New(), Name: "align", Kind: domain.NodeKindSoftwareUsecaseComputing{}}
	manifest := baseManifest()

	task, err := compiler.Compile(ctx, node, manifest, collaborators)
	require.NoError(t, err)
	require.Len(t, task.Entries, 1)
	_, ok := task.Entries[0].(domain.UsecaseExecution)
	assert.True(t, ok)
}
