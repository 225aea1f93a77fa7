// Package kernel is the public façade wiring the expander (C2), propagator
// (C3), compiler (C4), file-move coordinator (C5), and dispatchers (C6)
// behind a small API, grounded on the teacher's factory.go/adapter.go split
// (a package-level constructor plus a thin adapter over the chosen
// storage backend).
package kernel

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sciflow/kernel/internal/application/compiler"
	"github.com/sciflow/kernel/internal/application/dispatch"
	"github.com/sciflow/kernel/internal/application/expander"
	"github.com/sciflow/kernel/internal/application/filemove"
	"github.com/sciflow/kernel/internal/application/propagator"
	"github.com/sciflow/kernel/internal/domain"
	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"
	"github.com/sciflow/kernel/internal/infrastructure/config"
	"github.com/sciflow/kernel/internal/infrastructure/logger"
	"github.com/sciflow/kernel/internal/infrastructure/storage"
)

// Collaborators bundles every external capability the kernel needs (spec
// §6). Callers assemble one of these (directly, or via NewMemoryKernel) and
// pass it to New.
type Collaborators struct {
	WorkflowInstances domain.WorkflowInstanceRepository
	NodeInstances     domain.NodeInstanceRepository
	TextStorage       domain.TextStorageRepository
	SoftwareBlockList domain.SoftwareBlockListRepository
	InstalledSoftware domain.InstalledSoftwareRepository
	Clusters          domain.ClusterRepository
	PackageInfo       domain.PackageInfoGetter
	Distribution      domain.TaskDistributionService
	NodeStatus        domain.MessageQueueProducer[domain.TaskResult]
	NodeStatusTopic   string

	MoveRegistry domain.MoveRegistrationRepo
	Snapshots    domain.SnapshotService
	MetaStorage  domain.MetaStorageService
	Multipart    domain.MultipartService
	NetDisk      domain.NetDiskService
	UploadQueue  domain.MessageQueueProducer[domain.FileUploadCommand]
	UploadTopic  string
}

// Kernel is the orchestrator surface: submit a workflow, expand it,
// propagate slots between nodes, and dispatch each node instance (spec §1,
// §2).
type Kernel struct {
	Log          zerolog.Logger
	Collaborators Collaborators

	expander *expander.Expander
	fileMove *filemove.Coordinator
	software dispatch.SoftwareDispatcher
}

// New wires a Kernel from an already-assembled Collaborators set.
func New(log zerolog.Logger, cfg config.Config, collaborators Collaborators) *Kernel {
	if collaborators.NodeStatusTopic == "" {
		collaborators.NodeStatusTopic = cfg.NodeStatusTopic
	}
	if collaborators.UploadTopic == "" {
		collaborators.UploadTopic = cfg.UploadTopic
	}

	return &Kernel{
		Log:           log,
		Collaborators: collaborators,
		expander:      expander.New(log),
		fileMove: &filemove.Coordinator{
			Registry:    collaborators.MoveRegistry,
			Snapshots:   collaborators.Snapshots,
			MetaStorage: collaborators.MetaStorage,
			Multipart:   collaborators.Multipart,
			NetDisk:     collaborators.NetDisk,
			UploadQueue: collaborators.UploadQueue,
			UploadTopic: collaborators.UploadTopic,
			LeaseTTL:    cfg.DefaultLeaseTTL,
			Log:         log,
		},
		software: dispatch.SoftwareDispatcher{
			PackageInfo: collaborators.PackageInfo,
			Compiler: compiler.Collaborators{
				TextStorage:       collaborators.TextStorage,
				SoftwareBlockList: collaborators.SoftwareBlockList,
				InstalledSoftware: collaborators.InstalledSoftware,
			},
			Clusters:     collaborators.Clusters,
			Distribution: collaborators.Distribution,
			Log:          log,
		},
	}
}

// NewMemoryKernel wires a Kernel entirely against the in-memory storage
// package, suitable for local development and tests.
func NewMemoryKernel(cfg config.Config) *Kernel {
	log := logger.Setup(cfg.LogLevel)
	return New(log, cfg, Collaborators{
		WorkflowInstances: storage.NewWorkflowInstanceStore(),
		NodeInstances:     storage.NewNodeInstanceStore(),
		TextStorage:       storage.NewTextStore(),
		SoftwareBlockList: storage.NewSoftwareBlockList(),
		InstalledSoftware: storage.NewInstalledSoftware(),
		Clusters:          storage.NewClusterPool(),
		PackageInfo:       storage.NewManifestCatalog(),
		Distribution:      storage.NewTaskSink(),
		MoveRegistry:      storage.NewMoveRegistry(),
		Snapshots:         storage.NewSnapshotStore(),
		MetaStorage:       storage.NewMetaStore(),
		Multipart:         storage.NewMultipartStore(),
		NetDisk:           storage.NewNetDiskStore(),
	})
}

// SubmitWorkflow expands spec into a materialized WorkflowInstance and
// persists it (spec §4.2).
func (k *Kernel) SubmitWorkflow(ctx context.Context, spec domain.WorkflowSpec) (domain.WorkflowInstance, error) {
	if err := spec.ValidateStructure(); err != nil {
		return domain.WorkflowInstance{}, err
	}

	instance := domain.WorkflowInstance{ID: uuid.New(), Spec: spec}
	nodes, err := k.expander.Expand(ctx, instance)
	if err != nil {
		return domain.WorkflowInstance{}, err
	}
	instance.Nodes = nodes

	if err := k.Collaborators.WorkflowInstances.Update(ctx, instance); err != nil {
		return domain.WorkflowInstance{}, kernelerrors.RepoFailed(err)
	}
	if err := k.Collaborators.NodeInstances.SaveChanged(ctx, nodes); err != nil {
		return domain.WorkflowInstance{}, kernelerrors.RepoFailed(err)
	}
	return instance, nil
}

// PropagateInputs fills node's input slots from its upstream predecessors'
// nth prepared outputs (spec §4.3).
func (k *Kernel) PropagateInputs(spec domain.WorkflowSpec, upstreamByID map[uuid.UUID]domain.NodeSpec, node domain.NodeSpec, nth int) (domain.NodeSpec, error) {
	return propagator.CompleteNodeInputs(spec, upstreamByID, node, nth)
}

// DispatchNode runs whatever work node's kind calls for, transitions the
// instance's status, and publishes the resulting TaskResult on the
// configured node_status topic (spec §4.6).
func (k *Kernel) DispatchNode(ctx context.Context, node domain.NodeSpec, instance domain.NodeInstance) (domain.TaskResult, error) {
	dispatcher, err := dispatch.ForKind(node.Kind, k.software)
	if err != nil {
		return domain.TaskResult{}, err
	}

	if err := instance.Transition(domain.StatusRunning); err != nil {
		return domain.TaskResult{}, fmt.Errorf("kernel: %w", err)
	}
	if err := k.Collaborators.NodeInstances.Update(ctx, instance); err != nil {
		return domain.TaskResult{}, kernelerrors.RepoFailed(err)
	}

	result := dispatcher.Dispatch(ctx, node, instance)

	finalStatus := domain.StatusFinished
	if result.Status != "Success" {
		finalStatus = domain.StatusError
	}
	if err := instance.Transition(finalStatus); err != nil {
		k.Log.Warn().Err(err).Str("node", instance.ID.String()).Msg("dispatch result could not be reflected in status")
	} else if err := k.Collaborators.NodeInstances.Update(ctx, instance); err != nil {
		return result, kernelerrors.RepoFailed(err)
	}

	if k.Collaborators.NodeStatus != nil {
		if err := k.Collaborators.NodeStatus.SendObject(ctx, result, k.Collaborators.NodeStatusTopic); err != nil {
			return result, kernelerrors.TransportFailed(err)
		}
	}
	return result, nil
}

// FileMove exposes the file-move coordinator (C5) for callers that need its
// finer-grained operations (register, flash-upload probe, failure
// tagging).
func (k *Kernel) FileMove() *filemove.Coordinator {
	return k.fileMove
}
