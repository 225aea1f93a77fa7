// Package dispatch implements the use-case dispatchers (C6): one
// NodeKind-specific dispatcher per kind, each producing a TaskResult that
// the driver publishes on the node_status topic (spec §4.6).
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sciflow/kernel/internal/application/compiler"
	"github.com/sciflow/kernel/internal/domain"
	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"
	"github.com/sciflow/kernel/internal/infrastructure/tracing"
)

const (
	statusSuccess = "Success"
	statusFailed  = "Failed"
)

// Dispatcher runs whatever work a NodeInstance's kind calls for and reports
// the outcome as a TaskResult (spec §4.6).
type Dispatcher interface {
	Dispatch(ctx context.Context, node domain.NodeSpec, instance domain.NodeInstance) domain.TaskResult
}

// NoActionDispatcher reports success without contacting any collaborator
// (spec §4.6 scenario 1).
type NoActionDispatcher struct{}

func (NoActionDispatcher) Dispatch(_ context.Context, _ domain.NodeSpec, instance domain.NodeInstance) domain.TaskResult {
	return domain.TaskResult{ID: instance.ID, Status: statusSuccess}
}

// MilestoneDispatcher reports success without contacting any collaborator;
// a milestone marks a point in the graph, not work (spec §4.6 scenario 1).
type MilestoneDispatcher struct{}

func (MilestoneDispatcher) Dispatch(_ context.Context, _ domain.NodeSpec, instance domain.NodeInstance) domain.TaskResult {
	return domain.TaskResult{ID: instance.ID, Status: statusSuccess}
}

// ScriptDispatcher is a stub: ScriptKind currently enumerates only one
// (empty) variant, so there is nothing concrete to run yet (spec §9 Open
// Questions).
type ScriptDispatcher struct{}

func (ScriptDispatcher) Dispatch(_ context.Context, _ domain.NodeSpec, instance domain.NodeInstance) domain.TaskResult {
	return domain.TaskResult{ID: instance.ID, Status: statusSuccess, Message: "script execution not implemented"}
}

// SoftwareDispatcher compiles the node's manifest into a Task, picks a
// cluster, and forwards the task for execution (spec §4.4, §4.6).
type SoftwareDispatcher struct {
	PackageInfo   domain.PackageInfoGetter
	Compiler      compiler.Collaborators
	Clusters      domain.ClusterRepository
	Distribution  domain.TaskDistributionService
	Log           zerolog.Logger
}

func (d SoftwareDispatcher) Dispatch(ctx context.Context, node domain.NodeSpec, instance domain.NodeInstance) domain.TaskResult {
	ctx, span := tracing.StartSpan(ctx, "dispatch.Software")
	defer span.End()

	kind, ok := node.Kind.(domain.NodeKindSoftwareUsecaseComputing)
	if !ok {
		return failed(instance.ID, fmt.Sprintf("dispatch: node %s is not a software usecase node", node.ID))
	}

	manifest, err := d.PackageInfo.GetComputingUsecase(ctx, kind.SoftwareVersionID, kind.UsecaseVersionID)
	if err != nil {
		return failed(instance.ID, kernelerrors.PackageFetchFailed(err).Error())
	}

	task, err := compiler.Compile(ctx, node, manifest, d.Compiler)
	if err != nil {
		return failed(instance.ID, err.Error())
	}

	clusterID, err := d.Clusters.GetRandomCluster(ctx)
	if err != nil {
		return failed(instance.ID, kernelerrors.RepoFailed(err).Error())
	}

	if err := d.Distribution.SendTask(ctx, task, clusterID); err != nil {
		return failed(instance.ID, kernelerrors.TransportFailed(err).Error())
	}

	d.Log.Debug().Str("node", instance.ID.String()).Str("cluster", clusterID.String()).Msg("dispatched task")
	return domain.TaskResult{ID: instance.ID, Status: statusSuccess}
}

func failed(id uuid.UUID, message string) domain.TaskResult {
	return domain.TaskResult{ID: id, Status: statusFailed, Message: message}
}

// ForKind selects the dispatcher for a NodeKind (spec §4.6).
func ForKind(kind domain.NodeKind, software SoftwareDispatcher) (Dispatcher, error) {
	switch kind.(type) {
	case domain.NodeKindNoAction:
		return NoActionDispatcher{}, nil
	case domain.NodeKindMilestone:
		return MilestoneDispatcher{}, nil
	case domain.NodeKindScript:
		return ScriptDispatcher{}, nil
	case domain.NodeKindSoftwareUsecaseComputing:
		return software, nil
	default:
		return nil, fmt.Errorf("dispatch: unhandled node kind %T", kind)
	}
}
