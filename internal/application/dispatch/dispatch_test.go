package dispatch_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciflow/kernel/internal/application/compiler"
	"github.com/sciflow/kernel/internal/application/dispatch"
	"github.com/sciflow/kernel/internal/domain"
	"github.com/sciflow/kernel/internal/infrastructure/storage"
)

func TestForKind_NoActionSucceeds(t *testing.T) {
	d, err := dispatch.ForKind(domain.NodeKindNoAction{}, dispatch.SoftwareDispatcher{})
	require.NoError(t, err)
	instance := domain.NodeInstance{ID: uuid.New()}
	result := d.Dispatch(context.Background(), domain.NodeSpec{}, instance)
	assert.Equal(t, "Success", result.Status)
	assert.Equal(t, instance.ID, result.ID)
}

func TestForKind_MilestoneSucceeds(t *testing.T) {
	d, err := dispatch.ForKind(domain.NodeKindMilestone{}, dispatch.SoftwareDispatcher{})
	require.NoError(t, err)
	result := d.Dispatch(context.Background(), domain.NodeSpec{}, domain.NodeInstance{ID: uuid.New()})
	assert.Equal(t, "Success", result.Status)
}

func TestForKind_ScriptReturnsStubMessage(t *testing.T) {
	d, err := dispatch.ForKind(domain.NodeKindScript{}, dispatch.SoftwareDispatcher{})
	require.NoError(t, err)
	result := d.Dispatch(context.Background(), domain.NodeSpec{}, domain.NodeInstance{ID: uuid.New()})
	assert.Equal(t, "Success", result.Status)
	assert.Equal(t, "script execution not implemented", result.Message)
}

func newSoftwareDispatcher() (dispatch.SoftwareDispatcher, *storage.ManifestCatalog, *storage.TaskSink, *storage.ClusterPool) {
	manifests := storage.NewManifestCatalog()
	sink := storage.NewTaskSink()
	clusterID := uuid.New()
	clusters := storage.NewClusterPool(clusterID)
	d := dispatch.SoftwareDispatcher{
		PackageInfo: manifests,
		Compiler: compiler.Collaborators{
			TextStorage:       storage.NewTextStore(),
			SoftwareBlockList: storage.NewSoftwareBlockList(),
			InstalledSoftware: storage.NewInstalledSoftware(),
		},
		Clusters:     clusters,
		Distribution: sink,
		Log:          zerolog.Nop(),
	}
	return d, manifests, sink, clusters
}

func TestSoftwareDispatcher_SuccessPath(t *testing.T) {
	d, manifests, sink, clusters := newSoftwareDispatcher()

	softwareVersionID := uuid.New()
	usecaseVersionID := uuid.New()
	manifests.Register(softwareVersionID, usecaseVersionID, domain.Manifest{
		UsecaseSpec: domain.UsecaseSpec{Name: "align"},
		SoftwareSpec: domain.SoftwareSpec{
			SoftwareName: "bwa", SoftwareVersion: "0.7",
			Facility: domain.FacilityKindSpack{Spec: "bwa@0.7"},
		},
	})

	node := domain.NodeSpec{
		ID:   uuid.New(),
		Name: "align",
		Kind: domain.NodeKindSoftwareUsecaseComputing{SoftwareVersionID: softwareVersionID, UsecaseVersionID: usecaseVersionID},
	}
	instance := domain.NodeInstance{ID: uuid.New()}

	result := d.Dispatch(context.Background(), node, instance)
	require.Equal(t, "Success", result.Status, result.Message)

	clusterID, err := clusters.GetRandomCluster(context.Background())
	require.NoError(t, err)
	tasks := sink.TasksForCluster(clusterID)
	assert.NotEmpty(t, tasks)
}

func TestSoftwareDispatcher_WrongNodeKindFails(t *testing.T) {
	d, _, _, _ := newSoftwareDispatcher()
	node := domain.NodeSpec{ID: uuid.New(), Kind: domain.NodeKindNoAction{}}
	result := d.Dispatch(context.Background(), node, domain.NodeInstance{ID: uuid.New()})
	assert.Equal(t, "Failed", result.Status)
}

func TestSoftwareDispatcher_PackageFetchFailure(t *testing.T) {
	d, _, _, _ := newSoftwareDispatcher()
	node := domain.NodeSpec{
		ID:   uuid.New(),
		Kind: domain.NodeKindSoftwareUsecaseComputing{SoftwareVersionID: uuid.New(), UsecaseVersionID: uuid.New()},
	}
	result := d.Dispatch(context.Background(), node, domain.NodeInstance{ID: uuid.New()})
	assert.Equal(t, "Failed", result.Status)
	assert.NotEmpty(t, result.Message)
}

func TestSoftwareDispatcher_CompileFailurePropagates(t *testing.T) {
	d, manifests, _, _ := newSoftwareDispatcher()

	softwareVersionID := uuid.New()
	usecaseVersionID := uuid.New()
	manifests.Register(softwareVersionID, usecaseVersionID, domain.Manifest{
		ArgumentMaterials: []domain.ArgumentMaterial{
			{Descriptor: "a", Sort: 0, ValueFormat: "a"},
			{Descriptor: "b", Sort: 5, ValueFormat: "b"},
		},
	})
	node := domain.NodeSpec{
		ID:   uuid.New(),
		Kind: domain.NodeKindSoftwareUsecaseComputing{SoftwareVersionID: softwareVersionID, UsecaseVersionID: usecaseVersionID},
	}
	result := d.Dispatch(context.Background(), node, domain.NodeInstance{ID: uuid.New()})
	assert.Equal(t, "Failed", result.Status)
}
