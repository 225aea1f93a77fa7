package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sciflow/kernel/internal/domain"
)

// ManifestCatalog is an in-memory domain.PackageInfoGetter: a registry of
// joined manifests keyed by (software_version_id, usecase_version_id),
// standing in for the package-registry lookup spec §6 names (spec §4.4).
type ManifestCatalog struct {
	manifests *xsync.MapOf[manifestKey, domain.Manifest]
}

type manifestKey struct {
	SoftwareVersionID uuid.UUID
	UsecaseVersionID  uuid.UUID
}

func NewManifestCatalog() *ManifestCatalog {
	return &ManifestCatalog{manifests: xsync.NewMapOf[manifestKey, domain.Manifest]()}
}

// Register makes manifest resolvable under the given version pair.
func (c *ManifestCatalog) Register(softwareVersionID, usecaseVersionID uuid.UUID, manifest domain.Manifest) {
	c.manifests.Store(manifestKey{softwareVersionID, usecaseVersionID}, manifest)
}

func (c *ManifestCatalog) GetComputingUsecase(_ context.Context, softwareVersionID, usecaseVersionID uuid.UUID) (domain.Manifest, error) {
	manifest, ok := c.manifests.Load(manifestKey{softwareVersionID, usecaseVersionID})
	if !ok {
		return domain.Manifest{}, fmt.Errorf("storage: no manifest registered for software %s / usecase %s", softwareVersionID, usecaseVersionID)
	}
	return manifest, nil
}

// TaskSink is an in-memory domain.TaskDistributionService that records every
// sent task for inspection by tests or a local driver loop, standing in for
// the real cluster-transport client spec §6 names.
type TaskSink struct {
	sent *xsync.MapOf[uuid.UUID, []domain.Task]
}

func NewTaskSink() *TaskSink {
	return &TaskSink{sent: xsync.NewMapOf[uuid.UUID, []domain.Task]()}
}

func (s *TaskSink) SendTask(_ context.Context, task domain.Task, clusterID uuid.UUID) error {
	existing, _ := s.sent.Load(clusterID)
	s.sent.Store(clusterID, append(existing, task))
	return nil
}

// TasksForCluster returns every task recorded for clusterID, for assertions.
func (s *TaskSink) TasksForCluster(clusterID uuid.UUID) []domain.Task {
	tasks, _ := s.sent.Load(clusterID)
	return tasks
}
