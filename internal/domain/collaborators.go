package domain

import (
	"context"

	"github.com/google/uuid"
)

// The interfaces below are the capability sets the kernel consumes from
// its host (spec §6). Every method is a suspension point under the
// cooperative-multitasking model (spec §5); the kernel holds no long-lived
// locks across any of them.

// WorkflowInstanceRepository persists WorkflowInstance aggregates.
type WorkflowInstanceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (WorkflowInstance, error)
	Update(ctx context.Context, instance WorkflowInstance) error
	SaveChanged(ctx context.Context, instance WorkflowInstance) error
	GetAll(ctx context.Context) ([]WorkflowInstance, error)
}

// NodeInstanceRepository persists individual NodeInstance records, flat in
// the arena (spec §9 "dynamic construction of sub-nodes").
type NodeInstanceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (NodeInstance, error)
	Update(ctx context.Context, instance NodeInstance) error
	SaveChanged(ctx context.Context, instances []NodeInstance) error
	GetAll(ctx context.Context, flowInstanceID uuid.UUID) ([]NodeInstance, error)
}

// TextStorageEntry is one key/value pair resolved from TextStorageRepository.
type TextStorageEntry struct {
	Key   string
	Value string
}

// TextStorageRepository resolves text-slot keys to their stored values.
type TextStorageRepository interface {
	GetByID(ctx context.Context, key string) (TextStorageEntry, error)
	Insert(ctx context.Context, entry TextStorageEntry) error
}

// SoftwareBlockListRepository answers whether a software version is
// administratively blocked from deployment.
type SoftwareBlockListRepository interface {
	IsSoftwareVersionBlocked(ctx context.Context, name, version string) (bool, error)
}

// InstalledSoftwareRepository answers whether a software/install-args pair
// is already satisfied on the target facility.
type InstalledSoftwareRepository interface {
	IsSoftwareSatisfied(ctx context.Context, name, installArgs string) (bool, error)
}

// ClusterRepository is a stand-in for a pluggable cluster placement
// policy (spec §6).
type ClusterRepository interface {
	GetRandomCluster(ctx context.Context) (uuid.UUID, error)
}

// PackageInfoGetter fetches the joined manifest for a use case (spec §6,
// §4.4).
type PackageInfoGetter interface {
	GetComputingUsecase(ctx context.Context, softwareVersionID, usecaseVersionID uuid.UUID) (Manifest, error)
}

// TaskDistributionService forwards a compiled Task to a chosen cluster.
type TaskDistributionService interface {
	SendTask(ctx context.Context, task Task, clusterID uuid.UUID) error
}

// MessageQueueProducer publishes a typed message to an optional topic
// (spec §6 MessageQueueProducer<T>).
type MessageQueueProducer[T any] interface {
	SendObject(ctx context.Context, msg T, topic string) error
}

// TaskResult is the payload carried on the "node_status" topic (spec §6).
type TaskResult struct {
	ID            uuid.UUID      `json:"id"`
	Status        string         `json:"status"`
	Message       string         `json:"message"`
	UsedResources *ResourceMeter `json:"usedResources,omitempty"`
}

// FileUploadCommand is the payload carried on the configurable upload
// topic (spec §6, §4.5).
type FileUploadCommand struct {
	MoveID uuid.UUID `json:"moveId"`
	UserID uuid.UUID `json:"userId"`
}

// MoveRegistrationRepo is the lease-held registry C5 operates against
// (spec §6, §4.5). Key-regex queries mirror the two access patterns named
// in §4.5: by meta id ("movereg_*_{meta_id}") and by move id
// ("movereg_{move_id}_*").
type MoveRegistrationRepo interface {
	InsertWithLease(ctx context.Context, reg MoveRegistration, leaseTTLSeconds int64) error
	UpdateWithLease(ctx context.Context, reg MoveRegistration, leaseTTLSeconds int64) error
	GetOneByKeyRegex(ctx context.Context, pattern string) (MoveRegistration, error)
	GetAllByKeyRegex(ctx context.Context, pattern string) ([]MoveRegistration, error)
	GetUserByKeyRegex(ctx context.Context, pattern string) (*uuid.UUID, error)
	RemoveAllByKeyRegex(ctx context.Context, pattern string) error
}

// SnapshotService creates and queries node-scoped file snapshots.
type SnapshotService interface {
	FindByHash(ctx context.Context, hash string) (alreadyID uuid.UUID, found bool, err error)
	CreateSnapshot(ctx context.Context, dest DestinationSnapshot, fileName string) error
	RemoveMultipartArtifacts(ctx context.Context, metaID uuid.UUID) error
}

// MetaStorageService backs flash-upload dedup for StorageServer
// destinations.
type MetaStorageService interface {
	FindByHash(ctx context.Context, hash string) (alreadyID uuid.UUID, found bool, err error)
}

// MultipartService manages in-flight multipart upload artifacts.
type MultipartService interface {
	Abort(ctx context.Context, metaID uuid.UUID) error
}

// NetDiskService records a net-disk entry, either newly uploaded or
// flash-deduplicated against an existing object.
type NetDiskService interface {
	CreateEntry(ctx context.Context, metaID, alreadyID uuid.UUID, fileName string) error
}
