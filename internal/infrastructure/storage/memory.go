// Package storage holds the in-memory collaborator implementations used
// for local wiring and tests, plus (in the bunstore subpackage) a
// Postgres-backed reference implementation of the lease registry. Grounded on the
// teacher's storage.MemoryStore (a plain map-per-aggregate store guarded by
// one mutex), generalized here to one xsync.MapOf per aggregate so each
// collaborator can be read/written without a shared lock across unrelated
// aggregates.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sciflow/kernel/internal/domain"
	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"
)

// WorkflowInstanceStore is an in-memory domain.WorkflowInstanceRepository.
type WorkflowInstanceStore struct {
	instances *xsync.MapOf[uuid.UUID, domain.WorkflowInstance]
}

func NewWorkflowInstanceStore() *WorkflowInstanceStore {
	return &WorkflowInstanceStore{instances: xsync.NewMapOf[uuid.UUID, domain.WorkflowInstance]()}
}

func (s *WorkflowInstanceStore) GetByID(_ context.Context, id uuid.UUID) (domain.WorkflowInstance, error) {
	instance, ok := s.instances.Load(id)
	if !ok {
		return domain.WorkflowInstance{}, kernelerrors.NoSuchNode(id.String())
	}
	return instance, nil
}

func (s *WorkflowInstanceStore) Update(_ context.Context, instance domain.WorkflowInstance) error {
	s.instances.Store(instance.ID, instance)
	return nil
}

func (s *WorkflowInstanceStore) SaveChanged(_ context.Context, instance domain.WorkflowInstance) error {
	s.instances.Store(instance.ID, instance)
	return nil
}

func (s *WorkflowInstanceStore) GetAll(_ context.Context) ([]domain.WorkflowInstance, error) {
	out := make([]domain.WorkflowInstance, 0, s.instances.Size())
	s.instances.Range(func(_ uuid.UUID, instance domain.WorkflowInstance) bool {
		out = append(out, instance)
		return true
	})
	return out, nil
}

// NodeInstanceStore is an in-memory domain.NodeInstanceRepository. Every
// NodeInstance, root or batch sub-instance, lives flat in one map (spec §9
// "dynamic construction of sub-nodes").
type NodeInstanceStore struct {
	nodes *xsync.MapOf[uuid.UUID, domain.NodeInstance]
}

func NewNodeInstanceStore() *NodeInstanceStore {
	return &NodeInstanceStore{nodes: xsync.NewMapOf[uuid.UUID, domain.NodeInstance]()}
}

func (s *NodeInstanceStore) GetByID(_ context.Context, id uuid.UUID) (domain.NodeInstance, error) {
	instance, ok := s.nodes.Load(id)
	if !ok {
		return domain.NodeInstance{}, kernelerrors.NoSuchNode(id.String())
	}
	return instance, nil
}

func (s *NodeInstanceStore) Update(_ context.Context, instance domain.NodeInstance) error {
	s.nodes.Store(instance.ID, instance)
	return nil
}

func (s *NodeInstanceStore) SaveChanged(_ context.Context, instances []domain.NodeInstance) error {
	for _, instance := range instances {
		s.nodes.Store(instance.ID, instance)
	}
	return nil
}

func (s *NodeInstanceStore) GetAll(_ context.Context, flowInstanceID uuid.UUID) ([]domain.NodeInstance, error) {
	out := make([]domain.NodeInstance, 0)
	s.nodes.Range(func(_ uuid.UUID, instance domain.NodeInstance) bool {
		if instance.FlowInstanceID == flowInstanceID {
			out = append(out, instance)
		}
		return true
	})
	return out, nil
}

// TextStore is an in-memory domain.TextStorageRepository.
type TextStore struct {
	entries *xsync.MapOf[string, domain.TextStorageEntry]
}

func NewTextStore() *TextStore {
	return &TextStore{entries: xsync.NewMapOf[string, domain.TextStorageEntry]()}
}

func (s *TextStore) GetByID(_ context.Context, key string) (domain.TextStorageEntry, error) {
	entry, ok := s.entries.Load(key)
	if !ok {
		return domain.TextStorageEntry{}, kernelerrors.NoSuchMaterial(key)
	}
	return entry, nil
}

func (s *TextStore) Insert(_ context.Context, entry domain.TextStorageEntry) error {
	s.entries.Store(entry.Key, entry)
	return nil
}

// SoftwareBlockList is an in-memory domain.SoftwareBlockListRepository; an
// empty instance blocks nothing.
type SoftwareBlockList struct {
	blocked *xsync.MapOf[string, bool]
}

func NewSoftwareBlockList() *SoftwareBlockList {
	return &SoftwareBlockList{blocked: xsync.NewMapOf[string, bool]()}
}

func (s *SoftwareBlockList) Block(name, version string) {
	s.blocked.Store(blockListKey(name, version), true)
}

func (s *SoftwareBlockList) IsSoftwareVersionBlocked(_ context.Context, name, version string) (bool, error) {
	_, blocked := s.blocked.Load(blockListKey(name, version))
	return blocked, nil
}

func blockListKey(name, version string) string { return name + "@" + version }

// InstalledSoftware is an in-memory domain.InstalledSoftwareRepository; an
// empty instance reports nothing installed, forcing a SoftwareDeployment
// entry on first dispatch.
type InstalledSoftware struct {
	satisfied *xsync.MapOf[string, bool]
}

func NewInstalledSoftware() *InstalledSoftware {
	return &InstalledSoftware{satisfied: xsync.NewMapOf[string, bool]()}
}

func (s *InstalledSoftware) MarkSatisfied(name, installArgs string) {
	s.satisfied.Store(installedKey(name, installArgs), true)
}

func (s *InstalledSoftware) IsSoftwareSatisfied(_ context.Context, name, installArgs string) (bool, error) {
	_, ok := s.satisfied.Load(installedKey(name, installArgs))
	return ok, nil
}

func installedKey(name, installArgs string) string { return name + "#" + installArgs }

// ClusterPool is an in-memory domain.ClusterRepository that round-robins
// over a fixed cluster id set.
type ClusterPool struct {
	ids []uuid.UUID
	next *xsync.Counter
}

func NewClusterPool(ids ...uuid.UUID) *ClusterPool {
	if len(ids) == 0 {
		ids = []uuid.UUID{uuid.New()}
	}
	return &ClusterPool{ids: ids, next: xsync.NewCounter()}
}

func (p *ClusterPool) GetRandomCluster(_ context.Context) (uuid.UUID, error) {
	n := p.next.Value()
	p.next.Add(1)
	return p.ids[int(n)%len(p.ids)], nil
}

// leaseEntry pairs a registration with the wall-clock time its lease
// expires; a lease past its TTL is treated as absent rather than actively
// swept (spec §4.5: "expired leases are garbage-collectible without
// notice").
type leaseEntry struct {
	reg       domain.MoveRegistration
	expiresAt time.Time
}

// MoveRegistry is an in-memory, lease-held domain.MoveRegistrationRepo keyed
// by "movereg_{move_id}_{meta_id}" exactly as spec §4.5 names it.
type MoveRegistry struct {
	entries *xsync.MapOf[string, leaseEntry]
	now     func() time.Time
}

func NewMoveRegistry() *MoveRegistry {
	return &MoveRegistry{entries: xsync.NewMapOf[string, leaseEntry](), now: time.Now}
}

func (r *MoveRegistry) InsertWithLease(_ context.Context, reg domain.MoveRegistration, leaseTTLSeconds int64) error {
	r.entries.Store(reg.Key(), leaseEntry{reg: reg, expiresAt: r.now().Add(time.Duration(leaseTTLSeconds) * time.Second)})
	return nil
}

func (r *MoveRegistry) UpdateWithLease(ctx context.Context, reg domain.MoveRegistration, leaseTTLSeconds int64) error {
	return r.InsertWithLease(ctx, reg, leaseTTLSeconds)
}

func (r *MoveRegistry) GetOneByKeyRegex(_ context.Context, pattern string) (domain.MoveRegistration, error) {
	var found domain.MoveRegistration
	ok := false
	r.entries.Range(func(key string, entry leaseEntry) bool {
		if r.expired(entry) {
			return true
		}
		if matchKeyPattern(pattern, key) {
			found = entry.reg
			ok = true
			return false
		}
		return true
	})
	if !ok {
		return domain.MoveRegistration{}, fmt.Errorf("storage: no move registration matches %q", pattern)
	}
	return found, nil
}

func (r *MoveRegistry) GetAllByKeyRegex(_ context.Context, pattern string) ([]domain.MoveRegistration, error) {
	var out []domain.MoveRegistration
	r.entries.Range(func(key string, entry leaseEntry) bool {
		if r.expired(entry) {
			return true
		}
		if matchKeyPattern(pattern, key) {
			out = append(out, entry.reg)
		}
		return true
	})
	return out, nil
}

func (r *MoveRegistry) GetUserByKeyRegex(ctx context.Context, pattern string) (*uuid.UUID, error) {
	reg, err := r.GetOneByKeyRegex(ctx, pattern)
	if err != nil {
		return nil, err
	}
	return reg.UserID, nil
}

func (r *MoveRegistry) RemoveAllByKeyRegex(_ context.Context, pattern string) error {
	var toDelete []string
	r.entries.Range(func(key string, entry leaseEntry) bool {
		if matchKeyPattern(pattern, key) {
			toDelete = append(toDelete, key)
		}
		return true
	})
	for _, key := range toDelete {
		r.entries.Delete(key)
	}
	return nil
}

func (r *MoveRegistry) expired(entry leaseEntry) bool {
	return r.now().After(entry.expiresAt)
}

// matchKeyPattern matches a single-"*"-wildcard pattern against key, the
// only shape §4.5's two access patterns ("movereg_*_{meta_id}" and
// "movereg_{move_id}_*") ever need.
func matchKeyPattern(pattern, key string) bool {
	star := -1
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' {
			star = i
			break
		}
	}
	if star < 0 {
		return pattern == key
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	if len(key) < len(prefix)+len(suffix) {
		return false
	}
	return key[:len(prefix)] == prefix && key[len(key)-len(suffix):] == suffix
}
