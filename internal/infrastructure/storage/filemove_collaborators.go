package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sciflow/kernel/internal/domain"
)

// hashIndex is the common shape behind SnapshotStore and MetaStore: a
// content-hash to already-landed-id map, the structure flash-upload dedup
// reads against (spec §4.5).
type hashIndex struct {
	byHash *xsync.MapOf[string, uuid.UUID]
}

func newHashIndex() hashIndex {
	return hashIndex{byHash: xsync.NewMapOf[string, uuid.UUID]()}
}

func (h hashIndex) findByHash(hash string) (uuid.UUID, bool) {
	return h.byHash.Load(hash)
}

func (h hashIndex) record(hash string, id uuid.UUID) {
	h.byHash.Store(hash, id)
}

// SnapshotStore is an in-memory domain.SnapshotService.
type SnapshotStore struct {
	hashIndex
	snapshots *xsync.MapOf[uuid.UUID, domain.DestinationSnapshot]
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{hashIndex: newHashIndex(), snapshots: xsync.NewMapOf[uuid.UUID, domain.DestinationSnapshot]()}
}

func (s *SnapshotStore) FindByHash(_ context.Context, hash string) (uuid.UUID, bool, error) {
	id, found := s.findByHash(hash)
	return id, found, nil
}

func (s *SnapshotStore) CreateSnapshot(_ context.Context, dest domain.DestinationSnapshot, _ string) error {
	s.snapshots.Store(dest.FileID, dest)
	return nil
}

// RecordHash exposes test/bootstrap code a way to seed a dedup hit.
func (s *SnapshotStore) RecordHash(hash string, id uuid.UUID) { s.record(hash, id) }

func (s *SnapshotStore) RemoveMultipartArtifacts(_ context.Context, _ uuid.UUID) error {
	return nil
}

// MetaStore is an in-memory domain.MetaStorageService.
type MetaStore struct {
	hashIndex
}

func NewMetaStore() *MetaStore {
	return &MetaStore{hashIndex: newHashIndex()}
}

func (s *MetaStore) FindByHash(_ context.Context, hash string) (uuid.UUID, bool, error) {
	id, found := s.findByHash(hash)
	return id, found, nil
}

// RecordHash exposes test/bootstrap code a way to seed a dedup hit.
func (s *MetaStore) RecordHash(hash string, id uuid.UUID) { s.record(hash, id) }

// MultipartStore is an in-memory domain.MultipartService; Abort just
// removes any tracked in-flight artifact for metaID.
type MultipartStore struct {
	inFlight *xsync.MapOf[uuid.UUID, time.Time]
}

func NewMultipartStore() *MultipartStore {
	return &MultipartStore{inFlight: xsync.NewMapOf[uuid.UUID, time.Time]()}
}

func (s *MultipartStore) Track(metaID uuid.UUID) {
	s.inFlight.Store(metaID, time.Now())
}

func (s *MultipartStore) Abort(_ context.Context, metaID uuid.UUID) error {
	s.inFlight.Delete(metaID)
	return nil
}

// NetDiskEntry is one recorded net-disk bookkeeping row.
type NetDiskEntry struct {
	MetaID    uuid.UUID
	AlreadyID uuid.UUID
	FileName  string
}

// NetDiskStore is an in-memory domain.NetDiskService.
type NetDiskStore struct {
	entries *xsync.MapOf[uuid.UUID, NetDiskEntry]
}

func NewNetDiskStore() *NetDiskStore {
	return &NetDiskStore{entries: xsync.NewMapOf[uuid.UUID, NetDiskEntry]()}
}

func (s *NetDiskStore) CreateEntry(_ context.Context, metaID, alreadyID uuid.UUID, fileName string) error {
	s.entries.Store(metaID, NetDiskEntry{MetaID: metaID, AlreadyID: alreadyID, FileName: fileName})
	return nil
}

// Lookup exposes a recorded entry's already-landed id for test assertions.
func (s *NetDiskStore) Lookup(metaID uuid.UUID) (uuid.UUID, bool) {
	entry, found := s.entries.Load(metaID)
	return entry.AlreadyID, found
}
