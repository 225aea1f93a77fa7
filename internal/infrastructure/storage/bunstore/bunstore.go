// Package bunstore is a Postgres-backed reference implementation of
// domain.MoveRegistrationRepo, for operators who want move registrations
// to survive process restarts. It implements the same interface as
// storage.MoveRegistry so the file-move coordinator (C5) is agnostic to
// which backing store is wired in, mirroring the teacher's MemoryStore /
// BunStore split (internal/infrastructure/storage/memory.go,
// bun_store.go).
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/sciflow/kernel/internal/domain"
)

// MoveRegistrationModel is the bun row shape for a domain.MoveRegistration,
// with its tagged Destination stored as jsonb (spec §3).
type MoveRegistrationModel struct {
	bun.BaseModel `bun:"table:move_registrations,alias:mr"`

	ID             uuid.UUID  `bun:"id,pk"`
	MetaID         uuid.UUID  `bun:"meta_id,pk"`
	FileName       string     `bun:"file_name"`
	Destination    []byte     `bun:"destination,type:jsonb"`
	Hash           string     `bun:"hash"`
	HashAlgorithm  string     `bun:"hash_algorithm"`
	Size           int64      `bun:"size"`
	UserID         *uuid.UUID `bun:"user_id"`
	IsUploadFailed bool       `bun:"is_upload_failed"`
	FailedReason   string     `bun:"failed_reason"`
	ExpiresAt      time.Time  `bun:"expires_at"`
}

func toModel(reg domain.MoveRegistration, leaseTTLSeconds int64) (*MoveRegistrationModel, error) {
	destBytes, err := domain.MarshalDestination(reg.Destination)
	if err != nil {
		return nil, err
	}
	return &MoveRegistrationModel{
		ID: reg.ID, MetaID: reg.MetaID, FileName: reg.FileName, Destination: destBytes,
		Hash: reg.Hash, HashAlgorithm: reg.HashAlgorithm, Size: reg.Size,
		UserID: reg.UserID, IsUploadFailed: reg.IsUploadFailed, FailedReason: reg.FailedReason,
		ExpiresAt: time.Now().Add(time.Duration(leaseTTLSeconds) * time.Second),
	}, nil
}

func (m *MoveRegistrationModel) toDomain() (domain.MoveRegistration, error) {
	dest, err := domain.UnmarshalDestination(m.Destination)
	if err != nil {
		return domain.MoveRegistration{}, err
	}
	return domain.MoveRegistration{
		ID: m.ID, MetaID: m.MetaID, FileName: m.FileName, Destination: dest,
		Hash: m.Hash, HashAlgorithm: m.HashAlgorithm, Size: m.Size,
		UserID: m.UserID, IsUploadFailed: m.IsUploadFailed, FailedReason: m.FailedReason,
	}, nil
}

// Store persists move registrations against Postgres through bun.
type Store struct {
	db *bun.DB
}

// New opens a Postgres connection from dsn and returns a ready Store.
func New(dsn string) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &Store{db: bun.NewDB(sqldb, pgdialect.New())}
}

// InitSchema creates the move_registrations table if it doesn't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*MoveRegistrationModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

func (s *Store) InsertWithLease(ctx context.Context, reg domain.MoveRegistration, leaseTTLSeconds int64) error {
	model, err := toModel(reg, leaseTTLSeconds)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(model).On("CONFLICT (id, meta_id) DO UPDATE").Exec(ctx)
	return err
}

func (s *Store) UpdateWithLease(ctx context.Context, reg domain.MoveRegistration, leaseTTLSeconds int64) error {
	return s.InsertWithLease(ctx, reg, leaseTTLSeconds)
}

// moveIDOrMetaID extracts the fixed half of one of §4.5's two key-regex
// patterns ("movereg_*_{meta_id}" or "movereg_{move_id}_*"); the Postgres
// backend answers with direct column predicates instead of literal pattern
// matching.
func moveIDOrMetaID(pattern string) (moveID *uuid.UUID, metaID *uuid.UUID, err error) {
	const metaPrefix = "movereg_*_"
	const moveSuffix = "_*"
	const prefix = "movereg_"

	if len(pattern) > len(metaPrefix) && pattern[:len(metaPrefix)] == metaPrefix {
		id, err := uuid.Parse(pattern[len(metaPrefix):])
		if err != nil {
			return nil, nil, fmt.Errorf("bunstore: malformed meta id in pattern %q: %w", pattern, err)
		}
		return nil, &id, nil
	}
	if len(pattern) > len(prefix)+len(moveSuffix) && pattern[len(pattern)-len(moveSuffix):] == moveSuffix {
		id, err := uuid.Parse(pattern[len(prefix) : len(pattern)-len(moveSuffix)])
		if err != nil {
			return nil, nil, fmt.Errorf("bunstore: malformed move id in pattern %q: %w", pattern, err)
		}
		return &id, nil, nil
	}
	return nil, nil, fmt.Errorf("bunstore: unsupported key pattern %q", pattern)
}

func (s *Store) GetOneByKeyRegex(ctx context.Context, pattern string) (domain.MoveRegistration, error) {
	regs, err := s.GetAllByKeyRegex(ctx, pattern)
	if err != nil {
		return domain.MoveRegistration{}, err
	}
	if len(regs) == 0 {
		return domain.MoveRegistration{}, sql.ErrNoRows
	}
	return regs[0], nil
}

func (s *Store) GetAllByKeyRegex(ctx context.Context, pattern string) ([]domain.MoveRegistration, error) {
	moveID, metaID, err := moveIDOrMetaID(pattern)
	if err != nil {
		return nil, err
	}
	query := s.db.NewSelect().Model((*MoveRegistrationModel)(nil)).Where("expires_at > ?", time.Now())
	if moveID != nil {
		query = query.Where("id = ?", *moveID)
	}
	if metaID != nil {
		query = query.Where("meta_id = ?", *metaID)
	}
	var models []MoveRegistrationModel
	if err := query.Scan(ctx, &models); err != nil {
		return nil, err
	}
	out := make([]domain.MoveRegistration, 0, len(models))
	for i := range models {
		reg, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, nil
}

func (s *Store) GetUserByKeyRegex(ctx context.Context, pattern string) (*uuid.UUID, error) {
	reg, err := s.GetOneByKeyRegex(ctx, pattern)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reg.UserID, nil
}

func (s *Store) RemoveAllByKeyRegex(ctx context.Context, pattern string) error {
	moveID, metaID, err := moveIDOrMetaID(pattern)
	if err != nil {
		return err
	}
	query := s.db.NewDelete().Model((*MoveRegistrationModel)(nil))
	if moveID != nil {
		query = query.Where("id = ?", *moveID)
	}
	if metaID != nil {
		query = query.Where("meta_id = ?", *metaID)
	}
	_, err = query.Exec(ctx)
	return err
}
