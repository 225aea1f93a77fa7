// Package filemove implements the file-move coordinator (C5): a
// lease-held registry that coordinates multi-step file uploads, snapshots,
// flash-upload (content-hash dedup), failure tagging, and downstream
// dispatch (spec §4.5).
package filemove

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sciflow/kernel/internal/domain"
	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"
	"github.com/sciflow/kernel/internal/infrastructure/tracing"
)

const defaultLeaseTTLSeconds = 24 * 60 * 60

// Coordinator drives the lease-held move registry against its
// collaborators (spec §4.5, §6).
type Coordinator struct {
	Registry         domain.MoveRegistrationRepo
	Snapshots        domain.SnapshotService
	MetaStorage      domain.MetaStorageService
	Multipart        domain.MultipartService
	NetDisk          domain.NetDiskService
	UploadQueue      domain.MessageQueueProducer[domain.FileUploadCommand]
	UploadTopic      string
	LeaseTTL         time.Duration
	Log              zerolog.Logger
}

func metaKeyPattern(metaID uuid.UUID) string {
	return fmt.Sprintf("movereg_*_%s", metaID)
}

func moveKeyPattern(moveID uuid.UUID) string {
	return fmt.Sprintf("movereg_%s_*", moveID)
}

func (c *Coordinator) leaseSeconds() int64 {
	if c.LeaseTTL <= 0 {
		return defaultLeaseTTLSeconds
	}
	return int64(c.LeaseTTL.Seconds())
}

// RegisterMove inserts info with the coordinator's lease TTL (spec §4.5
// register_move).
func (c *Coordinator) RegisterMove(ctx context.Context, info domain.MoveRegistration) error {
	ctx, span := tracing.StartSpan(ctx, "filemove.RegisterMove")
	defer span.End()

	if err := c.Registry.InsertWithLease(ctx, info, c.leaseSeconds()); err != nil {
		return kernelerrors.RepoFailed(err)
	}
	c.Log.Debug().Str("moveId", info.ID.String()).Str("metaId", info.MetaID.String()).Msg("registered move")
	return nil
}

// DoRegisteredMoves enumerates every registration for metaID and dispatches
// each according to its destination (spec §4.5 do_registered_moves).
// do_registered_moves is not serialized against concurrent invocations for
// the same meta_id (spec §5); idempotency rests on the collaborators.
func (c *Coordinator) DoRegisteredMoves(ctx context.Context, metaID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "filemove.DoRegisteredMoves")
	defer span.End()

	regs, err := c.Registry.GetAllByKeyRegex(ctx, metaKeyPattern(metaID))
	if err != nil {
		return kernelerrors.RepoFailed(err)
	}

	sawSnapshot := false
	for _, reg := range regs {
		switch dest := reg.Destination.(type) {
		case domain.DestinationSnapshot:
			if err := c.Snapshots.CreateSnapshot(ctx, dest, reg.FileName); err != nil {
				return kernelerrors.TransportFailed(err)
			}
			sawSnapshot = true

		case domain.DestinationStorageServer:
			cmd := domain.FileUploadCommand{MoveID: reg.ID, UserID: valueOrNil(reg.UserID)}
			if err := c.UploadQueue.SendObject(ctx, cmd, c.UploadTopic); err != nil {
				return kernelerrors.TransportFailed(err)
			}
			// Do not remove the registration yet; the uploader calls back.

		default:
			return fmt.Errorf("filemove: unhandled destination %T", reg.Destination)
		}
	}

	if sawSnapshot {
		if err := c.Multipart.Abort(ctx, metaID); err != nil {
			return kernelerrors.TransportFailed(err)
		}
		if err := c.Registry.RemoveAllByKeyRegex(ctx, metaKeyPattern(metaID)); err != nil {
			return kernelerrors.RepoFailed(err)
		}
	}

	c.Log.Debug().Str("metaId", metaID.String()).Int("moveCount", len(regs)).Msg("dispatched registered moves")
	return nil
}

// IfPossibleDoFlashUpload asks the destination-specific collaborator
// whether a file with this hash already exists; on a hit it registers the
// existing id directly and returns the FlashUpload signal, which the
// caller must treat as success-by-dedup rather than failure (spec §4.5,
// §7).
func (c *Coordinator) IfPossibleDoFlashUpload(ctx context.Context, info domain.MoveRegistration) error {
	ctx, span := tracing.StartSpan(ctx, "filemove.IfPossibleDoFlashUpload")
	defer span.End()

	switch dest := info.Destination.(type) {
	case domain.DestinationSnapshot:
		alreadyID, found, err := c.Snapshots.FindByHash(ctx, info.Hash)
		if err != nil {
			return kernelerrors.TransportFailed(err)
		}
		if !found {
			return nil
		}
		snapshotDest := domain.DestinationSnapshot{NodeID: dest.NodeID, Timestamp: dest.Timestamp, FileID: alreadyID}
		if err := c.Snapshots.CreateSnapshot(ctx, snapshotDest, info.FileName); err != nil {
			return kernelerrors.TransportFailed(err)
		}
		c.Log.Info().Str("hash", info.Hash).Str("alreadyId", alreadyID.String()).Msg("flash upload dedup via snapshot")
		return kernelerrors.FlashUpload(info.Hash, info.MetaID.String(), alreadyID.String())

	case domain.DestinationStorageServer:
		alreadyID, found, err := c.MetaStorage.FindByHash(ctx, info.Hash)
		if err != nil {
			return kernelerrors.TransportFailed(err)
		}
		if !found {
			return nil
		}
		if err := c.NetDisk.CreateEntry(ctx, info.MetaID, alreadyID, info.FileName); err != nil {
			return kernelerrors.TransportFailed(err)
		}
		c.Log.Info().Str("hash", info.Hash).Str("alreadyId", alreadyID.String()).Msg("flash upload dedup via net disk")
		return kernelerrors.FlashUpload(info.Hash, info.MetaID.String(), alreadyID.String())

	default:
		return fmt.Errorf("filemove: unhandled destination %T", info.Destination)
	}
}

// SetAllMovesWithSameMetaIDAsFailed marks and re-persists every move for
// metaID with the same lease (spec §4.5).
func (c *Coordinator) SetAllMovesWithSameMetaIDAsFailed(ctx context.Context, metaID uuid.UUID, reason string) error {
	regs, err := c.Registry.GetAllByKeyRegex(ctx, metaKeyPattern(metaID))
	if err != nil {
		return kernelerrors.RepoFailed(err)
	}
	for _, reg := range regs {
		reg.IsUploadFailed = true
		reg.FailedReason = reason
		if err := c.Registry.UpdateWithLease(ctx, reg, c.leaseSeconds()); err != nil {
			return kernelerrors.RepoFailed(err)
		}
	}
	return nil
}

// SetMoveAsFailed marks and re-persists a single move with the same lease
// (spec §4.5).
func (c *Coordinator) SetMoveAsFailed(ctx context.Context, moveID uuid.UUID, reason string) error {
	reg, err := c.Registry.GetOneByKeyRegex(ctx, moveKeyPattern(moveID))
	if err != nil {
		return kernelerrors.NoSuchMove(moveID.String())
	}
	reg.IsUploadFailed = true
	reg.FailedReason = reason
	if err := c.Registry.UpdateWithLease(ctx, reg, c.leaseSeconds()); err != nil {
		return kernelerrors.RepoFailed(err)
	}
	return nil
}

// GetMoveInfo reads the single registration for moveID.
func (c *Coordinator) GetMoveInfo(ctx context.Context, moveID uuid.UUID) (domain.MoveRegistration, error) {
	reg, err := c.Registry.GetOneByKeyRegex(ctx, moveKeyPattern(moveID))
	if err != nil {
		return domain.MoveRegistration{}, kernelerrors.NoSuchMove(moveID.String())
	}
	return reg, nil
}

// GetUserID reads the user id bound to moveID's registration, if any.
func (c *Coordinator) GetUserID(ctx context.Context, moveID uuid.UUID) (*uuid.UUID, error) {
	userID, err := c.Registry.GetUserByKeyRegex(ctx, moveKeyPattern(moveID))
	if err != nil {
		return nil, kernelerrors.RepoFailed(err)
	}
	return userID, nil
}

// GetMetaIDFailedInfo reports whether any registration for metaID is
// marked failed, and why.
func (c *Coordinator) GetMetaIDFailedInfo(ctx context.Context, metaID uuid.UUID) (failed bool, reason string, err error) {
	regs, err := c.Registry.GetAllByKeyRegex(ctx, metaKeyPattern(metaID))
	if err != nil {
		return false, "", kernelerrors.RepoFailed(err)
	}
	for _, reg := range regs {
		if reg.IsUploadFailed {
			return true, reg.FailedReason, nil
		}
	}
	return false, "", nil
}

// RemoveAllWithMetaID deletes every registration for metaID.
func (c *Coordinator) RemoveAllWithMetaID(ctx context.Context, metaID uuid.UUID) error {
	if err := c.Registry.RemoveAllByKeyRegex(ctx, metaKeyPattern(metaID)); err != nil {
		return kernelerrors.RepoFailed(err)
	}
	return nil
}

func valueOrNil(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
