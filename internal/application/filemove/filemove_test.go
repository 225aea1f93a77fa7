package filemove_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciflow/kernel/internal/application/filemove"
	"github.com/sciflow/kernel/internal/domain"
	kernelerrors "github.com/sciflow/kernel/internal/domain/errors"
	"github.com/sciflow/kernel/internal/infrastructure/mq"
	"github.com/sciflow/kernel/internal/infrastructure/storage"
)

func newCoordinator() (*filemove.Coordinator, *storage.SnapshotStore, *storage.MetaStore, *storage.NetDiskStore) {
	snapshots := storage.NewSnapshotStore()
	meta := storage.NewMetaStore()
	netDisk := storage.NewNetDiskStore()
	return &filemove.Coordinator{
		Registry:    storage.NewMoveRegistry(),
		Snapshots:   snapshots,
		MetaStorage: meta,
		Multipart:   storage.NewMultipartStore(),
		NetDisk:     netDisk,
		UploadQueue: mq.NewChannelProducer[domain.FileUploadCommand](4),
		UploadTopic: "uploads",
		LeaseTTL:    time.Hour,
		Log:         zerolog.Nop(),
	}, snapshots, meta, netDisk
}

func TestRegisterMove_ThenGetMoveInfo(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := newCoordinator()

	reg := domain.MoveRegistration{
		ID: uuid.New(), MetaID: uuid.New(), FileName: "a.txt",
		Destination: domain.DestinationStorageServer{},
		Hash:        "h1",
	}
	require.NoError(t, c.RegisterMove(ctx, reg))

	got, err := c.GetMoveInfo(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.FileName, got.FileName)
}

func TestGetMoveInfo_UnknownMove(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := newCoordinator()

	_, err := c.GetMoveInfo(ctx, uuid.New())
	require.Error(t, err)
	var kerr *kernelerrors.KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kernelerrors.CodeNoSuchMove, kerr.Code)
}

func TestDoRegisteredMoves_StorageServerSendsUploadCommand(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := newCoordinator()

	metaID := uuid.New()
	reg := domain.MoveRegistration{ID: uuid.New(), MetaID: metaID, FileName: "a.txt", Destination: domain.DestinationStorageServer{}}
	require.NoError(t, c.RegisterMove(ctx, reg))

	require.NoError(t, c.DoRegisteredMoves(ctx, metaID))

	producer, ok := c.UploadQueue.(*mq.ChannelProducer[domain.FileUploadCommand])
	require.True(t, ok)
	select {
	case env := <-producer.Subscribe():
		assert.Equal(t, reg.ID, env.Message.MoveID)
		assert.Equal(t, "uploads", env.Topic)
	default:
		t.Fatal("expected an upload command to have been published")
	}

	// StorageServer registrations are not removed until the uploader calls
	// back, so the registration should still be readable.
	_, err := c.GetMoveInfo(ctx, reg.ID)
	require.NoError(t, err)
}

func TestDoRegisteredMoves_SnapshotAbortsMultipartAndClearsRegistrations(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := newCoordinator()

	metaID := uuid.New()
	reg := domain.MoveRegistration{
		ID: uuid.New(), MetaID: metaID, FileName: "a.txt",
		Destination: domain.DestinationSnapshot{NodeID: uuid.New(), FileID: uuid.New()},
	}
	require.NoError(t, c.RegisterMove(ctx, reg))
	require.NoError(t, c.DoRegisteredMoves(ctx, metaID))

	_, err := c.GetMoveInfo(ctx, reg.ID)
	require.Error(t, err)
	var kerr *kernelerrors.KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kernelerrors.CodeNoSuchMove, kerr.Code)
}

func TestIfPossibleDoFlashUpload_StorageServerHit(t *testing.T) {
	ctx := context.Background()
	c, _, meta, netDisk := newCoordinator()

	alreadyID := uuid.New()
	meta.RecordHash("dup-hash", alreadyID)

	info := domain.MoveRegistration{
		ID: uuid.New(), MetaID: uuid.New(), FileName: "a.txt",
		Destination: domain.DestinationStorageServer{}, Hash: "dup-hash",
	}
	err := c.IfPossibleDoFlashUpload(ctx, info)
	require.Error(t, err)
	sig, ok := kernelerrors.AsSignal(err)
	require.True(t, ok)
	assert.Equal(t, "FlashUpload", sig.Name)
	assert.Equal(t, alreadyID.String(), sig.Details["alreadyId"])

	recorded, found := netDisk.Lookup(info.MetaID)
	require.True(t, found)
	assert.Equal(t, alreadyID, recorded)
}

func TestIfPossibleDoFlashUpload_NoHitReturnsNil(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := newCoordinator()

	info := domain.MoveRegistration{
		ID: uuid.New(), MetaID: uuid.New(), FileName: "a.txt",
		Destination: domain.DestinationStorageServer{}, Hash: "unseen-hash",
	}
	err := c.IfPossibleDoFlashUpload(ctx, info)
	assert.NoError(t, err)
}

func TestIfPossibleDoFlashUpload_SnapshotHit(t *testing.T) {
	ctx := context.Background()
	c, snapshots, _, _ := newCoordinator()

	alreadyID := uuid.New()
	snapshots.RecordHash("dup-hash", alreadyID)

	info := domain.MoveRegistration{
		ID: uuid.New(), MetaID: uuid.New(), FileName: "a.txt",
		Destination: domain.DestinationSnapshot{NodeID: uuid.New()}, Hash: "dup-hash",
	}
	err := c.IfPossibleDoFlashUpload(ctx, info)
	require.Error(t, err)
	sig, ok := kernelerrors.AsSignal(err)
	require.True(t, ok)
	assert.Equal(t, "FlashUpload", sig.Name)
}

func TestSetMoveAsFailed_MarksReasonOnSingleMove(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := newCoordinator()

	reg := domain.MoveRegistration{ID: uuid.New(), MetaID: uuid.New(), FileName: "a.txt", Destination: domain.DestinationStorageServer{}}
	require.NoError(t, c.RegisterMove(ctx, reg))

	require.NoError(t, c.SetMoveAsFailed(ctx, reg.ID, "network timeout"))

	got, err := c.GetMoveInfo(ctx, reg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsUploadFailed)
	assert.Equal(t, "network timeout", got.FailedReason)
}

func TestSetAllMovesWithSameMetaIDAsFailed_MarksEveryRegistration(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := newCoordinator()

	metaID := uuid.New()
	regA := domain.MoveRegistration{ID: uuid.New(), MetaID: metaID, FileName: "a.txt", Destination: domain.DestinationStorageServer{}}
	regB := domain.MoveRegistration{ID: uuid.New(), MetaID: metaID, FileName: "b.txt", Destination: domain.DestinationStorageServer{}}
	require.NoError(t, c.RegisterMove(ctx, regA))
	require.NoError(t, c.RegisterMove(ctx, regB))

	require.NoError(t, c.SetAllMovesWithSameMetaIDAsFailed(ctx, metaID, "disk full"))

	failed, reason, err := c.GetMetaIDFailedInfo(ctx, metaID)
	require.NoError(t, err)
	assert.True(t, failed)
	assert.Equal(t, "disk full", reason)
}
