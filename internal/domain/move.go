package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Destination tags where a move registration ultimately lands (spec §3
// MoveRegistration).
type Destination interface {
	isDestination()
}

// DestinationSnapshot lands the file in a node's snapshot at a point in
// time.
type DestinationSnapshot struct {
	NodeID    uuid.UUID `json:"nodeId"`
	Timestamp time.Time `json:"timestamp"`
	FileID    uuid.UUID `json:"fileId"`
}

// DestinationStorageServer lands the file on the network-disk storage
// server; RecordNetDisk optionally forces a net-disk bookkeeping record.
type DestinationStorageServer struct {
	RecordNetDisk *bool `json:"recordNetDisk,omitempty"`
}

func (DestinationSnapshot) isDestination()      {}
func (DestinationStorageServer) isDestination() {}

// MarshalDestination encodes a Destination as a flat tagged-union
// document.
func MarshalDestination(d Destination) ([]byte, error) {
	switch v := d.(type) {
	case DestinationSnapshot:
		return encodeTagged("Snapshot", v)
	case DestinationStorageServer:
		return encodeTagged("StorageServer", v)
	default:
		return nil, fmt.Errorf("marshal destination: unhandled variant %T", d)
	}
}

// UnmarshalDestination decodes a flat tagged-union document into a
// Destination.
func UnmarshalDestination(data []byte) (Destination, error) {
	tag, err := peekTag(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal destination: %w", err)
	}
	switch tag {
	case "Snapshot":
		var v DestinationSnapshot
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "StorageServer":
		var v DestinationStorageServer
		if err := decodeTaggedStrict(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal destination: unknown tag %q", tag)
	}
}

// MoveRegistration is a lease-held intent to land a pending file at a final
// destination (spec §3, §4.5). The registry key is "movereg_{move_id}_
// {meta_id}"; multiple registrations may share a meta_id when the same
// physical upload fans out to several logical destinations.
type MoveRegistration struct {
	ID              uuid.UUID
	MetaID          uuid.UUID
	FileName        string
	Destination     Destination
	Hash            string
	HashAlgorithm   string
	Size            int64
	UserID          *uuid.UUID
	IsUploadFailed  bool
	FailedReason    string
}

// Key returns the registry key "movereg_{move_id}_{meta_id}" (spec §4.5).
func (m MoveRegistration) Key() string {
	return fmt.Sprintf("movereg_%s_%s", m.ID, m.MetaID)
}

type moveRegistrationWire struct {
	ID             uuid.UUID       `json:"id"`
	MetaID         uuid.UUID       `json:"metaId"`
	FileName       string          `json:"fileName"`
	Destination    json.RawMessage `json:"destination"`
	Hash           string          `json:"hash"`
	HashAlgorithm  string          `json:"hashAlgorithm"`
	Size           int64           `json:"size"`
	UserID         *uuid.UUID      `json:"userId,omitempty"`
	IsUploadFailed bool            `json:"isUploadFailed"`
	FailedReason   string          `json:"failedReason,omitempty"`
}

func (m MoveRegistration) MarshalJSON() ([]byte, error) {
	dest, err := MarshalDestination(m.Destination)
	if err != nil {
		return nil, err
	}
	return json.Marshal(moveRegistrationWire{
		ID: m.ID, MetaID: m.MetaID, FileName: m.FileName, Destination: dest,
		Hash: m.Hash, HashAlgorithm: m.HashAlgorithm, Size: m.Size,
		UserID: m.UserID, IsUploadFailed: m.IsUploadFailed, FailedReason: m.FailedReason,
	})
}

func (m *MoveRegistration) UnmarshalJSON(data []byte) error {
	var wire moveRegistrationWire
	if err := newStrictDecoder(data).Decode(&wire); err != nil {
		return fmt.Errorf("unmarshal move registration: %w", err)
	}
	dest, err := UnmarshalDestination(wire.Destination)
	if err != nil {
		return err
	}
	m.ID = wire.ID
	m.MetaID = wire.MetaID
	m.FileName = wire.FileName
	m.Destination = dest
	m.Hash = wire.Hash
	m.HashAlgorithm = wire.HashAlgorithm
	m.Size = wire.Size
	m.UserID = wire.UserID
	m.IsUploadFailed = wire.IsUploadFailed
	m.FailedReason = wire.FailedReason
	return nil
}
