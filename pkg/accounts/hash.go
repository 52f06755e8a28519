package accounts

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/fortiblox/stratus-harness/internal/types"
)

// Fingerprint computes a digest over every account in the store.
//
// Accounts are hashed in ascending address order as
// pubkey || serialized_len (8) || Serialize(account), so two stores have the
// same fingerprint iff their contents are byte-identical. Tests use it to
// assert that a rollback really returned the store to its earlier state.
func Fingerprint(store Store) types.Hash {
	return SnapshotFingerprint(store.Snapshot())
}

// SnapshotFingerprint computes the Fingerprint of a snapshot's contents.
func SnapshotFingerprint(snap *Snapshot) types.Hash {
	h := blake3.New()
	var lenBuf [8]byte

	for _, addr := range snap.Addresses() {
		data := snap.accounts[addr].Serialize()
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))

		h.Write(addr[:])
		h.Write(lenBuf[:])
		h.Write(data)
	}

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}
