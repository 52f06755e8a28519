package accounts

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/stratus-harness/internal/types"
)

// Fixture format version.
const fixtureVersion uint32 = 1

// fixtureMagic identifies a harness fixture stream.
var fixtureMagic = []byte{'X', '1', 'H', 'F'}

// fixtureHeaderSize is version (4) + count (8) + fingerprint (32).
const fixtureHeaderSize = 44

// maxSerializedAccountSize bounds a single entry to prevent unbounded
// allocation on corrupt input.
const maxSerializedAccountSize = MaxAccountDataSize + serializedHeaderSize

// ErrFixtureMismatch is returned when a decoded fixture does not match the
// fingerprint recorded in its header.
var ErrFixtureMismatch = errors.New("fixture fingerprint mismatch")

// WriteFixture encodes a snapshot as a fixture stream that can later seed a
// store through ReadFixture.
//
// Format:
//   - Magic (4 bytes): "X1HF"
//   - Version (4 bytes, little-endian)
//   - AccountsCount (8 bytes, little-endian)
//   - Fingerprint (32 bytes, see SnapshotFingerprint)
//   - Accounts (zstd compressed), sorted by pubkey, each:
//   - Pubkey (32 bytes)
//   - AccountSize (4 bytes, little-endian)
//   - AccountData (variable, Account.Serialize)
func WriteFixture(w io.Writer, snap *Snapshot) error {
	header := make([]byte, 4+fixtureHeaderSize)
	copy(header, fixtureMagic)
	binary.LittleEndian.PutUint32(header[4:], fixtureVersion)
	binary.LittleEndian.PutUint64(header[8:], uint64(snap.Len()))
	fp := SnapshotFingerprint(snap)
	copy(header[16:], fp[:])

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write fixture header: %w", err)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("init zstd writer: %w", err)
	}
	bw := bufio.NewWriter(enc)

	var sizeBuf [4]byte
	for _, entry := range snap.Entries() {
		data := entry.Account.Serialize()
		binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(data)))

		if _, err := bw.Write(entry.Pubkey[:]); err != nil {
			enc.Close()
			return fmt.Errorf("write pubkey: %w", err)
		}
		if _, err := bw.Write(sizeBuf[:]); err != nil {
			enc.Close()
			return fmt.Errorf("write size: %w", err)
		}
		if _, err := bw.Write(data); err != nil {
			enc.Close()
			return fmt.Errorf("write account data: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("flush fixture: %w", err)
	}
	return enc.Close()
}

// ReadFixture decodes a fixture stream written by WriteFixture.
func ReadFixture(r io.Reader) (*Snapshot, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != string(fixtureMagic) {
		return nil, fmt.Errorf("invalid fixture magic: %q", magic)
	}

	header := make([]byte, fixtureHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if v := binary.LittleEndian.Uint32(header[0:]); v != fixtureVersion {
		return nil, fmt.Errorf("unsupported fixture version: %d", v)
	}
	count := binary.LittleEndian.Uint64(header[4:])
	var want types.Hash
	copy(want[:], header[12:])

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("init zstd reader: %w", err)
	}
	defer dec.Close()
	br := bufio.NewReader(dec)

	entries := make([]KeyedAccount, 0, min(count, 1<<16))
	var sizeBuf [4]byte
	for i := uint64(0); i < count; i++ {
		var pubkey types.Pubkey
		if _, err := io.ReadFull(br, pubkey[:]); err != nil {
			return nil, fmt.Errorf("read pubkey %d: %w", i, err)
		}
		if _, err := io.ReadFull(br, sizeBuf[:]); err != nil {
			return nil, fmt.Errorf("read size %d: %w", i, err)
		}
		size := binary.LittleEndian.Uint32(sizeBuf[:])
		if size > maxSerializedAccountSize {
			return nil, fmt.Errorf("account size %d exceeds maximum %d", size, maxSerializedAccountSize)
		}

		data := make([]byte, size)
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, fmt.Errorf("read account data %d: %w", i, err)
		}
		account, err := DeserializeAccount(data)
		if err != nil {
			return nil, fmt.Errorf("deserialize account %s: %w", pubkey, err)
		}
		entries = append(entries, KeyedAccount{Pubkey: pubkey, Account: account})
	}

	snap := NewSnapshot(entries)
	if got := SnapshotFingerprint(snap); got != want {
		return nil, fmt.Errorf("%w: header %s, decoded %s", ErrFixtureMismatch, want, got)
	}
	return snap, nil
}
