package svm

// DefaultSlotsPerEpoch is the mainnet epoch length.
const DefaultSlotsPerEpoch = uint64(432_000)

// Clock is the clock sysvar the engine exposes to programs.
type Clock struct {
	Slot                uint64
	EpochStartTimestamp int64
	Epoch               uint64
	LeaderScheduleEpoch uint64
	UnixTimestamp       int64
}

// WarpToSlot moves the clock to slot and recomputes the epoch fields.
// The unix timestamp is left alone.
func (c *Clock) WarpToSlot(slot uint64) {
	c.Slot = slot
	c.Epoch = slot / DefaultSlotsPerEpoch
	c.LeaderScheduleEpoch = c.Epoch + 1
}

// Rent is the rent sysvar.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
	BurnPercent         uint8
}

// accountStorageOverhead is the fixed per-account byte charge.
const accountStorageOverhead = 128

// DefaultRent returns the mainnet rent parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: 3480,
		ExemptionThreshold:  2.0,
		BurnPercent:         50,
	}
}

// MinimumBalance returns the rent-exempt minimum for an account holding
// dataLen bytes.
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	bytes := accountStorageOverhead + dataLen
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}

// IsExempt reports whether lamports cover the rent-exempt minimum.
func (r Rent) IsExempt(lamports, dataLen uint64) bool {
	return lamports >= r.MinimumBalance(dataLen)
}
