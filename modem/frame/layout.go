package frame

import "fmt"

/*
 * Frame Layout
 * Static bit-level geometry of the CHIMERA protocol frame.
 *
 * One frame is 128 QPSK symbols (256 bits):
 *   Sync(16 sym) | TargetID(16) | Command(16) | Payload(64) | ECC(16)
 */

const (
	// BitsPerSymbol is fixed by the QPSK constellation.
	BitsPerSymbol = 2

	// SyncPattern is the fixed 32-bit sequence that opens every frame.
	SyncPattern uint32 = 0xA5A5A5A5

	SyncSymbols     = 16
	TargetIDSymbols = 16
	CommandSymbols  = 16
	PayloadSymbols  = 64
	ECCSymbols      = 16

	// TotalSymbols is the frame length in QPSK symbols.
	TotalSymbols = SyncSymbols + TargetIDSymbols + CommandSymbols + PayloadSymbols + ECCSymbols

	SyncBits     = SyncSymbols * BitsPerSymbol
	TargetIDBits = TargetIDSymbols * BitsPerSymbol
	CommandBits  = CommandSymbols * BitsPerSymbol
	PayloadBits  = PayloadSymbols * BitsPerSymbol
	ECCBits      = ECCSymbols * BitsPerSymbol

	// TotalBits is the frame length in bits (256).
	TotalBits = TotalSymbols * BitsPerSymbol

	// CodewordBits is the span covered by the LDPC code: payload plus parity.
	CodewordBits = PayloadBits + ECCBits

	// PayloadBytes is the per-frame message capacity.
	PayloadBytes = PayloadBits / 8
)

// Layout describes the per-field symbol allocation of a frame. The default
// geometry above is what the protocol ships with; a Layout value exists so a
// reconfiguration can be validated as a whole before anything is rebuilt.
type Layout struct {
	SyncSymbols     int
	TargetIDSymbols int
	CommandSymbols  int
	PayloadSymbols  int
	ECCSymbols      int
	TotalSymbols    int
}

// DefaultLayout returns the reference protocol geometry.
func DefaultLayout() Layout {
	return Layout{
		SyncSymbols:     SyncSymbols,
		TargetIDSymbols: TargetIDSymbols,
		CommandSymbols:  CommandSymbols,
		PayloadSymbols:  PayloadSymbols,
		ECCSymbols:      ECCSymbols,
		TotalSymbols:    TotalSymbols,
	}
}

// Validate checks that every field is present and the field sizes add up to
// the declared total. Called once at configuration time.
func (l Layout) Validate() error {
	fields := map[string]int{
		"sync":      l.SyncSymbols,
		"target_id": l.TargetIDSymbols,
		"command":   l.CommandSymbols,
		"payload":   l.PayloadSymbols,
		"ecc":       l.ECCSymbols,
	}
	sum := 0
	for name, n := range fields {
		if n <= 0 {
			return fmt.Errorf("frame layout: field %s has non-positive size %d", name, n)
		}
		sum += n
	}
	if sum != l.TotalSymbols {
		return fmt.Errorf("frame layout: field sizes sum to %d symbols, expected %d", sum, l.TotalSymbols)
	}
	return nil
}
