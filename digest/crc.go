// Package digest holds the pure checksum and hashing helpers shared by the
// link codec and the ARQ session layer.
//
// CRC16 is the reflected CCITT polynomial with a complemented result
// (CRC-16/X.25). The same algorithm protects host-mode link frames and the
// payloads announced by /FPUT, /MPUT and /FLPUT.
package digest

import (
	"fmt"
	"strconv"

	"github.com/sigurn/crc16"
)

// Residue is the value CRC16 yields over a codeword that ends with its own
// CRC (low byte first). The register residue before complementing is 0xF0B8.
const Residue = 0x0F47

var crcTable = crc16.MakeTable(crc16.CRC16_X_25)

// CRC16 returns the checksum of data.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// NewCRC16 returns a streaming CRC16 for inputs that arrive in pieces.
func NewCRC16() crc16.Hash16 {
	return crc16.New(crcTable)
}

// AppendCRC appends the checksum of data to data, low byte first.
func AppendCRC(data []byte) []byte {
	crc := CRC16(data)
	return append(data, byte(crc), byte(crc>>8))
}

// ValidCodeword reports whether data ends with a correct trailing CRC.
func ValidCodeword(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	return CRC16(data) == Residue
}

// FormatCRC renders a checksum as the 4 upper-case hex digits used on the
// wire, high byte first.
func FormatCRC(crc uint16) string {
	return fmt.Sprintf("%04X", crc)
}

// ParseCRC parses the 4 hex digit wire form produced by FormatCRC.
func ParseCRC(s string) (uint16, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("crc %q: want 4 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("crc %q: %w", s, err)
	}
	return uint16(v), nil
}
