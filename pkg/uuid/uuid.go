// Package uuid provides UUID v7 generation.
// UUID v7 sorts by creation time, which keeps the embedding and record
// tables clustered by insertion order (cheap "earliest record wins" queries).
package uuid

import (
	"fmt"
	"math/rand"
	"time"
)

// UUID represents a UUID v7 identifier.
type UUID [16]byte

// NewV7 generates a new UUID v7 per draft-ietf-uuidrev-rfc4122bis:
// 48 bits of UNIX milliseconds, then version/variant bits over random fill.
func NewV7() UUID {
	now := time.Now().UnixMilli()

	var u UUID

	// Timestamp, big-endian, bytes 0-5.
	u[0] = byte(now >> 40)
	u[1] = byte(now >> 32)
	u[2] = byte(now >> 24)
	u[3] = byte(now >> 16)
	u[4] = byte(now >> 8)
	u[5] = byte(now)

	hi := rand.Uint64()
	lo := rand.Uint64()

	// Version 0111 in the high nibble of byte 6.
	u[6] = 0x70 | byte(hi>>60&0x0f)
	// RFC 4122 variant 10xxxxxx in byte 7.
	u[7] = 0x80 | byte(hi>>54&0x3f)
	u[8] = byte(hi >> 40)
	u[9] = byte(hi >> 32)
	u[10] = byte(hi >> 24)
	u[11] = byte(hi >> 16)
	u[12] = byte(lo >> 24)
	u[13] = byte(lo >> 16)
	u[14] = byte(lo >> 8)
	u[15] = byte(lo)

	return u
}

// String returns the UUID in canonical form: xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
func (u UUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		u[0:4],
		u[4:6],
		u[6:8],
		u[8:10],
		u[10:16],
	)
}
