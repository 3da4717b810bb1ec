package irgen

import (
	"crypto/sha256"
	"strings"
)

// DeriveSlotKey deterministically derives a 32-byte storage slot key from a
// resolved storage field path: storage reads and writes lower to intrinsics
// operating on 32-byte slot keys derived from that path. This hashes the
// dot-joined path with SHA-256, which is deterministic, collision-resistant,
// and requires no extra state threaded through irgen (see DESIGN.md
// "Open Question decisions").
func DeriveSlotKey(path []string) [32]byte {
	return sha256.Sum256([]byte(strings.Join(path, ".")))
}
