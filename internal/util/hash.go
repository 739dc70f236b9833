package util

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// SHA256Hex hashes in-memory content, used for chunk text fingerprints in
// document artifacts.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SHA256HexFromReader streams a file through SHA-256. Uploaded PDFs get
// their document id from this, so re-uploading the same file is a no-op.
func SHA256HexFromReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
