// Package blobstore keeps sealed capsule blobs and derives the content proof
// that anchors each blob to its capsule.
package blobstore

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	dErrors "kairos/pkg/domain-errors"
)

// BlobIDPrefix marks ids minted by Anchor.
const BlobIDPrefix = "walrus_"

// sealDomainKey separates seal proofs from any other BLAKE3 use. ASCII
// domain name, zero padded to 32 bytes.
var sealDomainKey = [32]byte{
	'k', 'a', 'i', 'r', 'o', 's', '.', 'c', 'a', 'p', 's', 'u', 'l', 'e', '.',
	's', 'e', 'a', 'l', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Anchor derives the blob id and seal proof of a sealed blob. The proof is the
// hex keyed BLAKE3 digest; the id is the prefix plus its first 16 hex chars.
func Anchor(blob []byte) (blobID, sealProof string) {
	sealProof = proof(blob)
	return BlobIDPrefix + sealProof[:16], sealProof
}

// Verify recomputes the proof of blob and compares it with the anchored one.
func Verify(blobID string, blob []byte, sealProof string) error {
	got := proof(blob)
	if subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(sealProof))) != 1 ||
		blobID != BlobIDPrefix+got[:16] {
		return dErrors.New(dErrors.CodeIntegrity, "wrong passphrase or corrupted data")
	}
	return nil
}

func proof(blob []byte) string {
	hasher, err := blake3.NewKeyed(sealDomainKey[:])
	if err != nil {
		panic("blobstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(blob)
	return hex.EncodeToString(hasher.Sum(nil))
}
