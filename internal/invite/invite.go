// Package invite derives invite codes from the server secret and a winning
// submission's context. Codes are a deterministic function of
// (server-secret, fingerprint, nonce, seed): regenerating the secret makes
// every previously minted code unreproducible, by design.
package invite

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
)

const codePrefix = "HASHPASS-"

// truncatedMACLen is the number of leading HMAC bytes encoded into the code.
const truncatedMACLen = 12

// Mint derives `HASHPASS-<urlsafe-base64(first 12 bytes of
// HMAC-SHA256(secret, "fingerprint:nonce:seed"))>`.
func Mint(secret []byte, fingerprint string, nonce uint64, seed string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(fingerprint))
	mac.Write([]byte(":"))
	mac.Write([]byte(strconv.FormatUint(nonce, 10)))
	mac.Write([]byte(":"))
	mac.Write([]byte(seed))
	sum := mac.Sum(nil)

	return codePrefix + base64.RawURLEncoding.EncodeToString(sum[:truncatedMACLen])
}

// Equal compares two invite codes in constant time, for any caller that
// later needs to re-validate a minted code against a presented one.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
