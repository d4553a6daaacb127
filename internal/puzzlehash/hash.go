// Package puzzlehash recomputes the memory-hard proof-of-work hash and
// counts leading zero bits, off the request-handling goroutine.
//
// Wire note: golang.org/x/crypto/argon2 implements Argon2i and Argon2id only
// (no Argon2d), so this package standardizes the hash on Argon2id; see
// SPEC_FULL.md §1 for the rationale. Salt layout and hash length are the
// bit-for-bit wire contract between client and server.
package puzzlehash

import (
	"crypto/subtle"
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/argon2"
)

// HashLen is the fixed output length of the puzzle hash, in bytes.
const HashLen = 32

// Params are the Argon2 cost parameters advertised to clients.
type Params struct {
	Time        uint32
	MemoryKB    uint32
	Parallelism uint8
}

// Input bundles everything needed to recompute a candidate's hash.
type Input struct {
	Nonce         uint64
	Seed          string
	Fingerprint   string
	TraceBlob     string
	Params        Params
}

// Compute derives H = Argon2id(password=decimal-ASCII(nonce),
// salt=seed‖fingerprint‖traceBlob, time, memory, parallelism, 32).
func Compute(in Input) []byte {
	password := []byte(strconv.FormatUint(in.Nonce, 10))
	salt := make([]byte, 0, len(in.Seed)+len(in.Fingerprint)+len(in.TraceBlob))
	salt = append(salt, in.Seed...)
	salt = append(salt, in.Fingerprint...)
	salt = append(salt, in.TraceBlob...)

	return argon2.IDKey(password, salt, in.Params.Time, in.Params.MemoryKB, in.Params.Parallelism, HashLen)
}

// LeadingZeroBits counts the most-significant zero bits of hash, treated as
// a big-endian binary integer.
func LeadingZeroBits(hash []byte) int {
	count := 0
	for _, b := range hash {
		if b == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// Result is the outcome of a verification call.
type Result struct {
	Hash             []byte
	LeadingZeroBits  int
	BytesMatch       bool
	MeetsDifficulty  bool
}

// Verify recomputes the hash from in and compares it against expectedHex,
// then checks the leading-zero-bit count against difficulty. expectedHex
// must be 64 lowercase hex characters (32 bytes).
func Verify(in Input, expectedHex string, difficulty int) (Result, error) {
	expected, err := hex.DecodeString(expectedHex)
	if err != nil || len(expected) != HashLen {
		return Result{}, errInvalidHashEncoding
	}

	computed := Compute(in)
	bytesMatch := subtle.ConstantTimeCompare(computed, expected) == 1
	zeros := LeadingZeroBits(computed)

	return Result{
		Hash:            computed,
		LeadingZeroBits: zeros,
		BytesMatch:      bytesMatch,
		MeetsDifficulty: bytesMatch && zeros >= difficulty,
	}, nil
}
