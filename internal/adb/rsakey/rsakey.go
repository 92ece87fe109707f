// Package rsakey implements the RSA operations ADB's AUTH handshake needs:
// signing a 20-byte token and emitting Android's bespoke public-key wire
// encoding. It accepts any *rsa.PrivateKey, provides GenerateKey for tests
// and first-run bootstrapping, and LoadOrGenerate for a key persisted as a
// PEM file across runs.
package rsakey

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
)

const (
	keyBits         = 2048
	modulusWords    = 64 // 2048 bits / 32 bits per word
	androidKeyBytes = 4 + 4 + modulusWords*4 + modulusWords*4 + 4
)

// Key signs ADB AUTH tokens and emits its Android public-key encoding.
type Key struct {
	private *rsa.PrivateKey
	userID  string
}

// New wraps an existing RSA private key. userID is the free-form identifier
// (e.g. "host@workstation") appended to the public-key blob.
func New(private *rsa.PrivateKey, userID string) *Key {
	return &Key{private: private, userID: userID}
}

// GenerateKey creates a fresh 2048-bit key, for first-run bootstrapping or
// tests. The key is kept in memory only; LoadOrGenerate is the variant
// that persists it to disk and reloads it.
func GenerateKey(userID string) (*Key, error) {
	private, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return New(private, userID), nil
}

// LoadOrGenerate reads a PKCS#1-PEM private key from path, or generates a
// fresh one and writes it there (mode 0600) if the file does not exist.
// This mirrors how a real adb client persists ~/.android/adbkey across
// runs so the device only has to approve the host's identity once.
func LoadOrGenerate(path, userID string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("%s: not a PEM file", path)
		}
		private, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return New(private, userID), nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key, err := GenerateKey(userID)
	if err != nil {
		return nil, err
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key.private)}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return key, nil
}

// Sign applies RSASSA-PKCS1-v1.5 with a fixed SHA-1 DigestInfo prefix to
// token. ADB tokens are already 20-byte raw digests; Sign must NOT hash
// them again.
func (k *Key) Sign(token [20]byte) ([256]byte, error) {
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.private, crypto.SHA1, token[:])
	if err != nil {
		return [256]byte{}, fmt.Errorf("sign auth token: %w", err)
	}
	var out [256]byte
	if len(sig) != len(out) {
		return out, fmt.Errorf("unexpected signature length %d, want %d (key must be 2048-bit)", len(sig), len(out))
	}
	copy(out[:], sig)
	return out, nil
}

// AndroidPublicKey emits the 524-byte modulus/exponent structure described
// in spec §3/§4.3, base64-encoded and suffixed with " "+userID. The result
// is ASCII text; callers NUL-terminate it themselves before putting it on
// the wire (per §4.4, the AUTH/RSAPUBLICKEY reply payload is NUL-terminated).
func (k *Key) AndroidPublicKey() ([]byte, error) {
	n := k.private.N
	if n.BitLen() > modulusWords*32 {
		return nil, fmt.Errorf("modulus too large for android public key encoding: %d bits", n.BitLen())
	}

	r32 := new(big.Int).Lsh(big.NewInt(1), 32)
	n0inv := new(big.Int).ModInverse(new(big.Int).Neg(n), r32)
	if n0inv == nil {
		return nil, fmt.Errorf("modulus has no inverse mod 2^32")
	}

	rr := new(big.Int).Lsh(big.NewInt(1), uint(modulusWords*32*2))
	rr.Mod(rr, n)

	buf := make([]byte, androidKeyBytes)
	offset := 0
	binary.LittleEndian.PutUint32(buf[offset:], modulusWords)
	offset += 4
	binary.LittleEndian.PutUint32(buf[offset:], uint32(n0inv.Uint64()))
	offset += 4
	offset += putLEWords(buf[offset:], n, modulusWords)
	offset += putLEWords(buf[offset:], rr, modulusWords)
	binary.LittleEndian.PutUint32(buf[offset:], uint32(k.private.E))

	encoded := base64.StdEncoding.EncodeToString(buf)
	return []byte(encoded + " " + k.userID), nil
}

// putLEWords writes count little-endian 32-bit words of v (least
// significant word first) into dst and returns the number of bytes written.
func putLEWords(dst []byte, v *big.Int, count int) int {
	mask := new(big.Int).Lsh(big.NewInt(1), 32)
	remaining := new(big.Int).Set(v)
	word := new(big.Int)
	for i := 0; i < count; i++ {
		word.Mod(remaining, mask)
		binary.LittleEndian.PutUint32(dst[i*4:], uint32(word.Uint64()))
		remaining.Rsh(remaining, 32)
	}
	return count * 4
}
