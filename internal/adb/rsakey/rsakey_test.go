package rsakey

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSignProducesVerifiableSignature(t *testing.T) {
	key, err := GenerateKey("test@host")
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	var token [20]byte
	copy(token[:], []byte("0123456789abcdefghij"))

	sig, err := key.Sign(token)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// ADB tokens are already raw digests; signing must treat them as the
	// already-hashed value, not re-hash them. A signature over sha1(token)
	// would mean the token had been hashed again.
	digest := sha1.Sum(token[:])
	if err := rsa.VerifyPKCS1v15(&key.private.PublicKey, crypto.SHA1, digest[:], sig[:]); err == nil {
		t.Errorf("signature verifies against sha1(token): the token was hashed again")
	}

	if err := rsa.VerifyPKCS1v15(&key.private.PublicKey, crypto.SHA1, token[:], sig[:]); err != nil {
		t.Errorf("signature should verify against the raw token as the digest: %v", err)
	}
}

func TestAndroidPublicKeyShapeAndUserID(t *testing.T) {
	key, err := GenerateKey("host@workstation")
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	blob, err := key.AndroidPublicKey()
	if err != nil {
		t.Fatalf("AndroidPublicKey: %v", err)
	}

	text := string(blob)
	idx := strings.LastIndex(text, " ")
	if idx < 0 {
		t.Fatalf("expected %q to contain a space before the user id", text)
	}
	b64Part, userPart := text[:idx], text[idx+1:]
	if userPart != "host@workstation" {
		t.Errorf("user id = %q, want host@workstation", userPart)
	}

	raw, err := base64.StdEncoding.DecodeString(b64Part)
	if err != nil {
		t.Fatalf("base64 portion did not decode: %v", err)
	}
	if len(raw) != androidKeyBytes {
		t.Errorf("decoded android key is %d bytes, want %d", len(raw), androidKeyBytes)
	}
}

func TestLoadOrGenerateCreatesThenReuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adbkey")

	first, err := LoadOrGenerate(path, "host@workstation")
	if err != nil {
		t.Fatalf("LoadOrGenerate (create): %v", err)
	}

	second, err := LoadOrGenerate(path, "host@workstation")
	if err != nil {
		t.Fatalf("LoadOrGenerate (reuse): %v", err)
	}

	if first.private.N.Cmp(second.private.N) != 0 {
		t.Errorf("second call generated a new key instead of reusing the persisted one")
	}
}

func TestLoadOrGenerateRejectsGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adbkey")
	if err := os.WriteFile(path, []byte("not a pem key"), 0o600); err != nil {
		t.Fatalf("seed garbage file: %v", err)
	}

	if _, err := LoadOrGenerate(path, "host@workstation"); err == nil {
		t.Error("expected an error loading a non-PEM key file, got nil")
	}
}
