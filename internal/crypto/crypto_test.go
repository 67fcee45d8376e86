package crypto

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"zoldnode/internal/txn"
)

var (
	fullKeyOnce sync.Once
	fullPub     []byte
	fullPriv    []byte
	fullKeyErr  error
)

func fullKeypair(t *testing.T) ([]byte, []byte) {
	t.Helper()
	fullKeyOnce.Do(func() {
		fullPub, fullPriv, fullKeyErr = GenKeypair()
	})
	if fullKeyErr != nil {
		t.Fatalf("keygen failed: %v", fullKeyErr)
	}
	return fullPub, fullPriv
}

func TestSignDigestRoundTrip(t *testing.T) {
	pub, priv, err := genKeypair(2048)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	digest := SHA3_256([]byte("hello"))
	sig, err := SignDigest(priv, digest)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if !VerifyDigest(pub, digest, sig) {
		t.Fatalf("expected signature to verify")
	}
	if VerifyDigest(pub, SHA3_256([]byte("hellO")), sig) {
		t.Fatalf("expected verify to fail for another digest")
	}
	if _, err := SignDigest(priv, []byte("short")); err == nil {
		t.Fatalf("expected bad digest size error")
	}
}

func TestKDFSeparatesLabels(t *testing.T) {
	a := KDF("a", []byte("x"))
	b := KDF("b", []byte("x"))
	if len(a) != 32 || string(a) == string(b) {
		t.Fatalf("unexpected kdf output")
	}
}

func TestRSASignerProducesRecordSignature(t *testing.T) {
	pub, priv := fullKeypair(t)
	s, err := NewRSASigner(pub, priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	body := "0001;2017-07-19T21:24:51Z;ffffffffffff8000;QCuLuVr4;0000000000000001;payment"
	sig, err := s.Sign(context.Background(), body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != txn.SignatureSize {
		t.Fatalf("signature length %d, want %d", len(sig), txn.SignatureSize)
	}
	if !Verify(s.PublicKey(), body, sig) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(s.PublicKey(), body+"x", sig) {
		t.Fatalf("expected tampered body to fail")
	}
	tx, err := txn.ParseStrict(body + ";" + sig)
	if err != nil {
		t.Fatalf("signed record should parse: %v", err)
	}
	if tx.Body() != body {
		t.Fatalf("body mismatch")
	}
}

func TestRSASignerHonoursCancel(t *testing.T) {
	pub, priv, err := genKeypair(2048)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	s, err := NewRSASigner(pub, priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Sign(ctx, "body"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRSASignerRejectsGarbage(t *testing.T) {
	if _, err := NewRSASigner(nil, []byte("nope")); err == nil {
		t.Fatalf("expected error for bad key")
	}
}

func TestSaveLoadPlain(t *testing.T) {
	dir := t.TempDir()
	pub, priv, err := genKeypair(2048)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	if err := SaveKeypair(dir, pub, priv, ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	gotPub, gotPriv, err := LoadKeypair(dir, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(gotPub) != string(pub) || string(gotPriv) != string(priv) {
		t.Fatalf("keypair mismatch after load")
	}
}

func TestSaveLoadSealed(t *testing.T) {
	dir := t.TempDir()
	pub, priv, err := genKeypair(2048)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	if err := SaveKeypair(dir, pub, priv, "secret"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, privFile)); !os.IsNotExist(err) {
		t.Fatalf("plain private key must not be written")
	}
	raw, err := os.ReadFile(filepath.Join(dir, sealedFile))
	if err != nil {
		t.Fatalf("read sealed: %v", err)
	}
	if strings.Contains(string(raw), hex.EncodeToString(priv)) {
		t.Fatalf("sealed file leaks key")
	}
	if _, _, err := LoadKeypair(dir, ""); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed, got %v", err)
	}
	if _, _, err := LoadKeypair(dir, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
	_, gotPriv, err := LoadKeypair(dir, "secret")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(gotPriv) != string(priv) {
		t.Fatalf("private key mismatch after unseal")
	}
}

func TestLoadKeypairMissing(t *testing.T) {
	if _, _, err := LoadKeypair(t.TempDir(), ""); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
