// Package crypto holds the node's RSA key material: generation, storage and
// the transaction signer. Suite: RSA-4096 PSS over SHA3-256, private keys at
// rest optionally sealed with XChaCha20-Poly1305.
package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"
)

const RSABits = 4096

const (
	pubFile    = "pub.hex"
	privFile   = "priv.hex"
	sealedFile = "priv.sealed"
	sealLabel  = "zold:v1:keyfile"
)

var ErrSealed = errors.New("private key is sealed, passphrase required")

func SHA3_256(msg []byte) []byte {
	sum := sha3.Sum256(msg)
	return sum[:]
}

func KDF(label string, parts ...[]byte) []byte {
	buf := make([]byte, 0, len(label))
	buf = append(buf, label...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return SHA3_256(buf)
}

// GenKeypair returns DER encoded PKIX public and PKCS8 private keys.
func GenKeypair() ([]byte, []byte, error) {
	return genKeypair(RSABits)
}

func genKeypair(bits int) ([]byte, []byte, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	return pubDER, privDER, nil
}

func SignDigest(priv []byte, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, errors.New("bad digest size")
	}
	key, err := ParseRSAPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return rsa.SignPSS(rand.Reader, key, crypto.SHA3_256, digest, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
}

func VerifyDigest(pub []byte, digest []byte, sig []byte) bool {
	if len(digest) != 32 {
		return false
	}
	key, err := ParseRSAPublicKey(pub)
	if err != nil {
		return false
	}
	return rsa.VerifyPSS(key, crypto.SHA3_256, digest, sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}) == nil
}

func ParseRSAPublicKey(pub []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not rsa public key")
	}
	return rsaKey, nil
}

func ParseRSAPrivateKey(priv []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not rsa private key")
	}
	return rsaKey, nil
}

func sealKey(passphrase string) []byte {
	return KDF(sealLabel, []byte(passphrase))
}

// SaveKeypair writes pub.hex and either priv.hex or, with a passphrase,
// priv.sealed (hex of nonce || ciphertext).
func SaveKeypair(dir string, pub, priv []byte, passphrase string) error {
	if len(pub) == 0 || len(priv) == 0 {
		return errors.New("empty key")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, pubFile), []byte(hex.EncodeToString(pub)), 0600); err != nil {
		return err
	}
	if passphrase == "" {
		return os.WriteFile(filepath.Join(dir, privFile), []byte(hex.EncodeToString(priv)), 0600)
	}
	aead, err := chacha20poly1305.NewX(sealKey(passphrase))
	if err != nil {
		return err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := aead.Seal(nonce, nonce, priv, []byte(sealLabel))
	return os.WriteFile(filepath.Join(dir, sealedFile), []byte(hex.EncodeToString(sealed)), 0600)
}

func readHex(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("bad %s", filepath.Base(path))
	}
	return out, nil
}

// LoadKeypair reads what SaveKeypair wrote. A missing pub.hex surfaces as
// os.ErrNotExist so callers can generate a fresh pair.
func LoadKeypair(dir, passphrase string) ([]byte, []byte, error) {
	pub, err := readHex(filepath.Join(dir, pubFile))
	if err != nil {
		return nil, nil, err
	}
	priv, err := readHex(filepath.Join(dir, privFile))
	if err == nil {
		return pub, priv, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}
	sealed, err := readHex(filepath.Join(dir, sealedFile))
	if err != nil {
		return nil, nil, err
	}
	if passphrase == "" {
		return nil, nil, ErrSealed
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, nil, fmt.Errorf("bad %s", sealedFile)
	}
	aead, err := chacha20poly1305.NewX(sealKey(passphrase))
	if err != nil {
		return nil, nil, err
	}
	nonce, ct := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	priv, err = aead.Open(nil, nonce, ct, []byte(sealLabel))
	if err != nil {
		return nil, nil, fmt.Errorf("unseal private key: %w", err)
	}
	return pub, priv, nil
}
