package crypto

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
)

// RSASigner signs transaction bodies. The base64 text of a 4096-bit signature
// is exactly 684 characters, the length the record format expects.
type RSASigner struct {
	pub  []byte
	priv []byte
}

func NewRSASigner(pub, priv []byte) (*RSASigner, error) {
	if _, err := ParseRSAPrivateKey(priv); err != nil {
		return nil, fmt.Errorf("signer key: %w", err)
	}
	return &RSASigner{pub: pub, priv: priv}, nil
}

// LoadOrCreateSigner loads the keypair in dir, generating and saving one if
// the directory has none yet.
func LoadOrCreateSigner(dir, passphrase string) (*RSASigner, error) {
	pub, priv, err := LoadKeypair(dir, passphrase)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		pub, priv, err = GenKeypair()
		if err != nil {
			return nil, err
		}
		if err := SaveKeypair(dir, pub, priv, passphrase); err != nil {
			return nil, err
		}
	}
	return NewRSASigner(pub, priv)
}

func (s *RSASigner) Sign(ctx context.Context, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sig, err := SignDigest(s.priv, SHA3_256([]byte(body)))
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// PublicKey is the base64 DER text stored in the wallet header.
func (s *RSASigner) PublicKey() string {
	return base64.StdEncoding.EncodeToString(s.pub)
}

func Verify(pubText, body, signature string) bool {
	pub, err := base64.StdEncoding.DecodeString(pubText)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return VerifyDigest(pub, SHA3_256([]byte(body)), sig)
}
