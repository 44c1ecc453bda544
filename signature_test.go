package vpk

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"testing"
)

func TestParseSignatureEmpty(t *testing.T) {
	sig, err := parseSignature(nil)
	if err != nil {
		t.Fatalf("parseSignature(nil): %v", err)
	}
	if sig != nil {
		t.Fatalf("expected nil signature for empty input, got %+v", sig)
	}
}

func TestParseSignatureLegacyLayout(t *testing.T) {
	pubKey := []byte{1, 2, 3, 4}
	sigBytes := []byte{5, 6, 7, 8, 9}

	var buf bytes.Buffer
	buf.Write(le32(uint32(len(pubKey))))
	buf.Write(pubKey)
	buf.Write(le32(uint32(len(sigBytes))))
	buf.Write(sigBytes)

	sig, err := parseSignature(buf.Bytes())
	if err != nil {
		t.Fatalf("parseSignature: %v", err)
	}
	if sig.Kind != SignatureKindFullFile {
		t.Fatalf("Kind = %v, want SignatureKindFullFile", sig.Kind)
	}
	if !bytes.Equal(sig.PublicKey, pubKey) || !bytes.Equal(sig.Signature, sigBytes) {
		t.Fatalf("unexpected parsed signature: %+v", sig)
	}
}

func TestParseSignatureNewLayout(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(le32(headerMagic))
	buf.Write(le32(uint32(SignatureKindFileChecksumOnly)))
	buf.Write(le32(0)) // public-key-size
	buf.Write(le32(0)) // signature-size
	buf.Write(le32(0)) // reserved

	sig, err := parseSignature(buf.Bytes())
	if err != nil {
		t.Fatalf("parseSignature: %v", err)
	}
	if sig.Kind != SignatureKindFileChecksumOnly {
		t.Fatalf("Kind = %v, want SignatureKindFileChecksumOnly", sig.Kind)
	}
	if sig.PublicKey != nil || sig.Signature != nil {
		t.Fatalf("expected empty key/signature, got %+v", sig)
	}
}

func TestVerifySignatureRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}

	payload := []byte("the signed archive content")
	digest := sha256.Sum256(payload)
	sigBytes, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("SignPKCS1v15: %v", err)
	}

	sig := &Signature{Kind: SignatureKindFullFile, PublicKey: pubDER, Signature: sigBytes}
	valid, err := verifySignature(sig, bytesReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("verifySignature: %v", err)
	}
	if !valid {
		t.Fatal("expected valid signature")
	}

	tampered := append([]byte(nil), payload...)
	tampered[0] ^= 0xFF
	valid, err = verifySignature(sig, bytesReader(tampered), int64(len(tampered)))
	if err != nil {
		t.Fatalf("verifySignature (tampered): %v", err)
	}
	if valid {
		t.Fatal("expected invalid signature over tampered content")
	}
}

func TestVerifySignatureAbsentIsValid(t *testing.T) {
	valid, err := verifySignature(nil, bytesReader(nil), 0)
	if err != nil || !valid {
		t.Fatalf("expected (true, nil) for absent signature, got (%v, %v)", valid, err)
	}
}
