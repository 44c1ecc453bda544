package vpk

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"io"
)

// SignatureKind distinguishes the legacy full-file signature layout from the
// newer file-checksum-only layout (spec §4.4).
type SignatureKind int32

const (
	// SignatureKindFullFile is the legacy layout: a bare public key and
	// signature, with no explicit kind field on disk.
	SignatureKindFullFile SignatureKind = 0
	// SignatureKindFileChecksumOnly is the newer, self-describing layout
	// that leads with the archive magic as a sentinel.
	SignatureKindFileChecksumOnly SignatureKind = 1
)

// signatureSentinelSize is the fixed portion of the new layout: sentinel,
// kind, public-key-size, signature-size, reserved — five i32 fields.
const signatureSentinelSize = 20

// Signature is the parsed signature block. PublicKey and Signature are nil
// when the archive carries no signature.
type Signature struct {
	Kind      SignatureKind
	PublicKey []byte
	Signature []byte
}

// parseSignature decodes the signature block. A zero-length input is not an
// error: it simply means the archive is unsigned.
func parseSignature(data []byte) (*Signature, error) {
	if len(data) == 0 {
		return nil, nil
	}

	r := newReader(bytesReader(data))
	first := r.u32()
	if r.Err() != nil {
		return nil, wrapErr(r.Err(), KindInvalidFormat, "failed to read signature block")
	}

	sig := &Signature{}
	if len(data) == signatureSentinelSize && first == headerMagic {
		sig.Kind = SignatureKind(r.i32())
		pkSize := r.i32()
		sigSize := r.i32()
		_ = r.i32() // reserved
		if pkSize > 0 {
			sig.PublicKey = r.bytesN(int(pkSize))
		}
		if sigSize > 0 {
			sig.Signature = r.bytesN(int(sigSize))
		}
	} else {
		sig.Kind = SignatureKindFullFile
		pkSize := first
		if pkSize > 0 {
			sig.PublicKey = r.bytesN(int(pkSize))
		}
		sigSize := r.i32()
		if sigSize > 0 {
			sig.Signature = r.bytesN(int(sigSize))
		}
	}
	if r.Err() != nil {
		return nil, wrapErr(r.Err(), KindInvalidFormat, "failed to read signature block")
	}
	return sig, nil
}

// verifySignature checks that Signature is a valid RSA-SHA256-PKCS#1v1.5
// signature over [0, signedLength) of src. Absence of a public key or
// signature is treated as valid per spec §4.7: there is nothing to verify.
func verifySignature(sig *Signature, src io.ReadSeeker, signedLength int64) (bool, error) {
	if sig == nil || len(sig.PublicKey) == 0 || len(sig.Signature) == 0 {
		return true, nil
	}

	pub, err := x509.ParsePKIXPublicKey(sig.PublicKey)
	if err != nil {
		return false, wrapErr(err, KindInvalidFormat, "failed to parse VPK signature public key")
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return false, newErr(KindInvalidFormat, "VPK signature public key is not RSA")
	}

	h := sha256.New()
	if err := hashRegion(src, 0, signedLength, h, nil); err != nil {
		return false, wrapErr(err, KindInvalidFormat, "failed to hash signed region")
	}

	if err := rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, h.Sum(nil), sig.Signature); err != nil {
		return false, nil
	}
	return true, nil
}
