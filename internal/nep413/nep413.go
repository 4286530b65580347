// Package nep413 implements the NEP-413 off-chain message signing payload:
// a Borsh-serialized (prefix, message, nonce, recipient, callbackUrl?)
// structure, hashed with SHA-256 and signed with ed25519.
package nep413

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// signPrefix tags the payload as an off-chain message (2^31 + 413) so a
// signed message can never double as a valid transaction.
const signPrefix uint32 = 1<<31 + 413

// Payload is the structure a wallet signs for an off-chain message.
type Payload struct {
	Message     string
	Nonce       [32]byte
	Recipient   string
	CallbackURL string // optional; empty means absent
}

// serialize writes the payload in Borsh layout: u32 prefix, length-prefixed
// message, fixed 32-byte nonce, length-prefixed recipient, then an Option<u8>
// tag followed by the callback URL when present.
func (p *Payload) serialize() []byte {
	buf := make([]byte, 0, 4+4+len(p.Message)+32+4+len(p.Recipient)+1+4+len(p.CallbackURL))

	buf = binary.LittleEndian.AppendUint32(buf, signPrefix)
	buf = appendString(buf, p.Message)
	buf = append(buf, p.Nonce[:]...)
	buf = appendString(buf, p.Recipient)
	if p.CallbackURL == "" {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = appendString(buf, p.CallbackURL)
	}

	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// Hash returns the SHA-256 digest a signer actually signs.
func (p *Payload) Hash() [32]byte {
	return sha256.Sum256(p.serialize())
}

// Sign produces an ed25519 signature over the payload hash.
func Sign(priv ed25519.PrivateKey, p *Payload) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size %d", len(priv))
	}
	h := p.Hash()
	return ed25519.Sign(priv, h[:]), nil
}

// Verify reports whether sig is a valid signature over the payload hash by
// the holder of pub.
func Verify(pub ed25519.PublicKey, p *Payload, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	h := p.Hash()
	return ed25519.Verify(pub, h[:], sig)
}
