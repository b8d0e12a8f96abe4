package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// initialSaltV1 is the version 1 salt used to derive Initial secrets,
// RFC 9001 Section 5.2.
var initialSaltV1 = []byte{
	0x38, 0x76, 0x2c, 0xf7, 0xf5, 0x59, 0x34, 0xb3,
	0x4d, 0x17, 0x9a, 0xe6, 0xa4, 0xc8, 0x0c, 0xad,
	0xcc, 0xbb, 0x7f, 0x0a,
}

// aeadSuite identifies which AEAD/header-protection construction a packetKeys
// value uses. Initial and (absent a negotiated cipher suite) Handshake keys
// always use AES-128-GCM; 1-RTT keys take whatever TLS negotiated.
type aeadSuite uint8

const (
	suiteAES128GCM aeadSuite = iota
	suiteAES256GCM
	suiteChaCha20Poly1305
)

// packetKeys is one direction's packet-protection key material at a single
// encryption level: an AEAD for payload protection and the raw header
// protection key used to build the 5-byte mask (RFC 9001 Section 5.4).
type packetKeys struct {
	suite aeadSuite
	aead  cipher.AEAD
	hpKey []byte
	iv    []byte
}

func deriveKeys(secret []byte, suite aeadSuite) (*packetKeys, error) {
	var keyLen, hpLen int
	switch suite {
	case suiteAES128GCM:
		keyLen, hpLen = 16, 16
	case suiteAES256GCM:
		keyLen, hpLen = 32, 32
	case suiteChaCha20Poly1305:
		keyLen, hpLen = 32, 32
	default:
		return nil, newError(InternalError, "unsupported cipher suite")
	}
	key := hkdfExpandLabel(sha256.New, secret, "quic key", keyLen)
	iv := hkdfExpandLabel(sha256.New, secret, "quic iv", 12)
	hp := hkdfExpandLabel(sha256.New, secret, "quic hp", hpLen)
	k := &packetKeys{suite: suite, hpKey: hp, iv: iv}
	var err error
	switch suite {
	case suiteAES128GCM, suiteAES256GCM:
		block, e := aes.NewCipher(key)
		if e != nil {
			return nil, e
		}
		k.aead, err = cipher.NewGCM(block)
	case suiteChaCha20Poly1305:
		k.aead, err = chacha20poly1305.New(key)
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

// hkdfExpandLabel implements the TLS 1.3 HKDF-Expand-Label construction
// used throughout RFC 9001 Section 5.1 to derive key/iv/hp from a secret.
func hkdfExpandLabel(hash func() hash.Hash, secret []byte, label string, length int) []byte {
	fullLabel := "tls13 " + label
	info := make([]byte, 0, 2+1+len(fullLabel)+1)
	info = append(info, byte(length>>8), byte(length))
	info = append(info, byte(len(fullLabel)))
	info = append(info, fullLabel...)
	info = append(info, 0) // empty Context
	out := make([]byte, length)
	r := hkdf.Expand(hash, secret, info)
	_, _ = r.Read(out)
	return out
}

// initialAEAD derives the Initial packet-protection keys for both
// directions from the client's original destination connection id,
// RFC 9001 Section 5.2.
type initialAEAD struct {
	client *packetKeys
	server *packetKeys
}

func (a *initialAEAD) init(dcid []byte) error {
	initialSecret := hkdf.Extract(sha256.New, dcid, initialSaltV1)
	clientSecret := hkdfExpandLabel(sha256.New, initialSecret, "client in", sha256.Size)
	serverSecret := hkdfExpandLabel(sha256.New, initialSecret, "server in", sha256.Size)
	var err error
	a.client, err = deriveKeys(clientSecret, suiteAES128GCM)
	if err != nil {
		return err
	}
	a.server, err = deriveKeys(serverSecret, suiteAES128GCM)
	return err
}

// headerProtectionMask computes the 5-byte mask applied to the first byte
// and the packet number, RFC 9001 Section 5.4.3.
func (k *packetKeys) headerProtectionMask(sample []byte) ([5]byte, error) {
	var mask [5]byte
	switch k.suite {
	case suiteAES128GCM, suiteAES256GCM:
		block, err := aes.NewCipher(k.hpKey)
		if err != nil {
			return mask, err
		}
		var out [16]byte
		block.Encrypt(out[:], sample)
		copy(mask[:], out[:5])
	case suiteChaCha20Poly1305:
		var counter uint32
		counter = uint32(sample[0]) | uint32(sample[1])<<8 | uint32(sample[2])<<16 | uint32(sample[3])<<24
		nonce := sample[4:16]
		c, err := chacha20.NewUnauthenticatedCipher(k.hpKey, nonce)
		if err != nil {
			return mask, err
		}
		c.SetCounter(counter)
		c.XORKeyStream(mask[:], mask[:])
	}
	return mask, nil
}

func (k *packetKeys) nonce(pn int64) []byte {
	n := make([]byte, len(k.iv))
	copy(n, k.iv)
	for i := 0; i < 8; i++ {
		n[len(n)-1-i] ^= byte(pn >> (8 * i))
	}
	return n
}

// updateTrafficSecret derives the next-generation 1-RTT secret from the
// current one using the "quic ku" label, RFC 9001 Section 6. hashNew must be
// the same hash used to originally derive secret.
func updateTrafficSecret(hashNew func() hash.Hash, secret []byte) []byte {
	h := hashNew()
	return hkdfExpandLabel(hashNew, secret, "quic ku", h.Size())
}

// hashForSuite returns the HKDF hash associated with a cipher suite, needed
// to size and re-derive secrets on key update.
func hashForSuite(suite aeadSuite) func() hash.Hash {
	switch suite {
	case suiteAES256GCM:
		return sha512.New384
	default:
		return sha256.New
	}
}
