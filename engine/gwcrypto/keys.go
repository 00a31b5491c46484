// Package gwcrypto implements the per-connection key agreement and the
// frame cipher used after the handshake.
package gwcrypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KEY_SIZE is the size of the cipher key and the MAC key
	KEY_SIZE = 32
	// IV_SALT_SIZE is the size of the per-direction IV salt
	IV_SALT_SIZE = 8
	// PUBLIC_KEY_SIZE is the size of an uncompressed P-256 point
	PUBLIC_KEY_SIZE = 65
	// MAC_KEY_ROUNDS is the iteration count of the MAC key derivation
	MAC_KEY_ROUNDS = 1000
)

var (
	hkdfSalt       = []byte("sectorworld/handshake/v1")
	cipherKeyLabel = []byte("sectorworld cipher key")
	c2sSaltLabel   = []byte("sectorworld iv salt client->server")
	s2cSaltLabel   = []byte("sectorworld iv salt server->client")
	macKeySalt     = []byte("sectorworld/frame-mac/v1")
)

// KeyPair is an ephemeral P-256 key pair, used for exactly one connection
type KeyPair struct {
	priv *ecdh.PrivateKey
}

// GenerateKeyPair creates a new ephemeral key pair
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, handshakeError(errors.Wrap(err, "generate key"))
	}
	return &KeyPair{priv: priv}, nil
}

// PublicKeyBytes returns the uncompressed encoding of the public key
func (kp *KeyPair) PublicKeyBytes() []byte {
	return kp.priv.PublicKey().Bytes()
}

// SharedSecret computes the raw ECDH secret with the peer public key
func (kp *KeyPair) SharedSecret(peerPub []byte) ([]byte, error) {
	if len(peerPub) != PUBLIC_KEY_SIZE {
		return nil, handshakeError(errors.Errorf("unsupported public key length %d", len(peerPub)))
	}
	pub, err := ecdh.P256().NewPublicKey(peerPub)
	if err != nil {
		return nil, handshakeError(errors.Wrap(err, "parse peer public key"))
	}
	secret, err := kp.priv.ECDH(pub)
	if err != nil {
		return nil, handshakeError(errors.Wrap(err, "ecdh"))
	}
	return secret, nil
}

// KeyMaterial holds everything derived from one handshake
type KeyMaterial struct {
	PublicKey []byte
	Secret    []byte
	CipherKey [KEY_SIZE]byte
	MACKey    [KEY_SIZE]byte
	// SendSalt and RecvSalt are the IV salts of the outgoing and incoming directions
	SendSalt [IV_SALT_SIZE]byte
	RecvSalt [IV_SALT_SIZE]byte
}

// DeriveKeyMaterial runs the ECDH and derives the cipher key, the MAC key and the IV salts.
//
// isServer selects which derived salt is used for sending.
func DeriveKeyMaterial(kp *KeyPair, peerPub []byte, isServer bool) (*KeyMaterial, error) {
	secret, err := kp.SharedSecret(peerPub)
	if err != nil {
		return nil, err
	}

	km := &KeyMaterial{
		PublicKey: kp.PublicKeyBytes(),
		Secret:    secret,
	}
	if err := expand(secret, cipherKeyLabel, km.CipherKey[:]); err != nil {
		return nil, err
	}

	var c2s, s2c [IV_SALT_SIZE]byte
	if err := expand(secret, c2sSaltLabel, c2s[:]); err != nil {
		return nil, err
	}
	if err := expand(secret, s2cSaltLabel, s2c[:]); err != nil {
		return nil, err
	}
	if isServer {
		km.SendSalt, km.RecvSalt = s2c, c2s
	} else {
		km.SendSalt, km.RecvSalt = c2s, s2c
	}

	copy(km.MACKey[:], pbkdf2.Key(secret, macKeySalt, MAC_KEY_ROUNDS, KEY_SIZE, sha256.New))
	return km, nil
}

func expand(secret []byte, label []byte, out []byte) error {
	r := hkdf.New(sha256.New, secret, hkdfSalt, label)
	if _, err := io.ReadFull(r, out); err != nil {
		return handshakeError(errors.Wrap(err, "hkdf"))
	}
	return nil
}

// Destroy zeroes the secret material
func (km *KeyMaterial) Destroy() {
	for i := range km.Secret {
		km.Secret[i] = 0
	}
	km.CipherKey = [KEY_SIZE]byte{}
	km.MACKey = [KEY_SIZE]byte{}
	km.SendSalt = [IV_SALT_SIZE]byte{}
	km.RecvSalt = [IV_SALT_SIZE]byte{}
}
