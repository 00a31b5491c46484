package gwcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// MAC_SIZE is the size of the tag appended to every frame
	MAC_SIZE = sha256.Size
)

// Cipher encrypts or decrypts the frames of one direction.
//
// The IV of frame n is salt || n, so a Cipher must see frames in the order they were produced.
// A Cipher is not safe for concurrent use.
type Cipher struct {
	block   cipher.Block
	macKey  []byte
	salt    [IV_SALT_SIZE]byte
	counter uint64
}

// NewCipherPair creates the send and the receive ciphers of a connection
func NewCipherPair(km *KeyMaterial) (send *Cipher, recv *Cipher, err error) {
	send, err = newCipher(km.CipherKey[:], km.MACKey[:], km.SendSalt)
	if err != nil {
		return nil, nil, err
	}
	recv, err = newCipher(km.CipherKey[:], km.MACKey[:], km.RecvSalt)
	if err != nil {
		return nil, nil, err
	}
	return
}

func newCipher(key []byte, macKey []byte, salt [IV_SALT_SIZE]byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, handshakeError(errors.Wrap(err, "aes"))
	}
	mk := make([]byte, len(macKey))
	copy(mk, macKey)
	return &Cipher{block: block, macKey: mk, salt: salt}, nil
}

// Counter returns the number of frames processed so far
func (c *Cipher) Counter() uint64 {
	return c.counter
}

func (c *Cipher) iv(counter uint64) []byte {
	iv := make([]byte, aes.BlockSize)
	copy(iv, c.salt[:])
	binary.BigEndian.PutUint64(iv[IV_SALT_SIZE:], counter)
	return iv
}

func (c *Cipher) mac(counter uint64, ciphertext []byte) []byte {
	var cb [8]byte
	binary.BigEndian.PutUint64(cb[:], counter)
	h := hmac.New(sha256.New, c.macKey)
	h.Write(c.salt[:])
	h.Write(cb[:])
	h.Write(ciphertext)
	return h.Sum(nil)
}

// Seal encrypts plain and returns ciphertext || tag.
//
// The tag covers salt || counter || ciphertext.
func (c *Cipher) Seal(plain []byte) []byte {
	padLen := aes.BlockSize - len(plain)%aes.BlockSize
	out := make([]byte, len(plain)+padLen, len(plain)+padLen+MAC_SIZE)
	copy(out, plain)
	for i := len(plain); i < len(out); i++ {
		out[i] = byte(padLen)
	}

	counter := c.counter
	c.counter++
	cipher.NewCBCEncrypter(c.block, c.iv(counter)).CryptBlocks(out, out)
	return append(out, c.mac(counter, out)...)
}

// Open verifies and decrypts one frame produced by the peer's Seal
func (c *Cipher) Open(frame []byte) ([]byte, error) {
	if len(frame) < aes.BlockSize+MAC_SIZE {
		return nil, authenticationError(errors.Errorf("frame too short: %d", len(frame)))
	}
	ciphertext := frame[:len(frame)-MAC_SIZE]
	tag := frame[len(frame)-MAC_SIZE:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, authenticationError(errors.Errorf("ciphertext length %d is not block aligned", len(ciphertext)))
	}

	counter := c.counter
	if !hmac.Equal(tag, c.mac(counter, ciphertext)) {
		return nil, authenticationError(errors.Errorf("mac mismatch at frame %d", counter))
	}
	c.counter++

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, c.iv(counter)).CryptBlocks(plain, ciphertext)

	padLen := int(plain[len(plain)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(plain) {
		return nil, authenticationError(errors.Errorf("bad padding at frame %d", counter))
	}
	for _, b := range plain[len(plain)-padLen:] {
		if int(b) != padLen {
			return nil, authenticationError(errors.Errorf("bad padding at frame %d", counter))
		}
	}
	return plain[:len(plain)-padLen], nil
}
