package gwcrypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/bmizerany/assert"
)

func handshakePair(t *testing.T) (server *KeyMaterial, client *KeyMaterial) {
	skp, err := GenerateKeyPair()
	assert.Equal(t, nil, err)
	ckp, err := GenerateKeyPair()
	assert.Equal(t, nil, err)

	server, err = DeriveKeyMaterial(skp, ckp.PublicKeyBytes(), true)
	assert.Equal(t, nil, err)
	client, err = DeriveKeyMaterial(ckp, skp.PublicKeyBytes(), false)
	assert.Equal(t, nil, err)
	return
}

func TestKeyAgreementSymmetric(t *testing.T) {
	server, client := handshakePair(t)

	assert.Equal(t, PUBLIC_KEY_SIZE, len(server.PublicKey))
	assert.T(t, bytes.Equal(server.Secret, client.Secret), "shared secrets differ")
	assert.Equal(t, server.CipherKey, client.CipherKey)
	assert.Equal(t, server.MACKey, client.MACKey)
	assert.Equal(t, server.SendSalt, client.RecvSalt)
	assert.Equal(t, server.RecvSalt, client.SendSalt)
	assert.NotEqual(t, server.SendSalt, server.RecvSalt)
	assert.NotEqual(t, server.CipherKey, server.MACKey)
}

func TestBadPublicKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	assert.Equal(t, nil, err)

	_, err = DeriveKeyMaterial(kp, []byte{4, 1, 2, 3}, true)
	assert.T(t, IsHandshakeError(err), err)

	bad := make([]byte, PUBLIC_KEY_SIZE)
	bad[0] = 4
	_, err = DeriveKeyMaterial(kp, bad, true)
	assert.T(t, IsHandshakeError(err), err)
}

func TestCipherRoundTrip(t *testing.T) {
	server, client := handshakePair(t)
	ssend, srecv, err := NewCipherPair(server)
	assert.Equal(t, nil, err)
	csend, crecv, err := NewCipherPair(client)
	assert.Equal(t, nil, err)

	for _, size := range []int{0, 1, 15, 16, 17, 255, 8192, 65536, 1 << 20} {
		plain := make([]byte, size)
		rand.Read(plain)

		frame := csend.Seal(plain)
		assert.Equal(t, 0, (len(frame)-MAC_SIZE)%16)
		got, err := srecv.Open(frame)
		assert.Equal(t, nil, err)
		assert.T(t, bytes.Equal(plain, got), "c2s mismatch at size", size)

		frame = ssend.Seal(plain)
		got, err = crecv.Open(frame)
		assert.Equal(t, nil, err)
		assert.T(t, bytes.Equal(plain, got), "s2c mismatch at size", size)
	}
	assert.Equal(t, csend.Counter(), srecv.Counter())
}

func TestSamePlaintextDiffers(t *testing.T) {
	server, _ := handshakePair(t)
	send, _, err := NewCipherPair(server)
	assert.Equal(t, nil, err)

	plain := []byte("the same block of text, twice")
	assert.T(t, !bytes.Equal(send.Seal(plain), send.Seal(plain)), "counter should change the ciphertext")
}

func TestTamperedFrame(t *testing.T) {
	server, client := handshakePair(t)
	csend, _, _ := NewCipherPair(client)
	_, srecv, _ := NewCipherPair(server)

	frame := csend.Seal([]byte("hello sector"))
	frame[3] ^= 0x40
	_, err := srecv.Open(frame)
	assert.T(t, IsAuthenticationError(err), err)

	_, err = srecv.Open([]byte{1, 2, 3})
	assert.T(t, IsAuthenticationError(err), err)
}

func TestReplayedFrameRejected(t *testing.T) {
	server, client := handshakePair(t)
	csend, _, _ := NewCipherPair(client)
	_, srecv, _ := NewCipherPair(server)

	frame := csend.Seal([]byte("move to 1,2,3"))
	_, err := srecv.Open(frame)
	assert.Equal(t, nil, err)
	_, err = srecv.Open(frame)
	assert.T(t, IsAuthenticationError(err), err)
}

func TestWrongDirectionRejected(t *testing.T) {
	server, _ := handshakePair(t)
	send, recv, _ := NewCipherPair(server)

	_, err := recv.Open(send.Seal([]byte("loopback")))
	assert.T(t, IsAuthenticationError(err), "a frame sealed for the peer must not open locally")
}
