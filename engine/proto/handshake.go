package proto

import (
	"time"

	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/gwcrypto"
	"github.com/xiaonanln/sectorworld/engine/netutil"
	"github.com/xiaonanln/sectorworld/engine/netutil/compress"
)

// exchangeKeys sends our public key and reads the peer's, each as one clear
// [4-byte length][public key] frame, then derives the session keys
func exchangeKeys(conn netutil.Connection, isServer bool, timeout time.Duration) (*gwcrypto.KeyMaterial, error) {
	kp, err := gwcrypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		deadline := time.Now().Add(timeout)
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	if err := compress.WriteLengthPrefixed(conn, kp.PublicKeyBytes()); err != nil {
		return nil, gwcrypto.WrapHandshakeError(err, "send public key")
	}
	if err := conn.Flush(); err != nil {
		return nil, gwcrypto.WrapHandshakeError(err, "send public key")
	}

	peerPub, err := compress.ReadBlock(conn, consts.MAX_HANDSHAKE_FRAME_SIZE)
	if err != nil {
		return nil, gwcrypto.WrapHandshakeError(err, "read peer public key")
	}
	return gwcrypto.DeriveKeyMaterial(kp, peerPub, isServer)
}
