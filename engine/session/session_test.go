package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/proto"
)

func TestCreateAndRemove(t *testing.T) {
	r := NewRegistry(NewConnectionRegistry())
	s, err := r.Create("p1", "pilot", "c1")
	assert.Equal(t, nil, err)
	assert.Equal(t, s, r.Get("p1"))
	assert.Equal(t, s, r.GetByConn("c1"))
	assert.Equal(t, 1, r.Count())

	_, err = r.Create("p1", "pilot", "c2")
	assert.T(t, IsDuplicateLogin(err), err)
	assert.Equal(t, s, r.Get("p1"))
	assert.T(t, r.GetByConn("c2") == nil)

	assert.T(t, r.RemoveByConn("c2") == nil)
	assert.Equal(t, s, r.RemoveByConn("c1"))
	assert.T(t, r.Get("p1") == nil)
	assert.Equal(t, 0, r.Count())

	// the player can log in again after the old session is gone
	_, err = r.Create("p1", "pilot", "c2")
	assert.Equal(t, nil, err)
}

func TestConcurrentDuplicateLogin(t *testing.T) {
	for round := 0; round < 20; round++ {
		r := NewRegistry(NewConnectionRegistry())
		var wg sync.WaitGroup
		var lock sync.Mutex
		created, duplicates := 0, 0
		for i := 0; i < 16; i++ {
			connID := common.ConnID(fmt.Sprintf("c%d", i))
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.Create("same-player", "pilot", connID)
				lock.Lock()
				if err == nil {
					created++
				} else if IsDuplicateLogin(err) {
					duplicates++
				}
				lock.Unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)
		assert.Equal(t, 15, duplicates)
		assert.Equal(t, 1, r.Count())
	}
}

func TestSessionWithoutConnection(t *testing.T) {
	conns := NewConnectionRegistry()
	r := NewRegistry(conns)
	s, err := r.Create("p1", "pilot", "gone")
	assert.Equal(t, nil, err)
	assert.T(t, s.Conn() == nil)
	assert.Equal(t, proto.ErrConnectionClosed, s.Send(proto.MT_PONG, &proto.PingMsg{}))
	assert.Equal(t, 0, conns.Count())
}
