package records

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/kvdb"
	"github.com/xiaonanln/sectorworld/engine/kvdb/backend/kvdbmemory"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	SecretCost = bcrypt.MinCost
}

func openTestDB(t *testing.T) *kvdb.DB {
	engine, err := kvdbmemory.OpenMemoryKVDB()
	assert.Equal(t, nil, err)
	return kvdb.OpenEngine(engine)
}

func TestResolvePlayer(t *testing.T) {
	db := openTestDB(t)

	rec, created, err := ResolvePlayer(db, "alice", "s3cret", "jita")
	assert.Equal(t, nil, err)
	assert.T(t, created)
	assert.T(t, !rec.PlayerID.IsNil())
	assert.Equal(t, common.SectorID("jita"), rec.SectorID)

	again, created, err := ResolvePlayer(db, "alice", "s3cret", "amarr")
	assert.Equal(t, nil, err)
	assert.T(t, !created)
	assert.Equal(t, rec.PlayerID, again.PlayerID)
	assert.Equal(t, common.SectorID("jita"), again.SectorID)

	_, _, err = ResolvePlayer(db, "alice", "wrong", "jita")
	assert.Equal(t, ErrBadSecret, err)

	other, _, err := ResolvePlayer(db, "bob", "s3cret", "jita")
	assert.Equal(t, nil, err)
	assert.NotEqual(t, rec.PlayerID, other.PlayerID)
}

func TestSaveLocation(t *testing.T) {
	db := openTestDB(t)
	_, _, err := ResolvePlayer(db, "alice", "pw", "jita")
	assert.Equal(t, nil, err)

	assert.Equal(t, nil, SaveLocation(db, "alice", "amarr", common.Vector3{X: 1, Y: 2, Z: 3}))
	rec, err := LoadPlayer(db, "alice")
	assert.Equal(t, nil, err)
	assert.Equal(t, common.SectorID("amarr"), rec.SectorID)
	assert.Equal(t, common.Vector3{X: 1, Y: 2, Z: 3}, rec.Position)

	assert.NotEqual(t, nil, SaveLocation(db, "nobody", "amarr", common.Vector3{}))
}

func TestSectors(t *testing.T) {
	db := openTestDB(t)

	data, err := LoadSector(db, "empty")
	assert.Equal(t, nil, err)
	assert.Equal(t, common.SectorID("empty"), data.ID)
	assert.Equal(t, 0, len(data.Bodies))

	assert.Equal(t, nil, SaveSector(db, &SectorRecord{
		ID:   "jita",
		Name: "Jita",
		Bodies: []BodyRecord{
			{Name: "Jita Star", Kind: "star", Radius: 300},
			{Name: "Jita IV", Kind: "planet", Position: common.Vector3{X: 20000}, Radius: 60},
		},
	}))
	assert.Equal(t, nil, SaveSector(db, &SectorRecord{ID: "amarr", Name: "Amarr"}))
	assert.NotEqual(t, nil, SaveSector(db, &SectorRecord{}))

	data, err = SectorLoader(db)("jita")
	assert.Equal(t, nil, err)
	assert.Equal(t, "Jita", data.Name)
	assert.Equal(t, 2, len(data.Bodies))
	assert.Equal(t, "Jita IV", data.Bodies[1].Name)
	assert.Equal(t, 60.0, data.Bodies[1].Radius)

	recs, err := ListSectors(db)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(recs))
	assert.Equal(t, common.SectorID("amarr"), recs[0].ID)
	assert.Equal(t, common.SectorID("jita"), recs[1].ID)
}

func TestCorruptRecord(t *testing.T) {
	db := openTestDB(t)
	assert.Equal(t, nil, db.Put("player/alice", "not base64!"))
	_, err := LoadPlayer(db, "alice")
	assert.NotEqual(t, nil, err)
}
