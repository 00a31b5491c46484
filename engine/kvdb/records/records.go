// Package records maps player and sector records onto KVDB keys.
//
// Values are msgpack documents, base64 encoded so that every backend stores plain strings.
package records

import (
	"encoding/base64"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/kvdb"
	"github.com/xiaonanln/sectorworld/engine/sector"
	"golang.org/x/crypto/bcrypt"
)

const (
	playerKeyPrefix = "player/"
	sectorKeyPrefix = "sector/"
)

// SecretCost is the bcrypt cost of new player secrets
var SecretCost = bcrypt.DefaultCost

// ErrBadSecret is returned when a login secret does not match the player record
var ErrBadSecret = errors.New("bad secret")

// Store is the narrow storage interface used by records
type Store interface {
	Get(key string) (string, error)
	Put(key string, val string) error
}

// PlayerRecord is the persisted state of one player
type PlayerRecord struct {
	PlayerID   common.PlayerID
	Name       string
	SecretHash []byte
	SectorID   common.SectorID
	Position   common.Vector3
	CreatedAt  time.Time
	LastLogin  time.Time
}

// BodyRecord is one static body of a generated sector
type BodyRecord struct {
	Name     string
	Kind     string
	Position common.Vector3
	Radius   float64
}

// SectorRecord is the generator output for one sector
type SectorRecord struct {
	ID     common.SectorID
	Name   string
	Bodies []BodyRecord
}

func playerKey(name string) string {
	return playerKeyPrefix + name
}

func sectorKey(id common.SectorID) string {
	return sectorKeyPrefix + string(id)
}

func encode(v interface{}) (string, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encode record")
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func decode(s string, v interface{}) error {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return errors.Wrap(err, "decode record")
	}
	return errors.Wrap(msgpack.Unmarshal(b, v), "decode record")
}

// LoadPlayer returns the record of the named player, or nil if there is none
func LoadPlayer(db Store, name string) (*PlayerRecord, error) {
	val, err := db.Get(playerKey(name))
	if err != nil || val == "" {
		return nil, err
	}
	rec := &PlayerRecord{}
	if err := decode(val, rec); err != nil {
		return nil, errors.Wrapf(err, "player %s", name)
	}
	return rec, nil
}

// SavePlayer writes the player record
func SavePlayer(db Store, rec *PlayerRecord) error {
	val, err := encode(rec)
	if err != nil {
		return err
	}
	return db.Put(playerKey(rec.Name), val)
}

// ResolvePlayer loads the named player and checks the secret, creating the player on first login
//
// New players start in homeSector at the origin. Calls for the same name must be serialized by the
// caller.
func ResolvePlayer(db Store, name string, secret string, homeSector common.SectorID) (rec *PlayerRecord, created bool, err error) {
	rec, err = LoadPlayer(db, name)
	if err != nil {
		return nil, false, err
	}

	now := time.Now()
	if rec == nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), SecretCost)
		if err != nil {
			return nil, false, errors.Wrap(err, "hash secret")
		}
		rec = &PlayerRecord{
			PlayerID:   common.GenPlayerID(),
			Name:       name,
			SecretHash: hash,
			SectorID:   homeSector,
			CreatedAt:  now,
		}
		created = true
	} else if err := bcrypt.CompareHashAndPassword(rec.SecretHash, []byte(secret)); err != nil {
		return nil, false, ErrBadSecret
	}

	rec.LastLogin = now
	if rec.SectorID.IsNil() {
		rec.SectorID = homeSector
	}
	if err := SavePlayer(db, rec); err != nil {
		return nil, false, err
	}
	return rec, created, nil
}

// SaveLocation updates the last sector and position of the named player
func SaveLocation(db Store, name string, sectorID common.SectorID, pos common.Vector3) error {
	rec, err := LoadPlayer(db, name)
	if err != nil {
		return err
	}
	if rec == nil {
		return errors.Errorf("player %s does not exist", name)
	}
	rec.SectorID = sectorID
	rec.Position = pos
	return SavePlayer(db, rec)
}

// LoadSector returns the generated data of a sector; a sector without a record is empty
func LoadSector(db Store, id common.SectorID) (*sector.Data, error) {
	val, err := db.Get(sectorKey(id))
	if err != nil {
		return nil, err
	}
	data := &sector.Data{ID: id, Name: string(id)}
	if val == "" {
		return data, nil
	}

	var rec SectorRecord
	if err := decode(val, &rec); err != nil {
		return nil, errors.Wrapf(err, "sector %s", id)
	}
	if rec.Name != "" {
		data.Name = rec.Name
	}
	for _, b := range rec.Bodies {
		data.Bodies = append(data.Bodies, sector.Body{Name: b.Name, Kind: b.Kind, Position: b.Position, Radius: b.Radius})
	}
	return data, nil
}

// SaveSector writes a sector record, the way the galaxy generator publishes its output
func SaveSector(db Store, rec *SectorRecord) error {
	if rec.ID.IsNil() {
		return errors.New("sector record without id")
	}
	val, err := encode(rec)
	if err != nil {
		return err
	}
	return db.Put(sectorKey(rec.ID), val)
}

// ListSectors returns the records of every stored sector, ordered by id
func ListSectors(db *kvdb.DB) ([]*SectorRecord, error) {
	items, err := db.GetRange(sectorKeyPrefix, kvdb.PrefixEnd(sectorKeyPrefix))
	if err != nil {
		return nil, err
	}
	recs := make([]*SectorRecord, 0, len(items))
	for _, item := range items {
		rec := &SectorRecord{}
		if err := decode(item.Val, rec); err != nil {
			return nil, errors.Wrapf(err, "key %s", item.Key)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// SectorLoader returns a sector.Loader reading from db
func SectorLoader(db Store) sector.Loader {
	return func(id common.SectorID) (*sector.Data, error) {
		return LoadSector(db, id)
	}
}
