package site

import (
	"context"
	"encoding/json"

	"github.com/akrylysov/pogreb"
	"github.com/rs/zerolog/log"

	"github.com/packsmith/packsmith/pack"
)

// Cache decorates a Client with a pogreb-backed metadata store so that
// validation runs and repeated exports do not refetch version and project
// records. Platform records for a pinned version are immutable, so entries
// never expire. LatestVersion is deliberately not cached: its answer changes
// whenever the project publishes a file.
type Cache struct {
	Client

	DB *pogreb.DB
}

func NewCache(c Client, db *pogreb.DB) *Cache {
	return &Cache{Client: c, DB: db}
}

func (c *Cache) Version(ctx context.Context, id pack.ModID) (*VersionRecord, error) {
	key := []byte("v|" + id.String())
	var rec VersionRecord
	if c.load(key, &rec) {
		rec.ID = id
		return &rec, nil
	}
	fresh, err := c.Client.Version(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(key, fresh)
	return fresh, nil
}

func (c *Cache) Project(ctx context.Context, key pack.ProjectKey) (*ProjectRecord, error) {
	dbKey := []byte("p|" + key.String())
	var rec ProjectRecord
	if c.load(dbKey, &rec) {
		return &rec, nil
	}
	fresh, err := c.Client.Project(ctx, key)
	if err != nil {
		return nil, err
	}
	c.store(dbKey, fresh)
	return fresh, nil
}

// load and store treat the database as best-effort: a broken entry or a
// write failure falls back to the network instead of failing the run.

func (c *Cache) load(key []byte, v interface{}) bool {
	data, err := c.DB.Get(key)
	if err != nil {
		log.Warn().Err(err).Str("key", string(key)).Msg("metadata cache read failed")
		return false
	}
	if data == nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("key", string(key)).Msg("metadata cache entry corrupt")
		return false
	}
	return true
}

func (c *Cache) store(key []byte, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("key", string(key)).Msg("metadata cache encode failed")
		return
	}
	if err := c.DB.Put(key, data); err != nil {
		log.Warn().Err(err).Str("key", string(key)).Msg("metadata cache write failed")
	}
}
