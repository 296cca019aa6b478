// Package boltdbresumer provides a Resumer implementation that uses a Bolt database file as storage.
package boltdbresumer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/drip-torrent/LibTorrent-swift/internal/resumer"
	"github.com/drip-torrent/LibTorrent-swift/metainfo"
)

// Keys for the persistent storage.
var Keys = struct {
	InfoHash        []byte
	Name            []byte
	SavePath        []byte
	Peers           []byte
	Metadata        []byte
	Bitfield        []byte
	Paused          []byte
	AddedAt         []byte
	BytesDownloaded []byte
	BytesUploaded   []byte
	BytesWasted     []byte
}{
	InfoHash:        []byte("info_hash"),
	Name:            []byte("name"),
	SavePath:        []byte("save_path"),
	Peers:           []byte("peers"),
	Metadata:        []byte("metadata"),
	Bitfield:        []byte("bitfield"),
	Paused:          []byte("paused"),
	AddedAt:         []byte("added_at"),
	BytesDownloaded: []byte("bytes_downloaded"),
	BytesUploaded:   []byte("bytes_uploaded"),
	BytesWasted:     []byte("bytes_wasted"),
}

// Resumer contains methods for saving/loading resume information of torrents to a BoltDB database.
// Each torrent has its own nested bucket named by its id.
type Resumer struct {
	db     *bbolt.DB
	bucket []byte
}

// New returns a new Resumer.
func New(db *bbolt.DB, bucket []byte) (*Resumer, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err2 := tx.CreateBucketIfNotExists(bucket)
		return err2
	})
	if err != nil {
		return nil, err
	}
	return &Resumer{
		db:     db,
		bucket: bucket,
	}, nil
}

// Write the spec of the torrent with torrentID.
func (r *Resumer) Write(torrentID string, spec *Spec) error {
	peers, err := json.Marshal(spec.Peers)
	if err != nil {
		return err
	}
	var meta []byte
	if spec.Metadata != nil {
		meta, err = json.Marshal(spec.Metadata)
		if err != nil {
			return err
		}
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(r.bucket).CreateBucketIfNotExists([]byte(torrentID))
		if err != nil {
			return err
		}
		puts := []struct{ k, v []byte }{
			{Keys.InfoHash, spec.InfoHash},
			{Keys.Name, []byte(spec.Name)},
			{Keys.SavePath, []byte(spec.SavePath)},
			{Keys.Peers, peers},
			{Keys.Bitfield, spec.Bitfield},
			{Keys.Paused, []byte(strconv.FormatBool(spec.Paused))},
			{Keys.AddedAt, []byte(spec.AddedAt.Format(time.RFC3339))},
			{Keys.BytesDownloaded, []byte(strconv.FormatInt(spec.BytesDownloaded, 10))},
			{Keys.BytesUploaded, []byte(strconv.FormatInt(spec.BytesUploaded, 10))},
			{Keys.BytesWasted, []byte(strconv.FormatInt(spec.BytesWasted, 10))},
		}
		if meta != nil {
			puts = append(puts, struct{ k, v []byte }{Keys.Metadata, meta})
		}
		for _, p := range puts {
			if p.v == nil {
				continue
			}
			if err = b.Put(p.k, p.v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Resumer) put(torrentID string, key, value []byte) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket([]byte(torrentID))
		if b == nil {
			return nil
		}
		return b.Put(key, value)
	})
}

// WriteMetadata writes only the metadata of a torrent.
func (r *Resumer) WriteMetadata(torrentID string, m *metainfo.Metadata) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.put(torrentID, Keys.Metadata, b)
}

// WriteBitfield writes only bitfield of a torrent.
func (r *Resumer) WriteBitfield(torrentID string, value []byte) error {
	return r.put(torrentID, Keys.Bitfield, value)
}

// WritePaused writes the pause status of a torrent.
func (r *Resumer) WritePaused(torrentID string, value bool) error {
	return r.put(torrentID, Keys.Paused, []byte(strconv.FormatBool(value)))
}

// WriteStats writes the byte counters of a torrent.
func (r *Resumer) WriteStats(torrentID string, s resumer.Stats) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket([]byte(torrentID))
		if b == nil {
			return nil
		}
		_ = b.Put(Keys.BytesDownloaded, []byte(strconv.FormatInt(s.BytesDownloaded, 10)))
		_ = b.Put(Keys.BytesUploaded, []byte(strconv.FormatInt(s.BytesUploaded, 10)))
		return b.Put(Keys.BytesWasted, []byte(strconv.FormatInt(s.BytesWasted, 10)))
	})
}

// Delete removes the torrent from the database.
func (r *Resumer) Delete(torrentID string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(r.bucket).DeleteBucket([]byte(torrentID))
		if err == bbolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

// List returns the ids of all saved torrents.
func (r *Resumer) List() ([]string, error) {
	var ids []string
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(r.bucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// Read the spec of the torrent with torrentID.
func (r *Resumer) Read(torrentID string) (*Spec, error) {
	var spec *Spec
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket([]byte(torrentID))
		if b == nil {
			return fmt.Errorf("bucket not found: %q", torrentID)
		}

		value := b.Get(Keys.InfoHash)
		if value == nil {
			return fmt.Errorf("key not found: %q", string(Keys.InfoHash))
		}
		spec = new(Spec)
		spec.InfoHash = append([]byte(nil), value...)
		spec.Name = string(b.Get(Keys.Name))
		spec.SavePath = string(b.Get(Keys.SavePath))

		var err error
		if value = b.Get(Keys.Peers); value != nil {
			if err = json.Unmarshal(value, &spec.Peers); err != nil {
				return err
			}
		}
		if value = b.Get(Keys.Metadata); value != nil {
			spec.Metadata = new(metainfo.Metadata)
			if err = json.Unmarshal(value, spec.Metadata); err != nil {
				return err
			}
		}
		if value = b.Get(Keys.Bitfield); value != nil {
			spec.Bitfield = append([]byte(nil), value...)
		}
		if value = b.Get(Keys.Paused); value != nil {
			if spec.Paused, err = strconv.ParseBool(string(value)); err != nil {
				return err
			}
		}
		if value = b.Get(Keys.AddedAt); value != nil {
			if spec.AddedAt, err = time.Parse(time.RFC3339, string(value)); err != nil {
				return err
			}
		}
		for _, c := range []struct {
			key []byte
			dst *int64
		}{
			{Keys.BytesDownloaded, &spec.BytesDownloaded},
			{Keys.BytesUploaded, &spec.BytesUploaded},
			{Keys.BytesWasted, &spec.BytesWasted},
		} {
			if value = b.Get(c.key); value != nil {
				if *c.dst, err = strconv.ParseInt(string(value), 10, 64); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return spec, err
}

// Torrent binds the Resumer to a single torrent id.
type Torrent struct {
	r  *Resumer
	id string
}

var _ resumer.Resumer = Torrent{}

// For returns a resumer.Resumer for the torrent with torrentID.
func (r *Resumer) For(torrentID string) Torrent {
	return Torrent{r: r, id: torrentID}
}

func (t Torrent) WriteMetadata(m *metainfo.Metadata) error { return t.r.WriteMetadata(t.id, m) }
func (t Torrent) WriteBitfield(b []byte) error { return t.r.WriteBitfield(t.id, b) }
func (t Torrent) WritePaused(v bool) error { return t.r.WritePaused(t.id, v) }
func (t Torrent) WriteStats(s resumer.Stats) error { return t.r.WriteStats(t.id, s) }
