package metainfo

import (
	"bytes"
	"crypto/sha1" // nolint: gosec
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/zeebo/bencode"
)

var (
	errNoInfo           = errors.New("no info dict in torrent file")
	errInvalidPieceData = errors.New("invalid piece data")
	errInfoHashMismatch = errors.New("info dict does not match info hash")
)

type infoDict struct {
	PieceLength uint32             `bencode:"piece length"`
	Pieces      []byte             `bencode:"pieces"`
	Private     bencode.RawMessage `bencode:"private"`
	Name        string             `bencode:"name"`
	Length      int64              `bencode:"length"` // single file mode
	Files       []fileDict         `bencode:"files"`  // multi file mode
}

type fileDict struct {
	Length int64    `bencode:"length"`
	Path   []string `bencode:"path"`
}

// Parse reads a bencoded .torrent file. The info hash is the SHA-1 of the info dict.
func Parse(r io.Reader) (*Metadata, error) {
	m, err := parse(r)
	return m, newMetadataError(err)
}

func parse(r io.Reader) (*Metadata, error) {
	var t struct {
		Info         bencode.RawMessage `bencode:"info"`
		Announce     string             `bencode:"announce"`
		AnnounceList [][]string         `bencode:"announce-list"`
	}
	if err := bencode.NewDecoder(r).Decode(&t); err != nil {
		return nil, err
	}
	if len(t.Info) == 0 {
		return nil, errNoInfo
	}
	sum := sha1.Sum(t.Info) // nolint: gosec
	m, err := ParseInfo(t.Info, sum[:])
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, ok := seen[s]; !ok && s != "" {
			seen[s] = struct{}{}
			m.Trackers = append(m.Trackers, s)
		}
	}
	for _, tier := range t.AnnounceList {
		for _, s := range tier {
			add(s)
		}
	}
	add(t.Announce)
	return m, nil
}

// ParseInfo builds Metadata from a bencoded info dict. The digest of b must equal infoHash,
// SHA-1 for 20 byte hashes and SHA-256 for 32 byte hashes. Pieces are split by the same size.
func ParseInfo(b []byte, infoHash []byte) (*Metadata, error) {
	m, err := parseInfo(b, infoHash)
	return m, newMetadataError(err)
}

func parseInfo(b []byte, infoHash []byte) (*Metadata, error) {
	if !bytes.Equal(digest(b, len(infoHash)), infoHash) {
		return nil, errInfoHashMismatch
	}
	var d infoDict
	if err := bencode.DecodeBytes(b, &d); err != nil {
		return nil, err
	}
	size := len(infoHash)
	if len(d.Pieces) == 0 || len(d.Pieces)%size != 0 {
		return nil, errInvalidPieceData
	}
	hashes := make([][]byte, len(d.Pieces)/size)
	for i := range hashes {
		hashes[i] = d.Pieces[i*size : (i+1)*size]
	}
	var files []File
	if len(d.Files) == 0 {
		if err := checkPathElement(d.Name); err != nil {
			return nil, err
		}
		files = []File{{Path: d.Name, Length: d.Length}}
	} else {
		for _, f := range d.Files {
			for _, p := range f.Path {
				if err := checkPathElement(p); err != nil {
					return nil, err
				}
			}
			files = append(files, File{Path: filepath.Join(append([]string{d.Name}, f.Path...)...), Length: f.Length})
		}
	}
	m, err := New(d.Name, infoHash, d.PieceLength, hashes, files)
	if err != nil {
		return nil, err
	}
	m.Private = parsePrivate(d.Private)
	m.Info = append([]byte(nil), b...)
	return m, nil
}

func checkPathElement(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid file name: %q", s)
	}
	return nil
}

// parsePrivate accepts both integer and string forms of the private flag.
func parsePrivate(raw bencode.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var i int64
	if err := bencode.DecodeBytes(raw, &i); err == nil {
		return i == 1
	}
	var s string
	if err := bencode.DecodeBytes(raw, &s); err == nil {
		return s == "1"
	}
	return false
}

func digest(b []byte, size int) []byte {
	switch size {
	case SHA1Size:
		sum := sha1.Sum(b) // nolint: gosec
		return sum[:]
	case SHA256Size:
		sum := sha256.Sum256(b)
		return sum[:]
	}
	return nil
}
