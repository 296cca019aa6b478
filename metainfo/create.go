package metainfo

import (
	"github.com/zeebo/bencode"
)

// NewSingleFile creates Metadata for data stored as a single file named name.
// hashSize selects SHA1Size (a regular v1 torrent) or SHA256Size.
func NewSingleFile(name string, pieceLength uint32, data []byte, hashSize int) (*Metadata, error) {
	var pieces []byte
	for begin := 0; begin < len(data); begin += int(pieceLength) {
		end := begin + int(pieceLength)
		if end > len(data) {
			end = len(data)
		}
		pieces = append(pieces, digest(data[begin:end], hashSize)...)
	}
	info, err := bencode.EncodeBytes(map[string]interface{}{
		"piece length": pieceLength,
		"pieces":       pieces,
		"name":         name,
		"length":       int64(len(data)),
	})
	if err != nil {
		return nil, err
	}
	return ParseInfo(info, digest(info, hashSize))
}

// TorrentFile encodes m as a .torrent file. m must have been created from an info dict.
func (m *Metadata) TorrentFile() ([]byte, error) {
	if len(m.Info) == 0 {
		return nil, errNoInfo
	}
	t := struct {
		Info     bencode.RawMessage `bencode:"info"`
		Announce string             `bencode:"announce,omitempty"`
	}{
		Info: m.Info,
	}
	if len(m.Trackers) > 0 {
		t.Announce = m.Trackers[0]
	}
	return bencode.EncodeBytes(t)
}
