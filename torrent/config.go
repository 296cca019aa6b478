package torrent

import (
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"
)

// Config for Session.
type Config struct {
	// Database file to save resume data. Resume is disabled when empty.
	Database string `yaml:"database"`
	// DataDir is the default save path of torrents added with an empty save path.
	DataDir string `yaml:"data-dir"`

	// Max download speed of the session in bytes per second. Zero means unlimited.
	DownloadRateLimit int64 `yaml:"download-rate-limit"`
	// Max upload speed of the session in bytes per second. Zero means unlimited.
	UploadRateLimit int64 `yaml:"upload-rate-limit"`
	// Max number of connected peers across all torrents.
	MaxConnections int `yaml:"max-connections"`
	// Max number of unchoked peers per torrent. -1 means unlimited.
	MaxUploads int `yaml:"max-uploads"`
	// Comma separated list of addresses to accept peer connections on. Empty disables listening.
	ListenInterfaces string `yaml:"listen-interfaces"`

	// Find peers in the DHT.
	EnableDHT bool `yaml:"enable-dht"`
	// DHT node listen address and port.
	DHTAddress string `yaml:"dht-address"`
	DHTPort    int    `yaml:"dht-port"`
	// Local service discovery, UPnP and NAT-PMP are accepted for compatibility and not implemented.
	EnableLSD    bool `yaml:"enable-lsd"`
	EnableUPnP   bool `yaml:"enable-upnp"`
	EnableNATPMP bool `yaml:"enable-natpmp"`

	// Max number of blocks requested from a peer but not received yet.
	RequestQueueLength int `yaml:"request-queue-length"`
	// Time to wait for a requested block before requesting it again.
	RequestTimeout time.Duration `yaml:"request-timeout"`
	// A peer is disconnected after this many timed out requests.
	MaxRequestTimeouts int `yaml:"max-request-timeouts"`
	// Endgame starts when this many pieces are left. Zero means 5% of the pieces.
	EndgamePieces int `yaml:"endgame-pieces"`
	// Max number of dials in progress per torrent.
	MaxPeerDial int `yaml:"max-peer-dial"`

	// A keep-alive is sent after this much silence. Peers silent for twice as long are dropped.
	KeepAliveInterval time.Duration `yaml:"keep-alive-interval"`
	// Time to wait for TCP connection to open.
	DialTimeout time.Duration `yaml:"dial-timeout"`
	// Time to wait for BitTorrent handshake to complete.
	HandshakeTimeout time.Duration `yaml:"handshake-timeout"`
	// When peer has started to send piece block, if it does not send any bytes in PieceReadTimeout, the connection is closed.
	PieceReadTimeout time.Duration `yaml:"piece-read-timeout"`

	// Max number of events kept until PollEvents is called. Oldest events are dropped.
	EventQueueSize int `yaml:"event-queue-size"`
	// Interval for saving byte counters to the resume database.
	StatsWriteInterval time.Duration `yaml:"stats-write-interval"`

	// Enables debug log messages.
	Debug bool `yaml:"debug"`
}

// DefaultConfig for Session. Do not pass zero value Config to NewSession. Copy this struct and modify instead.
var DefaultConfig = Config{
	Database:           "~/.ltcore/session.db",
	DataDir:            "~/ltcore-downloads",
	MaxConnections:     200,
	MaxUploads:         -1,
	ListenInterfaces:   "0.0.0.0:6881",
	EnableDHT:          true,
	DHTAddress:         "0.0.0.0",
	DHTPort:            7246,
	EnableLSD:          true,
	EnableUPnP:         true,
	EnableNATPMP:       true,
	RequestQueueLength: 50,
	RequestTimeout:     20 * time.Second,
	MaxRequestTimeouts: 5,
	MaxPeerDial:        25,
	KeepAliveInterval:  time.Minute,
	DialTimeout:        5 * time.Second,
	HandshakeTimeout:   10 * time.Second,
	PieceReadTimeout:   30 * time.Second,
	EventQueueSize:     1000,
	StatsWriteInterval: 30 * time.Second,
}

// LoadConfig reads a YAML file over DefaultConfig. A missing file is not an error.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	filename, err := homedir.Expand(filename)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
