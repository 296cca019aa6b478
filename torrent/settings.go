package torrent

// Settings are the options of a Session that can be changed while it is running.
type Settings struct {
	// Bytes per second. Zero means unlimited.
	DownloadRateLimit int64
	UploadRateLimit   int64
	// Max number of connected peers across all torrents. Zero means unlimited.
	MaxConnections int
	// Max number of unchoked peers per torrent. -1 means unlimited.
	MaxUploads int
	// Comma separated list of addresses to accept peer connections on. Empty disables listening.
	ListenInterfaces string
	EnableDHT        bool
	// Accepted for compatibility and not implemented.
	EnableLSD    bool
	EnableUPnP   bool
	EnableNATPMP bool
}

func settingsFromConfig(cfg Config) Settings {
	return Settings{
		DownloadRateLimit: cfg.DownloadRateLimit,
		UploadRateLimit:   cfg.UploadRateLimit,
		MaxConnections:    cfg.MaxConnections,
		MaxUploads:        cfg.MaxUploads,
		ListenInterfaces:  cfg.ListenInterfaces,
		EnableDHT:         cfg.EnableDHT,
		EnableLSD:         cfg.EnableLSD,
		EnableUPnP:        cfg.EnableUPnP,
		EnableNATPMP:      cfg.EnableNATPMP,
	}
}

// Settings returns the settings the session is running with.
func (s *Session) Settings() Settings {
	s.mSettings.Lock()
	defer s.mSettings.Unlock()
	return s.settings
}

// ApplySettings changes the settings of a running session.
// Listeners are restarted only if ListenInterfaces has changed, the DHT node only if EnableDHT has.
// If the DHT node cannot be started the other settings are still applied and the error is returned.
func (s *Session) ApplySettings(st Settings) error {
	s.mSettings.Lock()
	defer s.mSettings.Unlock()
	s.m.RLock()
	closed := s.closed
	s.m.RUnlock()
	if closed {
		return ErrSessionClosed
	}
	old := s.settings

	s.downloadLimiter.SetRate(st.DownloadRateLimit)
	s.uploadLimiter.SetRate(st.UploadRateLimit)
	s.maxConnections.Store(int32(st.MaxConnections))
	s.maxUploads.Store(int32(st.MaxUploads))
	if st.ListenInterfaces != old.ListenInterfaces {
		s.stopListeners()
		s.startListeners(st.ListenInterfaces)
	}
	var err error
	if st.EnableDHT != old.EnableDHT {
		if err = s.setDHT(st.EnableDHT); err != nil {
			s.log.Errorln("cannot start dht:", err)
			st.EnableDHT = old.EnableDHT
		}
	}
	s.logUnsupported(old, st)
	s.settings = st
	s.log.Info("settings applied")
	s.wakeTorrents()
	return err
}

func (s *Session) logUnsupported(old, st Settings) {
	if st.EnableLSD && !old.EnableLSD {
		s.log.Info("local service discovery is not supported")
	}
	if (st.EnableUPnP && !old.EnableUPnP) || (st.EnableNATPMP && !old.EnableNATPMP) {
		s.log.Info("port mapping with UPnP or NAT-PMP is not supported")
	}
}
