package torrent

import (
	"github.com/rcrowley/go-metrics"
)

type sessionMetrics struct {
	registry metrics.Registry

	torrents      metrics.Gauge
	peers         metrics.Counter
	downloadSpeed metrics.Meter
	uploadSpeed   metrics.Meter
}

func (s *Session) initMetrics() {
	r := metrics.NewRegistry()
	s.metrics = &sessionMetrics{
		registry: r,
		torrents: metrics.NewRegisteredFunctionalGauge("torrents", r, func() int64 {
			s.m.RLock()
			defer s.m.RUnlock()
			return int64(s.torrents.Len())
		}),
		peers:         metrics.NewRegisteredCounter("peers", r),
		downloadSpeed: metrics.NewRegisteredMeter("speed_download", r),
		uploadSpeed:   metrics.NewRegisteredMeter("speed_upload", r),
	}
}

func (m *sessionMetrics) stop() {
	m.downloadSpeed.Stop()
	m.uploadSpeed.Stop()
	m.registry.UnregisterAll()
}
