// Package discovery defines where a torrent gets candidate peer addresses from.
package discovery

import (
	"context"
	"errors"
	"sync"
)

// ErrExhausted is returned by Source.Next when a source has nothing more to give.
// The caller may start over by calling Discover again.
var ErrExhausted = errors.New("discovery source exhausted")

// Discovery produces peer addresses for torrents.
type Discovery interface {
	// Discover starts a new lookup for infoHash. Each call restarts from the beginning.
	Discover(infoHash []byte) Source
}

// Source is a lazy sequence of peer address batches.
type Source interface {
	// Next blocks until more addresses are found, ctx is done or the source is exhausted.
	Next(ctx context.Context) ([]string, error)
	Close()
}

// Static returns a Discovery that yields addrs once per lookup.
func Static(addrs ...string) Discovery {
	return staticDiscovery(addrs)
}

type staticDiscovery []string

func (d staticDiscovery) Discover(infoHash []byte) Source {
	return &staticSource{addrs: d}
}

type staticSource struct {
	m     sync.Mutex
	addrs []string
	given bool
}

func (s *staticSource) Next(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.m.Lock()
	defer s.m.Unlock()
	if s.given || len(s.addrs) == 0 {
		return nil, ErrExhausted
	}
	s.given = true
	return append([]string(nil), s.addrs...), nil
}

func (s *staticSource) Close() {}

// Merge returns a Discovery that combines the addresses of all ds.
// The merged source is exhausted when all sources are exhausted.
func Merge(ds ...Discovery) Discovery {
	return merged(ds)
}

type merged []Discovery

func (m merged) Discover(infoHash []byte) Source {
	ctx, cancel := context.WithCancel(context.Background())
	s := &mergedSource{
		resultC: make(chan []string),
		cancel:  cancel,
		doneC:   make(chan struct{}),
	}
	var wg sync.WaitGroup
	for _, d := range m {
		src := d.Discover(infoHash)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer src.Close()
			for {
				addrs, err := src.Next(ctx)
				if err != nil {
					return
				}
				select {
				case s.resultC <- addrs:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(s.doneC)
	}()
	return s
}

type mergedSource struct {
	resultC chan []string
	cancel  context.CancelFunc
	doneC   chan struct{}
}

func (s *mergedSource) Next(ctx context.Context) ([]string, error) {
	select {
	case addrs := <-s.resultC:
		return addrs, nil
	case <-s.doneC:
		return nil, ErrExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *mergedSource) Close() {
	s.cancel()
	<-s.doneC
}
