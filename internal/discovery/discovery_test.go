package discovery

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRestartable(t *testing.T) {
	d := Static("1.2.3.4:5", "6.7.8.9:10")
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		src := d.Discover(nil)
		addrs, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"1.2.3.4:5", "6.7.8.9:10"}, addrs)
		_, err = src.Next(ctx)
		assert.ErrorIs(t, err, ErrExhausted)
		src.Close()
	}
}

func TestStaticEmpty(t *testing.T) {
	_, err := Static().Discover(nil).Next(context.Background())
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestMerge(t *testing.T) {
	d := Merge(Static("a:1"), Static("b:2"))
	src := d.Discover(nil)
	defer src.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []string
	for {
		addrs, err := src.Next(ctx)
		if err != nil {
			assert.ErrorIs(t, err, ErrExhausted)
			break
		}
		got = append(got, addrs...)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"a:1", "b:2"}, got)
}

type blockingDiscovery struct{}

func (blockingDiscovery) Discover([]byte) Source { return blockingSource{} }

type blockingSource struct{}

func (blockingSource) Next(ctx context.Context) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingSource) Close() {}

func TestMergeCloseUnblocks(t *testing.T) {
	src := Merge(blockingDiscovery{}).Discover(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	src.Close()
}
