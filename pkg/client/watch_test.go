package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/gqlstore/pkg/cache"
	"github.com/drallgood/gqlstore/pkg/link"
	"github.com/drallgood/gqlstore/pkg/store"
)

func collect(q *ObservableQuery, n int) []QueryResult {
	return store.CollectUntil[QueryResult](context.Background(), q, store.AtLeast[QueryResult](n), time.Second)
}

func TestWatchQuery_LoadingThenData(t *testing.T) {
	server := new(MockLink)
	server.On("Request", mock.Anything, mock.Anything).Return(data(`{"books":[{"id":"1"}]}`), nil).Once()

	cl, _ := newTestClient(t, server, CacheFirst)
	q := cl.WatchQuery(WatchQueryOptions{Query: booksQuery})

	assert.True(t, q.Current().Loading)
	server.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)

	got := collect(q, 2)
	require.Len(t, got, 2)
	assert.True(t, got[0].Loading)
	assert.False(t, got[1].Loading)
	assert.NoError(t, got[1].Err)
	assert.JSONEq(t, `{"books":[{"id":"1"}]}`, string(got[1].Data))

	var out struct {
		Books []struct {
			ID string `json:"id"`
		} `json:"books"`
	}
	require.NoError(t, got[1].Decode(&out))
	assert.Equal(t, "1", out.Books[0].ID)

	// the second subscription is answered from the cache
	got = collect(q, 2)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"books":[{"id":"1"}]}`, string(got[1].Data))
	server.AssertExpectations(t)
}

func TestWatchQuery_ReemitsOnCacheChange(t *testing.T) {
	cl, c := newTestClient(t, new(MockLink), CacheOnly)
	key := cache.KeyFor(booksQuery, nil)
	c.Write(key, json.RawMessage(`{"books":[]}`))

	q := cl.WatchQuery(WatchQueryOptions{Query: booksQuery})

	results := make(chan QueryResult, 10)
	unsubscribe := q.Subscribe(func(r QueryResult) { results <- r })

	next := func() QueryResult {
		select {
		case r := <-results:
			return r
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for an emission")
			return QueryResult{}
		}
	}

	assert.True(t, next().Loading)
	assert.JSONEq(t, `{"books":[]}`, string(next().Data))

	require.NoError(t, cl.WriteQuery(WriteQueryOptions{Query: booksQuery, Data: json.RawMessage(`{"books":[{"id":"2"}]}`)}))
	assert.JSONEq(t, `{"books":[{"id":"2"}]}`, string(next().Data))

	unsubscribe()
	require.NoError(t, cl.WriteQuery(WriteQueryOptions{Query: booksQuery, Data: json.RawMessage(`{"books":[]}`)}))

	select {
	case r := <-results:
		t.Fatalf("unexpected emission after unsubscribe: %+v", r)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestWatchQuery_CacheOnlyMiss(t *testing.T) {
	server := new(MockLink)
	cl, _ := newTestClient(t, server, CacheOnly)

	got := collect(cl.WatchQuery(WatchQueryOptions{Query: booksQuery}), 2)
	require.Len(t, got, 2)
	assert.ErrorIs(t, got[1].Err, cache.ErrCacheMiss)
	server.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)
}

func TestWatchQuery_PerOperationPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  FetchPolicy
		wantErr error
	}{
		{name: "upper case is normalised", policy: "CACHE-ONLY", wantErr: cache.ErrCacheMiss},
		{name: "unknown policy", policy: "bogus", wantErr: ErrInvalidOptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := new(MockLink)
			cl, c := newTestClient(t, server, NetworkOnly)

			q := cl.WatchQuery(WatchQueryOptions{Query: booksQuery, FetchPolicy: tt.policy})
			got := collect(q, 2)
			require.Len(t, got, 2)
			assert.False(t, got[1].Loading)
			assert.ErrorIs(t, got[1].Err, tt.wantErr)

			if errors.Is(tt.wantErr, ErrInvalidOptions) {
				_, err := q.Refetch(context.Background())
				assert.ErrorIs(t, err, ErrInvalidOptions)
			}
			server.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)
			assert.Zero(t, c.Len())
		})
	}
}

func TestWatchQuery_EvictEmitsMiss(t *testing.T) {
	cl, c := newTestClient(t, new(MockLink), CacheOnly)
	key := cache.KeyFor(booksQuery, nil)
	c.Write(key, json.RawMessage(`{"books":[]}`))

	q := cl.WatchQuery(WatchQueryOptions{Query: booksQuery})
	results := make(chan QueryResult, 8)
	unsubscribe := q.Subscribe(func(r QueryResult) { results <- r })
	defer unsubscribe()

	c.Evict(key)

	var last QueryResult
	for i := 0; i < 3; i++ {
		select {
		case last = <-results:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for emissions")
		}
	}
	assert.Nil(t, last.Data)
	assert.ErrorIs(t, last.Err, cache.ErrCacheMiss)
}

func TestWatchQuery_Error(t *testing.T) {
	boom := errors.New("boom")
	server := new(MockLink)
	server.On("Request", mock.Anything, mock.Anything).Return(nil, boom)

	cl, _ := newTestClient(t, server, NetworkOnly)
	got := collect(cl.WatchQuery(WatchQueryOptions{Query: booksQuery}), 2)

	require.Len(t, got, 2)
	assert.ErrorIs(t, got[1].Err, boom)
	assert.False(t, got[1].Loading)
}

func TestWatchQuery_NoCache(t *testing.T) {
	server := new(MockLink)
	server.On("Request", mock.Anything, mock.Anything).Return(data(`{"books":[]}`), nil)

	cl, c := newTestClient(t, server, NoCache)
	got := collect(cl.WatchQuery(WatchQueryOptions{Query: booksQuery}), 2)

	require.Len(t, got, 2)
	assert.JSONEq(t, `{"books":[]}`, string(got[1].Data))
	assert.Zero(t, c.Len())
}

func TestWatchQuery_Polling(t *testing.T) {
	var calls int32
	counter := link.Func(func(ctx context.Context, op link.Operation, next link.Next) (*link.Result, error) {
		n := atomic.AddInt32(&calls, 1)
		return data(fmt.Sprintf(`{"count":%d}`, n)), nil
	})

	cl, _ := newTestClient(t, counter, NetworkOnly)
	q := cl.WatchQuery(WatchQueryOptions{Query: "query Count { count }", PollInterval: 5 * time.Millisecond})

	got := collect(q, 4)
	require.Len(t, got, 4)
	assert.True(t, got[0].Loading)
	assert.JSONEq(t, `{"count":1}`, string(got[1].Data))
	assert.JSONEq(t, `{"count":2}`, string(got[2].Data))
	assert.JSONEq(t, `{"count":3}`, string(got[3].Data))

	// polling stops with the last subscriber
	stopped := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), stopped+1)
}

func TestWatchQuery_Refetch(t *testing.T) {
	server := new(MockLink)
	server.On("Request", mock.Anything, mock.Anything).Return(data(`{"books":[]}`), nil).Once()
	server.On("Request", mock.Anything, mock.Anything).Return(data(`{"books":[{"id":"9"}]}`), nil).Once()

	cl, c := newTestClient(t, server, CacheFirst)
	q := cl.WatchQuery(WatchQueryOptions{Query: booksQuery})
	require.Len(t, collect(q, 2), 2)

	res, err := q.Refetch(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"books":[{"id":"9"}]}`, string(res.Data))

	stored, err := c.Read(cache.KeyFor(booksQuery, nil), false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"books":[{"id":"9"}]}`, string(stored))
	server.AssertExpectations(t)
}
