package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/gqlstore/internal/logger"
	"github.com/drallgood/gqlstore/pkg/cache"
	"github.com/drallgood/gqlstore/pkg/link"
)

const booksQuery = "query Books { books { id } }"

// MockLink is a mock implementation of link.Link
type MockLink struct {
	mock.Mock
}

// Request mocks the Request method
func (m *MockLink) Request(ctx context.Context, op link.Operation, next link.Next) (*link.Result, error) {
	args := m.Called(ctx, op)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*link.Result), args.Error(1)
}

func data(s string) *link.Result {
	return &link.Result{Data: json.RawMessage(s)}
}

func newTestClient(t *testing.T, l link.Link, policy FetchPolicy) (*Client, *cache.InMemoryCache) {
	t.Helper()
	c := cache.NewInMemoryCache(cache.WithLogger(logger.Nop()))
	cl, err := New(Options{
		Cache:              c,
		Link:               l,
		Name:               "tests",
		Version:            "0.0.1",
		DefaultFetchPolicy: policy,
		Logger:             logger.Nop(),
	})
	require.NoError(t, err)
	return cl, c
}

func TestNew(t *testing.T) {
	c := cache.NewInMemoryCache()
	l := link.From()

	tests := []struct {
		name    string
		opts    Options
		wantErr error
		policy  FetchPolicy
	}{
		{name: "missing cache", opts: Options{Link: l}, wantErr: ErrInvalidOptions},
		{name: "missing link", opts: Options{Cache: c}, wantErr: ErrInvalidOptions},
		{name: "unknown fetch policy", opts: Options{Cache: c, Link: l, DefaultFetchPolicy: "sometimes"}, wantErr: ErrInvalidOptions},
		{name: "defaults", opts: Options{Cache: c, Link: l}, policy: CacheFirst},
		{name: "explicit policy", opts: Options{Cache: c, Link: l, DefaultFetchPolicy: NetworkOnly}, policy: NetworkOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl, err := New(tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, cl)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.policy, cl.DefaultFetchPolicy())
			assert.Same(t, c, cl.Cache())
			assert.Equal(t, l, cl.Link())
		})
	}
}

func TestParseFetchPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FetchPolicy
		wantErr bool
	}{
		{in: "", want: CacheFirst},
		{in: "cache-first", want: CacheFirst},
		{in: " Network-Only ", want: NetworkOnly},
		{in: "cache-only", want: CacheOnly},
		{in: "no-cache", want: NoCache},
		{in: "cache-and-network", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFetchPolicy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOptions)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_QueryFetchPolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     FetchPolicy
		cached     string
		wantData   string
		wantCalls  int
		wantCached string
		wantErr    error
	}{
		{name: "cache-first hit", policy: CacheFirst, cached: `{"books":[]}`, wantData: `{"books":[]}`, wantCached: `{"books":[]}`},
		{name: "cache-first miss", policy: CacheFirst, wantData: `{"books":[{"id":"1"}]}`, wantCalls: 1, wantCached: `{"books":[{"id":"1"}]}`},
		{name: "network-only", policy: NetworkOnly, cached: `{"books":[]}`, wantData: `{"books":[{"id":"1"}]}`, wantCalls: 1, wantCached: `{"books":[{"id":"1"}]}`},
		{name: "cache-only hit", policy: CacheOnly, cached: `{"books":[]}`, wantData: `{"books":[]}`, wantCached: `{"books":[]}`},
		{name: "cache-only miss", policy: CacheOnly, wantErr: cache.ErrCacheMiss},
		{name: "no-cache", policy: NoCache, wantData: `{"books":[{"id":"1"}]}`, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := new(MockLink)
			server.On("Request", mock.Anything, mock.Anything).Return(data(`{"books":[{"id":"1"}]}`), nil)

			cl, c := newTestClient(t, server, CacheFirst)
			key := cache.KeyFor(booksQuery, nil)
			if tt.cached != "" {
				c.Write(key, json.RawMessage(tt.cached))
			}

			res, err := cl.Query(context.Background(), QueryOptions{Query: booksQuery, FetchPolicy: tt.policy})
			server.AssertNumberOfCalls(t, "Request", tt.wantCalls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.wantData, string(res.Data))

			stored, err := c.Read(key, false)
			if tt.wantCached == "" {
				assert.ErrorIs(t, err, cache.ErrCacheMiss)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.wantCached, string(stored))
		})
	}
}

func TestClient_QueryPerOperationPolicy(t *testing.T) {
	tests := []struct {
		name      string
		policy    FetchPolicy
		wantCalls int
		wantErr   error
	}{
		{name: "upper case is normalised", policy: "CACHE-ONLY", wantErr: cache.ErrCacheMiss},
		{name: "padded name", policy: " no-cache ", wantCalls: 1},
		{name: "unknown policy", policy: "bogus", wantErr: ErrInvalidOptions},
		{name: "unsupported policy", policy: "cache-and-network", wantErr: ErrInvalidOptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := new(MockLink)
			server.On("Request", mock.Anything, mock.Anything).Return(data(`{"books":[]}`), nil)

			cl, c := newTestClient(t, server, NetworkOnly)
			_, err := cl.Query(context.Background(), QueryOptions{Query: booksQuery, FetchPolicy: tt.policy})

			server.AssertNumberOfCalls(t, "Request", tt.wantCalls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Zero(t, c.Len(), "nothing is written to the cache")
		})
	}
}

func TestClient_QuerySendsClientAwareness(t *testing.T) {
	server := new(MockLink)
	server.On("Request", mock.Anything, mock.MatchedBy(func(op link.Operation) bool {
		return op.Type == link.Query &&
			op.Name == "Books" &&
			op.ContextString(link.ContextClientName) == "tests" &&
			op.ContextString(link.ContextClientVersion) == "0.0.1" &&
			op.ContextString("trace") == "abc"
	})).Return(data(`{"books":[]}`), nil).Once()

	cl, _ := newTestClient(t, server, NetworkOnly)
	_, err := cl.Query(context.Background(), QueryOptions{
		Query:   booksQuery,
		Context: map[string]interface{}{"trace": "abc"},
	})
	require.NoError(t, err)
	server.AssertExpectations(t)
}

func TestClient_QueryErrors(t *testing.T) {
	t.Run("graphql errors", func(t *testing.T) {
		server := new(MockLink)
		server.On("Request", mock.Anything, mock.Anything).
			Return(&link.Result{Errors: link.GraphQLErrors{{Message: "denied"}}}, nil)

		cl, c := newTestClient(t, server, NetworkOnly)
		res, err := cl.Query(context.Background(), QueryOptions{Query: booksQuery})

		var gqlErrs link.GraphQLErrors
		require.True(t, errors.As(err, &gqlErrs))
		assert.Equal(t, "denied", gqlErrs[0].Message)
		require.NotNil(t, res)
		assert.Zero(t, c.Len(), "failed results are not cached")
	})

	t.Run("link errors", func(t *testing.T) {
		boom := errors.New("boom")
		server := new(MockLink)
		server.On("Request", mock.Anything, mock.Anything).Return(nil, boom)

		cl, _ := newTestClient(t, server, NetworkOnly)
		_, err := cl.Query(context.Background(), QueryOptions{Query: booksQuery})
		assert.ErrorIs(t, err, boom)
		assert.ErrorContains(t, err, "query Books")
	})
}

func TestClient_ReadWriteQuery(t *testing.T) {
	cl, _ := newTestClient(t, new(MockLink), CacheFirst)
	vars := map[string]interface{}{"id": "1"}

	_, err := cl.ReadQuery(ReadQueryOptions{Query: booksQuery, Variables: vars}, false)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	require.NoError(t, cl.WriteQuery(WriteQueryOptions{Query: booksQuery, Variables: vars, Data: json.RawMessage(`{"books":[]}`)}))

	got, err := cl.ReadQuery(ReadQueryOptions{Query: booksQuery, Variables: vars}, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"books":[]}`, string(got))

	err = cl.WriteQuery(WriteQueryOptions{Query: booksQuery, Data: json.RawMessage(`{broken`)})
	assert.ErrorIs(t, err, ErrInvalidData)
	err = cl.WriteQuery(WriteQueryOptions{Query: booksQuery})
	assert.ErrorIs(t, err, ErrInvalidData)
}
