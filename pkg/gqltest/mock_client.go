package gqltest

import (
	"context"
	"encoding/json"

	"github.com/drallgood/gqlstore/internal/logger"
	"github.com/drallgood/gqlstore/pkg/cache"
	"github.com/drallgood/gqlstore/pkg/client"
	"github.com/drallgood/gqlstore/pkg/link"
	"github.com/drallgood/gqlstore/pkg/recorder"
)

// MockOptions configures NewMockClient. The embedded client options are
// passed to client.New; a missing cache or link is replaced by an in-memory
// default. Each stub function is optional.
type MockOptions struct {
	client.Options

	WatchQuery func(opts client.WatchQueryOptions) *client.ObservableQuery
	ReadQuery  func(opts client.ReadQueryOptions, optimistic bool) (json.RawMessage, error)
	WriteQuery func(opts client.WriteQueryOptions) error
	Mutate     func(ctx context.Context, opts client.MutationOptions) (*link.Result, error)
	Subscribe  func(ctx context.Context, opts client.SubscriptionOptions) (*client.Subscription, error)
}

// WatchQueryCall holds the arguments of one WatchQuery call
type WatchQueryCall struct {
	Options client.WatchQueryOptions
}

// ReadQueryCall holds the arguments of one ReadQuery call
type ReadQueryCall struct {
	Options    client.ReadQueryOptions
	Optimistic bool
}

// WriteQueryCall holds the arguments of one WriteQuery call
type WriteQueryCall struct {
	Options client.WriteQueryOptions
}

// MutateCall holds the arguments of one Mutate call
type MutateCall struct {
	Ctx     context.Context
	Options client.MutationOptions
}

// SubscribeCall holds the arguments of one Subscribe call
type SubscribeCall struct {
	Ctx     context.Context
	Options client.SubscriptionOptions
}

// ReadQueryReturn holds the return values of a ReadQuery stub
type ReadQueryReturn struct {
	Data json.RawMessage
	Err  error
}

// MutateReturn holds the return values of a Mutate stub
type MutateReturn struct {
	Result *link.Result
	Err    error
}

// SubscribeReturn holds the return values of a Subscribe stub
type SubscribeReturn struct {
	Subscription *client.Subscription
	Err          error
}

// MockClient is a real client whose WatchQuery, ReadQuery, WriteQuery,
// Mutate and Subscribe methods are recording stubs. Everything else, Query
// included, is the embedded client's behaviour.
type MockClient struct {
	*client.Client

	watchQuery *recorder.Func[WatchQueryCall, *client.ObservableQuery]
	readQuery  *recorder.Func[ReadQueryCall, ReadQueryReturn]
	writeQuery *recorder.Func[WriteQueryCall, error]
	mutate     *recorder.Func[MutateCall, MutateReturn]
	subscribe  *recorder.Func[SubscribeCall, SubscribeReturn]
}

var _ client.API = (*MockClient)(nil)

// NewMockClient creates a MockClient. Errors from client.New are returned as is.
func NewMockClient(opts MockOptions) (*MockClient, error) {
	log := logger.OrGlobal(opts.Logger).Component("gqltest")

	if opts.Cache == nil {
		opts.Cache = cache.NewInMemoryCache(cache.WithLogger(opts.Logger))
	}
	if opts.Link == nil {
		local, err := link.NewLocalState(link.LocalStateConfig{
			Cache:     opts.Cache,
			Resolvers: link.Resolvers{},
			Logger:    opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		opts.Link = link.From(local)
	}

	c, err := client.New(opts.Options)
	if err != nil {
		return nil, err
	}

	log.Debug("Mock client created", map[string]interface{}{
		"watch_query": opts.WatchQuery != nil,
		"read_query":  opts.ReadQuery != nil,
		"write_query": opts.WriteQuery != nil,
		"mutate":      opts.Mutate != nil,
		"subscribe":   opts.Subscribe != nil,
	})

	return &MockClient{
		Client:     c,
		watchQuery: recorder.Wrap(watchQueryStub(opts.WatchQuery)),
		readQuery:  recorder.Wrap(readQueryStub(opts.ReadQuery)),
		writeQuery: recorder.Wrap(writeQueryStub(opts.WriteQuery)),
		mutate:     recorder.Wrap(mutateStub(opts.Mutate)),
		subscribe:  recorder.Wrap(subscribeStub(opts.Subscribe)),
	}, nil
}

// WatchQuery calls the WatchQuery stub
func (m *MockClient) WatchQuery(opts client.WatchQueryOptions) *client.ObservableQuery {
	return m.watchQuery.Call(WatchQueryCall{Options: opts})
}

// ReadQuery calls the ReadQuery stub
func (m *MockClient) ReadQuery(opts client.ReadQueryOptions, optimistic bool) (json.RawMessage, error) {
	ret := m.readQuery.Call(ReadQueryCall{Options: opts, Optimistic: optimistic})
	return ret.Data, ret.Err
}

// WriteQuery calls the WriteQuery stub
func (m *MockClient) WriteQuery(opts client.WriteQueryOptions) error {
	return m.writeQuery.Call(WriteQueryCall{Options: opts})
}

// Mutate calls the Mutate stub
func (m *MockClient) Mutate(ctx context.Context, opts client.MutationOptions) (*link.Result, error) {
	ret := m.mutate.Call(MutateCall{Ctx: ctx, Options: opts})
	return ret.Result, ret.Err
}

// Subscribe calls the Subscribe stub
func (m *MockClient) Subscribe(ctx context.Context, opts client.SubscriptionOptions) (*client.Subscription, error) {
	ret := m.subscribe.Call(SubscribeCall{Ctx: ctx, Options: opts})
	return ret.Subscription, ret.Err
}

// WatchQueryMock returns the recorder behind WatchQuery
func (m *MockClient) WatchQueryMock() *recorder.Func[WatchQueryCall, *client.ObservableQuery] {
	return m.watchQuery
}

// ReadQueryMock returns the recorder behind ReadQuery
func (m *MockClient) ReadQueryMock() *recorder.Func[ReadQueryCall, ReadQueryReturn] {
	return m.readQuery
}

// WriteQueryMock returns the recorder behind WriteQuery
func (m *MockClient) WriteQueryMock() *recorder.Func[WriteQueryCall, error] {
	return m.writeQuery
}

// MutateMock returns the recorder behind Mutate
func (m *MockClient) MutateMock() *recorder.Func[MutateCall, MutateReturn] {
	return m.mutate
}

// SubscribeMock returns the recorder behind Subscribe
func (m *MockClient) SubscribeMock() *recorder.Func[SubscribeCall, SubscribeReturn] {
	return m.subscribe
}

// The adapters below turn the optional stub functions into recorder
// functions. A nil stub yields a nil function, which records and returns
// zero values.

func watchQueryStub(fn func(client.WatchQueryOptions) *client.ObservableQuery) func(WatchQueryCall) *client.ObservableQuery {
	if fn == nil {
		return nil
	}
	return func(c WatchQueryCall) *client.ObservableQuery {
		return fn(c.Options)
	}
}

func readQueryStub(fn func(client.ReadQueryOptions, bool) (json.RawMessage, error)) func(ReadQueryCall) ReadQueryReturn {
	if fn == nil {
		return nil
	}
	return func(c ReadQueryCall) ReadQueryReturn {
		data, err := fn(c.Options, c.Optimistic)
		return ReadQueryReturn{Data: data, Err: err}
	}
}

func writeQueryStub(fn func(client.WriteQueryOptions) error) func(WriteQueryCall) error {
	if fn == nil {
		return nil
	}
	return func(c WriteQueryCall) error {
		return fn(c.Options)
	}
}

func mutateStub(fn func(context.Context, client.MutationOptions) (*link.Result, error)) func(MutateCall) MutateReturn {
	if fn == nil {
		return nil
	}
	return func(c MutateCall) MutateReturn {
		res, err := fn(c.Ctx, c.Options)
		return MutateReturn{Result: res, Err: err}
	}
}

func subscribeStub(fn func(context.Context, client.SubscriptionOptions) (*client.Subscription, error)) func(SubscribeCall) SubscribeReturn {
	if fn == nil {
		return nil
	}
	return func(c SubscribeCall) SubscribeReturn {
		sub, err := fn(c.Ctx, c.Options)
		return SubscribeReturn{Subscription: sub, Err: err}
	}
}
