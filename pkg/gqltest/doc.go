/*
Package gqltest provides helpers for testing code that uses a GraphQL client.

NewMockClient builds a real client.Client that never leaves the process and
replaces WatchQuery, ReadQuery, WriteQuery, Mutate and Subscribe with
recording stubs:

	mc, err := gqltest.NewMockClient(gqltest.MockOptions{
		WatchQuery: func(opts client.WatchQueryOptions) *client.ObservableQuery {
			return fixture
		},
	})
	require.NoError(t, err)

	runComponent(mc)
	mc.WatchQueryMock().AssertCalledTimes(t, 1)

Read collects what a store emits, bounded by a count and a wait budget:

	values := gqltest.Read[client.QueryResult](query, gqltest.Take(2), gqltest.Wait(50*time.Millisecond))

Read never fails. When fewer values arrive than requested it returns what it
got once the wait budget is spent, so assert on the length of the result.
*/
package gqltest
