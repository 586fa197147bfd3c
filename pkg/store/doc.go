/*
Package store provides small subscribable value containers and helpers for
observing them.

A Subscribable is anything that can register a handler for future values and
hand back a function that removes it again:

	unsubscribe := src.Subscribe(func(v T) { ... })
	defer unsubscribe()

Writable keeps a current value and replays it to every new subscriber, the way
svelte stores do. Feed only forwards values sent after a handler subscribed.

Handlers are never invoked while an internal lock is held, so a handler may
call Set, Subscribe or its own unsubscribe function. Values reach each handler
in the order they were set.
*/
package store
