package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNoSubscriptionLink is returned when a chain has no link able to subscribe
	ErrNoSubscriptionLink = errors.New("no link in the chain supports subscriptions")
	// ErrUnresolved is returned when a client-only operation has no data
	ErrUnresolved = errors.New("client state could not be resolved")
)

// OperationType is the kind of GraphQL operation
type OperationType string

// Operation types
const (
	Query        OperationType = "query"
	Mutation     OperationType = "mutation"
	Subscription OperationType = "subscription"
)

// Context keys understood by the links in this package
const (
	ContextClientName    = "clientName"
	ContextClientVersion = "clientVersion"
	ContextHeaders       = "headers"
)

var operationHeader = regexp.MustCompile(`^\s*(query|mutation|subscription)\s+([_A-Za-z][_0-9A-Za-z]*)`)

// Operation is one request travelling through a link chain
type Operation struct {
	ID        string
	Name      string
	Type      OperationType
	Query     string
	Variables map[string]interface{}
	// Context carries per-operation data between links, e.g. client awareness
	Context map[string]interface{}
}

// NewOperation creates an operation with a fresh ID. The name is taken from
// the document header when present.
func NewOperation(typ OperationType, query string, variables map[string]interface{}) Operation {
	return Operation{
		ID:        uuid.NewString(),
		Name:      OperationName(query),
		Type:      typ,
		Query:     query,
		Variables: variables,
		Context:   map[string]interface{}{},
	}
}

// OperationName extracts the name of a named operation, or "" for anonymous ones
func OperationName(query string) string {
	m := operationHeader.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return m[2]
}

// ContextString returns a string stored in the operation context
func (op Operation) ContextString(key string) string {
	s, _ := op.Context[key].(string)
	return s
}

// GraphQLError is an error reported by a GraphQL server
type GraphQLError struct {
	Message    string                 `json:"message"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// GraphQLErrors is the errors list of a response
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Result is the response to an operation
type Result struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors GraphQLErrors   `json:"errors,omitempty"`
}

// Err returns the GraphQL errors as an error, or nil
func (r *Result) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return r.Errors
}

// Decode unmarshals the data of r into v
func (r *Result) Decode(v interface{}) error {
	if r == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return fmt.Errorf("decode result: %w", ErrUnresolved)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Next hands an operation to the rest of the chain
type Next func(ctx context.Context, op Operation) (*Result, error)

// Link is one step of a request chain. Terminating links ignore next.
type Link interface {
	Request(ctx context.Context, op Operation, next Next) (*Result, error)
}

// Subscriber is implemented by links that can open a subscription
type Subscriber interface {
	Subscribe(ctx context.Context, op Operation, emit func(*Result)) (func(), error)
}

// Func adapts a function to the Link interface
type Func func(ctx context.Context, op Operation, next Next) (*Result, error)

// Request implements Link
func (f Func) Request(ctx context.Context, op Operation, next Next) (*Result, error) {
	return f(ctx, op, next)
}

// Empty ends a chain without doing anything: it returns an empty result
func Empty(context.Context, Operation) (*Result, error) {
	return &Result{}, nil
}

// Execute runs op through l, terminating with Empty
func Execute(ctx context.Context, l Link, op Operation) (*Result, error) {
	return l.Request(ctx, op, Empty)
}

// Chain runs its links in order, each one deciding whether to call the next
type Chain struct {
	links []Link
}

// From composes links into a chain. Nil links are skipped and nested chains
// are flattened.
func From(links ...Link) *Chain {
	c := &Chain{}
	for _, l := range links {
		switch v := l.(type) {
		case nil:
		case *Chain:
			c.links = append(c.links, v.links...)
		default:
			c.links = append(c.links, l)
		}
	}
	return c
}

// Links returns the links of the chain in order
func (c *Chain) Links() []Link {
	return append([]Link(nil), c.links...)
}

// Request implements Link
func (c *Chain) Request(ctx context.Context, op Operation, next Next) (*Result, error) {
	if next == nil {
		next = Empty
	}
	return c.step(0, next)(ctx, op)
}

func (c *Chain) step(i int, last Next) Next {
	if i >= len(c.links) {
		return last
	}
	return func(ctx context.Context, op Operation) (*Result, error) {
		return c.links[i].Request(ctx, op, c.step(i+1, last))
	}
}

// Subscribe delegates to the first link that implements Subscriber
func (c *Chain) Subscribe(ctx context.Context, op Operation, emit func(*Result)) (func(), error) {
	for _, l := range c.links {
		if s, ok := l.(Subscriber); ok {
			return s.Subscribe(ctx, op, emit)
		}
	}
	return nil, ErrNoSubscriptionLink
}
