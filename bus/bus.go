// Package bus is a small in-process topic bus with retained messages and
// MQTT-style wildcards. The board publishes its state and button events on
// it.
package bus

import (
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Wildcard tokens. "+" matches exactly one level, "#" matches any number of
// trailing levels including none. They are only meaningful in subscriptions.
const (
	WildOne = "+"
	WildAll = "#"
)

// Topic is a sequence of comparable tokens, usually strings or ints.
type Topic []any

// T builds a topic and panics if a token is not comparable.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		if tok == nil || !reflect.TypeOf(tok).Comparable() {
			panic("bus: topic token must be comparable")
		}
	}
	return Topic(tokens)
}

// ParseTopic splits a slash-separated path into string tokens.
func ParseTopic(s string) Topic {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	t := make(Topic, len(parts))
	for i, p := range parts {
		t[i] = p
	}
	return t
}

func (t Topic) String() string {
	var sb strings.Builder
	for i, tok := range t {
		if i > 0 {
			sb.WriteByte('/')
		}
		switch v := tok.(type) {
		case string:
			sb.WriteString(v)
		case int:
			sb.WriteString(strconv.Itoa(v))
		default:
			sb.WriteString(reflect.ValueOf(v).String())
		}
	}
	return sb.String()
}

// Append returns a new topic with more tokens.
func (t Topic) Append(tokens ...any) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	return append(out, T(tokens...)...)
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic  Topic
	ch     chan *Message
	conn   *Connection
	closed bool // guarded by conn.mu
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Tries
// -----------------------------------------------------------------------------

// node holds subscriptions, keyed by pattern tokens.
type node struct {
	children map[any]*node
	subs     []*Subscription
}

// collect appends every subscription whose pattern matches topic[i:].
func (n *node) collect(topic Topic, i int, out []*Subscription) []*Subscription {
	if all := n.children[WildAll]; all != nil {
		out = append(out, all.subs...)
	}
	if i == len(topic) {
		return append(out, n.subs...)
	}
	if c := n.children[topic[i]]; c != nil {
		out = c.collect(topic, i+1, out)
	}
	if c := n.children[WildOne]; c != nil && topic[i] != WildOne {
		out = c.collect(topic, i+1, out)
	}
	return out
}

// rnode holds retained messages, keyed by concrete topic tokens.
type rnode struct {
	children map[any]*rnode
	msg      *Message
}

func (r *rnode) all(out []*Message) []*Message {
	if r.msg != nil {
		out = append(out, r.msg)
	}
	for _, c := range r.children {
		out = c.all(out)
	}
	return out
}

// match appends retained messages matching pattern[i:].
func (r *rnode) match(pattern Topic, i int, out []*Message) []*Message {
	if i == len(pattern) {
		if r.msg != nil {
			out = append(out, r.msg)
		}
		return out
	}
	switch pattern[i] {
	case WildAll:
		return r.all(out)
	case WildOne:
		for _, c := range r.children {
			out = c.match(pattern, i+1, out)
		}
		return out
	}
	if c := r.children[pattern[i]]; c != nil {
		out = c.match(pattern, i+1, out)
	}
	return out
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu       sync.Mutex
	root     *node
	retained *rnode
	qLen     int
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{
		root:     &node{},
		retained: &rnode{},
		qLen:     queueLen,
	}
}

// NewMessage builds a message; the topic is copied.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: append(Topic(nil), topic...), Payload: payload, Retained: retained}
}

// addSubscription inserts a subscription into the trie and replays every
// retained message its pattern matches.
func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.topic {
		if n.children == nil {
			n.children = make(map[any]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	for _, m := range b.retained.match(sub.topic, 0, nil) {
		select {
		case sub.ch <- m:
		default:
		}
	}
}

// Publish delivers a message to all matching subscribers. A retained
// message replaces the stored one for its topic; a retained message with a
// nil payload clears it.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		b.storeRetained(msg)
	}
	for _, sub := range b.root.collect(msg.Topic, 0, nil) {
		deliver(sub.ch, msg)
	}
}

// deliver never blocks: when the queue is full the oldest message is dropped.
func deliver(ch chan *Message, msg *Message) {
	for {
		select {
		case ch <- msg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (b *Bus) storeRetained(msg *Message) {
	r := b.retained
	var path []*rnode
	for _, tok := range msg.Topic {
		child := r.children[tok]
		if child == nil {
			if msg.Payload == nil {
				return
			}
			if r.children == nil {
				r.children = make(map[any]*rnode)
			}
			child = &rnode{}
			r.children[tok] = child
		}
		path = append(path, r)
		r = child
	}
	if msg.Payload != nil {
		r.msg = msg
		return
	}
	r.msg = nil
	for i := len(msg.Topic) - 1; i >= 0; i-- {
		parent, key := path[i], msg.Topic[i]
		child := parent.children[key]
		if child.msg != nil || len(child.children) > 0 {
			break
		}
		delete(parent.children, key)
	}
}

// unsubscribe removes a subscription from the trie.
func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, t := range sub.topic {
		child, ok := n.children[t]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}

	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	// Prune empty nodes.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent, key := stack[i], sub.topic[i]
		child := parent.children[key]
		if len(child.subs) > 0 || len(child.children) > 0 {
			break
		}
		delete(parent.children, key)
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: append(Topic(nil), topic...),
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes a subscription owned by this connection and closes
// its channel. Repeated calls are no-ops.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	if sub.closed {
		c.mu.Unlock()
		return
	}
	sub.closed = true
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.bus.unsubscribe(sub)
	close(sub.ch)
}

// Disconnect closes all subscriptions of the connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := append([]*Subscription(nil), c.subs...)
	c.mu.Unlock()
	for _, sub := range subs {
		c.Unsubscribe(sub)
	}
}
