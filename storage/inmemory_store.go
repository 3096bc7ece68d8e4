package storage

import (
	"bytes"
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// dumpMagic prefixes every DUMP payload. It holds a CRLF and a 0xff byte so
// that payloads are only ever handled as length framed binary.
var dumpMagic = []byte("\xffRCDUMP\r\n\x01")

type kind int

const (
	kindString kind = iota
	kindList
	kindHash
	kindSet
)

type entry struct {
	kind     kind
	str      []byte
	list     [][]byte
	hash     map[string][]byte
	set      map[string]struct{}
	expireAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

type subscriptions struct {
	channels map[string]struct{}
	patterns map[string]struct{}
}

func (s *subscriptions) count() int {
	return len(s.channels) + len(s.patterns)
}

type InmemoryStore struct {
	mu     sync.Mutex
	values map[string]*entry

	subMu       sync.Mutex
	subscribers map[Subscriber]*subscriptions

	now func() time.Time

	// stop willl be closed when Close() is called
	stop chan struct{}
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values:      make(map[string]*entry),
		subscribers: make(map[Subscriber]*subscriptions),
		now:         time.Now,
		stop:        make(chan struct{}),
	}
}

func (i *InmemoryStore) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.isRunning() {
		close(i.stop)
	}

	return nil
}

func (i *InmemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindString)
	if err != nil || e == nil {
		return nil, false, err
	}

	return clone(e.str), true, nil
}

// Set stores value under key. It reports false when NX or XX prevented the
// write.
func (i *InmemoryStore) Set(ctx context.Context, key string, value []byte, opts SetOptions) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return false, ErrClosed
	}

	_, exists := i.live(key)
	if (opts.IfMissing && exists) || (opts.IfExists && !exists) {
		return false, nil
	}

	e := &entry{kind: kindString, str: clone(value)}
	if opts.TTL > 0 {
		e.expireAt = i.now().Add(opts.TTL)
	}

	i.values[key] = e
	return true, nil
}

func (i *InmemoryStore) Del(ctx context.Context, keys ...string) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var removed int64
	for _, key := range keys {
		if _, ok := i.live(key); ok {
			delete(i.values, key)
			removed++
		}
	}

	return removed, nil
}

func (i *InmemoryStore) Exists(ctx context.Context, keys ...string) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var found int64
	for _, key := range keys {
		if _, ok := i.live(key); ok {
			found++
		}
	}

	return found, nil
}

func (i *InmemoryStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindString)
	if err != nil {
		return 0, err
	}

	if e == nil {
		e = &entry{kind: kindString}
		i.values[key] = e
	}

	current := int64(0)
	if len(e.str) > 0 {
		if current, err = strconv.ParseInt(string(e.str), 10, 64); err != nil {
			return 0, ErrNotInteger
		}
	}

	current += delta
	e.str = strconv.AppendInt(nil, current, 10)

	return current, nil
}

func (i *InmemoryStore) Append(ctx context.Context, key string, value []byte) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindString)
	if err != nil {
		return 0, err
	}

	if e == nil {
		e = &entry{kind: kindString}
		i.values[key] = e
	}

	e.str = append(e.str, value...)
	return int64(len(e.str)), nil
}

func (i *InmemoryStore) StrLen(ctx context.Context, key string) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindString)
	if err != nil || e == nil {
		return 0, err
	}

	return int64(len(e.str)), nil
}

// Dump serializes a string value. Other kinds are not supported.
func (i *InmemoryStore) Dump(ctx context.Context, key string) ([]byte, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindString)
	if err != nil || e == nil {
		return nil, false, err
	}

	payload := make([]byte, 0, len(dumpMagic)+len(e.str))
	payload = append(payload, dumpMagic...)
	payload = append(payload, e.str...)

	return payload, true, nil
}

func (i *InmemoryStore) Restore(ctx context.Context, key string, ttl time.Duration, payload []byte, replace bool) error {
	if !bytes.HasPrefix(payload, dumpMagic) {
		return ErrBadPayload
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, exists := i.live(key); exists && !replace {
		return ErrBusyKey
	}

	e := &entry{kind: kindString, str: clone(payload[len(dumpMagic):])}
	if ttl > 0 {
		e.expireAt = i.now().Add(ttl)
	}

	i.values[key] = e
	return nil
}

// Push adds values to the head (left) or tail of a list and returns its new
// length.
func (i *InmemoryStore) Push(ctx context.Context, key string, left bool, values ...[]byte) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindList)
	if err != nil {
		return 0, err
	}

	if e == nil {
		e = &entry{kind: kindList}
		i.values[key] = e
	}

	for _, v := range values {
		if left {
			e.list = append([][]byte{clone(v)}, e.list...)
		} else {
			e.list = append(e.list, clone(v))
		}
	}

	return int64(len(e.list)), nil
}

// Range returns list elements between start and stop inclusive. Negative
// offsets count from the end.
func (i *InmemoryStore) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindList)
	if err != nil || e == nil {
		return [][]byte{}, err
	}

	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}

	out := [][]byte{}
	for idx := start; idx <= stop; idx++ {
		out = append(out, clone(e.list[idx]))
	}

	return out, nil
}

func (i *InmemoryStore) LLen(ctx context.Context, key string) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindList)
	if err != nil || e == nil {
		return 0, err
	}

	return int64(len(e.list)), nil
}

// HSet takes alternating fields and values and returns the number of fields
// that were added.
func (i *InmemoryStore) HSet(ctx context.Context, key string, fieldValues ...[]byte) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindHash)
	if err != nil {
		return 0, err
	}

	if e == nil {
		e = &entry{kind: kindHash, hash: make(map[string][]byte)}
		i.values[key] = e
	}

	var added int64
	for idx := 0; idx+1 < len(fieldValues); idx += 2 {
		field := string(fieldValues[idx])
		if _, ok := e.hash[field]; !ok {
			added++
		}
		e.hash[field] = clone(fieldValues[idx+1])
	}

	return added, nil
}

func (i *InmemoryStore) HGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindHash)
	if err != nil || e == nil {
		return nil, false, err
	}

	v, ok := e.hash[field]
	return clone(v), ok, nil
}

// HGetAll returns alternating fields and values ordered by field.
func (i *InmemoryStore) HGetAll(ctx context.Context, key string) ([][]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindHash)
	if err != nil || e == nil {
		return [][]byte{}, err
	}

	fields := make([]string, 0, len(e.hash))
	for field := range e.hash {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make([][]byte, 0, 2*len(fields))
	for _, field := range fields {
		out = append(out, []byte(field), clone(e.hash[field]))
	}

	return out, nil
}

func (i *InmemoryStore) SAdd(ctx context.Context, key string, members ...[]byte) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindSet)
	if err != nil {
		return 0, err
	}

	if e == nil {
		e = &entry{kind: kindSet, set: make(map[string]struct{})}
		i.values[key] = e
	}

	var added int64
	for _, m := range members {
		if _, ok := e.set[string(m)]; !ok {
			e.set[string(m)] = struct{}{}
			added++
		}
	}

	return added, nil
}

// SMembers returns the members of a set in lexical order.
func (i *InmemoryStore) SMembers(ctx context.Context, key string) ([][]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, err := i.lookup(key, kindSet)
	if err != nil || e == nil {
		return [][]byte{}, err
	}

	members := make([]string, 0, len(e.set))
	for m := range e.set {
		members = append(members, m)
	}
	sort.Strings(members)

	out := make([][]byte, len(members))
	for idx, m := range members {
		out[idx] = []byte(m)
	}

	return out, nil
}

// Subscribe adds channel to the subscriber's channels and returns how many
// channels and patterns it is now subscribed to.
func (i *InmemoryStore) Subscribe(sub Subscriber, channel string) int {
	i.subMu.Lock()
	defer i.subMu.Unlock()

	s := i.subscriptionsOf(sub)
	s.channels[channel] = struct{}{}

	return s.count()
}

func (i *InmemoryStore) Unsubscribe(sub Subscriber, channel string) int {
	i.subMu.Lock()
	defer i.subMu.Unlock()

	s := i.subscriptionsOf(sub)
	delete(s.channels, channel)

	return s.count()
}

func (i *InmemoryStore) PSubscribe(sub Subscriber, pattern string) int {
	i.subMu.Lock()
	defer i.subMu.Unlock()

	s := i.subscriptionsOf(sub)
	s.patterns[pattern] = struct{}{}

	return s.count()
}

func (i *InmemoryStore) PUnsubscribe(sub Subscriber, pattern string) int {
	i.subMu.Lock()
	defer i.subMu.Unlock()

	s := i.subscriptionsOf(sub)
	delete(s.patterns, pattern)

	return s.count()
}

// Subscriptions returns the subscriber's channels and patterns in lexical
// order.
func (i *InmemoryStore) Subscriptions(sub Subscriber) ([]string, []string) {
	i.subMu.Lock()
	defer i.subMu.Unlock()

	s, ok := i.subscribers[sub]
	if !ok {
		return []string{}, []string{}
	}

	return sortedKeys(s.channels), sortedKeys(s.patterns)
}

// Forget drops every subscription of sub.
func (i *InmemoryStore) Forget(sub Subscriber) {
	i.subMu.Lock()
	defer i.subMu.Unlock()

	delete(i.subscribers, sub)
}

// Publish delivers payload to every subscriber of channel and to every
// subscriber with a matching pattern, returning the number of deliveries.
func (i *InmemoryStore) Publish(ctx context.Context, channel string, payload []byte) (receivers int64, err error) {
	if !i.isRunning() {
		return 0, ErrClosed
	}

	type delivery struct {
		sub Subscriber
		msg *Message
	}

	i.subMu.Lock()
	deliveries := make([]delivery, 0, len(i.subscribers))
	for sub, s := range i.subscribers {
		if _, ok := s.channels[channel]; ok {
			deliveries = append(deliveries, delivery{sub, &Message{Kind: "message", Channel: channel, Payload: clone(payload)}})
		}

		for pattern := range s.patterns {
			if matched, _ := path.Match(pattern, channel); matched {
				deliveries = append(deliveries, delivery{sub, &Message{Kind: "pmessage", Pattern: pattern, Channel: channel, Payload: clone(payload)}})
			}
		}
	}
	i.subMu.Unlock()

	for _, d := range deliveries {
		if derr := d.sub.Deliver(d.msg); derr != nil {
			err = multierr.Append(err, derr)
			continue
		}
		receivers++
	}

	return receivers, err
}

// lookup returns the live entry for key. It is nil when the key does not
// exist, and ErrWrongType when it holds another kind.
func (i *InmemoryStore) lookup(key string, want kind) (*entry, error) {
	e, ok := i.live(key)
	if !ok {
		return nil, nil
	}

	if e.kind != want {
		return nil, ErrWrongType
	}

	return e, nil
}

// live returns the entry under key, expiring it first if its TTL has passed.
func (i *InmemoryStore) live(key string) (*entry, bool) {
	e, ok := i.values[key]
	if !ok {
		return nil, false
	}

	if e.expired(i.now()) {
		delete(i.values, key)
		return nil, false
	}

	return e, true
}

func (i *InmemoryStore) subscriptionsOf(sub Subscriber) *subscriptions {
	s, ok := i.subscribers[sub]
	if !ok {
		s = &subscriptions{
			channels: make(map[string]struct{}),
			patterns: make(map[string]struct{}),
		}
		i.subscribers[sub] = s
	}

	return s
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)

	return out
}

var _ Store = (*InmemoryStore)(nil)
