package client

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/luma/redisclient/protocol"
)

func unexpected(reply protocol.Reply) error {
	if reply.Nil {
		return fmt.Errorf("%w: got nil %s", ErrUnexpectedReply, reply.Kind)
	}

	return fmt.Errorf("%w: got %s", ErrUnexpectedReply, reply.Kind)
}

func isString(reply protocol.Reply) bool {
	return reply.Kind == protocol.KindSimpleString || reply.Kind == protocol.KindBulkString
}

// asStatus accepts the replies of commands that answer +OK.
func asStatus(reply protocol.Reply, err error) error {
	if err != nil {
		return err
	}

	if reply.Kind != protocol.KindSimpleString {
		return unexpected(reply)
	}

	return nil
}

func asString(reply protocol.Reply, err error) (string, error) {
	if err != nil {
		return "", err
	}

	if !isString(reply) || reply.Nil {
		return "", unexpected(reply)
	}

	return string(reply.Str), nil
}

func asNullString(reply protocol.Reply, err error) (protocol.NullString, error) {
	if err != nil {
		return protocol.NullString{}, err
	}

	if !isString(reply) {
		return protocol.NullString{}, unexpected(reply)
	}

	return reply.NullString(), nil
}

// asBytes returns nil for a nil bulk string and a non-nil slice otherwise.
func asBytes(reply protocol.Reply, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}

	if !isString(reply) {
		return nil, unexpected(reply)
	}

	if reply.Nil {
		return nil, nil
	}

	out := make([]byte, len(reply.Str))
	copy(out, reply.Str)

	return out, nil
}

func asInt(reply protocol.Reply, err error) (int64, error) {
	if err != nil {
		return 0, err
	}

	if reply.Kind != protocol.KindInteger {
		return 0, unexpected(reply)
	}

	return reply.Int, nil
}

func asBool(reply protocol.Reply, err error) (bool, error) {
	n, err := asInt(reply, err)
	return n == 1, err
}

func asFloat(reply protocol.Reply, err error) (float64, error) {
	s, err := asString(reply, err)
	if err != nil {
		return 0, err
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
	}

	return f, nil
}

func asArray(reply protocol.Reply, err error) ([]protocol.Reply, error) {
	if err != nil {
		return nil, err
	}

	if reply.Kind != protocol.KindArray || reply.Nil {
		return nil, unexpected(reply)
	}

	return reply.Elems, nil
}

func asStrings(reply protocol.Reply, err error) ([]string, error) {
	elems, err := asArray(reply, err)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(elems))
	for i, elem := range elems {
		if !isString(elem) || elem.Nil {
			return nil, unexpected(elem)
		}
		out[i] = string(elem.Str)
	}

	return out, nil
}

func asNullStrings(reply protocol.Reply, err error) ([]protocol.NullString, error) {
	elems, err := asArray(reply, err)
	if err != nil {
		return nil, err
	}

	out := make([]protocol.NullString, len(elems))
	for i, elem := range elems {
		if !isString(elem) {
			return nil, unexpected(elem)
		}
		out[i] = elem.NullString()
	}

	return out, nil
}

// asStringMap reads a flat field, value, field, value array.
func asStringMap(reply protocol.Reply, err error) (map[string]string, error) {
	flat, err := asStrings(reply, err)
	if err != nil {
		return nil, err
	}

	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of elements", ErrUnexpectedReply)
	}

	out := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		out[flat[i]] = flat[i+1]
	}

	return out, nil
}

// asIntMap reads a flat name, integer, name, integer array.
func asIntMap(reply protocol.Reply, err error) (map[string]int64, error) {
	elems, err := asArray(reply, err)
	if err != nil {
		return nil, err
	}

	if len(elems)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of elements", ErrUnexpectedReply)
	}

	out := make(map[string]int64, len(elems)/2)
	for i := 0; i < len(elems); i += 2 {
		name, err := asString(elems[i], nil)
		if err != nil {
			return nil, err
		}

		n, err := asInt(elems[i+1], nil)
		if err != nil {
			return nil, err
		}

		out[name] = n
	}

	return out, nil
}

// asScan reads the [cursor, [elements...]] reply of the SCAN family.
func asScan(reply protocol.Reply, err error) (ScanPage, error) {
	elems, err := asArray(reply, err)
	if err != nil {
		return ScanPage{}, err
	}

	if len(elems) != 2 {
		return ScanPage{}, fmt.Errorf("%w: scan reply has %d elements", ErrUnexpectedReply, len(elems))
	}

	cursor, err := asString(elems[0], nil)
	if err != nil {
		return ScanPage{}, err
	}

	next, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return ScanPage{}, fmt.Errorf("%w: bad cursor %q", ErrUnexpectedReply, cursor)
	}

	keys, err := asStrings(elems[1], nil)
	if err != nil {
		return ScanPage{}, err
	}

	return ScanPage{Cursor: next, Keys: keys}, nil
}

// asKeyValue reads the [key, value] reply of a blocking pop. A nil array
// means the timeout expired.
func asKeyValue(reply protocol.Reply, err error) (*KeyValue, error) {
	if err != nil {
		return nil, err
	}

	if reply.Kind == protocol.KindArray && reply.Nil {
		return nil, nil
	}

	pair, err := asStrings(reply, nil)
	if err != nil {
		return nil, err
	}

	if len(pair) != 2 {
		return nil, fmt.Errorf("%w: pop reply has %d elements", ErrUnexpectedReply, len(pair))
	}

	return &KeyValue{Key: pair[0], Value: pair[1]}, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
