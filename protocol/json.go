package protocol

import (
	"encoding/base64"
	"strconv"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SetJSON writes r into the JSON document doc at path and returns the updated
// document.
//
// Strings become JSON strings, integers numbers, nil replies null and arrays
// JSON arrays. Errors become {"error": "..."}. Bulk strings that are not valid
// UTF-8 become {"base64": "..."}.
func SetJSON(doc []byte, path string, r Reply) ([]byte, error) {
	if r.Nil {
		return sjson.SetRawBytes(doc, path, []byte("null"))
	}

	switch r.Kind {
	case KindInteger:
		return sjson.SetBytes(doc, path, r.Int)

	case KindError:
		return sjson.SetBytes(doc, path+".error", string(r.Str))

	case KindSimpleString, KindBulkString:
		if !utf8.Valid(r.Str) {
			return sjson.SetBytes(doc, path+".base64", base64.StdEncoding.EncodeToString(r.Str))
		}
		return sjson.SetBytes(doc, path, string(r.Str))

	case KindArray:
		doc, err := sjson.SetRawBytes(doc, path, []byte("[]"))
		if err != nil {
			return nil, err
		}

		for i, elem := range r.Elems {
			if doc, err = SetJSON(doc, path+"."+strconv.Itoa(i), elem); err != nil {
				return nil, err
			}
		}
		return doc, nil

	default:
		return sjson.SetRawBytes(doc, path, []byte("null"))
	}
}

// MarshalJSON renders the reply as described by SetJSON.
func (r Reply) MarshalJSON() ([]byte, error) {
	doc, err := SetJSON([]byte("{}"), "reply", r)
	if err != nil {
		return nil, err
	}

	return []byte(gjson.GetBytes(doc, "reply").Raw), nil
}
