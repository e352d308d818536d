package smd

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
)

// Record is the decoded form of a server_message_data value. Absent fields
// stay nil so that a decode/encode round trip preserves them as absent.
type Record struct {
	UUID    *string
	Seconds *int64
	Nanos   *int64
}

// Wire layout: field 1 (length-delimited) holds the UTF-8 UUID string;
// field 3 (length-delimited) holds a timestamp sub-message with
// field 1 = seconds (varint) and field 2 = nanos (varint).
const (
	fieldUUID      = 1
	fieldTimestamp = 3
	tsFieldSeconds = 1
	tsFieldNanos   = 2
)

const (
	wireVarint = 0
	wireI64    = 1
	wireLen    = 2
	wireI32    = 5
)

// Encode serializes r into its unpadded base64url wire form.
func Encode(r Record) string {
	var out []byte
	if r.UUID != nil {
		out = appendTag(out, fieldUUID, wireLen)
		out = binary.AppendUvarint(out, uint64(len(*r.UUID)))
		out = append(out, *r.UUID...)
	}
	if r.Seconds != nil || r.Nanos != nil {
		var ts []byte
		if r.Seconds != nil {
			ts = appendTag(ts, tsFieldSeconds, wireVarint)
			ts = binary.AppendUvarint(ts, uint64(*r.Seconds))
		}
		if r.Nanos != nil {
			ts = appendTag(ts, tsFieldNanos, wireVarint)
			ts = binary.AppendUvarint(ts, uint64(*r.Nanos))
		}
		out = appendTag(out, fieldTimestamp, wireLen)
		out = binary.AppendUvarint(out, uint64(len(ts)))
		out = append(out, ts...)
	}
	return base64.RawURLEncoding.EncodeToString(out)
}

// Decode parses an encoded server_message_data string. Padding is tolerated,
// as is standard base64 alphabet; unknown fields are skipped.
func Decode(s string) (Record, error) {
	raw, err := decodeBase64(s)
	if err != nil {
		return Record{}, fmt.Errorf("server_message_data base64: %w", err)
	}
	var rec Record
	buf := raw
	for len(buf) > 0 {
		field, wire, n, err := readTag(buf)
		if err != nil {
			return Record{}, err
		}
		buf = buf[n:]
		switch {
		case field == fieldUUID && wire == wireLen:
			val, rest, err := readLen(buf)
			if err != nil {
				return Record{}, err
			}
			u := string(val)
			rec.UUID = &u
			buf = rest
		case field == fieldTimestamp && wire == wireLen:
			val, rest, err := readLen(buf)
			if err != nil {
				return Record{}, err
			}
			if err := decodeTimestamp(val, &rec); err != nil {
				return Record{}, err
			}
			buf = rest
		default:
			rest, err := skipField(buf, wire)
			if err != nil {
				return Record{}, err
			}
			buf = rest
		}
	}
	return rec, nil
}

func decodeTimestamp(buf []byte, rec *Record) error {
	for len(buf) > 0 {
		field, wire, n, err := readTag(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
		switch {
		case field == tsFieldSeconds && wire == wireVarint:
			v, n := binary.Uvarint(buf)
			if n <= 0 {
				return fmt.Errorf("truncated seconds varint")
			}
			s := int64(v)
			rec.Seconds = &s
			buf = buf[n:]
		case field == tsFieldNanos && wire == wireVarint:
			v, n := binary.Uvarint(buf)
			if n <= 0 {
				return fmt.Errorf("truncated nanos varint")
			}
			ns := int64(v)
			rec.Nanos = &ns
			buf = buf[n:]
		default:
			rest, err := skipField(buf, wire)
			if err != nil {
				return err
			}
			buf = rest
		}
	}
	return nil
}

func appendTag(b []byte, field, wire int) []byte {
	return binary.AppendUvarint(b, uint64(field)<<3|uint64(wire))
}

func readTag(buf []byte) (field, wire, n int, err error) {
	tag, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, 0, fmt.Errorf("truncated tag varint")
	}
	return int(tag >> 3), int(tag & 7), n, nil
}

func readLen(buf []byte) (val, rest []byte, err error) {
	l, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, nil, fmt.Errorf("truncated length varint")
	}
	buf = buf[n:]
	if uint64(len(buf)) < l {
		return nil, nil, fmt.Errorf("length %d exceeds remaining %d bytes", l, len(buf))
	}
	return buf[:l], buf[l:], nil
}

func skipField(buf []byte, wire int) ([]byte, error) {
	switch wire {
	case wireVarint:
		_, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, fmt.Errorf("truncated varint")
		}
		return buf[n:], nil
	case wireI64:
		if len(buf) < 8 {
			return nil, fmt.Errorf("truncated i64")
		}
		return buf[8:], nil
	case wireLen:
		_, rest, err := readLen(buf)
		return rest, err
	case wireI32:
		if len(buf) < 4 {
			return nil, fmt.Errorf("truncated i32")
		}
		return buf[4:], nil
	default:
		return nil, fmt.Errorf("unsupported wire type %d", wire)
	}
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if strings.ContainsAny(s, "+/") {
		return base64.RawStdEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
