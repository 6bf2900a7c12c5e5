// Package wire implements Karabo's wire encodings: a compact binary
// envelope codec for Hash (used for broker payloads and persisted
// snapshots) and an XML pretty-printer for Schema (used when a GUI or
// `karabo-ctl` client requests a device's schema for display).
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/newtron-network/karabo/pkg/hash"
)

// tag identifies a value's wire type. Values are chosen to be stable
// across releases since they are persisted in logger snapshot files.
type tag byte

const (
	tagHash    tag = 1
	tagString  tag = 2
	tagBool    tag = 3
	tagInt64   tag = 4
	tagUint64  tag = 5
	tagFloat64 tag = 6
	tagBytes   tag = 7
	tagTime    tag = 8
	tagSlice   tag = 9
	tagNil     tag = 10
)

// Encode serializes h into the binary envelope format.
func Encode(h *hash.Hash) []byte {
	var buf bytes.Buffer
	encodeHash(&buf, h)
	return buf.Bytes()
}

func encodeHash(buf *bytes.Buffer, h *hash.Hash) {
	keys := h.Keys()
	writeUvarint(buf, uint64(len(keys)))
	for _, key := range keys {
		writeString(buf, key)
		v, _ := h.Get(key)
		encodeValue(buf, v)
		encodeAttrs(buf, h, key)
	}
}

func encodeAttrs(buf *bytes.Buffer, h *hash.Hash, path string) {
	am, err := h.Attributes(path)
	if err != nil {
		writeUvarint(buf, 0)
		return
	}
	keys := am.Keys()
	writeUvarint(buf, uint64(len(keys)))
	for _, k := range keys {
		writeString(buf, k)
		v, _ := am.Get(k)
		encodeValue(buf, v)
	}
}

func encodeValue(buf *bytes.Buffer, v any) {
	switch t := v.(type) {
	case nil:
		buf.WriteByte(byte(tagNil))
	case *hash.Hash:
		buf.WriteByte(byte(tagHash))
		encodeHash(buf, t)
	case string:
		buf.WriteByte(byte(tagString))
		writeString(buf, t)
	case bool:
		buf.WriteByte(byte(tagBool))
		if t {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case []byte:
		buf.WriteByte(byte(tagBytes))
		writeUvarint(buf, uint64(len(t)))
		buf.Write(t)
	case time.Time:
		buf.WriteByte(byte(tagTime))
		binary.Write(buf, binary.BigEndian, t.UnixNano())
	case int, int8, int16, int32, int64:
		buf.WriteByte(byte(tagInt64))
		binary.Write(buf, binary.BigEndian, toInt64(t))
	case uint, uint8, uint16, uint32, uint64:
		buf.WriteByte(byte(tagUint64))
		binary.Write(buf, binary.BigEndian, toUint64(t))
	case float32, float64:
		buf.WriteByte(byte(tagFloat64))
		binary.Write(buf, binary.BigEndian, toFloat64(t))
	case []any:
		buf.WriteByte(byte(tagSlice))
		writeUvarint(buf, uint64(len(t)))
		for _, e := range t {
			encodeValue(buf, e)
		}
	default:
		// Falls back to string representation; Karabo's Hash value set
		// is closed over the cases above in practice.
		buf.WriteByte(byte(tagString))
		writeString(buf, fmt.Sprintf("%v", t))
	}
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	}
	return 0
}

func toUint64(v any) uint64 {
	switch t := v.(type) {
	case uint:
		return uint64(t)
	case uint8:
		return uint64(t)
	case uint16:
		return uint64(t)
	case uint32:
		return uint64(t)
	case uint64:
		return t
	}
	return 0
}

func toFloat64(v any) float64 {
	switch t := v.(type) {
	case float32:
		return float64(t)
	case float64:
		return t
	}
	return 0
}

// Decode parses the binary envelope format produced by Encode.
func Decode(data []byte) (*hash.Hash, error) {
	buf := bytes.NewReader(data)
	return decodeHash(buf)
}

func decodeHash(buf *bytes.Reader) (*hash.Hash, error) {
	n, err := binary.ReadUvarint(buf)
	if err != nil {
		return nil, fmt.Errorf("wire: reading key count: %w", err)
	}
	h := hash.New()
	for i := uint64(0); i < n; i++ {
		key, err := readString(buf)
		if err != nil {
			return nil, err
		}
		v, err := decodeValue(buf)
		if err != nil {
			return nil, err
		}
		h.Set(key, v)
		if err := decodeAttrs(buf, h, key); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func decodeAttrs(buf *bytes.Reader, h *hash.Hash, path string) error {
	n, err := binary.ReadUvarint(buf)
	if err != nil {
		return fmt.Errorf("wire: reading attr count for %q: %w", path, err)
	}
	for i := uint64(0); i < n; i++ {
		key, err := readString(buf)
		if err != nil {
			return err
		}
		v, err := decodeValue(buf)
		if err != nil {
			return err
		}
		if err := h.SetAttribute(path, key, v); err != nil {
			return err
		}
	}
	return nil
}

func readString(buf *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(buf)
	if err != nil {
		return "", fmt.Errorf("wire: reading string length: %w", err)
	}
	b := make([]byte, n)
	if _, err := buf.Read(b); err != nil {
		return "", fmt.Errorf("wire: reading string bytes: %w", err)
	}
	return string(b), nil
}

func decodeValue(buf *bytes.Reader) (any, error) {
	tb, err := buf.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: reading tag: %w", err)
	}
	switch tag(tb) {
	case tagNil:
		return nil, nil
	case tagHash:
		return decodeHash(buf)
	case tagString:
		return readString(buf)
	case tagBool:
		b, err := buf.ReadByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case tagBytes:
		n, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := buf.Read(b); err != nil {
			return nil, err
		}
		return b, nil
	case tagTime:
		var ns int64
		if err := binary.Read(buf, binary.BigEndian, &ns); err != nil {
			return nil, err
		}
		return time.Unix(0, ns).UTC(), nil
	case tagInt64:
		var v int64
		if err := binary.Read(buf, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return v, nil
	case tagUint64:
		var v uint64
		if err := binary.Read(buf, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return v, nil
	case tagFloat64:
		var v float64
		if err := binary.Read(buf, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return v, nil
	case tagSlice:
		n, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, err
		}
		out := make([]any, n)
		for i := range out {
			v, err := decodeValue(buf)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("wire: unknown tag %d", tb)
	}
}

// Fingerprint returns a fast structural+value hash of h, usable as a
// cheap equality pre-check: two Hashes with equal Fingerprint are (with
// overwhelming probability) Equal.
func Fingerprint(h *hash.Hash) uint64 {
	return xxhash.Sum64(Encode(h))
}
