package onnxgraph

import (
	"fmt"
	"sort"
)

// StringStringEntry field numbers.
const (
	entryKeyField   = 1
	entryValueField = 2
)

// ReadMetadata collects the container's metadata properties into a flat
// map, skipping any entry with an empty key or empty value.
func ReadMetadata(data []byte) (map[string]string, error) {
	fields, err := scanFields(data)
	if err != nil {
		return nil, err
	}

	out := map[string]string{}

	for _, f := range fields {
		if f.num != fieldMetadataProps || f.wire != wireBytes {
			continue
		}

		key, value, err := decodeEntry(f.val)
		if err != nil {
			return nil, err
		}

		if key == "" || value == "" {
			continue
		}

		out[key] = value
	}

	return out, nil
}

// WriteMetadata upserts entries into the metadata property list and
// re-emits the container. Properties whose key matches an entry are
// re-encoded in place with the new value; entries with no existing property
// are appended after the last original field, in sorted key order. Every
// other field passes through byte-for-byte.
func WriteMetadata(data []byte, entries map[string]string) ([]byte, error) {
	fields, err := scanFields(data)
	if err != nil {
		return nil, err
	}

	pending := make(map[string]string, len(entries))
	for k, v := range entries {
		pending[k] = v
	}

	out := make([]byte, 0, len(data)+approxEntrySize(entries))

	for _, f := range fields {
		if f.num == fieldMetadataProps && f.wire == wireBytes {
			key, _, err := decodeEntry(f.val)
			if err != nil {
				return nil, err
			}

			if newValue, ok := pending[key]; ok {
				out = appendBytesField(out, fieldMetadataProps, encodeEntry(key, newValue))
				delete(pending, key)

				continue
			}
		}

		out = append(out, f.raw...)
	}

	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		out = appendBytesField(out, fieldMetadataProps, encodeEntry(k, pending[k]))
	}

	return out, nil
}

// decodeEntry parses a StringStringEntry message. Missing key or value
// fields decode as empty strings.
func decodeEntry(data []byte) (string, string, error) {
	var key, value string

	pos := 0
	for pos < len(data) {
		tag, n, err := readVarint(data, pos)
		if err != nil {
			return "", "", err
		}

		pos += n

		num := int(tag >> 3)
		wire := int(tag & 0x7)

		if wire != wireBytes {
			return "", "", formatErr(fmt.Sprintf("metadata entry field %d has unexpected wire type %d", num, wire), nil)
		}

		length, n, err := readVarint(data, pos)
		if err != nil {
			return "", "", err
		}

		pos += n
		if length > uint64(len(data)-pos) {
			return "", "", formatErr("truncated metadata entry", nil)
		}

		payload := data[pos : pos+int(length)]
		pos += int(length)

		switch num {
		case entryKeyField:
			key = string(payload)
		case entryValueField:
			value = string(payload)
		}
	}

	return key, value, nil
}

func encodeEntry(key, value string) []byte {
	buf := make([]byte, 0, len(key)+len(value)+8)
	buf = appendBytesField(buf, entryKeyField, []byte(key))
	buf = appendBytesField(buf, entryValueField, []byte(value))

	return buf
}

func approxEntrySize(entries map[string]string) int {
	total := 0
	for k, v := range entries {
		total += len(k) + len(v) + 16
	}

	return total
}
