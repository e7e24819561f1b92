// Package safetensors reads and writes the metadata block of the
// length-prefixed-JSON-header container: 8-byte LE header length → JSON
// header → raw tensor payload. Metadata lives under the reserved
// __metadata__ header key; the payload region is never touched.
package safetensors

import (
	"encoding/binary"
	"encoding/json"

	"github.com/example/go-aivm/internal/aivm"
)

const metadataKey = "__metadata__"

// ReadMetadata decodes the header and returns the __metadata__ map. A
// header without the key yields an empty map, not an error.
func ReadMetadata(data []byte) (map[string]string, error) {
	_, header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	raw, ok := header[metadataKey]
	if !ok {
		return map[string]string{}, nil
	}

	var meta map[string]string

	err = json.Unmarshal(raw, &meta)
	if err != nil {
		return nil, formatErr("__metadata__ is not a flat string map", err)
	}

	return meta, nil
}

// WriteMetadata upserts entries into the header's __metadata__ map and
// re-emits the container. New keys are added, existing keys overwritten,
// untouched keys preserved. The payload region is located via the original
// header length and copied byte-identically; the header grows or shrinks
// as needed.
func WriteMetadata(data []byte, entries map[string]string) ([]byte, error) {
	headerEnd, header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	meta := map[string]string{}

	if raw, ok := header[metadataKey]; ok {
		err = json.Unmarshal(raw, &meta)
		if err != nil {
			return nil, formatErr("__metadata__ is not a flat string map", err)
		}
	}

	for k, v := range entries {
		meta[k] = v
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, formatErr("encode __metadata__", err)
	}

	header[metadataKey] = metaJSON

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, formatErr("encode header", err)
	}

	payload := data[headerEnd:]

	out := make([]byte, 0, 8+len(headerJSON)+len(payload))
	lenPrefix := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenPrefix, uint64(len(headerJSON)))
	out = append(out, lenPrefix...)
	out = append(out, headerJSON...)
	out = append(out, payload...)

	return out, nil
}

// decodeHeader returns the offset where the payload region starts and the
// parsed header object.
func decodeHeader(data []byte) (int, map[string]json.RawMessage, error) {
	if len(data) < 8 {
		return 0, nil, formatErr("file too short for length prefix", nil)
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return 0, nil, formatErr("header length exceeds file size", nil)
	}

	headerEnd := 8 + int(headerLen)

	var header map[string]json.RawMessage

	err := json.Unmarshal(data[8:headerEnd], &header)
	if err != nil {
		return 0, nil, formatErr("parse header JSON", err)
	}

	return headerEnd, header, nil
}

func formatErr(msg string, err error) error {
	return &aivm.FormatError{Container: "safetensors", Msg: msg, Err: err}
}
