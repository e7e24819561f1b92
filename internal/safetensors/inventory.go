package safetensors

import (
	"encoding/json"
	"fmt"
	"sort"
)

// TensorInfo describes one tensor listed in the container header.
type TensorInfo struct {
	Name  string
	DType string
	Shape []int64
}

type headerEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

// Inventory lists the tensors declared by the header, sorted by name. The
// tensor data itself is never decoded; offsets are only checked against the
// payload bounds.
func Inventory(data []byte) ([]TensorInfo, error) {
	headerEnd, header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	out := make([]TensorInfo, 0, len(header))

	for name, raw := range header {
		if name == metadataKey {
			continue
		}

		var entry headerEntry

		err := json.Unmarshal(raw, &entry)
		if err != nil {
			return nil, formatErr(fmt.Sprintf("decode header entry %q", name), err)
		}

		if entry.Offsets[0] < 0 || entry.Offsets[1] < entry.Offsets[0] {
			return nil, formatErr(fmt.Sprintf("tensor %q has invalid data offsets %v", name, entry.Offsets), nil)
		}

		if headerEnd+entry.Offsets[1] > len(data) {
			return nil, formatErr(fmt.Sprintf("tensor %q data exceeds file size", name), nil)
		}

		for _, d := range entry.Shape {
			if d < 0 {
				return nil, formatErr(fmt.Sprintf("tensor %q has negative dimension in %v", name, entry.Shape), nil)
			}
		}

		out = append(out, TensorInfo{
			Name:  name,
			DType: entry.DType,
			Shape: append([]int64(nil), entry.Shape...),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}
