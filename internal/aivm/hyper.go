package aivm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// rawObject is a JSON object that preserves key order and the exact bytes
// of every member value. Hyper parameters carry many architecture-specific
// fields this subsystem never interprets; they must survive a read-edit-
// write cycle untouched, and the order of spk2id/style2id members is
// load-bearing for manifest generation.
type rawObject struct {
	keys []string
	vals map[string]json.RawMessage
}

func (o *rawObject) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	o.keys = o.keys[:0]
	o.vals = make(map[string]json.RawMessage)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}

		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}

		var val json.RawMessage

		err = dec.Decode(&val)
		if err != nil {
			return err
		}

		if _, dup := o.vals[key]; !dup {
			o.keys = append(o.keys, key)
		}

		o.vals[key] = val
	}

	// Consume the closing brace.
	_, err = dec.Token()

	return err
}

func (o rawObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}

		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(o.vals[key])
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (o *rawObject) get(key string) (json.RawMessage, bool) {
	val, ok := o.vals[key]
	return val, ok
}

func (o *rawObject) set(key string, val json.RawMessage) {
	if o.vals == nil {
		o.vals = make(map[string]json.RawMessage)
	}

	if _, exists := o.vals[key]; !exists {
		o.keys = append(o.keys, key)
	}

	o.vals[key] = val
}

func (o rawObject) clone() rawObject {
	c := rawObject{
		keys: append([]string(nil), o.keys...),
		vals: make(map[string]json.RawMessage, len(o.vals)),
	}

	for k, v := range o.vals {
		c.vals[k] = append(json.RawMessage(nil), v...)
	}

	return c
}

// NameIDMap is an insertion-ordered map from speaker or style name to its
// integer local id. JSON object order decides the order manifests list
// speakers and styles in, so the zero-allocation stdlib map cannot be used
// here.
type NameIDMap struct {
	names []string
	ids   map[string]int
}

func (m *NameIDMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	m.names = m.names[:0]
	m.ids = make(map[string]int)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}

		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}

		var id int

		err = dec.Decode(&id)
		if err != nil {
			return fmt.Errorf("id for %q: %w", name, err)
		}

		m.Set(name, id)
	}

	_, err = dec.Token()

	return err
}

func (m NameIDMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, name := range m.names {
		if i > 0 {
			buf.WriteByte(',')
		}

		nameJSON, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}

		buf.Write(nameJSON)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", m.ids[name])
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// Set inserts name with the given id, or updates the id of an existing
// name without changing its position.
func (m *NameIDMap) Set(name string, id int) {
	if m.ids == nil {
		m.ids = make(map[string]int)
	}

	if _, exists := m.ids[name]; !exists {
		m.names = append(m.names, name)
	}

	m.ids[name] = id
}

// Get returns the id mapped to name.
func (m *NameIDMap) Get(name string) (int, bool) {
	id, ok := m.ids[name]
	return id, ok
}

// Has reports whether name is present.
func (m *NameIDMap) Has(name string) bool {
	_, ok := m.ids[name]
	return ok
}

// Len returns the number of entries.
func (m *NameIDMap) Len() int { return len(m.names) }

// Names returns the names in insertion order.
func (m *NameIDMap) Names() []string {
	return append([]string(nil), m.names...)
}

// IDs returns the set of ids keyed by id, mapping each to the first name
// that carries it.
func (m *NameIDMap) IDs() map[int]string {
	out := make(map[int]string, len(m.names))

	for _, name := range m.names {
		id := m.ids[name]
		if _, seen := out[id]; !seen {
			out[id] = name
		}
	}

	return out
}

func (m NameIDMap) clone() NameIDMap {
	c := NameIDMap{
		names: append([]string(nil), m.names...),
		ids:   make(map[string]int, len(m.ids)),
	}

	for k, v := range m.ids {
		c.ids[k] = v
	}

	return c
}

// HyperParameters is the training configuration of a voice model. The
// fields below are typed views over the underlying JSON document; every
// other field passes through read-edit-write cycles byte-for-byte.
type HyperParameters struct {
	ModelName       string
	UseJPExtra      bool
	TrainingFiles   string
	ValidationFiles string
	NSpeakers       int
	NumStyles       int
	Spk2ID          NameIDMap
	Style2ID        NameIDMap

	root rawObject
	data rawObject
}

// ParseHyperParameters parses and validates hyper-parameter bytes against
// the schema of the given architecture. Unknown architectures yield
// UnsupportedArchitectureError; parse and schema failures yield
// ValidationError with stage "hyper_parameters".
func ParseHyperParameters(arch Architecture, data []byte) (HyperParameters, error) {
	switch arch {
	case ArchStyleBertVITS2, ArchStyleBertVITS2JPExtra:
		return parseStyleBertVITS2(arch, data)
	default:
		return HyperParameters{}, &UnsupportedArchitectureError{Architecture: arch}
	}
}

func parseStyleBertVITS2(arch Architecture, raw []byte) (HyperParameters, error) {
	var hp HyperParameters

	// The language-scope flag defaults to the requested variant when the
	// document does not carry it explicitly.
	hp.UseJPExtra = arch == ArchStyleBertVITS2JPExtra

	err := hp.root.UnmarshalJSON(raw)
	if err != nil {
		return HyperParameters{}, hyperErr("", "not a JSON object", err)
	}

	nameRaw, ok := hp.root.get("model_name")
	if !ok {
		return HyperParameters{}, hyperErr("model_name", "missing required field", nil)
	}

	err = json.Unmarshal(nameRaw, &hp.ModelName)
	if err != nil {
		return HyperParameters{}, hyperErr("model_name", "must be a string", err)
	}

	if hp.ModelName == "" {
		return HyperParameters{}, hyperErr("model_name", "must not be empty", nil)
	}

	dataRaw, ok := hp.root.get("data")
	if !ok {
		return HyperParameters{}, hyperErr("data", "missing required field", nil)
	}

	err = hp.data.UnmarshalJSON(dataRaw)
	if err != nil {
		return HyperParameters{}, hyperErr("data", "must be a JSON object", err)
	}

	if raw, ok := hp.data.get("use_jp_extra"); ok {
		err = json.Unmarshal(raw, &hp.UseJPExtra)
		if err != nil {
			return HyperParameters{}, hyperErr("data.use_jp_extra", "must be a boolean", err)
		}
	}

	if raw, ok := hp.data.get("training_files"); ok {
		if err := json.Unmarshal(raw, &hp.TrainingFiles); err != nil {
			return HyperParameters{}, hyperErr("data.training_files", "must be a string", err)
		}
	}

	if raw, ok := hp.data.get("validation_files"); ok {
		if err := json.Unmarshal(raw, &hp.ValidationFiles); err != nil {
			return HyperParameters{}, hyperErr("data.validation_files", "must be a string", err)
		}
	}

	if raw, ok := hp.data.get("n_speakers"); ok {
		if err := json.Unmarshal(raw, &hp.NSpeakers); err != nil {
			return HyperParameters{}, hyperErr("data.n_speakers", "must be an integer", err)
		}
	}

	if raw, ok := hp.data.get("num_styles"); ok {
		if err := json.Unmarshal(raw, &hp.NumStyles); err != nil {
			return HyperParameters{}, hyperErr("data.num_styles", "must be an integer", err)
		}
	}

	spkRaw, ok := hp.data.get("spk2id")
	if !ok {
		return HyperParameters{}, hyperErr("data.spk2id", "missing required field", nil)
	}

	err = hp.Spk2ID.UnmarshalJSON(spkRaw)
	if err != nil {
		return HyperParameters{}, hyperErr("data.spk2id", "must map speaker names to integer ids", err)
	}

	styleRaw, ok := hp.data.get("style2id")
	if !ok {
		return HyperParameters{}, hyperErr("data.style2id", "missing required field", nil)
	}

	err = hp.Style2ID.UnmarshalJSON(styleRaw)
	if err != nil {
		return HyperParameters{}, hyperErr("data.style2id", "must map style names to integer ids", err)
	}

	return hp, nil
}

func hyperErr(field, msg string, err error) error {
	return &ValidationError{Stage: "hyper_parameters", Field: field, Msg: msg, Err: err}
}

// MarshalJSON serializes the hyper parameters, writing the typed views
// back into the underlying document and leaving every other field at its
// original bytes and position.
func (hp HyperParameters) MarshalJSON() ([]byte, error) {
	data := hp.data.clone()

	setJSON := func(o *rawObject, key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}

		o.set(key, raw)

		return nil
	}

	if err := setJSON(&data, "use_jp_extra", hp.UseJPExtra); err != nil {
		return nil, err
	}

	if err := setJSON(&data, "training_files", hp.TrainingFiles); err != nil {
		return nil, err
	}

	if err := setJSON(&data, "validation_files", hp.ValidationFiles); err != nil {
		return nil, err
	}

	if err := setJSON(&data, "n_speakers", hp.NSpeakers); err != nil {
		return nil, err
	}

	if err := setJSON(&data, "num_styles", hp.NumStyles); err != nil {
		return nil, err
	}

	if err := setJSON(&data, "spk2id", hp.Spk2ID); err != nil {
		return nil, err
	}

	if err := setJSON(&data, "style2id", hp.Style2ID); err != nil {
		return nil, err
	}

	root := hp.root.clone()

	if err := setJSON(&root, "model_name", hp.ModelName); err != nil {
		return nil, err
	}

	dataJSON, err := data.MarshalJSON()
	if err != nil {
		return nil, err
	}

	root.set("data", dataJSON)

	return root.MarshalJSON()
}

// Clone returns a deep copy.
func (hp HyperParameters) Clone() HyperParameters {
	c := hp
	c.Spk2ID = hp.Spk2ID.clone()
	c.Style2ID = hp.Style2ID.clone()
	c.root = hp.root.clone()
	c.data = hp.data.clone()

	return c
}
