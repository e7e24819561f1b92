package aivm

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Metadata keys recognized by both container codecs.
const (
	KeyManifest        = "aivm_manifest"
	KeyHyperParameters = "aivm_hyper_parameters"
	KeyStyleVectors    = "aivm_style_vectors"
)

// Metadata is the aggregate exchanged between the container codecs and the
// reconciliation engine: one manifest, one hyper-parameter document, and an
// optional opaque style-vector blob.
type Metadata struct {
	Manifest        Manifest
	HyperParameters HyperParameters
	StyleVectors    []byte // nil when the model carries none
}

// Validate turns a raw metadata map extracted by a codec into a typed,
// checked aggregate. It is pure: the input map is not modified.
func Validate(raw map[string]string) (*Metadata, error) {
	manifestJSON, ok := raw[KeyManifest]
	if !ok {
		return nil, &ValidationError{Stage: "manifest", Msg: fmt.Sprintf("metadata key %q is missing", KeyManifest)}
	}

	var manifest Manifest

	err := json.Unmarshal([]byte(manifestJSON), &manifest)
	if err != nil {
		return nil, &ValidationError{Stage: "manifest", Msg: "not valid manifest JSON", Err: err}
	}

	err = manifest.Validate()
	if err != nil {
		return nil, err
	}

	hyperJSON, ok := raw[KeyHyperParameters]
	if !ok {
		return nil, &ValidationError{Stage: "hyper_parameters", Msg: fmt.Sprintf("metadata key %q is missing", KeyHyperParameters)}
	}

	hp, err := ParseHyperParameters(manifest.ModelArchitecture, []byte(hyperJSON))
	if err != nil {
		return nil, err
	}

	var styleVectors []byte

	if encoded, ok := raw[KeyStyleVectors]; ok {
		styleVectors, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, &ValidationError{Stage: "style_vectors", Msg: "not valid base64", Err: err}
		}
	}

	return &Metadata{
		Manifest:        manifest,
		HyperParameters: hp,
		StyleVectors:    styleVectors,
	}, nil
}

// Entries serializes the aggregate back into the raw metadata map a codec
// writes into a container. The inverse of Validate.
func (m *Metadata) Entries() (map[string]string, error) {
	manifestJSON, err := json.Marshal(m.Manifest)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	hyperJSON, err := json.Marshal(m.HyperParameters)
	if err != nil {
		return nil, fmt.Errorf("encode hyper parameters: %w", err)
	}

	entries := map[string]string{
		KeyManifest:        string(manifestJSON),
		KeyHyperParameters: string(hyperJSON),
	}

	if len(m.StyleVectors) > 0 {
		entries[KeyStyleVectors] = base64.StdEncoding.EncodeToString(m.StyleVectors)
	}

	return entries, nil
}

// Clone returns a deep copy, for callers that need a pre-mutation snapshot
// before an in-place sync.
func (m *Metadata) Clone() *Metadata {
	c := &Metadata{
		Manifest:        m.Manifest,
		HyperParameters: m.HyperParameters.Clone(),
		StyleVectors:    append([]byte(nil), m.StyleVectors...),
	}

	c.Manifest.Creators = append([]string(nil), m.Manifest.Creators...)
	c.Manifest.Speakers = make([]Speaker, len(m.Manifest.Speakers))

	for i, sp := range m.Manifest.Speakers {
		c.Manifest.Speakers[i] = sp.Clone()
	}

	return c
}

// Clone returns a deep copy of the speaker.
func (sp Speaker) Clone() Speaker {
	c := sp
	c.SupportedLanguages = append([]string(nil), sp.SupportedLanguages...)
	c.Styles = make([]Style, len(sp.Styles))

	for i, st := range sp.Styles {
		c.Styles[i] = st.Clone()
	}

	return c
}

// Clone returns a deep copy of the style.
func (st Style) Clone() Style {
	c := st

	if st.Icon != nil {
		icon := *st.Icon
		c.Icon = &icon
	}

	c.VoiceSamples = append([]VoiceSample(nil), st.VoiceSamples...)

	return c
}
