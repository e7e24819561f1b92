// Package aivm defines the metadata schema shared by the AIVM container
// codecs and the reconciliation engine: the manifest describing a voice
// model's identity and speaker/style catalog, the training hyper parameters,
// and the validation rules tying the two together.
package aivm

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/cwbudde/wav"
	"golang.org/x/text/language"
)

// Architecture identifies the model architecture a manifest was trained
// with. The set of architectures with a known hyper-parameter schema is
// closed; values outside it are carried through manifests but rejected by
// hyper-parameter parsing with UnsupportedArchitectureError.
type Architecture string

const (
	ArchStyleBertVITS2        Architecture = "Style-Bert-VITS2"
	ArchStyleBertVITS2JPExtra Architecture = "Style-Bert-VITS2 (JP-Extra)"
)

// Known reports whether the architecture has a hyper-parameter schema.
func (a Architecture) Known() bool {
	return a == ArchStyleBertVITS2 || a == ArchStyleBertVITS2JPExtra
}

// RequiresStyleVectors reports whether models of this architecture are
// conditioned on a style-vector blob. Both current variants are.
func (a Architecture) RequiresStyleVectors() bool { return a.Known() }

// SupportedLanguages returns the language tags speakers of this
// architecture support: the JP-Extra variant is Japanese-only, the full
// variant also covers English and Mandarin.
func (a Architecture) SupportedLanguages() []string {
	if a == ArchStyleBertVITS2JPExtra {
		return []string{"ja"}
	}

	return []string{"ja", "en-US", "zh-CN"}
}

// ArchitectureFor maps the hyper parameters' language-scope flag to the
// concrete architecture variant.
func ArchitectureFor(jpExtra bool) Architecture {
	if jpExtra {
		return ArchStyleBertVITS2JPExtra
	}

	return ArchStyleBertVITS2
}

// ModelFormat identifies the container kind a manifest is stored in.
type ModelFormat string

const (
	FormatSafetensors ModelFormat = "Safetensors"
	FormatONNX        ModelFormat = "ONNX"
)

const (
	// ManifestVersion is the only manifest format version this build reads
	// or writes.
	ManifestVersion = "1.0"

	// DefaultStyleName is the localized label a style literally named
	// "Neutral" is normalized to during generation.
	DefaultStyleName = "ノーマル"

	// MaxStyleID is the largest style local id the runtime can address.
	MaxStyleID = 31
)

const (
	maxNameLen        = 80
	maxDescriptionLen = 140
	maxStyleNameLen   = 20
	maxImageBytes     = 1 << 20  // decoded icon size cap
	maxAudioBytes     = 10 << 20 // decoded voice-sample size cap
)

// DefaultIcon is the placeholder speaker icon assigned by the
// reconciliation engine (a 1x1 transparent PNG).
const DefaultIcon = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

var semverRe = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

// Manifest is the identity and catalog record of a voice model.
type Manifest struct {
	ManifestVersion   string       `json:"manifest_version"`
	Name              string       `json:"name"`
	Description       string       `json:"description"`
	Creators          []string     `json:"creators"`
	License           *string      `json:"license"`
	ModelArchitecture Architecture `json:"model_architecture"`
	ModelFormat       ModelFormat  `json:"model_format"`
	TrainingEpochs    *int64       `json:"training_epochs"`
	TrainingSteps     *int64       `json:"training_steps"`
	UUID              string       `json:"uuid"`
	Version           string       `json:"version"`
	Speakers          []Speaker    `json:"speakers"`
}

// Speaker is one voice in a manifest. LocalID is the model-scoped integer
// the hyper parameters address the speaker by; UUID is its stable global
// identity.
type Speaker struct {
	Name               string   `json:"name"`
	Icon               string   `json:"icon"`
	SupportedLanguages []string `json:"supported_languages"`
	UUID               string   `json:"uuid"`
	LocalID            int      `json:"local_id"`
	Styles             []Style  `json:"styles"`
}

// Style is one speaking style of a speaker. A nil Icon falls back to the
// speaker icon.
type Style struct {
	Name         string        `json:"name"`
	Icon         *string       `json:"icon"`
	LocalID      int           `json:"local_id"`
	VoiceSamples []VoiceSample `json:"voice_samples"`
}

// VoiceSample pairs an embedded audio clip with its transcript.
type VoiceSample struct {
	Audio      string `json:"audio"`
	Transcript string `json:"transcript"`
}

// EffectiveIcon returns the style icon, or the owning speaker's icon when
// the style has none.
func (s Style) EffectiveIcon(owner Speaker) string {
	if s.Icon != nil {
		return *s.Icon
	}

	return owner.Icon
}

// Validate checks every structural constraint and cross-field invariant of
// the manifest. The returned error is always a *ValidationError with stage
// "manifest".
func (m *Manifest) Validate() error {
	if m.ManifestVersion != ManifestVersion {
		return manifestErr("manifest_version", fmt.Sprintf("must be %q, got %q", ManifestVersion, m.ManifestVersion))
	}

	if l := len([]rune(m.Name)); l < 1 || l > maxNameLen {
		return manifestErr("name", fmt.Sprintf("length must be 1..%d, got %d", maxNameLen, l))
	}

	if l := len([]rune(m.Description)); l > maxDescriptionLen {
		return manifestErr("description", fmt.Sprintf("length must be at most %d, got %d", maxDescriptionLen, l))
	}

	if m.ModelArchitecture == "" {
		return manifestErr("model_architecture", "must not be empty")
	}

	if m.ModelFormat != FormatSafetensors && m.ModelFormat != FormatONNX {
		return manifestErr("model_format", fmt.Sprintf("must be %q or %q, got %q", FormatSafetensors, FormatONNX, m.ModelFormat))
	}

	if m.TrainingEpochs != nil && *m.TrainingEpochs < 0 {
		return manifestErr("training_epochs", fmt.Sprintf("must be non-negative, got %d", *m.TrainingEpochs))
	}

	if m.TrainingSteps != nil && *m.TrainingSteps < 0 {
		return manifestErr("training_steps", fmt.Sprintf("must be non-negative, got %d", *m.TrainingSteps))
	}

	if strings.TrimSpace(m.UUID) == "" {
		return manifestErr("uuid", "must not be empty")
	}

	if !semverRe.MatchString(m.Version) {
		return manifestErr("version", fmt.Sprintf("%q is not a semantic version", m.Version))
	}

	if len(m.Speakers) == 0 {
		return manifestErr("speakers", "must not be empty")
	}

	seenSpeakerIDs := make(map[int]string, len(m.Speakers))

	for _, sp := range m.Speakers {
		if err := sp.validate(); err != nil {
			return err
		}

		if prev, dup := seenSpeakerIDs[sp.LocalID]; dup {
			return manifestErr("speakers", fmt.Sprintf("local id %d used by both %q and %q", sp.LocalID, prev, sp.Name))
		}

		seenSpeakerIDs[sp.LocalID] = sp.Name
	}

	return nil
}

// EnsureFormat checks that the manifest's model format matches the
// container kind it is being read from or written to.
func (m *Manifest) EnsureFormat(f ModelFormat) error {
	if m.ModelFormat != f {
		return manifestErr("model_format", fmt.Sprintf("manifest declares %q but container is %q", m.ModelFormat, f))
	}

	return nil
}

func (sp *Speaker) validate() error {
	if l := len([]rune(sp.Name)); l < 1 || l > maxNameLen {
		return manifestErr("speakers.name", fmt.Sprintf("speaker name length must be 1..%d, got %d", maxNameLen, l))
	}

	if err := validateImageDataURI(sp.Icon); err != nil {
		return manifestErr("speakers.icon", fmt.Sprintf("speaker %q: %v", sp.Name, err))
	}

	for _, tag := range sp.SupportedLanguages {
		if _, err := language.Parse(tag); err != nil {
			return manifestErr("speakers.supported_languages", fmt.Sprintf("speaker %q: invalid BCP-47 tag %q", sp.Name, tag))
		}
	}

	if strings.TrimSpace(sp.UUID) == "" {
		return manifestErr("speakers.uuid", fmt.Sprintf("speaker %q: uuid must not be empty", sp.Name))
	}

	if sp.LocalID < 0 {
		return manifestErr("speakers.local_id", fmt.Sprintf("speaker %q: local id must be non-negative, got %d", sp.Name, sp.LocalID))
	}

	if len(sp.Styles) == 0 {
		return manifestErr("speakers.styles", fmt.Sprintf("speaker %q: styles must not be empty", sp.Name))
	}

	seenStyleIDs := make(map[int]string, len(sp.Styles))

	for _, st := range sp.Styles {
		if err := st.validate(sp.Name); err != nil {
			return err
		}

		if prev, dup := seenStyleIDs[st.LocalID]; dup {
			return manifestErr("speakers.styles", fmt.Sprintf("speaker %q: style local id %d used by both %q and %q", sp.Name, st.LocalID, prev, st.Name))
		}

		seenStyleIDs[st.LocalID] = st.Name
	}

	return nil
}

func (st *Style) validate(speakerName string) error {
	if l := len([]rune(st.Name)); l < 1 || l > maxStyleNameLen {
		return manifestErr("speakers.styles.name", fmt.Sprintf("speaker %q: style name length must be 1..%d, got %d", speakerName, maxStyleNameLen, l))
	}

	if st.Icon != nil {
		if err := validateImageDataURI(*st.Icon); err != nil {
			return manifestErr("speakers.styles.icon", fmt.Sprintf("speaker %q style %q: %v", speakerName, st.Name, err))
		}
	}

	if st.LocalID < 0 || st.LocalID > MaxStyleID {
		return manifestErr("speakers.styles.local_id", fmt.Sprintf("speaker %q style %q: local id must be 0..%d, got %d", speakerName, st.Name, MaxStyleID, st.LocalID))
	}

	for _, vs := range st.VoiceSamples {
		if err := validateAudioDataURI(vs.Audio); err != nil {
			return manifestErr("speakers.styles.voice_samples", fmt.Sprintf("speaker %q style %q: %v", speakerName, st.Name, err))
		}
	}

	return nil
}

func manifestErr(field, msg string) error {
	return &ValidationError{Stage: "manifest", Field: field, Msg: msg}
}

var imagePrefixes = []string{
	"data:image/jpeg;base64,",
	"data:image/png;base64,",
}

func validateImageDataURI(s string) error {
	for _, prefix := range imagePrefixes {
		if !strings.HasPrefix(s, prefix) {
			continue
		}

		raw, err := base64.StdEncoding.DecodeString(s[len(prefix):])
		if err != nil {
			return fmt.Errorf("icon payload is not valid base64: %w", err)
		}

		if len(raw) > maxImageBytes {
			return fmt.Errorf("icon is %d bytes, limit is %d", len(raw), maxImageBytes)
		}

		return nil
	}

	return fmt.Errorf("icon must be a JPEG or PNG data URI")
}

const audioPrefix = "data:audio/wav;base64,"

func validateAudioDataURI(s string) error {
	if !strings.HasPrefix(s, audioPrefix) {
		return fmt.Errorf("voice sample audio must be a WAV data URI")
	}

	raw, err := base64.StdEncoding.DecodeString(s[len(audioPrefix):])
	if err != nil {
		return fmt.Errorf("voice sample payload is not valid base64: %w", err)
	}

	if len(raw) > maxAudioBytes {
		return fmt.Errorf("voice sample is %d bytes, limit is %d", len(raw), maxAudioBytes)
	}

	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		return fmt.Errorf("voice sample payload is not a valid WAV file")
	}

	return nil
}
