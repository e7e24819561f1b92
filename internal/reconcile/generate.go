// Package reconcile builds and maintains manifests from hyper parameters:
// generating a fresh manifest for a new model, updating an existing
// manifest when its hyper parameters are replaced while preserving
// user-authored identity, and projecting a manifest back onto the hyper
// parameters before serialization.
package reconcile

import (
	"fmt"

	"github.com/example/go-aivm/internal/aivm"
	"github.com/google/uuid"
)

// Seam for tests that need deterministic identifiers.
var newUUID = uuid.NewString

// Generate parses and validates hyper-parameter bytes and synthesizes a
// fresh manifest for them: new unique identifiers, default icons, speakers
// and styles in the hyper parameters' own order.
func Generate(arch aivm.Architecture, hyperBytes, styleVectors []byte) (*aivm.Metadata, error) {
	hp, err := aivm.ParseHyperParameters(arch, hyperBytes)
	if err != nil {
		return nil, err
	}

	err = checkHyperParameters(&hp)
	if err != nil {
		return nil, err
	}

	derived := aivm.ArchitectureFor(hp.UseJPExtra)

	err = requireStyleVectors(derived, styleVectors)
	if err != nil {
		return nil, err
	}

	manifest := buildManifest(derived, &hp)

	err = manifest.Validate()
	if err != nil {
		return nil, err
	}

	return &aivm.Metadata{
		Manifest:        manifest,
		HyperParameters: hp,
		StyleVectors:    styleVectors,
	}, nil
}

// checkHyperParameters enforces the id-map invariants shared by Generate
// and Update: non-empty maps, style ids in [0, MaxStyleID] and unique
// across the whole map, speaker ids non-negative and unique.
func checkHyperParameters(hp *aivm.HyperParameters) error {
	if hp.Spk2ID.Len() == 0 {
		return hyperErr("spk2id", "no speakers")
	}

	if hp.Style2ID.Len() == 0 {
		return hyperErr("style2id", "no styles")
	}

	seenStyles := make(map[int]string, hp.Style2ID.Len())

	for _, name := range hp.Style2ID.Names() {
		id, _ := hp.Style2ID.Get(name)

		if id < 0 || id > aivm.MaxStyleID {
			return hyperErr("style2id", fmt.Sprintf("style %q has id %d, must be 0..%d", name, id, aivm.MaxStyleID))
		}

		if prev, dup := seenStyles[id]; dup {
			return hyperErr("style2id", fmt.Sprintf("styles %q and %q share id %d", prev, name, id))
		}

		seenStyles[id] = name
	}

	seenSpeakers := make(map[int]string, hp.Spk2ID.Len())

	for _, name := range hp.Spk2ID.Names() {
		id, _ := hp.Spk2ID.Get(name)

		if id < 0 {
			return hyperErr("spk2id", fmt.Sprintf("speaker %q has negative id %d", name, id))
		}

		if prev, dup := seenSpeakers[id]; dup {
			return hyperErr("spk2id", fmt.Sprintf("speakers %q and %q share id %d", prev, name, id))
		}

		seenSpeakers[id] = name
	}

	return nil
}

func requireStyleVectors(arch aivm.Architecture, styleVectors []byte) error {
	if arch.RequiresStyleVectors() && len(styleVectors) == 0 {
		return &aivm.ValidationError{
			Stage: "style_vectors",
			Msg:   fmt.Sprintf("architecture %q requires a style-vector blob", arch),
		}
	}

	return nil
}

func buildManifest(arch aivm.Architecture, hp *aivm.HyperParameters) aivm.Manifest {
	speakers := make([]aivm.Speaker, 0, hp.Spk2ID.Len())

	for _, name := range hp.Spk2ID.Names() {
		id, _ := hp.Spk2ID.Get(name)
		speakers = append(speakers, newSpeaker(arch, name, id, &hp.Style2ID))
	}

	return aivm.Manifest{
		ManifestVersion:   aivm.ManifestVersion,
		Name:              hp.ModelName,
		Description:       "",
		Creators:          []string{},
		License:           nil,
		ModelArchitecture: arch,
		ModelFormat:       aivm.FormatSafetensors,
		UUID:              newUUID(),
		Version:           "1.0.0",
		Speakers:          speakers,
	}
}

func newSpeaker(arch aivm.Architecture, name string, id int, style2id *aivm.NameIDMap) aivm.Speaker {
	return aivm.Speaker{
		Name:               name,
		Icon:               aivm.DefaultIcon,
		SupportedLanguages: arch.SupportedLanguages(),
		UUID:               newUUID(),
		LocalID:            id,
		Styles:             buildStyles(style2id),
	}
}

func buildStyles(style2id *aivm.NameIDMap) []aivm.Style {
	styles := make([]aivm.Style, 0, style2id.Len())

	for _, name := range style2id.Names() {
		id, _ := style2id.Get(name)

		styles = append(styles, aivm.Style{
			Name:         normalizeStyleName(name, style2id),
			LocalID:      id,
			VoiceSamples: []aivm.VoiceSample{},
		})
	}

	return styles
}

// normalizeStyleName renames a style literally called "Neutral" to the
// localized default label, unless that label is already taken by another
// style anywhere in the map.
func normalizeStyleName(name string, style2id *aivm.NameIDMap) string {
	if name != "Neutral" {
		return name
	}

	if style2id.Has(aivm.DefaultStyleName) {
		return name
	}

	return aivm.DefaultStyleName
}

func hyperErr(field, msg string) error {
	return &aivm.ValidationError{Stage: "hyper_parameters", Field: field, Msg: msg}
}
