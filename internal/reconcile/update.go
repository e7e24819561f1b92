package reconcile

import (
	"fmt"
	"slices"

	"github.com/example/go-aivm/internal/aivm"
)

// Update reconciles an existing aggregate against replacement
// hyper-parameter bytes. Speakers and styles are matched by local id:
// matches keep their identifier, icon, name and samples; everything else is
// dropped or freshly created. Non-fatal findings come back as an ordered
// warning list. The existing aggregate is not mutated.
//
// When newStyleVectors is empty the existing blob is carried over; the
// architecture's style-vector requirement applies to the result either way.
func Update(existing *aivm.Metadata, newHyperBytes, newStyleVectors []byte) (*aivm.Metadata, []string, error) {
	hp, err := aivm.ParseHyperParameters(existing.Manifest.ModelArchitecture, newHyperBytes)
	if err != nil {
		return nil, nil, err
	}

	err = checkHyperParameters(&hp)
	if err != nil {
		return nil, nil, err
	}

	derived := aivm.ArchitectureFor(hp.UseJPExtra)

	styleVectors := newStyleVectors
	if len(styleVectors) == 0 {
		styleVectors = existing.StyleVectors
	}

	err = requireStyleVectors(derived, styleVectors)
	if err != nil {
		return nil, nil, err
	}

	var warnings []string

	newSpeakerIDs := hp.Spk2ID.IDs()
	langs := derived.SupportedLanguages()

	speakers := make([]aivm.Speaker, 0, hp.Spk2ID.Len())
	retained := make(map[int]bool, len(existing.Manifest.Speakers))

	for _, sp := range existing.Manifest.Speakers {
		if _, ok := newSpeakerIDs[sp.LocalID]; !ok {
			warnings = append(warnings, fmt.Sprintf("speaker %q (local id %d) removed: absent from new hyper parameters", sp.Name, sp.LocalID))
			continue
		}

		kept := sp.Clone()

		if !slices.Equal(kept.SupportedLanguages, langs) {
			kept.SupportedLanguages = append([]string(nil), langs...)
			warnings = append(warnings, fmt.Sprintf("speaker %q: supported languages recomputed to %v", kept.Name, langs))
		}

		kept.Styles, warnings = reconcileStyles(kept.Name, kept.Styles, &hp.Style2ID, warnings)

		speakers = append(speakers, kept)
		retained[sp.LocalID] = true
	}

	for _, name := range hp.Spk2ID.Names() {
		id, _ := hp.Spk2ID.Get(name)
		if retained[id] {
			continue
		}

		speakers = append(speakers, newSpeaker(derived, name, id, &hp.Style2ID))
		warnings = append(warnings, fmt.Sprintf("speaker %q (local id %d) added", name, id))
	}

	if len(speakers) == 0 {
		return nil, nil, &aivm.ReconcileError{Msg: "update produced a manifest with no speakers"}
	}

	for _, sp := range speakers {
		if len(sp.Styles) == 0 {
			return nil, nil, &aivm.ReconcileError{Msg: fmt.Sprintf("update left speaker %q with no styles", sp.Name)}
		}
	}

	manifest := existing.Manifest
	manifest.Creators = append([]string(nil), existing.Manifest.Creators...)
	manifest.ModelArchitecture = derived
	manifest.Speakers = speakers

	return &aivm.Metadata{
		Manifest:        manifest,
		HyperParameters: hp,
		StyleVectors:    styleVectors,
	}, warnings, nil
}

// reconcileStyles keeps styles whose local id survives in the new map,
// drops the rest, then creates styles for every unmatched new id.
func reconcileStyles(speakerName string, styles []aivm.Style, style2id *aivm.NameIDMap, warnings []string) ([]aivm.Style, []string) {
	newStyleIDs := style2id.IDs()

	out := make([]aivm.Style, 0, style2id.Len())
	retained := make(map[int]bool, len(styles))

	for _, st := range styles {
		if _, ok := newStyleIDs[st.LocalID]; !ok {
			warnings = append(warnings, fmt.Sprintf("speaker %q: style %q (local id %d) removed: absent from new hyper parameters", speakerName, st.Name, st.LocalID))
			continue
		}

		out = append(out, st)
		retained[st.LocalID] = true
	}

	for _, name := range style2id.Names() {
		id, _ := style2id.Get(name)
		if retained[id] {
			continue
		}

		styleName := normalizeStyleName(name, style2id)
		out = append(out, aivm.Style{
			Name:         styleName,
			LocalID:      id,
			VoiceSamples: []aivm.VoiceSample{},
		})
		warnings = append(warnings, fmt.Sprintf("speaker %q: style %q (local id %d) added", speakerName, styleName, id))
	}

	return out, warnings
}
