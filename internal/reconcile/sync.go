package reconcile

import (
	"github.com/example/go-aivm/internal/aivm"
)

// Placeholder values written over environment-dependent dataset paths so
// they never leak into a distributed model.
const (
	trainingFilesPlaceholder   = "train.list"
	validationFilesPlaceholder = "val.list"
)

// Sync projects the manifest back onto the hyper parameters, mutating the
// aggregate in place: the model name follows the manifest name, dataset
// paths are replaced with placeholders, and spk2id/style2id are rebuilt
// keyed by the manifest's speaker and style names. Ids present in the
// manifest but absent from the current maps are silently omitted.
//
// Sync must run before an aggregate is serialized into a container.
// Callers needing the pre-sync state should Clone first, or use SyncCopy.
func Sync(meta *aivm.Metadata) error {
	if len(meta.StyleVectors) == 0 {
		return &aivm.ValidationError{Stage: "style_vectors", Msg: "sync requires a style-vector blob"}
	}

	hp := &meta.HyperParameters

	hp.ModelName = meta.Manifest.Name
	hp.TrainingFiles = trainingFilesPlaceholder
	hp.ValidationFiles = validationFilesPlaceholder

	currentSpeakerIDs := hp.Spk2ID.IDs()
	currentStyleIDs := hp.Style2ID.IDs()

	var spk2id, style2id aivm.NameIDMap

	for _, sp := range meta.Manifest.Speakers {
		if _, ok := currentSpeakerIDs[sp.LocalID]; ok {
			spk2id.Set(sp.Name, sp.LocalID)
		}

		for _, st := range sp.Styles {
			if _, ok := currentStyleIDs[st.LocalID]; ok {
				style2id.Set(st.Name, st.LocalID)
			}
		}
	}

	hp.Spk2ID = spk2id
	hp.Style2ID = style2id
	hp.NSpeakers = spk2id.Len()
	hp.NumStyles = style2id.Len()

	return nil
}

// SyncCopy is the pure variant of Sync: it returns a synced deep copy and
// leaves the argument untouched.
func SyncCopy(meta *aivm.Metadata) (*aivm.Metadata, error) {
	out := meta.Clone()

	err := Sync(out)
	if err != nil {
		return nil, err
	}

	return out, nil
}
