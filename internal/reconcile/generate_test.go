package reconcile

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/example/go-aivm/internal/aivm"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// stubUUIDs replaces identifier generation with a deterministic sequence.
func stubUUIDs(t *testing.T) {
	t.Helper()

	orig := newUUID
	n := 0
	newUUID = func() string {
		n++
		return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
	}

	t.Cleanup(func() { newUUID = orig })
}

func hyperJSON(spk2id, style2id string) []byte {
	return []byte(`{
		"model_name": "MyVoice",
		"data": {
			"training_files": "/data/train.list",
			"validation_files": "/data/val.list",
			"use_jp_extra": false,
			"spk2id": ` + spk2id + `,
			"style2id": ` + style2id + `
		}
	}`)
}

var testVectors = []byte{0x01, 0x02, 0x03}

func expectHyperError(t *testing.T, err error, field string) {
	t.Helper()

	var verr *aivm.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *aivm.ValidationError", err)
	}

	if verr.Stage != "hyper_parameters" || verr.Field != field {
		t.Errorf("error = (%q, %q), want (hyper_parameters, %q)", verr.Stage, verr.Field, field)
	}
}

// ---------------------------------------------------------------------------
// Generate
// ---------------------------------------------------------------------------

func TestGenerate_FreshManifest(t *testing.T) {
	stubUUIDs(t)

	meta, err := Generate(aivm.ArchStyleBertVITS2, hyperJSON(`{"Alice":0,"Bob":1}`, `{"calm":0,"angry":1}`), testVectors)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	m := meta.Manifest

	if m.Name != "MyVoice" {
		t.Errorf("Name = %q", m.Name)
	}

	if m.ManifestVersion != aivm.ManifestVersion || m.Version != "1.0.0" {
		t.Errorf("versions = (%q, %q)", m.ManifestVersion, m.Version)
	}

	if m.ModelFormat != aivm.FormatSafetensors {
		t.Errorf("ModelFormat = %q", m.ModelFormat)
	}

	if m.ModelArchitecture != aivm.ArchStyleBertVITS2 {
		t.Errorf("ModelArchitecture = %q", m.ModelArchitecture)
	}

	if len(m.Speakers) != 2 {
		t.Fatalf("speakers = %d, want 2", len(m.Speakers))
	}

	// Speakers follow spk2id declaration order, with the map's ids.
	if m.Speakers[0].Name != "Alice" || m.Speakers[0].LocalID != 0 {
		t.Errorf("speaker[0] = %q/%d", m.Speakers[0].Name, m.Speakers[0].LocalID)
	}

	if m.Speakers[1].Name != "Bob" || m.Speakers[1].LocalID != 1 {
		t.Errorf("speaker[1] = %q/%d", m.Speakers[1].Name, m.Speakers[1].LocalID)
	}

	if m.Speakers[0].Icon != aivm.DefaultIcon {
		t.Error("speaker icon is not the default icon")
	}

	// Every speaker carries the full style list.
	for _, sp := range m.Speakers {
		if len(sp.Styles) != 2 {
			t.Fatalf("speaker %q styles = %d, want 2", sp.Name, len(sp.Styles))
		}

		if sp.Styles[0].Name != "calm" || sp.Styles[1].Name != "angry" {
			t.Errorf("speaker %q styles = [%q %q]", sp.Name, sp.Styles[0].Name, sp.Styles[1].Name)
		}
	}

	if string(meta.StyleVectors) != string(testVectors) {
		t.Error("style vectors not carried into the aggregate")
	}
}

func TestGenerate_RenamesNeutral(t *testing.T) {
	stubUUIDs(t)

	meta, err := Generate(aivm.ArchStyleBertVITS2, hyperJSON(`{"Alice":0}`, `{"Neutral":0}`), testVectors)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	got := meta.Manifest.Speakers[0].Styles[0].Name
	if got != aivm.DefaultStyleName {
		t.Errorf("style name = %q, want %q", got, aivm.DefaultStyleName)
	}
}

func TestGenerate_KeepsNeutralWhenDefaultNameTaken(t *testing.T) {
	stubUUIDs(t)

	meta, err := Generate(aivm.ArchStyleBertVITS2,
		hyperJSON(`{"Alice":0}`, `{"Neutral":0,"ノーマル":1}`), testVectors)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	styles := meta.Manifest.Speakers[0].Styles
	if styles[0].Name != "Neutral" || styles[1].Name != aivm.DefaultStyleName {
		t.Errorf("styles = [%q %q]", styles[0].Name, styles[1].Name)
	}
}

func TestGenerate_ArchitectureFollowsFlagNotArgument(t *testing.T) {
	stubUUIDs(t)

	doc := []byte(`{
		"model_name": "MyVoice",
		"data": {
			"use_jp_extra": true,
			"spk2id": {"Alice": 0},
			"style2id": {"calm": 0}
		}
	}`)

	meta, err := Generate(aivm.ArchStyleBertVITS2, doc, testVectors)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if meta.Manifest.ModelArchitecture != aivm.ArchStyleBertVITS2JPExtra {
		t.Errorf("ModelArchitecture = %q, want JP-Extra", meta.Manifest.ModelArchitecture)
	}

	langs := meta.Manifest.Speakers[0].SupportedLanguages
	if !reflect.DeepEqual(langs, []string{"ja"}) {
		t.Errorf("SupportedLanguages = %v, want [ja]", langs)
	}
}

func TestGenerate_DeterministicModuloIdentifiers(t *testing.T) {
	stubUUIDs(t)
	first, err := Generate(aivm.ArchStyleBertVITS2, hyperJSON(`{"Alice":0}`, `{"calm":0}`), testVectors)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}

	stubUUIDs(t)
	second, err := Generate(aivm.ArchStyleBertVITS2, hyperJSON(`{"Alice":0}`, `{"calm":0}`), testVectors)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}

	if !reflect.DeepEqual(first.Manifest, second.Manifest) {
		t.Error("repeated Generate with identical input and identifiers diverged")
	}
}

func TestGenerate_MissingStyleVectors(t *testing.T) {
	_, err := Generate(aivm.ArchStyleBertVITS2, hyperJSON(`{"Alice":0}`, `{"calm":0}`), nil)

	var verr *aivm.ValidationError
	if !errors.As(err, &verr) || verr.Stage != "style_vectors" {
		t.Fatalf("error = %v, want style_vectors-stage *ValidationError", err)
	}
}

func TestGenerate_HyperParameterInvariants(t *testing.T) {
	cases := []struct {
		name     string
		spk2id   string
		style2id string
		field    string
	}{
		{"no speakers", `{}`, `{"calm":0}`, "spk2id"},
		{"no styles", `{"Alice":0}`, `{}`, "style2id"},
		{"style id above range", `{"Alice":0}`, `{"calm":32}`, "style2id"},
		{"style id negative", `{"Alice":0}`, `{"calm":-1}`, "style2id"},
		{"duplicate style id", `{"Alice":0}`, `{"calm":0,"angry":0}`, "style2id"},
		{"speaker id negative", `{"Alice":-1}`, `{"calm":0}`, "spk2id"},
		{"duplicate speaker id", `{"Alice":0,"Bob":0}`, `{"calm":0}`, "spk2id"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Generate(aivm.ArchStyleBertVITS2, hyperJSON(tc.spk2id, tc.style2id), testVectors)
			expectHyperError(t, err, tc.field)
		})
	}
}

func TestGenerate_UnsupportedArchitecture(t *testing.T) {
	_, err := Generate("Future-Arch", hyperJSON(`{"Alice":0}`, `{"calm":0}`), testVectors)

	var uerr *aivm.UnsupportedArchitectureError
	if !errors.As(err, &uerr) {
		t.Fatalf("error = %v, want *UnsupportedArchitectureError", err)
	}
}

func TestGenerate_ManifestPassesValidation(t *testing.T) {
	stubUUIDs(t)

	meta, err := Generate(aivm.ArchStyleBertVITS2, hyperJSON(`{"Alice":0}`, `{"calm":0}`), testVectors)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if err := meta.Manifest.Validate(); err != nil {
		t.Errorf("generated manifest fails validation: %v", err)
	}
}
