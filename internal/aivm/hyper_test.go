package aivm

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

const sampleHyperJSON = `{
	"model_name": "TestModel",
	"version": "2.5.1",
	"train": {"log_interval": 200, "seed": 42},
	"data": {
		"training_files": "/home/user/train.list",
		"validation_files": "/home/user/val.list",
		"sampling_rate": 44100,
		"use_jp_extra": false,
		"n_speakers": 2,
		"num_styles": 2,
		"spk2id": {"Alice": 0, "Bob": 1},
		"style2id": {"Neutral": 0, "Happy": 1}
	}
}`

// ---------------------------------------------------------------------------
// ParseHyperParameters
// ---------------------------------------------------------------------------

func TestParseHyperParameters_TypedViews(t *testing.T) {
	hp, err := ParseHyperParameters(ArchStyleBertVITS2, []byte(sampleHyperJSON))
	if err != nil {
		t.Fatalf("ParseHyperParameters: %v", err)
	}

	if hp.ModelName != "TestModel" {
		t.Errorf("ModelName = %q", hp.ModelName)
	}

	if hp.UseJPExtra {
		t.Error("UseJPExtra = true, want false")
	}

	if hp.TrainingFiles != "/home/user/train.list" {
		t.Errorf("TrainingFiles = %q", hp.TrainingFiles)
	}

	if hp.NSpeakers != 2 || hp.NumStyles != 2 {
		t.Errorf("counts = (%d, %d), want (2, 2)", hp.NSpeakers, hp.NumStyles)
	}

	if got := hp.Spk2ID.Names(); !reflect.DeepEqual(got, []string{"Alice", "Bob"}) {
		t.Errorf("Spk2ID names = %v, want [Alice Bob]", got)
	}

	if id, ok := hp.Style2ID.Get("Happy"); !ok || id != 1 {
		t.Errorf("Style2ID[Happy] = (%d, %v)", id, ok)
	}
}

func TestParseHyperParameters_PreservesMapOrder(t *testing.T) {
	// Declaration order differs from both alphabetical and id order.
	doc := `{"model_name":"m","data":{"spk2id":{"Zoe":2,"Amy":0,"Mia":1},"style2id":{"b":1,"a":0}}}`

	hp, err := ParseHyperParameters(ArchStyleBertVITS2, []byte(doc))
	if err != nil {
		t.Fatalf("ParseHyperParameters: %v", err)
	}

	if got := hp.Spk2ID.Names(); !reflect.DeepEqual(got, []string{"Zoe", "Amy", "Mia"}) {
		t.Errorf("Spk2ID names = %v, want declaration order [Zoe Amy Mia]", got)
	}

	if got := hp.Style2ID.Names(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("Style2ID names = %v, want declaration order [b a]", got)
	}
}

func TestParseHyperParameters_FlagDefaultsFromArchitecture(t *testing.T) {
	doc := `{"model_name":"m","data":{"spk2id":{"A":0},"style2id":{"s":0}}}`

	hp, err := ParseHyperParameters(ArchStyleBertVITS2JPExtra, []byte(doc))
	if err != nil {
		t.Fatalf("ParseHyperParameters: %v", err)
	}

	if !hp.UseJPExtra {
		t.Error("UseJPExtra = false, want true for JP-Extra architecture")
	}
}

func TestParseHyperParameters_UnknownArchitecture(t *testing.T) {
	_, err := ParseHyperParameters("Future-Arch", []byte(sampleHyperJSON))

	var uerr *UnsupportedArchitectureError
	if !errors.As(err, &uerr) {
		t.Fatalf("error = %v, want *UnsupportedArchitectureError", err)
	}

	if uerr.Architecture != "Future-Arch" {
		t.Errorf("Architecture = %q", uerr.Architecture)
	}
}

func TestParseHyperParameters_SchemaErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"not JSON", `{`},
		{"missing model_name", `{"data":{"spk2id":{"A":0},"style2id":{"s":0}}}`},
		{"empty model_name", `{"model_name":"","data":{"spk2id":{"A":0},"style2id":{"s":0}}}`},
		{"missing data", `{"model_name":"m"}`},
		{"missing spk2id", `{"model_name":"m","data":{"style2id":{"s":0}}}`},
		{"missing style2id", `{"model_name":"m","data":{"spk2id":{"A":0}}}`},
		{"non-integer id", `{"model_name":"m","data":{"spk2id":{"A":"zero"},"style2id":{"s":0}}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseHyperParameters(ArchStyleBertVITS2, []byte(tc.doc))

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}

			if verr.Stage != "hyper_parameters" {
				t.Errorf("Stage = %q, want hyper_parameters", verr.Stage)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// MarshalJSON round trip
// ---------------------------------------------------------------------------

func TestHyperParameters_RoundTripPreservesOpaqueFields(t *testing.T) {
	hp, err := ParseHyperParameters(ArchStyleBertVITS2, []byte(sampleHyperJSON))
	if err != nil {
		t.Fatalf("ParseHyperParameters: %v", err)
	}

	out, err := json.Marshal(hp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("re-parse marshalled output: %v", err)
	}

	// Fields this subsystem never interprets must come back byte-for-byte.
	if string(doc["train"]) != `{"log_interval": 200, "seed": 42}` {
		t.Errorf("opaque field train changed: %s", doc["train"])
	}

	if string(doc["version"]) != `"2.5.1"` {
		t.Errorf("opaque field version changed: %s", doc["version"])
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(doc["data"], &data); err != nil {
		t.Fatalf("re-parse data: %v", err)
	}

	if string(data["sampling_rate"]) != "44100" {
		t.Errorf("opaque field data.sampling_rate changed: %s", data["sampling_rate"])
	}
}

func TestHyperParameters_RoundTripPreservesKeyOrder(t *testing.T) {
	doc := `{"model_name":"m","zeta":1,"alpha":2,"data":{"spk2id":{"A":0},"style2id":{"s":0}}}`

	hp, err := ParseHyperParameters(ArchStyleBertVITS2, []byte(doc))
	if err != nil {
		t.Fatalf("ParseHyperParameters: %v", err)
	}

	out, err := json.Marshal(hp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	zeta := strings.Index(string(out), `"zeta"`)
	alpha := strings.Index(string(out), `"alpha"`)

	if zeta < 0 || alpha < 0 || zeta > alpha {
		t.Errorf("top-level key order not preserved: %s", out)
	}
}

func TestHyperParameters_MarshalReflectsMutations(t *testing.T) {
	hp, err := ParseHyperParameters(ArchStyleBertVITS2, []byte(sampleHyperJSON))
	if err != nil {
		t.Fatalf("ParseHyperParameters: %v", err)
	}

	hp.ModelName = "Renamed"
	hp.TrainingFiles = "train.list"

	var rebuilt NameIDMap
	rebuilt.Set("Alice", 0)
	hp.Spk2ID = rebuilt
	hp.NSpeakers = 1

	out, err := json.Marshal(hp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	reparsed, err := ParseHyperParameters(ArchStyleBertVITS2, out)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}

	if reparsed.ModelName != "Renamed" {
		t.Errorf("ModelName = %q", reparsed.ModelName)
	}

	if reparsed.TrainingFiles != "train.list" {
		t.Errorf("TrainingFiles = %q", reparsed.TrainingFiles)
	}

	if got := reparsed.Spk2ID.Names(); !reflect.DeepEqual(got, []string{"Alice"}) {
		t.Errorf("Spk2ID names = %v", got)
	}

	if reparsed.NSpeakers != 1 {
		t.Errorf("NSpeakers = %d", reparsed.NSpeakers)
	}
}

// ---------------------------------------------------------------------------
// NameIDMap
// ---------------------------------------------------------------------------

func TestNameIDMap_SetUpdatesWithoutReordering(t *testing.T) {
	var m NameIDMap
	m.Set("a", 0)
	m.Set("b", 1)
	m.Set("a", 5)

	if got := m.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names = %v", got)
	}

	if id, _ := m.Get("a"); id != 5 {
		t.Errorf("Get(a) = %d, want 5", id)
	}

	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestNameIDMap_IDs(t *testing.T) {
	var m NameIDMap
	m.Set("x", 3)
	m.Set("y", 7)

	ids := m.IDs()
	if ids[3] != "x" || ids[7] != "y" {
		t.Errorf("IDs = %v", ids)
	}
}

func TestNameIDMap_MarshalKeepsOrder(t *testing.T) {
	var m NameIDMap
	m.Set("second", 1)
	m.Set("first", 0)

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if string(out) != `{"second":1,"first":0}` {
		t.Errorf("Marshal = %s", out)
	}
}

func TestHyperParameters_CloneIsIndependent(t *testing.T) {
	hp, err := ParseHyperParameters(ArchStyleBertVITS2, []byte(sampleHyperJSON))
	if err != nil {
		t.Fatalf("ParseHyperParameters: %v", err)
	}

	clone := hp.Clone()
	clone.ModelName = "Changed"
	clone.Spk2ID.Set("Carol", 9)

	if hp.ModelName != "TestModel" {
		t.Errorf("original ModelName mutated: %q", hp.ModelName)
	}

	if hp.Spk2ID.Has("Carol") {
		t.Error("original Spk2ID mutated by clone")
	}
}
