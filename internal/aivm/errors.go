package aivm

import "fmt"

// FormatError reports bytes that are not a container of the expected kind:
// a malformed length prefix, header JSON, or graph description.
type FormatError struct {
	Container string // "safetensors" or "onnx"
	Msg       string
	Err       error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Container, e.Msg, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Container, e.Msg)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ValidationError reports a schema or invariant violation. Stage identifies
// the metadata block being validated ("manifest", "hyper_parameters" or
// "style_vectors"); Field names the offending field, speaker or style when
// one can be identified.
type ValidationError struct {
	Stage string
	Field string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	s := e.Stage
	if e.Field != "" {
		s += "." + e.Field
	}

	if e.Err != nil {
		return fmt.Sprintf("validate %s: %s: %v", s, e.Msg, e.Err)
	}

	return fmt.Sprintf("validate %s: %s", s, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UnsupportedArchitectureError reports a recognized container whose model
// architecture has no hyper-parameter schema in this build.
type UnsupportedArchitectureError struct {
	Architecture Architecture
}

func (e *UnsupportedArchitectureError) Error() string {
	return fmt.Sprintf("unsupported model architecture %q", string(e.Architecture))
}

// ReconcileError reports a structural invariant broken by an update: the
// reconciled manifest ended up with no speakers, or a speaker with no
// styles. Unlike update warnings this is fatal.
type ReconcileError struct {
	Msg string
}

func (e *ReconcileError) Error() string { return "reconcile: " + e.Msg }
