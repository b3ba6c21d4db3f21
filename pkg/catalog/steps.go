// pkg/catalog/steps.go - typed installer steps.

package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Action is the kind tag of a step.
type Action string

const (
	ActionDownload    Action = "download"
	ActionExtract     Action = "extract"
	ActionExtractSFX  Action = "extract_sfx"
	ActionCopy        Action = "copy"
	ActionDelete      Action = "delete"
	ActionRun         Action = "run"
	ActionRunAuoSetup Action = "run_auo_setup"
)

// Step is one unit of an install or uninstall list. The concrete types below
// are the complete set; anything else in the index decodes as UnknownStep.
type Step interface {
	Action() Action
	// Validate checks the fields required by the action.
	Validate() error
}

// DownloadStep fetches the installer source into the temp dir.
type DownloadStep struct{}

// ExtractStep unpacks an archive. Empty From means the last download, empty
// To means the temp dir. SFX selects the 7-Zip self-extractor reader.
type ExtractStep struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	SFX  bool   `json:"-"`
}

// CopyStep copies files matching From into the directory To.
type CopyStep struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DeleteStep removes a file or directory tree. Path must expand to an
// absolute path.
type DeleteStep struct {
	Path string `json:"path"`
}

// RunStep executes a program hidden and waits for it.
type RunStep struct {
	Path    string     `json:"path"`
	Args    StringList `json:"args,omitempty"`
	Elevate bool       `json:"elevate,omitempty"`
}

// RunAuoSetupStep drives the AviUtl ExEdit2 output plugin setup tool.
type RunAuoSetupStep struct {
	Path string `json:"path"`
}

// StringList decodes a JSON array whose elements may be numbers or booleans
// as well as strings.
type StringList []string

// UnmarshalJSON stringifies scalar elements.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(StringList, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case nil:
			out = append(out, "")
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	*l = out
	return nil
}

// UnknownStep keeps an action this build does not understand.
type UnknownStep struct {
	Name string
	Raw  json.RawMessage
}

func (DownloadStep) Action() Action    { return ActionDownload }
func (CopyStep) Action() Action        { return ActionCopy }
func (DeleteStep) Action() Action      { return ActionDelete }
func (RunStep) Action() Action         { return ActionRun }
func (RunAuoSetupStep) Action() Action { return ActionRunAuoSetup }
func (s UnknownStep) Action() Action   { return Action(s.Name) }

func (s ExtractStep) Action() Action {
	if s.SFX {
		return ActionExtractSFX
	}
	return ActionExtract
}

func (DownloadStep) Validate() error { return nil }
func (ExtractStep) Validate() error  { return nil }
func (UnknownStep) Validate() error  { return nil }

func (s CopyStep) Validate() error {
	if s.From == "" || s.To == "" {
		return fmt.Errorf("copy requires from and to")
	}
	return nil
}

func (s DeleteStep) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("delete requires path")
	}
	return nil
}

func (s RunStep) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("run requires path")
	}
	return nil
}

func (s RunAuoSetupStep) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("run_auo_setup requires path")
	}
	return nil
}

// Steps is an ordered step list with tag-directed decoding.
type Steps []Step

// UnmarshalJSON decodes each element by its "action" field. null leaves the
// list nil.
func (s *Steps) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Steps, 0, len(raws))
	for i, raw := range raws {
		step, err := DecodeStep(raw)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		out = append(out, step)
	}
	*s = out
	return nil
}

// MarshalJSON writes each step with its action tag.
func (s Steps) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(s))
	for _, step := range s {
		raw, err := EncodeStep(step)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// DecodeStep decodes a single step object.
func DecodeStep(raw json.RawMessage) (Step, error) {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	var (
		step Step
		err  error
	)
	switch Action(head.Action) {
	case ActionDownload:
		step = DownloadStep{}
	case ActionExtract, ActionExtractSFX:
		var s ExtractStep
		err = json.Unmarshal(raw, &s)
		s.SFX = Action(head.Action) == ActionExtractSFX
		step = s
	case ActionCopy:
		var s CopyStep
		err = json.Unmarshal(raw, &s)
		step = s
	case ActionDelete:
		var s DeleteStep
		err = json.Unmarshal(raw, &s)
		step = s
	case ActionRun:
		var s RunStep
		err = json.Unmarshal(raw, &s)
		step = s
	case ActionRunAuoSetup:
		var s RunAuoSetupStep
		err = json.Unmarshal(raw, &s)
		step = s
	default:
		step = UnknownStep{Name: head.Action, Raw: append(json.RawMessage(nil), raw...)}
	}
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", head.Action, err)
	}
	return step, nil
}

// EncodeStep is the inverse of DecodeStep.
func EncodeStep(step Step) (json.RawMessage, error) {
	if u, ok := step.(UnknownStep); ok {
		return u.Raw, nil
	}
	body, err := json.Marshal(step)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	action, _ := json.Marshal(string(step.Action()))
	fields["action"] = action
	return json.Marshal(fields)
}
