package routine

import (
	"fmt"
	"strings"
)

// Input is one turn of user input: opaque text plus an optional uploaded
// file reference and optional structured payload.
type Input struct {
	Text    string         `json:"text"`
	File    *FileRef       `json:"file,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// FileRef points at an artifact already staged in the artifact store by the
// transport layer. Steps never see raw bytes.
type FileRef struct {
	ArtifactID  string `json:"artifact_id"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Shape declares the expected input for a step. The set of shapes is closed;
// concrete types implement the unexported marker so the engine can switch
// exhaustively.
type Shape interface{ isShape() }

// TextShape expects free text, optionally with a minimum trimmed length.
// The captured value is stored under the step's Field.
type TextShape struct {
	MinLen int
}

func (TextShape) isShape() {}

// ChoiceShape expects one of a fixed option list (case-insensitive match).
type ChoiceShape struct {
	Options []string
}

func (ChoiceShape) isShape() {}

// NamesShape expects two full names separated by a comma or newline:
// guardian first, player second. Captures guardian_name and player_name.
type NamesShape struct{}

func (NamesShape) isShape() {}

// ConfirmShape expects a yes/no answer and captures it as a bool.
type ConfirmShape struct{}

func (ConfirmShape) isShape() {}

// FileShape expects an uploaded file reference, optionally restricted to a
// set of content types. Captures the artifact id.
type FileShape struct {
	ContentTypes []string
}

func (FileShape) isShape() {}

// capture validates in against the shape and returns the field delta to
// merge into the session. A non-nil error is always a *ShapeError carrying
// the re-prompt hint; the engine maps it to an unchanged position.
func capture(shape Shape, field string, in Input) (map[string]any, error) {
	switch s := shape.(type) {
	case TextShape:
		text := strings.TrimSpace(in.Text)
		if len(text) < max(1, s.MinLen) {
			return nil, &ShapeError{Hint: "I need a short text answer here."}
		}
		return map[string]any{field: text}, nil

	case ChoiceShape:
		text := strings.TrimSpace(in.Text)
		for _, opt := range s.Options {
			if strings.EqualFold(text, opt) {
				return map[string]any{field: opt}, nil
			}
		}
		return nil, &ShapeError{Hint: fmt.Sprintf("Please pick one of: %s.", strings.Join(s.Options, ", "))}

	case NamesShape:
		guardian, player, ok := splitNames(in.Text)
		if !ok {
			return nil, &ShapeError{Hint: "Please give two full names: yours first, then the player's, separated by a comma."}
		}
		return map[string]any{"guardian_name": guardian, "player_name": player}, nil

	case ConfirmShape:
		switch strings.ToLower(strings.TrimSpace(in.Text)) {
		case "yes", "y", "yep", "correct", "ok":
			return map[string]any{field: true}, nil
		case "no", "n", "nope":
			return map[string]any{field: false}, nil
		}
		return nil, &ShapeError{Hint: "Please answer yes or no."}

	case FileShape:
		if in.File == nil || in.File.ArtifactID == "" {
			return nil, &ShapeError{Hint: "Please attach the file for this step."}
		}
		if len(s.ContentTypes) > 0 && in.File.ContentType != "" {
			ok := false
			for _, ct := range s.ContentTypes {
				if strings.EqualFold(ct, in.File.ContentType) {
					ok = true
					break
				}
			}
			if !ok {
				return nil, &ShapeError{Hint: fmt.Sprintf("That file type is not accepted; expected %s.", strings.Join(s.ContentTypes, " or "))}
			}
		}
		delta := map[string]any{field: in.File.ArtifactID}
		if in.File.Name != "" {
			delta[field+"_name"] = in.File.Name
		}
		return delta, nil

	default:
		return nil, fmt.Errorf("unhandled input shape %T", shape)
	}
}

// ShapeError reports invalid input with a client-facing re-prompt hint.
type ShapeError struct {
	Hint string
}

func (e *ShapeError) Error() string { return "input does not match expected shape: " + e.Hint }

// splitNames parses "Guardian Name, Player Name" (comma, semicolon or
// newline separated). Both halves must contain at least two words.
func splitNames(text string) (guardian, player string, ok bool) {
	text = strings.TrimSpace(text)
	var parts []string
	for _, sep := range []string{"\n", ",", ";"} {
		if strings.Contains(text, sep) {
			parts = strings.SplitN(text, sep, 2)
			break
		}
	}
	if len(parts) != 2 {
		return "", "", false
	}
	guardian = strings.Join(strings.Fields(parts[0]), " ")
	player = strings.Join(strings.Fields(parts[1]), " ")
	if len(strings.Fields(guardian)) < 2 || len(strings.Fields(player)) < 2 {
		return "", "", false
	}
	return guardian, player, true
}
