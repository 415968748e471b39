package kafka

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/goccy/go-json"
)

var ErrInvalidCommand = errors.New("invalid session command")

// wire form accepted on the command topic; kind/location may be flat or nested
type commandPayload struct {
	Action   models.CommandAction `json:"action"`
	Source   json.RawMessage      `json:"source"`
	Kind     models.SourceKind    `json:"kind"`
	Filename string               `json:"filename"`
	Email    string               `json:"email"`
}

// DecodeCommand parses a command message. Both
// {"action":"start","source":{"kind":"file","location":"a.mp4"}} and
// {"action":"start","source":"a.mp4","kind":"file"} are accepted.
func DecodeCommand(data []byte) (models.SessionCommand, error) {
	var p commandPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.SessionCommand{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	cmd := models.SessionCommand{
		Action: models.CommandAction(strings.ToLower(string(p.Action))),
		Email:  strings.TrimSpace(p.Email),
	}

	if len(p.Source) > 0 && string(p.Source) != "null" {
		var location string
		if err := json.Unmarshal(p.Source, &location); err == nil {
			cmd.Source = models.SourceSpec{Kind: p.Kind, Location: location}
		} else if err := json.Unmarshal(p.Source, &cmd.Source); err != nil {
			return models.SessionCommand{}, fmt.Errorf("%w: source: %v", ErrInvalidCommand, err)
		}
	}
	if cmd.Source.Location == "" && p.Filename != "" {
		cmd.Source = models.SourceSpec{Kind: models.SourceFile, Location: p.Filename}
	}

	switch cmd.Action {
	case models.CommandStart:
		if cmd.Source.Location == "" {
			return models.SessionCommand{}, fmt.Errorf("%w: start without source", ErrInvalidCommand)
		}
	case models.CommandStop:
	default:
		return models.SessionCommand{}, fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, p.Action)
	}

	return cmd, nil
}
