package models

import (
	"bytes"
	"time"

	"github.com/goccy/go-json"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	// ErrorDanger is the danger summary of an analysis that could not be completed.
	ErrorDanger = "Unable to analyze due to error."
	// DefaultDanger is used when the model omits the danger field.
	DefaultDanger = "Not provided."
)

// Analysis структурированный результат анализа кадра
type Analysis struct {
	Status           string       `json:"status"`
	Timestamp        string       `json:"timestamp"`
	ImagePath        string       `json:"image_path"`
	Profiles         Descriptions `json:"profiles"`
	Weapons          Descriptions `json:"weapons"`
	Danger           string       `json:"danger"`
	ActionRequired   bool         `json:"action_required"`
	RawModelResponse *string      `json:"raw_model_response"`
	Error            string       `json:"error,omitempty"`
}

// LogRecord is the persisted evidence document for one trigger event.
// The shape is read by listing consumers and must stay stable.
type LogRecord struct {
	Timestamp string   `json:"timestamp"`
	Image     string   `json:"image"`
	Analysis  Analysis `json:"analysis"`
}

// AnalysisTimestamp formats t the way analysis results carry it.
func AnalysisTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ErrorAnalysis builds the fallback result recorded when analysis fails.
func ErrorAnalysis(at time.Time, imagePath string, cause error) Analysis {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return Analysis{
		Status:         StatusError,
		Timestamp:      AnalysisTimestamp(at),
		ImagePath:      imagePath,
		Profiles:       Descriptions{},
		Weapons:        Descriptions{},
		Danger:         ErrorDanger,
		ActionRequired: false,
		Error:          msg,
	}
}

// Descriptions is a list of free-text descriptions. Models sometimes answer with
// objects instead of strings; those are kept as compact JSON text.
type Descriptions []string

func (d *Descriptions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = Descriptions{}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		// одиночная строка вместо списка
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*d = Descriptions{single}
		return nil
	}

	out := make(Descriptions, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, item); err != nil {
			return err
		}
		out = append(out, buf.String())
	}
	*d = out
	return nil
}

func (d Descriptions) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(d))
}
