// Package exchange reads and writes the JSON documents users move in and
// out of the tracker: full exports, imports, and date-range reports.
package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmynk/gasbottle/internal/calculator"
	"github.com/mmynk/gasbottle/internal/models"
)

// Export is the document written by an export.
type Export struct {
	Connections []models.Connection `json:"connections"`
	Settings    models.Settings     `json:"settings"`
	Stats       calculator.Stats    `json:"stats"`
	ExportDate  string              `json:"exportDate"`
}

// ReportPeriod is the date range header of a report export.
type ReportPeriod struct {
	StartDate  string  `json:"startDate"`
	EndDate    string  `json:"endDate"`
	PeriodDays float64 `json:"periodDays"`
}

// ReportExport is the document written by a report export.
type ReportExport struct {
	ReportPeriod ReportPeriod           `json:"reportPeriod"`
	Statistics   calculator.ReportStats `json:"statistics"`
	Connections  []models.Connection    `json:"connections"`
	Settings     models.Settings        `json:"settings"`
	GeneratedAt  string                 `json:"generatedAt"`
}

// MarshalExport renders state and its statistics as an indented export
// document stamped with now.
func MarshalExport(state *models.State, now time.Time) ([]byte, error) {
	conns := append([]models.Connection{}, state.Connections...)
	doc := Export{
		Connections: conns,
		Settings:    state.Settings,
		Stats:       calculator.Calculate(conns, state.Settings),
		ExportDate:  now.UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return data, nil
}

// MarshalReport renders a report as an indented report document.
func MarshalReport(report *calculator.Report, settings models.Settings, now time.Time) ([]byte, error) {
	doc := ReportExport{
		ReportPeriod: ReportPeriod{
			StartDate:  report.StartDate,
			EndDate:    report.EndDate,
			PeriodDays: report.Stats.PeriodDays,
		},
		Statistics:  report.Stats,
		Connections: report.Connections,
		Settings:    settings,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

// Import parses an import document. It needs the connections and settings
// keys; anything else, such as the stats of an export, is ignored.
//
// Unparseable input fails with models.ErrImport. Missing keys or invalid
// values fail with models.ErrValidation.
func Import(data []byte) (*models.State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrImport, err)
	}

	rawConns, ok := present(raw, "connections")
	if !ok {
		return nil, fmt.Errorf("%w: missing connections", models.ErrValidation)
	}
	rawSettings, ok := present(raw, "settings")
	if !ok {
		return nil, fmt.Errorf("%w: missing settings", models.ErrValidation)
	}

	state := &models.State{}
	if err := json.Unmarshal(rawConns, &state.Connections); err != nil {
		return nil, fmt.Errorf("%w: connections: %v", models.ErrImport, err)
	}
	if err := json.Unmarshal(rawSettings, &state.Settings); err != nil {
		return nil, fmt.Errorf("%w: settings: %v", models.ErrImport, err)
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return state, nil
}

// present returns the value of key, treating an explicit null as absent.
func present(raw map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := raw[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}
