// Package report renders run summaries.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/quarry/internal/pipeline"
	"github.com/FranksOps/quarry/internal/serp"
	"github.com/FranksOps/quarry/internal/storage"
)

// Format selects the summary rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat accepts "text" (also the empty string) and "json".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Summary contains aggregated figures about a retrieval run or an archive
// selection.
type Summary struct {
	RunID       string         `json:"run_id,omitempty"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Duration    time.Duration  `json:"duration_ns"`
	QueriesRead int            `json:"queries_read"`
	Queries     int            `json:"queries"`
	Empty       int            `json:"empty"`
	Duplicates  int            `json:"duplicates"`
	NoResults   int            `json:"no_results"`
	Failed      int            `json:"failed"`
	Attempts    int            `json:"attempts"`
	Records     int            `json:"records"`
	Languages   map[string]int `json:"languages"`
	ResultsFile string         `json:"results_file,omitempty"`
	FailedFile  string         `json:"failed_file,omitempty"`
}

// FromStats summarises a finished run.
func FromStats(s pipeline.Stats) Summary {
	langs := make(map[string]int, len(s.Languages))
	for k, v := range s.Languages {
		langs[k] = v
	}
	return Summary{
		RunID:       s.RunID,
		StartTime:   s.Started,
		EndTime:     s.Finished,
		Duration:    s.Finished.Sub(s.Started),
		QueriesRead: s.Read,
		Queries:     s.Accepted,
		Empty:       s.Empty,
		Duplicates:  s.Duplicates,
		NoResults:   s.NoResults,
		Failed:      s.Failed,
		Attempts:    s.Attempts,
		Records:     s.Records,
		Languages:   langs,
	}
}

// FromRecords summarises archived records. RunID is set only when every
// record belongs to the same run.
func FromRecords(records []*storage.Record) Summary {
	s := Summary{Languages: make(map[string]int)}
	if len(records) == 0 {
		return s
	}

	s.RunID = records[0].RunID
	s.StartTime = records[0].CreatedAt
	s.EndTime = records[0].CreatedAt
	queries := make(map[string]struct{})

	for _, r := range records {
		s.Records++
		queries[r.Query] = struct{}{}
		if r.Language != "" {
			s.Languages[r.Language]++
		}
		if r.RunID != s.RunID {
			s.RunID = ""
		}
		if r.CreatedAt.Before(s.StartTime) {
			s.StartTime = r.CreatedAt
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}
	}

	s.Queries = len(queries)
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// FromResults summarises a results table, as classified by the detect
// command.
func FromResults(results []serp.Result) Summary {
	s := Summary{Languages: make(map[string]int)}
	queries := make(map[string]struct{})
	for _, r := range results {
		s.Records++
		queries[r.Query] = struct{}{}
		if r.Language != "" {
			s.Languages[r.Language]++
		}
	}
	s.Queries = len(queries)
	return s
}

// Write renders summary in the given format.
func Write(w io.Writer, f Format, summary Summary) error {
	if f == FormatJSON {
		return WriteJSON(w, summary)
	}
	return WriteText(w, summary)
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

var textReport = template.Must(template.New("textReport").Parse(`Quarry Run Summary
------------------
{{- if .RunID}}
Run:           {{.RunID}}
{{- end}}
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
{{- if .QueriesRead}}
Queries read:  {{.QueriesRead}} ({{.Empty}} empty, {{.Duplicates}} duplicate)
{{- end}}
Queries:       {{.Queries}}
{{- if .Attempts}}
Attempts:      {{.Attempts}}
No results:    {{.NoResults}}
Failed:        {{.Failed}}
{{- end}}
Records:       {{.Records}}

Languages:
{{- range $lang, $count := .Languages}}
  {{$lang}}: {{$count}}
{{- else}}
  None
{{- end}}
{{- if .ResultsFile}}

Results:       {{.ResultsFile}}
{{- end}}
{{- if .FailedFile}}
Failed list:   {{.FailedFile}}
{{- end}}
`))

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	if err := textReport.Execute(w, summary); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	return nil
}
