package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/template"
	"time"
)

// Summary describes one search-and-extract run.
type Summary struct {
	RunID string
	Query string
	Mode  string
	// Providers maps each queried provider to the number of URLs it returned.
	Providers       map[string]int
	LinksPersisted  int
	PagesScraped    int
	PagesFailed     int
	DetailsByKind   map[string]int
	PersistFailures int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration

	mu sync.Mutex
}

// NewSummary starts a summary for runID at the current time.
func NewSummary(runID, query, mode string) *Summary {
	return &Summary{
		RunID:         runID,
		Query:         query,
		Mode:          mode,
		Providers:     make(map[string]int),
		DetailsByKind: make(map[string]int),
		StartTime:     time.Now(),
	}
}

// AddPage counts one scraped page. Safe for concurrent use.
func (s *Summary) AddPage(failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PagesScraped++
	if failed {
		s.PagesFailed++
	}
}

// AddDetail counts one persisted detail of kind. Safe for concurrent use.
func (s *Summary) AddDetail(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DetailsByKind[kind]++
}

// AddPersistFailure counts one row the store rejected. Safe for concurrent use.
func (s *Summary) AddPersistFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PersistFailures++
}

// Finish stamps the end time.
func (s *Summary) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// TotalDetails sums DetailsByKind.
func (s *Summary) TotalDetails() int {
	n := 0
	for _, c := range s.DetailsByKind {
		n += c
	}
	return n
}

// ProviderNames returns the provider tags in sorted order.
func (s *Summary) ProviderNames() []string {
	names := make([]string, 0, len(s.Providers))
	for name := range s.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary *Summary) error {
	const textTmpl = `Harvest Run Summary
-------------------
Run:           {{.RunID}}
Query:         {{.Query}} ({{.Mode}})
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}

Providers:
{{- range .ProviderNames}}
  {{.}}: {{index $.Providers .}} links
{{- else}}
  None
{{- end}}

Links stored:  {{.LinksPersisted}}
Pages:         {{.PagesScraped}} scraped, {{.PagesFailed}} failed
Details:       {{.TotalDetails}}
{{- range $kind, $count := .DetailsByKind}}
  {{$kind}}: {{$count}}
{{- end}}
{{- if .PersistFailures}}
Skipped rows:  {{.PersistFailures}}
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
