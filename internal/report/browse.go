package report

import (
	"encoding/csv"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/FranksOps/harvest/internal/storage"
)

// Feature is one stored detail under a link.
type Feature struct {
	Kind      string
	Value     string
	CreatedAt time.Time
}

// LinkGroup is one link with its details in insertion order.
type LinkGroup struct {
	ID       storage.LinkID
	URL      string
	Features []Feature
}

// ProviderGroup holds the links first found by one provider.
type ProviderGroup struct {
	Provider string
	Links    []*LinkGroup
}

// QueryGroup holds every provider that returned links for a query.
type QueryGroup struct {
	Query     string
	Providers []*ProviderGroup
}

// Group nests browse rows as query -> provider -> link -> feature,
// keeping the order in which each group first appears.
func Group(rows []storage.BrowseRow) []*QueryGroup {
	var (
		out       []*QueryGroup
		queries   = map[string]*QueryGroup{}
		providers = map[[2]string]*ProviderGroup{}
		links     = map[storage.LinkID]*LinkGroup{}
	)
	for _, r := range rows {
		q, ok := queries[r.Link.Query]
		if !ok {
			q = &QueryGroup{Query: r.Link.Query}
			queries[r.Link.Query] = q
			out = append(out, q)
		}
		pk := [2]string{r.Link.Query, r.Link.Provider}
		p, ok := providers[pk]
		if !ok {
			p = &ProviderGroup{Provider: r.Link.Provider}
			providers[pk] = p
			q.Providers = append(q.Providers, p)
		}
		l, ok := links[r.Link.ID]
		if !ok {
			l = &LinkGroup{ID: r.Link.ID, URL: r.Link.URL}
			links[r.Link.ID] = l
			p.Links = append(p.Links, l)
		}
		if r.HasDetail {
			l.Features = append(l.Features, Feature{
				Kind:      r.Detail.Kind,
				Value:     r.Detail.Value,
				CreatedAt: r.Detail.CreatedAt,
			})
		}
	}
	return out
}

// Shorten collapses whitespace and cuts s to n runes, marking the cut.
func Shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

var funcs = map[string]any{"shorten": Shorten}

// WriteBrowseText renders groups as an indented outline. Values longer
// than width runes are shortened; width <= 0 prints them in full.
func WriteBrowseText(w io.Writer, groups []*QueryGroup, width int) error {
	const browseTmpl = `{{- range .Groups}}
Query: {{.Query}}
{{- range .Providers}}
  Provider: {{.Provider}}
{{- range .Links}}
    [{{.ID}}] {{.URL}}
{{- range .Features}}
      {{.Kind}}: {{shorten .Value $.Width}}
{{- else}}
      (not processed)
{{- end}}
{{- end}}
{{- end}}
{{- else}}
No stored results.
{{- end}}
`
	t, err := template.New("browseText").Funcs(funcs).Parse(browseTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	data := struct {
		Groups []*QueryGroup
		Width  int
	}{groups, width}
	if err := t.Execute(w, data); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// WriteBrowseHTML renders groups as a standalone HTML page. Stored values
// come from arbitrary pages and are escaped.
func WriteBrowseHTML(w io.Writer, groups []*QueryGroup) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Harvest Results</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  h3 { margin-bottom: 4px; }
  .link { margin: 8px 0 8px 20px; }
  .kind { font-weight: bold; }
  pre { white-space: pre-wrap; background: #f4f4f4; padding: 8px; border-radius: 5px; }
  .empty { color: #999; }
</style>
</head>
<body>
  <h1>Harvest Results</h1>
  {{- range .}}
  <h2>{{.Query}}</h2>
  {{- range .Providers}}
  <h3>{{.Provider}}</h3>
  {{- range .Links}}
  <div class="link">
    <a href="{{.URL}}">{{.URL}}</a>
    {{- range .Features}}
    <details><summary><span class="kind">{{.Kind}}</span> {{shorten .Value 80}}</summary><pre>{{.Value}}</pre></details>
    {{- else}}
    <div class="empty">not processed</div>
    {{- end}}
  </div>
  {{- end}}
  {{- end}}
  {{- else}}
  <p class="empty">No stored results.</p>
  {{- end}}
</body>
</html>
`
	t, err := htmltemplate.New("browseHTML").Funcs(funcs).Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := t.Execute(w, groups); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

var csvHeaders = []string{"query", "provider", "link_id", "url", "kind", "value", "detail_created_at"}

// WriteBrowseCSV writes one record per browse row, in row order.
func WriteBrowseCSV(w io.Writer, rows []storage.BrowseRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Link.Query,
			r.Link.Provider,
			strconv.FormatInt(int64(r.Link.ID), 10),
			r.Link.URL,
			"", "", "",
		}
		if r.HasDetail {
			record[4] = r.Detail.Kind
			record[5] = r.Detail.Value
			record[6] = r.Detail.CreatedAt.Format(time.RFC3339Nano)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
