package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func TestSummaryCounters(t *testing.T) {
	s := NewSummary("run-1", "cats", "async")
	s.Providers["html-bing"] = 2
	s.Providers["html-ask"] = 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddPage(i%5 == 0)
			s.AddDetail("link")
			if i == 0 {
				s.AddDetail("error")
				s.AddPersistFailure()
			}
		}(i)
	}
	wg.Wait()
	s.Finish()

	if s.PagesScraped != 10 || s.PagesFailed != 2 {
		t.Errorf("pages = %d/%d, want 10/2", s.PagesScraped, s.PagesFailed)
	}
	if s.DetailsByKind["link"] != 10 || s.TotalDetails() != 11 {
		t.Errorf("details = %v", s.DetailsByKind)
	}
	if s.PersistFailures != 1 {
		t.Errorf("expected 1 persist failure, got %d", s.PersistFailures)
	}
	if names := s.ProviderNames(); names[0] != "html-ask" || names[1] != "html-bing" {
		t.Errorf("ProviderNames() = %v", names)
	}
	if s.EndTime.Before(s.StartTime) {
		t.Error("end before start")
	}
}

func TestWriteJSON(t *testing.T) {
	s := NewSummary("run-1", "cats", "sync")
	s.LinksPersisted = 5
	var buf bytes.Buffer
	if err := WriteJSON(&buf, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["LinksPersisted"] != float64(5) || decoded["RunID"] != "run-1" {
		t.Errorf("unexpected json: %s", buf.String())
	}
}

func TestWriteText(t *testing.T) {
	s := NewSummary("run-1", "cats", "sync")
	s.Providers["p1"] = 2
	s.Providers["p2"] = 0
	s.LinksPersisted = 2
	s.AddPage(false)
	s.AddPage(true)
	s.AddDetail("error")
	s.Finish()

	var buf bytes.Buffer
	if err := WriteText(&buf, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Harvest Run Summary",
		"Query:         cats (sync)",
		"p1: 2 links",
		"p2: 0 links",
		"Links stored:  2",
		"Pages:         2 scraped, 1 failed",
		"error: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Skipped rows") {
		t.Error("skipped rows shown without failures")
	}
}
