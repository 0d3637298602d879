package extract

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/FranksOps/harvest/internal/schedule"
)

func extract(t *testing.T, kind Kind, rawURL, body string, mode schedule.Mode) []string {
	t.Helper()
	e, err := New(kind, mustPage(t, rawURL, body), Options{})
	if err != nil {
		t.Fatalf("New(%s): %v", kind, err)
	}
	got, err := e.Extract(context.Background(), mode)
	if err != nil {
		t.Fatalf("Extract(%s): %v", kind, err)
	}
	return got
}

func TestLinks_RelativeResolution(t *testing.T) {
	body := `<html><body><a href="/x">x</a></body></html>`
	for _, mode := range []schedule.Mode{schedule.Sync, schedule.Async} {
		first := extract(t, Links, "https://a.test/", body, mode)
		if !reflect.DeepEqual(first, []string{"https://a.test/x"}) {
			t.Errorf("%s: expected [https://a.test/x], got %v", mode, first)
		}
		again := extract(t, Links, "https://a.test/", body, mode)
		if !reflect.DeepEqual(first, again) {
			t.Errorf("%s: extraction not idempotent: %v vs %v", mode, first, again)
		}
	}
}

func TestLinks_SkipsNonWebReferences(t *testing.T) {
	body := `<a href="#top">t</a><a href="javascript:void(0)">j</a><a href="mailto:a@b.com">m</a><a href="page#frag">p</a>`
	got := extract(t, Links, "https://a.test/base/", body, schedule.Sync)
	if !reflect.DeepEqual(got, []string{"https://a.test/base/page"}) {
		t.Errorf("unexpected links: %v", got)
	}
}

func TestLinks_BaseHref(t *testing.T) {
	body := `<html><head><base href="https://cdn.test/root/"></head><body><a href="y">y</a></body></html>`
	got := extract(t, Links, "https://a.test/", body, schedule.Sync)
	if !reflect.DeepEqual(got, []string{"https://cdn.test/root/y"}) {
		t.Errorf("expected base href resolution, got %v", got)
	}
}

func TestEmail_Dedup(t *testing.T) {
	got := extract(t, Email, "https://a.test/", `<p>contact a@b.com or a@b.com</p>`, schedule.Async)
	if !reflect.DeepEqual(got, []string{"a@b.com"}) {
		t.Errorf("expected [a@b.com], got %v", got)
	}
	got = extract(t, Email, "https://a.test/", `<p>contact a@b.com or a@b.com</p>`, schedule.Sync)
	if !reflect.DeepEqual(got, []string{"a@b.com"}) {
		t.Errorf("expected [a@b.com], got %v", got)
	}
}

func TestEmail_IgnoresScripts(t *testing.T) {
	body := `<body><script>var x = "hidden@script.io";</script><a href="mailto:Sales@Shop.example?subject=hi">write</a></body>`
	got := extract(t, Email, "https://a.test/", body, schedule.Sync)
	if !reflect.DeepEqual(got, []string{"Sales@Shop.example"}) {
		t.Errorf("expected mailto fallback only, got %v", got)
	}
}

func TestEmail_SplitByInlineMarkup(t *testing.T) {
	body := `<div><p>mail <b>info</b>@shop.com today</p><p>sales</p><p>@other.com</p></div>`
	got := extract(t, Email, "https://a.test/", body, schedule.Sync)
	if !reflect.DeepEqual(got, []string{"info@shop.com"}) {
		t.Errorf("expected [info@shop.com], got %v", got)
	}
}

func TestText_ExcludesScriptAndStyle(t *testing.T) {
	body := `<html><head><title>T</title><style>.a{}</style></head><body><h1>Hello</h1>
		<script>alert(1)</script><p>  world   again </p></body></html>`
	got := extract(t, Text, "https://a.test/", body, schedule.Sync)
	if len(got) != 1 {
		t.Fatalf("expected one text value, got %v", got)
	}
	if got[0] != "T Hello world again" {
		t.Errorf("unexpected text %q", got[0])
	}
	if strings.Contains(got[0], "alert") || strings.Contains(got[0], ".a{}") {
		t.Errorf("script/style leaked into text: %q", got[0])
	}
}

func TestPhone(t *testing.T) {
	body := `<p>Call +39 06 123 4567 or 555-1234. Order 12345678901234567890.</p>`
	got := extract(t, Phone, "https://a.test/", body, schedule.Sync)
	if len(got) == 0 || got[0] != "+39 06 123 4567" {
		t.Errorf("expected +39 06 123 4567 first, got %v", got)
	}
	for _, v := range got {
		if n := countDigits(v); n < 8 || n > 13 {
			t.Errorf("phone %q has %d digits", v, n)
		}
	}

	tests := []struct {
		body string
		want []string
	}{
		{`<p>call 12345678 now</p>`, []string{"12345678"}},
		{`<p>call 123456789 now</p>`, []string{"123456789"}},
		{`<p>call +1234567890123 now</p>`, []string{"+1234567890123"}},
		{`<p>office (06) 1234.5678</p>`, []string{"1234.5678"}},
		{`<p>ring <span>+39</span> 06 555 0100</p>`, []string{"+39 06 555 0100"}},
		{`<p>only 1234567 here</p>`, nil},
	}
	for _, tt := range tests {
		got := extract(t, Phone, "https://a.test/", tt.body, schedule.Sync)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.body, got, tt.want)
		}
	}

	got = extract(t, Phone, "https://a.test/", `<a href="tel:+1-202-555-0100">call</a>`, schedule.Sync)
	if !reflect.DeepEqual(got, []string{"+1-202-555-0100"}) {
		t.Errorf("expected tel fallback, got %v", got)
	}
}

func TestVideo(t *testing.T) {
	body := `<body>
		<video src="/clip.mp4"></video>
		<video><source src="https://media.test/b.webm"></video>
		<iframe src="https://www.youtube.com/embed/abc"></iframe>
		<iframe src="https://ads.test/frame"></iframe>
		<a href="/movies/c.MOV">c</a>
		<a href="/page.html">not video</a>
	</body>`
	got := extract(t, Video, "https://a.test/", body, schedule.Sync)
	want := []string{
		"https://a.test/clip.mp4",
		"https://media.test/b.webm",
		"https://www.youtube.com/embed/abc",
		"https://a.test/movies/c.MOV",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	meta := `<html><head><meta property="og:video" content="https://v.test/x.mp4"></head><body></body></html>`
	got = extract(t, Video, "https://a.test/", meta, schedule.Sync)
	if !reflect.DeepEqual(got, []string{"https://v.test/x.mp4"}) {
		t.Errorf("expected og:video fallback, got %v", got)
	}
}

func TestDocuments(t *testing.T) {
	body := `<a href="docs/a.PDF">a</a><a href="/b.xlsx?dl=1">b</a><a href="/c.html">c</a><a href="/a.zip">z</a>`
	got := extract(t, Documents, "https://a.test/x/", body, schedule.Sync)
	want := []string{"https://a.test/x/docs/a.PDF", "https://a.test/b.xlsx?dl=1", "https://a.test/a.zip"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	got = extract(t, Documents, "https://a.test/", `<embed src="/manual.pdf">`, schedule.Sync)
	if !reflect.DeepEqual(got, []string{"https://a.test/manual.pdf"}) {
		t.Errorf("expected embedded fallback, got %v", got)
	}
}

func TestImages_SrcsetFallback(t *testing.T) {
	body := `<picture><source srcset="/a-1x.webp 1x, /a-2x.webp 2x"></picture>`
	got := extract(t, Images, "https://a.test/", body, schedule.Sync)
	want := []string{"https://a.test/a-1x.webp", "https://a.test/a-2x.webp"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseKinds(t *testing.T) {
	got, err := ParseKinds("testo, links,immagini,links")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []Kind{Text, Links, Images}) {
		t.Errorf("got %v", got)
	}

	all, err := ParseKinds("ALL")
	if err != nil || len(all) != len(All) {
		t.Errorf("expected every kind, got %v, %v", all, err)
	}

	if _, err := ParseKinds("text,audio"); err == nil {
		t.Errorf("expected error for unknown kind")
	}
	if _, err := ParseKinds(" , "); err == nil {
		t.Errorf("expected error for empty list")
	}
}
