package serp

import (
	"reflect"
	"testing"
)

func TestClean(t *testing.T) {
	in := []string{
		"HTTPS://Example.COM:443/a/../b#frag",
		"https://example.com/b",
		"u1",
		"javascript:void(0)",
		"mailto:a@b.com",
		"https://duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.org%2Fddg&rut=abc",
		"https://www.google.com/url?q=https://example.org/g&sa=U",
		"https://www.bing.com/ck/a?!&&p=x&u=a1aHR0cHM6Ly9leGFtcGxlLmNvbS9iaW5n&ntb=1",
		"https://r.search.yahoo.com/_ylt=A/RV=2/RE=1/RO=10/RU=https%3a%2f%2fexample.net%2fy/RK=2/RS=z-",
	}
	got := Clean(in, 0)
	want := []string{
		"https://example.com/b",
		"https://example.org/ddg",
		"https://example.org/g",
		"https://example.com/bing",
		"https://example.net/y",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Clean() = %v, want %v", got, want)
	}
}

func TestCleanTruncatesInRankOrder(t *testing.T) {
	in := []string{"https://a.test/1", "https://a.test/1", "https://a.test/2", "https://a.test/3"}
	got := Clean(in, 2)
	want := []string{"https://a.test/1", "https://a.test/2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Clean() = %v, want %v", got, want)
	}
}
