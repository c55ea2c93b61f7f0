package services

import (
	"strings"
	"testing"
)

func TestStripHTML(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "hello world", want: "hello world"},
		{name: "tags", in: "<p>hello <b>world</b></p>", want: "hello world"},
		{name: "script_dropped", in: "<p>before</p><script>var x = 1;</script><p>after</p>", want: "before after"},
		{name: "style_dropped", in: "<style>body { color: red }</style>text", want: "text"},
		{name: "whitespace_collapsed", in: "<div>\n  a\n\n  b\t</div>", want: "a b"},
		{name: "case_insensitive_script", in: "<SCRIPT>alert(1)</SCRIPT>kept", want: "kept"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripHTML(tc.in); got != tc.want {
				t.Fatalf("want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestSplitPagesShortTextSinglePage(t *testing.T) {
	pages := SplitPages("just one paragraph", 100)
	if len(pages) != 1 || pages[0] != "just one paragraph" {
		t.Fatalf("pages: %v", pages)
	}
}

func TestSplitPagesEmpty(t *testing.T) {
	if pages := SplitPages("  \n ", 100); pages != nil {
		t.Fatalf("expected nil, got %v", pages)
	}
}

func TestSplitPagesPrefersParagraphBoundaries(t *testing.T) {
	text := "first paragraph here\n\nsecond paragraph here\n\nthird paragraph here"
	pages := SplitPages(text, 45)
	if len(pages) != 2 {
		t.Fatalf("pages: %v", pages)
	}
	if !strings.Contains(pages[0], "first") || !strings.Contains(pages[0], "second") {
		t.Fatalf("page 1 should pack two paragraphs: %q", pages[0])
	}
	if pages[1] != "third paragraph here" {
		t.Fatalf("page 2: %q", pages[1])
	}
}

func TestSplitPagesHardSplitsOversizedParagraph(t *testing.T) {
	text := strings.Repeat("x", 25)
	pages := SplitPages(text, 10)
	if len(pages) != 3 {
		t.Fatalf("pages: %v", pages)
	}
	for i, p := range pages[:2] {
		if len(p) != 10 {
			t.Fatalf("page %d length: %d", i+1, len(p))
		}
	}
	if len(pages[2]) != 5 {
		t.Fatalf("tail length: %d", len(pages[2]))
	}
}

func TestSplitPagesReassemblesInOrder(t *testing.T) {
	text := "alpha beta\n\ngamma delta\n\nepsilon zeta"
	pages := SplitPages(text, 12)
	joined := strings.Join(pages, " ")
	for _, word := range []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"} {
		if !strings.Contains(joined, word) {
			t.Fatalf("missing %q in %v", word, pages)
		}
	}
	if strings.Index(joined, "alpha") > strings.Index(joined, "zeta") {
		t.Fatalf("order lost: %v", pages)
	}
}
