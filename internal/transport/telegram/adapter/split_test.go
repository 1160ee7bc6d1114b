package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShortIsUnchanged(t *testing.T) {
	t.Parallel()
	in := "🌅 Guten Morgen! 🌅\n\nshort"
	got := splitText(in, telegramTextLimit)
	if len(got) != 1 || got[0] != in {
		t.Fatalf("splitText = %q, want single unchanged chunk", got)
	}
}

func TestSplitTextPrefersNewline(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("a", 30)
	in := strings.Repeat(line+"\n", 10) // 310 runes
	got := splitText(in, 100)
	if len(got) < 4 {
		t.Fatalf("got %d chunks, want >= 4", len(got))
	}
	for i, c := range got {
		if n := utf8.RuneCountInString(c); n > 100 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d has edge newline: %q", i, c)
		}
		for _, l := range strings.Split(c, "\n") {
			if l != line {
				t.Fatalf("chunk %d split inside a line: %q", i, l)
			}
		}
	}
}

func TestSplitTextHardCutCountsRunes(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("🧘", 250)
	got := splitText(in, 100)
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	if strings.Join(got, "") != in {
		t.Fatal("chunks do not reassemble to the input")
	}
}
