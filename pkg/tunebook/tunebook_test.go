package tunebook

import (
	"strings"
	"testing"

	"github.com/yleoer/tunebook/pkg/normalizer"
)

func newTestSegmenter() *Segmenter {
	return NewSegmenter(normalizer.NewABCNormalizer(normalizer.DefaultOptions(), nil), nil)
}

// splitReattach 是按 "\nX:" 切分再补回 X: 的做法，用来对照单次扫描的结果
func splitReattach(text string) []string {
	parts := strings.Split(text, "\nX:")
	for i := 1; i < len(parts); i++ {
		parts[i] = "X:" + parts[i]
	}
	return parts
}

func TestSegmentTwoTunes(t *testing.T) {
	book := newTestSegmenter().SegmentDocument("X:1\nT:A\n\nX:2\nT:B\n")
	// 空行的第一个换行留在上一段末尾，第二个换行被表头分隔符吃掉
	want := []Tune{
		{Text: "X:1\nT:A\n", StartOffset: 0},
		{Text: "X:2\nT:B", StartOffset: 8},
	}
	if book.Len() != len(want) {
		t.Fatalf("got %d tunes, want %d: %+v", book.Len(), len(want), book.Tunes)
	}
	for i, w := range want {
		if book.Tunes[i] != w {
			t.Errorf("tune %d = %+v, want %+v", i, book.Tunes[i], w)
		}
	}
	if book.Directives != "" {
		t.Errorf("unexpected directives %q", book.Directives)
	}
}

// 偏移按字符计，多字节字符只算一个
func TestSegmentOffsetsCountCharacters(t *testing.T) {
	book := NewSegmenter(nil, nil).Segment("X:1\nT:Éire\n\nX:2\nT:B")
	if book.Len() != 2 {
		t.Fatalf("got %d tunes, want 2", book.Len())
	}
	if got := book.Tunes[1].StartOffset; got != 11 {
		t.Errorf("tune 1 offset = %d, want 11", got)
	}
	book = NewSegmenter(nil, nil).Segment("X:1\nT:鳳陽花鼓\nX:2\nT:B")
	if got := book.Tunes[1].StartOffset; got != 10 {
		t.Errorf("tune 1 offset = %d, want 10", got)
	}
}

func TestSegmentKeepsTrailingNewlineWithoutNormalizer(t *testing.T) {
	book := NewSegmenter(nil, nil).Segment("X:1\nT:A\n\nX:2\nT:B\n")
	if got := book.Tunes[1].Text; got != "X:2\nT:B\n" {
		t.Errorf("tune 1 text = %q", got)
	}
}

func TestSegmentDirectivePropagation(t *testing.T) {
	book := NewSegmenter(nil, nil).Segment("%%MIDI program 1\n\nX:1\nT:Test\n\nX:2\nT:Two\n")
	if book.Len() != 2 {
		t.Fatalf("got %d tunes, want 2", book.Len())
	}
	for i, tune := range book.Tunes {
		if !strings.HasPrefix(tune.Text, "%%MIDI program 1\n") {
			t.Errorf("tune %d does not start with directive: %q", i, tune.Text)
		}
	}
	if book.Directives != "%%MIDI program 1\n" {
		t.Errorf("Directives = %q", book.Directives)
	}
	if book.Tunes[0].Text != "%%MIDI program 1\nX:1\nT:Test\n" {
		t.Errorf("tune 0 text = %q", book.Tunes[0].Text)
	}
}

func TestSegmentIntertuneDropsNonDirectiveLines(t *testing.T) {
	text := "Some book title\n%%scale 0.8\nprose here\n%%pagewidth 21cm\nX:1\nT:A"
	book := NewSegmenter(nil, nil).Segment(text)
	if book.Len() != 1 {
		t.Fatalf("got %d tunes, want 1", book.Len())
	}
	want := "%%scale 0.8\n%%pagewidth 21cm\nX:1\nT:A"
	if book.Tunes[0].Text != want {
		t.Errorf("text = %q, want %q", book.Tunes[0].Text, want)
	}
	// 偏移量按原始段长度累计，不含注入的指令
	if got, want := book.Tunes[0].StartOffset, strings.Index(text, "\nX:"); got != want {
		t.Errorf("StartOffset = %d, want %d", got, want)
	}
}

func TestSegmentIntertuneProseBetweenTunesDropped(t *testing.T) {
	book := NewSegmenter(nil, nil).Segment("X:1\nT:A\n\nprose about the next tune\nX:2\nT:B")
	if book.Len() != 2 {
		t.Fatalf("got %d tunes", book.Len())
	}
	if book.Tunes[0].Text != "X:1\nT:A" {
		t.Errorf("tune 0 text = %q", book.Tunes[0].Text)
	}
}

func TestSegmentTrailingProseTruncated(t *testing.T) {
	book := NewSegmenter(nil, nil).Segment("X:1\nT:A\nK:D\nabc|\n\nSome trailing prose")
	if book.Len() != 1 {
		t.Fatalf("got %d tunes", book.Len())
	}
	if strings.Contains(book.Tunes[0].Text, "Some trailing prose") {
		t.Errorf("trailing prose kept: %q", book.Tunes[0].Text)
	}
	if book.Tunes[0].Text != "X:1\nT:A\nK:D\nabc|" {
		t.Errorf("text = %q", book.Tunes[0].Text)
	}
}

func TestSegmentTruncatesAtFirstBlankLineEvenInAnnotations(t *testing.T) {
	book := NewSegmenter(nil, nil).Segment("X:1\nT:A\nN:note one\n\nN:note two\nK:G\nabc")
	if book.Tunes[0].Text != "X:1\nT:A\nN:note one" {
		t.Errorf("text = %q", book.Tunes[0].Text)
	}
}

func TestSegmentLeadingBlankLineNotTruncated(t *testing.T) {
	// 位置 0 的空行不截断
	book := NewSegmenter(nil, nil).Segment("\n\nT:A")
	if book.Tunes[0].Text != "\n\nT:A" {
		t.Errorf("text = %q", book.Tunes[0].Text)
	}
}

func TestSegmentNoHeader(t *testing.T) {
	book := newTestSegmenter().SegmentDocument("  T:Untitled\nK:C\nCDEF|\n  ")
	if book.Len() != 1 {
		t.Fatalf("got %d tunes, want 1", book.Len())
	}
	if book.Tunes[0].Text != "T:Untitled\nK:C\nCDEF|" || book.Tunes[0].StartOffset != 0 {
		t.Errorf("tune = %+v", book.Tunes[0])
	}
}

func TestSegmentSingleFragmentWithDirectivesIsKept(t *testing.T) {
	book := NewSegmenter(nil, nil).Segment("%%scale 0.8\nT:Untitled")
	if book.Len() != 1 || book.Directives != "" {
		t.Fatalf("book = %+v", book)
	}
	if book.Tunes[0].Text != "%%scale 0.8\nT:Untitled" {
		t.Errorf("text = %q", book.Tunes[0].Text)
	}
}

func TestSegmentEmpty(t *testing.T) {
	book := newTestSegmenter().SegmentDocument("")
	if book.Len() != 1 || book.Tunes[0] != (Tune{}) {
		t.Fatalf("book = %+v", book.Tunes)
	}
}

func TestSegmentLeadingDelimiter(t *testing.T) {
	book := NewSegmenter(nil, nil).Segment("\nX:1\nT:A")
	if book.Len() != 1 {
		t.Fatalf("got %d tunes", book.Len())
	}
	if book.Tunes[0].Text != "X:1\nT:A" || book.Tunes[0].StartOffset != 0 {
		t.Errorf("tune = %+v", book.Tunes[0])
	}
}

func TestSegmentHeaderCountMatchesTuneCount(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"preamble", "%%abc\nX:1\nT:A\nX:2\nT:B\nX:3\nT:C"},
		{"prose preamble", "My tunes\n\nX:1\nT:A\n\nX:2\nT:B"},
		{"empty preamble", "\nX:1\nT:A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := strings.Count(tt.text, headerDelimiter)
			if got := NewSegmenter(nil, nil).Segment(tt.text).Len(); got != k {
				t.Errorf("got %d tunes for %d headers", got, k)
			}
		})
	}
}

func TestSegmentMatchesSplitReattach(t *testing.T) {
	docs := []string{
		"",
		"X:1",
		"X:1\nT:A\n\nX:2\nT:B\n",
		"intro\nX:1\nX:2\nX:3",
		"\nX:\nX:\n\nX:",
		"X:1\nT:with X: inline\nK:C\n",
		"a\nXX:1\nX:2",
	}
	for _, doc := range docs {
		got := splitFragments(doc)
		want := splitReattach(doc)
		if len(got) != len(want) {
			t.Errorf("%q: got %d fragments, want %d", doc, len(got), len(want))
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%q: fragment %d = %q, want %q", doc, i, got[i], want[i])
			}
		}
	}
}

func TestSegmentOffsetsNonDecreasing(t *testing.T) {
	text := "%%MIDI program 1\nintro\nX:1\nT:A\n\nX:2\nT:B\n\nnotes\nX:3\n"
	book := NewSegmenter(nil, nil).Segment(text)
	prev := -1
	for i, tune := range book.Tunes {
		if tune.StartOffset < prev {
			t.Errorf("tune %d offset %d < previous %d", i, tune.StartOffset, prev)
		}
		if tune.StartOffset > len(text) {
			t.Errorf("tune %d offset %d beyond document length %d", i, tune.StartOffset, len(text))
		}
		prev = tune.StartOffset
	}
}

func TestSegmentIdempotentOnRejoinedTunes(t *testing.T) {
	seg := NewSegmenter(nil, nil)
	first := seg.Segment("X:1\nT:A\nK:G\nGABc|\n\nX:2\nT:B\nK:D\ndefg|")
	joined := first.Tunes[0].Text + headerDelimiter + strings.TrimPrefix(first.Tunes[1].Text, headerMarker)
	again := seg.Segment(joined)
	if again.Len() != first.Len() {
		t.Fatalf("got %d tunes, want %d", again.Len(), first.Len())
	}
	for i := range first.Tunes {
		if again.Tunes[i].Text != first.Tunes[i].Text {
			t.Errorf("tune %d = %q, want %q", i, again.Tunes[i].Text, first.Tunes[i].Text)
		}
	}
}

func TestBookTuneText(t *testing.T) {
	book := NewSegmenter(nil, nil).Segment("X:1\nT:A")
	if text, ok := book.TuneText(0); !ok || text != "X:1\nT:A" {
		t.Errorf("TuneText(0) = %q, %v", text, ok)
	}
	if _, ok := book.TuneText(1); ok {
		t.Error("TuneText(1) should not exist")
	}
	if _, ok := book.TuneText(-1); ok {
		t.Error("TuneText(-1) should not exist")
	}
	var nilBook *Book
	if nilBook.Len() != 0 {
		t.Error("nil book should be empty")
	}
}

func TestEstimateTuneCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 1},
		{"X:1\nT:A", 1},
		{"X:1\nT:A\n\nX:2\nT:B\n\nX:3\nT:C", 3},
		{"%%MIDI program 1\n\nX:1\nT:A\n\nX:2\nT:B\n\nX:3\nT:C", 4},
	}
	for _, tt := range tests {
		if got := EstimateTuneCount(tt.text); got != tt.want {
			t.Errorf("EstimateTuneCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestEstimateTuneCountThreeHeaders(t *testing.T) {
	text := "%%scale 0.7\nintro text\nX:1\nT:A\nX:2\nT:B\nX:3\nT:C"
	// 三个 "\nX:" 表头：估算 4，实际拆分 3
	doc := "X:0\n" + text
	if got := EstimateTuneCount("X:1\nT:A\nX:2\nT:B\nX:3\nT:C"); got != 3 {
		t.Errorf("EstimateTuneCount = %d, want 3", got)
	}
	if est, actual := EstimateTuneCount(text), NewSegmenter(nil, nil).Segment(text).Len(); est != actual+1 {
		t.Errorf("estimate %d, actual %d: expected estimate to exceed by one with a preamble", est, actual)
	}
	if est, actual := EstimateTuneCount(doc), NewSegmenter(nil, nil).Segment(doc).Len(); est != actual {
		t.Errorf("estimate %d, actual %d", est, actual)
	}
}

func FuzzSegment(f *testing.F) {
	f.Add("X:1\nT:A\n\nX:2\nT:B\n")
	f.Add("%%MIDI program 1\n\nX:1\nT:Test\n\nX:2\nT:Two\n")
	f.Add("\n\n\nX:")
	f.Add("")
	seg := NewSegmenter(nil, nil)
	f.Fuzz(func(t *testing.T, text string) {
		book := seg.Segment(text)
		if book.Len() < 1 {
			t.Fatalf("no tunes for %q", text)
		}
		prev := 0
		for _, tune := range book.Tunes {
			if tune.StartOffset < prev || tune.StartOffset > len(text) {
				t.Fatalf("bad offset %d for %q", tune.StartOffset, text)
			}
			prev = tune.StartOffset
			if !strings.HasPrefix(tune.Text, book.Directives) {
				t.Fatalf("tune missing directives: %q", tune.Text)
			}
		}
		if EstimateTuneCount(text) < book.Len() {
			t.Fatalf("estimate below actual for %q", text)
		}
	})
}
