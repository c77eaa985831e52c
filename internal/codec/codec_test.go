package codec

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/dgallion1/postpack/internal/doctree"
	"github.com/dgallion1/postpack/internal/media"
	"github.com/google/go-cmp/cmp"
)

// tiptapFixture is an editor document as stored before compaction.
const tiptapFixture = `{
  "type": "doc",
  "content": [
    {"type": "heading", "attrs": {"level": 1, "id": "intro"}, "content": [{"type": "text", "text": "NestJS: A Scalable Node.js Framework"}]},
    {"type": "paragraph", "content": [
      {"type": "text", "text": "NestJS changes "},
      {"type": "text", "marks": [{"type": "bold"}], "text": "backend"},
      {"type": "text", "text": " work. See "},
      {"type": "text", "marks": [{"type": "link", "attrs": {"href": "https://nestjs.com", "target": "_blank"}}, {"type": "italic"}], "text": "the docs"},
      {"type": "hardBreak"},
      {"type": "text", "text": "a < b && c > d"}
    ]},
    {"type": "image", "attrs": {"src": "https://res.cloudinary.com/test/image/upload/v123/test.jpg", "alt": "Test Image", "title": "Test Title", "width": 640}},
    {"type": "youtube", "attrs": {"src": "https://www.youtube.com/watch?v=abc123xyz", "videoId": "abc123xyz", "startTime": 30}},
    {"type": "video-embed", "attrs": {"src": "https://youtu.be/dQw4w9WgXcQ?t=42"}},
    {"type": "codeBlock", "attrs": {"language": "javascript"}, "content": [{"type": "text", "text": "console.log(\"test\");"}]},
    {"type": "bulletList", "content": [
      {"type": "listItem", "content": [{"type": "paragraph", "content": [{"type": "text", "text": "one"}]}]},
      {"type": "listItem", "content": [{"type": "paragraph", "content": [{"type": "text", "text": "two"}]}]}
    ]},
    {"type": "table", "content": [
      {"type": "tableRow", "content": [{"type": "tableHeader", "attrs": {"colspan": 1}, "content": [{"type": "paragraph", "content": [{"type": "text", "text": "k"}]}]}]},
      {"type": "tableRow", "content": [{"type": "tableCell", "content": [{"type": "paragraph"}]}]}
    ]},
    {"type": "callout", "attrs": {"tone": "warning", "nested": {"a": [1, 2.50, null]}}, "content": [{"type": "paragraph", "content": [{"type": "text", "text": "careful"}]}]},
    {"type": "horizontalRule"}
  ]
}`

func mustParse(t *testing.T, s string) *doctree.Node {
	t.Helper()
	n, err := doctree.Parse([]byte(s))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return n
}

func canonical(t *testing.T, n *doctree.Node) string {
	t.Helper()
	b, err := n.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	return string(b)
}

func scenarioDoc() *doctree.Node {
	return doctree.NewDoc(
		doctree.Heading(1, doctree.Text("Title")),
		&doctree.Node{Type: doctree.TypeImage, Attrs: map[string]any{"src": "https://host/demo/image/upload/v1/blog/file.webp"}},
	)
}

func TestEncode_Golden(t *testing.T) {
	got, err := Encode(scenarioDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"v":1,"d":{"t":"d","c":[{"t":"h","a":{"level":1},"c":["Title"]},{"t":"i","q":{"f":"webp","h":"host","id":"blog/file","v":"1"}}]}}`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestScenario_StatsAndDecode(t *testing.T) {
	doc := scenarioDoc()
	stats, err := StatsFor(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.ReductionPercent <= 0 {
		t.Errorf("expected positive reduction percent, got %v", stats.ReductionPercent)
	}

	compact, err := Encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(compact, Context{CloudName: "demo"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	img := out.Content[1]
	if img.Type != doctree.TypeImage {
		t.Fatalf("expected image node, got %q", img.Type)
	}
	src, _ := img.StringAttr("src")
	if !strings.HasPrefix(src, "https://host/demo/image/upload/") {
		t.Errorf("expected src prefix https://host/demo/image/upload/, got %q", src)
	}
	if !strings.HasSuffix(strings.TrimSuffix(src, ".webp"), "blog/file") {
		t.Errorf("expected src to end with blog/file plus extension, got %q", src)
	}
	if !doctree.Equal(doc, out) {
		t.Errorf("round trip mismatch:\nwant %s\ngot  %s", canonical(t, doc), canonical(t, out))
	}
}

func TestRoundTrip_Fixture(t *testing.T) {
	doc := mustParse(t, tiptapFixture)
	var fallbacks []string
	c := New(Config{OnFallback: func(e *ShapeMismatchError) { fallbacks = append(fallbacks, e.NodeType) }})

	compact, stats, err := c.EncodeWithStats(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(fallbacks) != 0 {
		t.Errorf("expected no fallbacks, got %v", fallbacks)
	}
	if stats.Reduction <= 0 {
		t.Errorf("expected positive reduction, got %+v", stats)
	}
	if strings.Contains(compact, "cloudinary") || strings.Contains(compact, "youtube") {
		t.Errorf("expected media urls to be dropped, got %s", compact)
	}

	out, err := c.Decode(compact, Context{CloudName: "test"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id, _ := out.Content[4].StringAttr("videoId"); id != "dQw4w9WgXcQ" {
		t.Errorf("expected derived videoId dQw4w9WgXcQ, got %q", id)
	}
	if diff := cmp.Diff(canonical(t, withVideoIDs(t, doc)), canonical(t, out)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_ImageRebuildsFromContext(t *testing.T) {
	compact := `{"v":1,"d":{"t":"d","c":[{"t":"i","a":{"alt":"x"},"q":{"id":"m"}}]}}`
	out, err := Decode(compact, Context{CloudName: "demo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src, _ := out.Content[0].StringAttr("src")
	if !strings.Contains(src, "demo") || !strings.Contains(src, "m") {
		t.Errorf("expected src to contain cloud and media id, got %q", src)
	}
	if src != "https://res.cloudinary.com/demo/image/upload/m" {
		t.Errorf("unexpected src %q", src)
	}

	out, err = Decode(compact, Context{CloudName: "demo", MediaHost: "img.example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src, _ := out.Content[0].StringAttr("src"); src != "https://img.example.com/demo/image/upload/m" {
		t.Errorf("expected media host override, got %q", src)
	}
}

func TestVideoIDFidelity(t *testing.T) {
	tests := []struct {
		nodeType string
		attrs    string
		wantSrc  string
	}{
		{"video-embed", `{"src":"https://www.youtube.com/watch?v=abc123xyz&t=30s","videoId":"abc123xyz","startTime":30}`, "https://www.youtube.com/watch?v=abc123xyz&t=30s"},
		{"video-embed", `{"src":"https://www.youtube.com/watch?v=abc123xyz"}`, "https://www.youtube.com/watch?v=abc123xyz"},
		{"youtube", `{"src":"https://www.youtube.com/watch?v=abc123xyz"}`, "https://www.youtube.com/watch?v=abc123xyz"},
		{"video-embed", `{"src":"https://youtu.be/abc123xyz?t=42"}`, "https://youtu.be/abc123xyz?t=42"},
		{"youtube", `{"src":"https://youtu.be/abc123xyz"}`, "https://youtu.be/abc123xyz"},
		{"video-embed", `{"src":"https://www.youtube.com/embed/abc123xyz"}`, "https://www.youtube.com/embed/abc123xyz"},
		{"youtube", `{"src":"https://www.youtube.com/embed/abc123xyz?start=5","title":"demo"}`, "https://www.youtube.com/embed/abc123xyz?start=5"},
	}
	for _, tt := range tests {
		t.Run(tt.nodeType+" "+tt.wantSrc, func(t *testing.T) {
			doc := mustParse(t, `{"type":"doc","content":[{"type":"`+tt.nodeType+`","attrs":`+tt.attrs+`}]}`)
			var fallbacks int
			c := New(Config{OnFallback: func(*ShapeMismatchError) { fallbacks++ }})
			compact, err := c.Encode(doc)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if fallbacks != 0 || strings.Contains(compact, "https") {
				t.Fatalf("expected src dropped from compact form, got %s", compact)
			}
			out, err := c.Decode(compact, Context{CloudName: "demo"})
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			v := out.Content[0]
			if v.Type != tt.nodeType {
				t.Errorf("expected type %s, got %s", tt.nodeType, v.Type)
			}
			if id, _ := v.StringAttr("videoId"); id != "abc123xyz" {
				t.Errorf("expected videoId abc123xyz, got %q", id)
			}
			if src, _ := v.StringAttr("src"); src != tt.wantSrc {
				t.Errorf("expected src %s, got %q", tt.wantSrc, src)
			}
			if diff := cmp.Diff(canonical(t, withVideoIDs(t, doc)), canonical(t, out)); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// withVideoIDs returns a copy of doc with videoId filled in on every video
// node that lacks one, which is what decoding a compacted video yields.
func withVideoIDs(t *testing.T, doc *doctree.Node) *doctree.Node {
	t.Helper()
	want := mustParse(t, canonical(t, doc))
	doctree.Walk(want, func(n *doctree.Node) bool {
		if n.Type != doctree.TypeVideoEmbed && n.Type != doctree.TypeYouTube {
			return true
		}
		if _, ok := n.Attrs["videoId"]; ok {
			return true
		}
		src, _ := n.StringAttr("src")
		if ref, err := media.ParseVideoURL(src); err == nil {
			n.Attrs["videoId"] = ref.ID
		}
		return true
	})
	return want
}

func TestForwardCompatibility(t *testing.T) {
	doc := mustParse(t, `{"type":"doc","content":[
		{"type":"mermaid","attrs":{"code":"graph TD;","theme":{"dark":true}},"content":[{"type":"p","text":"x"}]},
		{"type":"~tilde","marks":[{"type":"glow","attrs":{"level":3}}]},
		{"type":"","text":"untyped"}
	]}`)
	compact, err := Encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, lit := range []string{`"t":"~mermaid"`, `"t":"~p"`, `"t":"~~tilde"`, `"t":"~"`} {
		if !strings.Contains(compact, lit) {
			t.Errorf("expected %s in %s", lit, compact)
		}
	}
	out, err := Decode(compact, Context{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, want := canonical(t, out), canonical(t, doc); got != want {
		t.Errorf("expected unknown nodes preserved:\nwant %s\ngot  %s", want, got)
	}
}

func TestDecode_MissingContext(t *testing.T) {
	compact, err := Encode(scenarioDoc())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(compact, Context{})
	var mce *MissingContextError
	if !errors.As(err, &mce) {
		t.Fatalf("expected MissingContextError, got %v", err)
	}
	if mce.NodeType != "image" || mce.Field != "cloudName" {
		t.Errorf("unexpected error fields %+v", mce)
	}
	if out != nil {
		t.Errorf("expected no document, got %+v", out)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "not json"},
		{"array envelope", "[]"},
		{"wrong version", `{"v":2,"d":{"t":"d"}}`},
		{"string version", `{"v":"1","d":{"t":"d"}}`},
		{"missing doc", `{"v":1}`},
		{"extra envelope key", `{"v":1,"d":{"t":"d"},"z":0}`},
		{"unknown code", `{"v":1,"d":{"t":"d","c":[{"t":"zz"}]}}`},
		{"empty code", `{"v":1,"d":{"t":""}}`},
		{"image without id", `{"v":1,"d":{"t":"d","c":[{"t":"i"}]}}`},
		{"image unknown meta", `{"v":1,"d":{"t":"d","c":[{"t":"i","q":{"id":"m","zz":"1"}}]}}`},
		{"video bad form", `{"v":1,"d":{"t":"d","c":[{"t":"v","q":{"id":"abc","f":"?"}}]}}`},
		{"video bad time", `{"v":1,"d":{"t":"d","c":[{"t":"v","q":{"id":"abc","t":"-3"}}]}}`},
		{"video unknown meta", `{"v":1,"d":{"t":"d","c":[{"t":"v","q":{"id":"abc","n":"1"}}]}}`},
		{"meta on identity type", `{"v":1,"d":{"t":"d","c":[{"t":"p","q":{"id":"x"}}]}}`},
		{"numeric node", `{"v":1,"d":{"t":"d","c":[5]}}`},
		{"unknown node key", `{"v":1,"d":{"t":"d","k":1}}`},
		{"attrs not object", `{"v":1,"d":{"t":"d","a":[1]}}`},
		{"bad mark", `{"v":1,"d":{"t":"d","c":[{"x":"hi","m":[7]}]}}`},
		{"root not doc", `{"v":1,"d":"hello"}`},
		{"trailing data", `{"v":1,"d":{"t":"d"}} {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input, Context{CloudName: "demo"})
			var me *MalformedInputError
			if !errors.As(err, &me) {
				t.Fatalf("expected MalformedInputError, got %v", err)
			}
		})
	}
}

func TestEncode_FallbackIsSoft(t *testing.T) {
	var logBuf bytes.Buffer
	var fallbacks []*ShapeMismatchError
	c := New(Config{
		Logger:     slog.New(slog.NewTextHandler(&logBuf, nil)),
		OnFallback: func(e *ShapeMismatchError) { fallbacks = append(fallbacks, e) },
	})

	doc := mustParse(t, `{"type":"doc","content":[
		{"type":"image","attrs":{"src":"https://example.com/cat.png","alt":"cat"}},
		{"type":"image","attrs":{"alt":"no src"}},
		{"type":"youtube","attrs":{"src":"https://youtube.com/watch?v=abc123xyz"}},
		{"type":"video-embed","attrs":{"src":"https://youtu.be/abc123xyz","videoId":"other"}},
		{"type":"image","attrs":{"src":"https://res.cloudinary.com/ok/image/upload/a.png"}}
	]}`)
	compact, err := c.Encode(doc)
	if err != nil {
		t.Fatalf("expected soft fallback, got error %v", err)
	}
	if len(fallbacks) != 4 {
		t.Fatalf("expected 4 fallbacks, got %d", len(fallbacks))
	}
	if !strings.Contains(logBuf.String(), "compaction fell back") {
		t.Errorf("expected warning in log, got %q", logBuf.String())
	}
	if !strings.Contains(compact, `"t":"~image"`) || !strings.Contains(compact, `"t":"i"`) {
		t.Errorf("expected both literal and compacted images, got %s", compact)
	}

	out, err := c.Decode(compact, Context{CloudName: "ok"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !doctree.Equal(doc, out) {
		t.Errorf("round trip mismatch:\nwant %s\ngot  %s", canonical(t, doc), canonical(t, out))
	}
}

func TestEncode_RejectsBadInput(t *testing.T) {
	if _, err := Encode(nil); !errors.Is(err, ErrNotDocument) {
		t.Errorf("expected ErrNotDocument for nil, got %v", err)
	}
	if _, err := Encode(doctree.Paragraph()); !errors.Is(err, ErrNotDocument) {
		t.Errorf("expected ErrNotDocument for paragraph root, got %v", err)
	}
	if _, err := Encode(doctree.NewDoc(nil)); err == nil {
		t.Error("expected error for nil child")
	}
}

func TestMaxDepth(t *testing.T) {
	c := New(Config{MaxDepth: 4})

	ok := doctree.NewDoc(&doctree.Node{Type: "blockquote", Content: []*doctree.Node{doctree.Paragraph(doctree.Text("x"))}})
	if _, err := c.Encode(ok); err != nil {
		t.Fatalf("expected depth 4 to pass, got %v", err)
	}

	deep := doctree.NewDoc(&doctree.Node{Type: "blockquote", Content: []*doctree.Node{
		{Type: "blockquote", Content: []*doctree.Node{doctree.Paragraph(doctree.Text("x"))}},
	}})
	if _, err := c.Encode(deep); !errors.Is(err, ErrTooDeep) {
		t.Errorf("expected ErrTooDeep on encode, got %v", err)
	}

	compact := `{"v":1,"d":{"t":"d","c":[{"t":"bq","c":[{"t":"bq","c":[{"t":"p","c":["x"]}]}]}]}}`
	if _, err := c.Decode(compact, Context{}); !errors.Is(err, ErrTooDeep) {
		t.Errorf("expected ErrTooDeep on decode, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	c := New(DefaultConfig())
	if err := c.Register(Rule{Type: "callout", Code: "co"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []Rule{
		{Type: "callout", Code: "co2"},
		{Type: "aside", Code: "p"},
		{Type: "aside", Code: "~a"},
		{Type: "aside", Code: ""},
		{Type: "text", Code: "tx"},
		{Type: "aside", Code: "as", Compact: compactImage},
	}
	for _, r := range bad {
		if err := c.Register(r); err == nil {
			t.Errorf("expected error registering %+v", r)
		}
	}

	doc := doctree.NewDoc(&doctree.Node{Type: "callout", Attrs: map[string]any{"tone": "info"}})
	compact, err := c.Encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(compact, `"t":"co"`) {
		t.Errorf("expected registered code in %s", compact)
	}
	out, err := c.Decode(compact, Context{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !doctree.Equal(doc, out) {
		t.Errorf("round trip mismatch: %s", canonical(t, out))
	}

	// The default codec does not know the code.
	if _, err := Decode(compact, Context{}); err == nil {
		t.Error("expected default codec to reject unregistered code")
	}
}

func TestRules_Sorted(t *testing.T) {
	types := New(DefaultConfig()).Rules()
	for i := 1; i < len(types); i++ {
		if types[i-1] >= types[i] {
			t.Fatalf("expected sorted rule types, got %v", types)
		}
	}
	if len(types) != len(builtinRules()) {
		t.Errorf("expected %d rules, got %d", len(builtinRules()), len(types))
	}
}

func TestConcurrentUse(t *testing.T) {
	doc := mustParse(t, tiptapFixture)
	want := canonical(t, doc)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			compact, err := Encode(doc)
			if err != nil {
				errs <- err
				return
			}
			out, err := Decode(compact, Context{CloudName: "test"})
			if err != nil {
				errs <- err
				return
			}
			b, _ := out.Canonical()
			if string(b) != want {
				errs <- errors.New("round trip mismatch")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
