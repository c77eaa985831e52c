package content

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello World", "hello-world"},
		{"  NestJS: A Scalable Node.js Framework ", "nestjs-a-scalable-node-js-framework"},
		{"already-slugged", "already-slugged"},
		{"---", ""},
		{"Ünïcode only", "n-code-only"},
		{"a  b", "a-b"},
		{"this title is far too long to fit into a single slug without trimming it", "this-title-is-far-too-long-to-fit-into-a-single-sl"},
		{"ends exactly at the fifty character mark with dash -x", "ends-exactly-at-the-fifty-character-mark-with-dash"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
