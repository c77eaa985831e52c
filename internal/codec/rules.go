package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgallion1/postpack/internal/doctree"
	"github.com/dgallion1/postpack/internal/media"
)

// Rule is one row of the compaction table: the wire code for a node type
// and, for types that carry derivable data, the pair of transforms that
// drop and rebuild it. Rules only see a node's own attrs; the traversal
// handles children, text and marks.
//
// A rule with nil Compact and Expand is an identity rule: attrs are carried
// unchanged and only the type name is shortened.
type Rule struct {
	Type string
	Code string

	// Compact reduces attrs. Returning an error rejects the node, which is
	// then passed through unchanged.
	Compact func(attrs map[string]any) (Reduced, error)

	// Expand rebuilds the original attrs from the reduced attrs, the rule
	// metadata and the caller's context.
	Expand func(attrs map[string]any, meta map[string]string, ctx Context) (map[string]any, error)

	// Derived names attrs that Expand always writes. An input node may
	// omit them; it then gains them on decode.
	Derived []string
}

// Reduced is the output of a compaction rule.
type Reduced struct {
	Attrs map[string]any
	Meta  map[string]string

	// Assumed is the context under which Expand reproduces the input. It
	// is used to check every compaction before it is accepted.
	Assumed Context
}

// Derivable versus preserved, per rule:
//
//	image        src is derived from host, cloud, media id and delivery
//	             qualifiers. The cloud segment is dropped and must come back
//	             through Context.CloudName; a non-default host is recorded.
//	             All other attrs (alt, title, width, ...) are preserved.
//	video-embed  src is derived from the video id, URL form and URL time
//	youtube      offset. videoId is always derived from the id, so a node
//	             given only src comes back with videoId set. startTime and
//	             all other attrs are preserved.
//
// Every other registered type is an identity rule.
func builtinRules() []Rule {
	rules := []Rule{
		{Type: doctree.TypeDoc, Code: "d"},
		{Type: doctree.TypeParagraph, Code: "p"},
		{Type: doctree.TypeHeading, Code: "h"},
		{Type: doctree.TypeCodeBlock, Code: "cb"},
		{Type: doctree.TypeEditorCode, Code: "cbk"},
		{Type: doctree.TypeBulletList, Code: "ul"},
		{Type: doctree.TypeOrderedList, Code: "ol"},
		{Type: doctree.TypeListItem, Code: "li"},
		{Type: doctree.TypeBlockquote, Code: "bq"},
		{Type: doctree.TypeHorizontalRule, Code: "hr"},
		{Type: doctree.TypeHardBreak, Code: "br"},
		{Type: doctree.TypeTable, Code: "tb"},
		{Type: doctree.TypeTableRow, Code: "tr"},
		{Type: doctree.TypeTableCell, Code: "td"},
		{Type: doctree.TypeTableHeader, Code: "th"},
		{Type: doctree.TypeImage, Code: "i", Compact: compactImage, Expand: expandImage},
		{Type: doctree.TypeVideoEmbed, Code: "v", Compact: compactVideo, Expand: expandVideo(doctree.TypeVideoEmbed), Derived: []string{"videoId"}},
		{Type: doctree.TypeYouTube, Code: "yt", Compact: compactVideo, Expand: expandVideo(doctree.TypeYouTube), Derived: []string{"videoId"}},
	}
	return rules
}

var errMissingMeta = errors.New("missing media id")

func compactImage(attrs map[string]any) (Reduced, error) {
	src, ok := attrs["src"].(string)
	if !ok {
		return Reduced{}, errors.New("src missing or not a string")
	}
	ref, err := media.ParseImageURL(src)
	if err != nil {
		return Reduced{}, err
	}

	meta := map[string]string{"id": ref.PublicID}
	if ref.Version != "" {
		meta["v"] = ref.Version
	}
	if ref.Format != "" {
		meta["f"] = ref.Format
	}
	if len(ref.Transformations) > 0 {
		meta["x"] = strings.Join(ref.Transformations, "/")
	}
	if ref.Host != media.DefaultHost {
		meta["h"] = ref.Host
	}
	return Reduced{
		Attrs:   without(attrs, "src"),
		Meta:    meta,
		Assumed: Context{CloudName: ref.Cloud},
	}, nil
}

func expandImage(attrs map[string]any, meta map[string]string, ctx Context) (map[string]any, error) {
	if err := checkMeta(meta, "id", "v", "f", "x", "h"); err != nil {
		return nil, err
	}
	if ctx.CloudName == "" {
		return nil, &MissingContextError{NodeType: doctree.TypeImage, Field: "cloudName"}
	}
	ref := media.ImageRef{
		PublicID: meta["id"],
		Version:  meta["v"],
		Format:   meta["f"],
	}
	if x := meta["x"]; x != "" {
		ref.Transformations = strings.Split(x, "/")
	}
	host := meta["h"]
	if host == "" {
		host = ctx.MediaHost
	}
	out := with(attrs)
	out["src"] = ref.URL(host, ctx.CloudName)
	return out, nil
}

func compactVideo(attrs map[string]any) (Reduced, error) {
	src, ok := attrs["src"].(string)
	if !ok {
		return Reduced{}, errors.New("src missing or not a string")
	}
	ref, err := media.ParseVideoURL(src)
	if err != nil {
		return Reduced{}, err
	}

	meta := map[string]string{"id": ref.ID}
	if v, has := attrs["videoId"]; has {
		if id, _ := v.(string); id != ref.ID {
			return Reduced{}, fmt.Errorf("videoId %v disagrees with src", v)
		}
	}
	if ref.Form != media.FormWatch {
		meta["f"] = string(ref.Form)
	}
	if ref.Start > 0 {
		meta["t"] = strconv.Itoa(ref.Start)
	}
	return Reduced{
		Attrs: without(attrs, "src", "videoId"),
		Meta:  meta,
	}, nil
}

func expandVideo(nodeType string) func(map[string]any, map[string]string, Context) (map[string]any, error) {
	return func(attrs map[string]any, meta map[string]string, _ Context) (map[string]any, error) {
		if err := checkMeta(meta, "id", "f", "t"); err != nil {
			return nil, err
		}
		ref := media.VideoRef{ID: meta["id"], Form: media.FormWatch}
		switch f := meta["f"]; f {
		case "":
		case string(media.FormShort), string(media.FormEmbed):
			ref.Form = media.VideoForm(f)
		default:
			return nil, fmt.Errorf("%s: unknown url form %q", nodeType, f)
		}
		if t := meta["t"]; t != "" {
			n, err := strconv.Atoi(t)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%s: bad time offset %q", nodeType, t)
			}
			ref.Start = n
		}

		out := with(attrs)
		out["src"] = ref.URL()
		out["videoId"] = ref.ID
		return out, nil
	}
}

// checkMeta requires an "id" entry and rejects keys outside allowed.
func checkMeta(meta map[string]string, allowed ...string) error {
	if meta["id"] == "" {
		return errMissingMeta
	}
	for k := range meta {
		ok := false
		for _, a := range allowed {
			if k == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("unexpected metadata key %q", k)
		}
	}
	return nil
}

// without returns a copy of attrs lacking the given keys, or nil if
// nothing remains.
func without(attrs map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// with returns a writable copy of attrs.
func with(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs)+2)
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
