// Command postpack compacts, expands and imports rich-text documents from
// the command line.
//
// Usage:
//
//	postpack encode [-stats] FILE
//	postpack decode [-cloud NAME] [-host HOST] FILE
//	postpack stats FILE
//	postpack import [-compact] FILE
//
// FILE may be "-" for standard input. Documents are read as JSON, or as
// YAML when the input does not start with '{'.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgallion1/postpack/internal/codec"
	"github.com/dgallion1/postpack/internal/config"
	"github.com/dgallion1/postpack/internal/doctree"
	"github.com/dgallion1/postpack/internal/importer"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

const usage = `usage: postpack <command> [flags] FILE

commands:
  encode   compact a document
  decode   expand a compact string
  stats    report compaction savings for a document
  import   convert a .md/.html/.txt/.csv/.pdf/.docx file into a document
`

// run executes one command and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg := config.Load()
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cc := cfg.CodecConfig()
	cc.Logger = log
	c := codec.New(cc)

	var err error
	switch args[0] {
	case "encode":
		err = encodeCmd(c, args[1:], stdin, stdout, stderr)
	case "decode":
		err = decodeCmd(c, cfg, args[1:], stdin, stdout, stderr)
	case "stats":
		err = statsCmd(c, args[1:], stdin, stdout, stderr)
	case "import":
		err = importCmd(c, cfg, args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "postpack %s: %s\n", args[0], err)
		return 1
	}
	return 0
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// fileArg returns the single FILE argument left after flag parsing.
func fileArg(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one FILE argument, got %d", fs.NArg())
	}
	return fs.Arg(0), nil
}

func readInput(name string, stdin io.Reader) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

// readDocument parses JSON input directly and converts anything else from
// YAML.
func readDocument(data []byte) (*doctree.Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return doctree.Parse(trimmed)
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode yaml document: %w", err)
	}
	js, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("convert yaml document: %w", err)
	}
	return doctree.Parse(js)
}

func encodeCmd(c *codec.Codec, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("encode", stderr)
	showStats := fs.Bool("stats", false, "print compaction stats to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	name, err := fileArg(fs)
	if err != nil {
		return err
	}
	data, err := readInput(name, stdin)
	if err != nil {
		return err
	}
	doc, err := readDocument(data)
	if err != nil {
		return err
	}
	compact, stats, err := c.EncodeWithStats(doc)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, compact)
	if *showStats {
		fmt.Fprintf(stderr, "%d -> %d bytes (%.2f%%)\n", stats.OriginalSize, stats.CompressedSize, stats.ReductionPercent)
	}
	return nil
}

func decodeCmd(c *codec.Codec, cfg config.Config, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	ctx := cfg.MediaContext()
	fs := newFlagSet("decode", stderr)
	fs.StringVar(&ctx.CloudName, "cloud", ctx.CloudName, "media cloud name (default from CLOUDINARY_CLOUD_NAME or CLOUDINARY_URL)")
	fs.StringVar(&ctx.MediaHost, "host", ctx.MediaHost, "media delivery host (default res.cloudinary.com)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	name, err := fileArg(fs)
	if err != nil {
		return err
	}
	data, err := readInput(name, stdin)
	if err != nil {
		return err
	}
	doc, err := c.Decode(strings.TrimSpace(string(data)), ctx)
	if err != nil {
		return err
	}
	out, err := doc.Canonical()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}

func statsCmd(c *codec.Codec, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("stats", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	name, err := fileArg(fs)
	if err != nil {
		return err
	}
	data, err := readInput(name, stdin)
	if err != nil {
		return err
	}
	doc, err := readDocument(data)
	if err != nil {
		return err
	}
	stats, err := c.StatsFor(doc)
	if err != nil {
		return err
	}
	out, err := doctree.Marshal(stats)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}

func importCmd(c *codec.Codec, cfg config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("import", stderr)
	compact := fs.Bool("compact", false, "print the compact form instead of the document")
	if err := fs.Parse(args); err != nil {
		return err
	}
	name, err := fileArg(fs)
	if err != nil {
		return err
	}
	imp, err := importer.ForFile(name, importer.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext})
	if err != nil {
		return err
	}
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := imp.Import(f, filepath.Base(name))
	if err != nil {
		return err
	}
	if *compact {
		s, err := c.Encode(doc)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, s)
		return nil
	}
	out, err := doc.Canonical()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}
