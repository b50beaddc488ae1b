// Command wmark embeds, extracts and checks DCT watermarks in image files.
//
// Usage:
//
//	wmark embed    -in src.png -out marked.png -m "SecureStream1"
//	wmark extract  -in marked.jpg
//	wmark score    -ref src.png -in suspect.jpg
//	wmark config   -golay -key secret > wmark.yaml
//	wmark register -db registry.db -id clip-1 -in src.png -out marked.png -m owner
//	wmark check    -db registry.db -id clip-1 -in suspect.jpg
//
// Inputs may be file paths or http(s) URLs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	watermark "github.com/yyyoichi/watermark_dct"
	"github.com/yyyoichi/watermark_dct/internal/imageio"
	"github.com/yyyoichi/watermark_dct/registry"
	"github.com/yyyoichi/watermark_dct/validator"
)

const cacheDir = "/tmp/wmark_http_cache/"

// exitUnverified is the exit status when a frame carries no readable or
// registered watermark. Other failures exit with 1.
const exitUnverified = 3

var errUnverified = errors.New("unverified")

var fetcher = imageio.NewFetcher(cacheDir, 250*time.Millisecond)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands = []command{
	{"embed", "embed a message into an image", runEmbed},
	{"extract", "extract a message from an image", runExtract},
	{"score", "compare an image with its reference", runScore},
	{"config", "print an engine configuration as YAML", runConfig},
	{"register", "embed and record content in a registry", runRegister},
	{"check", "check a suspect image against a registered content", runCheck},
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("wmark: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for _, c := range commands {
		if c.name == os.Args[1] {
			if err := c.run(ctx, os.Args[2:]); err != nil {
				if errors.Is(err, flag.ErrHelp) {
					os.Exit(2)
				}
				log.Print(err)
				os.Exit(exitCode(err))
			}
			return
		}
	}
	usage()
	os.Exit(2)
}

func exitCode(err error) int {
	if errors.Is(err, errUnverified) {
		return exitUnverified
	}
	return 1
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: wmark <command> [flags]")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", c.name, c.usage)
	}
}

// engineFlags are the flags shared by every command that builds an Engine.
type engineFlags struct {
	config    string
	blockSize int
	prefix    int
	golay     bool
	seed      int64
	key       string
	salt      string
	strength  float64
}

func (f *engineFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.config, "config", "", "YAML engine configuration; other engine flags are ignored")
	fs.IntVar(&f.blockSize, "block", watermark.DefaultBlockSize, "block size")
	fs.IntVar(&f.prefix, "prefix", watermark.DefaultPrefixWidth, "length prefix width, 16 or 32")
	fs.BoolVar(&f.golay, "golay", false, "protect the frame with the Golay code")
	fs.Int64Var(&f.seed, "seed", 0, "block order seed (0 keeps row-major order)")
	fs.StringVar(&f.key, "key", "", "secret the block order seed is derived from")
	fs.StringVar(&f.salt, "salt", "", "salt for -key")
	fs.Float64Var(&f.strength, "strength", watermark.DefaultStrength, "coefficient magnitude floor")
}

func (f *engineFlags) engine() (*watermark.Engine, error) {
	if f.config != "" {
		file, err := os.Open(f.config)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		c, err := watermark.LoadConfig(file)
		if err != nil {
			return nil, err
		}
		return watermark.NewFromConfig(c)
	}

	opts := []watermark.Option{
		watermark.WithBlockSize(f.blockSize),
		watermark.WithPrefixWidth(f.prefix),
		watermark.WithStrength(f.strength),
	}
	if f.golay {
		opts = append(opts, watermark.WithGolay())
	}
	switch {
	case f.key != "":
		opts = append(opts, watermark.WithKey([]byte(f.key), []byte(f.salt)))
	case f.seed != 0:
		opts = append(opts, watermark.WithSeed(f.seed))
	}
	return watermark.New(opts...)
}

func required(fs *flag.FlagSet, names ...string) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	var missing []string
	for _, n := range names {
		if !set[n] {
			missing = append(missing, "-"+n)
		}
	}
	if len(missing) > 0 {
		fs.Usage()
		return fmt.Errorf("%s: missing %s", fs.Name(), strings.Join(missing, ", "))
	}
	return nil
}

func runEmbed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("embed", flag.ContinueOnError)
	var ef engineFlags
	ef.register(fs)
	in := fs.String("in", "", "source image path or URL")
	out := fs.String("out", "", "output image path (.png, .bmp, .tiff, .jpg)")
	message := fs.String("m", "", "message to embed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "in", "out", "m"); err != nil {
		return err
	}

	e, err := ef.engine()
	if err != nil {
		return err
	}
	src, err := fetcher.Open(*in)
	if err != nil {
		return err
	}
	if n := e.MaxMessageLen(src.Bounds()); len(*message) > n {
		return fmt.Errorf("%w: %d bytes, frame holds %d", watermark.ErrInsufficientCapacity, len(*message), max(n, 0))
	}

	start := time.Now()
	marked, err := e.Embed(ctx, src, *message, e.Strength())
	if err != nil {
		return err
	}
	if err := imageio.Save(*out, marked); err != nil {
		return err
	}
	psnr, err := validator.PSNR(src, marked)
	if err != nil {
		return err
	}
	log.Printf("embedded %d bytes into %v in %v (PSNR %.2f dB)", len(*message), src.Bounds().Size(), time.Since(start), psnr)
	return nil
}

func runExtract(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	var ef engineFlags
	ef.register(fs)
	in := fs.String("in", "", "image path or URL")
	maxLen := fs.Int("max", 0, "maximum message length in bytes (0 reads the whole frame)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "in"); err != nil {
		return err
	}

	e, err := ef.engine()
	if err != nil {
		return err
	}
	src, err := fetcher.Open(*in)
	if err != nil {
		return err
	}
	x, err := e.Extract(ctx, src, *maxLen)
	if err != nil {
		return err
	}
	if !x.Found {
		return fmt.Errorf("%w: no watermark found: %s (read %d bits, confidence %.2f)", errUnverified, x.Failure, x.Bits, x.Confidence)
	}
	log.Printf("read %d bits, confidence %.2f", x.Bits, x.Confidence)
	fmt.Println(x.Message)
	return nil
}

func runScore(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	ref := fs.String("ref", "", "reference image path or URL")
	in := fs.String("in", "", "candidate image path or URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "ref", "in"); err != nil {
		return err
	}

	reference, err := fetcher.Open(*ref)
	if err != nil {
		return err
	}
	candidate, err := fetcher.Open(*in)
	if err != nil {
		return err
	}
	score, err := validator.Score(reference, candidate)
	if err != nil {
		return err
	}
	psnr, err := validator.PSNR(reference, candidate)
	if err != nil {
		return err
	}
	fmt.Printf("score=%.4f psnr=%.2f\n", score, psnr)
	return nil
}

func runConfig(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	var ef engineFlags
	ef.register(fs)
	random := fs.Bool("random", false, "draw a random block order seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := ef.engine()
	if err != nil {
		return err
	}
	if *random {
		opts, err := e.Config().Options()
		if err != nil {
			return err
		}
		if e, err = watermark.New(append(opts, watermark.WithRandomKey())...); err != nil {
			return err
		}
	}
	return e.Config().Write(os.Stdout)
}

func runRegister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var ef engineFlags
	ef.register(fs)
	dbPath := fs.String("db", "wmark.db", "registry database")
	id := fs.String("id", "", "content id")
	in := fs.String("in", "", "source image path or URL")
	out := fs.String("out", "", "output image path")
	message := fs.String("m", "", "message to embed")
	meta := fs.String("meta", "", "comma separated key=value metadata")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "id", "in", "out", "m"); err != nil {
		return err
	}
	metadata, err := parseMetadata(*meta)
	if err != nil {
		return err
	}

	e, err := ef.engine()
	if err != nil {
		return err
	}
	store, err := registry.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	src, err := fetcher.Open(*in)
	if err != nil {
		return err
	}
	if imageio.IsURL(*in) {
		metadata["source"] = *in
	}
	marked, err := registry.New(store, e).Register(ctx, *id, src, *message, metadata)
	if err != nil {
		return err
	}
	if err := imageio.Save(*out, marked); err != nil {
		return err
	}
	log.Printf("registered %s (hash %s)", *id, registry.PayloadHash(*message))
	return nil
}

func runCheck(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	var ef engineFlags
	ef.register(fs)
	dbPath := fs.String("db", "wmark.db", "registry database")
	id := fs.String("id", "", "content id; empty identifies the content by its watermark")
	in := fs.String("in", "", "suspect image path or URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "in"); err != nil {
		return err
	}

	store, err := registry.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	suspect, err := fetcher.Open(*in)
	if err != nil {
		return err
	}

	if *id == "" {
		e, err := ef.engine()
		if err != nil {
			return err
		}
		ids, x, err := registry.New(store, e).Identify(ctx, suspect)
		if err != nil {
			return err
		}
		if !x.Found {
			return fmt.Errorf("%w: no watermark found: %s", errUnverified, x.Failure)
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: message %q is not registered", errUnverified, x.Message)
		}
		fmt.Println(strings.Join(ids, "\n"))
		return nil
	}

	// the stored config decides how to read the frame
	report, err := registry.New(store, nil).Check(ctx, *id, suspect)
	if err != nil {
		return err
	}
	fmt.Printf("id=%s verified=%t score=%.4f confidence=%.2f\n",
		report.ContentID, report.Verified, report.Score, report.Extraction.Confidence)
	if !report.Verified {
		return fmt.Errorf("%w: %s", errUnverified, report.ContentID)
	}
	return nil
}

func parseMetadata(s string) (map[string]string, error) {
	metadata := map[string]string{}
	if s == "" {
		return metadata, nil
	}
	for _, kv := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, want key=value", kv)
		}
		metadata[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return metadata, nil
}
