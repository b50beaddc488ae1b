// Command quality sweeps embedding strength against common distortions and
// renders the extraction success rate as an HTML chart.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	watermark "github.com/yyyoichi/watermark_dct"
	"github.com/yyyoichi/watermark_dct/internal/imageio"
	"github.com/yyyoichi/watermark_dct/validator"
	"golang.org/x/image/draw"
)

// attack distorts a marked frame the way distribution channels do.
type attack struct {
	name  string
	apply func(image.Image) (image.Image, error)
}

func jpegAttack(quality int) attack {
	return attack{
		name: fmt.Sprintf("jpeg%d", quality),
		apply: func(img image.Image) (image.Image, error) {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
				return nil, err
			}
			return jpeg.Decode(&buf)
		},
	}
}

// resizeAttack scales the frame down by scale and back to its original size.
func resizeAttack(scale float64) attack {
	return attack{
		name: fmt.Sprintf("resize%.0f", scale*100),
		apply: func(img image.Image) (image.Image, error) {
			b := img.Bounds()
			small := image.NewRGBA(image.Rect(0, 0, int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)))
			draw.CatmullRom.Scale(small, small.Bounds(), img, b, draw.Src, nil)
			restored := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
			draw.CatmullRom.Scale(restored, restored.Bounds(), small, small.Bounds(), draw.Src, nil)
			return restored, nil
		},
	}
}

var attacks = []attack{
	{name: "none", apply: func(img image.Image) (image.Image, error) { return img, nil }},
	jpegAttack(90),
	jpegAttack(75),
	jpegAttack(50),
	resizeAttack(0.75),
}

type result struct {
	strength float64
	success  map[string]int
	trials   int
	psnr     float64
}

func sweep(ctx context.Context, images []image.Image, strengths []float64, message string, options ...watermark.Option) ([]result, error) {
	e, err := watermark.New(options...)
	if err != nil {
		return nil, err
	}
	results := make([]result, len(strengths))
	for i, s := range strengths {
		results[i] = result{strength: s, success: map[string]int{}}
	}

	for n, img := range images {
		if len(message) > e.MaxMessageLen(img.Bounds()) {
			log.Printf("[%d/%d] skip %v: message does not fit", n+1, len(images), img.Bounds().Size())
			continue
		}
		batch, err := watermark.NewBatch(img)
		if err != nil {
			return nil, err
		}
		for i, s := range strengths {
			marked, err := batch.Embed(ctx, message, s, options...)
			if err != nil {
				return nil, err
			}
			psnr, err := validator.PSNR(img, marked)
			if err != nil {
				return nil, err
			}
			results[i].psnr += psnr
			results[i].trials++

			for _, a := range attacks {
				attacked, err := a.apply(marked)
				if err != nil {
					return nil, err
				}
				ok, err := validator.Verify(ctx, e, attacked, message)
				if err != nil {
					return nil, err
				}
				if ok {
					results[i].success[a.name]++
				}
			}
		}
		log.Printf("[%d/%d] %v done", n+1, len(images), img.Bounds().Size())
	}
	for i := range results {
		if results[i].trials > 0 {
			results[i].psnr /= float64(results[i].trials)
		}
	}
	return results, nil
}

func (r result) rate(attack string) float64 {
	if r.trials == 0 {
		return 0
	}
	return float64(r.success[attack]) / float64(r.trials) * 100
}

func render(path string, results []result) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Extraction Success Rate by Strength",
			Subtitle: "Success rate after each distortion, mean PSNR of the marked frames",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "Strength",
			Type: "category",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "Success Rate (%)",
			Type: "value",
			Min:  0,
			Max:  100,
			AxisLabel: &opts.AxisLabel{
				Formatter: "{value}%",
			},
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
			Top:  "5%",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
	)

	var xAxisData []string
	for _, r := range results {
		xAxisData = append(xAxisData, fmt.Sprintf("%g", r.strength))
	}
	line.SetXAxis(xAxisData)

	for _, a := range attacks {
		var data []opts.LineData
		for _, r := range results {
			data = append(data, opts.LineData{
				Value: r.rate(a.name),
				Name:  fmt.Sprintf("strength=%g %s: %.1f%% (n=%d)", r.strength, a.name, r.rate(a.name), r.trials),
			})
		}
		line.AddSeries(a.name, data,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(false)}),
		)
	}

	line.ExtendYAxis(opts.YAxis{
		Name: "PSNR (dB)",
		Type: "value",
		AxisLabel: &opts.AxisLabel{
			Formatter: "{value} dB",
		},
	})
	var psnrData []opts.LineData
	for _, r := range results {
		psnrData = append(psnrData, opts.LineData{Value: r.psnr})
	}
	line.AddSeries("PSNR", psnrData,
		charts.WithLineChartOpts(opts.LineChart{
			Smooth:     opts.Bool(true),
			YAxisIndex: 1,
		}),
	)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return line.Render(f)
}

// synthetic returns textured frames for runs without network access.
func synthetic(n, width, height int) []image.Image {
	images := make([]image.Image, n)
	for i := range n {
		rng := rand.New(rand.NewSource(int64(i)))
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := range height {
			for x := range width {
				t := rng.Intn(24)
				img.Set(x, y, color.RGBA{
					R: uint8(40 + x*140/width + t),
					G: uint8(40 + y*140/height + t),
					B: uint8(60 + (i*37)%100 + t),
					A: 255,
				})
			}
		}
		images[i] = img
	}
	return images
}

func parseStrengths(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		var v float64
		if _, err := fmt.Sscan(strings.TrimSpace(f), &v); err != nil {
			return nil, fmt.Errorf("invalid strength %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func main() {
	numImages := flag.Int("n", 10, "number of images to test")
	urlFile := flag.String("urls", "", "file with one image URL per line (synthetic images when empty)")
	width := flag.Int("w", 640, "frame width")
	height := flag.Int("h", 360, "frame height")
	strengthList := flag.String("strengths", "10,20,30,40,50,60,80", "comma separated strengths")
	message := flag.String("m", "TEST_MARK", "message to embed")
	golay := flag.Bool("golay", false, "protect the frame with the Golay code")
	out := flag.String("out", "quality.html", "chart output path")
	flag.Parse()

	strengths, err := parseStrengths(*strengthList)
	if err != nil {
		log.Fatal(err)
	}

	var images []image.Image
	if *urlFile != "" {
		f, err := os.Open(*urlFile)
		if err != nil {
			log.Fatal(err)
		}
		urls, err := imageio.ParseURLs(f)
		f.Close()
		if err != nil {
			log.Fatal(err)
		}
		if *numImages > 0 && *numImages < len(urls) {
			urls = urls[:*numImages]
		}
		fetcher := imageio.NewFetcher("/tmp/wmark_http_cache/", 250*time.Millisecond)
		for _, u := range urls {
			img, err := fetcher.Fetch(u)
			if err != nil {
				log.Printf("Error fetching %s: %v", u, err)
				continue
			}
			images = append(images, imageio.Fit(img, *width, *height))
		}
	} else {
		images = synthetic(*numImages, *width, *height)
	}
	if len(images) == 0 {
		log.Fatal("No images to test")
	}

	var options []watermark.Option
	if *golay {
		options = append(options, watermark.WithGolay())
	}

	log.Printf("Starting quality evaluation with %d images, %d strengths, %d attacks", len(images), len(strengths), len(attacks))
	start := time.Now()
	results, err := sweep(context.Background(), images, strengths, *message, options...)
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("=== Results (%v) ===", time.Since(start))
	for _, r := range results {
		var parts []string
		for _, a := range attacks {
			parts = append(parts, fmt.Sprintf("%s=%.0f%%", a.name, r.rate(a.name)))
		}
		log.Printf("strength=%-4g psnr=%.2fdB %s", r.strength, r.psnr, strings.Join(parts, " "))
	}
	if err := render(*out, results); err != nil {
		log.Fatal(err)
	}
	log.Printf("Chart written to %s", *out)
}
