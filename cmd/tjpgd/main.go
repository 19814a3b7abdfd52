package main

import (
	"bufio"
	"flag"
	"fmt"
	"image/png"
	"log"
	"log/slog"
	"os"

	"github.com/gen2brain/tinyjpeg"
)

func main() {
	var inputFile = flag.String("input", "", "Input JPEG file")
	var outputFile = flag.String("output", "", "Output PNG file (optional, prints the decoded rectangles when empty)")
	var format = flag.String("format", "rgb888", "Output format: grayscale, rgb565, bgr565, rgb888, bgr888, rgba8888, bgra8888")
	var rect = flag.String("rect", "", "Decode only the rectangle x,y,w,h")
	var poolSize = flag.Int("pool", 8192, "Working memory in bytes")
	var bufSize = flag.Int("buf", 512, "Stream input buffer in bytes")
	var fast = flag.Int("fast", 1, "Optimization level 0-2")
	var verbose = flag.Bool("v", false, "Trace the decoder to stderr")
	flag.Parse()

	if *inputFile == "" && flag.NArg() > 0 {
		*inputFile = flag.Arg(0)
	}

	if *inputFile == "" {
		log.Fatal("Input file is required. Use -input flag.")
	}

	opts := &tinyjpeg.Options{
		BufferSize: *bufSize,
		FastDecode: *fast,
		PoolSize:   *poolSize,
	}

	f, err := tinyjpeg.ParseFormat(*format)
	if err != nil {
		log.Fatalf("Invalid format: %v", err)
	}

	opts.Format = f

	if *verbose {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	file, err := os.Open(*inputFile)
	if err != nil {
		log.Fatalf("Failed to open input file: %v", err)
	}
	defer file.Close()

	if *outputFile != "" {
		img, err := tinyjpeg.DecodeImage(file, opts)
		if err != nil {
			log.Fatalf("Failed to decode JPEG: %v", err)
		}

		out, err := os.Create(*outputFile)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer out.Close()

		if err := png.Encode(out, img); err != nil {
			log.Fatalf("Failed to encode PNG: %v", err)
		}

		fmt.Printf("Successfully converted %s to %s\n", *inputFile, *outputFile)
		fmt.Printf("Image size: %dx%d pixels\n", img.Bounds().Dx(), img.Bounds().Dy())

		return
	}

	var roi *tinyjpeg.Rect
	if *rect != "" {
		var x, y, w, h int
		if n, err := fmt.Sscanf(*rect, "%d,%d,%d,%d", &x, &y, &w, &h); n != 4 || err != nil {
			log.Fatalf("Invalid rectangle format: %s", *rect)
		}

		roi = &tinyjpeg.Rect{Left: x, Top: y, Right: x + w - 1, Bottom: y + h - 1}
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	var d tinyjpeg.Decoder
	if err := d.Prepare(tinyjpeg.ReaderInput(file), make([]byte, *poolSize), w, opts); err != nil {
		log.Fatalf("Failed to prepare decoder: %v", err)
	}

	mw, mh := d.MCUSize()
	fmt.Fprintf(w, "Image size: %dx%d, components: %d, MCU: %dx%d, restart interval: %d, pool used: %d\n",
		d.Width(), d.Height(), d.Components(), mw, mh, d.RestartInterval(), d.PoolUsed())

	if err := d.Decode(printRect, roi); err != nil {
		w.Flush()
		log.Fatalf("Failed to decode JPEG: %v", err)
	}
}

// printRect writes the rectangle and its pixels to the bufio.Writer stored as the decoder device.
func printRect(d *tinyjpeg.Decoder, pix []byte, r tinyjpeg.Rect) bool {
	w := d.Device().(*bufio.Writer)
	bpp := d.Format().BytesPerPixel()

	fmt.Fprintf(w, "(%d,%d)-(%d,%d)\n", r.Left, r.Top, r.Right, r.Bottom)
	for y := r.Top; y <= r.Bottom; y++ {
		for x := r.Left; x <= r.Right; x++ {
			if bpp == 2 {
				v := uint16(pix[0]) | uint16(pix[1])<<8
				red, green, blue := expand565(v)
				fmt.Fprintf(w, "(%3d,%3d,%3d) ", red, green, blue)
			} else {
				fmt.Fprint(w, "(")
				for i := 0; i < bpp; i++ {
					if i > 0 {
						fmt.Fprint(w, ",")
					}

					fmt.Fprintf(w, "%3d", pix[i])
				}
				fmt.Fprint(w, ") ")
			}

			pix = pix[bpp:]
		}
		fmt.Fprintln(w)
	}

	return true
}

// expand565 unpacks a 5/6/5 word to 8-bit channels by bit replication.
func expand565(v uint16) (uint8, uint8, uint8) {
	r := uint8(v>>11) & 0x1F
	g := uint8(v>>5) & 0x3F
	b := uint8(v) & 0x1F

	return r<<3 | r>>2, g<<2 | g>>4, b<<3 | b>>2
}
