package annotate

import (
	"fmt"
	"image"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/fogleman/gg"

	"github.com/ppecam/ppecam/pkg/ppe"
)

// Package annotate renders compliance verdicts onto a frame.
// It is a pure transform: the input image is never mutated.

// Options controls what gets drawn.
type Options struct {
	DrawGear  bool    // also outline each associated gear detection
	Banner    bool    // draw the red violation banner across the top when any person is in violation
	LineWidth float64 // stroke width of boxes, default 3
}

func DefaultOptions() Options {
	return Options{
		DrawGear:  true,
		Banner:    true,
		LineWidth: 3,
	}
}

// Person box colors: green for compliant, red for violation.
var (
	colCompliant = [3]float64{0.1, 0.8, 0.3}
	colViolation = [3]float64{0.87, 0.15, 0.15}
	colGear      = [3]float64{0.25, 0.55, 0.95}
)

// Draw returns a copy of frame with person boxes, labels and (optionally)
// gear boxes rendered onto it.
func Draw(frame *cimg.Image, records []ppe.PersonRecord, opts Options) (*cimg.Image, error) {
	if opts.LineWidth <= 0 {
		opts.LineWidth = 3
	}
	rgba, err := toRGBA(frame)
	if err != nil {
		return nil, err
	}
	dc := gg.NewContextForRGBA(rgba)
	dc.SetLineWidth(opts.LineWidth)

	anyViolation := false
	for i := range records {
		rec := &records[i]
		col := colCompliant
		if rec.Verdict == ppe.VerdictViolation {
			col = colViolation
			anyViolation = true
		}

		if opts.DrawGear {
			dc.SetRGB(colGear[0], colGear[1], colGear[2])
			for _, g := range rec.Gear {
				dc.DrawRectangle(float64(g.Box.X), float64(g.Box.Y), float64(g.Box.Width), float64(g.Box.Height))
				dc.Stroke()
			}
		}

		box := rec.Person.Box
		dc.SetRGB(col[0], col[1], col[2])
		dc.DrawRectangle(float64(box.X), float64(box.Y), float64(box.Width), float64(box.Height))
		dc.Stroke()

		label := personLabel(rec)
		drawLabel(dc, label, box.X, box.Y, col)
	}

	if opts.Banner && anyViolation {
		drawBanner(dc, frame.Width)
	}

	return fromRGBA(rgba), nil
}

func personLabel(rec *ppe.PersonRecord) string {
	if rec.Verdict == ppe.VerdictCompliant {
		return fmt.Sprintf("ok %.0f%%", rec.Person.Confidence*100)
	}
	return "missing " + strings.Join(rec.MissingNames(), ",")
}

// drawLabel paints the label on a filled strip just above the box
// (or inside its top edge, when the box touches the frame top).
func drawLabel(dc *gg.Context, label string, x, y int, col [3]float64) {
	w, h := dc.MeasureString(label)
	pad := 3.0
	top := float64(y) - h - 2*pad
	if top < 0 {
		top = float64(y)
	}
	dc.SetRGB(col[0], col[1], col[2])
	dc.DrawRectangle(float64(x), top, w+2*pad, h+2*pad)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.DrawString(label, float64(x)+pad, top+h+pad/2)
}

func drawBanner(dc *gg.Context, frameWidth int) {
	dc.SetRGBA(0.8, 0, 0, 0.6)
	dc.DrawRectangle(8, 8, float64(frameWidth-16), 34)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.DrawString("SAFETY VIOLATION", 20, 30)
}

// toRGBA copies a 24-bit RGB cimg image into an image.RGBA for drawing.
func toRGBA(src *cimg.Image) (*image.RGBA, error) {
	if src.NChan() != 3 {
		return nil, fmt.Errorf("expected 3 channel RGB image, not %v channels", src.NChan())
	}
	dst := image.NewRGBA(image.Rect(0, 0, src.Width, src.Height))
	for y := 0; y < src.Height; y++ {
		srcRow := src.Pixels[y*src.Stride : y*src.Stride+src.Width*3]
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+src.Width*4]
		for x := 0; x < src.Width; x++ {
			dstRow[x*4] = srcRow[x*3]
			dstRow[x*4+1] = srcRow[x*3+1]
			dstRow[x*4+2] = srcRow[x*3+2]
			dstRow[x*4+3] = 255
		}
	}
	return dst, nil
}

// fromRGBA packs an image.RGBA back into a 24-bit RGB cimg image.
func fromRGBA(src *image.RGBA) *cimg.Image {
	width := src.Rect.Dx()
	height := src.Rect.Dy()
	dst := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for y := 0; y < height; y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+width*4]
		dstRow := dst.Pixels[y*dst.Stride : y*dst.Stride+width*3]
		for x := 0; x < width; x++ {
			dstRow[x*3] = srcRow[x*4]
			dstRow[x*3+1] = srcRow[x*4+1]
			dstRow[x*3+2] = srcRow[x*4+2]
		}
	}
	return dst
}
