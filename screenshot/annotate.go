package screenshot

import (
	"image"
	"strconv"

	"github.com/fogleman/gg"

	"github.com/use-agent/scrollsnap/models"
)

// Box is an element rectangle in screenshot pixels.
type Box struct {
	X, Y, W, H float64
	Label      string
}

// BoxesFromRecords reads x, y, width and height from records. Records with
// missing or non-numeric geometry are skipped.
func BoxesFromRecords(records []models.Record) []Box {
	var boxes []Box
	for _, rec := range records {
		x, err1 := strconv.ParseFloat(rec.Value("x"), 64)
		y, err2 := strconv.ParseFloat(rec.Value("y"), 64)
		w, err3 := strconv.ParseFloat(rec.Value("width"), 64)
		h, err4 := strconv.ParseFloat(rec.Value("height"), 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || w <= 0 || h <= 0 {
			continue
		}
		boxes = append(boxes, Box{X: x, Y: y, W: w, H: h, Label: rec.Value(models.ColElementID)})
	}
	return boxes
}

// Annotate outlines boxes with dashed red rectangles and labels them with
// their element id. Boxes entirely outside the image are ignored.
func Annotate(img image.Image, boxes []Box) image.Image {
	dc := gg.NewContextForImage(img)
	bounds := img.Bounds()
	bw, bh := float64(bounds.Dx()), float64(bounds.Dy())

	dc.SetLineWidth(2)
	dc.SetDash(6, 4)
	for _, b := range boxes {
		if b.X >= bw || b.Y >= bh || b.X+b.W <= 0 || b.Y+b.H <= 0 {
			continue
		}
		dc.SetRGBA(0.9, 0.1, 0.1, 0.9)
		dc.DrawRectangle(b.X, b.Y, b.W, b.H)
		dc.Stroke()

		if b.Label != "" {
			ly := b.Y - 3
			if ly < 12 {
				ly = b.Y + 12
			}
			dc.DrawString(b.Label, b.X+2, ly)
		}
	}
	return dc.Image()
}
