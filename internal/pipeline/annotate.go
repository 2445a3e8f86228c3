package pipeline

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var annotationColor = color.RGBA{G: 255, A: 255}

const (
	boxThickness = 2
	labelGap     = 10
)

// drawBox outlines r on dst.
func drawBox(dst draw.Image, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	t := boxThickness
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}

// drawLabel writes text just above r, or inside its top edge when there is
// no room above.
func drawLabel(dst draw.Image, r image.Rectangle, text string, c color.Color) {
	face := basicfont.Face7x13
	y := r.Min.Y - labelGap
	if y-face.Ascent < dst.Bounds().Min.Y {
		y = r.Min.Y + face.Ascent + boxThickness
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(r.Min.X, y),
	}
	d.DrawString(text)
}
