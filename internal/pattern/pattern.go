// Package pattern renders test frames in packed YUYV 4:2:2.
package pattern

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Bars are the classic colour bars, left to right.
var Bars = []color.RGBA{
	{R: 255, G: 255, B: 255, A: 255}, // white
	{R: 255, G: 255, B: 0, A: 255},   // yellow
	{R: 0, G: 255, B: 255, A: 255},   // cyan
	{R: 0, G: 255, B: 0, A: 255},     // green
	{R: 255, G: 0, B: 255, A: 255},   // magenta
	{R: 255, G: 0, B: 0, A: 255},     // red
	{R: 0, G: 0, B: 255, A: 255},     // blue
	{R: 0, G: 0, B: 0, A: 255},       // black
}

const (
	markerWidth = 16
	markerStep  = 8
	textPadding = 6
)

var (
	markerColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	textColor   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	textBg      = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// Generator draws colour bars with a marker that moves one step per frame and a
// frame counter in the lower left corner. A Generator is not safe for
// concurrent use.
type Generator struct {
	width  int
	height int
	label  string
	base   *image.RGBA
	canvas *image.RGBA
	face   font.Face
}

// NewGenerator creates a generator for frames of the given size. Width must be
// even. label is drawn before the frame counter.
func NewGenerator(width, height int, label string) (*Generator, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	rect := image.Rect(0, 0, width, height)
	g := &Generator{
		width:  width,
		height: height,
		label:  label,
		base:   image.NewRGBA(rect),
		canvas: image.NewRGBA(rect),
		face:   basicfont.Face7x13,
	}

	barWidth := (width + len(Bars) - 1) / len(Bars)
	for i, c := range Bars {
		bar := image.Rect(i*barWidth, 0, min((i+1)*barWidth, width), height)
		draw.Draw(g.base, bar, image.NewUniform(c), image.Point{}, draw.Src)
	}
	return g, nil
}

// FrameSize is the number of bytes a YUYV frame occupies.
func (g *Generator) FrameSize() int {
	return g.width * g.height * 2
}

// Fill renders frame number sequence into frame as YUYV. Frames shorter than
// FrameSize are left untouched.
func (g *Generator) Fill(frame []byte, sequence uint32) {
	if len(frame) < g.FrameSize() {
		return
	}
	g.Render(sequence)
	encodeYUYV(frame, g.canvas)
}

// Render draws frame number sequence and returns the RGBA canvas. The image is
// reused by the next call.
func (g *Generator) Render(sequence uint32) *image.RGBA {
	copy(g.canvas.Pix, g.base.Pix)

	span := g.width + markerWidth
	x := int(uint64(sequence)*markerStep%uint64(span)) - markerWidth
	marker := image.Rect(x, 0, x+markerWidth, g.height).Intersect(g.canvas.Bounds())
	draw.Draw(g.canvas, marker, image.NewUniform(markerColor), image.Point{}, draw.Src)

	g.drawText(fmt.Sprintf("%s frame %d", g.label, sequence))
	return g.canvas
}

func (g *Generator) drawText(text string) {
	d := &font.Drawer{
		Dst:  g.canvas,
		Src:  image.NewUniform(textColor),
		Face: g.face,
	}

	metrics := g.face.Metrics()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()
	textWidth := d.MeasureString(text).Ceil()

	bg := image.Rect(0, g.height-textHeight-2*textPadding, textWidth+2*textPadding, g.height)
	draw.Draw(g.canvas, bg.Intersect(g.canvas.Bounds()), image.NewUniform(textBg), image.Point{}, draw.Src)

	d.Dot = fixed.Point26_6{
		X: fixed.I(textPadding),
		Y: fixed.I(g.height-textPadding) - metrics.Descent,
	}
	d.DrawString(text)
}

// encodeYUYV packs img into dst. Chroma is averaged over each horizontal pixel pair.
func encodeYUYV(dst []byte, img *image.RGBA) {
	b := img.Bounds()
	o := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x += 2 {
			p := row[x*4:]
			y0, u0, v0 := color.RGBToYCbCr(p[0], p[1], p[2])
			y1, u1, v1 := color.RGBToYCbCr(p[4], p[5], p[6])
			dst[o] = y0
			dst[o+1] = uint8((uint16(u0) + uint16(u1)) / 2)
			dst[o+2] = y1
			dst[o+3] = uint8((uint16(v0) + uint16(v1)) / 2)
			o += 4
		}
	}
}

// DecodeYUYV wraps a packed YUYV frame as a 4:2:2 YCbCr image.
func DecodeYUYV(frame []byte, width, height int) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if len(frame) < width*height*2 {
		return nil, fmt.Errorf("frame is %d bytes, need %d", len(frame), width*height*2)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	o := 0
	for y := range height {
		yRow := img.Y[y*img.YStride:]
		cRow := y * img.CStride
		for x := 0; x < width; x += 2 {
			yRow[x] = frame[o]
			img.Cb[cRow+x/2] = frame[o+1]
			yRow[x+1] = frame[o+2]
			img.Cr[cRow+x/2] = frame[o+3]
			o += 4
		}
	}
	return img, nil
}
