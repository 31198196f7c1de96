// Package render draws positions as PNG images for the board png command.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/chess-coach/internal/board"
)

const (
	DefaultSquareSize = 64
	sideMargin        = 24
	titleHeight       = 40
	panelRadius       = 8
)

// Options controls overlays. LastMove shades the squares of the move just
// played; Suggestion draws an arrow, typically the engine's best move.
type Options struct {
	Title      string
	LastMove   *board.Move
	Suggestion *board.Move
	FromBlack  bool
	SquareSize int
}

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{187, 136, 96, 255}
	backgroundColor = color.RGBA{28, 31, 46, 255}
	lastMoveFill    = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	suggestionArrow = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	titleColor      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	coordColor      = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// RenderPNG draws pos with the requested overlays and encodes it as PNG.
func RenderPNG(ctx context.Context, pos *board.Position, opts Options) ([]byte, error) {
	if pos == nil {
		return nil, fmt.Errorf("position is nil")
	}
	sq := opts.SquareSize
	if sq <= 0 {
		sq = DefaultSquareSize
	}
	boardSize := sq * 8
	width := boardSize + sideMargin*2
	height := boardSize + titleHeight + sideMargin*2
	origin := image.Point{X: sideMargin, Y: titleHeight + sideMargin}
	g := geometry{square: sq, origin: origin, flipped: opts.FromBlack}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = board.ColorName(pos.Turn()) + " to move"
	}
	drawTitle(img, title, image.Rect(origin.X, 8, origin.X+boardSize, titleHeight))

	for _, s := range allSquares() {
		clr := lightSquare
		if (int(s.File())+int(s.Rank()))%2 == 0 {
			clr = darkSquare
		}
		imagedraw.Draw(img, g.rect(s), image.NewUniform(clr), image.Point{}, imagedraw.Src)
	}
	if m := opts.LastMove; m != nil {
		imagedraw.Draw(img, g.rect(m.From), image.NewUniform(lastMoveFill), image.Point{}, imagedraw.Over)
		imagedraw.Draw(img, g.rect(m.To), image.NewUniform(lastMoveFill), image.Point{}, imagedraw.Over)
	}
	for _, s := range allSquares() {
		piece := pos.Piece(s)
		if piece == nchess.NoPiece {
			continue
		}
		glyph, err := pieceGlyph(piece, sq)
		if err != nil {
			return nil, err
		}
		imagedraw.Draw(img, g.rect(s), glyph, image.Point{}, imagedraw.Over)
	}
	if m := opts.Suggestion; m != nil {
		drawArrow(img, g.center(m.From), g.center(m.To), sq, suggestionArrow)
	}
	drawCoordinates(img, g)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

type geometry struct {
	square  int
	origin  image.Point
	flipped bool
}

func (g geometry) cell(s nchess.Square) (col, row int) {
	col, row = int(s.File()), 7-int(s.Rank())
	if g.flipped {
		col, row = 7-col, 7-row
	}
	return col, row
}

func (g geometry) rect(s nchess.Square) image.Rectangle {
	col, row := g.cell(s)
	x := g.origin.X + col*g.square
	y := g.origin.Y + row*g.square
	return image.Rect(x, y, x+g.square, y+g.square)
}

func (g geometry) center(s nchess.Square) pointF {
	r := g.rect(s)
	return pointF{X: float64(r.Min.X) + float64(g.square)/2, Y: float64(r.Min.Y) + float64(g.square)/2}
}

func allSquares() []nchess.Square {
	out := make([]nchess.Square, 0, 64)
	for i := 0; i < 64; i++ {
		out = append(out, nchess.Square(i))
	}
	return out
}

func drawTitle(img *image.RGBA, text string, rect image.Rectangle) {
	drawRoundedPanel(img, rect, panelRadius, color.NRGBA{R: 44, G: 48, B: 68, A: 255})
	d := &font.Drawer{Dst: img, Face: basicfont.Face7x13, Src: image.NewUniform(titleColor)}
	m := d.Face.Metrics()
	w := d.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-w)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+m.Ascent.Ceil()-m.Descent.Ceil())/2
	d.Dot = fixed.P(x, baseline)
	d.DrawString(text)
}

func drawCoordinates(img *image.RGBA, g geometry) {
	d := &font.Drawer{Dst: img, Face: basicfont.Face7x13, Src: image.NewUniform(coordColor)}
	ascent := d.Face.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		fileSq := nchess.Square(i)
		rankSq := nchess.Square(i * 8)

		fr := g.rect(fileSq)
		label := fileSq.File().String()
		w := d.MeasureString(label).Round()
		d.Dot = fixed.P(fr.Min.X+(g.square-w)/2, g.origin.Y+8*g.square+ascent+4)
		d.DrawString(label)

		rr := g.rect(rankSq)
		label = rankSq.Rank().String()
		w = d.MeasureString(label).Round()
		d.Dot = fixed.P(g.origin.X-sideMargin/2-w/2, rr.Min.Y+(g.square+ascent)/2)
		d.DrawString(label)
	}
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if rect.Empty() {
		return
	}
	if maxR := min(rect.Dx(), rect.Dy()) / 2; radius > maxR {
		radius = maxR
	}
	fill := image.NewUniform(clr)
	imagedraw.Draw(img, image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	for _, c := range []image.Point{
		{rect.Min.X + radius, rect.Min.Y + radius},
		{rect.Max.X - radius - 1, rect.Min.Y + radius},
		{rect.Min.X + radius, rect.Max.Y - radius - 1},
		{rect.Max.X - radius - 1, rect.Max.Y - radius - 1},
	} {
		for y := -radius; y <= radius; y++ {
			for x := -radius; x <= radius; x++ {
				if x*x+y*y > radius*radius {
					continue
				}
				// quarter discs only fill the corners left open above
				px, py := c.X+x, c.Y+y
				if px >= rect.Min.X+radius && px < rect.Max.X-radius {
					continue
				}
				if py >= rect.Min.Y+radius && py < rect.Max.Y-radius {
					continue
				}
				blendPixel(img, px, py, clr)
			}
		}
	}
}

type pointF struct {
	X float64
	Y float64
}

// drawArrow draws a shaft and head from start to end, stopping short of the
// destination square's center.
func drawArrow(img *image.RGBA, start, end pointF, square int, clr color.Color) {
	dx, dy := end.X-start.X, end.Y-start.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	baseLength := length - float64(square)*0.45
	if baseLength < float64(square)*0.35 {
		baseLength = length * 0.6
	}
	half := float64(square) * 0.12
	head := float64(square) * 0.3
	baseX, baseY := start.X+dirX*baseLength, start.Y+dirY*baseLength

	a := pointF{start.X - perpX*half, start.Y - perpY*half}
	b := pointF{start.X + perpX*half, start.Y + perpY*half}
	c := pointF{baseX + perpX*half, baseY + perpY*half}
	d := pointF{baseX - perpX*half, baseY - perpY*half}
	fillTriangle(img, a, b, c, clr)
	fillTriangle(img, a, c, d, clr)
	fillTriangle(img, end,
		pointF{baseX - perpX*head, baseY - perpY*head},
		pointF{baseX + perpX*head, baseY + perpY*head},
		clr)
}

func fillTriangle(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(math.Min(a.X, math.Min(b.X, c.X))))
	maxX := int(math.Ceil(math.Max(a.X, math.Max(b.X, c.X))))
	minY := int(math.Floor(math.Min(a.Y, math.Min(b.Y, c.Y))))
	maxY := int(math.Ceil(math.Max(a.Y, math.Max(b.Y, c.Y))))
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return
	}
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			alpha := ((b.Y-c.Y)*(px-c.X) + (c.X-b.X)*(py-c.Y)) / denom
			beta := ((c.Y-a.Y)*(px-c.X) + (a.X-c.X)*(py-c.Y)) / denom
			if alpha >= 0 && beta >= 0 && 1-alpha-beta >= 0 {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

// blendPixel composites clr over the pixel at (x, y) with source-over.
func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	inv := 1 - float64(sa)/0xffff
	mix := func(src uint32, dst uint8) uint8 {
		v := float64(src)/0xffff*255 + float64(dst)*inv
		return uint8(math.Min(255, math.Max(0, v+0.5)))
	}
	img.SetRGBA(x, y, color.RGBA{
		R: mix(sr, dst.R),
		G: mix(sg, dst.G),
		B: mix(sb, dst.B),
		A: mix(sa, dst.A),
	})
}
