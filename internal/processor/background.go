package processor

import (
	"context"
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, img image.Image) (image.Image, error)
}

// ChromaKeyRemover clears the region connected to the image border whose color is
// within Tolerance of the border's average color. Generated logos are usually drawn
// on a flat backdrop, which is what this targets.
type ChromaKeyRemover struct {
	Tolerance int
}

func NewChromaKeyRemover(tolerance int) *ChromaKeyRemover {
	if tolerance <= 0 {
		tolerance = 48
	}
	return &ChromaKeyRemover{Tolerance: tolerance}
}

func (r *ChromaKeyRemover) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dst := imaging.Clone(img)
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("empty image")
	}

	bg := borderAverage(dst)
	visited := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))

	push := func(x, y int) {
		idx := y*w + x
		if visited[idx] {
			return
		}
		visited[idx] = true
		if r.matches(dst, x, y, bg) {
			queue = append(queue, idx)
		}
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := idx%w, idx/w
		dst.Pix[y*dst.Stride+x*4+3] = 0

		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}

	return dst, nil
}

func (r *ChromaKeyRemover) matches(img *image.NRGBA, x, y int, bg [3]int) bool {
	off := y*img.Stride + x*4
	if img.Pix[off+3] == 0 {
		return true
	}
	for c := 0; c < 3; c++ {
		d := int(img.Pix[off+c]) - bg[c]
		if d < 0 {
			d = -d
		}
		if d > r.Tolerance {
			return false
		}
	}
	return true
}

func borderAverage(img *image.NRGBA) [3]int {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	var sum [3]int
	n := 0
	add := func(x, y int) {
		off := y*img.Stride + x*4
		for c := 0; c < 3; c++ {
			sum[c] += int(img.Pix[off+c])
		}
		n++
	}
	for x := 0; x < w; x++ {
		add(x, 0)
		add(x, h-1)
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		add(w-1, y)
	}
	return [3]int{sum[0] / n, sum[1] / n, sum[2] / n}
}
