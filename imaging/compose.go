package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"

	log "github.com/spf13/jwalterweatherman"
	"golang.org/x/image/draw"
)

// Merge pastes the images at paths left to right onto one canvas as wide as
// their sum and as tall as the tallest, and saves it as PNG at out.
func Merge(paths []string, out string) error {
	if len(paths) == 0 {
		return errors.New("no images to merge")
	}

	images := make([]image.Image, 0, len(paths))
	width, height := 0, 0
	for _, p := range paths {
		img, err := decode(p)
		if err != nil {
			return err
		}
		b := img.Bounds()
		width += b.Dx()
		height = max(height, b.Dy())
		images = append(images, img)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	x := 0
	for _, img := range images {
		b := img.Bounds()
		draw.Draw(canvas, image.Rect(x, 0, x+b.Dx(), b.Dy()), img, b.Min, draw.Src)
		x += b.Dx()
	}

	if err := encode(out, canvas); err != nil {
		return err
	}
	log.DEBUG.Printf("Saved merged image to %s", out)
	return nil
}

// FitSize is the largest size within maxW x maxH keeping the aspect ratio of
// size. Sizes already inside the bounds are returned unchanged.
func FitSize(size image.Point, maxW, maxH int) image.Point {
	if size.X <= maxW && size.Y <= maxH {
		return size
	}
	ratio := math.Min(float64(maxW)/float64(size.X), float64(maxH)/float64(size.Y))
	return image.Pt(
		max(1, int(math.Round(float64(size.X)*ratio))),
		max(1, int(math.Round(float64(size.Y)*ratio))),
	)
}

// Fit downscales the image at path in place to fit maxW x maxH. Failures are
// logged and leave the file untouched.
func Fit(path string, maxW, maxH int) {
	img, err := decode(path)
	if err != nil {
		log.ERROR.Printf("Cannot create thumbnail for %s: %v", path, err)
		return
	}

	b := img.Bounds()
	size := FitSize(b.Size(), maxW, maxH)
	if size == b.Size() {
		return
	}

	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	if err := encode(path, dst); err != nil {
		log.ERROR.Printf("Cannot create thumbnail for %s: %v", path, err)
		return
	}
	log.DEBUG.Printf("Resized %s from %v to %v", path, b.Size(), size)
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// encode writes to a sibling temp file first so a failed encode never
// truncates the original.
func encode(path string, img image.Image) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
