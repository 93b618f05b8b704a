package vision

import (
	"image"

	"github.com/disintegration/imaging"
)

// toCHW resizes the image to targetW×targetH and converts it to CHW
// float32 with per-channel normalization: pixel = (pixel - mean) / std.
func toCHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := imaging.Resize(img, targetW, targetH, imaging.Linear)
	bounds := resized.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	data := make([]float32, 3*h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			idx := y*w + x
			data[0*h*w+idx] = (float32(r>>8) - mean[0]) / std[0]
			data[1*h*w+idx] = (float32(g>>8) - mean[1]) / std[1]
			data[2*h*w+idx] = (float32(b>>8) - mean[2]) / std[2]
		}
	}
	return data
}

// cropPadded extracts a region expanded by padFrac on each side, clamped
// to the image bounds.
func cropPadded(img image.Image, x1, y1, x2, y2 int, padFrac float64) image.Image {
	padW := int(float64(x2-x1) * padFrac)
	padH := int(float64(y2-y1) * padFrac)
	rect := image.Rect(x1-padW, y1-padH, x2+padW, y2+padH).Intersect(img.Bounds())
	if rect.Empty() {
		return nil
	}
	return imaging.Crop(img, rect)
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
