package testsupport

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path string, content []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WritePNG writes a small PNG whose pixels are derived from seed. Images with
// the same seed are identical; different seeds produce visibly different
// gradients.
func WritePNG(t testing.TB, path string, seed int) {
	t.Helper()

	const size = 32
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			var v uint8
			switch seed % 3 {
			case 0:
				v = uint8(x * 8)
			case 1:
				v = uint8(y * 8)
			default:
				v = uint8(255 - x*8)
			}
			v += uint8(seed / 3 * 40)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 0xff})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}
