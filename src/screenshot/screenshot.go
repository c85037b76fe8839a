package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"time"

	"github.com/kbinani/screenshot"
)

// DebugSaveEnvVar, when "true", writes every capture to the working directory.
const DebugSaveEnvVar = "SCREEN_READER_DEBUG_SAVE_IMAGES"

// Screen captures the full virtual screen. It satisfies the orchestrator's
// capture collaborator.
type Screen struct{}

func (Screen) CaptureScreen() ([]byte, error) {
	return CaptureScreen()
}

// Capture captures the union of all active displays.
func Capture() (*image.RGBA, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays found")
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	img, err := screenshot.CaptureRect(union)
	if err != nil {
		return nil, fmt.Errorf("failed to capture %v: %w", union, err)
	}
	return img, nil
}

// CaptureScreen captures every display and returns PNG bytes.
func CaptureScreen() ([]byte, error) {
	img, err := Capture()
	if err != nil {
		return nil, err
	}
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	log.Printf("screenshot: captured %dx%d (%d bytes)", img.Bounds().Dx(), img.Bounds().Dy(), len(data))

	if os.Getenv(DebugSaveEnvVar) == "true" {
		name := fmt.Sprintf("debug_capture_%d.png", time.Now().UnixNano())
		if err := os.WriteFile(name, data, 0600); err != nil {
			log.Printf("screenshot: could not save debug image: %v", err)
		} else {
			log.Printf("screenshot: saved %s", name)
		}
	}
	return data, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return len(data) >= len(pngMagic) && bytes.Equal(data[:len(pngMagic)], pngMagic)
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
