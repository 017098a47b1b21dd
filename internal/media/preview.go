package media

import (
	"fmt"

	"github.com/disintegration/imaging"
)

// PreviewSize bounds both sides of the preview image.
const PreviewSize = 320

// MakePreview saves the first frame of the GIF at src as a PNG at dst, fitted
// inside PreviewSize x PreviewSize.
func MakePreview(src, dst string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open gif: %w", err)
	}
	thumb := imaging.Fit(img, PreviewSize, PreviewSize, imaging.Lanczos)
	if err := imaging.Save(thumb, dst); err != nil {
		return fmt.Errorf("failed to save preview: %w", err)
	}
	return nil
}
