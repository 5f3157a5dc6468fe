package usecase

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// VINs are 17 characters and never use I, O, or Q.
var vinPattern = regexp.MustCompile(`[A-HJ-NPR-Z0-9]{17}`)

type VINOCRUseCase struct {
	log *zap.Logger
}

func NewVINOCRUseCase(log *zap.Logger) *VINOCRUseCase {
	return &VINOCRUseCase{log: log}
}

// ReadVIN runs OCR over a photo of the VIN plate or windshield etching and
// returns the first plausible VIN found.
func (u *VINOCRUseCase) ReadVIN(imageBytes []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	// Preprocess for better OCR: grayscale, more contrast, sharpen.
	processed := imaging.Grayscale(img)
	processed = imaging.AdjustContrast(processed, 20)
	processed = imaging.Sharpen(processed, 0.5)

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, processed, imaging.JPEG); err != nil {
		return "", fmt.Errorf("failed to encode processed image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to set image for OCR: %w", err)
	}
	if err := client.SetVariable("tessedit_char_whitelist", "ABCDEFGHJKLMNPRSTUVWXYZ0123456789"); err != nil {
		return "", fmt.Errorf("failed to configure OCR whitelist: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}

	vin, ok := ExtractVIN(text)
	if !ok {
		u.log.Debug("no VIN found in OCR output", zap.String("text", strings.TrimSpace(text)))
		return "", fmt.Errorf("no VIN found in image")
	}

	u.log.Info("VIN recognized", zap.String("vin", vin))
	return vin, nil
}

// ExtractVIN pulls the first 17-character VIN candidate out of raw OCR text.
// Spaces and line breaks inside the VIN are tolerated since OCR tends to
// split the plate text.
func ExtractVIN(text string) (string, bool) {
	collapsed := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, strings.ToUpper(text))

	match := vinPattern.FindString(collapsed)
	if match == "" {
		return "", false
	}
	return match, true
}
