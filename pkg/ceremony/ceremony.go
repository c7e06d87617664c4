// Package ceremony renders a single Shamir share for hand-off to one
// custodian during key generation (spec.md §4.D's "display once",
// enriched by §4.K): a QR code, a single-page PDF, or a full-screen
// terminal display that blocks until acknowledged. None of the three paths
// retain the share after display - the caller is responsible for letting
// the share value go out of scope once the ceremony step returns.
package ceremony

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/jung-kurt/gofpdf"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/nsf/termbox-go"

	"votingcore/pkg/shamir"
)

// qrModuleSize is the pixel width of one QR module in the rendered image.
const qrModuleSize = 6

// EncodeQRImage renders a share's display-format string as a QR code PNG,
// using the share transcription format of spec.md §6 as the payload.
func EncodeQRImage(s shamir.Share) ([]byte, error) {
	payload := shamir.FormatForDisplay(s)

	writer := qrcode.NewQRCodeWriter()
	matrix, err := writer.Encode(payload, gozxing.BarcodeFormat_QR_CODE, 0, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("ceremony: encoding qr matrix: %w", err)
	}

	img := matrixToImage(matrix, qrModuleSize)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("ceremony: encoding qr png: %w", err)
	}
	return buf.Bytes(), nil
}

func matrixToImage(matrix *gozxing.BitMatrix, scale int) image.Image {
	w, h := matrix.GetWidth(), matrix.GetHeight()
	out := image.NewGray(image.Rect(0, 0, w*scale, h*scale))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.Gray{Y: 255}
			if matrix.Get(x, y) {
				c = color.Gray{Y: 0}
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					out.SetGray(x*scale+dx, y*scale+dy, c)
				}
			}
		}
	}
	return out
}

// RenderPDF writes a single-page PDF containing a custodian's share index,
// its display-format text, and the corresponding QR code, to outPath.
func RenderPDF(s shamir.Share, outPath string) error {
	qrPNG, err := EncodeQRImage(s)
	if err != nil {
		return err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, fmt.Sprintf("Custodian Share #%d", s.Index), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 6,
		"Keep this share in a secure, offline location. It is one of several "+
			"shares required to reconstruct the election's decryption key; it "+
			"reveals nothing on its own.", "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Courier", "", 12)
	pdf.MultiCell(0, 8, shamir.FormatForDisplay(s), "1", "C", false)
	pdf.Ln(6)

	pdf.RegisterImageOptionsReader(
		"qr",
		gofpdf.ImageOptions{ImageType: "PNG"},
		bytes.NewReader(qrPNG),
	)
	pdf.ImageOptions("qr", 70, pdf.GetY(), 70, 70, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("ceremony: creating pdf file: %w", err)
	}
	defer f.Close()
	if err := pdf.Output(f); err != nil {
		return fmt.Errorf("ceremony: writing pdf: %w", err)
	}
	return nil
}

// DisplayTerminal paints a share full-screen and blocks until the operator
// presses a key, then clears the screen so the share never lingers in
// scrollback. termbox must not already be initialised by the caller.
func DisplayTerminal(s shamir.Share) error {
	if err := termbox.Init(); err != nil {
		return fmt.Errorf("ceremony: initialising terminal: %w", err)
	}
	defer termbox.Close()

	draw := func(lines []string) {
		termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
		for y, line := range lines {
			for x, r := range line {
				termbox.SetCell(x, y, r, termbox.ColorWhite, termbox.ColorBlack)
			}
		}
		termbox.Flush()
	}

	lines := []string{
		fmt.Sprintf("CUSTODIAN SHARE #%d", s.Index),
		"",
		shamir.FormatForDisplay(s),
		"",
		"Record this value offline. Press any key to clear the screen.",
	}
	draw(lines)

	for {
		ev := termbox.PollEvent()
		if ev.Type == termbox.EventKey {
			break
		}
	}

	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	termbox.Flush()
	return nil
}

// WriteQRImage is a convenience wrapper writing the QR PNG to an arbitrary
// writer instead of a file, for callers embedding it elsewhere.
func WriteQRImage(s shamir.Share, w io.Writer) error {
	png, err := EncodeQRImage(s)
	if err != nil {
		return err
	}
	_, err = w.Write(png)
	return err
}
