package faxserver

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"github.com/lestrrat-go/strftime"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/ccitt"
	"golang.org/x/image/tiff"

	"gofaxmodem/faxmodem"
	"gofaxmodem/gofaxlib"
	"gofaxmodem/t30"
)

const defaultFileNameFormat = "fax_%Y%m%d_%H%M%S"

// errNoImage is returned for page data that cannot be rendered, e.g. MR.
var errNoImage = errors.New("spool: page data not renderable")

// SpooledPage is one page written to the spool directory.
type SpooledPage struct {
	Number int
	Params t30.Params
	Good   bool
	Raw    string // raw fill-order-LSB T.4/T.6 data
	TIFF   string // empty when the page could not be rendered

	img *image.Gray
}

// Spool stores received pages. It implements faxmodem.Sink.
type Spool struct {
	base       string
	pdf        bool
	id         uuid.UUID
	logManager *gofaxlib.LogManager

	buf   bytes.Buffer
	pages []SpooledPage
}

var _ faxmodem.Sink = (*Spool)(nil)

// NewSpool prepares a spool for the session id in dir. format is a
// strftime pattern for the file names, expanded at ts.
func NewSpool(dir, format string, ts time.Time, id uuid.UUID, pdf bool, lm *gofaxlib.LogManager) (*Spool, error) {
	if format == "" {
		format = defaultFileNameFormat
	}
	name, err := strftime.Format(format, ts)
	if err != nil {
		return nil, fmt.Errorf("file name format %q: %w", format, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if lm == nil {
		lm = gofaxlib.NewDiscardLogManager()
	}
	short := id.String()
	short = short[strings.LastIndex(short, "-")+1:]
	return &Spool{
		base:       filepath.Join(dir, name+"_"+short),
		pdf:        pdf,
		id:         id,
		logManager: lm,
	}, nil
}

func (s *Spool) log(level logrus.Level, format string, args ...interface{}) {
	s.logManager.SendLog(s.logManager.BuildLog(
		"Spool", format, level, map[string]interface{}{"uuid": s.id.String()}, args...))
}

// WriteData buffers page data.
func (s *Spool) WriteData(data []byte) error {
	s.buf.Write(data)
	return nil
}

// EndPage writes the buffered page data and, when the data format allows,
// a rendered TIFF of the page.
func (s *Spool) EndPage(p faxmodem.Page) error {
	defer s.buf.Reset()

	sp := SpooledPage{
		Number: len(s.pages) + 1,
		Params: p.Params,
		Good:   p.Good,
		Raw:    fmt.Sprintf("%s_p%03d.g3", s.base, len(s.pages)+1),
	}
	if err := os.WriteFile(sp.Raw, s.buf.Bytes(), 0644); err != nil {
		return err
	}

	img, err := RenderPage(s.buf.Bytes(), p.Params)
	if err != nil {
		s.log(logrus.WarnLevel, "Page %d kept as raw data only: %v", sp.Number, err)
	} else {
		sp.img = img
		sp.TIFF = strings.TrimSuffix(sp.Raw, ".g3") + ".tif"
		if err := writeTIFF(sp.TIFF, img); err != nil {
			return err
		}
	}
	s.pages = append(s.pages, sp)
	s.log(logrus.InfoLevel, "Page %d spooled to %s", sp.Number, sp.Raw)
	return nil
}

// Pages returns the spooled pages in order.
func (s *Spool) Pages() []SpooledPage {
	return s.pages
}

// Files returns the paths of all files written.
func (s *Spool) Files() []string {
	var files []string
	for _, p := range s.pages {
		files = append(files, p.Raw)
		if p.TIFF != "" {
			files = append(files, p.TIFF)
		}
	}
	return files
}

// Close writes the PDF of the rendered pages when enabled and returns its
// path, or "" when none was written.
func (s *Spool) Close() (string, error) {
	if !s.pdf {
		return "", nil
	}
	var rendered []SpooledPage
	for _, p := range s.pages {
		if p.img != nil {
			rendered = append(rendered, p)
		}
	}
	if len(rendered) == 0 {
		return "", nil
	}
	path := s.base + ".pdf"
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WritePDF(f, rendered); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// RenderPage decodes MH or MMR page data into a grayscale image.
func RenderPage(data []byte, p t30.Params) (*image.Gray, error) {
	var sf ccitt.SubFormat
	switch p.DF {
	case t30.DFMH:
		sf = ccitt.Group3
	case t30.DFMMR:
		sf = ccitt.Group4
	default:
		return nil, fmt.Errorf("%w: %s", errNoImage, p.DataFormatName())
	}
	width := p.PageWidth()

	r := ccitt.NewReader(bytes.NewReader(data), ccitt.LSB, sf, width, ccitt.AutoDetectHeight, &ccitt.Options{})
	n, err := io.Copy(io.Discard, r)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("%w: %v", errNoImage, err)
	}
	height := int(n) / ((width + 7) / 8)
	if height == 0 {
		return nil, errNoImage
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	if err := ccitt.DecodeIntoGray(img, bytes.NewReader(data), ccitt.LSB, sf, &ccitt.Options{}); err != nil {
		return nil, fmt.Errorf("%w: %v", errNoImage, err)
	}
	return img, nil
}

func writeTIFF(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WritePDF combines rendered pages into one PDF, sized by the page
// resolution.
func WritePDF(w io.Writer, pages []SpooledPage) error {
	if len(pages) == 0 {
		return fmt.Errorf("no pages to write")
	}
	pdf := fpdf.New("P", "mm", "", "")
	pdf.SetAutoPageBreak(false, 0)

	for i, p := range pages {
		if p.img == nil {
			continue
		}
		xdpi, ydpi := p.Params.Resolution()
		b := p.img.Bounds()
		widthMM := float64(b.Dx()) / float64(xdpi) * 25.4
		heightMM := float64(b.Dy()) / float64(ydpi) * 25.4
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: widthMM, Ht: heightMM})

		var buf bytes.Buffer
		if err := png.Encode(&buf, toBitonal(p.img)); err != nil {
			return fmt.Errorf("encode page %d PNG: %w", i+1, err)
		}
		name := fmt.Sprintf("page%d", i)
		pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, &buf)
		pdf.ImageOptions(name, 0, 0, widthMM, heightMM, false, fpdf.ImageOptions{}, 0, "")
	}
	return pdf.Output(w)
}

// toBitonal converts a grayscale page to a 1-bit paletted image.
func toBitonal(gray *image.Gray) *image.Paletted {
	bounds := gray.Bounds()
	dst := image.NewPaletted(bounds, color.Palette{color.White, color.Black})
	w := bounds.Dx()
	for y := 0; y < bounds.Dy(); y++ {
		srcRow := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x, v := range srcRow {
			if v < 128 {
				dstRow[x] = 1
			}
		}
	}
	return dst
}
