package faxserver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"gofaxmodem/hdlc"
	"gofaxmodem/t30"
)

// ErrNoDocument is returned when a job's files hold no page.
var ErrNoDocument = errors.New("document has no pages")

// Document is the coded form of a job ready for faxmodem.Send.
type Document struct {
	Params t30.Params
	Pages  [][]byte

	temp []string
}

// Close removes converted page files.
func (d *Document) Close() {
	for _, f := range d.temp {
		os.Remove(f)
	}
}

// docParams returns the coding of pages produced for job: MH, 1728 pixels,
// fine resolution unless the job asks for normal.
func docParams(job *FaxJob) t30.Params {
	p := t30.Params{VR: t30.VRFine, WD: t30.WD1728, LN: t30.LNUnlimited, DF: t30.DFMH}
	if job.Resolution == "normal" {
		p.VR = t30.VRNormal
	}
	return p
}

// LoadDocument reads the pages of job. Files ending in .g3 are raw MH pages
// in transmission bit order and used as they are; anything else is handed
// to ghostscript and split into pages.
func LoadDocument(ctx context.Context, job *FaxJob, tempDir string) (*Document, error) {
	doc := &Document{Params: docParams(job)}
	for _, f := range job.Files {
		if strings.EqualFold(filepath.Ext(f), ".g3") {
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, err
			}
			doc.Pages = append(doc.Pages, data)
			continue
		}
		pages, err := convertToG3(ctx, f, tempDir, job, doc.Params)
		doc.temp = append(doc.temp, pages...)
		if err != nil {
			doc.Close()
			return nil, err
		}
		for _, p := range pages {
			data, err := os.ReadFile(p)
			if err != nil {
				doc.Close()
				return nil, err
			}
			// ghostscript writes MSB first
			hdlc.ReverseBytes(data)
			doc.Pages = append(doc.Pages, data)
		}
	}
	if len(doc.Pages) == 0 {
		doc.Close()
		return nil, ErrNoDocument
	}
	return doc, nil
}

func convertToG3(ctx context.Context, file, tempDir string, job *FaxJob, p t30.Params) ([]string, error) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	pattern := filepath.Join(tempDir, fmt.Sprintf("job_%s_%s_%%03d.g3", job.UUID, strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))))
	_, y := p.Resolution()
	cmd := exec.CommandContext(ctx, "gs",
		"-q", "-dNOPAUSE", "-dBATCH", "-dSAFER", "-dPDFFitPage",
		fmt.Sprintf("-r204x%d", y),
		fmt.Sprintf("-g1728x%d", 11*y),
		"-sDEVICE=faxg3",
		"-sOutputFile="+pattern,
		"--", file,
	)
	out, err := cmd.CombinedOutput()
	pages, _ := filepath.Glob(strings.Replace(pattern, "%03d", "[0-9][0-9][0-9]", 1))
	sort.Strings(pages)
	if err != nil {
		return pages, fmt.Errorf("failed to convert document %s: %w: %s", file, err, strings.TrimSpace(string(out)))
	}
	return pages, nil
}
