package faxserver

import (
	"encoding/base64"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"

	"gofaxmodem/gofaxlib"
)

// NotifyFaxResults is the report of all attempts of one job.
type NotifyFaxResults struct {
	Results []*gofaxlib.FaxResult `json:"results,omitempty"`
	FaxJob  *FaxJob               `json:"fax_job,omitempty"`
}

// GenerateFaxResultsPDF writes the report to dir and returns its path.
func (nfr *NotifyFaxResults) GenerateFaxResultsPDF(dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	outputPath := filepath.Join(dir, fmt.Sprintf("notify_%s.pdf", nfr.FaxJob.UUID.String()))

	// Create a new A4 portrait PDF document.
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	direction := "Transmission"
	if nfr.FaxJob.Poll {
		direction = "Polling"
	}

	// Title and header.
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, "Fax "+direction+" Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(190, 8, "ID: "+nfr.FaxJob.UUID.String(), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 8, "Number: "+nfr.FaxJob.CalleeNumber, "", 1, "C", false, 0, "")
	pdf.CellFormat(190, 8, "Queued: "+nfr.FaxJob.Ts.Format("2006-01-02 15:04:05"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	columns := map[string]float64{
		"Call ID":   30,
		"Timestamp": 40,
		"Status":    25,
		"Pages":     15,
		"Message":   80,
	}
	order := []string{"Call ID", "Timestamp", "Status", "Pages", "Message"}

	pdf.SetFont("Arial", "B", 12)
	for _, colName := range order {
		width := columns[colName]
		pdf.CellFormat(width, 10, fitText(pdf, colName, width), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	results := append([]*gofaxlib.FaxResult(nil), nfr.Results...)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].EndTs.Before(results[j].EndTs)
	})

	pdf.SetFont("Arial", "", 10)
	for _, res := range results {
		// For Call ID, display only the last segment of the UUID.
		parts := strings.Split(res.UUID.String(), "-")
		shortCallID := parts[len(parts)-1]

		success := "failed"
		if res.Success {
			success = "success"
		}
		message := res.ResultText
		if res.RemoteID != "" {
			message = fmt.Sprintf("%s (%s)", message, res.RemoteID)
		}

		rowData := map[string]string{
			"Call ID":   shortCallID,
			"Timestamp": res.EndTs.Format("2006-01-02 15:04:05"),
			"Status":    success,
			"Pages":     fmt.Sprintf("%d/%d", res.TransferredPages, res.TotalPages),
			"Message":   message,
		}
		for _, colName := range order {
			width := columns[colName]
			pdf.CellFormat(width, 10, fitText(pdf, rowData[colName], width), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	err := pdf.OutputFileAndClose(outputPath)
	return outputPath, err
}

// buildMessage assembles a MIME message with a plain text body and an
// optional file attachment.
func buildMessage(subject, to, body, attachmentPath string) ([]byte, error) {
	boundary := "fax-" + uuid.NewString()
	from := fmt.Sprintf("%s <%s>", gofaxlib.Config.SMTP.FromName, gofaxlib.Config.SMTP.FromAddress)

	var msg strings.Builder
	for _, h := range [][2]string{
		{"From", from},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", fmt.Sprintf("multipart/mixed; boundary=%s", boundary)},
	} {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], h[1]))
	}
	msg.WriteString("\r\n")

	// Plain text part.
	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body + "\r\n")

	if attachmentPath != "" {
		attachmentBytes, err := os.ReadFile(attachmentPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		encodedAttachment := base64.StdEncoding.EncodeToString(attachmentBytes)

		filename := filepath.Base(attachmentPath)
		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString(fmt.Sprintf("Content-Type: application/pdf; name=\"%s\"\r\n", filename))
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=\"%s\"\r\n", filename))
		msg.WriteString("\r\n")
		const maxLineLen = 76
		for i := 0; i < len(encodedAttachment); i += maxLineLen {
			end := min(i+maxLineLen, len(encodedAttachment))
			msg.WriteString(encodedAttachment[i:end] + "\r\n")
		}
	}
	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return []byte(msg.String()), nil
}

// SendEmailWithAttachment sends an email with a plain text body and, when
// attachmentPath is set, a file attachment.
func SendEmailWithAttachment(subject, to, body, attachmentPath string) error {
	msg, err := buildMessage(subject, to, body, attachmentPath)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", gofaxlib.Config.SMTP.Host, gofaxlib.Config.SMTP.Port)
	var auth smtp.Auth
	if gofaxlib.Config.SMTP.Username != "" {
		auth = smtp.PlainAuth("", gofaxlib.Config.SMTP.Username, gofaxlib.Config.SMTP.Password, gofaxlib.Config.SMTP.Host)
	}

	if err := smtp.SendMail(addr, auth, gofaxlib.Config.SMTP.FromAddress, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// receivedBody describes a received fax for the notification mail.
func receivedBody(modemName string, res *gofaxlib.FaxResult, files []string) string {
	res = res.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "Fax received on %s at %s\r\n", modemName, res.StartTs.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Remote ID: %s\r\n", res.RemoteID)
	fmt.Fprintf(&b, "Pages: %d\r\n", res.TransferredPages)
	if res.NegotiateCount > 0 {
		fmt.Fprintf(&b, "Parameters: %s\r\n", res.Params)
	}
	if !res.Success {
		fmt.Fprintf(&b, "Result: %s\r\n", res.HangupCause)
	}
	for _, f := range files {
		fmt.Fprintf(&b, "File: %s\r\n", f)
	}
	return b.String()
}

// fitText ensures that the given text fits within the specified width.
// If the text is too long, it truncates it and appends an ellipsis.
func fitText(pdf *fpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	ellipsis := "..."
	for pdf.GetStringWidth(text+ellipsis) > width && len(text) > 0 {
		text = text[:len(text)-1]
	}
	return text + ellipsis
}
