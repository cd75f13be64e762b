package faxserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"gofaxmodem/gofaxlib"
)

// FaxJob is one outbound transmission or polling request, read from a JSON
// file in the queue directory.
type FaxJob struct {
	// Job UUID (generated when the job is created, or when we receive it)
	UUID     uuid.UUID `json:"uuid,omitempty"`
	CallUUID uuid.UUID `json:"call_uuid"`

	CalleeNumber   string   `json:"number,omitempty"`       // Destination number
	CallerIdNumber string   `json:"cidnum,omitempty"`       // Caller ID number
	CallerIdName   string   `json:"cidname,omitempty"`      // Caller ID name
	Files          []string `json:"files,omitempty"`        // G3 page files, or one TIFF/PDF to convert
	UseECM         bool     `json:"use_ecm,omitempty"`      // Use ECM (Error Correction Mode)
	DisableV17     bool     `json:"disable_v_17,omitempty"` // Disable V.17 (for lower baud rate)
	Identifier     string   `json:"ident,omitempty"`        // Local station ID
	Modem          string   `json:"modem,omitempty"`        // Modem name, any when empty
	Poll           bool     `json:"poll,omitempty"`         // Receive the remote's document instead of sending
	Owner          string   `json:"owner,omitempty"`
	Jobtag         string   `json:"jobtag,omitempty"`
	NotifyTo       string   `json:"notify_to,omitempty"` // E-mail address for the result report
	Resolution     string   `json:"resolution,omitempty"` // "fine" or "normal"

	Result *gofaxlib.FaxResult `json:"result,omitempty"`

	// These fields may be updated later in the process:
	NPages     int           `json:"npages,omitempty"`     // number of pages sent
	DataFormat string        `json:"dataformat,omitempty"` // encoding or data format for the fax
	SignalRate int           `json:"signalrate,omitempty"` // signal rate (transfer rate)
	CSI        string        `json:"csi,omitempty"`        // remote Caller Station Identification
	Status     string        `json:"status,omitempty"`     // current status (e.g., "Dialing", "Completed", etc.)
	Returned   SendResult    `json:"returned,omitempty"`   // returned result code (e.g., SendDone, SendRetry, SendFailed)
	TotDials   int           `json:"totdials"`             // total attempted calls (as an int)
	NDials     int           `json:"ndials"`               // consecutive failed call attempts
	TotTries   int           `json:"tottries"`             // total answered or attempted calls
	JobTime    time.Duration `json:"jobtime,omitempty"`
	ConnTime   time.Duration `json:"conntime,omitempty"`
	Ts         time.Time     `json:"ts"` // timestamp of the job
}

// NewFaxJob initializes a new FaxJob with a random UUID and ECM enabled.
func NewFaxJob() *FaxJob {
	return &FaxJob{
		UUID:   uuid.New(),
		UseECM: true,
		Ts:     time.Now(),
	}
}

// ReadFaxJob parses a queued job file. Missing UUIDs are generated.
func ReadFaxJob(filename string) (*FaxJob, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	job := NewFaxJob()
	if err := json.Unmarshal(data, job); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if job.UUID == uuid.Nil {
		job.UUID = uuid.New()
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return job, nil
}

// Validate checks that the job can be attempted.
func (j *FaxJob) Validate() error {
	if j.CalleeNumber == "" {
		return errors.New("number to dial is empty")
	}
	if !j.Poll && len(j.Files) == 0 {
		return errors.New("no document to send")
	}
	return nil
}
