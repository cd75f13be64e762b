// This file is part of the GOfax.IP project - https://github.com/gonicus/gofaxip
// Copyright (C) 2014 GONICUS GmbH, Germany - http://www.gonicus.de
//
// This program is free software; you can redistribute it and/or
// modify it under the terms of the GNU General Public License
// as published by the Free Software Foundation; version 2
// of the License.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program; if not, write to the Free Software
// Foundation, Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package gofaxlib

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gofaxmodem/faxmodem"
	"gofaxmodem/t30"
)

// Resolution is the image resolution of a fax
type Resolution struct {
	X uint
	Y uint
}

func (r Resolution) String() string {
	return fmt.Sprintf("%vx%v", r.X, r.Y)
}

// PageResult is the result of one transferred page
type PageResult struct {
	Ts               time.Time  `json:"ts"`
	Page             uint       `json:"page,omitempty"`
	Rows             uint       `json:"rows,omitempty"`
	BadRows          uint       `json:"bad_rows,omitempty"`
	LongestBadRowRun uint       `json:"longest_bad_row_run,omitempty"`
	EncodingName     string     `json:"encoding_name,omitempty"`
	ImageResolution  Resolution `json:"image_resolution"`
	ImageWidth       uint       `json:"image_width,omitempty"`
	ImageSize        uint       `json:"image_size,omitempty"`
	Good             bool       `json:"good"`
}

func (p PageResult) String() string {
	return fmt.Sprintf("Resolution: %v, Compression: %v, Comp Size: %v bytes, Bad Rows: %v/%v",
		p.ImageResolution, p.EncodingName, p.ImageSize, p.BadRows, p.Rows)
}

// FaxResult is the result of a completed or aborted fax session. It
// observes the session as a faxmodem.Listener.
type FaxResult struct {
	UUID       uuid.UUID `json:"uuid,omitempty"`
	logManager *LogManager
	mu         sync.Mutex

	StartTs time.Time `json:"start_ts"`
	EndTs   time.Time `json:"end_ts"`

	HangupCause string `json:"hangupcause,omitempty"`

	TotalPages       uint         `json:"total_pages,omitempty"`
	TransferredPages uint         `json:"transferred_pages,omitempty"`
	Ecm              bool         `json:"ecm,omitempty"`
	RemoteID         string       `json:"remote_id,omitempty"`
	ResultCode       int          `json:"result_code"`
	ResultText       string       `json:"result_text,omitempty"`
	Success          bool         `json:"success"`
	TransferRate     uint         `json:"transfer_rate,omitempty"`
	NegotiateCount   uint         `json:"negotiate_count,omitempty"`
	Params           t30.Params   `json:"params"`
	Phase            string       `json:"phase,omitempty"`
	PageResults      []PageResult `json:"page_results,omitempty"`
}

var _ faxmodem.Listener = (*FaxResult)(nil)

// NewFaxResult creates a new FaxResult structure
func NewFaxResult(uuid uuid.UUID, logManager *LogManager) *FaxResult {
	if logManager == nil {
		logManager = NewDiscardLogManager()
	}
	return &FaxResult{
		UUID:       uuid,
		logManager: logManager,
		StartTs:    time.Now(),
	}
}

func (f *FaxResult) log(format string, args ...interface{}) {
	f.logManager.SendLog(f.logManager.BuildLog(
		"FaxResult",
		format,
		logrus.InfoLevel,
		map[string]interface{}{"uuid": f.UUID.String()}, args...))
}

// PhaseChanged records the session phase.
func (f *FaxResult) PhaseChanged(p faxmodem.Phase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Phase = p.String()
}

// Negotiated records the session parameters of the last DCS.
func (f *FaxResult) Negotiated(p t30.Params, remoteID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NegotiateCount++
	f.Params = p
	f.Ecm = p.ECM()
	f.TransferRate = uint(p.BitRate())
	if remoteID != "" {
		f.RemoteID = remoteID
	}
	f.log("Remote ID: \"%v\", Transfer Rate: %v, ECM=%v", f.RemoteID, f.TransferRate, f.Ecm)
}

// PageDone records a transferred page.
func (f *FaxResult) PageDone(p faxmodem.Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	x, y := p.Params.Resolution()
	pr := PageResult{
		Ts:               time.Now(),
		Page:             uint(p.Number),
		Rows:             uint(p.Rows),
		BadRows:          uint(p.BadRows),
		LongestBadRowRun: uint(p.ConsecutiveBadRows),
		EncodingName:     p.Params.DataFormatName(),
		ImageResolution:  Resolution{X: uint(x), Y: uint(y)},
		ImageWidth:       uint(p.Params.PageWidth()),
		ImageSize:        uint(p.Size),
		Good:             p.Good,
	}
	f.PageResults = append(f.PageResults, pr)
	if p.Good {
		f.TransferredPages++
	}
	f.log("Page %d %v", pr.Page, pr)
}

// Finish stamps the end of the session with its outcome. err is nil or
// carries a *t30.Status.
func (f *FaxResult) Finish(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := t30.StatusOf(err)
	f.EndTs = time.Now()
	f.ResultCode = st.Code
	f.ResultText = st.Message
	f.Success = err == nil
	if err != nil {
		f.HangupCause = err.Error()
	}
	if f.TotalPages == 0 {
		f.TotalPages = f.TransferredPages
	}
	f.log("Session finished after %v: %v", f.EndTs.Sub(f.StartTs).Round(time.Second), st)
}

// Snapshot returns a copy safe to read while the session runs.
func (f *FaxResult) Snapshot() *FaxResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &FaxResult{
		UUID:             f.UUID,
		StartTs:          f.StartTs,
		EndTs:            f.EndTs,
		HangupCause:      f.HangupCause,
		TotalPages:       f.TotalPages,
		TransferredPages: f.TransferredPages,
		Ecm:              f.Ecm,
		RemoteID:         f.RemoteID,
		ResultCode:       f.ResultCode,
		ResultText:       f.ResultText,
		Success:          f.Success,
		TransferRate:     f.TransferRate,
		NegotiateCount:   f.NegotiateCount,
		Params:           f.Params,
		Phase:            f.Phase,
		PageResults:      append([]PageResult(nil), f.PageResults...),
		logManager:       f.logManager,
	}
}
