package faxserver

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gofaxmodem/gofaxlib"
)

// Session directions.
const (
	DirectionSend = "SEND"
	DirectionRecv = "RECV"
	DirectionPoll = "POLL"
)

// SessionRecord is a GORM model representing one stored fax session.
// It flattens the job fields and the summary FaxResult info into dedicated
// columns, while nesting the page results as JSON.
type SessionRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionUUID uuid.UUID `gorm:"type:uuid;index" json:"session_uuid"`
	JobUUID     uuid.UUID `gorm:"type:uuid;index" json:"job_uuid"`
	Direction   string    `gorm:"size:4" json:"direction"`
	Modem       string    `json:"modem"`
	Number      string    `json:"number"`
	Files       string    `json:"files"` // JSON-encoded file list
	Attempt     int       `json:"attempt"`
	Returned    string    `json:"returned"`

	// FaxResult fields
	StartTs          time.Time `json:"start_ts"`
	EndTs            time.Time `json:"end_ts"`
	HangupCause      string    `json:"hangup_cause"`
	TotalPages       uint      `json:"total_pages"`
	TransferredPages uint      `json:"transferred_pages"`
	ECM              bool      `json:"ecm"`
	RemoteID         string    `json:"remote_id"`
	ResultCode       int       `json:"result_code"`
	ResultText       string    `json:"result_text"`
	Success          bool      `json:"success"`
	TransferRate     uint      `json:"transfer_rate"`
	NegotiateCount   uint      `json:"negotiate_count"`
	Params           string    `json:"params"`
	PageResults      string    `json:"page_results"` // JSON-encoded []PageResult

	CreatedAt time.Time `json:"created_at"`
}

// newSessionRecord combines the session parameters and its FaxResult into
// a SessionRecord.
func newSessionRecord(direction, modemName, number string, files []string, res *gofaxlib.FaxResult) *SessionRecord {
	record := &SessionRecord{
		Direction: direction,
		Modem:     modemName,
		Number:    number,
		CreatedAt: time.Now(),
	}
	if len(files) > 0 {
		if data, err := json.Marshal(files); err == nil {
			record.Files = string(data)
		}
	}
	if res == nil {
		return record
	}

	res = res.Snapshot()
	record.SessionUUID = res.UUID
	record.StartTs = res.StartTs
	record.EndTs = res.EndTs
	record.HangupCause = res.HangupCause
	record.TotalPages = res.TotalPages
	record.TransferredPages = res.TransferredPages
	record.ECM = res.Ecm
	record.RemoteID = res.RemoteID
	record.ResultCode = res.ResultCode
	record.ResultText = res.ResultText
	record.Success = res.Success
	record.TransferRate = res.TransferRate
	record.NegotiateCount = res.NegotiateCount
	if res.NegotiateCount > 0 {
		record.Params = res.Params.String()
	}
	if len(res.PageResults) > 0 {
		if data, err := json.Marshal(res.PageResults); err == nil {
			record.PageResults = string(data)
		}
	}
	return record
}

// forJob fills in the job columns.
func (r *SessionRecord) forJob(job *FaxJob, attempt int, returned SendResult) *SessionRecord {
	r.JobUUID = job.UUID
	r.Attempt = attempt
	r.Returned = returned.String()
	return r
}

// storeRecord queues a record for the database. Without a database it is
// only logged.
func (s *Server) storeRecord(r *SessionRecord) {
	s.logManager.SendLog(s.logManager.BuildLog(
		"Server",
		"%s session with %q on %s: pages %d/%d, result %d %s",
		logrus.InfoLevel,
		map[string]interface{}{"uuid": r.SessionUUID.String()},
		r.Direction, r.RemoteID, r.Modem, r.TransferredPages, r.TotalPages, r.ResultCode, r.ResultText,
	))
	if s.db == nil {
		return
	}
	select {
	case s.records <- r:
	default:
		s.logManager.SendLog(s.logManager.BuildLog(
			"Server",
			"record queue full, dropping session record",
			logrus.ErrorLevel,
			map[string]interface{}{"uuid": r.SessionUUID.String()},
		))
	}
}

// startRecords stores records from the records channel until it is closed.
func (s *Server) startRecords() {
	for r := range s.records {
		if err := s.db.Create(r).Error; err != nil {
			s.logManager.SendLog(s.logManager.BuildLog(
				"Server",
				"Error storing session record: %v",
				logrus.ErrorLevel,
				map[string]interface{}{"uuid": r.SessionUUID.String()}, err,
			))
		}
	}
}
