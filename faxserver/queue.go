package faxserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gofaxmodem/gofaxlib"
	"gofaxmodem/t30"
)

// Queue picks up job files from the queue directory and runs them.
type Queue struct {
	server *Server
	dir    string

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

// NewQueue creates a Queue on dir.
func NewQueue(s *Server, dir string) *Queue {
	return &Queue{
		server:   s,
		dir:      dir,
		inflight: make(map[string]bool),
	}
}

func (q *Queue) log(level logrus.Level, jobID uuid.UUID, format string, args ...interface{}) {
	fields := map[string]interface{}{}
	if jobID != uuid.Nil {
		fields["uuid"] = jobID.String()
	}
	q.server.logManager.SendLog(q.server.logManager.BuildLog("Queue", format, level, fields, args...))
}

// Start scans the queue directory every interval until ctx is done, then
// waits for running jobs to stop.
func (q *Queue) Start(ctx context.Context) {
	interval := durationOr(gofaxlib.Config.Sending.PollInterval, 5*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		q.scan(ctx)
		select {
		case <-ctx.Done():
			q.wg.Wait()
			return
		case <-ticker.C:
		}
	}
}

func (q *Queue) scan(ctx context.Context) {
	files, err := filepath.Glob(filepath.Join(q.dir, "*.json"))
	if err != nil {
		q.log(logrus.ErrorLevel, uuid.Nil, "Scanning %s: %v", q.dir, err)
		return
	}
	sort.Strings(files)
	for _, f := range files {
		q.mu.Lock()
		busy := q.inflight[f]
		if !busy {
			q.inflight[f] = true
		}
		q.mu.Unlock()
		if busy {
			continue
		}

		job, err := ReadFaxJob(f)
		if err != nil {
			q.log(logrus.ErrorLevel, uuid.Nil, "Rejecting job: %v", err)
			if err := os.Rename(f, f+".bad"); err != nil {
				q.log(logrus.ErrorLevel, uuid.Nil, "Renaming bad job: %v", err)
			}
			q.release(f)
			continue
		}
		q.wg.Add(1)
		go func(f string, job *FaxJob) {
			defer q.wg.Done()
			defer q.release(f)
			q.processFax(ctx, f, job)
		}(f, job)
	}
}

func (q *Queue) release(f string) {
	q.mu.Lock()
	delete(q.inflight, f)
	q.mu.Unlock()
}

// processFax runs the attempts of one job and archives it when it is
// finished. A job interrupted by shutdown stays in the queue.
func (q *Queue) processFax(ctx context.Context, file string, job *FaxJob) {
	s := q.server
	s.tracker.Begin(job)
	defer s.tracker.Complete(job.UUID)

	var doc *Document
	if !job.Poll {
		var err error
		doc, err = LoadDocument(ctx, job, gofaxlib.Config.Sending.TempDir)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log(logrus.ErrorLevel, job.UUID, "Loading document failed: %v", err)
			job.Status = err.Error()
			job.Returned = SendFailed
			q.finish(file, job, nil)
			return
		}
		defer doc.Close()
	}

	number := s.dialplan.DialString(job.CalleeNumber)
	maxAttempts := atoiOr(gofaxlib.Config.Sending.RetryAttempts, 3)
	delay := durationOr(gofaxlib.Config.Sending.RetryDelay, time.Minute)
	v17After := atoiOr(gofaxlib.Config.Sending.DisableV17AfterRetry, 0)
	ecmAfter := atoiOr(gofaxlib.Config.Sending.DisableECMAfterRetry, 0)

	var results []*gofaxlib.FaxResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tr, err := s.trouble.Get(number)
		if err != nil {
			q.log(logrus.WarnLevel, job.UUID, "Reading line trouble of %s: %v", number, err)
		}
		if v17After > 0 && job.TotTries >= v17After {
			job.DisableV17 = true
		}
		if ecmAfter > 0 && job.TotTries >= ecmAfter {
			job.UseECM = false
		}

		returned, res, err := q.attempt(ctx, job, attempt, maxAttempts, number, doc, tr)
		results = append(results, res)
		if ctx.Err() != nil {
			q.log(logrus.WarnLevel, job.UUID, "Shutting down, job stays queued")
			return
		}
		if returned == SendV17fail {
			if err := s.trouble.MarkV17(number); err != nil {
				q.log(logrus.WarnLevel, job.UUID, "Recording line trouble of %s: %v", number, err)
			}
			job.DisableV17 = true
		}

		if returned == SendDone || returned == SendFailed {
			break
		}
		if attempt == maxAttempts {
			job.Returned = SendFailed
			break
		}
		q.log(logrus.InfoLevel, job.UUID, "Attempt %d failed (%v): %v, retrying in %v", attempt, returned, err, delay)
		s.tracker.MarkWaiting(job.UUID)
		select {
		case <-ctx.Done():
			q.log(logrus.WarnLevel, job.UUID, "Shutting down, job stays queued")
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
	q.finish(file, job, results)
}

// attempt places one call and records its outcome.
func (q *Queue) attempt(ctx context.Context, job *FaxJob, attempt, maxAttempts int, number string, doc *Document, tr t30.Trouble) (SendResult, *gofaxlib.FaxResult, error) {
	s := q.server
	job.CallUUID = uuid.New()
	res := gofaxlib.NewFaxResult(job.CallUUID, s.logManager)
	req := &sendRequest{
		job:     job,
		attempt: attempt,
		number:  number,
		doc:     doc,
		trouble: tr,
		result:  res,
	}
	direction := DirectionSend
	if doc != nil {
		res.TotalPages = uint(len(doc.Pages))
	}

	var err error
	if job.Poll {
		direction = DirectionPoll
		rc := gofaxlib.Config.Receive
		req.spool, err = NewSpool(rc.SpoolDir, rc.FileNameFormat, res.StartTs, job.CallUUID, rc.PDF, s.logManager)
	}
	job.Status = "Dialing"
	job.TotDials++
	job.TotTries++
	s.tracker.MarkAttempt(job.UUID, job.CallUUID, attempt, maxAttempts, job.Modem)
	if err == nil {
		err = s.dispatch(ctx, req)
	}
	res.Finish(err)

	var files []string
	pdf := ""
	if req.spool != nil {
		var perr error
		pdf, perr = req.spool.Close()
		if perr != nil {
			q.log(logrus.ErrorLevel, job.UUID, "Writing PDF failed: %v", perr)
		}
		files = req.spool.Files()
	}

	returned := classify(err)
	snap := res.Snapshot()
	job.Result = snap
	job.Returned = returned
	job.CSI = snap.RemoteID
	job.SignalRate = int(snap.TransferRate)
	job.DataFormat = snap.Params.DataFormatName()
	job.NPages = int(snap.TransferredPages)
	job.JobTime = time.Since(job.Ts)
	job.ConnTime = snap.EndTs.Sub(snap.StartTs)
	if err != nil {
		job.Status = err.Error()
		job.NDials++
	} else {
		job.Status = "Completed"
		job.NDials = 0
	}
	s.tracker.MarkResult(job.UUID, err == nil, returned.String(), err, res)

	xfl := gofaxlib.XFRecord{
		Modem:    req.modem,
		Jobtag:   job.Jobtag,
		Filename: strings.Join(job.Files, ","),
		Sender:   job.Owner,
		Destnum:  job.CalleeNumber,
		Cidname:  job.CallerIdName,
		Cidnum:   job.CallerIdNumber,
		Owner:    job.Owner,
	}
	if job.Poll {
		xfl.Filename = pdf
	}
	xfl.SetResult(res)
	xfl.Jobtime = job.JobTime
	save := xfl.SaveTransmissionReport
	if job.Poll {
		save = xfl.SaveReceptionReport
	}
	if xerr := save(); xerr != nil {
		q.log(logrus.WarnLevel, job.UUID, "Writing xferfaxlog failed: %v", xerr)
	}

	s.storeRecord(newSessionRecord(direction, req.modem, job.CalleeNumber, files, res).forJob(job, attempt, returned))
	return returned, snap, err
}

// finish archives the job file with its outcome and sends the report.
func (q *Queue) finish(file string, job *FaxJob, results []*gofaxlib.FaxResult) {
	job.Status = fmt.Sprintf("%s: %s", job.Returned, job.Status)
	q.log(logrus.InfoLevel, job.UUID, "Job finished: %s", job.Status)

	doneDir := filepath.Join(q.dir, "done")
	if err := os.MkdirAll(doneDir, 0755); err != nil {
		q.log(logrus.ErrorLevel, job.UUID, "Archiving job: %v", err)
		return
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(doneDir, filepath.Base(file)), data, 0644)
	}
	if err == nil {
		err = os.Remove(file)
	}
	if err != nil {
		q.log(logrus.ErrorLevel, job.UUID, "Archiving job: %v", err)
	}

	to := job.NotifyTo
	if to == "" {
		to = gofaxlib.Config.SMTP.NotifyTo
	}
	if to == "" || gofaxlib.Config.SMTP.Host == "" {
		return
	}
	nfr := NotifyFaxResults{FaxJob: job, Results: results}
	report, err := nfr.GenerateFaxResultsPDF(gofaxlib.Config.Sending.TempDir)
	if err != nil {
		q.log(logrus.ErrorLevel, job.UUID, "Generating report failed: %v", err)
		report = ""
	} else {
		defer os.Remove(report)
	}
	subject := fmt.Sprintf("Fax to %s: %s", job.CalleeNumber, job.Returned)
	if err := SendEmailWithAttachment(subject, to, job.Status, report); err != nil {
		q.log(logrus.ErrorLevel, job.UUID, "Notification failed: %v", err)
	}
}
