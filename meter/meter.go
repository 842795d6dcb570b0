// Package meter turns a sensor session into a recording service: uuid
// tagged recording jobs drain the session's watch loop into the sqlite
// store, and an HTTP surface exposes live conditions, job summaries, a lux
// chart and a CSV export.
package meter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mklimuk/ambient"
	"github.com/mklimuk/ambient/store"
)

// FullSunLux is the lux level treated as direct sunlight, both when
// classifying a single reading and when summarizing a job.
const FullSunLux = 10000

// MaxJobDuration caps recording jobs started without an explicit duration.
const MaxJobDuration = 8 * time.Hour

var (
	ErrJobRunning = errors.New("meter: a recording job is already running")
	ErrNoJob      = errors.New("meter: no recording job is running")
)

// Light condition labels, darkest to brightest.
const (
	Shade        = "Shade"
	PartialShade = "Partial Shade"
	PartialSun   = "Partial Sun"
	FullSun      = "Full Sun"
)

// Classify maps an instantaneous lux level to a condition label.
func Classify(lux float64) string {
	switch {
	case lux < 500:
		return Shade
	case lux < 1000:
		return PartialShade
	case lux < FullSunLux:
		return PartialSun
	default:
		return FullSun
	}
}

// classifyRatio maps the full-sun share of a recorded window to the overall
// label for that window.
func classifyRatio(ratio float64) string {
	switch {
	case ratio > 0.5:
		return FullSun
	case ratio > 0.25:
		return PartialSun
	case ratio > 0.1:
		return PartialShade
	default:
		return Shade
	}
}

// Sensor is the session surface the meter drives. *ambient.Session
// implements it; the session serializes access internally, so a running
// watch loop and direct polls never interleave at the device.
type Sensor interface {
	Poll(ctx context.Context) (ambient.Reading, error)
	Watch(ctx context.Context) <-chan ambient.Sample
	OptimizeGain(ctx context.Context) error
	Gain() ambient.Gain
	Timing() ambient.IntegrationTime
}

type MeterOpts struct {
	Logger *slog.Logger
}

type MeterOpt func(*MeterOpts)

// WithLogger routes meter logs through log instead of slog.Default().
func WithLogger(log *slog.Logger) MeterOpt {
	return func(o *MeterOpts) {
		o.Logger = log
	}
}

// Meter records sensor samples into the store and serves them over HTTP.
// A meter runs at most one recording job at a time.
type Meter struct {
	mx     sync.Mutex
	sensor Sensor
	store  *store.Store
	log    *slog.Logger
	job    *job
}

type job struct {
	id      string
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a meter recording samples from sensor into st.
func New(sensor Sensor, st *store.Store, opts ...MeterOpt) *Meter {
	o := &MeterOpts{Logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return &Meter{sensor: sensor, store: st, log: o.Logger}
}

// Start launches a recording job and returns its ID. The job drains the
// session's watch loop into the store until Stop is called or the duration
// elapses; a zero duration applies MaxJobDuration. The job's lifetime is
// independent of ctx, which only gates the start itself.
func (m *Meter) Start(ctx context.Context, duration time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.job != nil {
		return "", ErrJobRunning
	}
	if duration <= 0 {
		duration = MaxJobDuration
	}
	jobCtx, cancel := context.WithTimeout(context.Background(), duration)
	j := &job{
		id:      uuid.New().String(),
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.job = j
	go m.record(jobCtx, j)
	m.log.Info("recording started", "job", j.id, "limit", duration)
	return j.id, nil
}

// record drains the watch loop until ctx is done. Failed cycles are logged
// and skipped; a saturated cycle additionally triggers a sensitivity sweep,
// so a job started in the dark recovers when the sun comes out.
func (m *Meter) record(ctx context.Context, j *job) {
	defer close(j.done)
	defer j.cancel()
	for sample := range m.sensor.Watch(ctx) {
		if sample.Err != nil {
			if errors.Is(sample.Err, ambient.ErrSaturated) {
				m.log.Warn("sensor saturated, searching for a usable sensitivity", "job", j.id)
				if err := m.sensor.OptimizeGain(ctx); err != nil {
					m.log.Error("sensitivity search failed", "job", j.id, "error", err)
				}
				continue
			}
			m.log.Warn("sample dropped", "job", j.id, "error", sample.Err)
			continue
		}
		if sample.Status.ALSInterrupt() {
			m.log.Info("threshold interrupt latched", "job", j.id, "lux", sample.Reading.Lux)
		}
		record := store.Record{
			JobID:         j.id,
			Lux:           sample.Reading.Lux,
			FullSpectrum:  sample.Reading.FullSpectrum,
			Infrared:      sample.Reading.Infrared,
			Visible:       sample.Reading.Visible,
			Gain:          m.sensor.Gain().String(),
			IntegrationMs: int(m.sensor.Timing().Duration().Milliseconds()),
			CreatedAt:     sample.At,
		}
		// Inserts outlive the job context so the tail of a cancelled job
		// still lands in the store.
		if _, err := m.store.Insert(context.Background(), record); err != nil {
			m.log.Error("sample not persisted", "job", j.id, "error", err)
		}
	}
	m.mx.Lock()
	if m.job == j {
		m.job = nil
	}
	m.mx.Unlock()
	m.log.Info("recording finished", "job", j.id)
}

// Stop cancels the active job and waits for its recorder to drain. Safe to
// call at any time; reports ErrNoJob when nothing is recording.
func (m *Meter) Stop() error {
	m.mx.Lock()
	j := m.job
	m.mx.Unlock()
	if j == nil {
		return ErrNoJob
	}
	j.cancel()
	<-j.done
	return nil
}

// Wait blocks until the active job finishes, whether through Stop or by
// reaching its duration limit. Returns immediately when nothing is
// recording.
func (m *Meter) Wait() {
	m.mx.Lock()
	j := m.job
	m.mx.Unlock()
	if j == nil {
		return
	}
	<-j.done
}

// Status is the meter's recording state plus the session's sensitivity.
type Status struct {
	Recording       bool      `json:"recording"`
	JobID           string    `json:"jobID,omitempty"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
	Gain            string    `json:"gain"`
	IntegrationTime string    `json:"integrationTime"`
}

func (m *Meter) Status() Status {
	m.mx.Lock()
	defer m.mx.Unlock()
	st := Status{
		Gain:            m.sensor.Gain().String(),
		IntegrationTime: m.sensor.Timing().String(),
	}
	if m.job != nil {
		st.Recording = true
		st.JobID = m.job.id
		st.StartedAt = m.job.started
	}
	return st
}

// Conditions is an instantaneous reading with its classification.
type Conditions struct {
	Lux          float64   `json:"lux"`
	FullSpectrum uint16    `json:"fullSpectrum"`
	Infrared     uint16    `json:"infrared"`
	Visible      uint16    `json:"visible"`
	Condition    string    `json:"condition"`
	JobID        string    `json:"jobID,omitempty"`
	At           time.Time `json:"at"`
}

// Current takes a live reading and classifies it. Polling is safe while a
// job records; both serialize at the session.
func (m *Meter) Current(ctx context.Context) (Conditions, error) {
	reading, err := m.sensor.Poll(ctx)
	if err != nil {
		return Conditions{}, fmt.Errorf("meter: current reading failed: %w", err)
	}
	m.mx.Lock()
	var jobID string
	if m.job != nil {
		jobID = m.job.id
	}
	m.mx.Unlock()
	return Conditions{
		Lux:          reading.Lux,
		FullSpectrum: reading.FullSpectrum,
		Infrared:     reading.Infrared,
		Visible:      reading.Visible,
		Condition:    Classify(reading.Lux),
		JobID:        jobID,
		At:           time.Now(),
	}, nil
}

// JobSummary is a store summary plus the window's overall classification.
type JobSummary struct {
	JobID        string    `json:"jobID,omitempty"`
	Samples      int       `json:"samples"`
	First        time.Time `json:"first"`
	Last         time.Time `json:"last"`
	AverageLux   float64   `json:"averageLux"`
	PeakLux      float64   `json:"peakLux"`
	FullSunRatio float64   `json:"fullSunRatio"`
	FullSunHours float64   `json:"fullSunHours"`
	Condition    string    `json:"condition"`
}

// Summarize aggregates a job's recorded readings and classifies the window
// by its full-sun share. An empty jobID summarizes the whole log.
func (m *Meter) Summarize(ctx context.Context, jobID string) (JobSummary, error) {
	sum, err := m.store.Summary(ctx, jobID, FullSunLux)
	if err != nil {
		return JobSummary{}, fmt.Errorf("meter: summary failed: %w", err)
	}
	return JobSummary{
		JobID:        sum.JobID,
		Samples:      sum.Samples,
		First:        sum.First,
		Last:         sum.Last,
		AverageLux:   sum.AverageLux,
		PeakLux:      sum.PeakLux,
		FullSunRatio: sum.FullSunRatio,
		FullSunHours: sum.FullSunHours,
		Condition:    classifyRatio(sum.FullSunRatio),
	}, nil
}

// History returns the recorded readings for jobID between from and to,
// oldest first. An empty jobID spans all jobs.
func (m *Meter) History(ctx context.Context, jobID string, from, to time.Time) ([]store.Record, error) {
	records, err := m.store.Range(ctx, jobID, from, to)
	if err != nil {
		return nil, fmt.Errorf("meter: history query failed: %w", err)
	}
	return records, nil
}
