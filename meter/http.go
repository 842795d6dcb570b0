package meter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mklimuk/ambient"
	"github.com/mklimuk/ambient/store"
)

// graphSpan is the window a graph request covers when the caller gives no
// explicit range.
const graphSpan = 8 * time.Hour

// Routes assembles the meter's HTTP API. Requests log through chi's
// middleware and handler panics convert to JSON 500s.
func (m *Meter) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(recoverPanic)

	r.Post("/start", m.handleStart)
	r.Post("/stop", m.handleStop)
	r.Get("/current", m.handleCurrent)
	r.Get("/status", m.handleStatus)
	r.Get("/summary", m.handleSummary)
	r.Get("/graph", m.handleGraph)
	r.Get("/export", m.handleExport)
	return r
}

func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeError(w, fmt.Errorf("%v", rec), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error, status int) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (m *Meter) handleStart(w http.ResponseWriter, r *http.Request) {
	var duration time.Duration
	if raw := r.URL.Query().Get("duration"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			writeError(w, fmt.Errorf("invalid duration %q", raw), http.StatusBadRequest)
			return
		}
		duration = d
	}
	jobID, err := m.Start(r.Context(), duration)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrJobRunning) {
			status = http.StatusConflict
		}
		writeError(w, err, status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jobID": jobID})
}

func (m *Meter) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := m.Stop(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNoJob) {
			status = http.StatusConflict
		}
		writeError(w, err, status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "recording stopped"})
}

func (m *Meter) handleCurrent(w http.ResponseWriter, r *http.Request) {
	conditions, err := m.Current(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ambient.ErrSensorUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, err, status)
		return
	}
	writeJSON(w, http.StatusOK, conditions)
}

func (m *Meter) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.Status())
}

func (m *Meter) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := m.Summarize(r.Context(), r.URL.Query().Get("job"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNoReadings) {
			status = http.StatusNotFound
		}
		writeError(w, err, status)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (m *Meter) handleExport(w http.ResponseWriter, r *http.Request) {
	jobID, from, to, err := rangeQuery(r, 0)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	records, err := m.History(r.Context(), jobID, from, to)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="ambient.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "job_id", "created_at", "lux", "full_spectrum", "infrared", "visible", "gain", "integration_ms"})
	for _, rec := range records {
		_ = cw.Write([]string{
			strconv.FormatInt(rec.ID, 10),
			rec.JobID,
			rec.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(rec.Lux, 'f', 4, 64),
			strconv.FormatUint(uint64(rec.FullSpectrum), 10),
			strconv.FormatUint(uint64(rec.Infrared), 10),
			strconv.FormatUint(uint64(rec.Visible), 10),
			rec.Gain,
			strconv.Itoa(rec.IntegrationMs),
		})
	}
	cw.Flush()
}

// rangeQuery reads the optional job, from and to parameters (RFC 3339
// timestamps). The window ends now and reaches back span unless overridden;
// a zero span reaches back to the beginning of the log.
func rangeQuery(r *http.Request, span time.Duration) (string, time.Time, time.Time, error) {
	q := r.URL.Query()
	to := time.Now().UTC()
	var from time.Time
	if span > 0 {
		from = to.Add(-span)
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("invalid from %q", raw)
		}
		from = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("invalid to %q", raw)
		}
		to = t
	}
	return q.Get("job"), from, to, nil
}
