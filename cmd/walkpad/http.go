package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
)

//go:embed status.tmpl
var statusTmpl string

var statuspage = template.Must(template.New("status").Parse(statusTmpl))

const maxStatusRuns = 20

// status is what the pad last reported
type status struct {
	mu        sync.RWMutex
	connected bool
	updated   time.Time
	state     *walkingpad.LiveState
	settings  *walkingpad.Settings
	runs      []walkingpad.RunRecord
}

type statusJSON struct {
	Connected bool          `json:"connected"`
	Updated   time.Time     `json:"updated"`
	State     *stateJSON    `json:"state,omitempty"`
	Settings  *settingsJSON `json:"settings,omitempty"`
	Runs      []runJSON     `json:"runs"`
}

type stateJSON struct {
	Motor    string  `json:"motor"`
	SpeedKmh float64 `json:"speed_kmh"`
	Mode     string  `json:"mode"`
	Seconds  int     `json:"seconds"`
	Distance uint32  `json:"distance_m"`
	Steps    uint32  `json:"steps"`
}

type settingsJSON struct {
	MaxSpeedKmh   float64 `json:"max_speed_kmh"`
	StartSpeedKmh float64 `json:"start_speed_kmh"`
	StartMode     string  `json:"start_mode"`
	Sensitivity   string  `json:"sensitivity"`
	Display       string  `json:"display"`
	Units         string  `json:"units"`
	Locked        bool    `json:"locked"`
}

type runJSON struct {
	Start    time.Time `json:"start_time"`
	Duration string    `json:"duration"`
	Distance uint32    `json:"distance"`
	Steps    uint32    `json:"nb_steps"`
}

func newStatus() *status {
	return &status{}
}

func (s *status) setConnected(c bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = c
}

func (s *status) addRuns(runs []walkingpad.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, runs...)
	if len(s.runs) > maxStatusRuns {
		s.runs = s.runs[len(s.runs)-maxStatusRuns:]
	}
}

// follow records responses until the stream ends
func (s *status) follow(responses <-chan walkingpad.Response) {
	for r := range responses {
		s.mu.Lock()
		switch r := r.(type) {
		case walkingpad.LiveState:
			s.state = &r
		case walkingpad.Settings:
			s.settings = &r
		}
		s.updated = time.Now()
		s.mu.Unlock()
	}
}

func (s *status) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := statusJSON{Connected: s.connected, Updated: s.updated, Runs: []runJSON{}}
	if st := s.state; st != nil {
		out.State = &stateJSON{
			Motor:    st.MotorState.String(),
			SpeedKmh: st.Speed.Kmh(),
			Mode:     st.Mode.String(),
			Seconds:  int(st.RunTime / time.Second),
			Distance: st.DistanceMeters,
			Steps:    st.Steps,
		}
	}
	if st := s.settings; st != nil {
		out.Settings = &settingsJSON{
			MaxSpeedKmh:   st.MaxSpeed.Kmh(),
			StartSpeedKmh: st.StartSpeed.Kmh(),
			StartMode:     st.StartMode.String(),
			Sensitivity:   st.Sensitivity.String(),
			Display:       st.Display.String(),
			Units:         st.Units.String(),
			Locked:        st.Locked,
		}
	}
	for _, r := range s.runs {
		out.Runs = append(out.Runs, runJSON{Start: r.Start, Duration: r.Duration.String(), Distance: r.DistanceMeters, Steps: r.Steps})
	}
	return json.Marshal(out)
}

func handleStatus(s *status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := s.MarshalJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data := struct{ InitialJSON string }{InitialJSON: string(b)}
		if err := statuspage.ExecuteTemplate(w, "status", data); err != nil {
			log.WithError(err).Error("Status page")
		}
	}
}

func handleJSON(s *status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		b, err := s.MarshalJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	}
}

func statusMux(s *status) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", handleStatus(s))
	mux.HandleFunc("/status", handleJSON(s))
	return mux
}

// serveStatus serves the status page until ctx is done
func serveStatus(ctx context.Context, addr string, s *status) error {
	return listenAndServe(ctx, addr, statusMux(s))
}

func listenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	log.Debugf("HTTP server starting on %s ...", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
