// Package mockapi serves the read-only REST data source backing every
// spacegraph server: two collections loaded from a JSON fixture, listed in
// full or looked up by id.
package mockapi

import (
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/n9te9/spacegraph/datasource"
	"github.com/n9te9/spacegraph/requestid"
	"go.uber.org/zap"
)

//go:embed db.json
var defaultFixture []byte

type Fixture struct {
	Astronauts []datasource.Astronaut `json:"astronauts"`
	Missions   []datasource.Mission   `json:"missions"`
}

// DefaultFixture returns the embedded fixture.
func DefaultFixture() (*Fixture, error) {
	return parseFixture(defaultFixture)
}

// LoadFixture reads a fixture from path, or the embedded one when path is empty.
func LoadFixture(path string) (*Fixture, error) {
	if path == "" {
		return DefaultFixture()
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return parseFixture(src)
}

func parseFixture(src []byte) (*Fixture, error) {
	var f Fixture
	if err := json.Unmarshal(src, &f); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}
	return &f, nil
}

type handler struct {
	fixture *Fixture
	logger  *zap.Logger
}

func NewHandler(fixture *Fixture, logger *zap.Logger) http.Handler {
	h := &handler{fixture: fixture, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /astronauts", h.listAstronauts)
	mux.HandleFunc("GET /astronauts/{id}", h.getAstronaut)
	mux.HandleFunc("GET /missions", h.listMissions)
	mux.HandleFunc("GET /missions/{id}", h.getMission)

	return requestid.Middleware(logger, mux)
}

func (h *handler) listAstronauts(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, h.fixture.Astronauts)
}

func (h *handler) getAstronaut(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, a := range h.fixture.Astronauts {
		if strconv.Itoa(a.ID) == id {
			h.write(w, http.StatusOK, a)
			return
		}
	}
	h.write(w, http.StatusNotFound, struct{}{})
}

func (h *handler) listMissions(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, h.fixture.Missions)
}

func (h *handler) getMission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, m := range h.fixture.Missions {
		if strconv.Itoa(m.ID) == id {
			h.write(w, http.StatusOK, m)
			return
		}
	}
	h.write(w, http.StatusNotFound, struct{}{})
}

func (h *handler) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
