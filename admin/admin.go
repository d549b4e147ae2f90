// Package admin serves a small HTTP command interface for inspecting a
// running node: journaled outcomes, transport counters and log levels.
package admin

import (
	"encoding/json"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/journal"
	"github.com/vzex/dog-homa/logger"
	"github.com/vzex/dog-homa/metrics"
	"github.com/vzex/dog-homa/protocol"
)

// OutcomeStore is the read side of a journal.
type OutcomeStore interface {
	Get(id protocol.MessageId) (journal.Outcome, bool, error)
	ForEach(transportId uint64, fn func(journal.Outcome) error) error
}

type cmdHandler func(r *http.Request) (result interface{}, err error)

type handlerResult struct {
	Code   int
	Msg    string      `json:",omitempty"`
	Result interface{} `json:",omitempty"`
}

// Server answers /admin?cmd=... requests and exposes expvar counters on
// /debug/vars.
type Server struct {
	store    OutcomeStore
	commands map[string]cmdHandler
	server   *http.Server
	listener net.Listener
}

// New returns a Server reading outcomes from store, which may be nil.
func New(store OutcomeStore) *Server {
	s := &Server{store: store, commands: make(map[string]cmdHandler)}
	s.addCmd("outcomes", s.outcomes)
	s.addCmd("outcome", s.outcome)
	s.addCmd("active", s.active)
	s.addCmd("setloglevel", s.setLogLevel)
	return s
}

func (s *Server) addCmd(cmd string, handler cmdHandler) {
	s.commands[cmd] = handler
}

// Handler returns the HTTP handler of the command interface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin", s.adminHandler)
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

// Listen starts serving on addr.
func (s *Server) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "admin listen %s", addr)
	}
	s.listener = listener
	s.server = &http.Server{Handler: s.Handler()}
	go s.server.Serve(listener)
	log.Infof("admin interface on %s", listener.Addr())
	return nil
}

func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

func (s *Server) adminHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	command := r.FormValue("cmd")
	handler, ok := s.commands[command]
	if !ok {
		writeResult(w, handlerResult{Code: 404, Msg: fmt.Sprintf("unknown command %q", command)})
		return
	}
	result, err := handler(r)
	if err != nil {
		writeResult(w, handlerResult{Code: 201, Msg: err.Error()})
		return
	}
	writeResult(w, handlerResult{Code: 200, Result: result})
}

func writeResult(w http.ResponseWriter, res handlerResult) {
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Debugf("admin reply: %s", err)
	}
}

type outcomeView struct {
	Id          string
	Destination string
	State       string
	Packets     int
	Sent        int
	Retries     int
	Pings       int
	At          string
}

func viewOf(o journal.Outcome) outcomeView {
	return outcomeView{
		Id:          o.Id.String(),
		Destination: fmt.Sprintf("%#x", uint64(o.Destination)),
		State:       o.State,
		Packets:     o.Packets,
		Sent:        o.Sent,
		Retries:     o.Retries,
		Pings:       o.Pings,
		At:          o.At.UTC().Format("2006-01-02 15:04:05.000"),
	}
}

func (s *Server) outcomes(r *http.Request) (interface{}, error) {
	if s.store == nil {
		return nil, errors.New("no journal to read outcomes from")
	}
	var transportId uint64
	if v := r.FormValue("transport"); v != "" {
		var err error
		if transportId, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, errors.Errorf("bad transport %q", v)
		}
	}
	limit := 100
	if v := r.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.Errorf("bad limit %q", v)
		}
		limit = n
	}
	errLimit := errors.New("limit reached")
	views := []outcomeView{}
	err := s.store.ForEach(transportId, func(o journal.Outcome) error {
		views = append(views, viewOf(o))
		if len(views) >= limit {
			return errLimit
		}
		return nil
	})
	if err != nil && err != errLimit {
		return nil, err
	}
	return views, nil
}

func (s *Server) outcome(r *http.Request) (interface{}, error) {
	if s.store == nil {
		return nil, errors.New("no journal to read outcomes from")
	}
	var id protocol.MessageId
	if _, err := fmt.Sscanf(r.FormValue("id"), "%d:%d", &id.TransportId, &id.Sequence); err != nil {
		return nil, errors.Errorf("bad message id %q", r.FormValue("id"))
	}
	o, ok, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Errorf("no outcome for %s", id)
	}
	return viewOf(o), nil
}

func (s *Server) active(*http.Request) (interface{}, error) {
	return metrics.ActiveMessages(), nil
}

func (s *Server) setLogLevel(r *http.Request) (interface{}, error) {
	level := r.FormValue("level")
	if err := logger.SetLogLevels(level); err != nil {
		return nil, err
	}
	log.Infof("log level set to %s", level)
	return level, nil
}
