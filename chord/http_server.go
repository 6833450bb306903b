package chord

/*
HTTPNodeServer:
* Hosts an HTTP server for a node.
* Exposes one route per node operation so HTTPTransport can reach it.
* Adds /, /fingers and /lookup/{hexkey} for operators.
*/

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chord_ring/keys"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

type HTTPNodeServer struct {
	node   *Node
	server *http.Server
	logger zerolog.Logger
}

func NewHTTPNodeServer(node *Node) *HTTPNodeServer {
	return &HTTPNodeServer{
		node:   node,
		logger: node.logger.With().Str("component", "http").Logger(),
	}
}

// Configure the HTTP routes for the node
func (s *HTTPNodeServer) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleInfo)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/successor", s.handleGetSuccessor)
	mux.HandleFunc("/predecessor", s.handleGetPredecessor)
	mux.HandleFunc("/setpredecessor", s.handleSetPredecessor)
	mux.HandleFunc("/closestprecedingfinger/", s.handleClosestPrecedingFinger)
	mux.HandleFunc("/findsuccessor/", s.handleFindSuccessor)
	mux.HandleFunc("/updatefingertable", s.handleUpdateFingerTable)
	mux.HandleFunc("/fingers", s.handleFingers)
	mux.HandleFunc("/lookup/", s.handleLookup)

	return mux
}

// Handler returns the routes wrapped with request logging.
func (s *HTTPNodeServer) Handler() http.Handler {
	mux := s.SetupRoutes()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)

		ev := s.logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			ev = s.logger.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get(RequestIDHeader)).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Start binds address and serves in the background until Shutdown. The
// listener is bound when Start returns, so peers may dial the node at once.
func (s *HTTPNodeServer) Start(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return xerrors.Errorf("listen on %s: %w", address, err)
	}
	s.server = &http.Server{Handler: s.Handler()}
	go func() {
		if err := s.serve(ln); err != nil {
			s.logger.Error().Err(err).Str("listen", address).Msg("server failed")
		}
	}()
	return nil
}

func (s *HTTPNodeServer) serve(ln net.Listener) error {
	s.logger.Info().Str("listen", ln.Addr().String()).Msg("starting Chord node HTTP server")
	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *HTTPNodeServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *HTTPNodeServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if badRequest(err) {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorReply{Error: err.Error(), Kind: errorKind(err)})
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func pathID(r *http.Request, prefix string) (ID, error) {
	idStr := strings.TrimPrefix(r.URL.Path, prefix)
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("id %q: %w", idStr, ErrInvalidIdentifier)
	}
	return ID(id), nil
}

func (s *HTTPNodeServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, s.node.Info())
}

// Handle Ping requests from client
func (s *HTTPNodeServer) handlePing(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, PingReply{Status: "alive", NodeID: s.node.ID()})
}

func (s *HTTPNodeServer) handleGetSuccessor(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, AddressReply{Address: s.node.Successor()})
}

func (s *HTTPNodeServer) handleGetPredecessor(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, AddressReply{Address: s.node.Predecessor()})
}

func (s *HTTPNodeServer) handleSetPredecessor(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req SetPredecessorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.node.SetPredecessor(req.Predecessor); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, AddressReply{Address: req.Predecessor})
}

func (s *HTTPNodeServer) handleClosestPrecedingFinger(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	id, err := pathID(r, "/closestprecedingfinger/")
	if err != nil {
		s.writeError(w, err)
		return
	}
	finger, err := s.node.ClosestPrecedingFinger(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, AddressReply{Address: finger})
}

func (s *HTTPNodeServer) handleFindSuccessor(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	id, err := pathID(r, "/findsuccessor/")
	if err != nil {
		s.writeError(w, err)
		return
	}
	successor, err := s.node.FindSuccessor(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, AddressReply{Address: successor})
}

func (s *HTTPNodeServer) handleUpdateFingerTable(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req UpdateFingerTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	done, err := s.node.UpdateFingerTable(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, UpdateFingerTableReply{Done: done})
}

func (s *HTTPNodeServer) handleFingers(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, s.node.Fingers())
}

func (s *HTTPNodeServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/lookup/")
	reduced, err := keys.Reduce(key, s.node.Ring().Bits())
	if err != nil {
		s.writeError(w, xerrors.Errorf("%v: %w", err, ErrInvalidIdentifier))
		return
	}
	owner, err := s.node.FindSuccessor(r.Context(), ID(reduced))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, LookupReply{Key: key, ID: ID(reduced), Address: owner})
}
