package server

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"tinyrsa/config"
	"tinyrsa/store"
	"tinyrsa/tinyrsa"
)

// KeyResponse is the JSON form of a stored key.
type KeyResponse struct {
	ID          int64     `json:"id"`
	BitLength   int       `json:"bit_length"`
	P           string    `json:"p"`
	Q           string    `json:"q"`
	E           string    `json:"e"`
	N           string    `json:"n"`
	D           string    `json:"d"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

type generateRequest struct {
	BitLength int `json:"bit_length"`
}

type importRequest struct {
	P string `json:"p"`
	Q string `json:"q"`
	E string `json:"e"`
}

type encryptRequest struct {
	Plain string `json:"plain"`
}

type encryptResponse struct {
	Cipher string `json:"cipher"`
}

type decryptRequest struct {
	Cipher string `json:"cipher"`
}

type decryptResponse struct {
	Plain string `json:"plain"`
}

// Server exposes key generation and the block cipher over HTTP.
type Server struct {
	cfg   *config.Config
	store *store.Store
	gen   *tinyrsa.Generator
	log   logrus.FieldLogger
}

// New returns a server backed by st.
func New(cfg *config.Config, st *store.Store, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{cfg: cfg, store: st, gen: cfg.Generator(), log: log}
}

// Handler returns the routed handler, wrapped for h2c when configured.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/keys", s.generateHandler).Methods(http.MethodPost)
	r.HandleFunc("/keys", s.listHandler).Methods(http.MethodGet)
	r.HandleFunc("/keys/import", s.importHandler).Methods(http.MethodPost)
	r.HandleFunc("/keys/{id:[0-9]+}", s.getHandler).Methods(http.MethodGet)
	r.HandleFunc("/keys/{id:[0-9]+}", s.deleteHandler).Methods(http.MethodDelete)
	r.HandleFunc("/keys/{id:[0-9]+}/encrypt", s.encryptHandler).Methods(http.MethodPost)
	r.HandleFunc("/keys/{id:[0-9]+}/decrypt", s.decryptHandler).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.wsHandler)

	if s.cfg.H2C {
		return h2c.NewHandler(r, &http2.Server{})
	}
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(s.cfg.GenerateTimeout) + 15*time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithFields(logrus.Fields{"addr": srv.Addr, "h2c": s.cfg.H2C}).Info("server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("request handled")
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) generateHandler(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.generateKey(r.Context(), req.BitLength)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// generateKey validates the bit length, generates within the configured
// timeout and stores the result.
func (s *Server) generateKey(ctx context.Context, bitLength int) (*KeyResponse, error) {
	if err := s.cfg.CheckBitLength(bitLength); err != nil {
		return nil, err
	}

	if timeout := time.Duration(s.cfg.GenerateTimeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	k, err := s.gen.GenerateContext(ctx, bitLength)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"bit_length": bitLength,
		"duration":   time.Since(start),
	}).Info("key generated")

	return s.saveKey(ctx, k)
}

func (s *Server) importHandler(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, ok1 := new(big.Int).SetString(req.P, 10)
	q, ok2 := new(big.Int).SetString(req.Q, 10)
	e, ok3 := new(big.Int).SetString(req.E, 10)
	if !ok1 || !ok2 || !ok3 {
		s.writeError(w, errors.Wrap(tinyrsa.ErrInvalidKeyMaterial, "p, q and e must be decimal integers"))
		return
	}

	k, err := s.gen.Reconstruct(p, q, e)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp, err := s.saveKey(r.Context(), k)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) saveKey(ctx context.Context, k *tinyrsa.Key) (*KeyResponse, error) {
	id, err := s.store.AddKey(ctx, k)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetKey(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(rec), nil
}

func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListKeys(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := make([]*KeyResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetKey(r.Context(), keyID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

func (s *Server) deleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteKey(r.Context(), keyID(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) encryptHandler(w http.ResponseWriter, r *http.Request) {
	var req encryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cipher, err := s.encrypt(r.Context(), keyID(r), req.Plain)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, encryptResponse{Cipher: cipher})
}

func (s *Server) decryptHandler(w http.ResponseWriter, r *http.Request) {
	var req decryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	plain, err := s.decrypt(r.Context(), keyID(r), req.Cipher)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decryptResponse{Plain: plain})
}

func (s *Server) loadKey(ctx context.Context, id int64) (*tinyrsa.Key, error) {
	rec, err := s.store.GetKey(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Key()
}

func (s *Server) encrypt(ctx context.Context, id int64, plain string) (string, error) {
	k, err := s.loadKey(ctx, id)
	if err != nil {
		return "", err
	}
	return k.EncryptHex(plain)
}

func (s *Server) decrypt(ctx context.Context, id int64, cipher string) (string, error) {
	k, err := s.loadKey(ctx, id)
	if err != nil {
		return "", err
	}
	return k.DecryptHex(cipher)
}

// writeError maps err to a status code and writes it with http.Error.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, tinyrsa.ErrInvalidParameter),
		errors.Is(err, tinyrsa.ErrInvalidKeyMaterial),
		errors.Is(err, tinyrsa.ErrMalformedBlock):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// the caller went away
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func toResponse(rec *store.Record) *KeyResponse {
	return &KeyResponse{
		ID:          rec.ID,
		BitLength:   rec.BitLength,
		P:           rec.P,
		Q:           rec.Q,
		E:           rec.E,
		N:           rec.N,
		D:           rec.D,
		Fingerprint: rec.Fingerprint(),
		CreatedAt:   rec.CreatedAt,
	}
}

// keyID reads the {id} route variable; the route pattern guarantees digits.
func keyID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
