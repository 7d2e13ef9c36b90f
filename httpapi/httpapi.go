package httpapi

import (
	"io"
	"net/http"
	"strings"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// Options wires the API to the host.
type Options struct {
	Members  MemberResolver
	Sessions SessionProvider
	Logger   *zap.Logger
}

// API serves the MFA endpoints of one engine.
type API struct {
	engine   *goMFA.Engine
	members  MemberResolver
	sessions SessionProvider
	logger   *zap.Logger
	validate *validator.Validate
}

type segmentParams struct {
	URLSegment string `validate:"required,max=64,urlsegment"`
}

type completion struct {
	Success    bool           `json:"success"`
	NextMethod string         `json:"nextMethod,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

type loginCompletion struct {
	Success    bool           `json:"success"`
	Complete   bool           `json:"complete"`
	NextMethod string         `json:"nextMethod,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// New returns an API for engine.
func New(engine *goMFA.Engine, opts Options) (*API, error) {
	if engine == nil {
		return nil, goMFA.ErrEngineNotReady
	}
	if opts.Members == nil {
		return nil, errors.New("httpapi: member resolver required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("httpapi: session provider required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("urlsegment", func(fl validator.FieldLevel) bool {
		return method.ValidateSegment(fl.Field().String()) == nil
	}); err != nil {
		return nil, errors.Wrap(err, "register url segment validation")
	}

	return &API{
		engine:   engine,
		members:  opts.Members,
		sessions: opts.Sessions,
		logger:   logger,
		validate: v,
	}, nil
}

// Router returns a new router with the API mounted under the engine's
// route prefix.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	a.Mount(r)
	return r
}

// Mount registers the API routes on r.
func (a *API) Mount(r *mux.Router) {
	prefix := strings.TrimSuffix(a.engine.Config().RoutePrefix, "/")
	s := r.PathPrefix(prefix).Subrouter()
	s.Use(RequestContext)

	s.HandleFunc("/schema", a.schema).Methods(http.MethodGet)
	s.HandleFunc("/register/{urlSegment}", a.startRegistration).Methods(http.MethodGet)
	s.HandleFunc("/register/{urlSegment}", a.completeRegistration).Methods(http.MethodPost)
	s.HandleFunc("/skip", a.skip).Methods(http.MethodPost)
	s.HandleFunc("/login/{urlSegment}", a.startLogin).Methods(http.MethodGet)
	s.HandleFunc("/login/{urlSegment}", a.completeLogin).Methods(http.MethodPost)
	s.HandleFunc("/method/{urlSegment}", a.removeMethod).Methods(http.MethodDelete)
	s.HandleFunc("/method/{urlSegment}/default", a.setDefault).Methods(http.MethodPut)
	s.HandleFunc("/cancel", a.cancel).Methods(http.MethodPost)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (a *API) schema(w http.ResponseWriter, r *http.Request) {
	member, ok := a.member(w, r)
	if !ok {
		return
	}
	schema, err := a.engine.Schema(r.Context(), member)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (a *API) startRegistration(w http.ResponseWriter, r *http.Request) {
	member, sess, segment, ok := a.flowRequest(w, r)
	if !ok {
		return
	}
	start, err := a.engine.StartRegistration(r.Context(), sess, member, segment)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, start)
}

func (a *API) completeRegistration(w http.ResponseWriter, r *http.Request) {
	member, sess, segment, ok := a.flowRequest(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := a.engine.CompleteRegistration(r.Context(), sess, member, segment, body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !res.Successful {
		writeMessage(w, http.StatusBadRequest, res.Message)
		return
	}
	next, _ := res.Context["nextMethod"].(string)
	writeJSON(w, http.StatusCreated, completion{Success: true, NextMethod: next, Context: res.Context})
}

func (a *API) skip(w http.ResponseWriter, r *http.Request) {
	member, ok := a.member(w, r)
	if !ok {
		return
	}
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := a.engine.SkipRegistration(r.Context(), sess, member); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completion{Success: true})
}

func (a *API) startLogin(w http.ResponseWriter, r *http.Request) {
	member, sess, segment, ok := a.flowRequest(w, r)
	if !ok {
		return
	}
	start, err := a.engine.StartLogin(r.Context(), sess, member, segment)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, start)
}

func (a *API) completeLogin(w http.ResponseWriter, r *http.Request) {
	member, sess, segment, ok := a.flowRequest(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	out, err := a.engine.CompleteLogin(r.Context(), sess, member, segment, body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !out.Result.Successful {
		writeMessage(w, http.StatusBadRequest, out.Result.Message)
		return
	}
	next, _ := out.Result.Context["nextMethod"].(string)
	writeJSON(w, http.StatusOK, loginCompletion{
		Success:    true,
		Complete:   out.FullyVerified,
		NextMethod: next,
		Context:    out.Result.Context,
	})
}

func (a *API) removeMethod(w http.ResponseWriter, r *http.Request) {
	member, ok := a.member(w, r)
	if !ok {
		return
	}
	segment, ok := a.segment(w, r)
	if !ok {
		return
	}
	if err := a.engine.RemoveMethod(r.Context(), member, segment); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setDefault(w http.ResponseWriter, r *http.Request) {
	member, ok := a.member(w, r)
	if !ok {
		return
	}
	segment, ok := a.segment(w, r)
	if !ok {
		return
	}
	if err := a.engine.SetDefaultMethod(r.Context(), member, segment); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := a.engine.ClearFlow(r.Context(), sess); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

func (a *API) member(w http.ResponseWriter, r *http.Request) (goMFA.Member, bool) {
	m, err := a.members.ResolveMember(r)
	if err != nil {
		a.writeError(w, r, errors.Mark(err, goMFA.ErrMemberNotFound))
		return goMFA.Member{}, false
	}
	return m, true
}

func (a *API) session(w http.ResponseWriter, r *http.Request) (store.Session, bool) {
	sess, err := a.sessions.Session(w, r)
	if err != nil {
		a.writeError(w, r, errors.Wrap(err, "resolve host session"))
		return nil, false
	}
	return sess, true
}

// segment reads and checks the {urlSegment} route variable. A malformed
// segment is reported the same way as an unknown one.
func (a *API) segment(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := segmentParams{URLSegment: mux.Vars(r)["urlSegment"]}
	if err := a.validate.Struct(p); err != nil {
		writeMessage(w, http.StatusBadRequest, goMFA.MessageNoSuchMethod)
		return "", false
	}
	return p.URLSegment, true
}

func (a *API) flowRequest(w http.ResponseWriter, r *http.Request) (goMFA.Member, store.Session, string, bool) {
	member, ok := a.member(w, r)
	if !ok {
		return goMFA.Member{}, nil, "", false
	}
	segment, ok := a.segment(w, r)
	if !ok {
		return goMFA.Member{}, nil, "", false
	}
	sess, ok := a.session(w, r)
	if !ok {
		return goMFA.Member{}, nil, "", false
	}
	return member, sess, segment, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, method.MessageMalformedRequest)
		return nil, false
	}
	return body, true
}
