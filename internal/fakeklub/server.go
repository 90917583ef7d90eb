package fakeklub

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"klub/internal/reqid"
	"klub/pkg/models"
)

const maxPostsLimit = 100

// Route names accepted by FailNext.
const (
	RouteListAll         = "listAll"
	RouteListByWorkspace = "listByWorkspace"
	RouteCreatePost      = "createPost"
	RouteUpdatePost      = "updatePost"
	RouteDeletePost      = "deletePost"
	RouteLikePost        = "likePost"
	RouteUnlikePost      = "unlikePost"
	RouteCreateComment   = "createComment"
	RouteUpdateComment   = "updateComment"
	RouteDeleteComment   = "deleteComment"
	RouteLikeComment     = "likeComment"
	RouteUnlikeComment   = "unlikeComment"
	RouteListMine        = "listMine"
	RouteCreateWorkspace = "createWorkspace"
	RouteCommunity       = "community"
	RouteCourseOrder     = "courseOrder"
	RouteCourseVerify    = "courseVerify"
	RouteCommunityOrder  = "communityOrder"
	RouteCommunityVerify = "communityVerify"
	RouteJoinOrder       = "joinOrder"
	RouteJoinVerify      = "joinVerify"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type contentBody struct {
	Content string `json:"content"`
}

// Request is one recorded call.
type Request struct {
	Method string
	Path   string
	Route  string
	Body   []byte
}

type failure struct {
	status  int
	message string
}

type Server struct {
	Store  *Store
	Token  string
	Secret string
	User   models.Author

	r *mux.Router

	mu       sync.Mutex
	failNext map[string][]failure
	requests []Request
}

// New returns a server with an empty store. Requests must carry
// "Bearer <token>" unless token is empty.
func New(token, secret string, user models.Author) *Server {
	s := Server{
		Store:    NewStore(),
		Token:    token,
		Secret:   secret,
		User:     user,
		r:        mux.NewRouter(),
		failNext: make(map[string][]failure),
	}
	s.endpoints()

	return &s
}

func (s *Server) Router() *mux.Router {
	return s.r
}

func (s *Server) endpoints() {
	s.r.Use(reqid.Middleware)
	s.r.Use(s.headerMiddleware)
	s.r.Use(s.recordMiddleware)
	s.r.Use(s.authMiddleware)
	s.r.Use(s.failureMiddleware)

	c := s.r.PathPrefix("/communities/{cid}").Subrouter()
	c.HandleFunc("", s.communityHandler).Methods(http.MethodGet).Name(RouteCommunity)
	c.HandleFunc("/posts", s.listPostsHandler).Methods(http.MethodGet).Name(RouteListAll)
	c.HandleFunc("/workspaces/mine", s.listMineHandler).Methods(http.MethodGet).Name(RouteListMine)
	c.HandleFunc("/workspaces", s.createWorkspaceHandler).Methods(http.MethodPost).Name(RouteCreateWorkspace)
	c.HandleFunc("/workspaces/{wid}/posts", s.listPostsHandler).Methods(http.MethodGet).Name(RouteListByWorkspace)
	c.HandleFunc("/workspaces/{wid}/posts", s.createPostHandler).Methods(http.MethodPost).Name(RouteCreatePost)
	c.HandleFunc("/posts/{pid}", s.updatePostHandler).Methods(http.MethodPatch).Name(RouteUpdatePost)
	c.HandleFunc("/posts/{pid}", s.deletePostHandler).Methods(http.MethodDelete).Name(RouteDeletePost)
	c.HandleFunc("/posts/{pid}/like", s.likeHandler).Methods(http.MethodPost).Name(RouteLikePost)
	c.HandleFunc("/posts/{pid}/like", s.unlikeHandler).Methods(http.MethodDelete).Name(RouteUnlikePost)
	c.HandleFunc("/posts/{pid}/comments", s.createCommentHandler).Methods(http.MethodPost).Name(RouteCreateComment)
	c.HandleFunc("/posts/{pid}/comments/{mid}", s.updateCommentHandler).Methods(http.MethodPatch).Name(RouteUpdateComment)
	c.HandleFunc("/posts/{pid}/comments/{mid}", s.deleteCommentHandler).Methods(http.MethodDelete).Name(RouteDeleteComment)
	c.HandleFunc("/posts/{pid}/comments/{mid}/like", s.likeHandler).Methods(http.MethodPost).Name(RouteLikeComment)
	c.HandleFunc("/posts/{pid}/comments/{mid}/like", s.unlikeHandler).Methods(http.MethodDelete).Name(RouteUnlikeComment)
	c.HandleFunc("/courses/{course}/order", s.courseOrderHandler).Methods(http.MethodPost).Name(RouteCourseOrder)
	c.HandleFunc("/join/order", s.joinOrderHandler).Methods(http.MethodPost).Name(RouteJoinOrder)
	c.HandleFunc("/join/verify", s.verifyHandler).Methods(http.MethodPost).Name(RouteJoinVerify)

	s.r.HandleFunc("/payments/course/verify", s.verifyHandler).Methods(http.MethodPost).Name(RouteCourseVerify)
	s.r.HandleFunc("/payments/community/order", s.communityOrderHandler).Methods(http.MethodPost).Name(RouteCommunityOrder)
	s.r.HandleFunc("/payments/community/verify", s.verifyHandler).Methods(http.MethodPost).Name(RouteCommunityVerify)
}

// FailNext makes the next request to route fail with status and message.
// Calls queue up.
func (s *Server) FailNext(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[route] = append(s.failNext[route], failure{status, message})
}

// Requests returns the recorded requests, optionally only those to route.
func (s *Server) Requests(route string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Request
	for _, r := range s.requests {
		if route == "" || r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) headerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		var route string
		if cr := mux.CurrentRoute(r); cr != nil {
			route = cr.GetName()
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Route: route, Body: body})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) failureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var route string
		if cr := mux.CurrentRoute(r); cr != nil {
			route = cr.GetName()
		}

		s.mu.Lock()
		queue := s.failNext[route]
		var f *failure
		if len(queue) > 0 {
			f = &queue[0]
			s.failNext[route] = queue[1:]
		}
		s.mu.Unlock()

		if f != nil {
			log.Debugf("[failureMiddleware][%s] injected failure %d on %s", reqid.ShortFrom(r.Context()), f.status, route)
			writeError(w, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		log.Errorf("[writeJSON] failed to encode response data: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: false, Message: message}); err != nil {
		log.Errorf("[writeError] failed to encode error response: %v", err)
	}
}

// writeStoreError maps store errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, r *http.Request, handler string, err error) {
	sID := reqid.ShortFrom(r.Context())
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Resource not found")
		log.Debugf("[%s][%s] %v", handler, sID, err)
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, "Resource already exists")
		log.Debugf("[%s][%s] %v", handler, sID, err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		log.Errorf("[%s][%s] %v", handler, sID, err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, handler string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		log.Debugf("[%s][%s] failed to decode request body: %v", handler, reqid.ShortFrom(r.Context()), err)
		return false
	}
	return true
}

func (s *Server) communityHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.Store.Community(mux.Vars(r)["cid"])
	if err != nil {
		writeStoreError(w, r, "communityHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) listPostsHandler(w http.ResponseWriter, r *http.Request) {
	sID := reqid.ShortFrom(r.Context())
	vars := mux.Vars(r)

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 10
	}
	if limit > maxPostsLimit {
		writeError(w, http.StatusBadRequest, "Limit parameter is too big")
		log.Debugf("[listPostsHandler][%s] request with too big limit parameter", sID)
		return
	}

	posts, numPages, err := s.Store.Posts(vars["cid"], vars["wid"], page, limit)
	if err != nil {
		writeStoreError(w, r, "listPostsHandler", err)
		return
	}

	writeJSON(w, http.StatusOK, models.PostsPage{
		Posts:      posts,
		Pagination: models.Pagination{TotalPages: numPages, CurrentPage: page, Limit: limit},
	})
	log.Debugf("[listPostsHandler][%s] %d posts sent to: %v", sID, len(posts), r.RemoteAddr)
}

func (s *Server) listMineHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := s.Store.Workspaces(mux.Vars(r)["cid"])
	if err != nil {
		writeStoreError(w, r, "listMineHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) createWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	var in models.WorkspaceInput
	if !decode(w, r, "createWorkspaceHandler", &in) {
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "Workspace name is required")
		return
	}

	ws, err := s.Store.CreateWorkspace(mux.Vars(r)["cid"], in)
	if err != nil {
		writeStoreError(w, r, "createWorkspaceHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	var in models.PostInput
	if !decode(w, r, "createPostHandler", &in) {
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		writeError(w, http.StatusBadRequest, "Content is required")
		return
	}

	vars := mux.Vars(r)
	p, err := s.Store.CreatePost(vars["cid"], vars["wid"], s.User, in)
	if err != nil {
		writeStoreError(w, r, "createPostHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) updatePostHandler(w http.ResponseWriter, r *http.Request) {
	var in contentBody
	if !decode(w, r, "updatePostHandler", &in) {
		return
	}

	vars := mux.Vars(r)
	p, err := s.Store.UpdatePost(vars["cid"], vars["pid"], in.Content)
	if err != nil {
		writeStoreError(w, r, "updatePostHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePostHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.Store.DeletePost(vars["cid"], vars["pid"]); err != nil {
		writeStoreError(w, r, "deletePostHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) likeHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	l, err := s.Store.Like(vars["cid"], vars["pid"], vars["mid"], s.User.ID)
	if err != nil {
		writeStoreError(w, r, "likeHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) unlikeHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.Store.Unlike(vars["cid"], vars["pid"], vars["mid"], s.User.ID); err != nil {
		writeStoreError(w, r, "unlikeHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) createCommentHandler(w http.ResponseWriter, r *http.Request) {
	var in contentBody
	if !decode(w, r, "createCommentHandler", &in) {
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		writeError(w, http.StatusBadRequest, "Content is required")
		return
	}

	vars := mux.Vars(r)
	c, err := s.Store.CreateComment(vars["cid"], vars["pid"], s.User, in.Content)
	if err != nil {
		writeStoreError(w, r, "createCommentHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) updateCommentHandler(w http.ResponseWriter, r *http.Request) {
	var in contentBody
	if !decode(w, r, "updateCommentHandler", &in) {
		return
	}

	vars := mux.Vars(r)
	c, err := s.Store.UpdateComment(vars["cid"], vars["pid"], vars["mid"], in.Content)
	if err != nil {
		writeStoreError(w, r, "updateCommentHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.Store.DeleteComment(vars["cid"], vars["pid"], vars["mid"]); err != nil {
		writeStoreError(w, r, "deleteCommentHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) courseOrderHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	o, err := s.Store.CreateCourseOrder(vars["cid"], vars["course"])
	if err != nil {
		writeStoreError(w, r, "courseOrderHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) communityOrderHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, s.Store.CreateCommunityOrder())
}

func (s *Server) joinOrderHandler(w http.ResponseWriter, r *http.Request) {
	o, err := s.Store.CreateJoinOrder(mux.Vars(r)["cid"])
	if err != nil {
		writeStoreError(w, r, "joinOrderHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	var v models.PaymentVerification
	if !decode(w, r, "verifyHandler", &v) {
		return
	}
	if cid, ok := mux.Vars(r)["cid"]; ok && v.CommunityID == "" {
		v.CommunityID = cid
	}

	res, err := s.Store.Verify(s.Secret, v)
	if err != nil {
		writeStoreError(w, r, "verifyHandler", err)
		return
	}
	log.Debugf("[verifyHandler][%s] payment %s verified: %v", reqid.ShortFrom(r.Context()), v.PaymentID, res.Success)

	// The verdict travels in the envelope; data only carries the community.
	env := envelope{Success: res.Success, Message: res.Message}
	if res.Success && res.Community != nil {
		env.Data = map[string]any{"community": res.Community}
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Errorf("[verifyHandler] failed to encode response: %v", err)
	}
}
