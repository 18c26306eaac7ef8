package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"audiovault/config"
	"audiovault/core/errs"
	"audiovault/core/identity"
	"audiovault/core/ingest"
	"audiovault/core/library"
	"audiovault/logger"
	"audiovault/model"
)

// multipartMemory is how much of a multipart body is buffered in memory;
// the rest spills to temp files.
const multipartMemory = 32 << 20

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping() error
}

// APIHandler 处理所有API请求
type APIHandler struct {
	identity *identity.Service
	ingest   *ingest.Pipeline
	library  *library.Service
	db       Pinger
	cfg      *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	identitySvc *identity.Service,
	pipeline *ingest.Pipeline,
	librarySvc *library.Service,
	db Pinger,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		identity: identitySvc,
		ingest:   pipeline,
		library:  librarySvc,
		db:       db,
		cfg:      cfg,
	}
}

// userResponse is returned by registration and login.
type userResponse struct {
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Username string `json:"username"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{UserID: u.ID, Token: u.Token, Username: u.Username}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", logger.ErrorField(err))
	}
}

// CreateUserHandler registers a user from the "username" form field.
// Every failure, duplicates included, is a 400.
func (h *APIHandler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.Register(r.Context(), r.PostFormValue("username"))
	if err != nil {
		logger.Warn("[Register] 创建用户失败", logger.ErrorField(err))
		http.Error(w, fmt.Sprintf("Error creating user: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// LoginHandler returns the credentials for "username". With STRICT_LOGIN the
// "token" field must match too.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	username := r.PostFormValue("username")

	var (
		user *model.User
		err  error
	)
	if h.cfg.StrictLogin {
		user, err = h.identity.AuthenticateWithToken(r.Context(), username, r.PostFormValue("token"))
	} else {
		user, err = h.identity.Authenticate(r.Context(), username)
	}

	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidInput):
			http.Error(w, "Username is required", http.StatusBadRequest)
		case errors.Is(err, errs.ErrNotFound):
			logger.Warn("[Login] 用户不存在", logger.String("username", username))
			http.Error(w, "User not found", http.StatusUnauthorized)
		case errors.Is(err, errs.ErrUnauthorized):
			http.Error(w, "Invalid username or token", http.StatusUnauthorized)
		default:
			logger.Error("[Login] 查询用户失败", logger.ErrorField(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// UploadAudioHandler accepts multipart fields user_id, token and file.
func (h *APIHandler) UploadAudioHandler(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit), http.StatusBadRequest)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing 'file' in form", http.StatusBadRequest)
		return
	}
	defer file.Close()

	res, err := h.ingest.Ingest(r.Context(), ingest.Upload{
		UserID:   r.FormValue("user_id"),
		Token:    r.FormValue("token"),
		Filename: header.Filename,
		Body:     file,
	})
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidFormat):
			http.Error(w, "File format not supported. Please upload a WAV file.", http.StatusBadRequest)
		case errors.Is(err, errs.ErrUnauthorized):
			http.Error(w, "Invalid user_id or token", http.StatusUnauthorized)
		default:
			http.Error(w, fmt.Sprintf("An error occurred while processing the audio: %v", err), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": res.URL})
}

// GetRecordHandler streams the MP3 for ?id=&user= to its owner. Range
// requests are honoured when the store's reader can seek.
func (h *APIHandler) GetRecordHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, userID := q.Get("id"), q.Get("user")
	if id == "" || userID == "" {
		http.Error(w, "Query parameters 'id' and 'user' are required", http.StatusBadRequest)
		return
	}

	rec, err := h.library.Fetch(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			http.Error(w, "Audio record not found", http.StatusNotFound)
			return
		}
		logger.Error("[Record] 读取音频失败", logger.String("id", id), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer rec.Body.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s.%s"`, rec.Record.ID, rec.Record.Format))

	if rs, ok := rec.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, rec.Record.ID+"."+rec.Record.Format, time.Time{}, rs)
		return
	}

	w.Header().Set("Content-Length", fmt.Sprintf("%d", rec.Size))
	if _, err := io.Copy(w, rec.Body); err != nil {
		logger.Warn("[Record] 传输中断", logger.String("id", id), logger.ErrorField(err))
	}
}

// HealthHandler reports whether the database answers.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		logger.Error("[Health] database unreachable", logger.ErrorField(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
