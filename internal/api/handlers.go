package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-groupchat/internal/chat"
	"github.com/npezzotti/go-groupchat/internal/server"
	"github.com/npezzotti/go-groupchat/internal/types"
	"github.com/npezzotti/go-groupchat/internal/upload"
)

const (
	apiVersion = "1.0.0"

	uploadFormField = "file"
	// multipartOverhead is the slack allowed on top of the file size for the
	// multipart framing and any other form fields.
	multipartOverhead = 1 << 20
)

type indexResponse struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Version   string         `json:"version"`
	Endpoints indexEndpoints `json:"endpoints"`
}

type indexEndpoints struct {
	Rest   map[string]string `json:"rest"`
	Socket map[string]string `json:"socket"`
}

type healthResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type startChatResponse struct {
	Success bool   `json:"success"`
	ChatId  string `json:"chatId"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *GoChatApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError && errResp.Err != nil {
		s.log.Printf("%d: %v", errResp.StatusCode, errResp)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *GoChatApp) index(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, indexResponse{
		Success: true,
		Message: "Chat Backend API",
		Version: apiVersion,
		Endpoints: indexEndpoints{
			Rest: map[string]string{
				"GET /api/chat/history":        "Get chat history",
				"POST /api/chat/start":         "Start new chat",
				"GET /api/chat/users/{userId}": "Get conversation list",
				"GET /api/chat/{chatId}":       "Get chat details",
				"POST /api/upload":             "Upload a file",
			},
			Socket: map[string]string{
				"joinChatRoom":   "Join a chat room",
				"sendMessage":    "Send a message",
				"receiveMessage": "Receive messages (broadcast)",
			},
		},
	})
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.pingTimeout())
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, healthResponse{
		Success:   true,
		Message:   "Server is running",
		Timestamp: time.Now().UTC(),
	})
}

func (s *GoChatApp) pingTimeout() time.Duration {
	if s.storeTimeout > 0 {
		return s.storeTimeout
	}
	return 5 * time.Second
}

// authorizeChat checks that the authenticated user, if any, is a member of
// chatId.
func (s *GoChatApp) authorizeChat(r *http.Request, chatId string) error {
	userId, ok := UserId(r.Context())
	if !ok || chatId == "" {
		return nil
	}

	return s.chats.AuthorizeJoin(r.Context(), chatId, userId)
}

// actsAs reports whether the request may act on behalf of userId.
func actsAs(r *http.Request, userId string) bool {
	authUserId, ok := UserId(r.Context())
	return !ok || authUserId == userId
}

func (s *GoChatApp) getChatHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	chatId := query.Get("chatId")
	// unparsable values fall back to the defaults
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	if err := s.authorizeChat(r, chatId); err != nil {
		s.writeError(w, NewChatError(err))
		return
	}

	history, err := s.chats.History(r.Context(), chatId, limit, offset)
	if err != nil {
		s.writeError(w, NewChatError(err))
		return
	}

	s.writeJson(w, http.StatusOK, history)
}

func (s *GoChatApp) startChat(w http.ResponseWriter, r *http.Request) {
	var req chat.CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.CreatedBy != "" && !actsAs(r, req.CreatedBy) {
		s.writeError(w, NewForbiddenError())
		return
	}

	c, err := s.chats.CreateChat(r.Context(), req)
	if err != nil {
		s.writeError(w, NewChatError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, startChatResponse{
		Success: true,
		ChatId:  c.ChatId,
	})
}

func (s *GoChatApp) getChatUsersList(w http.ResponseWriter, r *http.Request) {
	userId := r.PathValue("userId")
	if !actsAs(r, userId) {
		s.writeError(w, NewForbiddenError())
		return
	}

	exists, err := s.chats.UserExists(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewChatError(err))
		return
	}
	if !exists {
		errResp := NewNotFoundError()
		errResp.Message = "user not found"
		errResp.Code = string(chat.KindUnknownUser)
		s.writeError(w, errResp)
		return
	}

	previews, err := s.conversations.List(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewChatError(err))
		return
	}

	s.writeJson(w, http.StatusOK, previews)
}

func (s *GoChatApp) getChatDetails(w http.ResponseWriter, r *http.Request) {
	chatId := r.PathValue("chatId")

	if err := s.authorizeChat(r, chatId); err != nil {
		s.writeError(w, NewChatError(err))
		return
	}

	details, err := s.chats.Details(r.Context(), chatId)
	if err != nil {
		s.writeError(w, NewChatError(err))
		return
	}

	s.writeJson(w, http.StatusOK, details)
}

func (s *GoChatApp) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxSize()+multipartOverhead)

	part, err := nextFilePart(r)
	if err != nil {
		if errResp := uploadError(err); errResp != nil {
			s.writeError(w, errResp)
			return
		}

		errResp := NewBadRequestError()
		errResp.Message = "no file uploaded"
		s.writeError(w, errResp)
		return
	}
	defer part.Close()

	saved, err := s.uploads.Save(part.FileName(), part)
	if err != nil {
		if errResp := uploadError(err); errResp != nil {
			s.writeError(w, errResp)
			return
		}

		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.log.Printf("stored upload %q (%d bytes, %s)", saved.Filename, saved.Size, saved.MimeType)
	s.writeJson(w, http.StatusOK, types.UploadedFile{
		Success:  true,
		Url:      fileUrl(r, saved.Filename),
		Name:     saved.Name,
		Size:     saved.Size,
		MimeType: saved.MimeType,
	})
}

// nextFilePart returns the first part of the multipart body carrying a file
// in the upload form field.
func nextFilePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}

		if part.FormName() == uploadFormField && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

// uploadError maps the upload failures that are the client's fault, and
// returns nil for anything else.
func uploadError(err error) *ApiError {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, upload.ErrUnsupportedType):
		errResp := NewBadRequestError()
		errResp.Message = err.Error()
		return errResp
	case errors.Is(err, upload.ErrTooLarge), errors.As(err, &maxBytesErr):
		errResp := NewRequestTooLargeError()
		errResp.Message = upload.ErrTooLarge.Error()
		return errResp
	}
	return nil
}

func fileUrl(r *http.Request, filename string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	u := url.URL{
		Scheme: scheme,
		Host:   r.Host,
		Path:   "/uploads/" + filename,
	}
	return u.String()
}

func (s *GoChatApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.cs, s.log, userId)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
