package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-groupchat/internal/chat"
	"github.com/npezzotti/go-groupchat/internal/config"
	"github.com/npezzotti/go-groupchat/internal/database"
	"github.com/npezzotti/go-groupchat/internal/server"
	"github.com/npezzotti/go-groupchat/internal/types"
	"github.com/npezzotti/go-groupchat/internal/upload"
)

// ChatService serves chat creation and the read-only chat queries.
type ChatService interface {
	CreateChat(ctx context.Context, req chat.CreateChatRequest) (database.Chat, error)
	History(ctx context.Context, chatId string, limit, offset int) (types.History, error)
	Details(ctx context.Context, chatId string) (types.Chat, error)
	AuthorizeJoin(ctx context.Context, chatId, userId string) error
	UserExists(ctx context.Context, userId string) (bool, error)
}

// ConversationLister builds a user's conversation list.
type ConversationLister interface {
	List(ctx context.Context, userId string) ([]types.ChatPreview, error)
}

type GoChatApp struct {
	log            *log.Logger
	db             database.ChatRepository
	srv            *http.Server
	cs             *server.ChatServer
	chats          ChatService
	conversations  ConversationLister
	uploads        *upload.Store
	signingKey     []byte
	allowedOrigins []string
	storeTimeout   time.Duration
}

func NewGoChatApp(
	mux *http.ServeMux,
	logger *log.Logger,
	cs *server.ChatServer,
	db database.ChatRepository,
	chats ChatService,
	conversations ConversationLister,
	uploads *upload.Store,
	cfg *config.Config,
) *GoChatApp {
	s := &GoChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		chats:          chats,
		conversations:  conversations,
		uploads:        uploads,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		storeTimeout:   cfg.StoreTimeout,
	}

	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("GET /health", s.healthCheck)
	mux.HandleFunc("GET /api/chat/history", s.authMiddleware(s.getChatHistory))
	mux.HandleFunc("POST /api/chat/start", s.authMiddleware(s.startChat))
	mux.HandleFunc("GET /api/chat/users/{userId}", s.authMiddleware(s.getChatUsersList))
	mux.HandleFunc("GET /api/chat/{chatId}", s.authMiddleware(s.getChatDetails))
	mux.HandleFunc("POST /api/upload", s.authMiddleware(s.uploadFile))
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))
	if uploads != nil {
		mux.Handle("GET /uploads/", http.StripPrefix("/uploads", noDirListing(http.FileServer(http.Dir(uploads.Dir())))))
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)
	if logger != nil {
		h = handlers.CombinedLoggingHandler(logger.Writer(), h)
	}

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *GoChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
