package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/xhad/grag/pkg/rag"
	"github.com/xhad/grag/pkg/scraper"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type Config struct {
	Addr            string
	ScrapeMaxDepth  int
	ScrapeRateLimit float64
	Logger          *zap.Logger
}

// WSServer exposes the retrieval engine over a websocket: clients send
// typed messages (query, ingest, delete, stats) and receive status,
// progress and result messages back on the same connection.
type WSServer struct {
	config Config
	engine *rag.Engine
	logger *zap.Logger
}

func NewWSServer(engine *rag.Engine, config Config) *WSServer {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ScrapeMaxDepth == 0 {
		config.ScrapeMaxDepth = 3
	}
	if config.ScrapeRateLimit == 0 {
		config.ScrapeRateLimit = 2.0
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &WSServer{
		config: config,
		engine: engine,
		logger: config.Logger,
	}
}

// Handler returns the routes served by this server.
func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe blocks serving /ws and /health on the configured address.
func (s *WSServer) ListenAndServe() error {
	s.logger.Info("starting websocket server", zap.String("addr", s.config.Addr))
	return http.ListenAndServe(s.config.Addr, s.Handler())
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("connection closed", zap.Error(err))
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendMessage(conn, "error", fmt.Sprintf("invalid message: %v", err))
			continue
		}

		s.handleMessage(r.Context(), conn, msg)
	}
}

func (s *WSServer) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	switch msg.Type {
	case "query":
		s.handleQuery(ctx, conn, msg.Content)
	case "ingest":
		s.handleIngest(ctx, conn, msg.Content)
	case "delete":
		s.handleDelete(ctx, conn, msg.Content)
	case "stats":
		s.handleStats(ctx, conn)
	default:
		s.sendMessage(conn, "error", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (s *WSServer) handleQuery(ctx context.Context, conn *websocket.Conn, question string) {
	result, err := s.engine.Query(ctx, question, s.engine.Options())
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("query failed: %v", err))
		return
	}

	if result.Degraded {
		s.sendMessage(conn, "status", "partial results: one search leg was unavailable")
	}

	s.send(conn, Message{Type: "sources", Data: result.Sources})
	if result.Answer != "" {
		s.sendMessage(conn, "response", result.Answer)
	}
}

func (s *WSServer) handleIngest(ctx context.Context, conn *websocket.Conn, url string) {
	s.sendMessage(conn, "status", fmt.Sprintf("Processing URL: %s", url))

	var processedCount int32
	sc, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:   url,
		MaxDepth:  s.config.ScrapeMaxDepth,
		RateLimit: s.config.ScrapeRateLimit,
		Logger:    s.logger,
		OnProgress: func(url string) {
			atomic.AddInt32(&processedCount, 1)
			s.sendMessage(conn, "progress", fmt.Sprintf("Scraped %d pages", processedCount))
		},
	})
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("failed to initialize scraper: %v", err))
		return
	}

	docs, err := sc.Scrape(ctx, url)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("failed to scrape URL: %v", err))
		return
	}
	s.sendMessage(conn, "status", fmt.Sprintf("Scraped %d documents", len(docs)))

	ids, err := s.engine.AddDocuments(ctx, docs)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("ingestion failed: %v", err))
		return
	}

	s.send(conn, Message{
		Type:    "ingested",
		Content: fmt.Sprintf("Ingested %d documents", len(ids)),
		Data:    ids,
	})
}

func (s *WSServer) handleDelete(ctx context.Context, conn *websocket.Conn, id string) {
	if err := s.engine.DeleteDocument(ctx, id); err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("delete failed: %v", err))
		return
	}
	s.sendMessage(conn, "deleted", id)
}

func (s *WSServer) handleStats(ctx context.Context, conn *websocket.Conn) {
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("stats failed: %v", err))
		return
	}
	s.send(conn, Message{Type: "stats", Data: stats})
}

func (s *WSServer) sendMessage(conn *websocket.Conn, msgType string, content string) {
	s.send(conn, Message{Type: msgType, Content: content})
}

func (s *WSServer) send(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Error("failed to send message", zap.Error(err))
	}
}
