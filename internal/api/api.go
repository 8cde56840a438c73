// Package api exposes Margot's HTTP surface: the Twilio WhatsApp webhook,
// a status route, and the pump that feeds direct-connection messages from
// the messaging service into the conversation flow.
package api

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/clinicbot/margot/internal/messaging"
)

const (
	// DefaultAddr is where the webhook listens when no address is configured.
	DefaultAddr = ":8000"
	// ServiceVersion is reported by the status route.
	ServiceVersion = "1.4.0"

	shutdownTimeout = 5 * time.Second
)

// MessageHandler processes one inbound patient message and returns the
// reply text; an empty reply means "send nothing".
type MessageHandler interface {
	HandleMessage(ctx context.Context, sender, text string) string
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
	// InterPartDelay is the pause between parts of a split reply.
	InterPartDelay time.Duration
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithInterPartDelay overrides the delay between split message parts.
func WithInterPartDelay(d time.Duration) Option {
	return func(o *Opts) { o.InterPartDelay = d }
}

// Server wires the conversation flow to the HTTP transport.
type Server struct {
	handler    MessageHandler
	msgService messaging.Service
	opts       Opts
	httpServer *http.Server
}

// NewServer creates the API server over the given conversation handler and
// messaging service.
func NewServer(handler MessageHandler, msgService messaging.Service, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, InterPartDelay: messaging.InterPartDelay}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		handler:    handler,
		msgService: msgService,
		opts:       cfg,
	}
}

// Run starts the messaging service, the responses pump, and the HTTP
// server, and blocks until the context is cancelled or the server fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.msgService.Start(ctx); err != nil {
		return err
	}
	go s.pumpResponses(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/whatsapp", s.whatsappWebhookHandler)
	mux.HandleFunc("/", s.statusHandler)
	s.httpServer = &http.Server{Addr: s.opts.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.opts.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: shutdown error", "error", err)
	}
	if err := s.msgService.Stop(); err != nil {
		slog.Error("Server.Run: messaging service stop error", "error", err)
	}
	return nil
}

// pumpResponses consumes inbound messages from the messaging service (the
// whatsmeow path; Twilio traffic arrives over the webhook instead) and
// sends every part of the reply back through the service.
func (s *Server) pumpResponses(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-s.msgService.Responses():
			if !ok {
				return
			}
			reply := s.handler.HandleMessage(ctx, resp.From, resp.Body)
			if reply == "" {
				continue
			}
			parts := messaging.SplitMessage(reply, messaging.MaxMessageBytes)
			for i, part := range parts {
				if err := s.msgService.SendMessage(ctx, resp.From, part); err != nil {
					slog.Error("Server.pumpResponses: send failed", "to", resp.From, "part", i+1, "error", err)
					break
				}
				if i < len(parts)-1 {
					time.Sleep(s.opts.InterPartDelay)
				}
			}
		}
	}
}

// twimlResponse is the Twilio reply envelope. An empty envelope tells
// Twilio there is nothing to send.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

func writeTwiML(w http.ResponseWriter, message string) {
	body, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		slog.Error("Server.writeTwiML: marshal failed", "error", err)
		body = []byte("<Response></Response>")
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append([]byte(xml.Header), body...)); err != nil {
		slog.Error("Server.writeTwiML: write failed", "error", err)
	}
}

// whatsappWebhookHandler receives inbound Twilio messages. It always
// returns a well-formed TwiML envelope, even for malformed or empty
// requests: Twilio retries on bare server errors and the patient would get
// duplicate replies.
func (s *Server) whatsappWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.whatsappWebhookHandler: malformed form", "error", err)
		writeTwiML(w, "")
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Server.whatsappWebhookHandler: missing fields", "from_set", from != "", "body_set", body != "")
		writeTwiML(w, "")
		return
	}

	reply := s.handler.HandleMessage(r.Context(), from, body)
	if reply == "" {
		writeTwiML(w, "")
		return
	}

	// Long replies are split: every part but the last goes out through the
	// REST API with a short pause, the final part rides the TwiML reply.
	parts := messaging.SplitMessage(reply, messaging.MaxMessageBytes)
	if len(parts) == 0 {
		writeTwiML(w, "")
		return
	}
	for _, part := range parts[:len(parts)-1] {
		if err := s.msgService.SendMessage(r.Context(), from, part); err != nil {
			slog.Error("Server.whatsappWebhookHandler: failed to send reply part", "to", from, "error", err)
			writeTwiML(w, "Erro ao enviar parte da resposta. Tente novamente?")
			return
		}
		time.Sleep(s.opts.InterPartDelay)
	}
	writeTwiML(w, parts[len(parts)-1])
}

// statusHandler reports service liveness.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	payload := map[string]string{
		"message": "API da Margot (Clínica Missel) está online!",
		"version": ServiceVersion,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Server.statusHandler: encode failed", "error", err)
	}
}
