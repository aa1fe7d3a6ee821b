package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/guseggert/osinthub/proxy"
	"github.com/guseggert/osinthub/service"
	"github.com/guseggert/osinthub/stream"
	"github.com/guseggert/osinthub/tool"
	"github.com/julienschmidt/httprouter"
	"nhooyr.io/websocket"
)

type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

type ControlRequest struct {
	ID     string `json:"id"`
	Action Action `json:"action"`
}

type ControlResponse struct {
	Status service.State `json:"status"`
}

func (h *Hub) writeJSON(w http.ResponseWriter, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		proxy.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(b)
	if err != nil {
		h.logger.Debugf("error writing response: %s", err)
	}
}

func (h *Hub) listTools(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h.writeJSON(w, h.tools.All())
}

func (h *Hub) status(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h.writeJSON(w, h.controller.Status())
}

// control starts or stops a service tool.
func (h *Hub) control(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	var req ControlRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		proxy.WriteError(w, http.StatusBadRequest, fmt.Sprintf("decoding request: %s", err))
		return
	}
	_, err = h.tools.Service(req.ID)
	if err != nil {
		proxy.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var state service.State
	switch req.Action {
	case ActionStart:
		state, err = h.controller.Start(req.ID)
	case ActionStop:
		state, err = h.controller.Stop(req.ID)
	default:
		proxy.WriteError(w, http.StatusBadRequest, "Invalid action")
		return
	}
	if errors.Is(err, tool.ErrUnknownTool) {
		proxy.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		proxy.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, ControlResponse{Status: state})
}

// cli streams a scan as Server-Sent Events.
func (h *Hub) cli(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	ctx, end, ok := h.beginSession(r.Context())
	if !ok {
		proxy.WriteError(w, http.StatusServiceUnavailable, "server is stopping")
		return
	}
	defer end()
	q := r.URL.Query()
	em := stream.NewSSEEmitter(w)
	final := h.gateway.Run(ctx, em, q.Get("tool"), q.Get("args"))
	h.logger.Debugw("SSE scan finished", "Tool", q.Get("tool"), "State", final)
}

// cliWS streams a scan as JSON WebSocket messages.
func (h *Hub) cliWS(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	ctx, end, ok := h.beginSession(r.Context())
	if !ok {
		proxy.WriteError(w, http.StatusServiceUnavailable, "server is stopping")
		return
	}
	defer end()
	q := r.URL.Query()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Debugf("WebSocket accept error: %s", err)
		return
	}
	// Clients never send messages, so the read side only watches for the close.
	ctx = conn.CloseRead(ctx)
	em := stream.NewWSEmitter(h.logger, conn)
	final := h.gateway.Run(ctx, em, q.Get("tool"), q.Get("args"))
	h.logger.Debugw("WebSocket scan finished", "Tool", q.Get("tool"), "State", final)
}

func (h *Hub) hunter(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h.proxy.Hunter(w, r)
}

func (h *Hub) shodan(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h.proxy.Shodan(w, r)
}

// withCORS allows any origin to call the API.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		next.ServeHTTP(w, r)
	})
}

// preflight answers CORS preflight requests. The router has already set the Allow header.
func preflight(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Access-Control-Request-Method") != "" {
		h := w.Header()
		h.Set("Access-Control-Allow-Methods", h.Get("Allow"))
		h.Set("Access-Control-Allow-Headers", "Content-Type")
	}
	w.WriteHeader(http.StatusNoContent)
}
