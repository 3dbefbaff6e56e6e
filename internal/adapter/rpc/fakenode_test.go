package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"substrate-gateway/internal/domain/entity"

	"github.com/gorilla/websocket"
)

type nodeRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type nodeHandler func(conn *nodeConn, req nodeRequest) (any, *JSONRPCError)

// fakeNode is a minimal Substrate JSON-RPC node over WebSocket and HTTP.
type fakeNode struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	handlers map[string]nodeHandler
	conns    []*nodeConn
	calls    map[string]int
}

type nodeConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *nodeConn) send(v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.WriteJSON(v)
}

func (c *nodeConn) notify(method, subID string, result any) {
	c.send(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  map[string]any{"subscription": subID, "result": result},
	})
}

func newFakeNode(t *testing.T) *fakeNode {
	n := &fakeNode{
		handlers: map[string]nodeHandler{
			"chain_getBlockHash": func(*nodeConn, nodeRequest) (any, *JSONRPCError) {
				return "0x1111", nil
			},
			"system_health": func(*nodeConn, nodeRequest) (any, *JSONRPCError) {
				return map[string]any{"peers": 12, "isSyncing": false, "shouldHavePeers": true}, nil
			},
		},
		calls: make(map[string]int),
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.serveHTTP))
	t.Cleanup(n.close)
	return n
}

func (n *fakeNode) wsURL() entity.EndpointURL {
	return entity.EndpointURL("ws" + strings.TrimPrefix(n.server.URL, "http"))
}

func (n *fakeNode) httpURL() entity.EndpointURL {
	return entity.EndpointURL(n.server.URL)
}

func (n *fakeNode) handle(method string, h nodeHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

func (n *fakeNode) callCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// dropConnections closes every server-side socket.
func (n *fakeNode) dropConnections() {
	n.mu.Lock()
	conns := n.conns
	n.conns = nil
	n.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}

func (n *fakeNode) close() {
	n.dropConnections()
	n.server.Close()
}

func (n *fakeNode) answer(conn *nodeConn, req nodeRequest) map[string]any {
	n.mu.Lock()
	n.calls[req.Method]++
	h := n.handlers[req.Method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if h == nil {
		resp["error"] = JSONRPCError{Code: -32601, Message: "Method not found"}
		return resp
	}
	result, rpcErr := h(conn, req)
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	return resp
}

func (n *fakeNode) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		var req nodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(n.answer(nil, req))
		return
	}

	ws, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &nodeConn{ws: ws}
	n.mu.Lock()
	n.conns = append(n.conns, conn)
	n.mu.Unlock()

	for {
		var req nodeRequest
		if err := ws.ReadJSON(&req); err != nil {
			return
		}
		conn.send(n.answer(conn, req))
	}
}

func entityURL(s string) entity.EndpointURL {
	return entity.EndpointURL(s)
}
