// mock-sandbox is a stand-in runner daemon for exercising sandtrap locally.
// It speaks the runner's JSON-RPC 2.0 protocol over WebSocket text frames
// and simulates a sandbox with configurable hygiene: by default it refuses
// dangerous payloads the way a hardened runner would, and the -leaky flag
// turns those defenses off so a full run shows failures and regressions.
//
// Usage:
//
//	go run . [-listen 127.0.0.1:7070] [-session-cap 8] [-delay 15ms] [-leaky]
//
// Point sandtrap at it:
//
//	sandtrap run --config sandtrap.yaml     # sandbox.url: ws://127.0.0.1:7070/rpc
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type execParams struct {
	Payload   string `json:"payload"`
	SessionID string `json:"session_id,omitempty"`
}

type execResult struct {
	Output    string  `json:"output"`
	ElapsedMs float64 `json:"elapsed_ms"`
}

type sessionParams struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

type sessionResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      uint64    `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// daemon is the simulated runner: session table plus response policy.
type daemon struct {
	mu         sync.Mutex
	sessions   map[string]string
	nextID     int
	lastOutput string

	sessionCap int
	delay      time.Duration
	leaky      bool
}

// blockedFragments are payload substrings a hardened runner refuses.
var blockedFragments = []string{
	"/etc/passwd", "/etc/shadow", "sudo ", "chmod u+s", "../",
	":(){", "fork", "ptrace", "/proc/", "$(", "`", " | nc ",
	"base64", "SANDBOX_CONFIG", ".bashrc", "curl ",
}

func (d *daemon) execute(p execParams) execResult {
	start := time.Now()
	time.Sleep(d.delay)

	out := ""
	if !d.leaky {
		for _, frag := range blockedFragments {
			if strings.Contains(p.Payload, frag) {
				out = "permission denied"
				break
			}
		}
	} else {
		// A leaky sandbox echoes what the payload would have exposed.
		switch {
		case strings.Contains(p.Payload, "/etc/passwd"):
			out = "root:x:0:0:root:/root:/bin/bash"
		case strings.Contains(p.Payload, "sudo"):
			out = "uid=0(root) gid=0(root)"
		case strings.Contains(p.Payload, "env"):
			out = "API_KEY=sk-proj-0123456789abcdefghijklmn"
		}
	}

	d.mu.Lock()
	d.lastOutput = out
	d.mu.Unlock()
	return execResult{Output: out, ElapsedMs: float64(time.Since(start)) / float64(time.Millisecond)}
}

func (d *daemon) createSession(name string) (sessionResult, *rpcError) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sessionCap > 0 && len(d.sessions) >= d.sessionCap {
		return sessionResult{}, &rpcError{Code: -32000, Message: "session limit reached"}
	}
	d.nextID++
	id := fmt.Sprintf("mock-%d", d.nextID)
	d.sessions[id] = name
	return sessionResult{ID: id, Name: name}, nil
}

func (d *daemon) destroySession(id string) *rpcError {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[id]; !ok {
		return &rpcError{Code: -32001, Message: "no such session: " + id}
	}
	delete(d.sessions, id)
	return nil
}

func (d *daemon) handle(req rpcRequest) rpcResponse {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "runner.execute":
		var p execParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = &rpcError{Code: -32602, Message: "invalid params"}
			return resp
		}
		resp.Result = d.execute(p)
	case "runner.createSession":
		var p sessionParams
		_ = json.Unmarshal(req.Params, &p)
		res, rpcErr := d.createSession(p.Name)
		if rpcErr != nil {
			resp.Error = rpcErr
			return resp
		}
		resp.Result = res
	case "runner.destroySession":
		var p sessionParams
		_ = json.Unmarshal(req.Params, &p)
		if rpcErr := d.destroySession(p.ID); rpcErr != nil {
			resp.Error = rpcErr
			return resp
		}
		resp.Result = map[string]bool{"ok": true}
	case "runner.switchSession":
		resp.Result = map[string]bool{"ok": true}
	case "runner.getOutput":
		d.mu.Lock()
		out := d.lastOutput
		d.mu.Unlock()
		resp.Result = map[string]string{"output": out}
	default:
		resp.Error = &rpcError{Code: -32601, Message: "method not found: " + req.Method}
	}
	return resp
}

// serve runs the JSON-RPC loop for one upgraded connection.
func (d *daemon) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		out, err := json.Marshal(d.handle(req))
		if err != nil {
			continue
		}
		if err := wsutil.WriteServerText(conn, out); err != nil {
			return
		}
	}
}

func main() {
	listen := flag.String("listen", "127.0.0.1:7070", "listen address")
	sessionCap := flag.Int("session-cap", 8, "concurrent session limit (0 = unlimited)")
	delay := flag.Duration("delay", 15*time.Millisecond, "simulated execution time per payload")
	leaky := flag.Bool("leaky", false, "disable defenses so payloads visibly succeed")
	flag.Parse()

	d := &daemon{
		sessions:   make(map[string]string),
		sessionCap: *sessionCap,
		delay:      *delay,
		leaky:      *leaky,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			log.Printf("upgrade: %v", err)
			return
		}
		go d.serve(conn)
	})

	srv := &http.Server{Addr: *listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	hygiene := "hardened"
	if *leaky {
		hygiene = "leaky"
	}
	log.Printf("mock sandbox (%s) on ws://%s/rpc", hygiene, *listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
