package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/escrowauction/hostapi"
)

// HostServer accepts auction operations over vsock and dispatches them to
// the runtime one connection at a time per worker slot.
type HostServer struct {
	port       uint32
	maxWorkers int
	runtime    *Runtime
}

// NewHostServer creates a server for the given runtime.
func NewHostServer(cfg Config, runtime *Runtime) *HostServer {
	return &HostServer{
		port:       cfg.VsockPort,
		maxWorkers: cfg.MaxWorkers,
		runtime:    runtime,
	}
}

func (s *HostServer) Start() error {
	listener, err := vsock.Listen(s.port, nil)
	if err != nil {
		return fmt.Errorf("failed to create vsock listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Printf("ERROR: Failed to close listener: %v", err)
		}
	}()

	log.Printf("INFO: Auction host listening on vsock port %d", s.port)

	semaphore := make(chan struct{}, s.maxWorkers)
	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", s.maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("ERROR: Failed to accept vsock connection: %v", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }() // Release worker slot
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *HostServer) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var buf bytes.Buffer
	_, err := io.Copy(&buf, conn)
	if err != nil {
		log.Printf("ERROR: Failed to read request: %v", err)
		return
	}

	response := s.dispatch(buf.Bytes())

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

// dispatch decodes the base request type and routes to the matching
// runtime operation. Structurally invalid requests are rejected at the
// wire without touching state.
func (s *HostServer) dispatch(raw []byte) any {
	var baseReq struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &baseReq); err != nil {
		log.Printf("ERROR: Failed to decode base request: %v", err)
		return map[string]any{
			"type":    "error",
			"message": fmt.Sprintf("Failed to decode request: %v", err),
		}
	}

	log.Printf("INFO: Received request type: %s", baseReq.Type)

	switch baseReq.Type {
	case hostapi.TypePing:
		return map[string]any{
			"type":      "pong",
			"message":   "Auction host is healthy",
			"timestamp": time.Now().Unix(),
		}

	case hostapi.TypeCreateAuction:
		var req hostapi.CreateAuctionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeError(baseReq.Type, err)
		}
		return s.runtime.CreateAuction(req)

	case hostapi.TypeBid:
		var req hostapi.BidRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeError(baseReq.Type, err)
		}
		return s.runtime.Bid(req)

	case hostapi.TypeFinalize:
		var req hostapi.FinalizeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeError(baseReq.Type, err)
		}
		return s.runtime.Finalize(req)

	case hostapi.TypeView:
		var req hostapi.ViewRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeError(baseReq.Type, err)
		}
		return s.runtime.View(req)

	case hostapi.TypeViewHighestBid:
		var req hostapi.ViewHighestBidRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeError(baseReq.Type, err)
		}
		return s.runtime.ViewHighestBid(req)

	default:
		return map[string]any{
			"type":    "error",
			"message": fmt.Sprintf("Unknown request type: %s", baseReq.Type),
		}
	}
}

func decodeError(reqType string, err error) map[string]any {
	log.Printf("ERROR: Failed to decode %s request: %v", reqType, err)
	return map[string]any{
		"type":    "error",
		"message": fmt.Sprintf("Failed to decode %s request: %v", reqType, err),
	}
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to open store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("ERROR: Failed to close store: %v", err)
		}
	}()

	server := NewHostServer(cfg, NewRuntime(store))
	log.Fatal(server.Start())
}
