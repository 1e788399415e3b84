// Command arenacheck probes a running arena: health endpoint, then a
// websocket round trip that opens and leaves a throwaway room.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	baseURL := strings.TrimRight(os.Getenv("ARENA_BASE_URL"), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}

	hc := &http.Client{Timeout: 5 * time.Second}
	resp, err := hc.Get(baseURL + "/healthz")
	if err != nil {
		log.Fatalf("/healthz error: %v", err)
	}
	var health map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&health)
	_ = resp.Body.Close()
	log.Printf("/healthz status=%d body=%v", resp.StatusCode, health)

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		log.Fatalf("ws dial error: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	create := map[string]any{"type": "createRoom", "data": map[string]any{"name": "arenacheck", "mode": "friend"}}
	if err := wsjson.Write(ctx, conn, create); err != nil {
		log.Fatalf("ws write error: %v", err)
	}
	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		log.Fatalf("ws read error: %v", err)
	}
	fmt.Printf("ws event type=%s data=%s\n", f.Type, f.Data)
	if f.Type != "roomCreated" {
		os.Exit(1)
	}

	if err := wsjson.Write(ctx, conn, map[string]any{"type": "leaveRoom"}); err != nil {
		log.Printf("ws leave error: %v", err)
	}
}
