package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// End-to-end smoke client: two players queue, get matched, join the game
// room, ready up and wait for the race to start.
func main() {
	mmPort := os.Getenv("MM_PORT")
	if mmPort == "" {
		mmPort = "3002"
	}
	gamePort := os.Getenv("BACKEND_PORT")
	if gamePort == "" {
		gamePort = "3001"
	}

	dialer := websocket.DefaultDialer
	mmURL := fmt.Sprintf("ws://127.0.0.1:%s/ws/matchmaking", mmPort)

	connA := dial(dialer, mmURL, "A")
	defer connA.Close()
	connB := dial(dialer, mmURL, "B")
	defer connB.Close()

	send(connA, map[string]any{"type": "queue:join", "playerName": "smokeA"})
	send(connB, map[string]any{"type": "queue:join", "playerName": "smokeB"})

	matchA := waitFor(connA, "match:found", 10*time.Second)
	matchB := waitFor(connB, "match:found", 10*time.Second)
	roomID, _ := matchA["roomId"].(string)
	if roomID == "" {
		log.Fatal("no roomId in match:found")
	}
	log.Printf("matched into room %s", roomID)

	gameA := dialGame(dialer, gamePort, matchA)
	defer gameA.Close()
	gameB := dialGame(dialer, gamePort, matchB)
	defer gameB.Close()

	send(gameA, map[string]any{"type": "room:join_matched", "roomId": roomID, "playerName": "smokeA"})
	send(gameB, map[string]any{"type": "room:join_matched", "roomId": roomID, "playerName": "smokeB"})
	waitFor(gameA, "room:joined", 5*time.Second)
	waitFor(gameB, "room:joined", 5*time.Second)

	send(gameA, map[string]any{"type": "player:ready_to_play"})
	send(gameB, map[string]any{"type": "player:ready_to_play"})

	waitFor(gameA, "game:start", 10*time.Second)
	waitFor(gameB, "game:start", 10*time.Second)
	log.Println("race started, smoke test finished")
}

func dial(dialer *websocket.Dialer, wsURL, name string) *websocket.Conn {
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", name, err)
	}
	return conn
}

func dialGame(dialer *websocket.Dialer, port string, match map[string]any) *websocket.Conn {
	gameURL := fmt.Sprintf("ws://127.0.0.1:%s/ws/game", port)
	if token, ok := match["token"].(string); ok && token != "" {
		gameURL += "?token=" + url.QueryEscape(token)
	}
	return dial(dialer, gameURL, "game")
}

func send(conn *websocket.Conn, msg map[string]any) {
	data, _ := json.Marshal(msg)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Fatalf("write: %v", err)
	}
}

func waitFor(conn *websocket.Conn, want string, timeout time.Duration) map[string]any {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(msg, &obj); err != nil {
			continue
		}
		if t, _ := obj["type"].(string); t == want {
			return obj
		}
	}
	log.Fatalf("timed out waiting for %s", want)
	return nil
}
