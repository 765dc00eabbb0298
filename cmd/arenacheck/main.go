package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/park285/cheese-arena/internal/arenaclient"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// arenacheck smoke-tests a running arena: health over HTTP, then a short
// computer game over the socket.
func main() {
	baseURL := os.Getenv("ARENA_BASE_URL")
	wsURL := os.Getenv("ARENA_WS_URL")
	userID := os.Getenv("X_USER_ID")
	if userID == "" {
		userID = "arenacheck"
	}
	difficulty, _ := strconv.Atoi(os.Getenv("CHECK_DIFFICULTY"))

	if baseURL == "" {
		log.Fatal("ARENA_BASE_URL is required")
	}

	client := arenaclient.NewClient(baseURL, userID, arenaclient.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, err := client.Health(ctx)
	if err != nil {
		log.Printf("/healthz error: %v", err)
	} else {
		log.Printf("/healthz ok: sessions=%d queued=%d waitingRooms=%d sockets=%d", h.Sessions, h.Queued, h.WaitingRooms, h.Sockets)
	}

	if created, err := client.CreateRoom(ctx, "random"); err != nil {
		log.Printf("create room error: %v", err)
	} else {
		log.Printf("room ok: code=%s status=%s", created.RoomID, created.Room.Status)
		if _, err := client.CancelRoom(ctx, created.RoomID); err != nil {
			log.Printf("cancel room error: %v", err)
		}
	}

	if wsURL == "" {
		log.Println("ARENA_WS_URL not set; skipping WS check")
		return
	}

	ws := arenaclient.NewSocket(wsURL, "computer", userID, 5)
	ws.OnStateChange(func(state arenaclient.SocketState) {
		log.Printf("WS state: %s", state)
	})
	ws.OnMessage(func(env arenadto.Envelope) {
		fmt.Printf("WS frame type=%s payload=%s\n", env.Type, env.Payload)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	if err := ws.Send(cctx, arenadto.TypeInitComputerGame, arenadto.InitComputerGame{Difficulty: difficulty, Color: "white"}); err != nil {
		log.Printf("init_computer_game error: %v", err)
	}
	if err := ws.Send(cctx, arenadto.TypeMove, arenadto.Move{From: "e2", To: "e4"}); err != nil {
		log.Printf("move error: %v", err)
	}

	// Observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = ws.Send(context.Background(), arenadto.TypeAbort, nil)
	_ = ws.Close(context.Background())
}
