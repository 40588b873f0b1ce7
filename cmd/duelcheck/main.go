package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"nhooyr.io/websocket"

	"github.com/duelboard/duelboard/pkg/dueldto"
)

// duelcheck pings the backing services and, when a gateway URL is set,
// opens a websocket and observes event frames for a short window.
func main() {
	redisURL := os.Getenv("REDIS_URL")
	databaseURL := os.Getenv("DATABASE_URL")
	gatewayURL := os.Getenv("GATEWAY_WS_URL")

	if redisURL == "" {
		log.Fatal("REDIS_URL is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Printf("redis ping error: %v", err)
		} else {
			log.Println("redis ok")
		}
	}
	_ = rdb.Close()

	if databaseURL == "" {
		log.Println("DATABASE_URL not set; skipping postgres check")
	} else {
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			log.Printf("postgres open error: %v", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := db.PingContext(ctx); err != nil {
				log.Printf("postgres ping error: %v", err)
			} else {
				log.Println("postgres ok")
			}
			cancel()
			_ = db.Close()
		}
	}

	if gatewayURL == "" {
		log.Println("GATEWAY_WS_URL not set; skipping gateway check")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, gatewayURL, nil)
	if err != nil {
		log.Printf("gateway dial error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	log.Println("gateway ok")

	hello, _ := json.Marshal(dueldto.Request{Op: dueldto.OpHello, PlayerID: "duelcheck"})
	if err := conn.Write(ctx, websocket.MessageText, hello); err != nil {
		log.Printf("gateway write error: %v", err)
		return
	}

	// Observe for a short window
	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		rctx, rcancel := context.WithDeadline(context.Background(), deadline)
		_, data, err := conn.Read(rctx)
		rcancel()
		if err != nil {
			return
		}
		log.Printf("gateway frame: %s", data)
	}
}
