// Command feedwatch tails the live post stream, or holds many listeners open
// to measure fan-out.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks listener results
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	EventsReceived       int64
}

type feedEvent struct {
	Channel string          `json:"channel"`
	Action  string          `json:"action"`
	Post    json.RawMessage `json:"post"`
}

var metrics Metrics

func main() {
	host := flag.String("host", "localhost:8080", "API server host")
	email := flag.String("email", "", "log in as this user; anonymous when empty")
	clients := flag.Int("clients", 1, "number of concurrent listeners")
	duration := flag.Duration("duration", 0, "stop after this long; 0 runs until interrupted")
	flag.Parse()

	var token string
	if *email != "" {
		password := os.Getenv("FEEDWATCH_PASSWORD")
		if password == "" {
			log.Fatal("FEEDWATCH_PASSWORD must be set when -email is given")
		}
		var err error
		if token, err = login(*host, *email, password); err != nil {
			log.Fatalf("Login failed: %v", err)
		}
		log.Printf("Logged in as %s", *email)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})
	verbose := *clients == 1
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go runListener(*host, token, verbose, stopChan, &wg)
		if *clients > 1 {
			time.Sleep(20 * time.Millisecond)
		}
	}

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}
	select {
	case <-deadline:
		log.Println("Duration reached")
	case <-interrupt:
		log.Println("Interrupted")
	}

	close(stopChan)
	wg.Wait()
	printMetrics()
}

func login(host, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(fmt.Sprintf("http://%s/api/auth/login", host), "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", fmt.Errorf("server did not return a bearer token; is it running the session strategy?")
	}
	return result.Token, nil
}

func runListener(host, token string, verbose bool, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws"}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}

	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		if verbose {
			log.Printf("Dial failed: %v", err)
		}
		return
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				return
			}
			atomic.AddInt64(&metrics.EventsReceived, 1)
			if verbose {
				printEvent(raw)
			}
		}
	}()

	select {
	case <-stopChan:
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	case <-done:
	}
	_ = c.Close()
}

func printEvent(raw []byte) {
	var ev feedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Printf("unreadable event: %s", raw)
		return
	}
	log.Printf("[%s] %s %s", ev.Channel, ev.Action, ev.Post)
}

func printMetrics() {
	log.Printf("Connections attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("Connections successful: %d", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	log.Printf("Connections failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("Events received: %d", atomic.LoadInt64(&metrics.EventsReceived))
}
