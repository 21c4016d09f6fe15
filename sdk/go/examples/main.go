package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/sdk/go/eventverse"
)

// 向本地运行的 Agent 提问，并打印最近的对话记录。
func main() {
	baseURL := os.Getenv("EVENTVERSE_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8001"
	}
	client, err := eventverse.NewClient(baseURL, nil)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resp, err := client.Chat(ctx, "How many events are there?")
	if err != nil {
		log.Fatalf("chat failed: %v", err)
	}
	fmt.Printf("[%s] %s\n", resp.Status, resp.Message)

	exchanges, err := client.Exchanges(ctx, 5)
	if err != nil {
		log.Fatalf("list exchanges failed: %v", err)
	}
	for _, ex := range exchanges {
		fmt.Printf("%s %-8s %s -> %s\n", time.Unix(ex.CreatedAt, 0).Format(time.RFC3339), ex.Outcome, ex.Query, ex.Answer)
	}
}
