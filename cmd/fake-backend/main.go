// ABOUTME: Minimal fake agent-query backend for local development and E2E testing
// ABOUTME: Usage: fake-backend [-addr localhost:8090] [-delay 0s]

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"
)

type queryRequest struct {
	AgentID     string `json:"agent_id"`
	UserMessage string `json:"user_message"`
	File        string `json:"file,omitempty"`
}

type chainRequest struct {
	PrimaryAgentID   string `json:"primary_agent_id"`
	SecondaryAgentID string `json:"secondary_agent_id"`
	UserMessage      string `json:"user_message"`
	Chain            bool   `json:"chain"`
}

func main() {
	addr := flag.String("addr", "localhost:8090", "listen address")
	delay := flag.Duration("delay", 0, "artificial reply delay")
	flag.Parse()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /query", func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		time.Sleep(*delay)

		reply := fmt.Sprintf("**%s** heard: %s", req.AgentID, req.UserMessage)
		if req.File != "" {
			reply += "\n\n_(attachment received)_"
		}
		json.NewEncoder(w).Encode(map[string]string{"reply": reply})
	})

	mux.HandleFunc("POST /query-chain", func(w http.ResponseWriter, r *http.Request) {
		var req chainRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		time.Sleep(*delay)

		json.NewEncoder(w).Encode(map[string]any{
			"reply": fmt.Sprintf("Combined take on: %s", req.UserMessage),
			"chain_meta": map[string]string{
				"primary":   req.PrimaryAgentID,
				"secondary": req.SecondaryAgentID,
			},
		})
	})

	log.Printf("fake-backend listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}
