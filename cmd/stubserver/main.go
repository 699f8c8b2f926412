// Command stubserver runs fake transcription and agent endpoints for local
// end-to-end testing of the voice agent server without real credentials.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Bkbest/calendar-agent/internal/audio"
)

type transcriptionResponse struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
}

type agentRequest struct {
	Input    string   `json:"input"`
	ThreadID string   `json:"thread_id"`
	Tools    []string `json:"tools"`
}

type agentResponse struct {
	Reply    string `json:"reply"`
	ThreadID string `json:"thread_id"`
}

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	modelID := r.FormValue("model_id")
	languageCode := r.FormValue("language_code")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("transcription request: file=%s size=%d model=%s language=%s api_key_set=%v",
		header.Filename, len(audioData), modelID, languageCode, r.Header.Get("xi-api-key") != "")

	if samples, sampleRate, err := audio.DecodeWAV(audioData); err == nil {
		log.Printf("decoded WAV: %d samples at %d Hz (%.2fs)",
			len(samples), sampleRate, float64(len(samples))/float64(sampleRate))
	} else {
		log.Printf("payload is not decodable WAV: %v", err)
	}

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	response := transcriptionResponse{
		Text:         "what meetings do I have tomorrow afternoon",
		LanguageCode: "en",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	log.Printf("transcription response sent: %q", response.Text)
}

func agentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error parsing request", http.StatusBadRequest)
		return
	}

	log.Printf("agent request: thread=%s tools=%v input=%q", req.ThreadID, req.Tools, req.Input)

	// Simulate agent thinking time
	time.Sleep(500 * time.Millisecond)

	response := agentResponse{
		Reply:    "You have a design review at 2pm and a 1:1 at 4pm tomorrow.",
		ThreadID: req.ThreadID,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	log.Printf("agent response sent: %q", response.Reply)
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	flag.Parse()

	http.HandleFunc("/transcribe", transcribeHandler)
	http.HandleFunc("/agent", agentHandler)

	log.Printf("stub server starting on %s", *addr)
	log.Printf("transcription endpoint: http://localhost%s/transcribe", *addr)
	log.Printf("agent endpoint: http://localhost%s/agent", *addr)

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
