package cache

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"
)

// OfflineHeader flags responses synthesized because neither network nor cache
// could serve the request
const OfflineHeader = "X-Offline"

const offlinePage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>App Magazzino - Offline</title>
  <style>
    body { font-family: Arial, sans-serif; text-align: center; padding: 50px; }
    h1 { color: #666; }
  </style>
</head>
<body>
  <h1>📡 Sei offline</h1>
  <p>L'applicazione Gestione Magazzino non è al momento disponibile senza connessione.</p>
  <p>Verifica la tua connessione internet e riprova.</p>
</body>
</html>
`

const imagePlaceholder = `<svg width="100" height="100" xmlns="http://www.w3.org/2000/svg">
  <rect width="100" height="100" fill="#f0f0f0"/>
  <text x="50" y="50" font-family="Arial" font-size="10" text-anchor="middle"
        dominant-baseline="middle" fill="#666">Immagine non disponibile offline</text>
</svg>
`

// OfflinePayload is the JSON body returned when a bypassed request cannot reach the network
type OfflinePayload struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Offline   bool      `json:"offline"`
}

func offlineJSON(req *http.Request, message string) *http.Response {
	body, _ := json.Marshal(OfflinePayload{
		Error:     "NetworkError",
		Message:   message,
		Timestamp: time.Now().UTC(),
		Offline:   true,
	})
	return synthesize(req, http.StatusServiceUnavailable, "application/json", body)
}

func offlineHTML(req *http.Request) *http.Response {
	return synthesize(req, http.StatusServiceUnavailable, "text/html; charset=utf-8", []byte(offlinePage))
}

func offlineImage(req *http.Request) *http.Response {
	return synthesize(req, http.StatusOK, "image/svg+xml", []byte(imagePlaceholder))
}

func offlineNotFound(req *http.Request) *http.Response {
	return synthesize(req, http.StatusNotFound, "text/plain; charset=utf-8", []byte("Risorsa non disponibile offline"))
}

func synthesize(req *http.Request, status int, contentType string, body []byte) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set(OfflineHeader, "1")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// IsOffline reports whether resp was synthesized by the proxy
func IsOffline(resp *http.Response) bool {
	return resp != nil && resp.Header.Get(OfflineHeader) == "1"
}
