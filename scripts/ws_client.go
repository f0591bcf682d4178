// Package main walks a simulated device along a route over the client link.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func post(url string, body any) []byte {
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		log.Fatalf("POST %s: %d %s", url, resp.StatusCode, out)
	}
	return out
}

func main() {
	port := envOr("PORT", "8080")
	base := fmt.Sprintf("http://localhost:%s", port)
	dest := envOr("DEST", "library")
	start := orb.Point{envFloat("START_LNG", 79.083730), envFloat("START_LAT", 12.192850)}
	step := time.Duration(envFloat("STEP_SECONDS", 1.2) * float64(time.Second))

	var sess struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(post(base+"/v1/sessions", map[string]string{"language": envOr("LANGUAGE", "english")}), &sess); err != nil {
		log.Fatal(err)
	}
	log.Printf("Session ID: %s", sess.ID)

	// Connect the client link
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/sessions/" + sess.ID + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	var writeMu sync.Mutex
	write := func(typ, id string, payload any) {
		pl, _ := json.Marshal(payload)
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := c.WriteJSON(wsMessage{Type: typ, ID: id, Payload: pl}); err != nil {
			log.Printf("write: %v", err)
		}
	}

	arrived := make(chan struct{})
	go func() {
		var once sync.Once
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			switch m.Type {
			case "speak":
				var u struct {
					Text string `json:"text"`
					Lang string `json:"lang"`
				}
				_ = json.Unmarshal(m.Payload, &u)
				log.Printf("SAY [%s] %s", u.Lang, u.Text)
				write("speech_end", m.ID, nil)
			case "listen":
				write("transcript", m.ID, map[string]string{"text": dest})
			case "event":
				var evt struct {
					Type string `json:"type"`
				}
				_ = json.Unmarshal(m.Payload, &evt)
				log.Printf("WS <- event %s", evt.Type)
				if evt.Type == "navigation.arrived" {
					once.Do(func() { close(arrived) })
				}
			}
		}
	}()

	write("voices", "", []map[string]string{{"name": "Google UK English Female", "lang": "en-GB"}, {"name": "Veena", "lang": "ta-IN"}})
	write("position", "", map[string]float64{"lat": start.Lat(), "lng": start.Lon()})
	time.Sleep(step)

	post(base+"/v1/sessions/"+sess.ID+"/destination", map[string]string{"key": dest})

	resp, err := http.Get(base + "/v1/sessions/" + sess.ID + "/route.geojson")
	if err != nil {
		log.Fatal(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		log.Fatal(err)
	}
	var path orb.LineString
	for _, f := range fc.Features {
		if ls, ok := f.Geometry.(orb.LineString); ok {
			path = ls
			break
		}
	}
	log.Printf("Walking %d vertices", len(path))

	for _, p := range path {
		select {
		case <-arrived:
			log.Printf("Arrived")
			return
		default:
		}
		write("position", "", map[string]float64{"lat": p.Lat(), "lng": p.Lon()})
		time.Sleep(step)
	}

	// Wait briefly for the arrival announcement
	select {
	case <-time.After(3 * time.Second):
	case <-arrived:
		log.Printf("Arrived")
	}
}
