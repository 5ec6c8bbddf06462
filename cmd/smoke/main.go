package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	api := envOrDefault("API_BASE", "http://localhost:8080")
	wsBase := envOrDefault("WS_BASE", "ws://localhost:8080")

	riderID := envOrDefault("RIDER_ID", "")
	driverID := envOrDefault("DRIVER_ID", "")
	riderToken := envOrDefault("RIDER_TOKEN", "")
	driverToken := envOrDefault("DRIVER_TOKEN", "")
	if riderID == "" || driverID == "" {
		log.Fatal("RIDER_ID and DRIVER_ID must be set (run cmd/seed and copy its ids)")
	}

	fmt.Println("Sending driver heartbeat...")
	hbPayload := map[string]any{
		"latitude":  40.758,
		"longitude": -73.9855,
		"accuracy":  5,
		"timestamp": time.Now().UnixMilli(),
	}
	if err := postJSON(fmt.Sprintf("%s/api/drivers/%s/location", api, driverID), driverToken, hbPayload); err != nil {
		log.Fatalf("heartbeat failed: %v", err)
	}

	fmt.Println("Requesting ride...")
	rideID, err := requestRide(api, riderToken, map[string]any{
		"riderId":        riderID,
		"pickup":         map[string]any{"lat": 40.758, "lng": -73.9855},
		"dropoff":        map[string]any{"lat": 40.778, "lng": -73.9655},
		"rideType":       "STANDARD",
		"idempotencyKey": fmt.Sprintf("smoke-%d", time.Now().UnixNano()),
	})
	if err != nil {
		log.Fatalf("request ride failed: %v", err)
	}
	fmt.Printf("Ride ID: %s\n", rideID)

	events := make(chan map[string]any, 5)
	go subscribeWS(wsBase, rideID, riderToken, events)

	fmt.Println("Accepting ride...")
	if err := postJSON(fmt.Sprintf("%s/api/rides/%s/accept", api, rideID), driverToken, map[string]any{
		"driverId": driverID,
	}); err != nil {
		log.Fatalf("accept failed: %v", err)
	}

	waitForStatus(events, "MATCHED", rideID)

	fmt.Println("Smoke test complete.")
}

func requestRide(api, token string, payload map[string]any) (string, error) {
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", api+"/api/rides", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %s", resp.Status)
	}
	var res map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	idVal, ok := res["id"]
	if !ok || idVal == nil {
		return "", fmt.Errorf("ride id missing")
	}
	id, _ := idVal.(string)
	if id == "" {
		return "", fmt.Errorf("ride id missing")
	}
	return id, nil
}

func postJSON(url, token string, payload map[string]any) error {
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", url, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func subscribeWS(base, rideID, token string, sink chan<- map[string]any) {
	u := fmt.Sprintf("%s/ws/rides/%s", base, rideID)
	parsed, _ := url.Parse(u)
	q := parsed.Query()
	if token != "" {
		q.Set("token", token)
	}
	parsed.RawQuery = q.Encode()

	c, _, err := websocket.DefaultDialer.Dial(parsed.String(), nil)
	if err != nil {
		log.Printf("ws dial failed: %v", err)
		return
	}
	defer c.Close()
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var payload map[string]any
		if err := json.Unmarshal(msg, &payload); err != nil {
			continue
		}
		sink <- payload
	}
}

func waitForStatus(events <-chan map[string]any, expect, rideID string) {
	timeout := time.After(8 * time.Second)
	for {
		select {
		case msg := <-events:
			ride, ok := msg["ride"].(map[string]any)
			if !ok {
				continue
			}
			if id, ok := ride["id"].(string); ok && id != "" && rideID != "" && id != rideID {
				continue
			}
			status, _ := ride["status"].(string)
			fmt.Printf("WS update received: %v\n", msg)
			if status == expect {
				return
			}
		case <-timeout:
			log.Fatalf("expected ride status %q not received", expect)
		}
	}
}
