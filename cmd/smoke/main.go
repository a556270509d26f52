// Command smoke logs in against a running API, reads the profile, logs out
// and checks the refresh token is dead. It exits non-zero on the first
// unexpected response.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func main() {
	log.SetFlags(0)
	base := getenv("SMOKE_BASE_URL", "http://localhost:8080")
	email := os.Getenv("SMOKE_EMAIL")
	password := os.Getenv("SMOKE_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("SMOKE_EMAIL and SMOKE_PASSWORD are required")
	}

	c := &client{http: &http.Client{Timeout: 5 * time.Second}, base: base}

	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	login := c.call(http.MethodPost, "/auth/login", body, http.StatusOK)
	var session struct {
		User struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(login.Data, &session); err != nil || session.AccessToken == "" {
		log.Fatalf("login: unexpected payload %s", login.Data)
	}
	c.access, c.refresh = session.AccessToken, session.RefreshToken

	me := c.call(http.MethodGet, "/auth/me", nil, http.StatusOK)
	var profile struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(me.Data, &profile); err != nil || profile.User.ID != session.User.ID {
		log.Fatalf("me: expected user %s, got %s", session.User.ID, me.Data)
	}

	c.call(http.MethodGet, "/auth/logout", nil, http.StatusOK)
	c.call(http.MethodGet, "/auth/refresh", nil, http.StatusUnauthorized)

	fmt.Printf("smoke test passed: user=%s role=%s\n", session.User.ID, session.User.Role)
}

type client struct {
	http    *http.Client
	base    string
	access  string
	refresh string
}

func (c *client) call(method, path string, body []byte, want int) envelope {
	url := c.base + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.access != "" {
		req.Header.Set("Authorization", "Bearer "+c.access)
	}
	if c.refresh != "" {
		req.AddCookie(&http.Cookie{Name: "refreshToken", Value: c.refresh})
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		log.Fatalf("%s %s: decode: %v", method, url, err)
	}
	if resp.StatusCode != want {
		log.Fatalf("%s %s: expected %d, got %d (%s)", method, url, want, resp.StatusCode, env.Message)
	}
	return env
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
