package fabric

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

const hathoraBaseURL = "https://api.hathora.dev"

// HathoraClient provisions rooms through the Hathora Cloud HTTP API.
type HathoraClient struct {
	baseURL    string
	appID      string
	token      string
	httpClient *http.Client
	rng        *rand.Rand
}

func NewHathoraClient(appID, token string) *HathoraClient {
	return &HathoraClient{
		baseURL: hathoraBaseURL,
		appID:   appID,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *HathoraClient) CreateRoom(ctx context.Context, region string) (string, error) {
	if region == "" {
		region = "Chicago"
	}
	body, err := json.Marshal(map[string]any{"region": region})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/rooms/v2/%s/create", c.baseURL, c.appID)
	var result struct {
		RoomID string `json:"roomId"`
	}
	if err := c.post(ctx, url, body, &result); err != nil {
		return "", err
	}
	return result.RoomID, nil
}

// GetConnectionInfo polls until the room reports active. Spacing is jittered
// so a burst of matches does not hammer the API in lockstep.
func (c *HathoraClient) GetConnectionInfo(ctx context.Context, roomID string) (*ConnectionInfo, error) {
	url := fmt.Sprintf("%s/rooms/v2/%s/connectioninfo/%s", c.baseURL, c.appID, roomID)

	for attempt := 0; attempt < pollAttempts; attempt++ {
		var info struct {
			Status      string `json:"status"`
			ExposedPort struct {
				Host string `json:"host"`
				Port int    `json:"port"`
			} `json:"exposedPort"`
		}
		err := c.get(ctx, url, &info)
		if err == nil && info.Status == "active" && info.ExposedPort.Host != "" {
			return &ConnectionInfo{
				Status: info.Status,
				Host:   info.ExposedPort.Host,
				Port:   info.ExposedPort.Port,
			}, nil
		}

		delay := pollMinDelay + time.Duration(c.rng.Int63n(int64(pollMaxDelay-pollMinDelay)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, ErrRoomNotActive
}

func (c *HathoraClient) SetLobbyState(ctx context.Context, roomID string, state LobbyState) error {
	body, err := json.Marshal(map[string]any{"state": state})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/lobbies/v3/%s/setState/%s", c.baseURL, c.appID, roomID)
	return c.post(ctx, url, body, nil)
}

func (c *HathoraClient) LoginAnonymous(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/auth/v1/%s/login/anonymous", c.baseURL, c.appID)
	var result struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, url, nil, &result); err != nil {
		return "", err
	}
	return result.Token, nil
}

func (c *HathoraClient) post(ctx context.Context, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.do(req, out)
}

func (c *HathoraClient) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.do(req, out)
}

func (c *HathoraClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
