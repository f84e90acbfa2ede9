package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DisplayDirectory resolves display names for ids owned by other subsystems
type DisplayDirectory interface {
	CharacterName(ctx context.Context, characterID int64) (string, error)
	ItemName(ctx context.Context, itemInstID int64) (string, error)
}

// DirectoryClient reads names from the character and inventory directory
type DirectoryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewDirectoryClient(baseURL string, timeout time.Duration) *DirectoryClient {
	return &DirectoryClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type namedEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (c *DirectoryClient) CharacterName(ctx context.Context, characterID int64) (string, error) {
	return c.getName(ctx, fmt.Sprintf("%s/characters/%d", c.baseURL, characterID))
}

func (c *DirectoryClient) ItemName(ctx context.Context, itemInstID int64) (string, error) {
	return c.getName(ctx, fmt.Sprintf("%s/items/%d", c.baseURL, itemInstID))
}

func (c *DirectoryClient) getName(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var entry namedEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return "", err
	}
	return entry.Name, nil
}

// NopDirectory resolves every name to the empty string
type NopDirectory struct{}

func (NopDirectory) CharacterName(context.Context, int64) (string, error) { return "", nil }
func (NopDirectory) ItemName(context.Context, int64) (string, error)      { return "", nil }
