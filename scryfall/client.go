package scryfall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/secomp2025/cardgolf/models"
	log "github.com/spf13/jwalterweatherman"
)

var ErrNotFound = errors.New("scryfall: no cards found")

type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

func NewClient(httpClient *http.Client, baseURL, userAgent string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, userAgent: userAgent}
}

type imageURIs struct {
	PNG string `json:"png"`
}

type card struct {
	Name        string     `json:"name"`
	ScryfallURI string     `json:"scryfall_uri"`
	ImageURIs   *imageURIs `json:"image_uris"`
	CardFaces   []struct {
		ImageURIs *imageURIs `json:"image_uris"`
	} `json:"card_faces"`
}

func (c card) model() models.Card {
	out := models.Card{Name: c.Name, CanonicalURL: c.ScryfallURI}
	if c.ImageURIs != nil {
		out.ImageURL = c.ImageURIs.PNG
	} else if len(c.CardFaces) > 0 && c.CardFaces[0].ImageURIs != nil {
		out.ImageURL = c.CardFaces[0].ImageURIs.PNG
	}
	return out
}

type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Details string `json:"details"`
}

// SearchResult is one page of a card search.
type SearchResult struct {
	TotalCards int
	Names      []string
}

// RandomCard fetches one random card.
func (c *Client) RandomCard(ctx context.Context) (models.Card, error) {
	var raw card
	if err := c.getJSON(ctx, c.baseURL+"/cards/random", &raw); err != nil {
		return models.Card{}, err
	}
	if raw.Name == "" {
		return models.Card{}, errors.New("scryfall: random card has no name")
	}
	return raw.model(), nil
}

// RandomCards fetches n independent random cards.
func (c *Client) RandomCards(ctx context.Context, n int) ([]models.Card, error) {
	cards := make([]models.Card, 0, n)
	for len(cards) < n {
		card, err := c.RandomCard(ctx)
		if err != nil {
			return nil, err
		}
		log.DEBUG.Printf("Fetched random card %s", card.Name)
		cards = append(cards, card)
	}
	return cards, nil
}

// Search runs a full-text card query. A query matching nothing returns ErrNotFound.
func (c *Client) Search(ctx context.Context, query string) (SearchResult, error) {
	var page struct {
		TotalCards int    `json:"total_cards"`
		Data       []card `json:"data"`
	}
	endpoint := c.baseURL + "/cards/search?" + url.Values{"q": {query}}.Encode()
	if err := c.getJSON(ctx, endpoint, &page); err != nil {
		return SearchResult{}, err
	}

	result := SearchResult{TotalCards: page.TotalCards}
	for _, d := range page.Data {
		result.Names = append(result.Names, d.Name)
	}
	return result, nil
}

// DownloadImage saves the card's PNG as <dir>/<card file name>.png.
func (c *Client) DownloadImage(ctx context.Context, card models.Card, dir string) (string, error) {
	if card.ImageURL == "" {
		return "", fmt.Errorf("scryfall: card %s has no image", card.Name)
	}

	resp, err := c.do(ctx, card.ImageURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image for %s: status %d", card.Name, resp.StatusCode)
	}

	path := filepath.Join(dir, card.FileName()+".png")
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return "", fmt.Errorf("save image for %s: %w", card.Name, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	log.DEBUG.Printf("Saving image of card %s", card.Name)
	return path, nil
}

func (c *Client) do(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending the request: %w", err)
	}
	log.DEBUG.Printf("Downloaded URL %s", endpoint)
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	resp, err := c.do(ctx, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Details != "" {
			return fmt.Errorf("scryfall request failed with code %d: %s", resp.StatusCode, apiErr.Details)
		}
		return fmt.Errorf("scryfall request failed with code %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
