package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dghubble/oauth1"
	log "github.com/spf13/jwalterweatherman"
)

var (
	ErrRateLimited = errors.New("twitter: rate limit exceeded")
	ErrUnencodable = errors.New("twitter: message could not be encoded")
	ErrNoMedia     = errors.New("twitter: media file is missing")
)

// codeRateLimited is the v1.1 error code for an exhausted rate limit.
const codeRateLimited = 88

const searchPageSize = 100

type Client struct {
	httpClient *http.Client
	apiURL     string
	uploadURL  string
}

// NewClient wraps an HTTP client that already signs requests, e.g. one from
// NewOAuthHTTPClient.
func NewClient(httpClient *http.Client, apiURL, uploadURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, apiURL: apiURL, uploadURL: uploadURL}
}

// NewOAuthHTTPClient returns a client signing requests with OAuth 1.0a user
// credentials on top of base.
func NewOAuthHTTPClient(ctx context.Context, base *http.Client, consumerKey, consumerSecret, accessToken, accessSecret string) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, base)
	}
	cfg := oauth1.NewConfig(consumerKey, consumerSecret)
	return cfg.Client(ctx, oauth1.NewToken(accessToken, accessSecret))
}

type User struct {
	ScreenName string `json:"screen_name"`
}

type URLEntity struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
}

type Entities struct {
	URLs []URLEntity `json:"urls"`
}

type Tweet struct {
	ID        string   `json:"id_str"`
	Text      string   `json:"text"`
	FullText  string   `json:"full_text"`
	CreatedAt string   `json:"created_at"`
	User      User     `json:"user"`
	Entities  Entities `json:"entities"`
}

func (t Tweet) Body() string {
	if t.FullText != "" {
		return t.FullText
	}
	return t.Text
}

// Time parses CreatedAt; the zero time is returned when it is absent or malformed.
func (t Tweet) Time() time.Time {
	ts, err := time.Parse(time.RubyDate, t.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return ts
}

type apiErrors struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e apiErrors) err(status int) error {
	for _, ae := range e.Errors {
		if ae.Code == codeRateLimited {
			log.WARN.Printf("SUSPEND, RATE LIMIT EXCEEDED: %s", ae.Message)
			return ErrRateLimited
		}
	}
	if len(e.Errors) > 0 {
		return fmt.Errorf("twitter request failed with code %d: %s (%d)", status, e.Errors[0].Message, e.Errors[0].Code)
	}
	return nil
}

// Post uploads the image at imagePath and publishes message with it,
// returning the new status id.
func (c *Client) Post(ctx context.Context, message, imagePath string) (string, error) {
	log.DEBUG.Printf("Tweet to send: %s", message)
	if !utf8.ValidString(message) {
		log.ERROR.Printf("Your message could not be encoded: %q", message)
		return "", ErrUnencodable
	}
	if imagePath == "" {
		return "", ErrNoMedia
	}
	if _, err := os.Stat(imagePath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoMedia, imagePath)
	}

	mediaID, err := c.uploadMedia(ctx, imagePath)
	if err != nil {
		return "", err
	}

	form := url.Values{"status": {message}, "media_ids": {mediaID}}
	var status struct {
		ID string `json:"id_str"`
	}
	err = c.send(ctx, http.MethodPost, c.apiURL+"/statuses/update.json",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &status)
	if err != nil {
		return "", fmt.Errorf("update status: %w", err)
	}
	log.DEBUG.Printf("Twitter status posted: %s", status.ID)
	return status.ID, nil
}

func (c *Client) uploadMedia(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoMedia, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read media: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var media struct {
		MediaID string `json:"media_id_string"`
	}
	err = c.send(ctx, http.MethodPost, c.uploadURL+"/media/upload.json", mw.FormDataContentType(), &body, &media)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	if media.MediaID == "" {
		return "", errors.New("upload media: no media id returned")
	}
	return media.MediaID, nil
}

// Search walks recent statuses matching query, newest first, until visit
// returns false or the results run out. ErrRateLimited is returned when the
// platform throttles the walk; visited tweets stay valid.
func (c *Client) Search(ctx context.Context, query string, visit func(Tweet) bool) error {
	params := url.Values{
		"q":           {query},
		"count":       {fmt.Sprint(searchPageSize)},
		"result_type": {"recent"},
		"tweet_mode":  {"extended"},
	}
	endpoint := c.apiURL + "/search/tweets.json?" + params.Encode()

	for endpoint != "" {
		var page struct {
			Statuses []Tweet `json:"statuses"`
			Metadata struct {
				NextResults string `json:"next_results"`
			} `json:"search_metadata"`
			apiErrors
		}
		if err := c.send(ctx, http.MethodGet, endpoint, "", nil, &page); err != nil {
			return err
		}
		if err := page.err(http.StatusOK); err != nil {
			return err
		}

		for _, t := range page.Statuses {
			if !visit(t) {
				return nil
			}
		}

		endpoint = ""
		if next := page.Metadata.NextResults; next != "" {
			endpoint = c.apiURL + "/search/tweets.json" + next + "&tweet_mode=extended"
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint, contentType string, body io.Reader, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending the request: %w", err)
	}
	defer resp.Body.Close()
	log.DEBUG.Printf("Twitter %s %s: %d", method, req.URL.Path, resp.StatusCode)

	if resp.StatusCode == http.StatusTooManyRequests {
		log.WARN.Printf("SUSPEND, RATE LIMIT EXCEEDED on %s", req.URL.Path)
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading body from an error response (code %d): %w", resp.StatusCode, err)
		}
		var ae apiErrors
		if json.Unmarshal(data, &ae) == nil {
			if err := ae.err(resp.StatusCode); err != nil {
				return err
			}
		}
		return fmt.Errorf("twitter request failed with code %d: %s", resp.StatusCode, data)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
