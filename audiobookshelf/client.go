package audiobookshelf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/marcus-crane/earshot/utils"
)

const (
	sessionsEndpoint    = "/api/me/listening-sessions"
	itemEndpoint        = "/api/items/%s"
	coverEndpoint       = "/api/items/%s/cover"
	searchCoverEndpoint = "/api/search/covers"

	coverWidth  = "400"
	coverFormat = "jpeg"
)

var ErrEmptyItemID = errors.New("library item id is empty")

// StatusError is returned for any non-2xx response from the server.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("audiobookshelf returned %d for %s", e.StatusCode, e.Endpoint)
}

type Client struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		Token:      token,
		BaseURL:    baseURL,
		HTTPClient: utils.NewHTTPClient(),
	}
}

func (c *Client) buildURL(endpoint string, query url.Values) string {
	u := c.BaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, endpoint string, query url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(endpoint, query), nil)
	if err != nil {
		return nil, err
	}
	req.Header = http.Header{
		"Accept":        []string{"application/json"},
		"Authorization": []string{"Bearer " + c.Token},
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, endpoint, query)
	if err != nil {
		return err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StatusError{Endpoint: endpoint, StatusCode: res.StatusCode}
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// CurrentSession returns the most recent listening session, or false when the
// user has none at all.
func (c *Client) CurrentSession(ctx context.Context) (Session, bool, error) {
	var resp ListeningSessionsResponse
	query := url.Values{"itemsPerPage": []string{"1"}}
	if err := c.getJSON(ctx, sessionsEndpoint, query, &resp); err != nil {
		return Session{}, false, err
	}
	if len(resp.Sessions) == 0 {
		return Session{}, false, nil
	}
	return resp.Sessions[0], true, nil
}

func (c *Client) ItemChapters(ctx context.Context, itemID string) ([]Chapter, error) {
	if itemID == "" {
		return nil, ErrEmptyItemID
	}
	var item LibraryItem
	query := url.Values{"include": []string{"chapters"}}
	if err := c.getJSON(ctx, fmt.Sprintf(itemEndpoint, url.PathEscape(itemID)), query, &item); err != nil {
		return nil, err
	}
	return item.Media.Chapters, nil
}

func coverQuery() url.Values {
	return url.Values{
		"width":  []string{coverWidth},
		"format": []string{coverFormat},
	}
}

// CoverURL is the server's own cover address for an item. It carries no
// credentials so it is safe to hand to Discord.
func (c *Client) CoverURL(itemID string) string {
	return c.buildURL(fmt.Sprintf(coverEndpoint, url.PathEscape(itemID)), coverQuery())
}

// FetchCover downloads the cover bytes. A non-success status means the item
// has no cover and is reported as false rather than an error.
func (c *Client) FetchCover(ctx context.Context, itemID string) ([]byte, bool, error) {
	if itemID == "" {
		return nil, false, ErrEmptyItemID
	}
	endpoint := fmt.Sprintf(coverEndpoint, url.PathEscape(itemID))
	req, err := c.newRequest(ctx, endpoint, coverQuery())
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "image/*")
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, res.Body)
		return nil, false, nil
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, false, err
	}
	if len(body) == 0 {
		return nil, false, nil
	}
	return body, true, nil
}

// SearchCover asks the server to query a single metadata provider and returns
// its first candidate, if any.
func (c *Client) SearchCover(ctx context.Context, title, author, provider string) (string, bool, error) {
	var resp CoverSearchResponse
	query := url.Values{
		"title":    []string{title},
		"author":   []string{author},
		"provider": []string{provider},
	}
	if err := c.getJSON(ctx, searchCoverEndpoint, query, &resp); err != nil {
		return "", false, err
	}
	for _, r := range resp.Results {
		if r != "" {
			return r, true, nil
		}
	}
	return "", false, nil
}
