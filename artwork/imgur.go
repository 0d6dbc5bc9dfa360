package artwork

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/marcus-crane/earshot/utils"
)

const imgurUploadURL = "https://api.imgur.com/3/image"

// Uploader re-hosts cover bytes somewhere Discord can reach.
type Uploader interface {
	Upload(ctx context.Context, image []byte) (string, error)
}

type imgurResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		Link  string `json:"link"`
		Error any    `json:"error"`
	} `json:"data"`
}

type Imgur struct {
	ClientID   string
	UploadURL  string
	HTTPClient *http.Client
}

func NewImgur(clientID string) *Imgur {
	return &Imgur{
		ClientID:   clientID,
		UploadURL:  imgurUploadURL,
		HTTPClient: utils.NewHTTPClient(),
	}
}

func (i *Imgur) Upload(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("no image bytes to upload")
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("image", "cover.jpg")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(image); err != nil {
		return "", err
	}
	if err := form.WriteField("type", "file"); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.UploadURL, &body)
	if err != nil {
		return "", err
	}
	req.Header = http.Header{
		"Authorization": []string{"Client-ID " + i.ClientID},
		"Content-Type":  []string{form.FormDataContentType()},
	}
	res, err := i.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	var parsed imgurResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("imgur returned %d with unreadable body: %w", res.StatusCode, err)
	}
	if !parsed.Success || parsed.Data.Link == "" {
		return "", fmt.Errorf("imgur upload failed with status %d", res.StatusCode)
	}
	return parsed.Data.Link, nil
}
