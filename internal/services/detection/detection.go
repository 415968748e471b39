package detection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

const PersonClass = "person"

type Client struct {
	URL  string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		URL:  strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// SendFrame отправляет изображение JPEG байтами на /predict
func (c *Client) SendFrame(ctx context.Context, imageData []byte) ([]models.Detection, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	// Создаем form field с правильным Content-Type
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/predict", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status: %s, error: %s", resp.Status, bodyBytes)
	}

	var detections []models.Detection
	if err := json.NewDecoder(resp.Body).Decode(&detections); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}

	return detections, nil
}

// Locate returns the centroids of the people found in frame.
func (c *Client) Locate(ctx context.Context, frame models.Frame) ([]models.PersonBox, error) {
	detections, err := c.SendFrame(ctx, frame.Data)
	if err != nil {
		return nil, err
	}
	return PersonCentroids(detections), nil
}

// PersonCentroids keeps person detections with a well-formed box and reduces
// each to its centre point.
func PersonCentroids(detections []models.Detection) []models.PersonBox {
	return lo.FilterMap(detections, func(d models.Detection, _ int) (models.PersonBox, bool) {
		if d.Class != PersonClass || len(d.Box) != 4 {
			return models.PersonBox{}, false
		}
		return models.PersonBox{
			X: (d.Box[0] + d.Box[2]) / 2,
			Y: (d.Box[1] + d.Box[3]) / 2,
		}, true
	})
}
