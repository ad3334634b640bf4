package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

// RemoteDetector calls an HTTP object-detection service. The region
// is posted as a multipart JPEG; the response carries detections with
// region-local pixel boxes:
//
//	{"detections": [{"class": "person", "confidence": 0.91,
//	                 "bbox": [x1, y1, x2, y2]}], "count": 1}
type RemoteDetector struct {
	endpoint      string
	confThreshold float64
	client        *http.Client
}

type remoteDetection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
	Count      int               `json:"count"`
}

// NewRemoteDetector creates a detector client for the given service
// endpoint (e.g. http://localhost:8001).
func NewRemoteDetector(endpoint string, confThreshold float64) *RemoteDetector {
	if confThreshold <= 0 {
		confThreshold = 0.5
	}
	return &RemoteDetector{
		endpoint:      endpoint,
		confThreshold: confThreshold,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Detect posts the region to the service and decodes its detections.
func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]RawDetection, error) {
	var encoded bytes.Buffer
	if err := jpeg.Encode(&encoded, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("inference: encode region: %w", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="region.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(encoded.Bytes()); err != nil {
		return nil, err
	}
	w.WriteField("conf_threshold", fmt.Sprintf("%.2f", d.confThreshold))
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/detect", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference: detection request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference: detection service returned %d: %s", resp.StatusCode, msg)
	}

	var decoded remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("inference: decode detection response: %w", err)
	}

	out := make([]RawDetection, 0, len(decoded.Detections))
	for _, det := range decoded.Detections {
		if len(det.BBox) < 4 {
			continue
		}
		out = append(out, RawDetection{
			Class:      det.Class,
			Confidence: det.Confidence,
			X1:         int(det.BBox[0]),
			Y1:         int(det.BBox[1]),
			X2:         int(det.BBox[2]),
			Y2:         int(det.BBox[3]),
		})
	}
	return out, nil
}

var _ Detector = (*RemoteDetector)(nil)
