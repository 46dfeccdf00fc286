package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

var _ ImageStore = (*Cloudinary)(nil)

type Cloudinary struct {
	apiKey     string
	apiSecret  string
	apiBase    string
	httpClient *http.Client
	now        func() time.Time
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	Result    string `json:"result"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewCloudinary(rawURL string) (*Cloudinary, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse cloudinary url: %w", err)
	}

	if parsed.Scheme != "cloudinary" {
		return nil, fmt.Errorf("invalid cloudinary scheme")
	}

	apiKey := parsed.User.Username()
	apiSecret, ok := parsed.User.Password()
	if !ok {
		return nil, fmt.Errorf("missing cloudinary api secret")
	}
	cloudName := parsed.Hostname()
	if apiKey == "" || apiSecret == "" || cloudName == "" {
		return nil, fmt.Errorf("invalid cloudinary credentials")
	}

	return &Cloudinary{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		apiBase:   fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image", cloudName),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		now: time.Now,
	}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", ErrEmptyFile
	}

	name := objectName(img.Kind, img.Filename)
	params := map[string]string{
		"folder":    path.Dir(name),
		"public_id": strings.TrimSuffix(path.Base(name), path.Ext(name)),
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	params["file"] = fmt.Sprintf("data:%s;base64,%s", img.ContentType, base64.StdEncoding.EncodeToString(img.Data))

	resp, err := c.post(ctx, "/upload", params)
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.SecureURL == "" {
		return "", fmt.Errorf("cloudinary response missing secure_url")
	}

	return resp.SecureURL, nil
}

// Delete destroys the asset behind a Cloudinary delivery URL. URIs that are
// not Cloudinary uploads are ignored.
func (c *Cloudinary) Delete(ctx context.Context, uri string) error {
	publicID, ok := cloudinaryPublicID(uri)
	if !ok {
		return nil
	}

	resp, err := c.post(ctx, "/destroy", map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if resp.Result != "ok" && resp.Result != "not found" {
		return fmt.Errorf("cloudinary destroy returned %q", resp.Result)
	}
	return nil
}

func (c *Cloudinary) post(ctx context.Context, endpoint string, params map[string]string) (cloudinaryResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for key, value := range params {
		if err := writer.WriteField(key, value); err != nil {
			return cloudinaryResponse{}, fmt.Errorf("write %s field: %w", key, err)
		}
	}
	if err := writer.WriteField("api_key", c.apiKey); err != nil {
		return cloudinaryResponse{}, fmt.Errorf("write api_key field: %w", err)
	}
	if err := writer.WriteField("signature", c.sign(params)); err != nil {
		return cloudinaryResponse{}, fmt.Errorf("write signature field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return cloudinaryResponse{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+endpoint, &body)
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("read response: %w", err)
	}

	var parsed cloudinaryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return cloudinaryResponse{}, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return cloudinaryResponse{}, fmt.Errorf("failed: %s", parsed.Error.Message)
		}
		return cloudinaryResponse{}, fmt.Errorf("failed with status %d", resp.StatusCode)
	}

	return parsed, nil
}

// sign implements Cloudinary's request signature: every signed parameter
// except file, sorted by name, joined as k=v with & and suffixed with the secret.
func (c *Cloudinary) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "file" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	h := sha1.New() // #nosec G401: cloudinary API signature requires SHA-1.
	_, _ = h.Write([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(h.Sum(nil))
}

// cloudinaryPublicID extracts "folder/name" from
// https://res.cloudinary.com/<cloud>/image/upload/v123/folder/name.png.
func cloudinaryPublicID(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || !strings.HasSuffix(u.Hostname(), "cloudinary.com") {
		return "", false
	}

	_, rest, ok := strings.Cut(u.Path, "/upload/")
	if !ok || rest == "" {
		return "", false
	}
	if first, tail, found := strings.Cut(rest, "/"); found && len(first) > 1 && first[0] == 'v' {
		if _, err := strconv.ParseInt(first[1:], 10, 64); err == nil {
			rest = tail
		}
	}

	return strings.TrimSuffix(rest, path.Ext(rest)), true
}
