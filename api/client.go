package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Client calls the portal backend's authentication and device-trust
// endpoints. Construct it with NewClient; the zero value is not usable.
type Client struct {
	http    *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient returns a Client rooted at baseURL. httpClient should come from
// the transport package so the bearer header and timeout are applied; when
// nil, http.DefaultClient is used.
func NewClient(baseURL string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// ValidateResult is the outcome of a device authorization check.
type ValidateResult struct {
	Valid    bool   `json:"valid"`
	HasFace  bool   `json:"has_face"`
	DeviceID string `json:"device_id,omitempty"`
}

// RegisterFaceResult is the outcome of a face enrollment upload. Registered
// is true only when the backend returned a non-empty face descriptor; a 200
// without a descriptor is a soft negative.
type RegisterFaceResult struct {
	Registered bool
	Message    string
}

// PhotoValidationResult is the outcome of a face match upload. Validated
// requires the backend's explicit match flag.
type PhotoValidationResult struct {
	Validated bool
	Distance  float64
}

// SaveDeviceResult is the outcome of persisting a newly trusted device.
type SaveDeviceResult struct {
	Success  bool
	DeviceID string
}

// Login submits the user's document identifier and password. On a backend
// rejection the returned *Error has KindApplication and carries the
// backend's message; on connectivity problems it has KindNetwork.
func (c *Client) Login(ctx context.Context, document, password string) (string, error) {
	var envelope struct {
		Status string `json:"status"`
		Data   string `json:"data"`
	}
	err := c.postJSON(ctx, "/auth/login", map[string]string{
		"user":     document,
		"password": password,
	}, &envelope)
	if err != nil {
		return "", err
	}
	if envelope.Status != "success" || envelope.Data == "" {
		return "", &Error{Kind: KindApplication, Message: envelope.Data}
	}
	return envelope.Data, nil
}

// ValidateDevice asks whether deviceUUID is authorized for personID. The
// caller owns the fail-closed interpretation of any returned error.
func (c *Client) ValidateDevice(ctx context.Context, personID, deviceUUID string) (ValidateResult, error) {
	var result ValidateResult
	err := c.postJSON(ctx, "/device/validate", map[string]string{
		"pessoa_id":   personID,
		"device_uuid": deviceUUID,
	}, &result)
	if err != nil {
		return ValidateResult{}, err
	}
	return result, nil
}

// RegisterFace uploads an enrollment photo for personID.
func (c *Client) RegisterFace(ctx context.Context, personID string, photo io.Reader, filename string) (RegisterFaceResult, error) {
	var envelope struct {
		Descriptor json.RawMessage `json:"descriptor"`
		Message    string          `json:"message"`
	}
	if err := c.postPhoto(ctx, "/face/register", personID, photo, filename, &envelope); err != nil {
		return RegisterFaceResult{}, err
	}
	return RegisterFaceResult{
		Registered: descriptorPresent(envelope.Descriptor),
		Message:    envelope.Message,
	}, nil
}

// SubmitPhotoValidation uploads a match photo for personID.
func (c *Client) SubmitPhotoValidation(ctx context.Context, personID string, photo io.Reader, filename string) (PhotoValidationResult, error) {
	var envelope struct {
		Match    *bool   `json:"match"`
		Distance float64 `json:"distance"`
	}
	if err := c.postPhoto(ctx, "/face/validate", personID, photo, filename, &envelope); err != nil {
		return PhotoValidationResult{}, err
	}
	if envelope.Match == nil {
		// Response success alone never counts as a match.
		return PhotoValidationResult{}, &Error{Kind: KindMalformed, Message: "match flag missing from response"}
	}
	return PhotoValidationResult{Validated: *envelope.Match, Distance: envelope.Distance}, nil
}

// SaveDevice persists deviceUUID as trusted for personID. Callers must only
// invoke it after a successful RegisterFace or SubmitPhotoValidation.
func (c *Client) SaveDevice(ctx context.Context, personID, deviceUUID string) (SaveDeviceResult, error) {
	var envelope struct {
		Success bool `json:"success"`
		Device  struct {
			ID string `json:"id"`
		} `json:"device"`
	}
	err := c.postJSON(ctx, "/device/save", map[string]string{
		"pessoa_id":   personID,
		"device_uuid": deviceUUID,
	}, &envelope)
	if err != nil {
		return SaveDeviceResult{}, err
	}
	return SaveDeviceResult{Success: envelope.Success, DeviceID: envelope.Device.ID}, nil
}

func descriptorPresent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	switch trimmed {
	case "", "null", "[]", `""`, "{}":
		return false
	}
	return true
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Kind: KindMalformed, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) postPhoto(ctx context.Context, path, personID string, photo io.Reader, filename string, out any) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("pessoa_id", personID); err != nil {
		return &Error{Kind: KindMalformed, Message: "encode form", Err: err}
	}
	part, err := form.CreateFormFile("photo", filename)
	if err != nil {
		return &Error{Kind: KindMalformed, Message: "encode form", Err: err}
	}
	if _, err := io.Copy(part, photo); err != nil {
		return &Error{Kind: KindMalformed, Message: "read photo", Err: err}
	}
	if err := form.Close(); err != nil {
		return &Error{Kind: KindMalformed, Message: "encode form", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("path", req.URL.Path).Msg("backend call failed")
		return &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Kind: KindNetwork, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &Error{Kind: KindSessionExpired, Status: resp.StatusCode, Message: applicationMessage(raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := applicationMessage(raw)
		if messageSignalsExpiry(message) {
			return &Error{Kind: KindSessionExpired, Status: resp.StatusCode, Message: message}
		}
		return &Error{Kind: KindApplication, Status: resp.StatusCode, Message: message}
	}
	// Some backend versions report expiry inside a 200 envelope.
	if message := applicationMessage(raw); messageSignalsExpiry(message) {
		return &Error{Kind: KindSessionExpired, Status: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindMalformed, Status: resp.StatusCode, Err: fmt.Errorf("decode %s response: %w", req.URL.Path, err)}
	}
	return nil
}

func applicationMessage(raw []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Data    string `json:"data"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ""
	}
	switch {
	case envelope.Message != "":
		return envelope.Message
	case envelope.Error != "":
		return envelope.Error
	default:
		return envelope.Data
	}
}
