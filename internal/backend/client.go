// Package backend is the REST client for the brokerage backend. Error
// payloads are decoded here, once, into the checkout error taxonomy.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"insurance-checkout/internal/common/errors"
	"insurance-checkout/internal/common/logger"
	"insurance-checkout/internal/models"

	"github.com/google/uuid"
)

// Client talks to the brokerage backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(baseURL string, httpClient *http.Client, log logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     log.WithFields(map[string]interface{}{"component": "backend"}),
	}
}

// UploadFile is one part of a multipart document upload.
type UploadFile struct {
	DocumentType string
	Name         string
	MediaType    string
	Content      io.Reader
}

// CreateApplication creates a draft application. The server does not
// deduplicate; callers must.
func (c *Client) CreateApplication(ctx context.Context, snapshot *models.FormSnapshot) (*models.Application, error) {
	var app models.Application
	if err := c.doJSON(ctx, http.MethodPost, "/applications", snapshot, &app, rejectAsValidation, "create application"); err != nil {
		return nil, err
	}
	if app.ID == "" {
		return nil, errors.NewTransportFailedError("create application", fmt.Errorf("response has no applicationId"))
	}
	return &app, nil
}

// UpdateApplication patches status and payment fields.
func (c *Client) UpdateApplication(ctx context.Context, applicationID string, update *models.ApplicationUpdate) (*models.Application, error) {
	var app models.Application
	path := "/applications/" + url.PathEscape(applicationID)
	if err := c.doJSON(ctx, http.MethodPatch, path, update, &app, rejectAsValidation, "update application"); err != nil {
		return nil, err
	}
	if app.ID == "" {
		app.ID = applicationID
	}
	return &app, nil
}

// ListDocuments returns documents already stored for an application.
func (c *Client) ListDocuments(ctx context.Context, applicationID string) ([]models.ExistingDocument, error) {
	var docs []models.ExistingDocument
	path := "/applications/" + url.PathEscape(applicationID) + "/documents"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &docs, rejectAsValidation, "list documents"); err != nil {
		return nil, err
	}
	return docs, nil
}

// UploadDocuments sends files as multipart parts named "files", each paired
// with a "documentTypes" part in the same order.
func (c *Client) UploadDocuments(ctx context.Context, applicationID string, files []UploadFile) error {
	body, contentType, err := encodeMultipart(files)
	if err != nil {
		return errors.NewDocumentUploadFailedError(applicationID, err)
	}

	path := "/applications/" + url.PathEscape(applicationID) + "/documents"
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return errors.NewDocumentUploadFailedError(applicationID, err)
	}
	req.Header.Set("Content-Type", contentType)

	_, err = c.send(req, rejectAsValidation, "upload documents")
	return err
}

// InitiatePayment asks the backend to push a payment prompt to the phone.
func (c *Client) InitiatePayment(ctx context.Context, request *models.PaymentInitiationRequest) (*models.PaymentInitiation, error) {
	var out models.PaymentInitiation
	if err := c.doJSON(ctx, http.MethodPost, "/payments/mobilemoney/initiate", request, &out, rejectAsPayment, "initiate payment"); err != nil {
		return nil, err
	}
	if out.PaymentID == "" {
		return nil, errors.NewPaymentRejectedError("", "response has no paymentId")
	}
	return &out, nil
}

// PaymentStatus queries the current status of a payment.
func (c *Client) PaymentStatus(ctx context.Context, paymentID string) (*models.PaymentStatusResponse, error) {
	var out models.PaymentStatusResponse
	path := "/payments/" + url.PathEscape(paymentID) + "/status"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out, rejectAsTransport, "query payment status"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}, reject rejectFunc, op string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return errors.NewTransportFailedError(op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	data, err := c.send(req, reject, op)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := decodeData(data, out); err != nil {
		return errors.NewTransportFailedError(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// send executes req and returns the body of a 2xx response.
func (c *Client) send(req *http.Request, reject rejectFunc, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewTransportFailedError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransportFailedError(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	c.logger.Debug("backend returned error status", map[string]interface{}{
		"operation": op,
		"status":    resp.StatusCode,
		"requestId": req.Header.Get("X-Request-ID"),
	})
	return nil, decodeError(op, resp.StatusCode, data, reject)
}

// decodeData accepts either a bare object or a {"data": ...} envelope.
func decodeData(data []byte, out interface{}) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		if raw := bytes.TrimSpace(envelope.Data); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			return json.Unmarshal(raw, out)
		}
	}
	return json.Unmarshal(data, out)
}
