// Package sms delivers verification codes through the sms.ir verify API.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/therapycenter/phoneauth/internal/config"
)

// maxResponseBytes bounds how much of a gateway response is read.
const maxResponseBytes = 64 << 10

// Parameter is one named template placeholder.
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type verifyRequest struct {
	Mobile     string      `json:"mobile"`
	TemplateID int         `json:"templateId"`
	Parameters []Parameter `json:"parameters"`
}

type verifyResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		MessageID int64   `json:"messageId"`
		Cost      float64 `json:"cost"`
	} `json:"data"`
}

// Delivery describes a message the gateway accepted.
type Delivery struct {
	MessageID int64
	Message   string
}

// DeliveryError reports a send the gateway did not accept: a transport
// failure, a timeout, a non-2xx status, or an unrecognized status message.
type DeliveryError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("sms delivery failed: %v", e.Err)
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("sms delivery failed: status %d: %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("sms delivery failed: status %d", e.StatusCode)
	default:
		return fmt.Sprintf("sms delivery failed: %s", e.Message)
	}
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the gateway did not answer in time.
func (e *DeliveryError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

type Client struct {
	url            string
	apiKey         string
	templateID     int
	successMessage string
	timeout        time.Duration
	httpClient     *http.Client
	logger         *logrus.Logger
}

func NewClient(cfg *config.SMSConfig, logger *logrus.Logger) *Client {
	return &Client{
		url:            cfg.URL,
		apiKey:         cfg.APIKey,
		templateID:     cfg.TemplateID,
		successMessage: cfg.SuccessMessage,
		timeout:        cfg.Timeout,
		httpClient:     &http.Client{},
		logger:         logger,
	}
}

// SendOTP sends code to mobile using the configured verification template.
func (c *Client) SendOTP(ctx context.Context, mobile, code string) (*Delivery, error) {
	return c.SendVerify(ctx, mobile, c.templateID, []Parameter{{Name: "otp", Value: code}})
}

// SendVerify sends a templated message. Any outcome other than a 2xx response
// whose message equals the configured success string is a *DeliveryError.
func (c *Client) SendVerify(ctx context.Context, mobile string, templateID int, params []Parameter) (*Delivery, error) {
	payload, err := json.Marshal(verifyRequest{
		Mobile:     mobile,
		TemplateID: templateID,
		Parameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sms payload: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("x-api-key", c.apiKey)

	log := c.logger.WithFields(logrus.Fields{
		"phone":       mobile,
		"template_id": templateID,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("SMS gateway request failed")
		return nil, &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.WithError(err).Warn("Failed to read SMS gateway response")
		return nil, &DeliveryError{StatusCode: resp.StatusCode, Err: err}
	}

	var parsed verifyResponse
	parseErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"message":     parsed.Message,
		}).Warn("SMS gateway rejected the message")
		return nil, &DeliveryError{StatusCode: resp.StatusCode, Message: parsed.Message}
	}

	if parseErr != nil {
		log.WithError(parseErr).Warn("Failed to parse SMS gateway response")
		return nil, &DeliveryError{StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid gateway response: %w", parseErr)}
	}

	if parsed.Message != c.successMessage {
		log.WithFields(logrus.Fields{
			"gateway_status": parsed.Status,
			"message":        parsed.Message,
		}).Warn("SMS gateway did not confirm delivery")
		return nil, &DeliveryError{StatusCode: resp.StatusCode, Message: parsed.Message}
	}

	log.WithField("message_id", parsed.Data.MessageID).Info("SMS sent")
	return &Delivery{MessageID: parsed.Data.MessageID, Message: parsed.Message}, nil
}
