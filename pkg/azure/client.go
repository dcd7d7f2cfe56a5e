// Package azure содержит клиент Azure Communication Services для отправки
// транзакционных писем с HMAC-SHA256 подписью запросов.
package azure

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	sendPath       = "/emails:send"
	apiVersion     = "2023-03-31"
	maxSendRetries = 3
)

// Config содержит настройки клиента Azure Communication Services
type Config struct {
	// Endpoint — базовый URL ресурса ACS (https://<resource>.communication.azure.com)
	Endpoint string
	// AccessKey — симметричный ключ доступа в base64
	AccessKey string
	// FromAddress — адрес отправителя, привязанный к ресурсу
	FromAddress string
	// MockMode отключает весь сетевой ввод-вывод и возвращает синтетический
	// успешный ответ. Только для тестовых окружений.
	MockMode bool
}

// ClientError описывает ошибку вызова Azure API. StatusCode == 0 означает
// сетевую ошибку или таймаут (запрос не получил HTTP-ответа).
type ClientError struct {
	Message    string
	StatusCode int
	Details    map[string]interface{}
}

func (e *ClientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

// IsPermanent — ошибки 4xx не ретраятся: повторный запрос даст тот же результат
func (e *ClientError) IsPermanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Client отправляет письма через Azure Communication Services Email API
type Client struct {
	endpoint    string
	accessKey   string
	fromAddress string
	mockMode    bool

	httpClient *http.Client
	// retryDelay — базовая задержка перед повтором, растет как delay * 2^attempt
	retryDelay time.Duration
}

// NewClient создает новый клиент ACS
func NewClient(cfg Config) (*Client, error) {
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("azure from address is required")
	}
	if !cfg.MockMode {
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("azure endpoint is required")
		}
		if cfg.AccessKey == "" {
			return nil, fmt.Errorf("azure access key is required")
		}
		if _, err := base64.StdEncoding.DecodeString(cfg.AccessKey); err != nil {
			return nil, fmt.Errorf("azure access key must be valid base64: %w", err)
		}
	}

	return &Client{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		accessKey:   cfg.AccessKey,
		fromAddress: cfg.FromAddress,
		mockMode:    cfg.MockMode,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			},
		},
		retryDelay: time.Second,
	}, nil
}

// emailRequest — тело запроса Email API
type emailRequest struct {
	SenderAddress string          `json:"senderAddress"`
	Recipients    emailRecipients `json:"recipients"`
	Content       emailContent    `json:"content"`
}

type emailRecipients struct {
	To []emailAddress `json:"to"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type emailContent struct {
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	PlainText string `json:"plainText,omitempty"`
}

// SendEmail отправляет письмо и возвращает идентификатор сообщения провайдера.
// Сетевые ошибки и 5xx ретраятся до трех попыток с экспоненциальной задержкой;
// любая 4xx — постоянная ошибка, возвращается сразу.
func (c *Client) SendEmail(ctx context.Context, toEmail, subject, htmlContent, plainTextContent string) (string, error) {
	if toEmail == "" || subject == "" {
		return "", fmt.Errorf("toEmail and subject are required")
	}

	// Mock-режим не должен доходить ни до подписи, ни до сети
	if c.mockMode {
		messageID := "mock_msg_" + uuid.NewString()
		log.Printf("[AzureClient] mock-режим: имитирую успешную отправку to=%s message_id=%s", toEmail, messageID)
		return messageID, nil
	}

	content := emailContent{Subject: subject, HTML: htmlContent, PlainText: plainTextContent}
	body, err := json.Marshal(emailRequest{
		SenderAddress: c.fromAddress,
		Recipients:    emailRecipients{To: []emailAddress{{Address: toEmail}}},
		Content:       content,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal email request: %w", err)
	}

	target, err := url.Parse(c.endpoint + sendPath + "?api-version=" + apiVersion)
	if err != nil {
		return "", fmt.Errorf("invalid azure endpoint: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxSendRetries; attempt++ {
		messageID, sendErr := c.doSend(ctx, target, body)
		if sendErr == nil {
			if attempt > 0 {
				log.Printf("[AzureClient] отправка удалась с попытки %d", attempt+1)
			}
			return messageID, nil
		}
		lastErr = sendErr

		var clientErr *ClientError
		if errors.As(sendErr, &clientErr) && clientErr.IsPermanent() {
			log.Printf("[AzureClient] постоянная ошибка, без повторов: %v", sendErr)
			return "", sendErr
		}

		log.Printf("[AzureClient] попытка %d/%d не удалась: %v", attempt+1, maxSendRetries, sendErr)
		if attempt < maxSendRetries-1 {
			delay := c.retryDelay * (1 << attempt)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return "", fmt.Errorf("email send failed after %d attempts: %w", maxSendRetries, lastErr)
}

// doSend выполняет одну подписанную попытку отправки
func (c *Client) doSend(ctx context.Context, target *url.URL, body []byte) (string, error) {
	headers, err := c.authHeaders(http.MethodPost, target, body, time.Now().UTC())
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build azure request: %w", err)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	req.Host = target.Host

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", &ClientError{Message: "Request to Azure Communication Services timed out"}
		}
		return "", &ClientError{Message: "Failed to connect to Azure Communication Services"}
	}
	defer resp.Body.Close()

	return c.handleResponse(resp)
}

// handleResponse разбирает ответ Azure API
func (c *Client) handleResponse(resp *http.Response) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &ClientError{Message: "Failed to read Azure Communication Services response"}
	}

	var data map[string]interface{}
	if len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, &data); jsonErr != nil {
			log.Printf("[AzureClient] не удалось разобрать JSON ответа (status %d)", resp.StatusCode)
			data = nil
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		messageID, _ := data["id"].(string)
		if messageID == "" {
			messageID = resp.Header.Get("x-ms-request-id")
		}
		return messageID, nil
	}

	return "", &ClientError{
		Message:    extractErrorMessage(data, resp.StatusCode),
		StatusCode: resp.StatusCode,
		Details:    data,
	}
}

// extractErrorMessage извлекает человекочитаемое сообщение из известных форм
// тела ошибки, с фиксированным сообщением по статус-коду в качестве запасного
func extractErrorMessage(data map[string]interface{}, statusCode int) string {
	if data != nil {
		if inner, ok := data["error"].(map[string]interface{}); ok {
			if msg, ok := inner["message"].(string); ok && msg != "" {
				return msg
			}
		}
		for _, field := range []string{"message", "error_description", "details"} {
			if msg, ok := data[field].(string); ok && msg != "" {
				return msg
			}
		}
	}

	switch {
	case statusCode == 400:
		return "Bad request - invalid email parameters"
	case statusCode == 401:
		return "Unauthorized - invalid Azure API key"
	case statusCode == 403:
		return "Forbidden - insufficient permissions"
	case statusCode == 404:
		return "Not found - invalid Azure endpoint"
	case statusCode == 429:
		return "Rate limit exceeded - too many requests"
	case statusCode >= 500 && statusCode < 600:
		return "Azure Communication Services internal error"
	default:
		return fmt.Sprintf("Azure API request failed with status %d", statusCode)
	}
}

// authHeaders строит заголовки HMAC-SHA256 подписи для запроса.
// Строка подписи: "{method}\n{pathAndQuery}\n{httpDate};{host};{contentHash}"
func (c *Client) authHeaders(method string, target *url.URL, body []byte, now time.Time) (map[string]string, error) {
	key, err := base64.StdEncoding.DecodeString(c.accessKey)
	if err != nil {
		return nil, fmt.Errorf("azure access key must be valid base64: %w", err)
	}

	pathAndQuery := target.Path
	if target.RawQuery != "" {
		pathAndQuery += "?" + target.RawQuery
	}

	httpDate := now.UTC().Format(http.TimeFormat)

	contentHash := sha256.Sum256(body)
	contentHashB64 := base64.StdEncoding.EncodeToString(contentHash[:])

	stringToSign := method + "\n" + pathAndQuery + "\n" + httpDate + ";" + target.Host + ";" + contentHashB64

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"Authorization":       "HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature=" + signature,
		"x-ms-date":           httpDate,
		"x-ms-content-sha256": contentHashB64,
		"Content-Type":        "application/json",
	}, nil
}
