package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"text/template"
	"time"

	"cert-renewer/internal/config"
)

// EventType 事件类型
type EventType string

const (
	EventCertExpiring    EventType = "cert_expiring"    // 证书即将过期
	EventCertRenewed     EventType = "cert_renewed"     // 证书签发成功
	EventCertFailed      EventType = "cert_failed"      // 本轮续期失败
	EventChallengeFailed EventType = "challenge_failed" // 某个验证记录未通过
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3
	maxErrorBody   = 512
)

// EventData 事件数据
type EventData struct {
	Event     string                 `json:"event"`          // 事件类型
	Domain    string                 `json:"domain"`         // 域名或验证记录名
	Timestamp string                 `json:"timestamp"`      // 时间戳
	Message   string                 `json:"message"`        // 消息
	Data      map[string]interface{} `json:"data,omitempty"` // 额外数据
}

// StatusError Webhook 返回了非 2xx 状态码
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("Webhook 返回错误状态码: %d", e.StatusCode)
	}
	return fmt.Sprintf("Webhook 返回错误状态码: %d, 响应: %s", e.StatusCode, e.Body)
}

// retryable 5xx 与 429 可以重试，其它 4xx 重试也不会成功
func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// WebhookNotifier Webhook 通知器，nil 表示未启用
type WebhookNotifier struct {
	config  *config.WebhookConfig
	client  *http.Client
	tmpl    *template.Template
	retries int
	backoff time.Duration
	now     func() time.Time
}

// NewWebhookNotifier 创建 Webhook 通知器，未启用时返回 nil
// 请求体模板在这里解析，解析失败时使用默认 JSON 格式
func NewWebhookNotifier(cfg *config.WebhookConfig) *WebhookNotifier {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	w := &WebhookNotifier{
		config:  cfg,
		client:  &http.Client{Timeout: defaultTimeout},
		retries: defaultRetries,
		backoff: time.Second,
		now:     time.Now,
	}
	if cfg.Timeout > 0 {
		w.client.Timeout = time.Duration(cfg.Timeout) * time.Second
	}
	if cfg.Retries > 0 {
		w.retries = cfg.Retries
	}

	if cfg.BodyTemplate != "" {
		tmpl, err := template.New("webhook").Funcs(template.FuncMap{"toJson": toJSON}).Parse(cfg.BodyTemplate)
		if err != nil {
			log.Printf("解析 Webhook 请求体模板失败，使用默认格式: %v", err)
		} else {
			w.tmpl = tmpl
		}
	}
	return w
}

func toJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// IsEnabled 检查是否启用
func (w *WebhookNotifier) IsEnabled() bool {
	return w != nil && w.config != nil && w.config.Enabled
}

// ShouldNotify 未配置事件列表时发送所有事件
func (w *WebhookNotifier) ShouldNotify(eventType EventType) bool {
	if !w.IsEnabled() {
		return false
	}
	if len(w.config.Events) == 0 {
		return true
	}
	for _, e := range w.config.Events {
		if EventType(e) == eventType {
			return true
		}
	}
	return false
}

// Notify 发送通知，可重试的失败按 1s, 2s, 4s 退避
func (w *WebhookNotifier) Notify(ctx context.Context, eventType EventType, domain, message string, data map[string]interface{}) error {
	if !w.ShouldNotify(eventType) {
		return nil
	}

	body, err := w.encode(EventData{
		Event:     string(eventType),
		Domain:    domain,
		Timestamp: w.now().Format(time.RFC3339),
		Message:   message,
		Data:      data,
	})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= w.retries; attempt++ {
		if attempt > 1 {
			wait := w.backoff << uint(attempt-2)
			log.Printf("Webhook 通知失败，%v 后重试 (第 %d/%d 次): %v", wait, attempt, w.retries, lastErr)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		lastErr = w.deliver(ctx, body)
		if lastErr == nil {
			log.Printf("Webhook 通知发送成功: %s (事件: %s, 域名: %s)", w.config.URL, eventType, domain)
			return nil
		}

		var statusErr *StatusError
		if errors.As(lastErr, &statusErr) && !statusErr.retryable() {
			break
		}
	}

	log.Printf("Webhook 通知发送失败 (事件: %s, 域名: %s): %v", eventType, domain, lastErr)
	return lastErr
}

// encode 优先使用请求体模板，渲染失败时退回 JSON
func (w *WebhookNotifier) encode(ev EventData) ([]byte, error) {
	if w.tmpl != nil {
		var buf bytes.Buffer
		err := w.tmpl.Execute(&buf, map[string]interface{}{
			"Event":     ev.Event,
			"Domain":    ev.Domain,
			"Timestamp": ev.Timestamp,
			"Message":   ev.Message,
			"Data":      ev.Data,
		})
		if err == nil {
			return buf.Bytes(), nil
		}
		log.Printf("渲染 Webhook 请求体模板失败: %v", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("序列化事件数据失败: %w", err)
	}
	return body, nil
}

// deliver 发送一次请求
func (w *WebhookNotifier) deliver(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range w.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

// NotifyCertExpiring 通知证书即将过期
func (w *WebhookNotifier) NotifyCertExpiring(ctx context.Context, domain string, daysRemaining int) error {
	return w.Notify(ctx, EventCertExpiring, domain,
		fmt.Sprintf("证书即将过期: %s (剩余 %d 天)", domain, daysRemaining),
		map[string]interface{}{"days_remaining": daysRemaining})
}

// NotifyCertRenewed 通知证书签发成功
func (w *WebhookNotifier) NotifyCertRenewed(ctx context.Context, domain string, domains []string, notAfter time.Time) error {
	return w.Notify(ctx, EventCertRenewed, domain,
		fmt.Sprintf("证书签发成功: %s", domain),
		map[string]interface{}{"domains": domains, "not_after": notAfter.Format(time.RFC3339)})
}

// NotifyCertFailed 通知本轮续期失败
func (w *WebhookNotifier) NotifyCertFailed(ctx context.Context, domain string, domains []string, reason string) error {
	return w.Notify(ctx, EventCertFailed, domain,
		fmt.Sprintf("证书续期失败: %s", domain),
		map[string]interface{}{"domains": domains, "reason": reason})
}

// NotifyChallengeFailed 通知验证记录未通过
func (w *WebhookNotifier) NotifyChallengeFailed(ctx context.Context, recordName string, reason string) error {
	return w.Notify(ctx, EventChallengeFailed, recordName,
		fmt.Sprintf("DNS 验证失败: %s", recordName),
		map[string]interface{}{"record_name": recordName, "reason": reason})
}
