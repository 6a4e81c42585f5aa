package heleket

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrBadSignature = errors.New("invalid webhook signature")

// SignPayload считает подпись Heleket: md5(base64(json без sign) + ключ).
// Слэши экранируются как \/ — так сериализует их сторона провайдера.
func SignPayload(payload map[string]any, key string) (string, error) {
	clean := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "sign" {
			continue
		}
		clean[k] = v
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(clean); err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	body := strings.TrimRight(buf.String(), "\n")
	body = strings.ReplaceAll(body, "/", "\\/")

	encoded := base64.StdEncoding.EncodeToString([]byte(body))
	hash := md5.Sum([]byte(encoded + key))
	return hex.EncodeToString(hash[:]), nil
}

// VerifyBody проверяет подпись сырого тела вебхука и возвращает разобранный
// payload. Сравнение — constant-time.
func VerifyBody(rawBody []byte, key string) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook body: %w", err)
	}

	received, _ := payload["sign"].(string)
	if received == "" {
		return nil, ErrBadSignature
	}

	expected, err := SignPayload(payload, key)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal([]byte(received), []byte(expected)) {
		return nil, ErrBadSignature
	}
	return payload, nil
}
