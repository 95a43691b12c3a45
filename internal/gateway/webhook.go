package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/money"
)

// SignatureHeader carries the hex HMAC-SHA512 of the raw webhook body.
const SignatureHeader = "x-paystack-signature"

// Webhook event names.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailure = "charge.failure"
)

// VerifySignature checks signature against HMAC-SHA512(secret, body).
func VerifySignature(secret string, body []byte, signature string) error {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return fmt.Errorf("gateway: %w - malformed signature", biddingerrors.ErrInvalidSignature)
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return fmt.Errorf("gateway: %w", biddingerrors.ErrInvalidSignature)
	}
	return nil
}

// Sign returns the signature the provider would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Allowlist holds the source addresses webhooks may come from.
type Allowlist struct {
	ips map[string]struct{}
}

// ParseAllowlist reads a comma separated list of IPs. An empty list allows
// nothing.
func ParseAllowlist(csv string) Allowlist {
	al := Allowlist{ips: map[string]struct{}{}}
	for _, part := range strings.Split(csv, ",") {
		if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
			al.ips[ip.String()] = struct{}{}
		}
	}
	return al
}

func (a Allowlist) Allowed(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	_, ok := a.ips[parsed.String()]
	return ok
}

type WebhookEvent struct {
	Event string
	Data  Verification
}

// ParseWebhook decodes a webhook body.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var raw struct {
		Event string       `json:"event"`
		Data  Verification `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return WebhookEvent{}, fmt.Errorf("gateway: %w - %v", biddingerrors.ErrValidation, err)
	}
	if raw.Event == "" || raw.Data.Reference == "" {
		return WebhookEvent{}, fmt.Errorf("gateway: %w - event and reference are required", biddingerrors.ErrValidation)
	}
	raw.Data.Amount = money.Amount(raw.Data.Minor)
	return WebhookEvent{Event: raw.Event, Data: raw.Data}, nil
}
