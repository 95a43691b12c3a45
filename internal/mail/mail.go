// Package mail turns published domain events into emails.
package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"auction-engine/internal/config"
	"auction-engine/internal/events"
	"auction-engine/internal/notifications"
	"auction-engine/utils"
)

// ErrNoRecipient is returned for events without an email address.
var ErrNoRecipient = errors.New("mail: event has no recipient")

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	Body    string
}

var topicKinds = map[events.Topic]notifications.Kind{
	events.TopicBidPlaced:         notifications.BidPlaced,
	events.TopicOutbid:            notifications.Outbid,
	events.TopicCreateAuction:     notifications.AuctionCreated,
	events.TopicWinAuction:        notifications.AuctionWon,
	events.TopicFundAccount:       notifications.WalletFunded,
	events.TopicRefundReqBuyer:    notifications.RefundRequestBuyer,
	events.TopicRefundReqSeller:   notifications.RefundRequestSeller,
	events.TopicParticipantInvite: notifications.AuctionInvite,
}

// account topics are published by the user service; their text lives here
var accountTemplates = map[events.Topic][2]string{
	events.TopicOTP:        {"Verify your email", "Your verification code is {otp}. It expires in 10 minutes."},
	events.TopicResetToken: {"Reset your password", "Use the link below to reset your password. Ignore this email if you did not ask for it."},
	events.TopicContactUs:  {"Message from {username}", "{message}"},
}

// Compose renders the email for one event payload.
func Compose(topic events.Topic, payload []byte) (Message, error) {
	var fields map[string]string
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Message{}, fmt.Errorf("mail: decode %s payload: %w", topic, err)
	}
	to := strings.TrimSpace(fields["email"])
	if to == "" {
		return Message{}, ErrNoRecipient
	}

	params := notifications.Params(fields)
	if id, ok := fields["auction_id"]; ok {
		params["auction"] = id
	}

	var subject, body string
	if kind, ok := topicKinds[topic]; ok {
		subject, body = notifications.Render(kind, params)
	} else if t, ok := accountTemplates[topic]; ok {
		r := replacer(params)
		subject, body = r.Replace(t[0]), r.Replace(t[1])
	} else {
		return Message{}, fmt.Errorf("mail: no template for topic %q", topic)
	}

	var b strings.Builder
	if name := fields["username"]; name != "" {
		b.WriteString("Hi " + name + ",\n\n")
	}
	b.WriteString(body)
	if link := fields["link"]; link != "" {
		b.WriteString("\n\n" + link)
	}
	return Message{To: to, Subject: subject, Body: b.String()}, nil
}

func replacer(params notifications.Params) *strings.Replacer {
	pairs := make([]string, 0, 2*len(params))
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...)
}

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends through a plain SMTP relay with PLAIN auth.
type SMTPSender struct {
	cfg  config.MailConfig
	send sendFunc
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var a smtp.Auth
	if s.cfg.Username != "" {
		a = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Server)
	}
	addr := net.JoinHostPort(s.cfg.Server, strconv.Itoa(s.cfg.Port))
	if err := s.send(addr, a, s.cfg.From, []string{m.To}, s.encode(m)); err != nil {
		return fmt.Errorf("mail: send to %s: %w", m.To, err)
	}
	return nil
}

func (s *SMTPSender) encode(m Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + s.cfg.From + "\r\n")
	b.WriteString("To: " + m.To + "\r\n")
	b.WriteString("Subject: " + m.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// Handler composes and sends one email per event. Events that cannot be
// mailed are logged and skipped so the subscription keeps running.
func Handler(s Sender) events.Handler {
	return func(ctx context.Context, msg events.Message) error {
		m, err := Compose(msg.Topic, msg.Payload)
		if err != nil {
			utils.Warn("mail: skipping event", map[string]any{"topic": msg.Topic, "error": err.Error()})
			return nil
		}
		if err := s.Send(ctx, m); err != nil {
			return err
		}
		utils.Info("mail sent", map[string]any{"topic": msg.Topic, "to": m.To})
		return nil
	}
}
