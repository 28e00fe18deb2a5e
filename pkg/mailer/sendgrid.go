package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridMailer delivers mail through the SendGrid v3 API.
type SendgridMailer struct {
	key  string
	from *sgmail.Email
}

// NewSendgridMailer constructs a SendgridMailer.
func NewSendgridMailer(key, fromName, fromEmail string) *SendgridMailer {
	return &SendgridMailer{
		key:  key,
		from: sgmail.NewEmail(fromName, fromEmail),
	}
}

// build assembles the API payload. SendGrid rejects content entries with an
// empty value, so absent parts are left out entirely.
func (m *SendgridMailer) build(msg Message) (*sgmail.SGMailV3, error) {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToEmail))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	contents := make([]*sgmail.Content, 0, 2)
	if msg.TextBody != "" {
		contents = append(contents, sgmail.NewContent("text/plain", msg.TextBody))
	}
	if msg.HTMLBody != "" {
		contents = append(contents, sgmail.NewContent("text/html", msg.HTMLBody))
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("message to %s has no body", msg.ToEmail)
	}
	v3.AddContent(contents...)
	return v3, nil
}

// Send delivers one message.
func (m *SendgridMailer) Send(_ context.Context, msg Message) error {
	v3, err := m.build(msg)
	if err != nil {
		return err
	}

	req := sendgrid.GetRequest(m.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(v3)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid responded %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
