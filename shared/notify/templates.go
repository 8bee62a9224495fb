package notify

import (
	"bytes"
	"encoding/base64"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/pavitra93/gym-tenant-system/shared/events"
)

const qrCardSize = 256

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type templateSet struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// templateData is what every email template sees.
type templateData struct {
	StudentName string
	GymName     string
	PlanName    string
	ExpiryDate  string
	DaysLeft    int

	CheckInToken string
	QRCard       htmltemplate.URL
}

const layoutHTML = `<!DOCTYPE html>
<html><body style="font-family: sans-serif">
<p>Hi {{.StudentName}},</p>
{{template "content" .}}
<p>{{.GymName}}</p>
</body></html>`

var definitions = map[events.Type]struct{ subject, html, text string }{
	events.StudentCreated: {
		subject: `Welcome to {{.GymName}}`,
		html: `{{define "content"}}<p>Your membership{{if .PlanName}} on the <b>{{.PlanName}}</b> plan{{end}} is active until {{.ExpiryDate}}.</p>` +
			`{{if .CheckInToken}}<p>This is your QR card. Show it at the front desk to check in.</p>` +
			`<p><img src="{{.QRCard}}" alt="QR card" width="256" height="256"></p>` +
			`<p>Check-in code: <code>{{.CheckInToken}}</code></p>{{end}}{{end}}`,
		text: `Hi {{.StudentName}}, your membership at {{.GymName}} is active until {{.ExpiryDate}}.` +
			`{{if .CheckInToken}} Your check-in code is {{.CheckInToken}}.{{end}}`,
	},
	events.MembershipRenewed: {
		subject: `Your {{.GymName}} membership was renewed`,
		html:    `{{define "content"}}<p>Thanks for renewing. Your membership now runs until {{.ExpiryDate}}.</p>{{end}}`,
		text:    `Hi {{.StudentName}}, your membership at {{.GymName}} now runs until {{.ExpiryDate}}.`,
	},
	events.MembershipExpiring: {
		subject: `Your {{.GymName}} membership expires in {{.DaysLeft}} days`,
		html:    `{{define "content"}}<p>Your membership expires on {{.ExpiryDate}}. Renew at the front desk to keep training.</p>{{end}}`,
		text:    `Hi {{.StudentName}}, your membership at {{.GymName}} expires on {{.ExpiryDate}}.`,
	},
	events.MembershipExpired: {
		subject: `Your {{.GymName}} membership has expired`,
		html:    `{{define "content"}}<p>Your membership expired on {{.ExpiryDate}}. We hope to see you back soon.</p>{{end}}`,
		text:    `Hi {{.StudentName}}, your membership at {{.GymName}} expired on {{.ExpiryDate}}.`,
	},
	events.StudentDeactivated: {
		subject: `Your {{.GymName}} membership was cancelled`,
		html:    `{{define "content"}}<p>Your membership has been cancelled. Your attendance history is kept if you return.</p>{{end}}`,
		text:    `Hi {{.StudentName}}, your membership at {{.GymName}} has been cancelled.`,
	},
}

// Renderer turns lifecycle events into emails.
type Renderer struct {
	sets map[events.Type]templateSet
}

func NewRenderer() (*Renderer, error) {
	base, err := htmltemplate.New("layout").Parse(layoutHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email layout: %w", err)
	}
	r := &Renderer{sets: make(map[events.Type]templateSet, len(definitions))}
	for typ, def := range definitions {
		html, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := html.Parse(def.html); err != nil {
			return nil, fmt.Errorf("failed to parse %s html template: %w", typ, err)
		}
		subject, err := texttemplate.New("subject").Parse(def.subject)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s subject: %w", typ, err)
		}
		text, err := texttemplate.New("text").Parse(def.text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s text template: %w", typ, err)
		}
		r.sets[typ] = templateSet{subject: subject, html: html, text: text}
	}
	return r, nil
}

// Supports reports whether the event type has an email.
func (r *Renderer) Supports(t events.Type) bool {
	_, ok := r.sets[t]
	return ok
}

// Render builds the email for e. Dates are shown in loc.
func (r *Renderer) Render(e events.Event, gymName string, loc *time.Location, now time.Time) (Message, error) {
	set, ok := r.sets[e.Type]
	if !ok {
		return Message{}, fmt.Errorf("no email template for event type %q", e.Type)
	}
	data := templateData{
		StudentName: e.StudentName,
		GymName:     gymName,
		PlanName:    e.PlanName,
		ExpiryDate:  e.ExpiryDate.In(loc).Format("02/01/2006"),
		DaysLeft:    daysLeft(e.ExpiryDate, now),
	}
	if e.Type == events.StudentCreated && e.CheckInToken != uuid.Nil {
		card, err := qrCard(e.CheckInToken)
		if err != nil {
			return Message{}, err
		}
		data.CheckInToken = e.CheckInToken.String()
		data.QRCard = card
	}

	var subject, html, text bytes.Buffer
	if err := set.subject.Execute(&subject, data); err != nil {
		return Message{}, err
	}
	if err := set.html.ExecuteTemplate(&html, "layout", data); err != nil {
		return Message{}, err
	}
	if err := set.text.Execute(&text, data); err != nil {
		return Message{}, err
	}
	return Message{To: e.Email, Subject: subject.String(), HTML: html.String(), Text: text.String()}, nil
}

// qrCard encodes the check-in token as an inline PNG. The payload is the
// bare token, which is what a qr check-in submits.
func qrCard(token uuid.UUID) (htmltemplate.URL, error) {
	png, err := qrcode.Encode(token.String(), qrcode.Medium, qrCardSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr card: %w", err)
	}
	return htmltemplate.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)), nil
}

func daysLeft(expiry, now time.Time) int {
	d := expiry.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + 24*time.Hour - 1) / (24 * time.Hour))
}
