package mail

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/google/uuid"

	"evoto/internal/ballot/models"
	"evoto/pkg/email"
)

const confirmationHTML = `<html>
<body>
  <h1>Hola {{.Name}},</h1>
  <p>Tu participación en la votación de {{.Community}} quedó registrada el {{.At}}.</p>
  <p>Decisión: <strong>{{.Decision}}</strong></p>
  <ul>{{range .Units}}
    <li>{{.Type}} {{.Number}}</li>{{end}}
  </ul>
  <p>Puedes revisar el estado de tus unidades en <a href="{{.AppURL}}">{{.AppURL}}</a>.</p>
  <p>¡Gracias por tu participación!</p>
  <p>El Equipo de la Comunidad</p>
</body>
</html>`

const confirmationText = `Hola {{.Name}},

Tu participación en la votación de {{.Community}} quedó registrada el {{.At}}.

Decisión: {{.Decision}}
{{range .Units}}- {{.Type}} {{.Number}}
{{end}}
Puedes revisar el estado de tus unidades en {{.AppURL}}

¡Gracias por tu participación!
El Equipo de la Comunidad
`

var (
	confirmationHTMLTmpl = htmltemplate.Must(htmltemplate.New("confirmation.html").Parse(confirmationHTML))
	confirmationTextTmpl = texttemplate.Must(texttemplate.New("confirmation.txt").Parse(confirmationText))
)

// Chile has no fixed offset; fall back to UTC when tzdata is missing.
var displayZone = func() *time.Location {
	if loc, err := time.LoadLocation("America/Santiago"); err == nil {
		return loc
	}
	return time.UTC
}()

type confirmationView struct {
	Name      string
	Community string
	Decision  string
	Units     []models.Unit
	At        string
	AppURL    string
}

// Confirmer tells voters their vote was recorded. It satisfies the ballot
// ledger's Notifier.
type Confirmer struct {
	sender  Sender
	from    string
	subject string
	appURL  string
}

func NewConfirmer(sender Sender, from, subject, appURL string) *Confirmer {
	return &Confirmer{sender: sender, from: from, subject: subject, appURL: appURL}
}

func (c *Confirmer) VoteRecorded(ctx context.Context, voter models.Voter, units []models.Unit, decision string, at time.Time) error {
	if strings.TrimSpace(voter.Email) == "" {
		return nil
	}
	view := confirmationView{
		Name:      email.GreetingName(voter.Name, voter.Email),
		Community: voter.Community,
		Decision:  decision,
		Units:     units,
		At:        at.In(displayZone).Format("02-01-2006 15:04"),
		AppURL:    c.appURL,
	}

	var html, text bytes.Buffer
	if err := confirmationHTMLTmpl.Execute(&html, view); err != nil {
		return fmt.Errorf("render confirmation html: %w", err)
	}
	if err := confirmationTextTmpl.Execute(&text, view); err != nil {
		return fmt.Errorf("render confirmation text: %w", err)
	}

	return c.sender.Send(ctx, Message{
		ID:        uuid.NewString(),
		From:      c.from,
		To:        voter.Email,
		Subject:   c.subject,
		HTMLBody:  html.String(),
		TextBody:  text.String(),
		CreatedAt: at,
	})
}
