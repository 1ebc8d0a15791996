package formatter

import (
	"bytes"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"ankaa/models"
)

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="margin:0;padding:24px;background:#f4f5f7;font-family:Arial,Helvetica,sans-serif;color:#1f2933;">
  <table role="presentation" width="100%" style="max-width:600px;margin:0 auto;background:#ffffff;border-radius:8px;padding:24px;">
    <tr><td>
      <h2 style="margin-top:0;">{{.Emoji}} {{.Title}}</h2>
      {{range .Paragraphs}}<p style="line-height:1.5;">{{.}}</p>
      {{end}}{{if .Fields}}<table role="presentation" style="border-collapse:collapse;margin:16px 0;">
        {{range .Fields}}<tr><td style="padding:4px 12px 4px 0;"><strong>{{.Label}}</strong></td><td style="padding:4px 0;">{{.Value}}</td></tr>
        {{end}}</table>
      {{end}}{{if .Link}}<p style="margin:24px 0;"><a href="{{.Link}}" style="background:#2563eb;color:#ffffff;padding:12px 20px;border-radius:6px;text-decoration:none;display:inline-block;">{{.CallToAction}}</a></p>
      {{end}}
    </td></tr>
  </table>
</body>
</html>
`))

type emailView struct {
	Emoji        string
	Title        string
	Paragraphs   []string
	Fields       []models.Field
	Link         string
	CallToAction string
}

func (f *Formatter) emailPayload(c Content, in Input) models.ChannelPayload {
	view := emailView{
		Emoji:        c.Emoji,
		Title:        c.Title,
		Paragraphs:   paragraphs(c.Body),
		Fields:       c.Fields,
		Link:         in.Link,
		CallToAction: "View details",
	}

	var html bytes.Buffer
	if err := emailTemplate.Execute(&html, view); err != nil {
		// the plain-text body below is still deliverable
		f.logger.Warn("Email template failed", zap.String("notification_id", in.NotificationID), zap.Error(err))
		html.Reset()
	}

	var text strings.Builder
	text.WriteString(c.Body)
	for _, fld := range c.Fields {
		text.WriteString("\n" + fld.Label + ": " + fld.Value)
	}
	if in.Link != "" {
		text.WriteString("\n\n" + in.Link)
	}

	return models.ChannelPayload{
		Title: c.Title,
		Body:  strings.TrimSpace(text.String()),
		HTML:  html.String(),
		Link:  in.Link,
	}
}

func paragraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(body, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
