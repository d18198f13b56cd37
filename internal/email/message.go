package email

import (
	"gopkg.in/gomail.v2"

	"CampaignMailer/internal/models"
)

// Build assembles the MIME message. Attachments are embedded inline and
// carry their cid as Content-ID so <img src="cid:..."> references resolve.
func Build(msg *models.Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.FromAddress, msg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	for _, a := range msg.Attachments {
		m.Embed(a.Path,
			gomail.Rename(a.Filename),
			gomail.SetHeader(map[string][]string{
				"Content-ID": {"<" + a.ContentID + ">"},
			}),
		)
	}

	return m
}
