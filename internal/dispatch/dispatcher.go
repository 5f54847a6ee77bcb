// Package dispatch sends reminder emails to participants whose inactivity
// streak just reached two weeks: serialized, rate limited, fire-and-report.
package dispatch

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/harborlab/cohortwatch/pkg/mailgun"
)

// Dispatcher sends one reminder to one contact address. The severe flag
// selects between the two fixed message templates.
type Dispatcher interface {
	Dispatch(ctx context.Context, address string, severe bool) error
}

// Exactly two templates exist: a mild nudge for a first qualifying streak
// and an escalated wording for participants with repeated streaks.
const (
	mildSubject = "We missed you these past two weeks"
	mildBody    = "Hello,\n\n" +
		"We noticed you haven't filled in your weekly check-in for two weeks " +
		"in a row. Your regular responses are what make the study work, so we " +
		"would love to have you back this week.\n\n" +
		"Your next check-in is waiting in your inbox.\n\n" +
		"Thank you for being part of the study!"

	severeSubject = "Your participation matters, can we help?"
	severeBody    = "Hello,\n\n" +
		"You have now missed the weekly check-in two weeks in a row, and this " +
		"is not the first longer break in your participation. If something " +
		"about the study is getting in your way, just reply to this email and " +
		"we will try to sort it out.\n\n" +
		"Every week you fill in counts. We hope to see you again this week.\n\n" +
		"Thank you!"
)

// MailDispatcher implements Dispatcher over the Mailgun client.
type MailDispatcher struct {
	mail   mailgun.Client
	sender string
}

// NewMailDispatcher creates a Dispatcher sending from the given address.
func NewMailDispatcher(mail mailgun.Client, sender string) *MailDispatcher {
	return &MailDispatcher{mail: mail, sender: sender}
}

func (d *MailDispatcher) Dispatch(ctx context.Context, address string, severe bool) error {
	msg := mailgun.Message{
		From:    d.sender,
		To:      address,
		Subject: mildSubject,
		Text:    mildBody,
	}
	if severe {
		msg.Subject = severeSubject
		msg.Text = severeBody
	}

	if _, err := d.mail.Send(ctx, msg); err != nil {
		return eris.Wrapf(err, "dispatch: send to %s", address)
	}
	return nil
}
