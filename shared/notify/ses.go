package notify

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"

	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const charset = "UTF-8"

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SESSender sends email through Amazon SES behind a circuit breaker.
type SESSender struct {
	client  sesiface.SESAPI
	from    string
	breaker *utils.CircuitBreaker
}

// NewSESSender creates a sender for region using the default AWS
// credential chain.
func NewSESSender(region, from string) (*SESSender, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}
	return newSESSender(ses.New(sess), from), nil
}

func newSESSender(client sesiface.SESAPI, from string) *SESSender {
	return &SESSender{
		client:  client,
		from:    from,
		breaker: utils.NewCircuitBreaker("ses", 5, 30*time.Second),
	}
}

func (s *SESSender) Send(ctx context.Context, m Message) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(m.To)},
		},
		Message: &ses.Message{
			Subject: &ses.Content{Charset: aws.String(charset), Data: aws.String(m.Subject)},
			Body: &ses.Body{
				Html: &ses.Content{Charset: aws.String(charset), Data: aws.String(m.HTML)},
				Text: &ses.Content{Charset: aws.String(charset), Data: aws.String(m.Text)},
			},
		},
	}
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		_, err := s.client.SendEmailWithContext(ctx, input)
		return err
	})
}

// Breaker exposes the breaker state for status endpoints.
func (s *SESSender) Breaker() utils.CircuitSnapshot {
	return s.breaker.Snapshot()
}

// IsPermanent reports whether retrying a send can never succeed.
func IsPermanent(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case ses.ErrCodeMessageRejected,
		ses.ErrCodeMailFromDomainNotVerifiedException,
		ses.ErrCodeConfigurationSetDoesNotExistException:
		return true
	}
	return false
}
