package mailer

import (
	"context"

	"github.com/civicmap/civicmap/pkg/logger"
)

// ConsoleProvider logs messages instead of delivering them. It is the
// development default when no SMTP credentials are configured.
type ConsoleProvider struct {
	Logger *logger.Logger
}

var _ Provider = (*ConsoleProvider)(nil)

func (p *ConsoleProvider) Send(_ context.Context, from string, msg Message) error {
	log := p.Logger
	if log == nil {
		log = logger.NewDefault("mailer.console")
	}
	log.WithFields(map[string]interface{}{
		"from":    from,
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("console email")
	return nil
}
