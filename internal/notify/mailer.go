package notify

import (
	"context"

	"github.com/lalith-99/disruptionhub/internal/models"
	"go.uber.org/zap"
)

// Mail is one outbound message. Alert is a snapshot for templating and may
// be nil.
type Mail struct {
	To      string
	ToName  string
	Subject string
	Body    string
	Link    string
	Alert   *models.Alert
}

// Mailer delivers a single message. It reports success instead of returning
// an error: a failed delivery is an expected outcome, not an exceptional one.
type Mailer interface {
	Send(ctx context.Context, m Mail) bool
}

// LogMailer writes each message to the log and reports it delivered.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger.Named("mailer")}
}

func (m *LogMailer) Send(ctx context.Context, mail Mail) bool {
	if err := ctx.Err(); err != nil {
		return false
	}
	fields := []zap.Field{
		zap.String("to", mail.To),
		zap.String("subject", mail.Subject),
	}
	if mail.Link != "" {
		fields = append(fields, zap.String("link", mail.Link))
	}
	if mail.Alert != nil {
		fields = append(fields, zap.Stringer("alert_id", mail.Alert.ID))
	}
	m.logger.Info("mail sent", fields...)
	return true
}
