package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/blog-platform/internal/mailer"
	"github.com/sakif/blog-platform/internal/validation"
)

// Mailer sends email. *mailer.Mailer implements it.
type Mailer interface {
	Send(ctx context.Context, email mailer.Email) error
}

type ContactInput struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Message string `json:"message" validate:"required,max=5000"`
}

// ContactService accepts contact form submissions. Every submission is
// logged; when a mailer and recipient are configured it is also forwarded by
// email. Delivery failures are logged and never reported to the sender.
type ContactService struct {
	mailer    Mailer // nil disables forwarding
	recipient string
	logger    *slog.Logger
}

func NewContactService(m Mailer, recipient string, logger *slog.Logger) *ContactService {
	return &ContactService{mailer: m, recipient: recipient, logger: logger}
}

func (s *ContactService) Submit(ctx context.Context, in ContactInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Message = strings.TrimSpace(in.Message)

	if err := validation.Struct(in); err != nil {
		return err
	}

	s.logger.Info("contact form submitted",
		slog.String("name", in.Name),
		slog.String("email", in.Email),
		slog.Int("messageLength", len(in.Message)),
	)

	if s.mailer == nil || s.recipient == "" {
		return nil
	}

	err := s.mailer.Send(ctx, mailer.Email{
		To:      []string{s.recipient},
		ReplyTo: in.Email,
		Subject: fmt.Sprintf("Contact form: message from %s", in.Name),
		Body:    fmt.Sprintf("From: %s <%s>\n\n%s\n", in.Name, in.Email, in.Message),
	})
	if err != nil {
		s.logger.Error("forwarding contact message failed",
			slog.String("email", in.Email),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
