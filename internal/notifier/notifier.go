// Пакет notifier — отправка писем администраторам проекта.
// Отправка не влияет на исход операции: вызывающий код только логирует ошибку.
package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// defaultTimeout — предел на одно письмо: соединение и весь SMTP-диалог.
const defaultTimeout = 10 * time.Second

// DeletionApprovalMail — письмо со ссылкой подтверждения удаления.
type DeletionApprovalMail struct {
	// To — адрес администратора
	To           string
	ApproverName string
	Filename     string
	ProjectName  string
	RequestedBy  string
	ConfirmURL   string
	ExpiresAt    time.Time
}

// SMTPConfig — параметры SMTP-сервера.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// Timeout — предел на одно письмо; 0 — 10 секунд
	Timeout time.Duration
}

// sendFunc — smtp.SendMail с контекстом.
type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier отправляет письма через SMTP.
type SMTPNotifier struct {
	cfg    SMTPConfig
	send   sendFunc
	logger *slog.Logger
}

// NewSMTPNotifier создаёт SMTP-нотификатор.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &SMTPNotifier{
		cfg:    cfg,
		send:   sendMail,
		logger: logger.With(slog.String("component", "smtp_notifier")),
	}
}

var approvalTemplate = template.Must(template.New("approval").Parse(
	`Здравствуйте{{if .ApproverName}}, {{.ApproverName}}{{end}}!

{{.RequestedBy}} запросил удаление загрузки SOH "{{.Filename}}"{{if .ProjectName}} в проекте "{{.ProjectName}}"{{end}}.
Будут удалены сама загрузка и все её строки.

Подтвердить удаление: {{.ConfirmURL}}

Ссылка действует до {{.ExpiresAt.UTC.Format "2006-01-02 15:04 MST"}}. Если запрос ошибочный, просто проигнорируйте письмо.
`))

// SendDeletionApproval отправляет письмо одному администратору.
func (n *SMTPNotifier) SendDeletionApproval(ctx context.Context, mail DeletionApprovalMail) error {
	if mail.To == "" {
		return errors.New("не указан адрес получателя")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	msg, err := n.buildMessage(mail)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.User != "" {
		auth = smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	if err := n.send(ctx, addr, auth, n.cfg.From, []string{mail.To}, msg); err != nil {
		return fmt.Errorf("отправка письма %s: %w", mail.To, err)
	}

	n.logger.Info("Письмо подтверждения удаления отправлено",
		slog.String("to", mail.To),
		slog.String("filename", mail.Filename),
	)
	return nil
}

// sendMail повторяет smtp.SendMail, но соединение и SMTP-диалог
// ограничены контекстом: при его отмене или дедлайне операции на
// соединении прерываются.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: сервер не поддерживает AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (n *SMTPNotifier) buildMessage(mail DeletionApprovalMail) ([]byte, error) {
	var body bytes.Buffer
	if err := approvalTemplate.Execute(&body, mail); err != nil {
		return nil, fmt.Errorf("формирование письма: %w", err)
	}

	subject := mime.QEncoding.Encode("utf-8", "Подтвердите удаление загрузки SOH: "+mail.Filename)

	var msg bytes.Buffer
	headers := []string{
		"From: " + n.cfg.From,
		"To: " + mail.To,
		"Subject: " + subject,
		"Date: " + time.Now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Transfer-Encoding: 8bit",
	}
	msg.WriteString(strings.Join(headers, "\r\n"))
	msg.WriteString("\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))
	return msg.Bytes(), nil
}

// LogNotifier только пишет письмо в лог. Используется, когда SMTP не настроен.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier создаёт нотификатор, пишущий в лог.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(slog.String("component", "log_notifier"))}
}

// SendDeletionApproval пишет адресата в INFO, ссылку с токеном только в DEBUG.
func (n *LogNotifier) SendDeletionApproval(_ context.Context, mail DeletionApprovalMail) error {
	n.logger.Info("SMTP не настроен, письмо подтверждения удаления не отправлено",
		slog.String("to", mail.To),
		slog.String("filename", mail.Filename),
	)
	n.logger.Debug("Ссылка подтверждения удаления",
		slog.String("to", mail.To),
		slog.String("url", mail.ConfirmURL),
	)
	return nil
}
