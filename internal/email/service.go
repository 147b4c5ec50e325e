package email

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mareye-api/internal/util"
)

const (
	otpSubject     = "MarEye verification code"
	welcomeSubject = "Welcome to MarEye"
)

type Service struct {
	transport Transport
	from      string
	admin     string
	baseURL   string
	logger    *zap.Logger
}

func NewService(t Transport, from, admin, baseURL string, logger *zap.Logger) *Service {
	return &Service{transport: t, from: from, admin: admin, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// SendOTP delivers a verification code. The code itself is never logged.
func (s *Service) SendOTP(ctx context.Context, to, code, name string) error {
	greeting := ""
	if name != "" {
		greeting = fmt.Sprintf("<p>Hello %s,</p>", util.SanitizeInput(name))
	}
	msg := &Message{
		To:      to,
		Subject: otpSubject,
		Text: fmt.Sprintf("Your verification code is: %s\n\nThis code expires in 10 minutes. "+
			"If you did not request it, you can ignore this email.", code),
		HTML: layout("Email verification", greeting+fmt.Sprintf(
			`<p>Your verification code is:</p><p style="font-size:32px;letter-spacing:8px;font-family:monospace"><strong>%s</strong></p>`+
				`<p>This code is valid for 10 minutes. If you did not request it, ignore this email.</p>`, code)),
	}
	if err := s.transport.Send(ctx, s.from, msg); err != nil {
		s.logger.Error("Failed to send OTP email", util.Email("to", to), zap.Error(err))
		return err
	}
	s.logger.Info("OTP email sent", util.Email("to", to))
	return nil
}

func (s *Service) SendWelcome(ctx context.Context, to, name string) error {
	body := fmt.Sprintf(`<p>Hello %s,</p>`+
		`<p>Your MarEye account is ready. You can now run species identification, threat detection and image enhancement.</p>`+
		`<p><a href="%s/dashboard">Open your dashboard</a></p>`, util.SanitizeInput(name), s.baseURL)

	msg := &Message{To: to, Subject: welcomeSubject, HTML: layout("Welcome aboard", body)}
	if err := s.transport.Send(ctx, s.from, msg); err != nil {
		s.logger.Warn("Failed to send welcome email", util.Email("to", to), zap.Error(err))
		return err
	}
	return nil
}

type ContactForm struct {
	FirstName   string
	LastName    string
	Email       string
	Institution string
	Message     string
}

func (s *Service) SendContact(ctx context.Context, f ContactForm) error {
	name := strings.TrimSpace(f.FirstName + " " + f.LastName)

	var b strings.Builder
	fmt.Fprintf(&b, "<p><strong>Name:</strong> %s</p>", util.SanitizeInput(name))
	fmt.Fprintf(&b, "<p><strong>Email:</strong> %s</p>", util.SanitizeInput(f.Email))
	fmt.Fprintf(&b, "<p><strong>Institution:</strong> %s</p>", util.SanitizeInput(f.Institution))
	fmt.Fprintf(&b, "<h3>Message</h3><p>%s</p>", util.SanitizeMultiline(f.Message))

	text := fmt.Sprintf("NEW CONTACT FORM SUBMISSION\n\nName: %s\nEmail: %s\nInstitution: %s\n\nMessage:\n%s\n",
		name, f.Email, f.Institution, f.Message)

	subject := "Contact form: " + name
	if f.Institution != "" {
		subject += " from " + f.Institution
	}

	return s.sendAdmin(ctx, &Message{
		ReplyTo: f.Email,
		Subject: oneLine(subject),
		Text:    text,
		HTML:    layout("New contact message", b.String()),
	})
}

type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type DataSubmission struct {
	Name          string
	Email         string
	Institution   string
	Description   string
	SelectedTools []Tool
	File          *Attachment
	FileSize      int64
}

func (s *Service) SendDataSubmission(ctx context.Context, d DataSubmission) error {
	var b strings.Builder
	fmt.Fprintf(&b, "<p><strong>Researcher:</strong> %s</p>", util.SanitizeInput(d.Name))
	fmt.Fprintf(&b, "<p><strong>Email:</strong> %s</p>", util.SanitizeInput(d.Email))
	fmt.Fprintf(&b, "<p><strong>Institution:</strong> %s</p>", util.SanitizeInput(d.Institution))
	b.WriteString("<h3>Selected AI tools</h3>")
	if len(d.SelectedTools) == 0 {
		b.WriteString("<p>No tools selected</p>")
	} else {
		b.WriteString("<ul>")
		for _, t := range d.SelectedTools {
			fmt.Fprintf(&b, "<li><strong>%s</strong>: %s</li>", util.SanitizeInput(t.Name), util.SanitizeInput(t.Description))
		}
		b.WriteString("</ul>")
	}
	fmt.Fprintf(&b, "<h3>Data description</h3><p>%s</p>", util.SanitizeMultiline(d.Description))

	var text strings.Builder
	fmt.Fprintf(&text, "NEW DATA SUBMISSION\n\nResearcher: %s\nEmail: %s\nInstitution: %s\n\nSelected AI tools:\n", d.Name, d.Email, d.Institution)
	if len(d.SelectedTools) == 0 {
		text.WriteString("None\n")
	}
	for _, t := range d.SelectedTools {
		fmt.Fprintf(&text, "- %s: %s\n", t.Name, t.Description)
	}
	fmt.Fprintf(&text, "\nData description:\n%s\n\n", d.Description)

	msg := &Message{
		ReplyTo: d.Email,
		Subject: oneLine(fmt.Sprintf("Data submission: %s (%d AI tools)", d.Name, len(d.SelectedTools))),
	}
	if d.File != nil {
		size := fmt.Sprintf("%.2f MB", float64(d.FileSize)/1024/1024)
		fmt.Fprintf(&b, "<h3>Attached file</h3><p>%s (%s, %s)</p>",
			util.SanitizeInput(d.File.Filename), size, util.SanitizeInput(d.File.ContentType))
		fmt.Fprintf(&text, "Attached file: %s (%s, %s)\n", d.File.Filename, size, d.File.ContentType)
		msg.Attachments = []Attachment{*d.File}
	} else {
		text.WriteString("No file attached\n")
	}
	msg.Text = text.String()
	msg.HTML = layout("New data submission", b.String())

	return s.sendAdmin(ctx, msg)
}

func (s *Service) sendAdmin(ctx context.Context, msg *Message) error {
	msg.To = s.admin
	if err := s.transport.Send(ctx, s.from, msg); err != nil {
		s.logger.Error("Failed to relay form submission", zap.String("subject", msg.Subject), zap.Error(err))
		return err
	}
	return nil
}

func layout(title, body string) string {
	return `<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto;background:#0f172a;padding:32px;border-radius:16px;color:#e2e8f0">` +
		`<h1 style="color:#06b6d4;margin:0 0 4px">MarEye</h1><p style="color:#94a3b8;margin:0 0 24px">Marine security and conservation</p>` +
		`<h2 style="margin:0 0 16px">` + title + `</h2>` + body +
		`<p style="color:#94a3b8;font-size:12px;margin-top:32px">This is an automated message from MarEye.</p></div>`
}

// oneLine keeps user text from injecting extra mail headers through the subject.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
