package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mareye-api/internal/email"
	"mareye-api/internal/util"
)

const (
	FormContact        = "contact"
	FormDataSubmission = "data-submission"
)

type ContactMailer interface {
	SendContact(ctx context.Context, f email.ContactForm) error
	SendDataSubmission(ctx context.Context, d email.DataSubmission) error
}

// ContactRequest is the /api/send-email body for both forms.
type ContactRequest struct {
	Type          string       `json:"type"`
	FirstName     string       `json:"firstName"`
	LastName      string       `json:"lastName"`
	Email         string       `json:"email"`
	Institution   string       `json:"institution"`
	Message       string       `json:"message"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	SelectedTools []email.Tool `json:"selectedTools"`
	FileName      string       `json:"fileName"`
	FileSize      int64        `json:"fileSize"`
	FileType      string       `json:"fileType"`
	FileBase64    string       `json:"fileBase64"`
}

type ContactService struct {
	mailer        ContactMailer
	maxAttachment int64
	logger        *zap.Logger
}

func NewContactService(mailer ContactMailer, maxAttachment int64, logger *zap.Logger) *ContactService {
	return &ContactService{mailer: mailer, maxAttachment: maxAttachment, logger: logger}
}

// Submit validates and forwards a form to the admin mailbox. A delivery failure is not an
// error: the submission is logged and delivered reports false.
func (s *ContactService) Submit(ctx context.Context, req ContactRequest) (delivered bool, err error) {
	kind := req.Type
	if kind == "" {
		kind = inferFormType(req)
	}

	var sendErr error
	switch kind {
	case FormContact:
		if blank(req.FirstName, req.LastName, req.Message) {
			return false, fmt.Errorf("%w: invalid form data", ErrInvalidInput)
		}
		if req.Email != "" && !util.IsValidEmail(util.NormalizeEmail(req.Email)) {
			return false, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
		}
		sendErr = s.mailer.SendContact(ctx, email.ContactForm{
			FirstName:   strings.TrimSpace(req.FirstName),
			LastName:    strings.TrimSpace(req.LastName),
			Email:       util.NormalizeEmail(req.Email),
			Institution: strings.TrimSpace(req.Institution),
			Message:     req.Message,
		})

	case FormDataSubmission:
		if blank(req.Name, req.Email, req.Institution, req.Description) {
			return false, fmt.Errorf("%w: invalid form data", ErrInvalidInput)
		}
		if !util.IsValidEmail(util.NormalizeEmail(req.Email)) {
			return false, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
		}
		file, err := s.attachment(req)
		if err != nil {
			return false, err
		}
		sub := email.DataSubmission{
			Name:          strings.TrimSpace(req.Name),
			Email:         util.NormalizeEmail(req.Email),
			Institution:   strings.TrimSpace(req.Institution),
			Description:   req.Description,
			SelectedTools: req.SelectedTools,
			File:          file,
		}
		if file != nil {
			sub.FileSize = int64(len(file.Data))
		}
		sendErr = s.mailer.SendDataSubmission(ctx, sub)

	default:
		return false, fmt.Errorf("%w: invalid form data", ErrInvalidInput)
	}

	if sendErr != nil {
		s.logger.Error("Form delivery failed, submission logged for manual processing",
			util.String("type", kind),
			util.Email("from", req.Email),
			util.String("name", strings.TrimSpace(req.Name+" "+req.FirstName+" "+req.LastName)),
			util.String("institution", req.Institution),
			zap.Error(sendErr),
		)
		return false, nil
	}
	return true, nil
}

// attachment decodes fileBase64, which may be a bare payload or a data URL.
func (s *ContactService) attachment(req ContactRequest) (*email.Attachment, error) {
	if req.FileBase64 == "" {
		return nil, nil
	}
	payload := req.FileBase64
	if strings.HasPrefix(payload, "data:") {
		if _, after, ok := strings.Cut(payload, ","); ok {
			payload = after
		}
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: attachment is not valid base64", ErrInvalidInput)
	}
	if s.maxAttachment > 0 && int64(len(data)) > s.maxAttachment {
		return nil, fmt.Errorf("%w: attachment exceeds %d bytes", ErrInvalidInput, s.maxAttachment)
	}

	name := strings.TrimSpace(req.FileName)
	if name == "" {
		name = "attachment"
	}
	contentType := req.FileType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &email.Attachment{Filename: name, ContentType: contentType, Data: data}, nil
}

func inferFormType(req ContactRequest) string {
	switch {
	case !blank(req.FirstName, req.LastName, req.Message):
		return FormContact
	case !blank(req.Name, req.Email, req.Institution, req.Description):
		return FormDataSubmission
	}
	return ""
}

// blank reports whether any of the values is empty after trimming.
func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
