// soh_deletion.go — удаление загрузки SOH с подтверждением по ссылке.
//
// Запрос удаления (только superuser) переводит загрузку в Pending Deletion,
// сохраняет SHA-256 одноразового токена и рассылает ссылку подтверждения
// администраторам проекта. Переход по ссылке атомарно удаляет загрузку
// вместе со строками. Истёкший запрос откатывается к прежнему статусу.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bigkaa/stockflow/internal/auth"
	"github.com/bigkaa/stockflow/internal/domain/lifecycle"
	"github.com/bigkaa/stockflow/internal/domain/model"
	"github.com/bigkaa/stockflow/internal/notifier"
	"github.com/bigkaa/stockflow/internal/repository"
)

// ConfirmPath — путь подтверждения удаления относительно базового URL.
const ConfirmPath = "/api/v1/soh-references/deletion/confirm"

// Причины недействительной ссылки подтверждения.
const (
	ReasonMissingToken = "missing_token"
	ReasonInvalidToken = "invalid_token"
	ReasonExpired      = "expired"
)

// MsgDeletionRequested — ответ на успешный запрос удаления.
const MsgDeletionRequested = "Deletion request submitted. Waiting for administrator confirmation."

const (
	tokenBytes       = 32
	sweepBatchLimit  = 100
	defaultDeleteTTL = 24 * time.Hour

	// defaultNotifyTimeout ограничивает рассылку писем по одному запросу
	defaultNotifyTimeout = 30 * time.Second
)

// Notifier — отправка писем подтверждения удаления.
type Notifier interface {
	SendDeletionApproval(ctx context.Context, mail notifier.DeletionApprovalMail) error
}

// InvalidLinkError — ссылка подтверждения не может быть использована.
type InvalidLinkError struct {
	// Reason — missing_token, invalid_token или expired
	Reason string
	Err    error
}

func (e *InvalidLinkError) Error() string {
	return "ссылка подтверждения недействительна: " + e.Reason
}

func (e *InvalidLinkError) Unwrap() error { return e.Err }

// DeletionRequestResult — итог запроса удаления.
type DeletionRequestResult struct {
	Message     string
	ReferenceID string
	ExpiresAt   time.Time
	// Notified — число отправленных писем
	Notified int
}

// DeletionConfirmation — итог подтверждённого удаления.
type DeletionConfirmation struct {
	Filename     string
	DeletedCount int64
}

// SOHDeletionService — запрос, подтверждение и откат удаления загрузок.
type SOHDeletionService struct {
	refs     repository.DataReferenceRepository
	users    repository.UserRepository
	projects *ProjectLookup
	notifier Notifier
	archiver Archiver
	ttl      time.Duration
	baseURL  string
	// notifyTimeout — общий предел рассылки писем одного запроса
	notifyTimeout time.Duration
	now           func() time.Time
	random        func([]byte) (int, error)
	logger        *slog.Logger
}

// NewSOHDeletionService создаёт сервис удаления.
// archiver может быть nil. ttl <= 0 заменяется на 24 часа.
func NewSOHDeletionService(
	refs repository.DataReferenceRepository,
	users repository.UserRepository,
	projects *ProjectLookup,
	n Notifier,
	archiver Archiver,
	ttl time.Duration,
	baseURL string,
	logger *slog.Logger,
) *SOHDeletionService {
	if ttl <= 0 {
		ttl = defaultDeleteTTL
	}
	return &SOHDeletionService{
		refs:          refs,
		users:         users,
		projects:      projects,
		notifier:      n,
		archiver:      archiver,
		ttl:           ttl,
		baseURL:       strings.TrimRight(baseURL, "/"),
		notifyTimeout: defaultNotifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
		random:        rand.Read,
		logger:        logger.With(slog.String("component", "soh_deletion")),
	}
}

// HashToken — SHA-256 токена в hex. В БД хранится только хэш.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ConfirmURL строит ссылку подтверждения для токена.
func (s *SOHDeletionService) ConfirmURL(token string) string {
	return s.baseURL + ConfirmPath + "?token=" + url.QueryEscape(token)
}

// RequestDeletion переводит загрузку в Pending Deletion и рассылает ссылку
// подтверждения администраторам проекта.
func (s *SOHDeletionService) RequestDeletion(ctx context.Context, id *auth.Identity, refID string) (*DeletionRequestResult, error) {
	if !id.IsSuperuser() {
		return nil, fmt.Errorf("%w: удаление доступно только superuser", ErrForbidden)
	}

	ref, err := s.refs.GetByID(ctx, refID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: загрузка %s", ErrNotFound, refID)
		}
		return nil, fmt.Errorf("получение загрузки: %w", err)
	}
	if ref.IsLocked {
		return nil, fmt.Errorf("%w: загрузка %s", ErrLocked, refID)
	}

	now := s.now()
	if ref.Status == lifecycle.StatusPendingDeletion {
		if ref.HasActiveDeletion(now) {
			return nil, fmt.Errorf("%w: удаление уже ожидает подтверждения", ErrConflict)
		}
		// Истёкший запрос откатываем и оформляем заново
		ref, err = s.revertExpired(ctx, ref)
		if err != nil {
			return nil, err
		}
	}
	if !lifecycle.IsTerminal(ref.Status) {
		return nil, fmt.Errorf("%w: загрузка в статусе %s ещё обрабатывается", ErrConflict, ref.Status)
	}

	token, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("генерация токена: %w", err)
	}
	expiresAt := now.Add(s.ttl)

	err = s.refs.RequestDeletion(ctx, ref.ID, repository.DeletionRequest{
		TokenHash:      HashToken(token),
		ExpiresAt:      expiresAt,
		RequestedBy:    id.UserID,
		PreviousStatus: ref.Status,
	})
	if err != nil {
		return nil, s.requestConflict(ctx, ref.ID, err)
	}
	deletionsTotal.WithLabelValues("requested").Inc()

	log := s.logger.With(
		slog.String("reference_id", ref.ID),
		slog.String("project_id", ref.ProjectID),
	)
	log.Info("Запрошено удаление загрузки",
		slog.String("requested_by", id.UserID),
		slog.Time("expires_at", expiresAt),
	)

	notified := s.notifyApprovers(ctx, ref, id, token, expiresAt, log)

	return &DeletionRequestResult{
		Message:     MsgDeletionRequested,
		ReferenceID: ref.ID,
		ExpiresAt:   expiresAt,
		Notified:    notified,
	}, nil
}

// requestConflict уточняет причину отказа условного обновления.
func (s *SOHDeletionService) requestConflict(ctx context.Context, refID string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: загрузка %s", ErrNotFound, refID)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, repository.ErrStaleStatus):
		current, getErr := s.refs.GetByID(ctx, refID)
		if getErr == nil && current.IsLocked {
			return fmt.Errorf("%w: загрузка %s", ErrLocked, refID)
		}
		return fmt.Errorf("%w: статус загрузки изменился", ErrConflict)
	}
	var te *lifecycle.TransitionError
	if errors.As(err, &te) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return fmt.Errorf("запрос удаления: %w", err)
}

// notifyApprovers отправляет письма. Ошибки только логируются.
// Запрос удаления уже сохранён, поэтому рассылка не зависит от отмены
// запроса клиента и ограничена notifyTimeout.
func (s *SOHDeletionService) notifyApprovers(
	ctx context.Context,
	ref *model.DataReference,
	requester *auth.Identity,
	token string,
	expiresAt time.Time,
	log *slog.Logger,
) int {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	approvers, err := s.users.ListApprovers(ctx, ref.ProjectID)
	if err != nil {
		log.Error("Не удалось получить администраторов проекта", slog.String("error", err.Error()))
		return 0
	}
	if len(approvers) == 0 {
		log.Warn("У проекта нет администраторов для подтверждения удаления")
		return 0
	}

	projectName := ref.ProjectID
	if p, err := s.projects.Get(ctx, ref.ProjectID); err == nil {
		projectName = p.Name
	}
	requestedBy := requester.Email
	if requestedBy == "" {
		requestedBy = requester.UserID
	}

	confirmURL := s.ConfirmURL(token)
	sent := 0
	for _, u := range approvers {
		if u.Email == "" {
			continue
		}
		err := s.notifier.SendDeletionApproval(ctx, notifier.DeletionApprovalMail{
			To:           u.Email,
			ApproverName: u.DisplayName,
			Filename:     ref.Filename,
			ProjectName:  projectName,
			RequestedBy:  requestedBy,
			ConfirmURL:   confirmURL,
			ExpiresAt:    expiresAt,
		})
		if err != nil {
			log.Error("Не удалось отправить письмо подтверждения",
				slog.String("to", u.Email),
				slog.String("error", err.Error()),
			)
			if ctx.Err() != nil {
				log.Warn("Рассылка писем прервана по таймауту")
				break
			}
			continue
		}
		sent++
	}
	return sent
}

// ConfirmDeletion удаляет загрузку по токену подтверждения.
// Недействительная ссылка возвращается как *InvalidLinkError.
func (s *SOHDeletionService) ConfirmDeletion(ctx context.Context, token string) (*DeletionConfirmation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, s.invalid(ReasonMissingToken, ErrInvalidToken)
	}

	hash := HashToken(token)
	ref, err := s.refs.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.invalid(ReasonInvalidToken, ErrInvalidToken)
		}
		return nil, fmt.Errorf("поиск по токену: %w", err)
	}

	log := s.logger.With(
		slog.String("reference_id", ref.ID),
		slog.String("project_id", ref.ProjectID),
	)

	if ref.Status != lifecycle.StatusPendingDeletion {
		return nil, s.invalid(ReasonInvalidToken, ErrInvalidToken)
	}
	if !ref.HasActiveDeletion(s.now()) {
		if _, err := s.revertExpired(ctx, ref); err != nil {
			log.Error("Не удалось откатить истёкший запрос удаления", slog.String("error", err.Error()))
		}
		return nil, s.invalid(ReasonExpired, ErrTokenExpired)
	}

	deleted, err := s.refs.DeleteWithRecords(ctx, ref.ID, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Параллельное подтверждение уже использовало токен
			return nil, s.invalid(ReasonInvalidToken, ErrInvalidToken)
		}
		return nil, fmt.Errorf("удаление загрузки: %w", err)
	}
	deletionsTotal.WithLabelValues("confirmed").Inc()
	log.Info("Загрузка удалена по подтверждению",
		slog.String("filename", ref.Filename),
		slog.Int64("deleted_records", deleted),
	)

	s.removeArchive(ctx, ref, log)

	return &DeletionConfirmation{Filename: ref.Filename, DeletedCount: deleted}, nil
}

func (s *SOHDeletionService) invalid(reason string, cause error) error {
	deletionsTotal.WithLabelValues("invalid").Inc()
	return &InvalidLinkError{Reason: reason, Err: cause}
}

func (s *SOHDeletionService) removeArchive(ctx context.Context, ref *model.DataReference, log *slog.Logger) {
	if s.archiver == nil || ref.ArchiveKey == nil {
		return
	}
	if err := s.archiver.Delete(ctx, *ref.ArchiveKey); err != nil {
		log.Warn("Не удалось удалить файл из архива",
			slog.String("key", *ref.ArchiveKey),
			slog.String("error", err.Error()),
		)
	}
}

// revertExpired возвращает загрузку в статус до запроса удаления.
// Возвращает актуальное состояние загрузки.
func (s *SOHDeletionService) revertExpired(ctx context.Context, ref *model.DataReference) (*model.DataReference, error) {
	if ref.DeleteTokenHash == nil {
		return nil, fmt.Errorf("%w: у загрузки нет токена удаления", ErrConflict)
	}
	if err := s.refs.RevertDeletion(ctx, ref.ID, *ref.DeleteTokenHash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: загрузка %s", ErrNotFound, ref.ID)
		}
		if !errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("откат запроса удаления: %w", err)
		}
		// Уже откатили параллельно
	} else {
		deletionsTotal.WithLabelValues("expired").Inc()
		s.logger.Info("Истёкший запрос удаления откатан", slog.String("reference_id", ref.ID))
	}

	current, err := s.refs.GetByID(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: загрузка %s", ErrNotFound, ref.ID)
		}
		return nil, fmt.Errorf("получение загрузки: %w", err)
	}
	return current, nil
}

// SweepExpired откатывает все истёкшие запросы удаления.
// Возвращает число откатанных загрузок.
func (s *SOHDeletionService) SweepExpired(ctx context.Context) (int, error) {
	reverted := 0
	for {
		expired, err := s.refs.ListExpiredDeletions(ctx, s.now(), sweepBatchLimit)
		if err != nil {
			return reverted, fmt.Errorf("получение истёкших запросов удаления: %w", err)
		}

		progress := 0
		for _, ref := range expired {
			if ref.DeleteTokenHash == nil {
				continue
			}
			err := s.refs.RevertDeletion(ctx, ref.ID, *ref.DeleteTokenHash)
			switch {
			case err == nil:
				progress++
				deletionsTotal.WithLabelValues("expired").Inc()
			case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrStaleStatus):
				// Подтверждено или откатано параллельно
			default:
				s.logger.Error("Ошибка отката истёкшего запроса удаления",
					slog.String("reference_id", ref.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		reverted += progress

		if len(expired) < sweepBatchLimit || progress == 0 {
			return reverted, nil
		}
	}
}

func (s *SOHDeletionService) newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := s.random(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
