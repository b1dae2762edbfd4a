package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/stockflow/internal/domain/rbac"
)

// ErrInvalidSession — токен сессии не прошёл проверку.
var ErrInvalidSession = errors.New("невалидная сессия")

// sessionClaims — claims session JWT.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Verifier проверяет подпись и срок session JWT.
type Verifier struct {
	keyfunc func(ctx context.Context) jwt.Keyfunc
	methods []string
	issuer  string
	leeway  time.Duration
}

// VerifierConfig — параметры проверки сессии.
type VerifierConfig struct {
	// Secret — HS256 секрет; используется, если JWKSURL пуст
	Secret string
	// JWKSURL — JWKS endpoint для RS256
	JWKSURL string
	// Issuer — ожидаемый iss (пусто — не проверяется)
	Issuer          string
	RefreshInterval time.Duration
	Leeway          time.Duration
}

// NewVerifier создаёт Verifier по конфигурации.
// При заданном JWKSURL ключи загружаются и обновляются в фоне,
// иначе подпись проверяется общим HS256 секретом.
func NewVerifier(cfg VerifierConfig, logger *slog.Logger) (*Verifier, error) {
	if cfg.JWKSURL == "" {
		if cfg.Secret == "" {
			return nil, errors.New("не задан ни секрет сессии, ни JWKS URL")
		}
		return NewHMACVerifier([]byte(cfg.Secret), cfg.Issuer, cfg.Leeway), nil
	}

	// NoErrorReturnFirstHTTPReq — стартуем даже если IdP ещё недоступен
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    http.DefaultClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", cfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewVerifierWithKeyfunc(k, cfg.Issuer, cfg.Leeway), nil
}

// NewVerifierWithKeyfunc создаёт RS256 Verifier с готовой keyfunc.
// Используется в тестах для подстановки JWKS из памяти.
func NewVerifierWithKeyfunc(kf keyfunc.Keyfunc, issuer string, leeway time.Duration) *Verifier {
	return &Verifier{
		keyfunc: kf.KeyfuncCtx,
		methods: []string{"RS256"},
		issuer:  issuer,
		leeway:  leeway,
	}
}

// NewHMACVerifier создаёт HS256 Verifier.
func NewHMACVerifier(secret []byte, issuer string, leeway time.Duration) *Verifier {
	kf := func(_ *jwt.Token) (any, error) {
		return secret, nil
	}
	return &Verifier{
		keyfunc: func(context.Context) jwt.Keyfunc { return kf },
		methods: []string{"HS256"},
		issuer:  issuer,
		leeway:  leeway,
	}
}

// Verify проверяет token и возвращает Identity без выбранного проекта.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: пустой токен", ErrInvalidSession)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyfunc(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidSession
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: отсутствует sub", ErrInvalidSession)
	}
	if !rbac.IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: неизвестная роль %q", ErrInvalidSession, claims.Role)
	}

	return &Identity{
		UserID:      subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		Role:        claims.Role,
	}, nil
}
