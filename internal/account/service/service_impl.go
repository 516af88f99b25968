package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/account/domain"
	"github.com/cvforge/cvforge/internal/account/password"
	"github.com/cvforge/cvforge/internal/clock"
	"github.com/cvforge/cvforge/internal/identity"
	paymentdomain "github.com/cvforge/cvforge/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const minPasswordLen = 8

// Session is the authenticated result handed back to the transport layer.
type Session struct {
	Account *domain.Account
	Token   string
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	PaymentRepo paymentdomain.Repository
	Tokens      *identity.TokenManager
	Clock       clock.Clock
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	paymentRepo paymentdomain.Repository
	tokens      *identity.TokenManager
	clock       clock.Clock
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("account.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		paymentRepo: p.PaymentRepo,
		tokens:      p.Tokens,
		clock:       p.Clock,
	}
}

// Register creates an account and signs it in. Purchases made under the
// caller's anonymous session move to the new account.
func (s *Service) Register(ctx context.Context, email, plaintext string, session identity.Identity) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(plaintext) < minPasswordLen {
		return nil, domain.ErrInvalidPassword
	}

	hash, err := password.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	account := &domain.Account{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	inserted, err := s.repo.Insert(ctx, s.db, account)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, domain.ErrEmailTaken
	}

	s.adoptSessionPayments(ctx, session, account.ID)
	s.log.Info("account registered", zap.String("account_id", account.ID.String()))
	return s.issue(account)
}

// Login verifies credentials and signs the account in, adopting the caller's
// anonymous session purchases.
func (s *Service) Login(ctx context.Context, email, plaintext string, session identity.Identity) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	account, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if account == nil || !password.Verify(plaintext, account.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	s.adoptSessionPayments(ctx, session, account.ID)
	return s.issue(account)
}

// Get returns the account for an authenticated identity.
func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Account, error) {
	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

// adoptSessionPayments re-keys payments made under the anonymous session to
// the account. The re-key is a single guarded update per row, so repeated
// logins never move a row twice.
func (s *Service) adoptSessionPayments(ctx context.Context, session identity.Identity, accountID snowflake.ID) {
	if session.Kind != identity.KindSession || session.SessionID == "" {
		return
	}
	accountKey := identity.ForAccount(accountID, false).Key()
	moved, err := s.paymentRepo.ReKeySession(ctx, s.db, session.Key(), accountKey, s.clock.Now())
	if err != nil {
		// Adoption is best effort at sign-in time; the payments stay under
		// the session key and a later login retries.
		s.log.Warn("session payment adoption failed",
			zap.String("session", session.Key()),
			zap.Error(err),
		)
		return
	}
	if moved > 0 {
		s.log.Info("session payments adopted",
			zap.String("account_id", accountID.String()),
			zap.Int64("moved", moved),
		)
	}
}

func (s *Service) issue(account *domain.Account) (*Session, error) {
	token, err := s.tokens.Issue(account.ID, account.Admin, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &Session{Account: account, Token: token}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || !strings.Contains(email[at+1:], ".") {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}
