package service

import (
	"context"
	"strings"

	"github.com/agnuslink/agnuslink/internal/affiliate/domain"
	"github.com/agnuslink/agnuslink/internal/clock"
	"github.com/agnuslink/agnuslink/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/jaevor/go-nanoid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Referral codes are short, unambiguous and URL-safe.
const (
	referralCodeAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	referralCodeLength   = 10
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	genCode func() string
}

func New(p Params) (domain.Service, error) {
	genCode, err := nanoid.CustomASCII(referralCodeAlphabet, referralCodeLength)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("affiliate.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		genCode: genCode,
	}, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateAffiliateRequest) (domain.Affiliate, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Affiliate{}, domain.ErrInvalidEmail
	}

	var referrerID *snowflake.ID
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		referrer, err := s.repo.FindByReferralCode(ctx, s.db, code)
		if err != nil {
			return domain.Affiliate{}, err
		}
		if referrer == nil {
			return domain.Affiliate{}, domain.ErrInvalidReferralCode
		}
		referrerID = &referrer.ID
	}

	now := s.clock.Now()
	affiliate := domain.Affiliate{
		ID:         s.genID.Generate(),
		Email:      email,
		ReferrerID: referrerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Retry on the rare referral code collision; an email collision is
	// terminal either way.
	for attempt := 0; attempt < 3; attempt++ {
		affiliate.ReferralCode = s.genCode()
		err := s.repo.Insert(ctx, s.db, &affiliate)
		if err == nil {
			return affiliate, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return domain.Affiliate{}, err
		}
		existing, findErr := s.repo.FindByReferralCode(ctx, s.db, affiliate.ReferralCode)
		if findErr != nil {
			return domain.Affiliate{}, findErr
		}
		if existing == nil {
			return domain.Affiliate{}, domain.ErrEmailTaken
		}
	}
	return domain.Affiliate{}, domain.ErrEmailTaken
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Affiliate, error) {
	affiliate, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if affiliate == nil {
		return domain.Affiliate{}, domain.ErrNotFound
	}
	return *affiliate, nil
}

func (s *Service) AncestorsOf(ctx context.Context, id snowflake.ID, maxDepth int) ([]domain.Affiliate, error) {
	current, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}

	ancestors := make([]domain.Affiliate, 0, maxDepth)
	seen := map[snowflake.ID]struct{}{id: {}}
	for depth := 0; depth < maxDepth && current.ReferrerID != nil; depth++ {
		parent, err := s.repo.FindByID(ctx, s.db, *current.ReferrerID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		// The graph is acyclic by construction; stop anyway if storage
		// is ever corrupted rather than loop forever.
		if _, dup := seen[parent.ID]; dup {
			s.log.Warn("referral cycle detected", zap.String("affiliate_id", id.String()))
			break
		}
		seen[parent.ID] = struct{}{}
		ancestors = append(ancestors, *parent)
		current = parent
	}
	return ancestors, nil
}

func (s *Service) SubtreeOf(ctx context.Context, id snowflake.ID, visit domain.Visitor) error {
	root, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if root == nil {
		return domain.ErrNotFound
	}

	frontier := []snowflake.ID{id}
	seen := map[snowflake.ID]struct{}{id: {}}
	for depth := 1; len(frontier) > 0; depth++ {
		children, err := s.repo.ListByReferrer(ctx, s.db, frontier)
		if err != nil {
			return err
		}
		frontier = frontier[:0]
		for _, child := range children {
			if _, dup := seen[child.ID]; dup {
				continue
			}
			seen[child.ID] = struct{}{}
			if err := visit(*child, depth); err != nil {
				if err == domain.ErrStopWalk {
					return nil
				}
				return err
			}
			frontier = append(frontier, child.ID)
		}
	}
	return nil
}

func (s *Service) DirectReferrals(ctx context.Context, id snowflake.ID) ([]domain.Affiliate, error) {
	children, err := s.repo.ListByReferrer(ctx, s.db, []snowflake.ID{id})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Affiliate, 0, len(children))
	for _, child := range children {
		out = append(out, *child)
	}
	return out, nil
}
