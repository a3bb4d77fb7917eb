package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-makeup-api/internal/models"
	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
)

const (
	studentsCacheKey = "makeup:catalog:students"
	classesCacheKey  = "makeup:catalog:classes"
)

// MakeupUpstream is the core API surface the resolution workflow reads from and writes to.
type MakeupUpstream interface {
	StudentsWithCredits(ctx context.Context) ([]byte, error)
	CreditsByStudent(ctx context.Context, studentProfileID string) ([]byte, error)
	SessionByID(ctx context.Context, sessionID string) ([]byte, error)
	SuggestionsByCredit(ctx context.Context, query models.SuggestionQuery) ([]byte, error)
	Classes(ctx context.Context) ([]byte, error)
	SessionsByClass(ctx context.Context, classID string, from, to time.Time) ([]byte, error)
	CreateMakeupBooking(ctx context.Context, booking models.MakeupBookingRequest) error
}

// StageFetcher loads the canonical option list of every workflow stage.
type StageFetcher interface {
	Students(ctx context.Context) ([]models.MakeupStudent, error)
	Credits(ctx context.Context, studentProfileID string) ([]models.MakeupCredit, error)
	SourceSession(ctx context.Context, sessionID string) (*models.SourceSession, error)
	Suggestions(ctx context.Context, query models.SuggestionQuery) ([]models.MakeupSessionOption, error)
	ManualClasses(ctx context.Context) ([]models.MakeupClassOption, error)
	ManualSessions(ctx context.Context, classID, date string) ([]models.MakeupSessionOption, error)
}

// MakeupFetchers binds the upstream client, normalizer and catalog cache into stage loaders.
type MakeupFetchers struct {
	upstream   MakeupUpstream
	normalizer *Normalizer
	cache      *CacheService
	cacheTTL   time.Duration
	location   *time.Location
	logger     *zap.Logger
}

// NewMakeupFetchers constructs the stage loaders. cache may be nil.
func NewMakeupFetchers(upstream MakeupUpstream, normalizer *Normalizer, cache *CacheService, cacheTTL time.Duration, location *time.Location, logger *zap.Logger) *MakeupFetchers {
	if normalizer == nil {
		normalizer = NewNormalizer()
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MakeupFetchers{upstream: upstream, normalizer: normalizer, cache: cache, cacheTTL: cacheTTL, location: location, logger: logger}
}

// Students lists students holding credits; the list is shared across workflows through the cache.
func (f *MakeupFetchers) Students(ctx context.Context) ([]models.MakeupStudent, error) {
	var students []models.MakeupStudent
	err := f.cache.Remember(ctx, studentsCacheKey, f.cacheTTL, &students, func(ctx context.Context) error {
		raw, err := f.upstream.StudentsWithCredits(ctx)
		if err != nil {
			return err
		}
		students, err = f.normalizer.Students(raw)
		return normalizeErr(err)
	})
	return students, err
}

// Credits lists the student's usable credits only.
func (f *MakeupFetchers) Credits(ctx context.Context, studentProfileID string) ([]models.MakeupCredit, error) {
	raw, err := f.upstream.CreditsByStudent(ctx, studentProfileID)
	if err != nil {
		return nil, err
	}
	credits, err := f.normalizer.Credits(raw)
	if err != nil {
		return nil, normalizeErr(err)
	}
	usable := make([]models.MakeupCredit, 0, len(credits))
	for _, credit := range credits {
		if credit.Usable() {
			usable = append(usable, credit)
		}
	}
	if hidden := len(credits) - len(usable); hidden > 0 {
		f.logger.Debug("hid unusable credits", zap.String("student_profile_id", studentProfileID), zap.Int("hidden", hidden))
	}
	return usable, nil
}

// SourceSession loads the missed session; a payload without a session is reported as not found.
func (f *MakeupFetchers) SourceSession(ctx context.Context, sessionID string) (*models.SourceSession, error) {
	raw, err := f.upstream.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session, err := f.normalizer.SourceSession(raw)
	if err != nil {
		return nil, normalizeErr(err)
	}
	if session == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "source session not found")
	}
	return session, nil
}

// Suggestions flattens the replacement sessions proposed for a credit.
func (f *MakeupFetchers) Suggestions(ctx context.Context, query models.SuggestionQuery) ([]models.MakeupSessionOption, error) {
	raw, err := f.upstream.SuggestionsByCredit(ctx, query)
	if err != nil {
		return nil, err
	}
	options, err := f.normalizer.Suggestions(raw)
	return options, normalizeErr(err)
}

// ManualClasses lists every class for manual placement.
func (f *MakeupFetchers) ManualClasses(ctx context.Context) ([]models.MakeupClassOption, error) {
	var classes []models.MakeupClassOption
	err := f.cache.Remember(ctx, classesCacheKey, f.cacheTTL, &classes, func(ctx context.Context) error {
		raw, err := f.upstream.Classes(ctx)
		if err != nil {
			return err
		}
		classes, err = f.normalizer.ManualClasses(raw)
		return normalizeErr(err)
	})
	return classes, err
}

// ManualSessions lists the class's sessions on the chosen local day.
func (f *MakeupFetchers) ManualSessions(ctx context.Context, classID, date string) ([]models.MakeupSessionOption, error) {
	from, to, ok := DayRange(date, f.location)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
	}
	raw, err := f.upstream.SessionsByClass(ctx, classID, from, to)
	if err != nil {
		return nil, err
	}
	options, err := f.normalizer.ManualSessions(raw)
	if err != nil {
		return nil, normalizeErr(err)
	}
	for i := range options {
		if options[i].ClassID == "" {
			options[i].ClassID = classID
		}
	}
	return options, nil
}

func normalizeErr(err error) error {
	if err == nil {
		return nil
	}
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "unreadable upstream payload")
}
