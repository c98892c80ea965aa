package analytics

import (
	"context"
	"fmt"
	"time"

	"devunity/internal/domain"
	"devunity/internal/errors"
	"devunity/redis"

	"go.uber.org/zap"
)

const (
	DefaultDays = 30
	MaxDays     = 365
	usageTTL    = 5 * time.Minute
	dayLayout   = "2006-01-02"
)

type Service interface {
	Usage(ctx context.Context, userID uint64, days int) (*Usage, error)
}

type Usage struct {
	Days             int                             `json:"days"`
	Since            time.Time                       `json:"since"`
	OwnedDocuments   int64                           `json:"ownedDocuments"`
	OwnedFolders     int64                           `json:"ownedFolders"`
	VersionsAuthored int64                           `json:"versionsAuthored"`
	MessagesSent     int64                           `json:"messagesSent"`
	Activity         map[domain.ActivityAction]int64 `json:"activity"`
	EditsPerDay      []DailyEdits                    `json:"editsPerDay"`
}

type DailyEdits struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type DefaultService struct {
	repository UsageRepository
	cache      *redis.Cache
	log        *zap.Logger
	now        func() time.Time
}

func NewService(repository UsageRepository, cache *redis.Cache, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &DefaultService{repository: repository, cache: cache, log: log, now: time.Now}
}

func usageKey(userID uint64, days int) string {
	return fmt.Sprintf("analytics:u:%d:days:%d", userID, days)
}

func (s *DefaultService) Usage(ctx context.Context, userID uint64, days int) (*Usage, error) {
	if days <= 0 {
		days = DefaultDays
	}
	days = min(days, MaxDays)

	var usage Usage
	if found, _ := s.cache.Get(ctx, usageKey(userID, days), &usage); found {
		return &usage, nil
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))

	totals, err := s.repository.Totals(ctx, userID, since)
	if err != nil {
		return nil, errors.Internal(err)
	}
	actions, err := s.repository.ActivityByAction(ctx, userID, since)
	if err != nil {
		return nil, errors.Internal(err)
	}
	edits, err := s.repository.EditsPerDay(ctx, userID, since)
	if err != nil {
		return nil, errors.Internal(err)
	}

	usage = Usage{
		Days:             days,
		Since:            since,
		OwnedDocuments:   totals.OwnedDocuments,
		OwnedFolders:     totals.OwnedFolders,
		VersionsAuthored: totals.VersionsAuthored,
		MessagesSent:     totals.MessagesSent,
		Activity:         make(map[domain.ActivityAction]int64, len(domain.ActivityActions)),
		EditsPerDay:      histogram(since, days, edits),
	}
	for _, a := range domain.ActivityActions {
		usage.Activity[a] = 0
	}
	for _, row := range actions {
		usage.Activity[row.Action] = row.Count
	}

	if err := s.cache.Set(ctx, usageKey(userID, days), usage, usageTTL); err != nil {
		s.log.Debug("failed to cache usage", zap.Uint64("user_id", userID), zap.Error(err))
	}
	return &usage, nil
}

// histogram lays the per-day counts over every day of the window, zero filled
func histogram(since time.Time, days int, rows []DayCount) []DailyEdits {
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Day.UTC().Format(dayLayout)] += row.Count
	}

	out := make([]DailyEdits, days)
	for i := range out {
		day := since.AddDate(0, 0, i).Format(dayLayout)
		out[i] = DailyEdits{Date: day, Count: counts[day]}
	}
	return out
}
