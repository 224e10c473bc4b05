package services

import (
	"context"
	"errors"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
)

var ErrInvalidCriteria = errors.New("languages, subjects, and topics must be non-empty arrays")

type candidateLister interface {
	ListOnlineByLanguages(ctx context.Context, languages []string) ([]models.TutorProfile, error)
}

// MatchingService finds online tutors satisfying a request's criteria.
//
// Matching is two-stage: the store answers "online AND any language
// overlaps", then subjects (any match) and topics (all match) are
// filtered in memory. Candidates keep the store's natural order;
// callers take the first.
type MatchingService struct {
	tutorRepo candidateLister
}

func NewMatchingService(tutorRepo candidateLister) *MatchingService {
	return &MatchingService{tutorRepo: tutorRepo}
}

func (s *MatchingService) FindCandidates(
	ctx context.Context,
	languages []string,
	subjects []string,
	topics []string,
	excluded []string,
) ([]models.TutorProfile, error) {
	if len(languages) == 0 || len(subjects) == 0 || len(topics) == 0 {
		return nil, ErrInvalidCriteria
	}

	candidates, err := s.tutorRepo.ListOnlineByLanguages(ctx, languages)
	if err != nil {
		return nil, err
	}

	excludedSet := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		excludedSet[id] = struct{}{}
	}

	matched := make([]models.TutorProfile, 0, len(candidates))
	for _, tutor := range candidates {
		if _, rejected := excludedSet[tutor.UserID]; rejected {
			continue
		}
		if !anyOverlap(tutor.Subjects, subjects) {
			continue
		}
		if !containsAll(tutor.Topics, topics) {
			continue
		}
		matched = append(matched, tutor)
	}
	return matched, nil
}

func anyOverlap(have, want []string) bool {
	haveSet := make(map[string]struct{}, len(have))
	for _, value := range have {
		haveSet[value] = struct{}{}
	}
	for _, value := range want {
		if _, ok := haveSet[value]; ok {
			return true
		}
	}
	return false
}

func containsAll(have, want []string) bool {
	haveSet := make(map[string]struct{}, len(have))
	for _, value := range have {
		haveSet[value] = struct{}{}
	}
	for _, value := range want {
		if _, ok := haveSet[value]; !ok {
			return false
		}
	}
	return true
}
