package service

import (
	"context"
	"errors"
	"time"

	"election-portal/models"
	"election-portal/storage"
)

// NominationStore is the storage view the nomination service needs.
type NominationStore interface {
	CreateNomination(ctx context.Context, n *models.Nomination) error
	NominationByID(ctx context.Context, id uint) (*models.Nomination, error)
	NominationForUserPosition(ctx context.Context, userID uint, position string) (*models.Nomination, error)
	SaveNomination(ctx context.Context, n *models.Nomination) error
	DeleteNomination(ctx context.Context, id uint) error
	Nominations(ctx context.Context, approvedOnly bool) ([]models.Nomination, error)
}

// NominationService manages candidate nominations and their admin approval
// lifecycle.
type NominationService struct {
	store NominationStore
	audit *Auditor
	now   func() time.Time
}

func NewNominationService(store NominationStore, audit *Auditor) *NominationService {
	return &NominationService{store: store, audit: audit, now: time.Now}
}

// SubmitNominationRequest is a candidate's nomination form.
type SubmitNominationRequest struct {
	CandidateName string `json:"candidate_name"`
	Position      string `json:"position"`
	Manifesto     string `json:"manifesto"`
	Photo         string `json:"photo,omitempty"`
}

// Submit files a nomination for review. One nomination per user per position.
func (s *NominationService) Submit(ctx context.Context, userID uint, req SubmitNominationRequest, ip, ua string) (*models.Nomination, error) {
	if req.CandidateName == "" {
		return nil, validationErrorf("please enter the candidate name")
	}
	if req.Position == "" {
		return nil, validationErrorf("please select a position")
	}
	if req.Manifesto == "" {
		return nil, validationErrorf("please enter a manifesto")
	}

	if _, err := s.store.NominationForUserPosition(ctx, userID, req.Position); err == nil {
		return nil, validationErrorf("you have already submitted a nomination for this position")
	} else if !errors.Is(err, storage.ErrNoRow) {
		return nil, err
	}

	nom := &models.Nomination{
		UserID:        &userID,
		CandidateName: req.CandidateName,
		Position:      req.Position,
		Manifesto:     req.Manifesto,
		Photo:         req.Photo,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateNomination(ctx, nom); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "nomination_submitted", map[string]any{
		"nomination_id": nom.ID,
		"position":      nom.Position,
	}, &userID, nil, ip, ua)
	return nom, nil
}

// Approve marks a nomination approved (or withdraws approval) on behalf of an
// administrator.
func (s *NominationService) Approve(ctx context.Context, nominationID, adminID uint, approve bool, ip, ua string) (*models.Nomination, error) {
	nom, err := s.store.NominationByID(ctx, nominationID)
	if errors.Is(err, storage.ErrNoRow) {
		return nil, validationErrorf("nomination not found")
	}
	if err != nil {
		return nil, err
	}

	nom.IsApproved = approve
	if approve {
		now := s.now()
		nom.ApprovedBy = &adminID
		nom.ApprovedAt = &now
	} else {
		nom.ApprovedBy = nil
		nom.ApprovedAt = nil
	}
	if err := s.store.SaveNomination(ctx, nom); err != nil {
		return nil, err
	}

	action := "nomination_approved"
	if !approve {
		action = "nomination_unapproved"
	}
	s.audit.Record(ctx, action, map[string]any{
		"nomination_id": nom.ID,
		"position":      nom.Position,
	}, nil, &adminID, ip, ua)
	return nom, nil
}

// Delete removes a nomination on behalf of an administrator.
func (s *NominationService) Delete(ctx context.Context, nominationID, adminID uint, ip, ua string) error {
	nom, err := s.store.NominationByID(ctx, nominationID)
	if errors.Is(err, storage.ErrNoRow) {
		return validationErrorf("nomination not found")
	}
	if err != nil {
		return err
	}
	if err := s.store.DeleteNomination(ctx, nom.ID); err != nil {
		return err
	}
	s.audit.Record(ctx, "nomination_deleted", map[string]any{
		"nomination_id": nom.ID,
		"position":      nom.Position,
	}, nil, &adminID, ip, ua)
	return nil
}

// CandidatesByPosition returns approved candidates grouped by position for
// the ballot page.
func (s *NominationService) CandidatesByPosition(ctx context.Context) (map[string][]models.Nomination, error) {
	noms, err := s.store.Nominations(ctx, true)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]models.Nomination)
	for _, n := range noms {
		grouped[n.Position] = append(grouped[n.Position], n)
	}
	return grouped, nil
}

// List returns all nominations for the admin review screen.
func (s *NominationService) List(ctx context.Context) ([]models.Nomination, error) {
	return s.store.Nominations(ctx, false)
}
