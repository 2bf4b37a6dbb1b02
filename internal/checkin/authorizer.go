package checkin

import (
	"context"
	"errors"
	"fmt"

	"event-checkin-backend/internal/logger"
	"event-checkin-backend/internal/metrics"
	"event-checkin-backend/internal/model"
	"event-checkin-backend/internal/parse"
	"event-checkin-backend/internal/store"
)

// Observer is told about every decided scan once its transaction has committed.
type Observer interface {
	ScanDecided(tagID, location string, d Decision)
}

// Authorizer applies the per-location rules to a scanned tag.
type Authorizer struct {
	store    store.Store
	observer Observer
}

// NewAuthorizer creates an Authorizer. observer may be nil.
func NewAuthorizer(s store.Store, observer Observer) *Authorizer {
	return &Authorizer{store: s, observer: observer}
}

// Scan decides a scan of rawTag at location.
//
//	unknown tag            -> Denied(UNKNOWN_TAG), nothing written
//	ENTRANCE, inside       -> Denied(ALREADY_INSIDE)
//	ENTRANCE, outside      -> inside; ENTERED; Allowed
//	CAFETERIA, credits > 0 -> credits-1; MEAL_REDEEMED; Allowed(remaining)
//	CAFETERIA, credits = 0 -> MEAL_DENIED; Denied(NO_CREDITS)
//	EXIT                   -> outside; EXITED; Allowed
//	anything else          -> ErrInvalidLocation
//
// Location codes are matched exactly. The unknown-tag check precedes location validation.
// EXIT does not require the attendee to be inside.
func (a *Authorizer) Scan(ctx context.Context, rawTag, location string) (Decision, error) {
	tagID, err := parse.TagID(rawTag)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: tag id is required", ErrInvalidInput)
	}

	var decision Decision
	err = a.store.InTx(ctx, func(repo store.AttendeeRepository) error {
		attendee, err := repo.FindAttendeeByTag(ctx, tagID)
		if errors.Is(err, store.ErrNotFound) {
			decision = denied(ReasonUnknownTag, "")
			return nil
		}
		if err != nil {
			return err
		}

		switch location {
		case model.LocationEntrance:
			decision, err = enter(ctx, repo, attendee)
		case model.LocationCafeteria:
			decision, err = redeemMeal(ctx, repo, attendee, "")
		case model.LocationExit:
			decision, err = exit(ctx, repo, attendee)
		default:
			return ErrInvalidLocation
		}
		return err
	})
	if err != nil {
		return Decision{}, err
	}

	a.record(tagID, location, decision)
	return decision, nil
}

// IssueMeal applies the CAFETERIA rule alone for staff. Unlike Scan, an unknown tag is
// ErrUnknownTag rather than a denial.
func (a *Authorizer) IssueMeal(ctx context.Context, rawTag string) (Decision, error) {
	tagID, err := parse.TagID(rawTag)
	if err != nil {
		return Decision{}, ErrUnknownTag
	}

	var decision Decision
	err = a.store.InTx(ctx, func(repo store.AttendeeRepository) error {
		attendee, err := repo.FindAttendeeByTag(ctx, tagID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownTag
		}
		if err != nil {
			return err
		}
		decision, err = redeemMeal(ctx, repo, attendee, "Issued by staff")
		return err
	})
	if err != nil {
		return Decision{}, err
	}

	a.record(tagID, model.LocationCafeteria, decision)
	return decision, nil
}

func enter(ctx context.Context, repo store.AttendeeRepository, attendee *model.Attendee) (Decision, error) {
	ok, err := repo.MarkEntered(ctx, attendee.ID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return denied(ReasonAlreadyInside, attendee.Name), nil
	}
	if err := repo.AppendLog(ctx, &model.AuditLog{
		AttendeeID: attendee.ID,
		Location:   model.LocationEntrance,
		Action:     model.ActionEntered,
	}); err != nil {
		return Decision{}, err
	}
	return allowed(attendee.Name, "Welcome"), nil
}

func redeemMeal(ctx context.Context, repo store.AttendeeRepository, attendee *model.Attendee, note string) (Decision, error) {
	remaining, ok, err := repo.ConsumeMealCredit(ctx, attendee.ID)
	if err != nil {
		return Decision{}, err
	}

	entry := &model.AuditLog{
		AttendeeID:  attendee.ID,
		Location:    model.LocationCafeteria,
		Action:      model.ActionMealDenied,
		Description: note,
	}
	if ok {
		entry.Action = model.ActionMealRedeemed
	}
	if err := repo.AppendLog(ctx, entry); err != nil {
		return Decision{}, err
	}

	if !ok {
		return denied(ReasonNoCredits, attendee.Name), nil
	}
	d := allowed(attendee.Name, "Meal Approved")
	d.CreditsRemaining = &remaining
	return d, nil
}

func exit(ctx context.Context, repo store.AttendeeRepository, attendee *model.Attendee) (Decision, error) {
	if err := repo.SetInside(ctx, attendee.ID, false); err != nil {
		return Decision{}, err
	}
	if err := repo.AppendLog(ctx, &model.AuditLog{
		AttendeeID: attendee.ID,
		Location:   model.LocationExit,
		Action:     model.ActionExited,
	}); err != nil {
		return Decision{}, err
	}
	return allowed(attendee.Name, "Goodbye"), nil
}

func (a *Authorizer) record(tagID, location string, d Decision) {
	label := location
	switch location {
	case model.LocationEntrance, model.LocationCafeteria, model.LocationExit:
	default:
		label = "OTHER"
	}
	metrics.IncScan(label, string(d.Outcome), string(d.Reason))
	logger.WithFields(map[string]interface{}{
		"tag_id":   tagID,
		"location": location,
		"outcome":  d.Outcome,
		"reason":   d.Reason,
	}).Debug("scan decided")
	if a.observer != nil {
		a.observer.ScanDecided(tagID, location, d)
	}
}
