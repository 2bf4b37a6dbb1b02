package checkin

import (
	"context"
	"errors"
	"fmt"

	"event-checkin-backend/internal/logger"
	"event-checkin-backend/internal/metrics"
	"event-checkin-backend/internal/model"
	"event-checkin-backend/internal/parse"
	"event-checkin-backend/internal/pii"
	"event-checkin-backend/internal/store"
)

// BindMode selects which surface bound a tag.
type BindMode string

const (
	// BindAtDesk is the entrance desk: the attendee is inside once the card is issued.
	BindAtDesk BindMode = "desk"
	// BindByStaff links a card without touching location state.
	BindByStaff BindMode = "staff"
)

// RegisterInput is the data collected at registration.
type RegisterInput struct {
	RegistrationID string
	Name           string
	Department     string
	GraduationYear int
	Phone          string
	Address        string
}

// BulkResult reports which registrations a bulk import added and which already existed.
type BulkResult struct {
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
}

// StatusView is the read-only projection returned to staff.
type StatusView struct {
	Name        string `json:"name"`
	Department  string `json:"dept"`
	MealCredits int    `json:"mealCredits"`
	IsInside    bool   `json:"isInside"`
}

// Contact is the unsealed contact detail of an attendee.
type Contact struct {
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Directory owns attendee records: registration, tag binding and credit adjustments.
type Directory struct {
	store          store.Store
	sealer         *pii.Sealer
	defaultCredits int
}

// NewDirectory creates a Directory. defaultCredits below one falls back to one.
func NewDirectory(s store.Store, sealer *pii.Sealer, defaultCredits int) *Directory {
	if defaultCredits < 1 {
		defaultCredits = 1
	}
	if sealer == nil {
		sealer = &pii.Sealer{}
	}
	return &Directory{store: s, sealer: sealer, defaultCredits: defaultCredits}
}

// Register creates an attendee without a tag.
func (d *Directory) Register(ctx context.Context, in RegisterInput) (*model.Attendee, error) {
	regID, err := parse.RegistrationID(in.RegistrationID)
	if err != nil {
		return nil, fmt.Errorf("%w: registration id: %v", ErrInvalidInput, err)
	}

	attendee := &model.Attendee{
		RegistrationID: regID,
		Name:           in.Name,
		Department:     in.Department,
		GraduationYear: in.GraduationYear,
		MealCredits:    d.defaultCredits,
	}
	if err := d.sealContact(attendee, in.Phone, in.Address); err != nil {
		return nil, err
	}

	err = d.store.InTx(ctx, func(repo store.AttendeeRepository) error {
		if _, err := repo.FindAttendeeByRegistrationID(ctx, regID); err == nil {
			return ErrDuplicateID
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if err := repo.CreateAttendee(ctx, attendee); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrDuplicateID
			}
			return err
		}
		return repo.AppendLog(ctx, &model.AuditLog{
			AttendeeID:  attendee.ID,
			Location:    model.LocationSetup,
			Action:      model.ActionRegistered,
			Description: fmt.Sprintf("Registered %s", attendee.Name),
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.IncRegistration()
	return attendee, nil
}

// RegisterMany registers each entry in its own transaction, skipping ids that already exist.
func (d *Directory) RegisterMany(ctx context.Context, inputs []RegisterInput) (BulkResult, error) {
	res := BulkResult{Added: []string{}, Skipped: []string{}}
	for _, in := range inputs {
		a, err := d.Register(ctx, in)
		switch {
		case err == nil:
			res.Added = append(res.Added, a.RegistrationID)
		case errors.Is(err, ErrDuplicateID):
			res.Skipped = append(res.Skipped, in.RegistrationID)
		default:
			return res, fmt.Errorf("register %q: %w", in.RegistrationID, err)
		}
	}
	return res, nil
}

// BindTag assigns a tag to a registration. A tag is bound at most once and a registration
// receives at most one tag; any repeat is ErrTagAlreadyBound.
func (d *Directory) BindTag(ctx context.Context, registrationID, rawTag string, mode BindMode) (*model.Attendee, error) {
	regID, err := parse.RegistrationID(registrationID)
	if err != nil {
		return nil, fmt.Errorf("%w: registration id: %v", ErrInvalidInput, err)
	}
	tagID, err := parse.TagID(rawTag)
	if err != nil {
		return nil, fmt.Errorf("%w: tag id: %v", ErrInvalidInput, err)
	}

	location, action, markInside := model.LocationStaff, model.ActionLinked, false
	if mode == BindAtDesk {
		location, action, markInside = model.LocationDesk, model.ActionIssued, true
	}

	var attendee *model.Attendee
	err = d.store.InTx(ctx, func(repo store.AttendeeRepository) error {
		a, err := repo.FindAttendeeByRegistrationID(ctx, regID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		inUse, err := repo.TagInUse(ctx, tagID)
		if err != nil {
			return err
		}
		if inUse || a.HasTag() {
			return ErrTagAlreadyBound
		}

		ok, err := repo.BindTag(ctx, a.ID, tagID, markInside)
		if errors.Is(err, store.ErrConflict) {
			return ErrTagAlreadyBound
		}
		if err != nil {
			return err
		}
		if !ok {
			return ErrTagAlreadyBound
		}

		a.TagID = &tagID
		if markInside {
			a.IsInside = true
		}
		attendee = a
		return repo.AppendLog(ctx, &model.AuditLog{
			AttendeeID:  a.ID,
			Location:    location,
			Action:      action,
			Description: fmt.Sprintf("Assigned to %s", a.Name),
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.IncTagBinding(string(mode))
	logger.WithFields(map[string]interface{}{
		"registration_id": regID,
		"tag_id":          tagID,
		"mode":            mode,
	}).Info("tag bound")
	return attendee, nil
}

// FindByTag looks an attendee up by tag.
func (d *Directory) FindByTag(ctx context.Context, rawTag string) (*model.Attendee, error) {
	tagID, err := parse.TagID(rawTag)
	if err != nil {
		return nil, ErrNotFound
	}
	a, err := d.store.FindAttendeeByTag(ctx, tagID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return a, err
}

// FindByRegistrationID looks an attendee up by registration id.
func (d *Directory) FindByRegistrationID(ctx context.Context, registrationID string) (*model.Attendee, error) {
	regID, err := parse.RegistrationID(registrationID)
	if err != nil {
		return nil, ErrNotFound
	}
	a, err := d.store.FindAttendeeByRegistrationID(ctx, regID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return a, err
}

// AdjustMealCredits adds delta (possibly negative) to the attendee's credits.
// The change is rejected with ErrNegativeCredits when the result would drop below zero.
func (d *Directory) AdjustMealCredits(ctx context.Context, registrationID string, delta int) (*model.Attendee, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta must be non-zero", ErrInvalidInput)
	}
	regID, err := parse.RegistrationID(registrationID)
	if err != nil {
		return nil, fmt.Errorf("%w: registration id: %v", ErrInvalidInput, err)
	}

	var attendee *model.Attendee
	err = d.store.InTx(ctx, func(repo store.AttendeeRepository) error {
		a, err := repo.FindAttendeeByRegistrationID(ctx, regID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		ok, err := repo.AdjustMealCredits(ctx, a.ID, delta)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNegativeCredits
		}

		if attendee, err = repo.FindAttendeeByRegistrationID(ctx, regID); err != nil {
			return err
		}
		return repo.AppendLog(ctx, &model.AuditLog{
			AttendeeID:  a.ID,
			Location:    model.LocationAdmin,
			Action:      model.ActionCreditsAdjusted,
			Description: fmt.Sprintf("Adjusted meal credits by %+d, now %d", delta, attendee.MealCredits),
		})
	})
	if err != nil {
		return nil, err
	}
	return attendee, nil
}

// Status is the read-only projection staff see for a tag.
func (d *Directory) Status(ctx context.Context, rawTag string) (StatusView, error) {
	a, err := d.FindByTag(ctx, rawTag)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{
		Name:        a.Name,
		Department:  a.Department,
		MealCredits: a.MealCredits,
		IsInside:    a.IsInside,
	}, nil
}

// History returns the attendee and their audit trail, oldest first.
func (d *Directory) History(ctx context.Context, registrationID string) (*model.Attendee, []model.AuditLog, error) {
	a, err := d.FindByRegistrationID(ctx, registrationID)
	if err != nil {
		return nil, nil, err
	}
	logs, err := d.store.ListLogs(ctx, a.ID)
	if err != nil {
		return nil, nil, err
	}
	return a, logs, nil
}

// Contact unseals the attendee's phone and address.
func (d *Directory) Contact(a *model.Attendee) (Contact, error) {
	if !d.sealer.Enabled() {
		return Contact{}, nil
	}
	phone, err := d.sealer.Open(a.PhoneSealed)
	if err != nil {
		return Contact{}, fmt.Errorf("unseal phone: %w", err)
	}
	address, err := d.sealer.Open(a.AddressSealed)
	if err != nil {
		return Contact{}, fmt.Errorf("unseal address: %w", err)
	}
	return Contact{Phone: phone, Address: address}, nil
}

func (d *Directory) sealContact(a *model.Attendee, phone, address string) error {
	if phone == "" && address == "" {
		return nil
	}
	if !d.sealer.Enabled() {
		logger.WithFields(map[string]interface{}{"registration_id": a.RegistrationID}).
			Warn("pii key not configured; contact details dropped")
		return nil
	}
	var err error
	if a.PhoneSealed, err = d.sealer.Seal(phone); err != nil {
		return fmt.Errorf("seal phone: %w", err)
	}
	if a.AddressSealed, err = d.sealer.Seal(address); err != nil {
		return fmt.Errorf("seal address: %w", err)
	}
	return nil
}
