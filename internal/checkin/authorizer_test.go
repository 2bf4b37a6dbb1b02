package checkin

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"event-checkin-backend/internal/model"
)

type scanFixture struct {
	dir  *Directory
	auth *Authorizer
	db   *gorm.DB
	obs  *recordingObserver
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()
	s, gormDB := newTestStore(t)
	obs := &recordingObserver{}
	return &scanFixture{
		dir:  NewDirectory(s, nil, 1),
		auth: NewAuthorizer(s, obs),
		db:   gormDB,
		obs:  obs,
	}
}

func (f *scanFixture) attendee(t *testing.T, regID string) *model.Attendee {
	t.Helper()
	a, err := f.dir.FindByRegistrationID(context.Background(), regID)
	require.NoError(t, err)
	return a
}

func (f *scanFixture) registerAndBind(t *testing.T, regID, name, tag string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.dir.Register(ctx, RegisterInput{RegistrationID: regID, Name: name})
	require.NoError(t, err)
	_, err = f.dir.BindTag(ctx, regID, tag, BindAtDesk)
	require.NoError(t, err)
}

func TestAuthorizer_UnknownTag(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	// A registered but unbound attendee must not be reachable by any tag.
	_, err := f.dir.Register(ctx, RegisterInput{RegistrationID: "R1", Name: "Alice"})
	require.NoError(t, err)
	logsBefore := countLogs(t, f.db, "")

	for _, loc := range []string{"ENTRANCE", "CAFETERIA", "EXIT", "ROOFTOP"} {
		d, err := f.auth.Scan(ctx, "T404", loc)
		require.NoError(t, err, loc)
		assert.Equal(t, OutcomeDenied, d.Outcome)
		assert.Equal(t, ReasonUnknownTag, d.Reason)
		assert.Equal(t, BeepError, d.Beep())
	}

	// Unknown tag wins over a missing or unrecognized location.
	for _, loc := range []string{"", "exit"} {
		d, err := f.auth.Scan(ctx, "T404", loc)
		require.NoError(t, err)
		assert.Equal(t, ReasonUnknownTag, d.Reason)
	}

	assert.Equal(t, logsBefore, countLogs(t, f.db, ""))
	a := f.attendee(t, "R1")
	assert.False(t, a.IsInside)
	assert.Equal(t, 1, a.MealCredits)
}

func TestAuthorizer_EmptyTagIsInvalidInput(t *testing.T) {
	f := newScanFixture(t)
	_, err := f.auth.Scan(context.Background(), " ", "ENTRANCE")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuthorizer_EntranceAndExit(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()
	f.registerAndBind(t, "R1", "Alice", "T1")

	d, err := f.auth.Scan(ctx, "T1", "ENTRANCE")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDenied, d.Outcome)
	assert.Equal(t, ReasonAlreadyInside, d.Reason)
	assert.Equal(t, "Alice", d.Name)
	assert.Equal(t, int64(0), countLogs(t, f.db, model.ActionEntered))

	d, err = f.auth.Scan(ctx, "T1", "EXIT")
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Equal(t, "Goodbye", d.Message)
	assert.False(t, f.attendee(t, "R1").IsInside)
	assert.Equal(t, int64(1), countLogs(t, f.db, model.ActionExited))

	d, err = f.auth.Scan(ctx, " T1 ", "ENTRANCE")
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Equal(t, BeepSuccess, d.Beep())
	assert.True(t, f.attendee(t, "R1").IsInside)
	assert.Equal(t, int64(1), countLogs(t, f.db, model.ActionEntered))
}

func TestAuthorizer_ExitIsUnconditional(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()
	_, err := f.dir.Register(ctx, RegisterInput{RegistrationID: "R1", Name: "Alice"})
	require.NoError(t, err)
	_, err = f.dir.BindTag(ctx, "R1", "T1", BindByStaff)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		d, err := f.auth.Scan(ctx, "T1", "EXIT")
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	}
	assert.Equal(t, int64(2), countLogs(t, f.db, model.ActionExited))
}

func TestAuthorizer_Cafeteria(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()
	f.registerAndBind(t, "R1", "Alice", "T1")

	d, err := f.auth.Scan(ctx, "T1", "CAFETERIA")
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	require.NotNil(t, d.CreditsRemaining)
	assert.Equal(t, 0, *d.CreditsRemaining)

	for i := 0; i < 3; i++ {
		d, err = f.auth.Scan(ctx, "T1", "CAFETERIA")
		require.NoError(t, err)
		assert.Equal(t, OutcomeDenied, d.Outcome)
		assert.Equal(t, ReasonNoCredits, d.Reason)
		assert.Nil(t, d.CreditsRemaining)
	}

	assert.Equal(t, 0, f.attendee(t, "R1").MealCredits)
	assert.Equal(t, int64(1), countLogs(t, f.db, model.ActionMealRedeemed))
	assert.Equal(t, int64(3), countLogs(t, f.db, model.ActionMealDenied))
}

func TestAuthorizer_InvalidLocation(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()
	f.registerAndBind(t, "R1", "Alice", "T1")
	logsBefore := countLogs(t, f.db, "")

	_, err := f.auth.Scan(ctx, "T1", "ROOFTOP")
	assert.ErrorIs(t, err, ErrInvalidLocation)
	assert.Equal(t, logsBefore, countLogs(t, f.db, ""))
	assert.Len(t, f.obs.decisions, 0)
}

func TestAuthorizer_LocationCodesAreExact(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()
	f.registerAndBind(t, "R1", "Alice", "T1")
	logsBefore := countLogs(t, f.db, "")

	for _, loc := range []string{"exit", " CAFETERIA ", "Entrance", ""} {
		_, err := f.auth.Scan(ctx, "T1", loc)
		assert.ErrorIs(t, err, ErrInvalidLocation, "%q", loc)
	}
	assert.Equal(t, logsBefore, countLogs(t, f.db, ""))
	assert.True(t, f.attendee(t, "R1").IsInside)
	assert.Equal(t, 1, f.attendee(t, "R1").MealCredits)
}

func TestAuthorizer_TagsAreOpaque(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()
	f.registerAndBind(t, "R1", "Alice", "ab-c")

	d, err := f.auth.Scan(ctx, "ABC", "EXIT")
	require.NoError(t, err)
	assert.Equal(t, ReasonUnknownTag, d.Reason)

	d, err = f.auth.Scan(ctx, "ab-c", "EXIT")
	require.NoError(t, err)
	assert.True(t, d.Allowed())
}

func TestAuthorizer_OneLogPerMutatingScan(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()
	f.registerAndBind(t, "R1", "Alice", "T1")

	steps := []struct {
		location string
		action   string
	}{
		{"EXIT", model.ActionExited},
		{"ENTRANCE", model.ActionEntered},
		{"CAFETERIA", model.ActionMealRedeemed},
		{"CAFETERIA", model.ActionMealDenied},
		{"EXIT", model.ActionExited},
	}
	for _, step := range steps {
		before := countLogs(t, f.db, "")
		_, err := f.auth.Scan(ctx, "T1", step.location)
		require.NoError(t, err)
		assert.Equal(t, before+1, countLogs(t, f.db, ""), step.location)

		var last model.AuditLog
		require.NoError(t, f.db.Order("id DESC").First(&last).Error)
		assert.Equal(t, step.action, last.Action)
		assert.Equal(t, step.location, last.Location)
	}
}

func TestAuthorizer_Scenario(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	_, err := f.dir.Register(ctx, RegisterInput{RegistrationID: "R1", Name: "Alice"})
	require.NoError(t, err)
	a, err := f.dir.BindTag(ctx, "R1", "T1", BindAtDesk)
	require.NoError(t, err)
	assert.True(t, a.IsInside)

	d, err := f.auth.Scan(ctx, "T1", "EXIT")
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.False(t, f.attendee(t, "R1").IsInside)

	d, err = f.auth.Scan(ctx, "T1", "CAFETERIA")
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Equal(t, 0, *d.CreditsRemaining)

	d, err = f.auth.Scan(ctx, "T1", "CAFETERIA")
	require.NoError(t, err)
	assert.Equal(t, ReasonNoCredits, d.Reason)

	require.Len(t, f.obs.decisions, 3)
}

func TestAuthorizer_IssueMeal(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()
	f.registerAndBind(t, "R1", "Alice", "T1")

	_, err := f.auth.IssueMeal(ctx, "T404")
	assert.ErrorIs(t, err, ErrUnknownTag)

	d, err := f.auth.IssueMeal(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Equal(t, 0, *d.CreditsRemaining)

	d, err = f.auth.IssueMeal(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, ReasonNoCredits, d.Reason)

	// Staff issues are audited like scans.
	assert.Equal(t, int64(1), countLogs(t, f.db, model.ActionMealRedeemed))
	assert.Equal(t, int64(1), countLogs(t, f.db, model.ActionMealDenied))
}

func TestAuthorizer_ConcurrentMealScans(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()
	f.registerAndBind(t, "R1", "Alice", "T1")
	_, err := f.dir.AdjustMealCredits(ctx, "R1", 1) // two credits
	require.NoError(t, err)

	const scans = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
		denials int
	)
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := f.auth.Scan(ctx, "T1", "CAFETERIA")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if d.Allowed() {
				allowed++
			} else {
				denials++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, allowed)
	assert.Equal(t, scans-2, denials)
	assert.Equal(t, 0, f.attendee(t, "R1").MealCredits)
	assert.Equal(t, int64(2), countLogs(t, f.db, model.ActionMealRedeemed))
}
