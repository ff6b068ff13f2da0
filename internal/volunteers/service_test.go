package volunteers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type recordingNotifier struct {
	events []outbox.DomainEvent
}

func (n *recordingNotifier) Notify(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) bool {
	n.events = append(n.events, event)
	return true
}

func newTestService(t *testing.T) (Service, Repository, *recordingNotifier, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:volunteers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Volunteer{}, &models.VolunteerActiveOrder{}))

	repo := NewRepository(db)
	notifier := &recordingNotifier{}
	svc, err := NewService(repo, gormTxRunner{db: db}, notifier, nil)
	require.NoError(t, err)
	return svc, repo, notifier, db
}

func validInput() RegisterInput {
	return RegisterInput{
		VehicleType:    enums.VehicleTypeMotorcycle,
		VehicleNumber:  " ka01ab1234 ",
		DrivingLicense: "DL-0420110149646",
		Age:            24,
		City:           "Bengaluru",
	}
}

func registerApproved(t *testing.T, svc Service, userID uuid.UUID) *Profile {
	t.Helper()
	profile, err := svc.Register(context.Background(), userID, validInput())
	require.NoError(t, err)
	profile, err = svc.SetApprovalStatus(context.Background(), profile.ID, enums.ApprovalStatusApproved, "")
	require.NoError(t, err)
	return profile
}

func TestRegisterDefaults(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	userID := uuid.New()

	profile, err := svc.Register(context.Background(), userID, validInput())
	require.NoError(t, err)
	require.Equal(t, enums.ApprovalStatusPending, profile.ApprovalStatus)
	require.Equal(t, float64(10), profile.RadiusKm)
	require.Equal(t, "KA01AB1234", profile.VehicleNumber)
	require.True(t, profile.IsAvailable)

	_, err = svc.Register(context.Background(), userID, validInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	young := validInput()
	young.Age = 17
	_, err := svc.Register(context.Background(), uuid.New(), young)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	boat := validInput()
	boat.VehicleType = enums.VehicleType("boat")
	_, err = svc.Register(context.Background(), uuid.New(), boat)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	far := validInput()
	radius := 80.0
	far.RadiusKm = &radius
	_, err = svc.Register(context.Background(), uuid.New(), far)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	bike := validInput()
	bike.VehicleType = enums.VehicleTypeBicycle
	bike.VehicleNumber = ""
	bike.DrivingLicense = ""
	_, err = svc.Register(context.Background(), uuid.New(), bike)
	require.NoError(t, err)
}

func TestSelfServiceRequiresApproval(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	userID := uuid.New()
	_, err := svc.Register(context.Background(), userID, validInput())
	require.NoError(t, err)

	_, err = svc.UpdateLocation(context.Background(), userID, geo.Coordinate{Latitude: 12.97, Longitude: 77.59})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = svc.SetAvailability(context.Background(), userID, false)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.Profile(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateLocation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	userID := uuid.New()
	registerApproved(t, svc, userID)

	profile, err := svc.UpdateLocation(context.Background(), userID, geo.Coordinate{Latitude: 12.97, Longitude: 77.59})
	require.NoError(t, err)
	require.NotNil(t, profile.Location)
	require.Equal(t, 12.97, profile.Location.Latitude)

	_, err = svc.UpdateLocation(context.Background(), userID, geo.Coordinate{Latitude: 95, Longitude: 0})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGoingOfflineBlockedByActiveOrders(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	userID := uuid.New()
	profile := registerApproved(t, svc, userID)

	orderID := uuid.New()
	require.NoError(t, repo.AddActiveOrder(context.Background(), &models.VolunteerActiveOrder{
		OrderID:     orderID,
		VolunteerID: profile.ID,
		AssignedAt:  time.Now().UTC(),
	}))

	current, err := svc.Profile(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(1), current.ActiveOrders)
	require.False(t, current.IsAvailable)

	_, err = svc.SetAvailability(context.Background(), userID, false)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, int64(1), details["active_orders"])

	require.NoError(t, repo.RemoveActiveOrder(context.Background(), profile.ID, orderID))
	offline, err := svc.SetAvailability(context.Background(), userID, false)
	require.NoError(t, err)
	require.False(t, offline.IsOnline)
	require.False(t, offline.IsAvailable)

	online, err := svc.SetAvailability(context.Background(), userID, true)
	require.NoError(t, err)
	require.True(t, online.IsAvailable)
}

func TestSetApprovalStatus(t *testing.T) {
	svc, _, notifier, _ := newTestService(t)
	profile, err := svc.Register(context.Background(), uuid.New(), validInput())
	require.NoError(t, err)

	_, err = svc.SetApprovalStatus(context.Background(), profile.ID, enums.ApprovalStatusRejected, " ")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	rejected, err := svc.SetApprovalStatus(context.Background(), profile.ID, enums.ApprovalStatusRejected, "license expired")
	require.NoError(t, err)
	require.Equal(t, enums.ApprovalStatusRejected, rejected.ApprovalStatus)
	require.Equal(t, "license expired", *rejected.RejectionReason)

	approved, err := svc.SetApprovalStatus(context.Background(), profile.ID, enums.ApprovalStatusApproved, "")
	require.NoError(t, err)
	require.Nil(t, approved.RejectionReason)

	require.Len(t, notifier.events, 2)
	require.Equal(t, enums.EventVolunteerReviewed, notifier.events[1].EventType)

	_, err = svc.SetApprovalStatus(context.Background(), uuid.New(), enums.ApprovalStatusApproved, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestEligible(t *testing.T) {
	require.False(t, Eligible(nil))
	require.False(t, Eligible(&models.Volunteer{ApprovalStatus: enums.ApprovalStatusPending, IsOnline: true}))
	require.False(t, Eligible(&models.Volunteer{ApprovalStatus: enums.ApprovalStatusApproved}))
	require.True(t, Eligible(&models.Volunteer{ApprovalStatus: enums.ApprovalStatusApproved, IsOnline: true}))
}
