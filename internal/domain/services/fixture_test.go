package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sams-http-service/internal/domain/events"
	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/infrastructure/cache"
	"sams-http-service/internal/infrastructure/config"
	"sams-http-service/internal/infrastructure/database/dbtest"
)

var ctxBG = context.Background()

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	clock     *fakeClock
	bus       *events.Bus
	rec       *recorder
	audit     *AuditService
	fields    *FieldSchemaService
	occupancy *OccupancyService
	alerts    *AlertService
	emergency *EmergencyService
	entries   *EntryService
	jwt       *JWTService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	f := &fixture{
		db:    dbtest.New(t),
		clock: &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
		bus:   events.NewBus(log),
		rec:   &recorder{},
	}
	f.bus.SubscribeAll(f.rec.handle)

	f.audit = NewAuditService(f.db, log)
	f.audit.now = f.clock.Now
	t.Cleanup(f.audit.Wait)

	f.fields = NewFieldSchemaService(f.db)
	f.occupancy = NewOccupancyService(f.db)
	f.occupancy.now = f.clock.Now

	counter := cache.NewMemory(cache.WithClock(f.clock.Now))
	f.alerts = NewAlertService(f.db, f.occupancy, counter, f.bus, log)
	f.alerts.now = f.clock.Now
	f.alerts.SubscribeTo(f.bus)

	f.emergency = NewEmergencyService(f.db, f.audit, f.bus, log)
	f.emergency.now = f.clock.Now

	f.entries = NewEntryService(f.db, f.fields, f.emergency, f.alerts, f.audit, f.bus, log)
	f.entries.now = f.clock.Now

	f.jwt = NewJWTService(&config.Config{JWTSecretKey: "test-secret", JWTTTL: time.Hour}, f.db, f.alerts, log)
	return f
}

func (f *fixture) site(t *testing.T, name string, vehicles, visitors, trucks int) *models.JobSite {
	t.Helper()
	site := &models.JobSite{
		Name:            name,
		VehicleCapacity: vehicles,
		VisitorCapacity: visitors,
		TruckCapacity:   trucks,
		IsActive:        true,
	}
	require.NoError(t, f.db.Create(site).Error)
	return site
}

func (f *fixture) vehicle(t *testing.T, who models.Identity, siteID uint, plate string) *models.Entry {
	t.Helper()
	e, err := f.entries.Create(ctxBG, who, CreateEntryRequest{
		SiteID: siteID,
		Type:   models.EntryTypeVehicle,
		Data:   vehicleData(plate),
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) activeCount(t *testing.T, siteID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Entry{}).
		Where("site_id = ? AND status = ?", siteID, models.EntryStatusActive).
		Count(&n).Error)
	return n
}

func vehicleData(plate string) json.RawMessage {
	raw, _ := json.Marshal(models.VehicleData{LicensePlate: plate})
	return raw
}

func admin() models.Identity {
	return models.Identity{UserID: 1, Username: "admin", Role: models.RoleAdmin}
}

func operatorOf(siteIDs ...uint) models.Identity {
	return models.Identity{UserID: 2, Username: "gate", Role: models.RoleOperator, SiteIDs: siteIDs}
}

func clientOf(siteIDs ...uint) models.Identity {
	return models.Identity{UserID: 3, Username: "client", Role: models.RoleClient, SiteIDs: siteIDs}
}
