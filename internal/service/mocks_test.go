package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"ridecore/internal/domain"
	"ridecore/internal/pricing"
	"ridecore/internal/redis"
	"ridecore/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK DRIVER REPOSITORY
// ──────────────────────────────────────────────

// mockDriverRepository mirrors the conditional updates of the SQL repository.
type mockDriverRepository struct {
	mu      sync.RWMutex
	drivers map[string]*domain.Driver

	ClaimCallCount   int32
	ReleaseCallCount int32

	// Error injection
	ClaimError   map[string]error
	ReleaseError error
}

func newMockDriverRepository() *mockDriverRepository {
	return &mockDriverRepository{
		drivers:    make(map[string]*domain.Driver),
		ClaimError: make(map[string]error),
	}
}

func (m *mockDriverRepository) AddDriver(d *domain.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
}

// Driver returns a copy of the stored driver for assertions.
func (m *mockDriverRepository) Driver(id string) domain.Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.drivers[id]
}

func (m *mockDriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *d
	return &copy, nil
}

func (m *mockDriverRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*domain.Driver, len(ids))
	for _, id := range ids {
		if d, ok := m.drivers[id]; ok {
			copy := *d
			out[id] = &copy
		}
	}
	return out, nil
}

func (m *mockDriverRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.CurrentLocation = &domain.Location{Lat: lat, Lng: lng}
	return nil
}

func (m *mockDriverRepository) SetPresence(ctx context.Context, id string, status domain.OnlineStatus, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	if d.CurrentRideID != "" {
		return fmt.Errorf("%w: %s", repository.ErrDriverUnavailable, id)
	}
	d.OnlineStatus = status
	d.IsAvailable = available
	return nil
}

func (m *mockDriverRepository) Claim(ctx context.Context, driverID, rideID string) error {
	atomic.AddInt32(&m.ClaimCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ClaimError[driverID]; err != nil {
		return err
	}
	d, ok := m.drivers[driverID]
	if !ok {
		return repository.ErrNotFound
	}
	if !d.Dispatchable() {
		return fmt.Errorf("%w: %s", repository.ErrDriverUnavailable, driverID)
	}
	d.IsAvailable = false
	d.OnlineStatus = domain.OnlineStatusBusy
	d.CurrentRideID = rideID
	return nil
}

func (m *mockDriverRepository) Release(ctx context.Context, driverID, rideID string, outcome domain.ReleaseOutcome, fare domain.Money) (bool, error) {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	if m.ReleaseError != nil {
		return false, m.ReleaseError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok || d.CurrentRideID != rideID {
		return false, nil
	}
	d.IsAvailable = true
	if d.OnlineStatus == domain.OnlineStatusBusy {
		d.OnlineStatus = domain.OnlineStatusOnline
	}
	d.CurrentRideID = ""
	if outcome == domain.ReleaseCompleted {
		d.CompletedTrips++
		d.TotalEarnings += fare
	}
	return true, nil
}

// ──────────────────────────────────────────────
// MOCK VEHICLE / USER REPOSITORIES
// ──────────────────────────────────────────────

type mockVehicleRepository struct {
	mu           sync.RWMutex
	vehicles     map[string]*domain.Vehicle
	GetCallCount int32
}

func newMockVehicleRepository() *mockVehicleRepository {
	return &mockVehicleRepository{vehicles: make(map[string]*domain.Vehicle)}
}

func (m *mockVehicleRepository) Add(v *domain.Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.ID] = v
}

func (m *mockVehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *v
	return &copy, nil
}

type mockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*domain.User)}
}

func (m *mockUserRepository) Add(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *u
	return &copy, nil
}

// ──────────────────────────────────────────────
// MOCK PROMOTION REPOSITORY
// ──────────────────────────────────────────────

type mockPromotionRepository struct {
	mu     sync.Mutex
	promos map[string]*domain.Promotion
	usages map[string]string // code|user -> ride

	UnredeemCallCount int32

	// RedeemError is returned instead of recording the usage.
	RedeemError error
}

func newMockPromotionRepository() *mockPromotionRepository {
	return &mockPromotionRepository{
		promos: make(map[string]*domain.Promotion),
		usages: make(map[string]string),
	}
}

func (m *mockPromotionRepository) Add(p *domain.Promotion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promos[p.Code] = p
}

func (m *mockPromotionRepository) UsedCount(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promos[code].UsedCount
}

func (m *mockPromotionRepository) GetByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.promos[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (m *mockPromotionRepository) HasUsed(ctx context.Context, code, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.usages[code+"|"+userID]
	return ok, nil
}

func (m *mockPromotionRepository) Redeem(ctx context.Context, code, userID, rideID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RedeemError != nil {
		return m.RedeemError
	}
	if _, ok := m.usages[code+"|"+userID]; ok {
		return repository.ErrPromoAlreadyUsed
	}
	p, ok := m.promos[code]
	if !ok || p.UsedCount >= p.UsageLimit {
		return repository.ErrPromoExhausted
	}
	p.UsedCount++
	m.usages[code+"|"+userID] = rideID
	return nil
}

func (m *mockPromotionRepository) Unredeem(ctx context.Context, code, userID string) error {
	atomic.AddInt32(&m.UnredeemCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usages[code+"|"+userID]; !ok {
		return nil
	}
	delete(m.usages, code+"|"+userID)
	m.promos[code].UsedCount--
	return nil
}

// ──────────────────────────────────────────────
// MOCK NOTIFIER
// ──────────────────────────────────────────────

type notification struct {
	RideID string
	Status domain.RideStatus
}

type mockNotifier struct {
	mu        sync.Mutex
	events    []notification
	locations []domain.Location
}

func (m *mockNotifier) NotifyRideStatusChanged(ctx context.Context, rideID string, status domain.RideStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, notification{rideID, status})
	return nil
}

func (m *mockNotifier) NotifyDriverLocation(ctx context.Context, rideID string, lat, lng float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations = append(m.locations, domain.Location{Lat: lat, Lng: lng, Address: rideID})
	return nil
}

func (m *mockNotifier) Statuses(rideID string) []domain.RideStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RideStatus
	for _, e := range m.events {
		if e.RideID == rideID {
			out = append(out, e.Status)
		}
	}
	return out
}

// ──────────────────────────────────────────────
// TEST ENVIRONMENT
// ──────────────────────────────────────────────

const (
	benThanhLat = 10.7725
	benThanhLng = 106.6980
)

// testEnv wires the services to Redis-backed stores on miniredis and mock
// Postgres repositories.
type testEnv struct {
	mr        *miniredis.Miniredis
	client    *goredis.Client
	locations *redis.LocationStore
	locks     *redis.LockStore
	cache     *redis.CacheStore
	rides     *redis.RideStore
	drivers   *mockDriverRepository
	vehicles  *mockVehicleRepository
	users     *mockUserRepository
	promos    *mockPromotionRepository
	notifier  *mockNotifier
	logger    *logrus.Logger
	logs      *test.Hook

	matching *MatchingService
	rideSvc  *RideService
	driver   *DriverService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	env := &testEnv{
		mr:        mr,
		client:    client,
		locations: redis.NewLocationStore(client),
		locks:     redis.NewLockStore(client),
		cache:     redis.NewCacheStore(client),
		drivers:   newMockDriverRepository(),
		vehicles:  newMockVehicleRepository(),
		users:     newMockUserRepository(),
		promos:    newMockPromotionRepository(),
		notifier:  &mockNotifier{},
		logger:    logger,
		logs:      hook,
	}
	env.rides = redis.NewRideStore(client, NewDriverReleaser(env.drivers, env.locations, logger))
	env.matching = NewMatchingService(env.locations, env.locks, env.cache, env.drivers, env.vehicles,
		env.users, env.rides, logger, DefaultMatchingConfig())
	env.rideSvc = NewRideService(env.rides, env.promos, pricing.NewEngine(), pricing.FlatSurge{},
		env.matching, env.notifier, logger)
	env.driver = NewDriverService(env.locations, env.drivers, env.notifier, logger)
	return env
}

type driverOpt func(*domain.Driver, *domain.Vehicle, *domain.User)

func withVehicleType(vt domain.VehicleType) driverOpt {
	return func(_ *domain.Driver, v *domain.Vehicle, _ *domain.User) { v.Type = vt }
}

func withVehicleStatus(s domain.VehicleStatus) driverOpt {
	return func(_ *domain.Driver, v *domain.Vehicle, _ *domain.User) { v.Status = s }
}

func withUserStatus(s domain.UserStatus) driverOpt {
	return func(_ *domain.Driver, _ *domain.Vehicle, u *domain.User) { u.Status = s }
}

func withOnlineStatus(s domain.OnlineStatus) driverOpt {
	return func(d *domain.Driver, _ *domain.Vehicle, _ *domain.User) {
		d.OnlineStatus = s
		d.IsAvailable = s == domain.OnlineStatusOnline
	}
}

// addDriver registers a driver, its vehicle and account, and indexes the
// driver at the given offset from Ben Thanh market.
func (e *testEnv) addDriver(t *testing.T, id string, dLat, dLng float64, opts ...driverOpt) {
	t.Helper()
	lat, lng := benThanhLat+dLat, benThanhLng+dLng
	d := &domain.Driver{
		ID:              id,
		UserID:          "user-" + id,
		VehicleID:       "vehicle-" + id,
		CurrentLocation: &domain.Location{Lat: lat, Lng: lng},
		IsAvailable:     true,
		OnlineStatus:    domain.OnlineStatusOnline,
		Rating:          4.8,
	}
	v := &domain.Vehicle{ID: d.VehicleID, Type: domain.VehicleTypeCar, PlateNumber: "51A-" + id, Status: domain.VehicleStatusActive}
	u := &domain.User{ID: d.UserID, FullName: "Driver " + id, Phone: "090" + id, Role: domain.RoleDriver, Status: domain.UserStatusActive}
	for _, opt := range opts {
		opt(d, v, u)
	}
	e.drivers.AddDriver(d)
	e.vehicles.Add(v)
	e.users.Add(u)

	err := e.locations.Upsert(context.Background(), redis.LocationEntry{
		DriverID:  id,
		Lat:       lat,
		Lng:       lng,
		Available: true,
		Rating:    d.Rating,
	})
	if err != nil {
		t.Fatalf("failed to index driver %s: %v", id, err)
	}
}

func passenger(id string) Caller {
	return Caller{UserID: id, Role: domain.RolePassenger}
}

func driverCaller(id string) Caller {
	return Caller{UserID: "user-" + id, DriverID: id, Role: domain.RoleDriver}
}
