package workflow

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/sirupsen/logrus"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory RecordStore, StagingStore and ResolutionJournal.
// Every method is a separate call, mirroring the SQL store; nothing is transactional.
type memStore struct {
	mu          sync.Mutex
	drivers     map[string]*models.Driver
	driverOrder []string
	pending     map[string]*models.PendingDriver
	resolutions []*models.DriverResolution

	// injected failures
	failInsertDrivers error
	failInsertPending error
	failOverwrite     error
	failDeletes       int

	overwrites int
	deletes    int
}

func newMemStore() *memStore {
	return &memStore{
		drivers: map[string]*models.Driver{},
		pending: map[string]*models.PendingDriver{},
	}
}

func cloneDriver(d *models.Driver) *models.Driver {
	c := *d
	return &c
}

func clonePending(p *models.PendingDriver) *models.PendingDriver {
	c := *p
	c.Reason = append(models.ConflictReasons(nil), p.Reason...)
	return &c
}

func (s *memStore) ListDriverKeys(ctx context.Context) ([]models.DriverKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]models.DriverKey, 0, len(s.driverOrder))
	for _, id := range s.driverOrder {
		d := s.drivers[id]
		keys = append(keys, models.DriverKey{ID: d.ID, Cpf: d.Cpf, Cnh: d.Cnh})
	}
	return keys, nil
}

func (s *memStore) ListDrivers(ctx context.Context) ([]*models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Driver, 0, len(s.drivers))
	for _, id := range s.driverOrder {
		out = append(out, cloneDriver(s.drivers[id]))
	}
	return out, nil
}

func (s *memStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return cloneDriver(d), nil
}

func (s *memStore) InsertDrivers(ctx context.Context, drivers []*models.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertDrivers != nil {
		return s.failInsertDrivers
	}
	for _, d := range drivers {
		if _, ok := s.drivers[d.ID]; ok && d.ID != "" {
			return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '" + d.ID + "' for key 'PRIMARY'"}
		}
	}
	for _, d := range drivers {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.CreatedAt = time.Now()
		s.drivers[d.ID] = cloneDriver(d)
		s.driverOrder = append(s.driverOrder, d.ID)
	}
	return nil
}

func (s *memStore) OverwriteDriver(ctx context.Context, id string, fields models.DriverFields, revision int) (*models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overwrites++
	if s.failOverwrite != nil {
		return nil, s.failOverwrite
	}
	d, ok := s.drivers[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	if d.Revision != revision {
		return nil, models.ErrStaleRevision
	}
	cpf := d.Cpf
	d.DriverFields = fields
	d.Cpf = cpf
	d.Revision++
	return cloneDriver(d), nil
}

func (s *memStore) InsertPendingDrivers(ctx context.Context, rows []*models.PendingDriver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertPending != nil {
		return s.failInsertPending
	}
	for _, p := range rows {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Status == "" {
			p.Status = models.PendingStatusPending
		}
		p.CreatedAt = time.Now()
		s.pending[p.ID] = clonePending(p)
	}
	return nil
}

func (s *memStore) ListPendingDrivers(ctx context.Context) ([]*models.PendingDriver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.PendingDriver, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, clonePending(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetPendingDriver(ctx context.Context, id string) (*models.PendingDriver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return clonePending(p), nil
}

func (s *memStore) DeletePendingDriver(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.failDeletes > 0 {
		s.failDeletes--
		return false, errStoreDown
	}
	if _, ok := s.pending[id]; !ok {
		return false, nil
	}
	delete(s.pending, id)
	return true, nil
}

func (s *memStore) OpenResolution(ctx context.Context, resolution *models.DriverResolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolution.ID = len(s.resolutions) + 1
	resolution.Status = models.ResolutionStatusOpen
	c := *resolution
	s.resolutions = append(s.resolutions, &c)
	return nil
}

func (s *memStore) CloseResolution(ctx context.Context, id int, status models.ResolutionStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resolutions {
		if r.ID == id {
			now := time.Now()
			r.Status = status
			r.Error = errMsg
			r.CompletedAt = &now
			return nil
		}
	}
	return utils.ErrorRecordNotFound
}

func (s *memStore) ListOpenResolutions(ctx context.Context) ([]*models.DriverResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DriverResolution
	for _, r := range s.resolutions {
		if r.Status == models.ResolutionStatusOpen {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) resolution(id int) *models.DriverResolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resolutions {
		if r.ID == id {
			c := *r
			return &c
		}
	}
	return nil
}

func (s *memStore) driversWithCpf(cpf string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.drivers {
		if d.Cpf == cpf {
			n++
		}
	}
	return n
}

func (s *memStore) pendingReferencing(driverId string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.pending {
		if p.OriginalDriverId != nil && *p.OriginalDriverId == driverId {
			n++
		}
	}
	return n
}

// seedDriver inserts an accepted driver directly.
func (s *memStore) seedDriver(id, name, cpf string, cnh string) *models.Driver {
	d := &models.Driver{ID: id, DriverFields: models.DriverFields{FullName: name, Cpf: cpf, Cnh: utils.NilIfEmpty(cnh)}}
	if err := s.InsertDrivers(context.Background(), []*models.Driver{d}); err != nil {
		panic(err)
	}
	return d
}

// seedPending stages a row directly; ref may be empty.
func (s *memStore) seedPending(id, name, cpf string, ref string, reasons ...models.ConflictReason) *models.PendingDriver {
	p := &models.PendingDriver{ID: id, DriverFields: models.DriverFields{FullName: name, Cpf: cpf}, OriginalDriverId: utils.NilIfEmpty(ref)}
	for _, r := range reasons {
		p.Reason.Add(r)
	}
	if err := s.InsertPendingDrivers(context.Background(), []*models.PendingDriver{p}); err != nil {
		panic(err)
	}
	return p
}

// lockRecorder records every key obtained; busy keys fail.
type lockRecorder struct {
	mu       sync.Mutex
	obtained []string
	busy     map[string]bool
}

func (l *lockRecorder) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy[key] {
		return nil, utils.ErrLockNotObtained
	}
	l.obtained = append(l.obtained, key)
	return func() {}, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestResolver(store *memStore) *Resolver {
	return NewResolver(store, store, store, nil, testLogger())
}

const (
	driverAnaId   = "0b7c5c1e-4a55-4b8e-9a53-7f1f4d0b9a01"
	driverBetoId  = "0b7c5c1e-4a55-4b8e-9a53-7f1f4d0b9a02"
	pendingOneId  = "6f0e2c44-2f6d-4d1e-8d0b-5a3c1e9f7b01"
	pendingTwoId  = "6f0e2c44-2f6d-4d1e-8d0b-5a3c1e9f7b02"
	pendingMiaId  = "6f0e2c44-2f6d-4d1e-8d0b-5a3c1e9f7b03"
	missingId     = "ffffffff-ffff-4fff-8fff-ffffffffffff"
	sampleNowText = "2024-09-15T12:00:00Z"
)

func sampleNow() time.Time {
	t, _ := time.Parse(time.RFC3339, sampleNowText)
	return t
}
