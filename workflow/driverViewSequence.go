package workflow

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/sirupsen/logrus"
)

// ViewSequencer orders view refreshes per viewer: only the viewer's most recently issued
// ticket may publish. A slow earlier refresh finishing after a newer one started is reported
// stale. Tickets of different viewers never affect each other.
type ViewSequencer struct {
	mu      sync.Mutex
	viewers map[string]*viewerTickets
}

type viewerTickets struct {
	issued  uint64
	applied uint64
}

func (s *ViewSequencer) tickets(viewer string) *viewerTickets {
	if s.viewers == nil {
		s.viewers = make(map[string]*viewerTickets)
	}
	t, ok := s.viewers[viewer]
	if !ok {
		t = &viewerTickets{}
		s.viewers[viewer] = t
	}
	return t
}

func (s *ViewSequencer) Next(viewer string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tickets(viewer)
	t.issued++
	return t.issued
}

// Accept marks ticket as applied when it is still the viewer's latest issued.
func (s *ViewSequencer) Accept(viewer string, ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tickets(viewer)
	if ticket != t.issued || ticket <= t.applied {
		return false
	}
	t.applied = ticket
	return true
}

// viewerKey identifies whose refreshes are ordered against each other; anonymous callers share one key.
func viewerKey(ctx context.Context) string {
	if id := utils.GetOperatorIdFromContext(ctx); id != nil {
		return strconv.Itoa(*id)
	}
	return ""
}

type ViewSnapshot struct {
	Rows   []ViewRow  `json:"rows"`
	Total  int        `json:"total"`
	Counts ViewCounts `json:"counts"`
	// Generation is the mutation counter read before loading; clients keep the highest one.
	Generation int64  `json:"generation"`
	Ticket     uint64 `json:"ticket"`
	Stale      bool   `json:"stale"`
}

// ViewRefresher loads both stores and the open journal entries and builds the merged view.
type ViewRefresher struct {
	Records    RecordStore
	Staging    StagingStore
	Journal    ResolutionJournal
	Sequencer  *ViewSequencer
	Generation func(ctx context.Context) (int64, error)
	Logger     *logrus.Logger
	Now        func() time.Time
}

func NewViewRefresher(records RecordStore, staging StagingStore, journal ResolutionJournal, generation func(ctx context.Context) (int64, error), logger *logrus.Logger) *ViewRefresher {
	return &ViewRefresher{
		Records:    records,
		Staging:    staging,
		Journal:    journal,
		Sequencer:  &ViewSequencer{},
		Generation: generation,
		Logger:     logger,
		Now:        time.Now,
	}
}

func (v *ViewRefresher) Refresh(ctx context.Context, q ViewQuery) (*ViewSnapshot, error) {
	ctx, span := tracer.Start(ctx, "RefreshDriverView")
	defer span.End()

	viewer := viewerKey(ctx)
	ticket := v.Sequencer.Next(viewer)

	var generation int64
	if v.Generation != nil {
		gen, err := v.Generation(ctx)
		if err != nil {
			// the view is still correct; clients just cannot order it against mutations
			config.LogError(v.Logger, "driverViewSequence.go", "Refresh", "Generation", nil, err)
		}
		generation = gen
	}

	drivers, err := v.Records.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := v.Staging.ListPendingDrivers(ctx)
	if err != nil {
		return nil, err
	}
	open, err := v.Journal.ListOpenResolutions(ctx)
	if err != nil {
		return nil, err
	}

	rows := BuildDriverView(drivers, pending, open, q, v.Now())
	return &ViewSnapshot{
		Rows:       rows,
		Total:      len(rows),
		Counts:     CountView(drivers, pending),
		Generation: generation,
		Ticket:     ticket,
		Stale:      !v.Sequencer.Accept(viewer, ticket),
	}, nil
}
