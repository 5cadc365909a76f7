package workflow

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type ViewCategory string

const (
	ViewCategoryAll        ViewCategory = "all"
	ViewCategoryRegistered ViewCategory = "registered"
	ViewCategoryPending    ViewCategory = "pending"
	ViewCategoryDuplicates ViewCategory = "duplicates"
)

type ViewRowKind string

const (
	ViewRowRegistered ViewRowKind = "registered"
	ViewRowPending    ViewRowKind = "pending"
)

// ViewQuery is every search/filter/sort selection of the driver screen. Empty fields do not filter.
type ViewQuery struct {
	Search           string       `form:"search" json:"search"`
	Category         ViewCategory `form:"category" json:"category"`
	OmnilinkStatus   string       `form:"omnilink_status" json:"omnilink_status"`
	IndicationStatus string       `form:"indication_status" json:"indication_status"`
	OriginalDriverId string       `form:"original_driver_id" json:"original_driver_id"`
	Reason           string       `form:"reason" json:"reason"`
	Sort             string       `form:"sort" json:"sort"`
	Direction        string       `form:"direction" json:"direction"`
}

// ViewRow is one line of the merged list, either an accepted driver or a staged row.
type ViewRow struct {
	models.DriverFields
	Kind             ViewRowKind            `json:"kind"`
	ID               string                 `json:"id"`
	Revision         int                    `json:"revision"`
	Reason           models.ConflictReasons `json:"reason"`
	OriginalDriverId *string                `json:"original_driver_id"`
	// ConflictCount is the number of staged duplicates for a driver, or the number of tags for a staged row.
	ConflictCount        int       `json:"conflict_count"`
	ResolutionIncomplete bool      `json:"resolution_incomplete"`
	CreatedAt            time.Time `json:"created_at"`
}

func (r ViewRow) IsPending() bool {
	return r.Kind == ViewRowPending
}

// BuildDriverView merges both stores into one list: each driver by name followed by its staged
// duplicates, then the remaining staged rows. Filters run in a fixed order, then the optional sort.
// Omnilink status is evaluated at now. The result is a projection only.
func BuildDriverView(drivers []*models.Driver, pending []*models.PendingDriver, open []*models.DriverResolution, q ViewQuery, now time.Time) []ViewRow {
	col := collate.New(language.BrazilianPortuguese)
	byName := func(a, b string) bool { return col.CompareString(a, b) < 0 }

	incomplete := make(map[string]bool, len(open))
	for _, res := range open {
		incomplete[res.PendingDriverId] = true
		incomplete[res.DriverId] = true
	}

	known := make(map[string]bool, len(drivers))
	for _, d := range drivers {
		known[d.ID] = true
	}
	duplicates := make(map[string][]*models.PendingDriver)
	var standalone []*models.PendingDriver
	for _, p := range pending {
		if p.IsDuplicate() && known[*p.OriginalDriverId] {
			duplicates[*p.OriginalDriverId] = append(duplicates[*p.OriginalDriverId], p)
		} else {
			// dangling references stay visible with the new-driver candidates
			standalone = append(standalone, p)
		}
	}

	sortedDrivers := append([]*models.Driver(nil), drivers...)
	sort.SliceStable(sortedDrivers, func(i, j int) bool {
		return byName(sortedDrivers[i].FullName, sortedDrivers[j].FullName)
	})
	sortPending := func(rows []*models.PendingDriver) {
		sort.SliceStable(rows, func(i, j int) bool { return byName(rows[i].FullName, rows[j].FullName) })
	}

	rows := make([]ViewRow, 0, len(drivers)+len(pending))
	for _, d := range sortedDrivers {
		dups := duplicates[d.ID]
		rows = append(rows, driverRow(d, len(dups), incomplete[d.ID], now))
		sortPending(dups)
		for _, p := range dups {
			rows = append(rows, pendingRow(p, incomplete[p.ID], now))
		}
	}
	sortPending(standalone)
	for _, p := range standalone {
		rows = append(rows, pendingRow(p, incomplete[p.ID], now))
	}

	rows = filterRows(rows, searchFilter(q.Search))
	rows = filterCategory(rows, q.Category)
	rows = filterRows(rows, omnilinkFilter(q.OmnilinkStatus))
	rows = filterRows(rows, indicationFilter(q.IndicationStatus))
	rows = filterRows(rows, drillDownFilter(q.OriginalDriverId, q.Reason))
	sortRows(rows, col, q.Sort, q.Direction)
	return rows
}

func driverRow(d *models.Driver, conflicts int, incomplete bool, now time.Time) ViewRow {
	row := ViewRow{
		Kind:                 ViewRowRegistered,
		ID:                   d.ID,
		DriverFields:         d.DriverFields,
		Revision:             d.Revision,
		ConflictCount:        conflicts,
		ResolutionIncomplete: incomplete,
		CreatedAt:            d.CreatedAt,
	}
	row.OmnilinkStatus = d.OmnilinkStatusAt(now)
	return row
}

func pendingRow(p *models.PendingDriver, incomplete bool, now time.Time) ViewRow {
	row := ViewRow{
		Kind:                 ViewRowPending,
		ID:                   p.ID,
		DriverFields:         p.DriverFields,
		Reason:               p.Reason,
		OriginalDriverId:     p.OriginalDriverId,
		ConflictCount:        len(p.Reason),
		ResolutionIncomplete: incomplete,
		CreatedAt:            p.CreatedAt,
	}
	row.OmnilinkStatus = p.OmnilinkStatusAt(now)
	return row
}

func filterRows(rows []ViewRow, keep func(ViewRow) bool) []ViewRow {
	if keep == nil {
		return rows
	}
	out := rows[:0:0]
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// documentSearchPattern matches a formatted CPF, CNH or phone: digits and their punctuation only.
var documentSearchPattern = regexp.MustCompile(`^[0-9.\-/()+ ]+$`)

func searchFilter(search string) func(ViewRow) bool {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return nil
	}
	var digits string
	if documentSearchPattern.MatchString(needle) {
		digits = utils.DigitsOnly(needle)
	}
	return func(r ViewRow) bool {
		values := []string{r.FullName, r.Cpf, utils.DereferencePtr(r.Cnh), utils.DereferencePtr(r.Phone)}
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), needle) {
				return true
			}
		}
		// "123.456.789-00" should still find the stored digits
		if digits != "" {
			for _, v := range values[1:] {
				if strings.Contains(utils.DigitsOnly(v), digits) {
					return true
				}
			}
		}
		return false
	}
}

// filterCategory: duplicates selects conflicting staged rows plus the drivers they reference.
func filterCategory(rows []ViewRow, category ViewCategory) []ViewRow {
	switch category {
	case ViewCategoryRegistered:
		return filterRows(rows, func(r ViewRow) bool { return !r.IsPending() })
	case ViewCategoryPending:
		return filterRows(rows, ViewRow.IsPending)
	case ViewCategoryDuplicates:
		referenced := make(map[string]bool)
		for _, r := range rows {
			if r.IsPending() && !r.Reason.Empty() && r.OriginalDriverId != nil {
				referenced[*r.OriginalDriverId] = true
			}
		}
		return filterRows(rows, func(r ViewRow) bool {
			if r.IsPending() {
				return !r.Reason.Empty()
			}
			return referenced[r.ID]
		})
	}
	return rows
}

func omnilinkFilter(status string) func(ViewRow) bool {
	status = strings.TrimSpace(status)
	if status == "" || status == string(ViewCategoryAll) {
		return nil
	}
	return func(r ViewRow) bool {
		return r.OmnilinkStatus != nil && string(*r.OmnilinkStatus) == status
	}
}

func indicationFilter(status string) func(ViewRow) bool {
	status = strings.TrimSpace(status)
	if status == "" || status == string(ViewCategoryAll) {
		return nil
	}
	return func(r ViewRow) bool {
		return r.IndicationStatus != nil && string(*r.IndicationStatus) == status
	}
}

// drillDownFilter keeps one conflict: a driver with its staged duplicates, or staged rows by reason tag.
// The driver id takes precedence when both are given.
func drillDownFilter(originalDriverId, reason string) func(ViewRow) bool {
	originalDriverId = strings.TrimSpace(originalDriverId)
	reason = strings.ToLower(strings.TrimSpace(reason))
	switch {
	case originalDriverId != "":
		return func(r ViewRow) bool {
			if r.IsPending() {
				return r.OriginalDriverId != nil && *r.OriginalDriverId == originalDriverId
			}
			return r.ID == originalDriverId
		}
	case reason != "":
		return func(r ViewRow) bool {
			return r.IsPending() && strings.Contains(r.Reason.String(), reason)
		}
	}
	return nil
}

var numericColumns = map[string]func(ViewRow) int{
	"revision":       func(r ViewRow) int { return r.Revision },
	"conflict_count": func(r ViewRow) int { return r.ConflictCount },
}

var stringColumns = map[string]func(ViewRow) string{
	"full_name":                  func(r ViewRow) string { return r.FullName },
	"cpf":                        func(r ViewRow) string { return r.Cpf },
	"cnh":                        func(r ViewRow) string { return utils.DereferencePtr(r.Cnh) },
	"cnh_expiry":                 func(r ViewRow) string { return utils.FormatDate(r.CnhExpiry) },
	"phone":                      func(r ViewRow) string { return utils.DereferencePtr(r.Phone) },
	"type":                       func(r ViewRow) string { return utils.DereferencePtr(r.Type) },
	"omnilink_registration_date": func(r ViewRow) string { return utils.FormatDate(r.OmnilinkRegistrationDate) },
	"omnilink_expiry_date":       func(r ViewRow) string { return utils.FormatDate(r.OmnilinkExpiryDate) },
	"omnilink_status":            func(r ViewRow) string { return string(utils.DereferencePtr(r.OmnilinkStatus)) },
	"indication_status":          func(r ViewRow) string { return string(utils.DereferencePtr(r.IndicationStatus)) },
	"indication_reason":          func(r ViewRow) string { return utils.DereferencePtr(r.IndicationReason) },
	"reason":                     func(r ViewRow) string { return r.Reason.String() },
	"original_driver_id":         func(r ViewRow) string { return utils.DereferencePtr(r.OriginalDriverId) },
	"kind":                       func(r ViewRow) string { return string(r.Kind) },
	"created_at":                 func(r ViewRow) string { return r.CreatedAt.UTC().Format(time.RFC3339) },
}

// sortRows orders in place; an unknown column leaves the grouped order untouched.
func sortRows(rows []ViewRow, col *collate.Collator, column, direction string) {
	column = strings.TrimSpace(column)
	desc := strings.EqualFold(direction, "desc")

	var less func(a, b ViewRow) bool
	if num, ok := numericColumns[column]; ok {
		less = func(a, b ViewRow) bool { return num(a) < num(b) }
	} else if str, ok := stringColumns[column]; ok {
		less = func(a, b ViewRow) bool { return col.CompareString(str(a), str(b)) < 0 }
	} else {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}

// ParseViewCategory maps unknown values to all.
func ParseViewCategory(s string) ViewCategory {
	switch c := ViewCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case ViewCategoryRegistered, ViewCategoryPending, ViewCategoryDuplicates:
		return c
	}
	return ViewCategoryAll
}

// ViewCounts summarizes the unfiltered merged list for the screen header.
type ViewCounts struct {
	Registered int `json:"registered"`
	Pending    int `json:"pending"`
	Duplicates int `json:"duplicates"`
}

func CountView(drivers []*models.Driver, pending []*models.PendingDriver) ViewCounts {
	counts := ViewCounts{Registered: len(drivers), Pending: len(pending)}
	for _, p := range pending {
		if p.IsConflicting() {
			counts.Duplicates++
		}
	}
	return counts
}
