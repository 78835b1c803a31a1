package repository

import "time"

// EmployeeStatus is the employment status driving approver resolution.
type EmployeeStatus string

const (
	EmployeeWorking      EmployeeStatus = "working"
	EmployeeVacation     EmployeeStatus = "vacation"
	EmployeeSick         EmployeeStatus = "sick"
	EmployeeBusinessTrip EmployeeStatus = "business_trip"
	EmployeeMaternity    EmployeeStatus = "maternity"
	EmployeeIdle         EmployeeStatus = "idle"
	EmployeeOther        EmployeeStatus = "other"
	EmployeeDismissed    EmployeeStatus = "dismissed"
)

// IsAbsent reports whether the status is in the absence set.
func (s EmployeeStatus) IsAbsent() bool {
	switch s {
	case EmployeeVacation, EmployeeSick, EmployeeBusinessTrip, EmployeeMaternity,
		EmployeeIdle, EmployeeOther, EmployeeDismissed:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s EmployeeStatus) Valid() bool {
	return s == EmployeeWorking || s.IsAbsent()
}

// Employee is a directory entry.
type Employee struct {
	ID           string
	FirstName    string
	LastName     string
	MiddleName   *string
	DepartmentID *string
	Status       EmployeeStatus
	IsActive     bool
}

// IsAvailable reports whether the employee can act as an approver right now.
func (e *Employee) IsAvailable() bool {
	return e.IsActive && e.Status == EmployeeWorking
}

// FullName is "Last First".
func (e *Employee) FullName() string {
	if e.FirstName == "" {
		return e.LastName
	}
	return e.LastName + " " + e.FirstName
}

// Department groups employees and optionally names a head.
type Department struct {
	ID     string
	Name   string
	Code   string
	HeadID *string
}

// ReplacementReason mirrors the absence statuses.
type ReplacementReason string

const (
	ReasonVacation     ReplacementReason = "vacation"
	ReasonSick         ReplacementReason = "sick"
	ReasonBusinessTrip ReplacementReason = "business_trip"
	ReasonMaternity    ReplacementReason = "maternity"
	ReasonIdle         ReplacementReason = "idle"
	ReasonDismissed    ReplacementReason = "dismissed"
	ReasonOther        ReplacementReason = "other"
)

// Valid reports whether r is a known reason.
func (r ReplacementReason) Valid() bool {
	switch r {
	case ReasonVacation, ReasonSick, ReasonBusinessTrip, ReasonMaternity,
		ReasonIdle, ReasonDismissed, ReasonOther:
		return true
	}
	return false
}

// EmployeeStatus returns the status an active replacement imposes on the
// absent employee. "other" leaves the status untouched.
func (r ReplacementReason) EmployeeStatus() (EmployeeStatus, bool) {
	switch r {
	case ReasonVacation:
		return EmployeeVacation, true
	case ReasonSick:
		return EmployeeSick, true
	case ReasonBusinessTrip:
		return EmployeeBusinessTrip, true
	case ReasonMaternity:
		return EmployeeMaternity, true
	case ReasonIdle:
		return EmployeeIdle, true
	case ReasonDismissed:
		return EmployeeDismissed, true
	}
	return "", false
}

// Replacement links an absent employee to a substitute for a date range.
// EndDate is nil only for dismissals (open-ended).
type Replacement struct {
	ID                    string
	AbsentEmployeeID      string
	ReplacementEmployeeID string
	Reason                ReplacementReason
	StartDate             time.Time
	EndDate               *time.Time
	IsActive              bool
	CreatedBy             *string
	CreatedAt             time.Time
}

// ActiveOn derives the active flag for the given calendar day.
func (r *Replacement) ActiveOn(day time.Time) bool {
	if day.Before(r.StartDate) {
		return false
	}
	return r.EndDate == nil || !day.After(*r.EndDate)
}
