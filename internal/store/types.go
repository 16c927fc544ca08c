package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Display is a network-attached panel. An empty PSK forces Simple IP-only
// control.
type Display struct {
	ID        int64
	Name      string
	IPAddress string
	PSK       string
	Location  string
	Status    string // active | standby | unknown | error
	LastSeen  time.Time
	CreatedAt time.Time
}

// Group is a named set of displays. Membership is many-to-many.
type Group struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	DisplayIDs  []int64
}

type TargetKind string

const (
	TargetDisplay TargetKind = "display"
	TargetGroup   TargetKind = "group"
)

// Target is one entry of a schedule's target set.
type Target struct {
	Kind  TargetKind
	RefID int64
}

// Schedule fires a power action on its resolved target set per its
// 5-field cron spec.
type Schedule struct {
	ID        int64
	Name      string
	Action    string // "on" or "off"
	CronSpec  string
	Enabled   bool
	Targets   []Target
	CreatedAt time.Time
}

// Execution is the immutable record of one schedule fire.
type Execution struct {
	ID         int64
	ScheduleID int64
	ExecutedAt time.Time
	Success    bool
	Error      string // empty on success; names failed displays otherwise
}

// PowerEvent records one observed power state change, for the activity
// log and the energy savings report.
type PowerEvent struct {
	ID          int64
	DisplayID   int64
	DisplayName string // joined on read, not stored
	Action      string // "on" or "off"
	Source      string // manual | schedule | api
	At          time.Time
}

// EventFilter narrows ListPowerEvents.
type EventFilter struct {
	DisplayID int64 // 0 = all displays
	Action    string
	Since     time.Time
	Limit     int
	Offset    int
}
