package reactiveflow

import (
	"reactiveflow/internal/asyncnode"
	"reactiveflow/internal/corenode"
)

// Mode selects how a node pushes or withholds updates to its successors.
type Mode = corenode.Mode

const (
	Eager = corenode.Eager
	Lazy  = corenode.Lazy
	Pulse = corenode.Pulse
)

// DataState is a node's per-tick data status.
type DataState = corenode.DataState

const (
	Fresh    = corenode.Fresh
	Expired  = corenode.ExpiredState
	Failed   = corenode.FailedState
	InFlight = corenode.PendingState
)

// TriggerState is a modifier/async gate state.
type TriggerState = corenode.TriggerState

const (
	Active   = corenode.Active
	Disabled = corenode.Disabled
	OnPulse  = corenode.OnPulse
)

// CacheDiscipline selects a modifier's caching strategy.
type CacheDiscipline = corenode.CacheDiscipline

const (
	Transient  = corenode.Transient
	ArgCached  = corenode.ArgCached
	FullCached = corenode.FullCached
)

// ExecMode is an async node's overlap policy for repeated triggers.
type ExecMode = asyncnode.ExecMode

const (
	ExecDefault = asyncnode.ModeDefault
	ExecLatest  = asyncnode.ModeLatest
	ExecAll     = asyncnode.ModeAll
	ExecNone    = asyncnode.ModeNone
)

// Progress lets an async task report fractional completion.
type Progress = asyncnode.Progress
