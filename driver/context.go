// Package driver implements the conductor, the IPC publication engine
// and the Image read path (spec.md §4.P/.I/.C): the control-plane half
// of the module, sitting on top of package logbuffer.
package driver

import (
	"fmt"
	"time"

	gometrics "github.com/rcrowley/go-metrics"

	"github.com/TisonKun/aeron/idlestrategy"
	"github.com/TisonKun/aeron/logging"
	"github.com/TisonKun/aeron/metrics"
	"github.com/TisonKun/aeron/util"
)

// NanoClock and EpochClock are the clock hooks spec.md §9 "Global
// configuration and clocks" asks for, so tests can inject a fake clock
// instead of the conductor reading time.Now() directly — the same
// pattern the teacher uses for its injectable Config.Net.DialTimeout
// style knobs, generalised to a function hook since time, unlike a
// duration, can't be a zero-value default.
type NanoClock func() int64
type EpochClock func() int64

// SystemNanoClock and SystemEpochClock are the default clock hooks.
func SystemNanoClock() int64  { return time.Now().UnixNano() }
func SystemEpochClock() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }

// Context carries every knob the conductor and IPC publication engine
// need (spec.md §6 table plus §9 clocks), the way sarama.Config
// bundles knobs for the client. There is no process-wide singleton;
// every Conductor is constructed with its own Context.
type Context struct {
	// Directory is the root under which IPC log files are created, per
	// spec.md §6 "<aeron_dir>/publications/<correlation_id>.logbuffer".
	Directory string

	TermLength                      int32
	FilePageSize                    int32
	MTULength                       int32
	IPCPublicationTermWindowLength  int32
	PublicationUnblockTimeout       time.Duration
	ClientLivenessTimeout           time.Duration
	UntetheredWindowLimitTimeout    time.Duration
	UntetheredRestingTimeout        time.Duration
	TimerInterval                   time.Duration
	PublicationLingerTimeout        time.Duration
	PublicationReservedSessionIDLow  int32
	PublicationReservedSessionIDHigh int32

	NanoClock  NanoClock
	EpochClock EpochClock

	Logger   logging.Logger
	Registry gometrics.Registry
	Counters *metrics.SystemCounters

	IdleStrategy idlestrategy.Strategy
}

// NewContext returns a Context with the defaults aeron-driver ships
// (mirroring the values welly87-aeron-go's Context.go constants), ready
// for a caller to override individual fields before Validate.
func NewContext() *Context {
	return &Context{
		Directory:                        "/dev/shm/aeron",
		TermLength:                       16 * 1024 * 1024,
		FilePageSize:                     4 * 1024,
		MTULength:                        1408,
		IPCPublicationTermWindowLength:   4 * 1024 * 1024,
		PublicationUnblockTimeout:        10 * time.Second,
		ClientLivenessTimeout:            10 * time.Second,
		UntetheredWindowLimitTimeout:     5 * time.Second,
		UntetheredRestingTimeout:         2 * time.Second,
		TimerInterval:                    time.Second,
		PublicationLingerTimeout:         5 * time.Second,
		PublicationReservedSessionIDLow:  -1,
		PublicationReservedSessionIDHigh: 1000,
		NanoClock:                        SystemNanoClock,
		EpochClock:                       SystemEpochClock,
		Logger:                           logging.Nop,
		IdleStrategy:                     idlestrategy.NewBackoff(),
	}
}

// ConfigurationError collects every Validate failure at once, the way
// sarama.Config.Validate returns a ConfigurationError describing the
// first offending field — here extended to a slice so callers see every
// problem in one pass instead of fixing knobs one at a time.
type ConfigurationError []string

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("aeron: invalid configuration: %v", []string(e))
}

// Validate applies the bounds spec.md §3/§6 place on term/page sizes and
// windows.
func (c *Context) Validate() error {
	var errs ConfigurationError

	if !util.IsPowerOfTwo(c.TermLength) || c.TermLength < 64*1024 || c.TermLength > 1<<30 {
		errs = append(errs, "TermLength must be a power of two in [64KiB, 1GiB]")
	}
	if !util.IsPowerOfTwo(c.FilePageSize) {
		errs = append(errs, "FilePageSize must be a power of two")
	}
	if c.IPCPublicationTermWindowLength <= 0 {
		errs = append(errs, "IPCPublicationTermWindowLength must be > 0")
	}
	if c.PublicationReservedSessionIDLow > c.PublicationReservedSessionIDHigh {
		errs = append(errs, "PublicationReservedSessionIDLow must be <= PublicationReservedSessionIDHigh")
	}
	if c.NanoClock == nil || c.EpochClock == nil {
		errs = append(errs, "NanoClock and EpochClock must be set")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
