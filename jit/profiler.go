// Package jit is the tier manager: it profiles function calls, detects
// hot functions, and compiles them in the background with the optimizing
// graph builder.
package jit

import (
	"sync"
	"sync/atomic"

	"github.com/ketrewq/v8/broker"
)

// FunctionProfile holds profiling data for a single function.
type FunctionProfile struct {
	CallCount uint64 // atomic counter for calls
	IsHot     bool   // true if threshold exceeded
}

// Profiler tracks function call counts to identify hot code for
// optimizing compilation. Profiling is at function level, not call-site
// level; the builder's own feedback slots cover call sites.
type Profiler struct {
	profiles sync.Map // *broker.FunctionInfo -> *FunctionProfile

	// HotThreshold is the call count at which a function tiers up.
	HotThreshold uint64

	// OnHot is called once, on the call that crosses the threshold.
	OnHot func(fn *broker.FunctionInfo, profile *FunctionProfile)

	hotCount uint64
}

// NewProfiler creates a profiler with the given hotness threshold.
func NewProfiler(hotThreshold uint64) *Profiler {
	return &Profiler{HotThreshold: hotThreshold}
}

// RecordCall increments the call count for a function. Returns true if
// this call caused the function to become hot.
func (p *Profiler) RecordCall(fn *broker.FunctionInfo) bool {
	if fn == nil {
		return false
	}

	val, _ := p.profiles.LoadOrStore(fn, &FunctionProfile{})
	profile := val.(*FunctionProfile)

	count := atomic.AddUint64(&profile.CallCount, 1)

	if !profile.IsHot && count >= p.HotThreshold {
		profile.IsHot = true
		atomic.AddUint64(&p.hotCount, 1)

		if p.OnHot != nil {
			p.OnHot(fn, profile)
		}
		return true
	}

	return false
}

// Profile returns the profile for a function, or nil if not tracked.
func (p *Profiler) Profile(fn *broker.FunctionInfo) *FunctionProfile {
	if val, ok := p.profiles.Load(fn); ok {
		return val.(*FunctionProfile)
	}
	return nil
}

// IsHot returns true if the function has exceeded the hot threshold.
func (p *Profiler) IsHot(fn *broker.FunctionInfo) bool {
	profile := p.Profile(fn)
	return profile != nil && profile.IsHot
}

// HotFunctions returns all functions that have exceeded the threshold.
func (p *Profiler) HotFunctions() []*broker.FunctionInfo {
	var hot []*broker.FunctionInfo
	p.profiles.Range(func(key, value any) bool {
		if value.(*FunctionProfile).IsHot {
			hot = append(hot, key.(*broker.FunctionInfo))
		}
		return true
	})
	return hot
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	TotalFunctions int
	HotFunctions   int
	TotalCalls     uint64
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.profiles.Range(func(key, value any) bool {
		profile := value.(*FunctionProfile)
		stats.TotalFunctions++
		stats.TotalCalls += atomic.LoadUint64(&profile.CallCount)
		if profile.IsHot {
			stats.HotFunctions++
		}
		return true
	})
	return stats
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.profiles = sync.Map{}
	atomic.StoreUint64(&p.hotCount, 0)
}
