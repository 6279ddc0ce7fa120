package jit

import (
	"testing"

	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/bytecode"
)

func testFunction(name string) *broker.FunctionInfo {
	b := bytecode.NewBuilder(1, 0)
	b.Emit(bytecode.LdaSmi, 7)
	b.Emit(bytecode.Return)
	return &broker.FunctionInfo{
		Name:     name,
		Bytecode: b.Build(),
		Feedback: broker.NewFeedbackVector(),
	}
}

func TestProfilerHotness(t *testing.T) {
	p := NewProfiler(3)
	fn := testFunction("f")

	if p.RecordCall(fn) {
		t.Errorf("hot after 1 call with threshold 3")
	}
	if p.RecordCall(fn) {
		t.Errorf("hot after 2 calls with threshold 3")
	}
	if !p.RecordCall(fn) {
		t.Errorf("not hot after 3 calls with threshold 3")
	}
	// The crossing call reports hotness exactly once.
	if p.RecordCall(fn) {
		t.Errorf("fourth call reported a second crossing")
	}
	if !p.IsHot(fn) {
		t.Errorf("IsHot = false after crossing")
	}

	profile := p.Profile(fn)
	if profile == nil || profile.CallCount != 4 {
		t.Errorf("profile = %+v, want CallCount 4", profile)
	}
}

func TestProfilerOnHotCallback(t *testing.T) {
	p := NewProfiler(2)
	fn := testFunction("f")

	var fired []*broker.FunctionInfo
	p.OnHot = func(hot *broker.FunctionInfo, profile *FunctionProfile) {
		fired = append(fired, hot)
		if !profile.IsHot {
			t.Errorf("callback sees profile not yet marked hot")
		}
	}

	for i := 0; i < 5; i++ {
		p.RecordCall(fn)
	}
	if len(fired) != 1 {
		t.Errorf("OnHot fired %d times, want 1", len(fired))
	}
	if len(fired) == 1 && fired[0] != fn {
		t.Errorf("OnHot fired for the wrong function")
	}
}

func TestProfilerNilFunction(t *testing.T) {
	p := NewProfiler(1)
	if p.RecordCall(nil) {
		t.Errorf("nil function became hot")
	}
}

func TestProfilerStats(t *testing.T) {
	p := NewProfiler(2)
	hot := testFunction("hot")
	cold := testFunction("cold")

	p.RecordCall(hot)
	p.RecordCall(hot)
	p.RecordCall(cold)

	stats := p.Stats()
	if stats.TotalFunctions != 2 {
		t.Errorf("TotalFunctions = %d, want 2", stats.TotalFunctions)
	}
	if stats.HotFunctions != 1 {
		t.Errorf("HotFunctions = %d, want 1", stats.HotFunctions)
	}
	if stats.TotalCalls != 3 {
		t.Errorf("TotalCalls = %d, want 3", stats.TotalCalls)
	}

	hotList := p.HotFunctions()
	if len(hotList) != 1 || hotList[0] != hot {
		t.Errorf("HotFunctions = %v, want [hot]", hotList)
	}

	p.Reset()
	if s := p.Stats(); s.TotalFunctions != 0 {
		t.Errorf("TotalFunctions = %d after Reset, want 0", s.TotalFunctions)
	}
}
