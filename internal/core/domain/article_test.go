package domain

import "testing"

func TestCanAdvance(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "pending to title_filtered", from: StatusPending, to: StatusTitleFiltered, want: true},
		{name: "title_filtered to content_fetched", from: StatusTitleFiltered, to: StatusContentFetched, want: true},
		{name: "content_fetched to llm_processed", from: StatusContentFetched, to: StatusLLMProcessed, want: true},
		{name: "llm_processed to personalized", from: StatusLLMProcessed, to: StatusPersonalized, want: true},
		{name: "personalized to ranked", from: StatusPersonalized, to: StatusRanked, want: true},
		{name: "skip ahead is still forward", from: StatusPending, to: StatusRanked, want: true},
		{name: "no regression", from: StatusRanked, to: StatusPending, want: false},
		{name: "no regression one step", from: StatusContentFetched, to: StatusTitleFiltered, want: false},
		{name: "no self transition", from: StatusPending, to: StatusPending, want: false},
		{name: "pending can discard", from: StatusPending, to: StatusDiscarded, want: true},
		{name: "llm_processed can discard", from: StatusLLMProcessed, to: StatusDiscarded, want: true},
		{name: "personalized never discards", from: StatusPersonalized, to: StatusDiscarded, want: false},
		{name: "ranked never discards", from: StatusRanked, to: StatusDiscarded, want: false},
		{name: "discarded is absorbing", from: StatusDiscarded, to: StatusPending, want: false},
		{name: "discarded stays discarded", from: StatusDiscarded, to: StatusDiscarded, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAdvance(tt.from, tt.to); got != tt.want {
				t.Errorf("CanAdvance(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStageGatesMatchLifecycle(t *testing.T) {
	for stage, gate := range StageGates {
		if gate.Stage != stage {
			t.Errorf("gate for %s carries stage %s", stage, gate.Stage)
		}

		if !CanAdvance(gate.FromStatus, gate.ToStatus) {
			t.Errorf("gate %s transition %s -> %s is not a legal forward move", stage, gate.FromStatus, gate.ToStatus)
		}

		if gate.OutputColumn == "" {
			t.Errorf("gate %s has no output column", stage)
		}
	}
}

func TestWeightsFor(t *testing.T) {
	tests := []struct {
		name         string
		profile      ProfileType
		wantHoldings float64
		wantImpact   float64
	}{
		{name: "holdings heavy", profile: ProfileHoldingsHeavy, wantHoldings: 0.7, wantImpact: 0.3},
		{name: "balanced", profile: ProfileBalanced, wantHoldings: 0.5, wantImpact: 0.5},
		{name: "impact heavy", profile: ProfileImpactHeavy, wantHoldings: 0.3, wantImpact: 0.7},
		{name: "unknown falls back to balanced", profile: ProfileType("whatever"), wantHoldings: 0.5, wantImpact: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightsFor(tt.profile)
			if got.Holdings != tt.wantHoldings || got.Impact != tt.wantImpact {
				t.Errorf("WeightsFor(%s) = %+v, want {%v %v}", tt.profile, got, tt.wantHoldings, tt.wantImpact)
			}
		})
	}
}

func TestImpactLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  ImpactLevel
	}{
		{score: 0, want: ImpactLow},
		{score: 34.9, want: ImpactLow},
		{score: 35, want: ImpactMedium},
		{score: 59.9, want: ImpactMedium},
		{score: 60, want: ImpactHigh},
		{score: 85, want: ImpactCritical},
		{score: 100, want: ImpactCritical},
	}

	for _, tt := range tests {
		if got := ImpactLevelFor(tt.score); got != tt.want {
			t.Errorf("ImpactLevelFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
