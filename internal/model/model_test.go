package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentimentLabelScore(t *testing.T) {
	tests := []struct {
		name  string
		label SentimentLabel
		want  float64
	}{
		{"positive", SentimentPositive, 1},
		{"negative", SentimentNegative, -1},
		{"neutral", SentimentNeutral, 0},
		{"unknown falls back to neutral", SentimentLabel("unknown"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.label.Score())
		})
	}
}

func TestEntityTypeIsPrimary(t *testing.T) {
	tests := []struct {
		name   string
		entity EntityType
		want   bool
	}{
		{"cryptocurrency is primary", EntityCryptocurrency, true},
		{"blockchain is primary", EntityBlockchain, true},
		{"protocol is primary", EntityProtocol, true},
		{"company is primary", EntityCompany, true},
		{"organization is primary", EntityOrganization, true},
		{"person is not primary", EntityPerson, false},
		{"location is not primary", EntityLocation, false},
		{"concept is not primary", EntityConcept, false},
		{"event is not primary", EntityEvent, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entity.IsPrimary())
		})
	}
}

func TestLifecycleStateIsActive(t *testing.T) {
	tests := []struct {
		name  string
		state LifecycleState
		want  bool
	}{
		{"emerging is active", LifecycleEmerging, true},
		{"rising is active", LifecycleRising, true},
		{"hot is active", LifecycleHot, true},
		{"mature is active", LifecycleMature, true},
		{"cooling is active", LifecycleCooling, true},
		{"dormant is not active", LifecycleDormant, false},
		{"archived is not active", LifecycleArchived, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.IsActive())
		})
	}
}
