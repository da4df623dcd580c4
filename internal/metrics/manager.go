// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

// Validation outcome label values.
const (
	OutcomeValid           = "valid"
	OutcomeUnknownKey      = "unknown_key"
	OutcomeMachineMismatch = "machine_mismatch"
	OutcomeRevoked         = "revoked"
	OutcomeExpired         = "expired"
	OutcomeError           = "error"
)

// Claim outcome label values.
const (
	ClaimOutcomeClaimed        = "claimed"
	ClaimOutcomeAlreadyClaimed = "already_claimed"
	ClaimOutcomeNotFound       = "not_found"
	ClaimOutcomeError          = "error"
)

type Manager struct {
	registry *prometheus.Registry

	validations *prometheus.CounterVec
	claims      *prometheus.CounterVec
	keysIssued  prometheus.Counter
}

func NewManager() *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keymint_validations_total",
		Help: "License key validation attempts by outcome",
	}, []string{"outcome"})
	registry.MustRegister(validations)

	claims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keymint_claims_total",
		Help: "License key claim attempts by outcome",
	}, []string{"outcome"})
	registry.MustRegister(claims)

	keysIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keymint_keys_issued_total",
		Help: "License keys created by the issuance service",
	})
	registry.MustRegister(keysIssued)

	log.Debug().Msg("Metrics manager initialized")

	return &Manager{
		registry:    registry,
		validations: validations,
		claims:      claims,
		keysIssued:  keysIssued,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) RecordValidation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *Manager) RecordClaim(outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(outcome).Inc()
}

func (m *Manager) RecordKeyIssued(count int) {
	if m == nil {
		return
	}
	m.keysIssued.Add(float64(count))
}
