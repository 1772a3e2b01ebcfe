// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package normalize

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/halcyonrmm/halcyon/internal/models"
)

// mockStore is an in-memory settings store.
type mockStore struct {
	mu         sync.Mutex
	decomposed map[uuid.UUID]*Decomposed
	deleted    []uuid.UUID
}

func newMockStore() *mockStore {
	return &mockStore{decomposed: make(map[uuid.UUID]*Decomposed)}
}

func (m *mockStore) ReplaceDecomposed(ctx context.Context, linkID uuid.UUID, d *Decomposed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decomposed[linkID] = d
	return nil
}

func (m *mockStore) DeleteForLink(ctx context.Context, linkID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.decomposed, linkID)
	m.deleted = append(m.deleted, linkID)
	return nil
}

func (m *mockStore) get(linkID uuid.UUID) *Decomposed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decomposed[linkID]
}

func (m *mockStore) GetPatch(ctx context.Context, linkID uuid.UUID) (*models.PatchSettings, error) {
	if d := m.get(linkID); d != nil {
		return d.Patch, nil
	}
	return nil, nil
}

func (m *mockStore) GetMaintenance(ctx context.Context, linkID uuid.UUID) (*models.MaintenanceSettings, error) {
	if d := m.get(linkID); d != nil {
		return d.Maintenance, nil
	}
	return nil, nil
}

func (m *mockStore) ListAlertRules(ctx context.Context, linkID uuid.UUID) ([]models.AlertRule, error) {
	if d := m.get(linkID); d != nil {
		return d.AlertRules, nil
	}
	return nil, nil
}

func (m *mockStore) ListAutomations(ctx context.Context, linkID uuid.UUID) ([]models.AutomationRule, error) {
	if d := m.get(linkID); d != nil {
		return d.Automations, nil
	}
	return nil, nil
}

func (m *mockStore) ListComplianceChecks(ctx context.Context, linkID uuid.UUID) ([]models.ComplianceCheck, error) {
	if d := m.get(linkID); d != nil {
		return d.ComplianceChecks, nil
	}
	return nil, nil
}

func TestService_PersistAndAssemble(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil)
	linkID := uuid.New()

	raw := json.RawMessage(`{"schedule_frequency": "monthly", "schedule_day_of_month": 15}`)
	if _, err := svc.Persist(context.Background(), linkID, models.FeaturePatch, raw); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	out, found, err := svc.Assemble(context.Background(), models.FeaturePatch, linkID)
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if !found {
		t.Fatal("expected assembled settings")
	}

	var p models.PatchSettings
	if err := json.Unmarshal(out, &p); err != nil {
		t.Fatalf("assembled payload not valid JSON: %v", err)
	}
	if p.ScheduleFrequency != models.PatchFrequencyMonthly {
		t.Errorf("expected monthly, got %q", p.ScheduleFrequency)
	}
	if p.ScheduleDayOfMonth != 15 {
		t.Errorf("expected day 15, got %d", p.ScheduleDayOfMonth)
	}
	// Defaulted during decompose, present after assemble.
	if p.ScheduleTime != "02:00" {
		t.Errorf("expected defaulted time, got %q", p.ScheduleTime)
	}
}

func TestService_PersistNonNormalizedClearsRows(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil)
	linkID := uuid.New()

	d, err := svc.Persist(context.Background(), linkID, models.FeatureBackup, json.RawMessage(`{"retention_days": 7}`))
	if err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	if d.Opaque == nil {
		t.Error("expected opaque payload for backup settings")
	}
	if len(store.deleted) != 1 || store.deleted[0] != linkID {
		t.Errorf("expected rows cleared for link, got %v", store.deleted)
	}
}

func TestService_AssembleNonNormalizedNotFound(t *testing.T) {
	svc := NewService(newMockStore(), nil)

	_, found, err := svc.Assemble(context.Background(), models.FeatureMonitoring, uuid.New())
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if found {
		t.Error("non-normalized types have no rows to assemble")
	}
}

func TestService_AssembleMissingLink(t *testing.T) {
	svc := NewService(newMockStore(), nil)

	_, found, err := svc.Assemble(context.Background(), models.FeatureAlertRule, uuid.New())
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if found {
		t.Error("missing link should report not found")
	}
}

func TestService_AssembleListType(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil)
	linkID := uuid.New()

	raw := json.RawMessage(`[{"name": "disk low", "metric": "disk_free", "operator": "lt", "threshold": 10}]`)
	if _, err := svc.Persist(context.Background(), linkID, models.FeatureAlertRule, raw); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	out, found, err := svc.Assemble(context.Background(), models.FeatureAlertRule, linkID)
	if err != nil || !found {
		t.Fatalf("assemble failed: found=%v err=%v", found, err)
	}

	var rules []models.AlertRule
	if err := json.Unmarshal(out, &rules); err != nil {
		t.Fatalf("assembled payload not a list: %v", err)
	}
	if len(rules) != 1 || rules[0].Name != "disk low" {
		t.Errorf("unexpected rules: %+v", rules)
	}
}
