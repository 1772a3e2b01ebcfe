// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package resolution

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonrmm/halcyon/internal/access"
	"github.com/halcyonrmm/halcyon/internal/models"
	apperrors "github.com/halcyonrmm/halcyon/internal/pkg/errors"
)

// mockResolveStore implements Store and PreviewStore over in-memory data.
type mockResolveStore struct {
	mu      sync.Mutex
	devices map[uuid.UUID]*models.Device
	orgs    map[uuid.UUID]*models.Organization
	groups  map[uuid.UUID][]uuid.UUID
	rows    []CandidateRow

	// policies maps policy ID to owning org ID, mirroring the FK the
	// real store resolves through config_policies.
	policies map[uuid.UUID]uuid.UUID

	// assembled maps link ID to a pre-assembled normalized payload.
	assembled map[uuid.UUID]json.RawMessage
}

func newMockResolveStore() *mockResolveStore {
	return &mockResolveStore{
		devices:   make(map[uuid.UUID]*models.Device),
		orgs:      make(map[uuid.UUID]*models.Organization),
		groups:    make(map[uuid.UUID][]uuid.UUID),
		policies:  make(map[uuid.UUID]uuid.UUID),
		assembled: make(map[uuid.UUID]json.RawMessage),
	}
}

func (m *mockResolveStore) Device(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, apperrors.NotFound("device")
	}
	return d, nil
}

func (m *mockResolveStore) Organization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, apperrors.NotFound("organization")
	}
	return o, nil
}

func (m *mockResolveStore) DeviceGroupIDs(ctx context.Context, deviceID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups[deviceID], nil
}

func (m *mockResolveStore) Candidates(ctx context.Context, anc Ancestry) ([]CandidateRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	match := make(map[uuid.UUID]bool)
	match[anc.DeviceID] = true
	match[anc.SiteID] = true
	match[anc.OrgID] = true
	if anc.PartnerID != nil {
		match[*anc.PartnerID] = true
	}
	for _, g := range anc.GroupIDs {
		match[g] = true
	}

	var out []CandidateRow
	for _, row := range m.rows {
		if match[row.TargetID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockResolveStore) AssembleSettings(ctx context.Context, featureType models.FeatureType, linkID uuid.UUID) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.assembled[linkID]
	return raw, ok, nil
}

func (m *mockResolveStore) PolicyOrg(ctx context.Context, policyID uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orgID, ok := m.policies[policyID]
	if !ok {
		return uuid.Nil, apperrors.NotFound("policy")
	}
	return orgID, nil
}

func (m *mockResolveStore) InsertDraft(ctx context.Context, draft models.AssignmentDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, CandidateRow{
		AssignmentID:  uuid.New(),
		Level:         draft.Level,
		TargetID:      draft.TargetID,
		Priority:      draft.Priority,
		AssignedAt:    time.Now(),
		PolicyID:      draft.ConfigPolicyID,
		PolicyName:    "draft",
		PolicyOrgID:   m.policies[draft.ConfigPolicyID],
		PolicyStatus:  models.PolicyStatusActive,
		FeatureLinkID: uuid.New(),
		FeatureType:   models.FeaturePatch,
	})
	return nil
}

func (m *mockResolveStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, row := range m.rows {
		if row.AssignmentID != id {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return nil
}

// copyTxRunner runs the preview against a deep copy of the base store so
// mutations never leak, mirroring a rolled-back transaction.
type copyTxRunner struct {
	base *mockResolveStore
}

func (r *copyTxRunner) InDiscardedTx(ctx context.Context, fn func(store PreviewStore) error) error {
	r.base.mu.Lock()
	clone := newMockResolveStore()
	for k, v := range r.base.devices {
		clone.devices[k] = v
	}
	for k, v := range r.base.orgs {
		clone.orgs[k] = v
	}
	for k, v := range r.base.groups {
		clone.groups[k] = v
	}
	for k, v := range r.base.policies {
		clone.policies[k] = v
	}
	for k, v := range r.base.assembled {
		clone.assembled[k] = v
	}
	clone.rows = append(clone.rows, r.base.rows...)
	r.base.mu.Unlock()

	return fn(clone)
}

type fixture struct {
	store    *mockResolveStore
	svc      *Service
	deviceID uuid.UUID
	siteID   uuid.UUID
	orgID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMockResolveStore()
	deviceID := uuid.New()
	siteID := uuid.New()
	orgID := uuid.New()

	store.devices[deviceID] = &models.Device{ID: deviceID, OrgID: orgID, SiteID: siteID, Hostname: "ws-01"}
	store.orgs[orgID] = &models.Organization{ID: orgID, Name: "acme"}

	return &fixture{
		store:    store,
		svc:      NewService(store, &copyTxRunner{base: store}, nil),
		deviceID: deviceID,
		siteID:   siteID,
		orgID:    orgID,
	}
}

func (f *fixture) addRow(level models.HierarchyLevel, targetID uuid.UUID, priority int, assignedAt time.Time, featureType models.FeatureType, inline json.RawMessage) CandidateRow {
	row := CandidateRow{
		AssignmentID:   uuid.New(),
		Level:          level,
		TargetID:       targetID,
		Priority:       priority,
		AssignedAt:     assignedAt,
		PolicyID:       uuid.New(),
		PolicyName:     "policy-" + string(level),
		PolicyOrgID:    f.orgID,
		PolicyStatus:   models.PolicyStatusActive,
		FeatureLinkID:  uuid.New(),
		FeatureType:    featureType,
		InlineSettings: inline,
	}
	f.store.policies[row.PolicyID] = f.orgID
	f.store.rows = append(f.store.rows, row)
	return row
}

func TestResolve_ClosestLevelWins(t *testing.T) {
	f := newFixture(t)
	base := time.Now()

	// Org-level assignment with the best possible priority still loses to
	// a site-level one.
	f.addRow(models.LevelOrganization, f.orgID, 0, base, models.FeatureBackup, json.RawMessage(`{"source":"org"}`))
	siteRow := f.addRow(models.LevelSite, f.siteID, 100, base, models.FeatureBackup, json.RawMessage(`{"source":"site"}`))

	eff, err := f.svc.Resolve(context.Background(), f.deviceID, access.Unrestricted())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	got := eff.Features[models.FeatureBackup]
	if got == nil {
		t.Fatal("expected backup feature resolved")
	}
	if got.SourceLevel != models.LevelSite {
		t.Errorf("expected site to win over organization, got %s", got.SourceLevel)
	}
	if got.SourcePolicyID != siteRow.PolicyID {
		t.Error("winner should be the site assignment's policy")
	}
	if string(got.Settings) != `{"source":"site"}` {
		t.Errorf("unexpected settings: %s", got.Settings)
	}
}

func TestResolve_PriorityBreaksLevelTies(t *testing.T) {
	f := newFixture(t)
	base := time.Now()

	f.addRow(models.LevelSite, f.siteID, 10, base, models.FeatureSecurity, json.RawMessage(`{"p":"10"}`))
	winner := f.addRow(models.LevelSite, f.siteID, 1, base.Add(time.Hour), models.FeatureSecurity, json.RawMessage(`{"p":"1"}`))

	eff, err := f.svc.Resolve(context.Background(), f.deviceID, access.Unrestricted())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	got := eff.Features[models.FeatureSecurity]
	if got == nil || got.SourcePolicyID != winner.PolicyID {
		t.Errorf("lower priority number should win within a level")
	}
}

func TestResolve_OlderAssignmentBreaksPriorityTies(t *testing.T) {
	f := newFixture(t)
	base := time.Now()

	older := f.addRow(models.LevelSite, f.siteID, 5, base.Add(-time.Hour), models.FeatureBackup, json.RawMessage(`{"v":"old"}`))
	f.addRow(models.LevelSite, f.siteID, 5, base, models.FeatureBackup, json.RawMessage(`{"v":"new"}`))

	eff, err := f.svc.Resolve(context.Background(), f.deviceID, access.Unrestricted())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	got := eff.Features[models.FeatureBackup]
	if got == nil || got.SourcePolicyID != older.PolicyID {
		t.Error("older assignment should win a full tie on level and priority")
	}
}

func TestResolve_PerFeatureIndependence(t *testing.T) {
	f := newFixture(t)
	base := time.Now()

	deviceRow := f.addRow(models.LevelDevice, f.deviceID, 0, base, models.FeatureBackup, json.RawMessage(`{"v":"dev"}`))
	orgRow := f.addRow(models.LevelOrganization, f.orgID, 0, base, models.FeatureSecurity, json.RawMessage(`{"v":"org"}`))

	eff, err := f.svc.Resolve(context.Background(), f.deviceID, access.Unrestricted())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if eff.Features[models.FeatureBackup].SourcePolicyID != deviceRow.PolicyID {
		t.Error("backup should come from device assignment")
	}
	if eff.Features[models.FeatureSecurity].SourcePolicyID != orgRow.PolicyID {
		t.Error("security should fall through to the org assignment")
	}
	if len(eff.InheritanceChain) != 2 {
		t.Errorf("both assignments belong in the chain, got %d entries", len(eff.InheritanceChain))
	}
}

func TestResolve_InlineSettingsRenormalized(t *testing.T) {
	f := newFixture(t)

	// A patch payload stored inline, missing most fields. Resolution must
	// still hand out a fully-defaulted canonical shape.
	f.addRow(models.LevelSite, f.siteID, 0, time.Now(), models.FeaturePatch, json.RawMessage(`{"schedule_frequency":"daily"}`))

	eff, err := f.svc.Resolve(context.Background(), f.deviceID, access.Unrestricted())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	var p models.PatchSettings
	if err := json.Unmarshal(eff.Features[models.FeaturePatch].Settings, &p); err != nil {
		t.Fatalf("settings not valid JSON: %v", err)
	}
	if p.ScheduleFrequency != models.PatchFrequencyDaily {
		t.Errorf("expected daily, got %q", p.ScheduleFrequency)
	}
	if p.ScheduleTime != "02:00" {
		t.Errorf("expected defaulted schedule time, got %q", p.ScheduleTime)
	}
	if p.RebootPolicy != models.RebootIfRequired {
		t.Errorf("expected defaulted reboot policy, got %q", p.RebootPolicy)
	}
}

func TestResolve_NormalizedRowsBeatInline(t *testing.T) {
	f := newFixture(t)

	row := f.addRow(models.LevelSite, f.siteID, 0, time.Now(), models.FeaturePatch, json.RawMessage(`{"schedule_frequency":"daily"}`))
	f.store.assembled[row.FeatureLinkID] = json.RawMessage(`{"schedule_frequency":"monthly"}`)

	eff, err := f.svc.Resolve(context.Background(), f.deviceID, access.Unrestricted())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if string(eff.Features[models.FeaturePatch].Settings) != `{"schedule_frequency":"monthly"}` {
		t.Errorf("normalized rows should take precedence over inline JSON, got %s",
			eff.Features[models.FeaturePatch].Settings)
	}
}

func TestResolve_DeviceOutOfScope(t *testing.T) {
	f := newFixture(t)

	otherOrg := access.NewOrgScope([]uuid.UUID{uuid.New()})

	_, err := f.svc.Resolve(context.Background(), f.deviceID, otherOrg)
	if !apperrors.IsNotFoundError(err) {
		t.Fatalf("out-of-scope device must resolve to not found, got %v", err)
	}

	// Same error shape as a genuinely missing device.
	_, missErr := f.svc.Resolve(context.Background(), uuid.New(), otherOrg)
	if !apperrors.IsNotFoundError(missErr) {
		t.Fatalf("missing device must be not found, got %v", missErr)
	}
}

func TestResolve_DeviceGroupAncestry(t *testing.T) {
	f := newFixture(t)
	groupID := uuid.New()
	f.store.groups[f.deviceID] = []uuid.UUID{groupID}

	f.addRow(models.LevelSite, f.siteID, 0, time.Now(), models.FeatureBackup, json.RawMessage(`{"v":"site"}`))
	groupRow := f.addRow(models.LevelDeviceGroup, groupID, 0, time.Now(), models.FeatureBackup, json.RawMessage(`{"v":"group"}`))

	eff, err := f.svc.Resolve(context.Background(), f.deviceID, access.Unrestricted())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if eff.Features[models.FeatureBackup].SourcePolicyID != groupRow.PolicyID {
		t.Error("device group assignment should beat site assignment")
	}
}

func TestResolve_PartnerLevelApplies(t *testing.T) {
	f := newFixture(t)
	partnerID := uuid.New()
	f.store.orgs[f.orgID].PartnerID = &partnerID

	row := f.addRow(models.LevelPartner, partnerID, 0, time.Now(), models.FeatureBackup, json.RawMessage(`{"v":"partner"}`))

	eff, err := f.svc.Resolve(context.Background(), f.deviceID, access.Unrestricted())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got := eff.Features[models.FeatureBackup]; got == nil || got.SourcePolicyID != row.PolicyID {
		t.Error("partner assignment should apply to managed org's devices")
	}
}

func TestResolve_NoAssignments(t *testing.T) {
	f := newFixture(t)

	eff, err := f.svc.Resolve(context.Background(), f.deviceID, access.Unrestricted())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(eff.Features) != 0 {
		t.Errorf("expected no features, got %d", len(eff.Features))
	}
	if len(eff.InheritanceChain) != 0 {
		t.Errorf("expected empty chain, got %d", len(eff.InheritanceChain))
	}
	if eff.DeviceID != f.deviceID {
		t.Error("device id missing from result")
	}
}

func TestPreview_DoesNotMutate(t *testing.T) {
	f := newFixture(t)
	existing := f.addRow(models.LevelSite, f.siteID, 0, time.Now(), models.FeaturePatch, json.RawMessage(`{"schedule_frequency":"weekly"}`))

	draftPolicy := uuid.New()
	f.store.policies[draftPolicy] = f.orgID

	changes := models.PreviewChanges{
		Add: []models.AssignmentDraft{{
			ConfigPolicyID: draftPolicy,
			Level:          models.LevelDevice,
			TargetID:       f.deviceID,
			Priority:       0,
		}},
		Remove: []uuid.UUID{existing.AssignmentID},
	}

	preview, err := f.svc.Preview(context.Background(), f.deviceID, changes, access.Unrestricted())
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}

	// Current shows the existing assignment, proposed shows the draft.
	cur := preview.Current.Features[models.FeaturePatch]
	if cur == nil || cur.SourcePolicyID != existing.PolicyID {
		t.Error("current side should reflect the stored assignment")
	}
	prop := preview.Proposed.Features[models.FeaturePatch]
	if prop == nil || prop.SourceLevel != models.LevelDevice {
		t.Error("proposed side should reflect the draft assignment")
	}

	// The base store is untouched.
	after, err := f.svc.Resolve(context.Background(), f.deviceID, access.Unrestricted())
	if err != nil {
		t.Fatalf("resolve after preview failed: %v", err)
	}
	got := after.Features[models.FeaturePatch]
	if got == nil || got.SourcePolicyID != existing.PolicyID {
		t.Error("preview must not change the durable state")
	}
}

func TestPreview_ForeignPolicyNotFound(t *testing.T) {
	f := newFixture(t)

	// A policy owned by another tenant, with confidential settings the
	// caller must never see through a preview.
	foreignOrg := uuid.New()
	foreignPolicy := uuid.New()
	f.store.policies[foreignPolicy] = foreignOrg

	caller := access.NewOrgScope([]uuid.UUID{f.orgID})
	changes := models.PreviewChanges{
		Add: []models.AssignmentDraft{{
			ConfigPolicyID: foreignPolicy,
			Level:          models.LevelDevice,
			TargetID:       f.deviceID,
		}},
	}

	preview, err := f.svc.Preview(context.Background(), f.deviceID, changes, caller)
	if !apperrors.IsNotFoundError(err) {
		t.Fatalf("drafting another tenant's policy must be not found, got %v", err)
	}
	if preview != nil {
		t.Fatal("no preview may be returned for an out-of-scope draft")
	}

	// Same error shape as a policy that does not exist at all, so the
	// response does not confirm the foreign policy exists.
	changes.Add[0].ConfigPolicyID = uuid.New()
	_, missErr := f.svc.Preview(context.Background(), f.deviceID, changes, caller)
	if !apperrors.IsNotFoundError(missErr) {
		t.Fatalf("missing draft policy must be not found, got %v", missErr)
	}
}

func TestResolve_InactivePolicyNeverWins(t *testing.T) {
	f := newFixture(t)
	base := time.Now()

	active := f.addRow(models.LevelSite, f.siteID, 10, base, models.FeaturePatch, json.RawMessage(`{"v":"site"}`))

	// A more specific assignment whose policy has been deactivated.
	inactive := CandidateRow{
		AssignmentID:   uuid.New(),
		Level:          models.LevelDevice,
		TargetID:       f.deviceID,
		Priority:       0,
		AssignedAt:     base,
		PolicyID:       uuid.New(),
		PolicyName:     "deactivated",
		PolicyOrgID:    f.orgID,
		PolicyStatus:   models.PolicyStatusInactive,
		FeatureLinkID:  uuid.New(),
		FeatureType:    models.FeaturePatch,
		InlineSettings: json.RawMessage(`{"v":"inactive"}`),
	}
	f.store.rows = append(f.store.rows, inactive)

	eff, err := f.svc.Resolve(context.Background(), f.deviceID, access.Unrestricted())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	got := eff.Features[models.FeaturePatch]
	if got == nil || got.SourcePolicyID != active.PolicyID {
		t.Error("an inactive policy must lose to an active, less specific one")
	}
	for _, entry := range eff.InheritanceChain {
		if entry.PolicyID == inactive.PolicyID {
			t.Error("inactive policy must not appear in the inheritance chain")
		}
	}
}

func TestResolve_DuplicateAssignmentsCollapseInChain(t *testing.T) {
	f := newFixture(t)
	base := time.Now()

	first := f.addRow(models.LevelSite, f.siteID, 5, base, models.FeaturePatch, json.RawMessage(`{"v":"a"}`))

	// The same policy assigned twice to the same site.
	dup := first
	dup.AssignmentID = uuid.New()
	dup.AssignedAt = base.Add(time.Minute)
	f.store.rows = append(f.store.rows, dup)

	eff, err := f.svc.Resolve(context.Background(), f.deviceID, access.Unrestricted())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if len(eff.InheritanceChain) != 1 {
		t.Fatalf("duplicate assignments must collapse to one chain entry, got %d", len(eff.InheritanceChain))
	}
	if got := eff.InheritanceChain[0].FeatureTypes; len(got) != 1 {
		t.Errorf("chain entry must not repeat feature types, got %v", got)
	}
}

func TestPreview_RequiresRunner(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, nil, nil)

	_, err := svc.Preview(context.Background(), f.deviceID, models.PreviewChanges{}, access.Unrestricted())
	if err == nil {
		t.Fatal("preview without a runner should fail")
	}
}

func TestCloser_TotalOrder(t *testing.T) {
	now := time.Now()
	idA := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	idB := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	tests := []struct {
		name string
		a, b CandidateRow
		want bool
	}{
		{
			name: "device beats organization regardless of priority",
			a:    CandidateRow{Level: models.LevelDevice, Priority: 100, AssignedAt: now},
			b:    CandidateRow{Level: models.LevelOrganization, Priority: 0, AssignedAt: now},
			want: true,
		},
		{
			name: "lower priority wins within level",
			a:    CandidateRow{Level: models.LevelSite, Priority: 1, AssignedAt: now},
			b:    CandidateRow{Level: models.LevelSite, Priority: 2, AssignedAt: now},
			want: true,
		},
		{
			name: "older wins on priority tie",
			a:    CandidateRow{Level: models.LevelSite, Priority: 1, AssignedAt: now.Add(-time.Minute)},
			b:    CandidateRow{Level: models.LevelSite, Priority: 1, AssignedAt: now},
			want: true,
		},
		{
			name: "id compare as final tie-break",
			a:    CandidateRow{Level: models.LevelSite, Priority: 1, AssignedAt: now, AssignmentID: idA},
			b:    CandidateRow{Level: models.LevelSite, Priority: 1, AssignedAt: now, AssignmentID: idB},
			want: true,
		},
		{
			name: "partner is the least specific",
			a:    CandidateRow{Level: models.LevelPartner, Priority: 0, AssignedAt: now},
			b:    CandidateRow{Level: models.LevelOrganization, Priority: 100, AssignedAt: now},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Closer(tt.a, tt.b); got != tt.want {
				t.Errorf("Closer() = %v, want %v", got, tt.want)
			}
		})
	}
}
