package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/sentraops/siteops-api/internal/dto"
	"github.com/sentraops/siteops-api/internal/models"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
)

type changeSetStoreStub struct {
	sets    map[string]*models.ChangeSet
	records map[string][]*models.ChangeRecord
}

func newChangeSetStoreStub() *changeSetStoreStub {
	return &changeSetStoreStub{
		sets:    make(map[string]*models.ChangeSet),
		records: make(map[string][]*models.ChangeRecord),
	}
}

func (s *changeSetStoreStub) Create(ctx context.Context, cs *models.ChangeSet) error {
	if cs.ID == "" {
		cs.ID = fmt.Sprintf("cs-%d", len(s.sets)+1)
	}
	s.sets[cs.ID] = cs
	return nil
}

func (s *changeSetStoreStub) GetByID(ctx context.Context, id string) (*models.ChangeSet, error) {
	if cs, ok := s.sets[id]; ok {
		clone := *cs
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *changeSetStoreStub) List(ctx context.Context, filter models.ChangeSetFilter) ([]models.ChangeSet, error) {
	result := make([]models.ChangeSet, 0, len(s.sets))
	for _, cs := range s.sets {
		result = append(result, *cs)
	}
	return result, nil
}

func (s *changeSetStoreStub) UpdateApplyOutcome(ctx context.Context, id string, status models.ChangeSetStatus, total, successful, failed int, riskScore float64, appliedAt time.Time) error {
	cs, ok := s.sets[id]
	if !ok {
		return sql.ErrNoRows
	}
	cs.Status = status
	cs.TotalChanges = total
	cs.SuccessfulChanges = successful
	cs.FailedChanges = failed
	cs.RiskScore = riskScore
	cs.AppliedAt = &appliedAt
	return nil
}

func (s *changeSetStoreStub) UpdateRiskScore(ctx context.Context, id string, total int, riskScore float64) error {
	cs, ok := s.sets[id]
	if !ok {
		return sql.ErrNoRows
	}
	cs.TotalChanges = total
	cs.RiskScore = riskScore
	return nil
}

func (s *changeSetStoreStub) MarkRolledBack(ctx context.Context, id string, status models.ChangeSetStatus, by, reason string, at time.Time) error {
	cs, ok := s.sets[id]
	if !ok {
		return sql.ErrNoRows
	}
	if cs.Status != models.ChangeSetStatusApplied && cs.Status != models.ChangeSetStatusPartiallyApplied {
		return sql.ErrNoRows
	}
	cs.Status = status
	cs.RolledBackAt = &at
	cs.RolledBackBy = &by
	cs.RollbackReason = &reason
	return nil
}

func (s *changeSetStoreStub) CreateRecord(ctx context.Context, rec *models.ChangeRecord) error {
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("rec-%s-%d", rec.ChangeSetID, rec.Seq)
	}
	s.records[rec.ChangeSetID] = append(s.records[rec.ChangeSetID], rec)
	return nil
}

func (s *changeSetStoreStub) UpdateRecordOutcome(ctx context.Context, rec *models.ChangeRecord) error {
	for _, records := range s.records {
		for _, stored := range records {
			if stored.ID == rec.ID {
				stored.EntityID = rec.EntityID
				stored.BeforeState = rec.BeforeState
				stored.AfterState = rec.AfterState
				stored.Status = rec.Status
				stored.Error = rec.Error
				return nil
			}
		}
	}
	return sql.ErrNoRows
}

func (s *changeSetStoreStub) ListRecords(ctx context.Context, changesetID string, descending bool) ([]models.ChangeRecord, error) {
	records := s.records[changesetID]
	sorted := make([]models.ChangeRecord, 0, len(records))
	for _, rec := range records {
		sorted = append(sorted, *rec)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if descending {
			return sorted[i].Seq > sorted[j].Seq
		}
		return sorted[i].Seq < sorted[j].Seq
	})
	return sorted, nil
}

func (s *changeSetStoreStub) UpdateRecordRollback(ctx context.Context, recordID string, status models.ChangeRecordStatus, attemptedAt time.Time, success bool, rollbackErr *string) error {
	for _, records := range s.records {
		for _, rec := range records {
			if rec.ID == recordID {
				rec.Status = status
				rec.RollbackAttemptedAt = &attemptedAt
				rec.RollbackSuccess = &success
				rec.RollbackError = rollbackErr
				return nil
			}
		}
	}
	return sql.ErrNoRows
}

// applierStub keeps entities keyed by the payload "code" field and can
// inject one transient duplicate-key failure on create.
type applierStub struct {
	kind       string
	entities   map[string]models.StateMap
	nextID     int
	failCreate int
	ops        []string
}

func newApplierStub(kind string) *applierStub {
	return &applierStub{kind: kind, entities: make(map[string]models.StateMap)}
}

func (a *applierStub) Kind() string { return a.kind }

func cloneState(state models.StateMap) models.StateMap {
	clone := make(models.StateMap, len(state))
	for k, v := range state {
		clone[k] = v
	}
	return clone
}

func (a *applierStub) Lookup(ctx context.Context, payload models.StateMap) (*EntityRef, error) {
	code := payload.StringField("code")
	if code == "" {
		return nil, fmt.Errorf("payload missing code")
	}
	for id, state := range a.entities {
		if state.StringField("code") == code {
			return &EntityRef{ID: id, State: cloneState(state)}, nil
		}
	}
	return nil, nil
}

func (a *applierStub) Create(ctx context.Context, payload models.StateMap) (*EntityRef, error) {
	if a.failCreate > 0 {
		a.failCreate--
		return nil, &pq.Error{Code: "23505"}
	}
	a.nextID++
	id := fmt.Sprintf("%s-%d", a.kind, a.nextID)
	state := make(models.StateMap, len(payload))
	for k, v := range payload {
		state[k] = v
	}
	state["id"] = id
	a.entities[id] = state
	a.ops = append(a.ops, "create:"+state.StringField("code"))
	return &EntityRef{ID: id, State: state}, nil
}

func (a *applierStub) Update(ctx context.Context, id string, fields models.StateMap) (*EntityRef, error) {
	state, ok := a.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", id)
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		state[k] = v
	}
	a.ops = append(a.ops, "update:"+state.StringField("code"))
	return &EntityRef{ID: id, State: state}, nil
}

func (a *applierStub) Delete(ctx context.Context, id string) (bool, error) {
	state, ok := a.entities[id]
	if ok {
		a.ops = append(a.ops, "delete:"+state.StringField("code"))
	}
	delete(a.entities, id)
	return ok, nil
}

func (a *applierStub) Restore(ctx context.Context, state models.StateMap) error {
	id := state.StringField("id")
	if id == "" {
		return fmt.Errorf("restore state missing id")
	}
	a.entities[id] = state
	a.ops = append(a.ops, "restore:"+state.StringField("code"))
	return nil
}

func supervisorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "sup-1", Role: models.RoleSupervisor}
}

func newTestChangeSetService(store *changeSetStoreStub, applier *applierStub, opts ...ChangeSetServiceOption) *ChangeSetService {
	base := []ChangeSetServiceOption{WithEntityAppliers(applier)}
	return NewChangeSetService(store, &auditStub{}, nil, append(base, opts...)...)
}

func sitePayload(code string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"code":%q,"name":"Site %s","active":true}`, code, code))
}

func TestRiskScoreScalesAndCaps(t *testing.T) {
	svc := newTestChangeSetService(newChangeSetStoreStub(), newApplierStub("site"))

	require.InDelta(t, 0.10, svc.CalculateRiskScore(2, false), 1e-9)
	require.InDelta(t, 0.50, svc.CalculateRiskScore(10, false), 1e-9)
	require.InDelta(t, 1.00, svc.CalculateRiskScore(25, false), 1e-9)

	// Scores never shrink as records accumulate.
	prev := 0.0
	for n := 0; n <= 40; n++ {
		score := svc.CalculateRiskScore(n, false)
		require.GreaterOrEqual(t, score, prev)
		prev = score
	}
}

func TestRiskScoreDeleteFloor(t *testing.T) {
	svc := newTestChangeSetService(newChangeSetStoreStub(), newApplierStub("site"))

	require.InDelta(t, 0.50, svc.CalculateRiskScore(1, true), 1e-9)
	require.InDelta(t, 0.50, svc.CalculateRiskScore(5, true), 1e-9)
	// Above the floor the delete no longer matters.
	require.InDelta(t, 0.75, svc.CalculateRiskScore(15, true), 1e-9)
}

func TestTwoPersonApprovalThresholds(t *testing.T) {
	svc := newTestChangeSetService(newChangeSetStoreStub(), newApplierStub("site"))

	require.False(t, svc.RequiresTwoPersonApproval(3, 1.0))
	require.True(t, svc.RequiresTwoPersonApproval(11, 0.0))
	require.True(t, svc.RequiresTwoPersonApproval(25, svc.CalculateRiskScore(25, true)))
	require.False(t, svc.RequiresTwoPersonApproval(5, svc.CalculateRiskScore(5, false)))
	require.True(t, svc.RequiresTwoPersonApproval(5, 0.8))
}

func TestLargeDeleteBatchNeedsTwoApprovers(t *testing.T) {
	svc := newTestChangeSetService(newChangeSetStoreStub(), newApplierStub("site"))

	// 25 changes, one of them a delete.
	risk := svc.CalculateRiskScore(25, true)
	require.GreaterOrEqual(t, risk, 0.5)
	require.True(t, svc.RequiresTwoPersonApproval(25, risk))
}

func TestApplyRecommendationsAllSucceed(t *testing.T) {
	store := newChangeSetStoreStub()
	applier := newApplierStub("site")
	svc := newTestChangeSetService(store, applier)

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "provision sites"}, supervisorClaims())
	require.NoError(t, err)

	detail, err := svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{
			{EntityKind: "site", Action: "CREATE", Payload: sitePayload("BLR-01")},
			{EntityKind: "site", Action: "CREATE", Payload: sitePayload("BLR-02")},
		},
	}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeSetStatusApplied, detail.ChangeSet.Status)
	require.Equal(t, 2, detail.ChangeSet.SuccessfulChanges)
	require.Equal(t, 0, detail.ChangeSet.FailedChanges)
	require.Len(t, detail.Records, 2)
	require.Len(t, applier.entities, 2)
}

func TestApplyRecommendationsIdempotentReRun(t *testing.T) {
	store := newChangeSetStoreStub()
	applier := newApplierStub("site")
	svc := newTestChangeSetService(store, applier)

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "first pass"}, supervisorClaims())
	require.NoError(t, err)
	_, err = svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{{EntityKind: "site", Action: "CREATE", Payload: sitePayload("BLR-01")}},
	}, adminClaims())
	require.NoError(t, err)

	// The changeset is terminal; re-applying it is a conflict, not a
	// duplicate entity.
	_, err = svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{{EntityKind: "site", Action: "CREATE", Payload: sitePayload("BLR-01")}},
	}, adminClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.Len(t, applier.entities, 1)

	// A fresh changeset re-running the same recommendation converges on
	// the existing row instead of creating a second one.
	cs2, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "second pass"}, supervisorClaims())
	require.NoError(t, err)
	detail, err := svc.ApplyRecommendations(context.Background(), cs2.ID, dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{{EntityKind: "site", Action: "CREATE", Payload: sitePayload("BLR-01")}},
	}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeSetStatusApplied, detail.ChangeSet.Status)
	require.Len(t, applier.entities, 1)
}

func TestApplyRetriesDuplicateKeyOnly(t *testing.T) {
	store := newChangeSetStoreStub()
	applier := newApplierStub("site")
	applier.failCreate = 1
	settings := DefaultChangeSetSettings()
	settings.ApplyRetry.MaxAttempts = 3
	settings.ApplyRetry.BaseDelay = time.Millisecond
	settings.ApplyRetry.MaxDelay = 2 * time.Millisecond
	svc := newTestChangeSetService(store, applier, WithChangeSetSettings(settings))

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "race with importer"}, supervisorClaims())
	require.NoError(t, err)
	detail, err := svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{{EntityKind: "site", Action: "CREATE", Payload: sitePayload("BLR-09")}},
	}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeSetStatusApplied, detail.ChangeSet.Status)
	require.Equal(t, 1, detail.ChangeSet.SuccessfulChanges)
}

func TestApplyPartialFailure(t *testing.T) {
	store := newChangeSetStoreStub()
	applier := newApplierStub("site")
	svc := newTestChangeSetService(store, applier)

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "mixed batch"}, supervisorClaims())
	require.NoError(t, err)
	detail, err := svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{
			{EntityKind: "site", Action: "CREATE", Payload: sitePayload("BLR-01")},
			{EntityKind: "site", Action: "UPDATE", Payload: sitePayload("MISSING")},
			{EntityKind: "camera", Action: "CREATE", Payload: sitePayload("CAM-01")},
		},
	}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeSetStatusPartiallyApplied, detail.ChangeSet.Status)
	require.Equal(t, 1, detail.ChangeSet.SuccessfulChanges)
	require.Equal(t, 2, detail.ChangeSet.FailedChanges)
	require.Equal(t, RollbackComplexityHigh, detail.RollbackComplexity)
}

func TestRollbackReversesInReverseOrder(t *testing.T) {
	store := newChangeSetStoreStub()
	applier := newApplierStub("site")
	svc := newTestChangeSetService(store, applier)

	// Seed an existing row the batch will update and then delete another.
	seed, err := applier.Create(context.Background(), models.StateMap{"code": "BLR-01", "name": "Old Name"})
	require.NoError(t, err)

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "rename and add"}, supervisorClaims())
	require.NoError(t, err)
	detail, err := svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{
			{EntityKind: "site", Action: "UPDATE", Payload: json.RawMessage(`{"code":"BLR-01","name":"New Name"}`)},
			{EntityKind: "site", Action: "CREATE", Payload: sitePayload("BLR-02")},
		},
	}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeSetStatusApplied, detail.ChangeSet.Status)
	require.Equal(t, "New Name", applier.entities[seed.ID].StringField("name"))

	applier.ops = nil
	result, err := svc.Rollback(context.Background(), cs.ID, dto.RollbackChangeSetRequest{Reason: "bad rename"}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeSetStatusRolledBack, result.FinalStatus)
	require.Equal(t, 2, result.RolledBack)
	require.Equal(t, 0, result.Failed)

	// The CREATE (seq 2) is reversed before the UPDATE (seq 1).
	require.Equal(t, []string{"delete:BLR-02", "update:BLR-01"}, applier.ops)
	require.Equal(t, "Old Name", applier.entities[seed.ID].StringField("name"))
	require.Len(t, applier.entities, 1)

	// A second rollback finds the changeset terminal.
	_, err = svc.Rollback(context.Background(), cs.ID, dto.RollbackChangeSetRequest{Reason: "again"}, adminClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRollbackRestoresDeletedEntity(t *testing.T) {
	store := newChangeSetStoreStub()
	applier := newApplierStub("site")
	svc := newTestChangeSetService(store, applier)

	seed, err := applier.Create(context.Background(), models.StateMap{"code": "BLR-01", "name": "Keep Me"})
	require.NoError(t, err)

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "decommission"}, supervisorClaims())
	require.NoError(t, err)
	_, err = svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{{EntityKind: "site", Action: "DELETE", Payload: json.RawMessage(`{"code":"BLR-01"}`)}},
	}, adminClaims())
	require.NoError(t, err)
	require.Empty(t, applier.entities)

	result, err := svc.Rollback(context.Background(), cs.ID, dto.RollbackChangeSetRequest{Reason: "still needed"}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeSetStatusRolledBack, result.FinalStatus)
	require.Equal(t, "Keep Me", applier.entities[seed.ID].StringField("name"))
}

func TestRollbackPartialFailureKeepsPartiallyApplied(t *testing.T) {
	store := newChangeSetStoreStub()
	applier := newApplierStub("site")
	svc := newTestChangeSetService(store, applier)

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "mixed"}, supervisorClaims())
	require.NoError(t, err)
	_, err = svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{
			{EntityKind: "site", Action: "CREATE", Payload: sitePayload("BLR-01")},
			{EntityKind: "site", Action: "CREATE", Payload: sitePayload("BLR-02")},
		},
	}, adminClaims())
	require.NoError(t, err)

	// Sabotage one record so its reversal cannot find an applier.
	for _, rec := range store.records[cs.ID] {
		if rec.Seq == 2 {
			rec.EntityKind = "camera"
		}
	}

	result, err := svc.Rollback(context.Background(), cs.ID, dto.RollbackChangeSetRequest{Reason: "undo"}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeSetStatusPartiallyApplied, result.FinalStatus)
	require.Equal(t, 1, result.RolledBack)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.FailedRecord, 1)
}

func TestRollbackSkipsFailedRecords(t *testing.T) {
	store := newChangeSetStoreStub()
	applier := newApplierStub("site")
	svc := newTestChangeSetService(store, applier)

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "partial apply"}, supervisorClaims())
	require.NoError(t, err)
	_, err = svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{
			{EntityKind: "site", Action: "CREATE", Payload: sitePayload("BLR-01")},
			{EntityKind: "site", Action: "UPDATE", Payload: sitePayload("MISSING")},
		},
	}, adminClaims())
	require.NoError(t, err)

	result, err := svc.Rollback(context.Background(), cs.ID, dto.RollbackChangeSetRequest{Reason: "undo"}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeSetStatusRolledBack, result.FinalStatus)
	require.Equal(t, 1, result.RolledBack)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, 0, result.Failed)
}

func TestTrackChangeAssignsSeqAndRaisesRisk(t *testing.T) {
	store := newChangeSetStoreStub()
	svc := newTestChangeSetService(store, newApplierStub("site"))

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "manual tracking"}, supervisorClaims())
	require.NoError(t, err)

	first, err := svc.TrackChange(context.Background(), cs.ID, TrackChangeParams{
		EntityKind: "site", EntityID: "site-1", Action: models.ChangeActionUpdate,
		Before: models.StateMap{"name": "a"}, After: models.StateMap{"name": "b"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, first.Seq)

	second, err := svc.TrackChange(context.Background(), cs.ID, TrackChangeParams{
		EntityKind: "site", EntityID: "site-2", Action: models.ChangeActionDelete,
		Before: models.StateMap{"name": "c"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, second.Seq)

	// The delete raised the score to the floor.
	stored, err := store.GetByID(context.Background(), cs.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, stored.RiskScore, 0.5)
	require.Equal(t, 2, stored.TotalChanges)
}

// Records tracked ahead of apply must be executed by it; a terminal
// changeset never carries a pending record and its counters reconcile.
func TestApplyExecutesTrackedPendingRecords(t *testing.T) {
	store := newChangeSetStoreStub()
	applier := newApplierStub("site")
	svc := newTestChangeSetService(store, applier)

	seed, err := applier.Create(context.Background(), models.StateMap{"code": "BLR-01", "name": "Old Name"})
	require.NoError(t, err)

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "rename plus add"}, supervisorClaims())
	require.NoError(t, err)
	tracked, err := svc.TrackChange(context.Background(), cs.ID, TrackChangeParams{
		EntityKind: "site", EntityID: seed.ID, Action: models.ChangeActionUpdate,
		Before: models.StateMap{"code": "BLR-01", "name": "Old Name"},
		After:  models.StateMap{"code": "BLR-01", "name": "Renamed"},
	})
	require.NoError(t, err)

	detail, err := svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{{EntityKind: "site", Action: "CREATE", Payload: sitePayload("BLR-02")}},
	}, adminClaims())
	require.NoError(t, err)

	require.Equal(t, models.ChangeSetStatusApplied, detail.ChangeSet.Status)
	require.Equal(t, 2, detail.ChangeSet.TotalChanges)
	require.Equal(t, detail.ChangeSet.TotalChanges, detail.ChangeSet.SuccessfulChanges+detail.ChangeSet.FailedChanges)
	require.Len(t, detail.Records, 2)
	for _, rec := range detail.Records {
		require.NotEqual(t, models.ChangeRecordStatusPending, rec.Status)
	}
	require.Equal(t, models.ChangeRecordStatusSuccess, detail.Records[0].Status)
	require.Equal(t, tracked.ID, detail.Records[0].ID)
	require.Equal(t, "Renamed", applier.entities[seed.ID].StringField("name"))
	require.Len(t, applier.entities, 2)
}

func TestApplyWithOnlyTrackedRecords(t *testing.T) {
	store := newChangeSetStoreStub()
	applier := newApplierStub("site")
	svc := newTestChangeSetService(store, applier)

	seed, err := applier.Create(context.Background(), models.StateMap{"code": "BLR-01", "name": "Retired"})
	require.NoError(t, err)

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "tracked decommission"}, supervisorClaims())
	require.NoError(t, err)
	_, err = svc.TrackChange(context.Background(), cs.ID, TrackChangeParams{
		EntityKind: "site", EntityID: seed.ID, Action: models.ChangeActionDelete,
		Before: models.StateMap{"code": "BLR-01", "name": "Retired", "id": seed.ID},
	})
	require.NoError(t, err)

	detail, err := svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeSetStatusApplied, detail.ChangeSet.Status)
	require.Equal(t, 1, detail.ChangeSet.SuccessfulChanges)
	require.Empty(t, applier.entities)

	// An empty apply against a changeset with nothing pending is still
	// a validation error.
	empty, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "empty"}, supervisorClaims())
	require.NoError(t, err)
	_, err = svc.ApplyRecommendations(context.Background(), empty.ID, dto.ApplyRecommendationsRequest{}, adminClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

// Complexity tracks failed records only; a clean batch reports low even
// when it contains deletes.
func TestRollbackComplexityLowWithoutFailures(t *testing.T) {
	store := newChangeSetStoreStub()
	applier := newApplierStub("site")
	svc := newTestChangeSetService(store, applier)

	_, err := applier.Create(context.Background(), models.StateMap{"code": "BLR-01", "name": "Going"})
	require.NoError(t, err)

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "clean delete"}, supervisorClaims())
	require.NoError(t, err)
	detail, err := svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{{EntityKind: "site", Action: "DELETE", Payload: json.RawMessage(`{"code":"BLR-01"}`)}},
	}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, 0, detail.ChangeSet.FailedChanges)
	require.Equal(t, RollbackComplexityLow, detail.RollbackComplexity)
}

func TestApplyRequiresCapability(t *testing.T) {
	svc := newTestChangeSetService(newChangeSetStoreStub(), newApplierStub("site"))
	_, err := svc.ApplyRecommendations(context.Background(), "cs-1", dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{{EntityKind: "site", Action: "CREATE", Payload: sitePayload("X")}},
	}, supervisorClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
}

type approvalReaderStub struct {
	approvals []models.Approval
}

func (a *approvalReaderStub) ListByChangeSet(ctx context.Context, changesetID string) ([]models.Approval, error) {
	return a.approvals, nil
}

func TestApplyBlockedUntilApproved(t *testing.T) {
	store := newChangeSetStoreStub()
	applier := newApplierStub("site")
	reader := &approvalReaderStub{}
	svc := newTestChangeSetService(store, applier, WithApprovalReader(reader))

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "large batch"}, supervisorClaims())
	require.NoError(t, err)

	recs := make([]dto.Recommendation, 0, 12)
	for i := 0; i < 12; i++ {
		recs = append(recs, dto.Recommendation{EntityKind: "site", Action: "CREATE", Payload: sitePayload(fmt.Sprintf("S-%02d", i))})
	}

	// No approvals yet.
	_, err = svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{Recommendations: recs}, adminClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	// Primary approval alone is not enough for a batch above the cap.
	reader.approvals = []models.Approval{{Level: models.ApprovalLevelPrimary, Status: models.ApprovalStatusApproved}}
	_, err = svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{Recommendations: recs}, adminClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	// Both slots approved unblocks the apply.
	reader.approvals = append(reader.approvals, models.Approval{Level: models.ApprovalLevelSecondary, Status: models.ApprovalStatusApproved})
	detail, err := svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{Recommendations: recs}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeSetStatusApplied, detail.ChangeSet.Status)
}

func TestApplyBlockedByRejection(t *testing.T) {
	store := newChangeSetStoreStub()
	reader := &approvalReaderStub{approvals: []models.Approval{
		{Level: models.ApprovalLevelPrimary, Status: models.ApprovalStatusRejected},
	}}
	svc := newTestChangeSetService(store, newApplierStub("site"), WithApprovalReader(reader))

	cs, err := svc.Create(context.Background(), dto.CreateChangeSetRequest{Description: "rejected"}, supervisorClaims())
	require.NoError(t, err)

	recs := make([]dto.Recommendation, 0, 12)
	for i := 0; i < 12; i++ {
		recs = append(recs, dto.Recommendation{EntityKind: "site", Action: "CREATE", Payload: sitePayload(fmt.Sprintf("R-%02d", i))})
	}
	_, err = svc.ApplyRecommendations(context.Background(), cs.ID, dto.ApplyRecommendationsRequest{Recommendations: recs}, adminClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}
