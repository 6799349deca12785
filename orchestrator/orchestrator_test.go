package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterflow/rosterflow/artifact"
	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/job"
	"github.com/rosterflow/rosterflow/kit"
	"github.com/rosterflow/rosterflow/notify"
	"github.com/rosterflow/rosterflow/payment"
	"github.com/rosterflow/rosterflow/photo"
	"github.com/rosterflow/rosterflow/record"
	"github.com/rosterflow/rosterflow/resume"
	"github.com/rosterflow/rosterflow/routine"
	"github.com/rosterflow/rosterflow/session"
	"github.com/rosterflow/rosterflow/tool"
)

// jpegBytes carries a valid JPEG magic number for content sniffing.
var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}

type harness struct {
	orch     *Orchestrator
	sessions *session.InMemoryStore
	records  *record.InMemoryStore
	arts     *artifact.InMemoryStore
	payments *payment.Fake
	sms      *notify.Fake
	jobs     *job.Manager
	pix      *photo.Passthrough
}

func newHarness(t *testing.T, newKitByTeam map[string]bool) *harness {
	t.Helper()

	h := &harness{
		sessions: session.NewInMemoryStore(),
		records:  record.NewInMemoryStore(),
		arts:     artifact.NewInMemoryStore(),
		payments: payment.NewFake(),
		sms:      notify.NewFake(),
		pix:      &photo.Passthrough{},
	}
	policy := kit.NewStaticPolicy(newKitByTeam, false)

	intake, err := routine.NewIntakeRoutine()
	require.NoError(t, err)
	engine, err := routine.NewEngine(intake)
	require.NoError(t, err)

	dispatcher, err := tool.NewDispatcher(tool.IntakeTools(), func(o *tool.Options) {
		o.Collaborators = core.ToolContextConfig{
			Records:   h.records,
			Artifacts: h.arts,
			Payments:  h.payments,
			Notifier:  h.sms,
			Photos:    h.pix,
			Kit:       policy,
		}
		o.Retry = tool.RetryPolicy{MaxAttempts: 1, Backoff: time.Millisecond, PerCallTimeout: 5 * time.Second}
	})
	require.NoError(t, err)
	require.NoError(t, dispatcher.Verify(intake.Actions()))

	h.jobs = job.NewManager(func(o *job.Options) {
		o.Workers = 2
		o.JobTimeout = 5 * time.Second
		o.SweepInterval = 10 * time.Millisecond
	})
	h.jobs.Start()
	t.Cleanup(h.jobs.Stop)

	h.orch, err = New(h.sessions, engine, dispatcher, func(o *Options) {
		o.Resolver = resume.NewResolver(h.records, policy)
		o.Jobs = h.jobs
		o.Artifacts = h.arts
	})
	require.NoError(t, err)
	return h
}

func (h *harness) say(t *testing.T, sessionID, text string) *TurnResponse {
	t.Helper()
	resp, err := h.orch.HandleTurn(context.Background(), TurnRequest{
		SessionID: sessionID,
		Input:     routine.Input{Text: text},
	})
	require.NoError(t, err)
	return resp
}

func (h *harness) upload(t *testing.T, sessionID string) *TurnResponse {
	t.Helper()
	require.NoError(t, h.arts.Save(sessionID, "upload-1", jpegBytes))
	resp, err := h.orch.HandleTurn(context.Background(), TurnRequest{
		SessionID: sessionID,
		Input: routine.Input{File: &routine.FileRef{
			ArtifactID:  "upload-1",
			Name:        "milo.jpg",
			ContentType: "image/jpeg",
		}},
	})
	require.NoError(t, err)
	return resp
}

func (h *harness) awaitJob(t *testing.T, jobID string) *job.Job {
	t.Helper()
	var done *job.Job
	require.Eventually(t, func() bool {
		j, err := h.jobs.Status(jobID)
		if err != nil {
			return false
		}
		done = j
		return j.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return done
}

// walkToUpload drives a fresh session through the synchronous steps and
// returns the session id positioned at the photo upload step.
func (h *harness) walkToUpload(t *testing.T, needsKit bool) string {
	t.Helper()
	resp := h.say(t, "", "Dana Reyes, Milo Reyes")
	sid := resp.SessionID
	assert.Equal(t, "intake/1", resp.PositionMarker)

	resp = h.say(t, sid, "07700900123")
	assert.Equal(t, "intake/2", resp.PositionMarker)

	resp = h.say(t, sid, "Robins")
	if needsKit {
		require.Equal(t, "intake/4", resp.PositionMarker, "new kit needed lands on size selection")
		resp = h.say(t, sid, "YM")
	}
	require.Equal(t, "intake/5", resp.PositionMarker)

	resp = h.say(t, sid, "yes")
	require.Equal(t, "intake/6", resp.PositionMarker)

	resp = h.say(t, sid, "MD-123")
	require.Equal(t, "intake/8", resp.PositionMarker, "notify gate is traversed transparently")
	return sid
}

func TestNewRegistrationFullFlow(t *testing.T) {
	h := newHarness(t, map[string]bool{"Robins": true})
	sid := h.walkToUpload(t, true)

	// Synchronous effects all landed.
	rec, err := h.records.Find(context.Background(), core.Identity{GuardianName: "Dana Reyes", PlayerName: "Milo Reyes"})
	require.NoError(t, err)
	assert.Equal(t, "Robins", rec.TeamName)
	assert.Equal(t, "YM", rec.KitSize)
	assert.Equal(t, 1, h.payments.Activations("MD-123"))
	require.Len(t, h.sms.Sent(), 1)
	assert.Equal(t, "07700900123", h.sms.Sent()[0].Destination)

	// The upload goes async and completes the session.
	resp := h.upload(t, sid)
	require.NotEmpty(t, resp.JobID)
	assert.Equal(t, string(job.StatusPending), resp.JobStatus)

	done := h.awaitJob(t, resp.JobID)
	assert.Equal(t, job.StatusSucceeded, done.Status)

	sess, err := h.sessions.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, sess.Status)
	assert.Contains(t, sess.FieldString(routine.FieldPhotoURL), "artifact://")

	rec, err = h.records.Find(context.Background(), core.Identity{GuardianName: "Dana Reyes", PlayerName: "Milo Reyes"})
	require.NoError(t, err)
	assert.Contains(t, rec.PhotoURL, "upload-1-processed")
}

func TestLookupMissContinuesAsNew(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.say(t, "", "Nova Quinn, Remy Quinn")
	assert.Equal(t, "intake/1", resp.PositionMarker, "no record means the new-registration path")
	assert.NotEmpty(t, resp.SessionID)
	assert.Zero(t, h.records.Len())
}

func TestResumeReturningPlayerLandsOnUpload(t *testing.T) {
	h := newHarness(t, map[string]bool{"Kestrels": false})
	h.records.Seed(core.ExternalRecord{
		Identity:               core.Identity{GuardianName: "Dana Reyes", PlayerName: "Milo Reyes"},
		PriorSeasonParticipant: true,
		TeamName:               "Kestrels",
		KitSize:                "YM",
		Extra:                  map[string]any{"guardian_phone": "07700900123"},
	})

	resp := h.say(t, "", "Dana Reyes, Milo Reyes")
	assert.Equal(t, "intake/8", resp.PositionMarker)
	assert.Contains(t, resp.Message, "Welcome back")

	sess, err := h.sessions.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Kestrels", sess.FieldString(routine.FieldTeamName))
	assert.Equal(t, "07700900123", sess.FieldString(routine.FieldGuardianPhone))
}

func TestResumeNewKitLandsOnSizeSelection(t *testing.T) {
	h := newHarness(t, map[string]bool{"Harriers": true})
	h.records.Seed(core.ExternalRecord{
		Identity:               core.Identity{GuardianName: "Dana Reyes", PlayerName: "Milo Reyes"},
		PriorSeasonParticipant: true,
		TeamName:               "Harriers",
	})

	resp := h.say(t, "", "dana reyes, MILO REYES")
	assert.Equal(t, "intake/4", resp.PositionMarker)
}

func TestResumeOutageFallsBackToNewPath(t *testing.T) {
	h := newHarness(t, nil)
	h.records.FailWith(core.E(core.CodeCollaboratorTransient, "db", "down"))

	resp := h.say(t, "", "Dana Reyes, Milo Reyes")
	assert.Equal(t, "intake/1", resp.PositionMarker, "lookup outage never blocks the turn")

	h.records.FailWith(nil)
}

func TestInvalidInputRepromptsWithoutAdvancing(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.say(t, "", "Dana Reyes, Milo Reyes")
	sid := resp.SessionID

	resp = h.say(t, sid, "x")
	assert.Equal(t, "intake/1", resp.PositionMarker, "too-short phone keeps the step")

	resp = h.say(t, sid, "07700900123")
	assert.Equal(t, "intake/2", resp.PositionMarker)

	resp = h.say(t, sid, "Sharks")
	assert.Equal(t, "intake/2", resp.PositionMarker, "unknown team keeps the step")
	assert.Zero(t, h.records.Len(), "no action runs on invalid input")
}

func TestDeclinedConfirmationLoopsBack(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.say(t, "", "Dana Reyes, Milo Reyes")
	sid := resp.SessionID
	h.say(t, sid, "07700900123")
	h.say(t, sid, "Falcons")

	resp = h.say(t, sid, "no")
	assert.Equal(t, "intake/0", resp.PositionMarker, "declining restarts data collection")
	assert.Zero(t, h.records.Len(), "nothing is persisted on a declined confirmation")
}

func TestRepeatMandateIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.walkToUpload(t, false)
	require.Equal(t, 1, h.payments.Activations("MD-123"))

	// A second session for the same identity resumes from the record and
	// replays the mandate step; the ledger absorbs the duplicate.
	resp := h.say(t, "", "Dana Reyes, Milo Reyes")
	sid2 := resp.SessionID
	require.NotEqual(t, sid, sid2)
	require.Equal(t, "intake/4", resp.PositionMarker, "existing record resumes at kit selection")
	h.say(t, sid2, "YM")
	h.say(t, sid2, "yes")
	h.say(t, sid2, "MD-123")

	assert.Equal(t, 1, h.payments.Activations("MD-123"), "same mandate reference activates exactly once")
}

func TestTurnRejectedWhileJobInFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.pix.Delay = 300 * time.Millisecond
	sid := h.walkToUpload(t, false)

	resp := h.upload(t, sid)
	require.NotEmpty(t, resp.JobID)

	busy := h.say(t, sid, "hello?")
	assert.Equal(t, resp.JobID, busy.JobID, "concurrent turn is redirected to the running job")
	assert.Contains(t, busy.Message, "still working")

	done := h.awaitJob(t, resp.JobID)
	assert.Equal(t, job.StatusSucceeded, done.Status)
}

func TestAsyncSubmitIsFastDespiteSlowWork(t *testing.T) {
	h := newHarness(t, nil)
	h.pix.Delay = 3 * time.Second
	sid := h.walkToUpload(t, false)

	start := time.Now()
	resp := h.upload(t, sid)
	require.NotEmpty(t, resp.JobID)
	assert.Less(t, time.Since(start), 2*time.Second, "submission never waits for the pipeline")

	st, err := h.orch.JobStatus(resp.JobID)
	require.NoError(t, err)
	assert.False(t, st.Status.Terminal())

	done := h.awaitJob(t, resp.JobID)
	assert.Equal(t, job.StatusSucceeded, done.Status)
	payload, ok := done.Result.Payload.(map[string]any)
	require.True(t, ok, "terminal payload is a map, whatever the tool returned")
	assert.Equal(t, true, payload["completed"])
	assert.Equal(t, "intake/9", payload["position_marker"])
	assert.NotEmpty(t, payload["message"])
}

func TestForceSyncUploadCompletesInline(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.walkToUpload(t, false)

	require.NoError(t, h.arts.Save(sid, "upload-1", jpegBytes))
	resp, err := h.orch.HandleTurn(context.Background(), TurnRequest{
		SessionID: sid,
		Input: routine.Input{File: &routine.FileRef{
			ArtifactID:  "upload-1",
			ContentType: "image/jpeg",
		}},
		ForceSync: true,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.JobID)
	assert.True(t, resp.Completed)
	assert.Equal(t, "intake/9", resp.PositionMarker)
}

func TestTransientActionFailureKeepsPosition(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.say(t, "", "Dana Reyes, Milo Reyes")
	sid := resp.SessionID
	h.say(t, sid, "07700900123")
	h.say(t, sid, "Robins")
	h.say(t, sid, "yes")

	h.payments.FailNext(1, core.E(core.CodeCollaboratorTransient, "payments", "gateway timeout"))
	resp = h.say(t, sid, "MD-999")
	assert.Equal(t, "intake/6", resp.PositionMarker, "failed activation leaves the step retryable")
	assert.Contains(t, resp.Message, "try that again")

	resp = h.say(t, sid, "MD-999")
	assert.Equal(t, "intake/8", resp.PositionMarker)
	assert.Equal(t, 1, h.payments.Activations("MD-999"))
}

func TestResetIssuesFreshSessionAndKeepsRecords(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.walkToUpload(t, false)
	require.Equal(t, 1, h.records.Len())

	fresh, err := h.orch.Reset(context.Background(), sid)
	require.NoError(t, err)
	assert.NotEqual(t, sid, fresh)

	_, err = h.sessions.Get(context.Background(), sid)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.Equal(t, 1, h.records.Len(), "reset never touches the external datastore")

	ids, err := h.arts.List(sid)
	require.NoError(t, err)
	assert.Empty(t, ids, "staged uploads are purged on reset")
}

func TestTerminalPollsAreStable(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.walkToUpload(t, false)

	resp := h.upload(t, sid)
	done := h.awaitJob(t, resp.JobID)
	require.Equal(t, job.StatusSucceeded, done.Status)

	for i := 0; i < 3; i++ {
		again, err := h.orch.JobStatus(resp.JobID)
		require.NoError(t, err)
		assert.Equal(t, done.Status, again.Status)
		assert.Equal(t, done.Finished, again.Finished)
	}
}
