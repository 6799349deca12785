package rosterflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterflow/rosterflow/job"
	"github.com/rosterflow/rosterflow/kit"
	"github.com/rosterflow/rosterflow/orchestrator"
	"github.com/rosterflow/rosterflow/routine"
)

func TestFacadeRunsRegistrationEndToEnd(t *testing.T) {
	rf, err := New(func(o *Options) {
		o.Kit = kit.NewStaticPolicy(map[string]bool{"robins": true}, false)
		o.JobOptions = append(o.JobOptions, func(jo *job.Options) {
			jo.SweepInterval = 10 * time.Millisecond
		})
	})
	require.NoError(t, err)
	rf.Start()
	defer rf.Close()

	ctx := context.Background()
	say := func(sessionID, text string) *orchestrator.TurnResponse {
		resp, err := rf.HandleTurn(ctx, orchestrator.TurnRequest{
			SessionID: sessionID,
			Input:     routine.Input{Text: text},
		})
		require.NoError(t, err)
		return resp
	}

	resp := say("", "Dana Reyes, Milo Reyes")
	sid := resp.SessionID
	require.NotEmpty(t, sid)

	say(sid, "07700900123")
	say(sid, "Robins")
	say(sid, "YM")
	say(sid, "yes")
	resp = say(sid, "MD-123")
	require.Equal(t, "intake/8", resp.PositionMarker)

	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}
	require.NoError(t, rf.opts.ArtifactStore.Save(sid, "upload-1", jpeg))
	resp, err = rf.HandleTurn(ctx, orchestrator.TurnRequest{
		SessionID: sid,
		Input: routine.Input{File: &routine.FileRef{
			ArtifactID:  "upload-1",
			Name:        "milo.jpg",
			ContentType: "image/jpeg",
		}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.JobID)

	require.Eventually(t, func() bool {
		j, err := rf.JobStatus(resp.JobID)
		return err == nil && j.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	j, err := rf.JobStatus(resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusSucceeded, j.Status)
}

func TestFacadeReset(t *testing.T) {
	rf, err := New()
	require.NoError(t, err)
	rf.Start()
	defer rf.Close()

	resp, err := rf.HandleTurn(context.Background(), orchestrator.TurnRequest{
		Input: routine.Input{Text: "Dana Reyes, Milo Reyes"},
	})
	require.NoError(t, err)

	fresh, err := rf.Reset(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.NotEqual(t, resp.SessionID, fresh)
}
