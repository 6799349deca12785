package routine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterflow/rosterflow/core"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	r, err := NewIntakeRoutine()
	require.NoError(t, err)
	e, err := NewEngine(r)
	require.NoError(t, err)
	return e
}

func sessionAt(step int, fields map[string]any) *core.Session {
	s := core.NewSession("s1")
	s.ApplyFieldDelta(fields)
	s.SetPosition(core.Position{Agent: IntakeName, StepIndex: step})
	return s
}

func TestNewRoutine_RejectsDanglingTarget(t *testing.T) {
	_, err := NewRoutine("broken", 0, []Step{
		{Index: 0, Name: "a", Expect: TextShape{}, Field: "x", Next: []Transition{Always{To: 99}}},
		{Index: 1, Name: "end", Terminal: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing step 99")
}

func TestNewRoutine_RejectsMissingTerminal(t *testing.T) {
	_, err := NewRoutine("broken", 0, []Step{
		{Index: 0, Name: "a", Expect: TextShape{}, Field: "x", Next: []Transition{Always{To: 0}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no terminal step")
}

func TestNewRoutine_RejectsTerminalWithTransitions(t *testing.T) {
	_, err := NewRoutine("broken", 0, []Step{
		{Index: 0, Name: "end", Terminal: true, Next: []Transition{Always{To: 0}}},
	})
	require.Error(t, err)
}

func TestAdvance_InvalidInputKeepsPosition(t *testing.T) {
	e := testEngine(t)
	sess := sessionAt(StepCollectNames, nil)

	out, err := e.Advance(sess, Input{Text: "just one name"})
	require.NoError(t, err)

	assert.True(t, out.Reprompt)
	assert.Equal(t, StepCollectNames, out.Next.StepIndex)
	assert.Empty(t, out.Action)
	assert.Empty(t, out.FieldDelta)
	assert.Contains(t, out.Message, "two full names")
}

func TestAdvance_CapturesNamesAndMoves(t *testing.T) {
	e := testEngine(t)
	sess := sessionAt(StepCollectNames, nil)

	out, err := e.Advance(sess, Input{Text: "Dana Reyes, Sam Reyes"})
	require.NoError(t, err)

	assert.False(t, out.Reprompt)
	assert.Equal(t, StepCollectPhone, out.Next.StepIndex)
	assert.Equal(t, "Dana Reyes", out.FieldDelta[FieldGuardianName])
	assert.Equal(t, "Sam Reyes", out.FieldDelta[FieldPlayerName])
	assert.Contains(t, out.Message, "Dana Reyes")
}

func TestAdvance_TargetsAreAlwaysDeclared(t *testing.T) {
	// Property: whatever the input, the next position is either unchanged
	// (validation failure) or one of the declared transition targets.
	e := testEngine(t)
	r, _ := e.Routine(IntakeName)

	inputs := []Input{
		{Text: ""},
		{Text: "yes"},
		{Text: "Robins"},
		{Text: "Dana Reyes, Sam Reyes"},
		{Text: "07700 900123"},
		{File: &FileRef{ArtifactID: "a1", ContentType: "image/png"}},
	}

	for idx := 0; idx < r.Len(); idx++ {
		step, ok := r.Step(idx)
		require.True(t, ok)
		if step.Expect == nil || step.Terminal {
			continue
		}
		declared := map[int]bool{idx: true}
		for _, tr := range step.Next {
			declared[tr.Target()] = true
		}
		for _, in := range inputs {
			sess := sessionAt(idx, map[string]any{
				FieldGuardianName: "Dana Reyes",
				FieldPlayerName:   "Sam Reyes",
				FieldTeamName:     "Robins",
			})
			out, err := e.Advance(sess, in)
			require.NoError(t, err)
			assert.True(t, declared[out.Next.StepIndex],
				"step %d input %+v moved to undeclared %d", idx, in, out.Next.StepIndex)
		}
	}
}

func TestAdvance_ChoiceIsCaseInsensitive(t *testing.T) {
	e := testEngine(t)
	sess := sessionAt(StepCollectTeam, map[string]any{
		FieldGuardianName: "Dana Reyes",
		FieldPlayerName:   "Sam Reyes",
	})

	out, err := e.Advance(sess, Input{Text: "robins"})
	require.NoError(t, err)
	assert.Equal(t, "Robins", out.FieldDelta[FieldTeamName])
	assert.Equal(t, ActionFetchKitPolicy, out.Action)
	assert.Equal(t, StepKitGate, out.Next.StepIndex)
}

func TestRoute_KitGateBranchesOnPolicy(t *testing.T) {
	e := testEngine(t)
	start := core.Position{Agent: IntakeName, StepIndex: StepKitGate}

	pos, actions, _, err := e.Route(start, map[string]any{FieldNewKitRequired: true})
	require.NoError(t, err)
	assert.Equal(t, StepKitSize, pos.StepIndex)
	assert.Empty(t, actions)

	pos, _, msg, err := e.Route(start, map[string]any{FieldNewKitRequired: false})
	require.NoError(t, err)
	assert.Equal(t, StepConfirm, pos.StepIndex)
	assert.NotEmpty(t, msg)
}

func TestRoute_NotifyGateEmitsAction(t *testing.T) {
	e := testEngine(t)
	start := core.Position{Agent: IntakeName, StepIndex: StepNotifyGate}

	pos, actions, _, err := e.Route(start, map[string]any{FieldPlayerName: "Sam Reyes"})
	require.NoError(t, err)
	assert.Equal(t, StepUploadPhoto, pos.StepIndex)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionSendSMS, actions[0].Name)
}

func TestAdvance_ConfirmNoLoopsBack(t *testing.T) {
	e := testEngine(t)
	sess := sessionAt(StepConfirm, map[string]any{
		FieldGuardianName:  "Dana Reyes",
		FieldPlayerName:    "Sam Reyes",
		FieldTeamName:      "Robins",
		FieldGuardianPhone: "07700 900123",
	})

	out, err := e.Advance(sess, Input{Text: "no"})
	require.NoError(t, err)
	assert.Equal(t, StepCollectNames, out.Next.StepIndex)
	assert.Equal(t, false, out.FieldDelta[FieldConfirmed])
}

func TestAdvance_PhotoStepIsLongRunning(t *testing.T) {
	e := testEngine(t)
	sess := sessionAt(StepUploadPhoto, map[string]any{FieldPlayerName: "Sam Reyes"})

	out, err := e.Advance(sess, Input{File: &FileRef{ArtifactID: "art-1", ContentType: "image/jpeg"}})
	require.NoError(t, err)
	assert.Equal(t, ActionProcessPhoto, out.Action)
	assert.True(t, out.LongRunning)
	assert.Equal(t, "art-1", out.FieldDelta[FieldPhotoArtifact])
	assert.True(t, out.Completed)
	assert.Equal(t, StepDone, out.Next.StepIndex)
}

func TestAdvance_RejectsWrongFileType(t *testing.T) {
	e := testEngine(t)
	sess := sessionAt(StepUploadPhoto, nil)

	out, err := e.Advance(sess, Input{File: &FileRef{ArtifactID: "art-1", ContentType: "application/pdf"}})
	require.NoError(t, err)
	assert.True(t, out.Reprompt)
	assert.Equal(t, StepUploadPhoto, out.Next.StepIndex)
}

func TestValidateInput(t *testing.T) {
	e := testEngine(t)
	pos := core.Position{Agent: IntakeName, StepIndex: StepUploadPhoto}

	assert.Error(t, e.ValidateInput(pos, Input{Text: "no file"}))
	assert.NoError(t, e.ValidateInput(pos, Input{File: &FileRef{ArtifactID: "a", ContentType: "image/png"}}))
}
