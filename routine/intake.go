package routine

// Field keys collected by the intake routine. Actions and the resume
// resolver read these from the session field map.
const (
	FieldGuardianName   = "guardian_name"
	FieldPlayerName     = "player_name"
	FieldGuardianPhone  = "guardian_phone"
	FieldTeamName       = "team_name"
	FieldNewKitRequired = "new_kit_required"
	FieldKitSize        = "kit_size"
	FieldConfirmed      = "details_confirmed"
	FieldMandateRef     = "mandate_ref"
	FieldPhotoArtifact  = "photo_artifact"
	FieldPhotoURL       = "photo_url"
)

// IntakeName is the routine driving new and resumed registrations.
const IntakeName = "intake"

// Step indices of the intake routine. The resume quadrant table anchors on
// StepKitSize and StepUploadPhoto.
const (
	StepCollectNames = 0
	StepCollectPhone = 1
	StepCollectTeam  = 2
	StepKitGate      = 3
	StepKitSize      = 4
	StepConfirm      = 5
	StepMandate      = 6
	StepNotifyGate   = 7
	StepUploadPhoto  = 8
	StepDone         = 9
)

// Action names referenced by the intake table. The dispatcher registry must
// cover all of these; the wiring layer verifies that at startup.
const (
	ActionFetchKitPolicy = "fetch_kit_policy"
	ActionSaveRecord     = "save_record"
	ActionActivate       = "activate_mandate"
	ActionSendSMS        = "send_confirmation_sms"
	ActionProcessPhoto   = "process_photo"
)

// KitSizes is the closed option list for kit selection.
var KitSizes = []string{"YS", "YM", "YL", "S", "M", "L", "XL"}

// Teams lists the club's team names offered at intake.
var Teams = []string{"Robins", "Kestrels", "Harriers", "Falcons"}

// NewIntakeRoutine builds the registration routine table.
//
// Shape of the flow: collect identity and contact details, fetch the team's
// kit policy, branch on whether a new kit is needed this season, confirm and
// persist the record, activate the payment mandate, send the confirmation
// SMS, then take the roster photo through the async pipeline.
func NewIntakeRoutine() (*Routine, error) {
	steps := []Step{
		{
			Index:  StepCollectNames,
			Name:   "collect_names",
			Prompt: "Welcome to club registration! Please tell me your full name and the player's full name, separated by a comma.",
			Expect: NamesShape{},
			Next:   []Transition{Always{To: StepCollectPhone}},
		},
		{
			Index:  StepCollectPhone,
			Name:   "collect_phone",
			Prompt: "Thanks {{.guardian_name}}. What's the best mobile number to reach you on?",
			Expect: TextShape{MinLen: 7},
			Field:  FieldGuardianPhone,
			Next:   []Transition{Always{To: StepCollectTeam}},
		},
		{
			Index:  StepCollectTeam,
			Name:   "collect_team",
			Prompt: "Which team is {{.player_name}} joining? Options: Robins, Kestrels, Harriers, Falcons.",
			Expect: ChoiceShape{Options: Teams},
			Field:  FieldTeamName,
			Action: ActionFetchKitPolicy,
			Next:   []Transition{Always{To: StepKitGate}},
		},
		{
			// Branches on the kit policy fetched by the previous step's action.
			Index: StepKitGate,
			Name:  "kit_gate",
			Next: []Transition{
				WhenTrue{Field: FieldNewKitRequired, To: StepKitSize},
				Always{To: StepConfirm},
			},
		},
		{
			Index:  StepKitSize,
			Name:   "collect_kit_size",
			Prompt: "The {{.team_name}} need a new kit this season. What size for {{.player_name}}? Options: YS, YM, YL, S, M, L, XL.",
			Expect: ChoiceShape{Options: KitSizes},
			Field:  FieldKitSize,
			Next:   []Transition{Always{To: StepConfirm}},
		},
		{
			// save_record runs on either answer; the action no-ops unless
			// details_confirmed is true.
			Index:  StepConfirm,
			Name:   "confirm_details",
			Prompt: "Here's what I have: {{.player_name}} joining the {{.team_name}}, contact {{.guardian_phone}}. Shall I save the registration? (yes/no)",
			Expect: ConfirmShape{},
			Field:  FieldConfirmed,
			Action: ActionSaveRecord,
			Next: []Transition{
				WhenFalse{Field: FieldConfirmed, To: StepCollectNames},
				Always{To: StepMandate},
			},
		},
		{
			Index:  StepMandate,
			Name:   "activate_mandate",
			Prompt: "Nearly there. Please give your direct debit mandate reference so I can set up the season's subs.",
			Expect: TextShape{MinLen: 4},
			Field:  FieldMandateRef,
			Action: ActionActivate,
			Next:   []Transition{Always{To: StepNotifyGate}},
		},
		{
			Index:  StepNotifyGate,
			Name:   "notify_gate",
			Action: ActionSendSMS,
			Next:   []Transition{Always{To: StepUploadPhoto}},
		},
		{
			Index:       StepUploadPhoto,
			Name:        "upload_photo",
			Prompt:      "Last step: please upload a roster photo of {{.player_name}}.",
			Expect:      FileShape{ContentTypes: []string{"image/jpeg", "image/png"}},
			Field:       FieldPhotoArtifact,
			Action:      ActionProcessPhoto,
			LongRunning: true,
			Next:        []Transition{Always{To: StepDone}},
		},
		{
			Index:    StepDone,
			Name:     "done",
			Prompt:   "All done! {{.player_name}} is registered with the {{.team_name}}. See you at the first session!",
			Terminal: true,
		},
	}
	return NewRoutine(IntakeName, StepCollectNames, steps)
}
