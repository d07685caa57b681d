// Package call implements the call-event state machine.
//
// An inbound call produces a call-start webhook followed by zero or more
// mid-call webhooks (recording ready, keypad input) delivered on unrelated
// requests. The service screens the caller against the fraud-risk threshold
// on call start and answers every webhook with an ordered list of
// call-control instructions for the telephony platform.
package call

import (
	"encoding/json"
	"errors"

	"github.com/mbd888/callgate/internal/speech"
)

// ErrInvalidCallStart is returned when a call-start event is missing
// required fields.
var ErrInvalidCallStart = errors.New("call: invalid call-start event")

// Admission decisions.
const (
	DecisionAdmitted     = "admitted"
	DecisionRejected     = "rejected"
	DecisionFailedClosed = "failed_closed" // risk lookup failed; reject is the safe default
)

// Recording parameters, fixed by the screening flow.
const (
	recordFormat     = "ogg"
	recordEndSilence = 4   // seconds of trailing silence that end the recording
	recordEndKey     = "#" // terminating key
	recordTimeout    = 10  // overall recording cap, seconds
)

// noPlaybackText is spoken when keypad input arrives before any recording
// exists. It is not operator-configurable; the prompt catalog covers only the
// screening prompts.
const noPlaybackText = "There is no recording to play back yet."

// Action is one call-control instruction. Concrete types below marshal to
// the platform wire shapes.
type Action any

// TalkAction speaks text to the caller.
type TalkAction struct {
	Action   string `json:"action"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

// RecordAction starts recording the caller.
type RecordAction struct {
	Action       string   `json:"action"`
	Format       string   `json:"format"`
	EventURL     []string `json:"eventUrl"`
	EndOnSilence int      `json:"endOnSilence"`
	EndOnKey     string   `json:"endOnkey"`
	Timeout      int      `json:"timeOut"`
	BeepStart    bool     `json:"beepStart"`
}

// InputAction waits for keypad input.
type InputAction struct {
	Action string   `json:"action"`
	Type   []string `json:"type"`
}

// StreamAction streams an audio URL to the caller.
type StreamAction struct {
	Action    string   `json:"action"`
	StreamURL []string `json:"streamUrl"`
}

func talk(text string) TalkAction {
	return TalkAction{Action: "talk", Text: text, Language: speech.Language}
}

func record(eventURL string) RecordAction {
	return RecordAction{
		Action:       "record",
		Format:       recordFormat,
		EventURL:     []string{eventURL},
		EndOnSilence: recordEndSilence,
		EndOnKey:     recordEndKey,
		Timeout:      recordTimeout,
		BeepStart:    true,
	}
}

func inputDTMF() InputAction {
	return InputAction{Action: "input", Type: []string{"dtmf"}}
}

func stream(url string) StreamAction {
	return StreamAction{Action: "stream", StreamURL: []string{url}}
}

// CallStart is the call-start webhook payload.
type CallStart struct {
	UUID      string `json:"uuid"`
	RegionURL string `json:"region_url"`
	From      string `json:"from"`
}

// Event is a mid-call webhook payload, discriminated by which field is
// present: a recording-ready event carries recording_url, a keypad event
// carries dtmf. Anything else is acknowledged and ignored.
type Event struct {
	RecordingURL *string `json:"recording_url"`
	DTMF         *string `json:"dtmf"`

	// Raw keeps the full payload for diagnostics on unrecognized events.
	Raw json.RawMessage `json:"-"`
}
