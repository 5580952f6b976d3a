package rtc

// Signaling envelopes exchanged with the SFU. The type field selects the
// payload; unknown types are logged and dropped.
type envelope struct {
	Type string `json:"type"`

	Room  string `json:"room,omitempty"`
	Token string `json:"token,omitempty"`

	Identity     string   `json:"identity,omitempty"`
	Participants []string `json:"participants,omitempty"`

	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`

	TrackID string `json:"track_id,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Muted   bool   `json:"muted,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

const (
	msgJoin            = "join"
	msgJoined          = "joined"
	msgLeave           = "leave"
	msgOffer           = "offer"
	msgAnswer          = "answer"
	msgCandidate       = "candidate"
	msgMute            = "mute"
	msgParticipantJoin = "participant_joined"
	msgParticipantLeft = "participant_left"
	msgError           = "error"
)
