package bot

import "time"

// Replies holds the fixed texts sent when no model answer is available.
type Replies struct {
	Reset    string
	Apology  string
	Config   string
	Degraded string
	Busy     string
}

func DefaultReplies() Replies {
	return Replies{
		Reset:    "Conversation history cleared. Let's start over!",
		Apology:  "Sorry, something went wrong. Please try again.",
		Config:   "The bot is not configured correctly right now. Please try again later.",
		Degraded: "The service is temporarily degraded. Please try again in a moment.",
		Busy:     "I'm still answering your previous message. Please wait a moment.",
	}
}

func (r Replies) withDefaults() Replies {
	d := DefaultReplies()
	if r.Reset == "" {
		r.Reset = d.Reset
	}
	if r.Apology == "" {
		r.Apology = d.Apology
	}
	if r.Config == "" {
		r.Config = d.Config
	}
	if r.Degraded == "" {
		r.Degraded = d.Degraded
	}
	if r.Busy == "" {
		r.Busy = d.Busy
	}
	return r
}

// Persona is the instruction/acknowledgement pair stored at the head of a new chat's history.
type Persona struct {
	Enabled         bool
	Instruction     string
	Acknowledgement string
}

const (
	DefaultPersonaInstruction     = "You are a friendly assistant in a Telegram chat. Keep answers short and conversational, and reply in the language the user writes in."
	DefaultPersonaAcknowledgement = "Understood. I will keep my answers short, friendly and in your language."
)

type Options struct {
	Replies Replies
	Persona Persona
	// MaxTurns caps stored history; 0 keeps everything.
	MaxTurns      int
	TypingTimeout time.Duration
	ReplyTimeout  time.Duration
}
