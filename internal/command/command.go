// Package command turns one line of relay input into a typed Command.
//
// The grammar is:
//
//	message <channel_id> <text...>
//	playing <text...>
//	listening_to <text...>
//	watching <text...>
//	competing_in <text...>
//	clear_status
//
// Parsing never guesses: any violation is returned as a *ParseError anchored
// at the token (or end-of-line position) that caused it.
package command

import (
	"strconv"
)

// Command is one of Message, Status or ClearStatus.
type Command interface {
	String() string
	isCommand()
}

// ActivityKind is the kind of presence a Status command sets.
type ActivityKind int

const (
	Playing ActivityKind = iota
	ListeningTo
	Watching
	CompetingIn
)

// Verb returns the command name that selects k.
func (k ActivityKind) Verb() string {
	switch k {
	case Playing:
		return "playing"
	case ListeningTo:
		return "listening_to"
	case Watching:
		return "watching"
	case CompetingIn:
		return "competing_in"
	}
	return "activity(" + strconv.Itoa(int(k)) + ")"
}

// String returns the verb, so kinds log the way they are typed.
func (k ActivityKind) String() string { return k.Verb() }

// KindFromVerb maps a command name back to its ActivityKind.
func KindFromVerb(verb string) (ActivityKind, bool) {
	switch verb {
	case "playing":
		return Playing, true
	case "listening_to":
		return ListeningTo, true
	case "watching":
		return Watching, true
	case "competing_in":
		return CompetingIn, true
	}
	return 0, false
}

// Message posts Content to the channel identified by ChannelID.
type Message struct {
	ChannelID uint64
	Content   string
}

// Status sets the presence activity.
type Status struct {
	Kind ActivityKind
	Name string
}

// ClearStatus removes any presence activity.
type ClearStatus struct{}

func (Message) isCommand()     {}
func (Status) isCommand()      {}
func (ClearStatus) isCommand() {}

// String returns the canonical line for the command. Parsing it yields the
// same command again.
func (m Message) String() string {
	return "message " + strconv.FormatUint(m.ChannelID, 10) + " " + m.Content
}

func (s Status) String() string { return s.Kind.Verb() + " " + s.Name }

func (ClearStatus) String() string { return "clear_status" }

const (
	msgExpectedCommand = "expected command"
	msgUnknownCommand  = "expected 'message', 'playing', 'listening_to', 'watching', 'competing_in', or 'clear_status'"
	msgExpectedChannel = "expected channel ID"
	msgChannelNumber   = "channel ID must be a number"
	msgExpectedMessage = "expected message"
	msgExpectedStatus  = "expected status text"
	msgUnexpectedText  = "unexpected text"
)

// Parse parses one line (without its terminator). Message and status text
// share storage with line; Go strings are immutable, so the result may be
// kept as long as needed.
func Parse(line string) (Command, error) {
	t := NewTokenizer(line)

	name, ok := t.Next()
	if !ok {
		return nil, newParseError(line, name, msgExpectedCommand)
	}

	switch name.Text {
	case "message":
		return parseMessage(t)
	case "clear_status":
		if rest := t.Rest(); !rest.Empty() {
			return nil, newParseError(line, rest, msgUnexpectedText)
		}
		return ClearStatus{}, nil
	}

	kind, ok := KindFromVerb(name.Text)
	if !ok {
		return nil, newParseError(line, name, msgUnknownCommand)
	}
	text := t.Rest()
	if text.Empty() {
		return nil, newParseError(line, text, msgExpectedStatus)
	}
	return Status{Kind: kind, Name: text.Text}, nil
}

func parseMessage(t *Tokenizer) (Command, error) {
	line := t.Line()

	tok, ok := t.Next()
	if !ok {
		return nil, newParseError(line, tok, msgExpectedChannel)
	}
	id, err := strconv.ParseUint(tok.Text, 10, 64)
	if err != nil {
		return nil, newParseError(line, tok, msgChannelNumber)
	}

	content := t.Rest()
	if content.Empty() {
		return nil, newParseError(line, content, msgExpectedMessage)
	}
	return Message{ChannelID: id, Content: content.Text}, nil
}
