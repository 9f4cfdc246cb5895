package dashboard

import (
	"errors"
	"fmt"

	"dashrpc/client"
	"dashrpc/codec"
	"dashrpc/route"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrRegistrationRejected = errors.New("registration rejected")
	ErrNotFound             = errors.New("not found")
)

// Shape is how an operation's route replies.
type Shape int

const (
	SingleReply Shape = iota
	MultiReply        // accumulated into a list
	PushReply         // delivered item by item until closed
)

func (s Shape) String() string {
	switch s {
	case MultiReply:
		return "multi"
	case PushReply:
		return "push"
	}
	return "single"
}

// Operation declares how one dashboard operation talks to the backend.
type Operation struct {
	Name    string
	Route   string
	Shape   Shape
	Raw     bool                // reply is a binary document, not JSON
	Decline error               // single reply: what a completion without value means
	Policy  client.StreamPolicy // multi reply: what a failed stream returns
}

var (
	opLogin                   = Operation{Name: "Login", Route: "users.login", Decline: ErrInvalidCredentials}
	opRegister                = Operation{Name: "Register", Route: "users.register", Decline: ErrRegistrationRejected}
	opGetUserByID             = Operation{Name: "GetUserByID", Route: "users.getById", Decline: ErrNotFound}
	opUpdateFactor            = Operation{Name: "UpdateFactor", Route: "users.updateFactor", Decline: ErrNotFound}
	opGetChats                = Operation{Name: "GetChats", Route: "chats.getAll", Shape: MultiReply, Policy: client.DegradeToEmpty}
	opGetMessages             = Operation{Name: "GetMessages", Route: "chats.getMessages", Shape: MultiReply, Policy: client.DegradeToEmpty}
	opStreamMessages          = Operation{Name: "StreamMessages", Route: "chats.streamMessages", Shape: PushReply}
	opSendMessage             = Operation{Name: "SendMessage", Route: "chats.sendMessage", Decline: ErrNotFound}
	opGetProjectsForUser      = Operation{Name: "GetProjectsForUser", Route: "projects.getAllForUser", Shape: MultiReply, Policy: client.DegradeToEmpty}
	opGetBoqPdf               = Operation{Name: "GetBoqPdf", Route: "projects.getBoqPdf", Raw: true, Decline: ErrNotFound}
	opGetProfilesByDimensions = Operation{Name: "GetProfilesByDimensions", Route: "profiles.getByDimensions", Shape: MultiReply, Policy: client.DegradeToEmpty}
)

var operations = []Operation{
	opLogin,
	opRegister,
	opGetUserByID,
	opUpdateFactor,
	opGetChats,
	opGetMessages,
	opStreamMessages,
	opSendMessage,
	opGetProjectsForUser,
	opGetBoqPdf,
	opGetProfilesByDimensions,
}

// ReplyCodec decodes the operation's single reply.
func (op Operation) ReplyCodec() codec.Codec {
	if op.Raw {
		return codec.GetCodec(codec.CodecTypeRaw)
	}
	return codec.GetCodec(codec.CodecTypeJSON)
}

func init() {
	for _, op := range operations {
		route.MustEncode(op.Route)
		if op.Raw && op.Shape != SingleReply {
			panic(fmt.Sprintf("dashboard: %s: raw replies are single-reply only", op.Name))
		}
	}
}

// Operations lists every operation in declaration order.
func Operations() []Operation {
	return append([]Operation(nil), operations...)
}
