// Package dashboard is the set of named operations the dashboard performs
// against its backend. It is the only layer UI code talks to: every method
// knows its route, its reply shape and what a decline or a failed stream means
// for the caller.
package dashboard

import (
	"context"
	"fmt"

	"dashrpc/client"
	"dashrpc/rpcerr"

	"go.uber.org/zap"
)

type Dashboard struct {
	c   *client.Client
	log *zap.Logger
}

func New(c *client.Client, log *zap.Logger) *Dashboard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dashboard{c: c, log: log}
}

// Login returns the user for valid credentials, ErrInvalidCredentials otherwise.
func (d *Dashboard) Login(ctx context.Context, email, password string) (*User, error) {
	return single[User](ctx, d, opLogin, &LoginRequest{Email: email, Password: password})
}

// Register creates an account. A backend refusal (e.g. the email is taken) is
// ErrRegistrationRejected.
func (d *Dashboard) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	return single[User](ctx, d, opRegister, req)
}

// GetUserByID never fails: an unknown user, or any failure to ask, is nil.
func (d *Dashboard) GetUserByID(ctx context.Context, id string) (*User, error) {
	u, err := single[User](ctx, d, opGetUserByID, &UserIDRequest{ID: id})
	if err != nil {
		d.log.Debug("user lookup failed", zap.String("user_id", id), zap.Error(err))
		return nil, nil
	}
	return u, nil
}

// UpdateFactor sets a user's pricing factor and returns the updated user.
func (d *Dashboard) UpdateFactor(ctx context.Context, userID string, factor float64) (*User, error) {
	return single[User](ctx, d, opUpdateFactor, &UpdateFactorRequest{UserID: userID, Factor: factor})
}

func (d *Dashboard) GetChats(ctx context.Context, userID string) ([]Chat, error) {
	return client.Collect[Chat](ctx, d.c, opGetChats.Route, &UserIDRequest{ID: userID}, opGetChats.Policy)
}

func (d *Dashboard) GetMessages(ctx context.Context, chatID string) ([]Message, error) {
	return client.Collect[Message](ctx, d.c, opGetMessages.Route, &ChatIDRequest{ChatID: chatID}, opGetMessages.Policy)
}

// StreamMessages delivers messages posted to chatID until the subscription is
// closed. onError, if set, learns why the stream ended abnormally.
func (d *Dashboard) StreamMessages(ctx context.Context, chatID string, onMessage func(Message), onError func(error)) (*client.Subscription, error) {
	return client.Subscribe(ctx, d.c, opStreamMessages.Route, &ChatIDRequest{ChatID: chatID}, onMessage, onError)
}

func (d *Dashboard) SendMessage(ctx context.Context, chatID, senderID, text string) (*Message, error) {
	return single[Message](ctx, d, opSendMessage, &SendMessageRequest{ChatID: chatID, SenderID: senderID, Text: text})
}

func (d *Dashboard) GetProjectsForUser(ctx context.Context, userID, role string) ([]Project, error) {
	return client.Collect[Project](ctx, d.c, opGetProjectsForUser.Route, &ProjectsRequest{UserID: userID, Role: role}, opGetProjectsForUser.Policy)
}

// GetBoqPdf returns the bill-of-quantities document of a project, byte for byte.
func (d *Dashboard) GetBoqPdf(ctx context.Context, projectID string) ([]byte, error) {
	pdf, err := single[[]byte](ctx, d, opGetBoqPdf, &ProjectIDRequest{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	return *pdf, nil
}

func (d *Dashboard) GetProfilesByDimensions(ctx context.Context, dims Dimensions) ([]Profile, error) {
	return client.Collect[Profile](ctx, d.c, opGetProfilesByDimensions.Route, &dims, opGetProfilesByDimensions.Policy)
}

func single[Resp any](ctx context.Context, d *Dashboard, op Operation, req any) (*Resp, error) {
	resp, err := client.CallWith[Resp](ctx, d.c, op.Route, req, op.ReplyCodec())
	if err != nil {
		return nil, declined(op, err)
	}
	return &resp, nil
}

// declined gives a DomainError the operation's meaning. The result matches
// both the operation's sentinel and rpcerr.IsDomain.
func declined(op Operation, err error) error {
	if op.Decline == nil || !rpcerr.IsDomain(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op.Name, op.Decline, err)
}
