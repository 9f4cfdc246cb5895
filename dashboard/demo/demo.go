// Package demo is an in-memory dashboard backend for the reference server:
// seeded users, chats, projects and catalog profiles behind the dashboard's
// routes.
package demo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dashrpc/dashboard"
	"dashrpc/server"

	"github.com/google/uuid"
)

// Store holds the demo data. All methods are safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	users       map[string]*dashboard.User
	passwords   map[string]string // email → password
	chats       map[string]*dashboard.Chat
	messages    map[string][]dashboard.Message // chat id → history
	projects    map[string]*dashboard.Project
	owners      map[string]string // project id → user id
	profiles    []dashboard.Profile
	subscribers map[string]map[chan dashboard.Message]struct{}
	now         func() time.Time
}

// NewStore returns a store seeded with two users, a chat, three projects and a
// small profile catalog.
func NewStore() *Store {
	s := &Store{
		users:       make(map[string]*dashboard.User),
		passwords:   make(map[string]string),
		chats:       make(map[string]*dashboard.Chat),
		messages:    make(map[string][]dashboard.Message),
		projects:    make(map[string]*dashboard.Project),
		owners:      make(map[string]string),
		subscribers: make(map[string]map[chan dashboard.Message]struct{}),
		now:         time.Now,
	}
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	s.addUser(&dashboard.User{ID: "u-1", Name: "Ada Weber", Email: "ada@example.com", Company: "Weber Fenster", Role: "admin", Factor: 1}, "correct-horse")
	s.addUser(&dashboard.User{ID: "u-2", Name: "Bo Lindqvist", Email: "bo@example.com", Role: "dealer", Factor: 0.85}, "battery-staple")

	s.chats["c-1"] = &dashboard.Chat{ID: "c-1", Title: "Order 2231", Participants: []string{"u-1", "u-2"}, UpdatedAt: start}
	s.messages["c-1"] = []dashboard.Message{
		{ID: "m-1", ChatID: "c-1", SenderID: "u-2", Text: "Can we get the revised quote today?", SentAt: start},
		{ID: "m-2", ChatID: "c-1", SenderID: "u-1", Text: "Sending it after lunch.", SentAt: start.Add(4 * time.Minute)},
	}
	s.chats["c-1"].LastMessage = "Sending it after lunch."

	for i, p := range []dashboard.Project{
		{ID: "proj-123456", Name: "Riverside offices", Client: "Hafen GmbH", Status: "quoted", Total: 48210.5},
		{ID: "proj-200001", Name: "School extension", Client: "City of Kiel", Status: "draft", Total: 12900},
		{ID: "proj-200002", Name: "Warehouse doors", Client: "Nordlog", Status: "ordered", Total: 7345.2},
	} {
		p := p
		p.UpdatedAt = start.Add(time.Duration(i) * 24 * time.Hour)
		s.projects[p.ID] = &p
		s.owners[p.ID] = "u-1"
	}
	s.owners["proj-200002"] = "u-2"

	s.profiles = []dashboard.Profile{
		{ID: "p-1", Code: "AL-4020", Name: "Frame 40x20", Width: 40, Height: 20, Thickness: 1.5, PricePerMeter: 6.4},
		{ID: "p-2", Code: "AL-6030", Name: "Frame 60x30", Width: 60, Height: 30, Thickness: 2, PricePerMeter: 9.9},
		{ID: "p-3", Code: "AL-8040", Name: "Mullion 80x40", Width: 80, Height: 40, Thickness: 2.5, PricePerMeter: 15.3},
		{ID: "p-4", Code: "AL-10050", Name: "Transom 100x50", Width: 100, Height: 50, Thickness: 3, PricePerMeter: 21.75},
	}
	return s
}

func (s *Store) addUser(u *dashboard.User, password string) {
	s.users[u.ID] = u
	s.passwords[strings.ToLower(u.Email)] = password
}

// Register exposes the store on svr under the users, chats, projects and
// profiles services.
func Register(svr *server.Server, s *Store) error {
	for name, rcvr := range map[string]any{
		"users":    &Users{s},
		"chats":    &Chats{s},
		"projects": &Projects{s},
		"profiles": &Profiles{s},
	} {
		if err := svr.Register(name, rcvr); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

// A nil reply with a nil error completes the request without a value: the
// backend's way of declining.

type Users struct{ s *Store }

func (u *Users) Login(ctx context.Context, req *dashboard.LoginRequest) (*dashboard.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	email := strings.ToLower(req.Email)
	if pw, ok := u.s.passwords[email]; !ok || pw != req.Password {
		return nil, nil
	}
	for _, user := range u.s.users {
		if strings.ToLower(user.Email) == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, nil
}

func (u *Users) Register(ctx context.Context, req *dashboard.RegisterRequest) (*dashboard.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	email := strings.ToLower(req.Email)
	if _, taken := u.s.passwords[email]; taken {
		return nil, nil
	}
	user := &dashboard.User{ID: "u-" + uuid.NewString()[:8], Name: req.Name, Email: req.Email, Company: req.Company, Role: "dealer", Factor: 1}
	u.s.addUser(user, req.Password)
	cp := *user
	return &cp, nil
}

func (u *Users) GetById(ctx context.Context, req *dashboard.UserIDRequest) (*dashboard.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[req.ID]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

func (u *Users) UpdateFactor(ctx context.Context, req *dashboard.UpdateFactorRequest) (*dashboard.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[req.UserID]
	if !ok {
		return nil, nil
	}
	user.Factor = req.Factor
	cp := *user
	return &cp, nil
}

type Chats struct{ s *Store }

func (c *Chats) GetAll(ctx context.Context, req *dashboard.UserIDRequest, out server.Sink) error {
	c.s.mu.RLock()
	var chats []dashboard.Chat
	for _, chat := range c.s.chats {
		for _, p := range chat.Participants {
			if p == req.ID {
				chats = append(chats, *chat)
				break
			}
		}
	}
	c.s.mu.RUnlock()

	sort.Slice(chats, func(i, j int) bool { return chats[i].UpdatedAt.After(chats[j].UpdatedAt) })
	for _, chat := range chats {
		if err := out.Send(chat); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chats) GetMessages(ctx context.Context, req *dashboard.ChatIDRequest, out server.Sink) error {
	c.s.mu.RLock()
	_, ok := c.s.chats[req.ChatID]
	history := append([]dashboard.Message(nil), c.s.messages[req.ChatID]...)
	c.s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("chat %s not found", req.ChatID)
	}
	for _, m := range history {
		if err := out.Send(m); err != nil {
			return err
		}
	}
	return nil
}

// StreamMessages pushes every message posted to the chat from now on until the
// client cancels.
func (c *Chats) StreamMessages(ctx context.Context, req *dashboard.ChatIDRequest, out server.Sink) error {
	ch := make(chan dashboard.Message, 16)
	c.s.mu.Lock()
	if _, ok := c.s.chats[req.ChatID]; !ok {
		c.s.mu.Unlock()
		return fmt.Errorf("chat %s not found", req.ChatID)
	}
	if c.s.subscribers[req.ChatID] == nil {
		c.s.subscribers[req.ChatID] = make(map[chan dashboard.Message]struct{})
	}
	c.s.subscribers[req.ChatID][ch] = struct{}{}
	c.s.mu.Unlock()

	defer func() {
		c.s.mu.Lock()
		delete(c.s.subscribers[req.ChatID], ch)
		c.s.mu.Unlock()
	}()

	for {
		select {
		case m := <-ch:
			if err := out.Send(m); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Chats) SendMessage(ctx context.Context, req *dashboard.SendMessageRequest) (*dashboard.Message, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	chat, ok := c.s.chats[req.ChatID]
	if !ok {
		return nil, nil
	}
	m := dashboard.Message{
		ID:       "m-" + uuid.NewString()[:8],
		ChatID:   req.ChatID,
		SenderID: req.SenderID,
		Text:     req.Text,
		SentAt:   c.s.now().UTC(),
	}
	c.s.messages[req.ChatID] = append(c.s.messages[req.ChatID], m)
	chat.LastMessage = m.Text
	chat.UpdatedAt = m.SentAt

	for sub := range c.s.subscribers[req.ChatID] {
		select {
		case sub <- m:
		default: // slow subscriber, drop
		}
	}
	return &m, nil
}

type Projects struct{ s *Store }

func (p *Projects) GetAllForUser(ctx context.Context, req *dashboard.ProjectsRequest, out server.Sink) error {
	p.s.mu.RLock()
	var projects []dashboard.Project
	for id, project := range p.s.projects {
		// admins see every project
		if req.Role == "admin" || p.s.owners[id] == req.UserID {
			projects = append(projects, *project)
		}
	}
	p.s.mu.RUnlock()

	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	for _, project := range projects {
		if err := out.Send(project); err != nil {
			return err
		}
	}
	return nil
}

// GetBoqPdf renders a one-page bill-of-quantities document.
func (p *Projects) GetBoqPdf(ctx context.Context, req *dashboard.ProjectIDRequest) ([]byte, error) {
	p.s.mu.RLock()
	project, ok := p.s.projects[req.ProjectID]
	p.s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return boqPDF(project), nil
}

type Profiles struct{ s *Store }

func (p *Profiles) GetByDimensions(ctx context.Context, req *dashboard.Dimensions, out server.Sink) error {
	for _, profile := range p.s.profiles {
		if !req.Match(profile) {
			continue
		}
		if err := out.Send(profile); err != nil {
			return err
		}
	}
	return nil
}
