package room

import (
	"context"
	"crypto/rand"
	"fmt"
	mrand "math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-Arena/internal/obslog"
	"go.uber.org/zap"
)

// Config holds the manager's tunables.
type Config struct {
	DefaultTimeControl time.Duration
	DisconnectGrace    time.Duration
	BotThinkDelay      time.Duration
	BotMoveTimeout     time.Duration
	DefaultDifficulty  string
	RecordTimeout      time.Duration
	// FormingTTL drops forming rooms nobody is attached to.
	FormingTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultTimeControl: 300 * time.Second,
		DisconnectGrace:    15 * time.Second,
		BotThinkDelay:      500 * time.Millisecond,
		BotMoveTimeout:     3 * time.Second,
		DefaultDifficulty:  "level3",
		RecordTimeout:      5 * time.Second,
		FormingTTL:         10 * time.Minute,
	}
}

type Option func(*Manager)

func WithAdvisor(a Advisor) Option { return func(m *Manager) { m.advisor = a } }

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithConfig(cfg Config) Option { return func(m *Manager) { m.cfg = cfg } }

func WithRandSeed(seed int64) Option {
	return func(m *Manager) { m.rand = mrand.New(mrand.NewSource(seed)) }
}

// Manager is the room registry. Its lock guards only the two maps and is
// never held while a session lock is taken, or the other way round.
// Calls for a single ConnID must be serialized by the transport.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Session
	conns map[ConnID]*Session

	rules    RulesEngine
	advisor  Advisor
	recorder GameRecorder
	out      Broadcaster
	sup      *Supervisor
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	randMu sync.Mutex
	rand   *mrand.Rand

	ctx    context.Context
	cancel context.CancelFunc
	bots   sync.WaitGroup
}

func NewManager(rules RulesEngine, recorder GameRecorder, out Broadcaster, opts ...Option) *Manager {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if out == nil {
		out = nopBroadcaster{}
	}
	m := &Manager{
		rooms:    make(map[string]*Session),
		conns:    make(map[ConnID]*Session),
		rules:    rules,
		recorder: recorder,
		out:      out,
		cfg:      DefaultConfig(),
		logger:   obslog.L(),
		now:      time.Now,
		rand:     mrand.New(mrand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.sup = newSupervisor(m.cfg.DisconnectGrace, m.now, m, m.logger)
	return m
}

// Close stops pending bot turns and waits for them to return.
func (m *Manager) Close() {
	m.cancel()
	m.bots.Wait()
}

func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) randomSeat() Seat {
	m.randMu.Lock()
	defer m.randMu.Unlock()
	return Seat(m.rand.Intn(2))
}

func (m *Manager) randomIndex(n int) int {
	m.randMu.Lock()
	defer m.randMu.Unlock()
	return m.rand.Intn(n)
}

func (m *Manager) normalize(opts Options) Options {
	if opts.Mode == "" {
		opts.Mode = ModeFriend
	}
	if opts.TimeControl <= 0 {
		opts.TimeControl = m.cfg.DefaultTimeControl
	}
	if strings.TrimSpace(opts.Difficulty) == "" {
		opts.Difficulty = m.cfg.DefaultDifficulty
	}
	return opts
}

// CreateRoom opens room id with creator seated. A finished room under the
// same id is replaced; a live one yields ErrRoomTaken.
func (m *Manager) CreateRoom(ctx context.Context, id string, conn ConnID, creator Participant, opts Options) (Snapshot, Role, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.TrimSpace(creator.ID) == "" {
		return Snapshot{}, "", ErrInvalidArgs
	}
	opts = m.normalize(opts)
	now := m.now()
	s, err := newSession(id, opts, m.rules, m.sup, now)
	if err != nil {
		return Snapshot{}, "", err
	}

	seat := m.randomSeat()
	if opts.Seat != nil {
		seat = *opts.Seat
	}
	if opts.Mode == ModeBot {
		seat = SeatA
	}
	s.bindLocked(seat, creator, conn)
	if opts.Mode == ModeBot {
		s.bindLocked(seat.Opponent(), botParticipant(), "")
		s.activateLocked(now)
	}

	m.mu.Lock()
	if existing, ok := m.rooms[id]; ok && !existing.Terminal() && !existing.retired.Load() {
		m.mu.Unlock()
		return Snapshot{}, "", ErrRoomTaken
	}
	m.rooms[id] = s
	prev := m.attachLocked(conn, s)
	m.mu.Unlock()
	if prev != nil {
		m.release(prev, conn)
	}

	s.mu.Lock()
	m.scheduleBotLocked(s)
	snap := s.snapshotLocked(now).ForRole(seat.Role())
	s.mu.Unlock()

	m.logger.Info("room_created",
		zap.String("room_id", id),
		zap.String("mode", string(opts.Mode)),
		zap.String("creator", creator.ID),
		zap.String("seat", seat.String()),
		zap.Duration("time_control", opts.TimeControl),
	)
	m.out.Send(conn, Event{Type: EventRoomCreated, Payload: RoomPayload{Room: id, Role: seat.Role(), Snapshot: snap}})
	return snap, seat.Role(), nil
}

// CreateMatchRoom opens a room for two paired identities. Neither is
// connected yet; the room starts once both join.
func (m *Manager) CreateMatchRoom(ctx context.Context, a, b Participant, tc time.Duration) (string, Role, Role, error) {
	opts := m.normalize(Options{Mode: ModeMatch, TimeControl: tc})
	now := m.now()
	seatA := m.randomSeat()

	for attempt := 0; attempt < 8; attempt++ {
		id, err := roomCode("M")
		if err != nil {
			return "", "", "", err
		}
		s, err := newSession(id, opts, m.rules, m.sup, now)
		if err != nil {
			return "", "", "", err
		}
		s.reserved = true
		s.bindLocked(seatA, a, "")
		s.bindLocked(seatA.Opponent(), b, "")

		m.mu.Lock()
		if _, taken := m.rooms[id]; taken {
			m.mu.Unlock()
			continue
		}
		m.rooms[id] = s
		m.mu.Unlock()

		m.logger.Info("match_room_created",
			zap.String("room_id", id),
			zap.String("white", s.seats[SeatA].player.ID),
			zap.String("black", s.seats[SeatB].player.ID),
			zap.Duration("time_control", opts.TimeControl),
		)
		return id, seatA.Role(), seatA.Opponent().Role(), nil
	}
	return "", "", "", fmt.Errorf("allocate match room: %w", ErrRoomTaken)
}

// JoinRoom attaches conn to room id. Resolution order: same connection,
// disconnected seat with the same identity, spectator, first empty seat.
func (m *Manager) JoinRoom(ctx context.Context, id string, conn ConnID, who Participant, spectate bool) (Snapshot, Role, error) {
	s := m.lookup(strings.TrimSpace(id))
	if s == nil {
		return Snapshot{}, "", ErrRoomNotFound
	}
	now := m.now()

	s.mu.Lock()
	if s.retired.Load() {
		s.mu.Unlock()
		return Snapshot{}, "", ErrRoomNotFound
	}
	var (
		role      Role
		ds        []delivery
		seated    bool
		activated bool
	)
	if seat, ok := s.seatOfConnLocked(conn); ok {
		role = seat.Role()
	} else if _, ok := s.spectators[conn]; ok {
		role = RoleSpectator
	} else if seat, ok := s.seatOfIdentityLocked(who.ID); ok {
		s.seats[seat].conn = conn
		m.sup.disarmLocked(s, seat)
		role = seat.Role()
		seated = true
		if s.phase != PhaseForming {
			ds = append(ds, s.broadcastLocked(conn, Event{Type: EventPlayerReconnected, Payload: ReconnectPayload{Seat: role}})...)
		}
		activated = s.maybeActivateLocked(now)
	} else if spectate || s.bothBoundLocked() {
		s.spectators[conn] = struct{}{}
		role = RoleSpectator
		ds = append(ds, s.broadcastLocked(conn, Event{Type: EventSpectatorJoined, Payload: SpectatorPayload{Count: len(s.spectators)}})...)
	} else {
		seat, _ := s.firstEmptySeatLocked()
		s.bindLocked(seat, who, conn)
		role = seat.Role()
		seated = true
		activated = s.maybeActivateLocked(now)
	}
	if activated {
		ds = append(ds, m.armVacantLocked(s)...)
		m.scheduleBotLocked(s)
	}
	snap := s.snapshotLocked(now)
	if seated {
		ds = append(ds, s.fanoutLocked(conn, func(r Role) Event {
			return Event{Type: EventGameUpdate, Payload: GameUpdatePayload{Snapshot: snap.ForRole(r)}}
		})...)
	}
	s.mu.Unlock()

	m.mu.Lock()
	prev := m.attachLocked(conn, s)
	m.mu.Unlock()
	if prev != nil {
		m.release(prev, conn)
	}

	mine := snap.ForRole(role)
	m.logger.Info("room_joined",
		zap.String("room_id", s.id),
		zap.String("identity", who.ID),
		zap.String("role", string(role)),
		zap.Bool("activated", activated),
	)
	m.out.Send(conn, Event{Type: EventRoomJoined, Payload: RoomPayload{Room: s.id, Role: role, Snapshot: mine}})
	m.flush(ds)
	return mine, role, nil
}

// attachLocked points conn at s and returns the room it was attached to
// before, if different.
func (m *Manager) attachLocked(conn ConnID, s *Session) *Session {
	if conn == "" {
		return nil
	}
	prev := m.conns[conn]
	m.conns[conn] = s
	if prev == s {
		return nil
	}
	return prev
}

// HandleDisconnect detaches a dropped connection from its room.
func (m *Manager) HandleDisconnect(ctx context.Context, conn ConnID) {
	m.mu.Lock()
	s := m.conns[conn]
	delete(m.conns, conn)
	m.mu.Unlock()
	if s == nil {
		return
	}
	m.release(s, conn)
}

// LeaveRoom detaches conn from its room without closing the connection.
func (m *Manager) LeaveRoom(ctx context.Context, conn ConnID) error {
	m.mu.Lock()
	s := m.conns[conn]
	delete(m.conns, conn)
	m.mu.Unlock()
	if s == nil {
		return ErrNotAttached
	}
	m.release(s, conn)
	return nil
}

// armVacantLocked starts the abandonment countdown for every human seat that
// has no live connection when the game goes active.
func (m *Manager) armVacantLocked(s *Session) []delivery {
	var ds []delivery
	for _, seat := range []Seat{SeatA, SeatB} {
		if s.isBotSeatLocked(seat) || s.seats[seat].conn != "" {
			continue
		}
		m.sup.armLocked(s, seat)
		ds = append(ds, s.broadcastLocked("", Event{Type: EventPlayerDisconnected, Payload: DisconnectPayload{
			Seat:           seat.Role(),
			TimeoutSeconds: m.sup.Grace().Seconds(),
		}})...)
	}
	return ds
}

func (m *Manager) release(s *Session, conn ConnID) {
	now := m.now()
	s.mu.Lock()
	seat, wasSeat, found := s.detachLocked(conn)
	if !found {
		s.mu.Unlock()
		return
	}
	var ds []delivery
	if wasSeat {
		if s.phase == PhaseActive && s.result == nil && !s.isBotSeatLocked(seat) {
			m.sup.armLocked(s, seat)
			ds = s.broadcastLocked("", Event{Type: EventPlayerDisconnected, Payload: DisconnectPayload{
				Seat:           seat.Role(),
				TimeoutSeconds: m.sup.Grace().Seconds(),
			}})
		}
	} else {
		ds = s.broadcastLocked("", Event{Type: EventSpectatorLeft, Payload: SpectatorPayload{Count: len(s.spectators)}})
	}
	idle := s.idleLocked()
	if idle {
		s.retired.Store(true)
	}
	s.mu.Unlock()

	m.logger.Info("room_detached",
		zap.String("room_id", s.id),
		zap.String("conn", string(conn)),
		zap.Bool("seat", wasSeat),
		zap.Bool("idle", idle),
		zap.Time("at", now),
	)
	m.flush(ds)
	if idle {
		m.drop(s)
	}
}

// drop removes a retired session from the registry if it still owns its id.
func (m *Manager) drop(s *Session) {
	m.mu.Lock()
	if cur, ok := m.rooms[s.id]; ok && cur == s {
		delete(m.rooms, s.id)
	}
	m.mu.Unlock()
	m.logger.Info("room_deleted", zap.String("room_id", s.id))
}

// collectIfIdle retires and drops s once nothing is attached to it.
func (m *Manager) collectIfIdle(s *Session) {
	s.mu.Lock()
	idle := !s.retired.Load() && s.idleLocked()
	if idle {
		s.retired.Store(true)
	}
	s.mu.Unlock()
	if idle {
		m.drop(s)
	}
}

func (m *Manager) lookup(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[id]
}

func (m *Manager) sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.rooms))
	for _, s := range m.rooms {
		out = append(out, s)
	}
	return out
}

func (m *Manager) sessionOf(conn ConnID) (*Session, error) {
	m.mu.RLock()
	s := m.conns[conn]
	m.mu.RUnlock()
	if s == nil {
		return nil, ErrNotAttached
	}
	return s, nil
}

// RoomCount is the number of registered rooms.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// ListSpectatableRooms returns active rooms between two humans.
func (m *Manager) ListSpectatableRooms() []RoomInfo {
	now := m.now()
	var out []RoomInfo
	for _, s := range m.sessions() {
		s.mu.Lock()
		if s.phase == PhaseActive && s.result == nil && s.mode != ModeBot && !s.retired.Load() {
			out = append(out, s.infoLocked(now))
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns the spectator view of room id.
func (m *Manager) Snapshot(id string) (Snapshot, error) {
	s := m.lookup(strings.TrimSpace(id))
	if s == nil {
		return Snapshot{}, ErrRoomNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired.Load() {
		return Snapshot{}, ErrRoomNotFound
	}
	return s.snapshotLocked(m.now()).ForRole(RoleSpectator), nil
}

// Moves returns the move log of room id.
func (m *Manager) Moves(id string) ([]MoveRecord, error) {
	s := m.lookup(strings.TrimSpace(id))
	if s == nil {
		return nil, ErrRoomNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MoveRecord(nil), s.moves...), nil
}

// ApplyMove routes a move from conn to its room.
func (m *Manager) ApplyMove(ctx context.Context, conn ConnID, mv Move) (MoveOutcome, error) {
	s, err := m.sessionOf(conn)
	if err != nil {
		return MoveOutcome{}, err
	}
	now := m.now()
	s.mu.Lock()
	seat, err := playerSeatLocked(s, conn)
	if err != nil {
		s.mu.Unlock()
		return MoveOutcome{}, err
	}
	out, ds, sum, err := m.applyLocked(s, seat, mv, now)
	s.mu.Unlock()
	if err != nil {
		return out, err
	}
	m.settle(s, sum, ds)
	return out, nil
}

func playerSeatLocked(s *Session, conn ConnID) (Seat, error) {
	role, ok := s.roleOfLocked(conn)
	if !ok {
		return 0, ErrNotAttached
	}
	seat, ok := role.Seat()
	if !ok {
		return 0, ErrNotAPlayer
	}
	return seat, nil
}

// applyLocked commits a move and prepares everything that must happen once
// the lock is released.
func (m *Manager) applyLocked(s *Session, seat Seat, mv Move, now time.Time) (MoveOutcome, []delivery, *Summary, error) {
	out, err := s.applyMoveLocked(seat, mv, now)
	if err != nil {
		return out, nil, nil, err
	}
	var last *Move
	if !out.TimedOut {
		applied := out.Move
		last = &applied
	}
	out.Snapshot = s.snapshotLocked(now)
	ds := s.gameUpdateLocked(now, last, out.Notation)

	var sum *Summary
	if summary, ok := s.claimSummaryLocked(); ok {
		sum = &summary
	} else {
		m.scheduleBotLocked(s)
	}

	m.logger.Info("move_applied",
		zap.String("room_id", s.id),
		zap.String("seat", seat.String()),
		zap.String("move", out.Move.UCI()),
		zap.String("notation", out.Notation),
		zap.Int("ply", out.Ply),
		zap.Bool("finished", out.Finished),
		zap.Bool("timed_out", out.TimedOut),
	)
	return out, ds, sum, nil
}

// Resign concedes for conn's seat. Resigning a finished game is a no-op.
func (m *Manager) Resign(ctx context.Context, conn ConnID) error {
	s, err := m.sessionOf(conn)
	if err != nil {
		return err
	}
	now := m.now()
	s.mu.Lock()
	seat, err := playerSeatLocked(s, conn)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.result != nil {
		s.mu.Unlock()
		return nil
	}
	if s.phase != PhaseActive {
		s.mu.Unlock()
		return ErrGameNotActive
	}
	s.settleClockLocked(now)
	s.finishLocked(winResult(seat.Opponent(), ReasonResign), now)
	ds := s.gameUpdateLocked(now, nil, "")
	sum, _ := s.claimSummaryLocked()
	s.mu.Unlock()

	m.logger.Info("player_resigned", zap.String("room_id", s.id), zap.String("seat", seat.String()))
	m.settle(s, &sum, ds)
	return nil
}

// OfferDraw offers a draw to conn's opponent. The bot declines at once.
func (m *Manager) OfferDraw(ctx context.Context, conn ConnID) error {
	s, err := m.sessionOf(conn)
	if err != nil {
		return err
	}
	s.mu.Lock()
	seat, err := playerSeatLocked(s, conn)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.phase != PhaseActive || s.result != nil {
		s.mu.Unlock()
		return ErrGameNotActive
	}
	var ds []delivery
	if s.isBotSeatLocked(seat.Opponent()) {
		ds = []delivery{{conn: conn, ev: Event{Type: EventDrawDeclined}}}
	} else {
		offer := seat
		s.drawOffer = &offer
		ds = s.broadcastLocked(conn, Event{Type: EventDrawOffered, Payload: DrawOfferPayload{From: seat.Role()}})
	}
	s.mu.Unlock()
	m.flush(ds)
	return nil
}

// RespondDraw answers the pending offer. Only the offered side may answer.
func (m *Manager) RespondDraw(ctx context.Context, conn ConnID, accept bool) error {
	s, err := m.sessionOf(conn)
	if err != nil {
		return err
	}
	now := m.now()
	s.mu.Lock()
	seat, err := playerSeatLocked(s, conn)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.phase != PhaseActive || s.result != nil {
		s.mu.Unlock()
		return ErrGameNotActive
	}
	if s.drawOffer == nil || *s.drawOffer == seat {
		s.mu.Unlock()
		return ErrNoDrawOffer
	}
	if !accept {
		s.drawOffer = nil
		ds := s.broadcastLocked("", Event{Type: EventDrawDeclined})
		s.mu.Unlock()
		m.flush(ds)
		return nil
	}
	s.settleClockLocked(now)
	s.finishLocked(drawResult(ReasonAgreement), now)
	ds := s.gameUpdateLocked(now, nil, "")
	sum, _ := s.claimSummaryLocked()
	s.mu.Unlock()

	m.logger.Info("draw_agreed", zap.String("room_id", s.id))
	m.settle(s, &sum, ds)
	return nil
}

// Chat relays a message from a seated player to the whole room.
func (m *Manager) Chat(ctx context.Context, conn ConnID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrInvalidArgs
	}
	if r := []rune(text); len(r) > maxChatLen {
		text = string(r[:maxChatLen])
	}
	s, err := m.sessionOf(conn)
	if err != nil {
		return err
	}
	s.mu.Lock()
	seat, err := playerSeatLocked(s, conn)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	name := s.seats[seat].player.Name
	ds := s.broadcastLocked("", Event{Type: EventChatMessage, Payload: ChatPayload{From: name, Role: seat.Role(), Text: text}})
	s.mu.Unlock()
	m.flush(ds)
	return nil
}

const maxChatLen = 500

// PossibleMoves lists legal targets from one origin square.
func (m *Manager) PossibleMoves(ctx context.Context, conn ConnID, from string) ([]string, error) {
	s, err := m.sessionOf(conn)
	if err != nil {
		return nil, err
	}
	from = strings.ToLower(strings.TrimSpace(from))
	s.mu.Lock()
	targets := s.targetsFromLocked(from)
	s.mu.Unlock()
	m.out.Send(conn, Event{Type: EventPossibleMoves, Payload: PossibleMovesPayload{From: from, Targets: targets}})
	return targets, nil
}

// RequestRematch records conn's vote. When every human seat has voted a new
// room is opened with colours swapped and the seated connections move into
// it. The new room id is returned once it exists.
func (m *Manager) RequestRematch(ctx context.Context, conn ConnID) (string, error) {
	s, err := m.sessionOf(conn)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	seat, err := playerSeatLocked(s, conn)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	if s.result == nil {
		s.mu.Unlock()
		return "", ErrGameNotOver
	}
	if s.rematchID != "" {
		id := s.rematchID
		s.mu.Unlock()
		return id, nil
	}
	s.rematch[seat] = struct{}{}
	if s.mode != ModeBot && len(s.rematch) < 2 {
		ds := s.broadcastLocked(conn, Event{Type: EventRematchRequested, Payload: RematchPayload{Role: seat.Role()}})
		s.mu.Unlock()
		m.flush(ds)
		return "", nil
	}

	id, err := roomCode("R")
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	now := m.now()
	opts := m.normalize(Options{Mode: s.mode, TimeControl: s.timeControl, Difficulty: s.difficulty})
	ns, err := newSession(id, opts, m.rules, m.sup, now)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	ns.reserved = s.mode != ModeBot
	if s.mode == ModeBot {
		ns.bindLocked(SeatA, *s.seats[seat].player, s.seats[seat].conn)
		ns.bindLocked(SeatB, botParticipant(), "")
	} else {
		for _, st := range []Seat{SeatA, SeatB} {
			ns.bindLocked(st.Opponent(), *s.seats[st].player, s.seats[st].conn)
		}
	}
	for _, st := range []Seat{SeatA, SeatB} {
		s.seats[st].conn = ""
	}
	s.rematchID = id
	s.mu.Unlock()

	m.mu.Lock()
	for m.rooms[ns.id] != nil {
		if ns.id, err = roomCode("R"); err != nil {
			m.mu.Unlock()
			return "", err
		}
	}
	for _, st := range []Seat{SeatA, SeatB} {
		c := ns.seats[st].conn
		if c == "" {
			continue
		}
		if m.conns[c] != s {
			ns.seats[st].conn = ""
			continue
		}
		m.conns[c] = ns
	}
	m.rooms[ns.id] = ns
	m.mu.Unlock()

	if ns.id != id {
		s.mu.Lock()
		s.rematchID = ns.id
		s.mu.Unlock()
	}

	ns.mu.Lock()
	if ns.mode == ModeBot {
		ns.activateLocked(now)
	} else {
		ns.maybeActivateLocked(now)
	}
	m.scheduleBotLocked(ns)
	snap := ns.snapshotLocked(now)
	ds := ns.fanoutLocked("", func(r Role) Event {
		return Event{Type: EventRematchReady, Payload: RematchPayload{Room: ns.id, Role: r}}
	})
	ds = append(ds, ns.fanoutLocked("", func(r Role) Event {
		return Event{Type: EventRoomJoined, Payload: RoomPayload{Room: ns.id, Role: r, Snapshot: snap.ForRole(r)}}
	})...)
	if ns.phase == PhaseActive {
		ds = append(ds, m.armVacantLocked(ns)...)
	}
	ns.mu.Unlock()

	m.logger.Info("rematch_started",
		zap.String("room_id", s.id),
		zap.String("new_room_id", ns.id),
		zap.String("mode", string(ns.mode)),
	)
	m.flush(ds)
	m.collectIfIdle(s)
	return ns.id, nil
}

func (m *Manager) flush(ds []delivery) {
	for _, d := range ds {
		m.out.Send(d.conn, d.ev)
	}
}

// settle runs the post-unlock half of a state change: broadcast, then record.
func (m *Manager) settle(s *Session, sum *Summary, ds []delivery) {
	m.flush(ds)
	if sum != nil {
		m.record(*sum)
	}
}

func (m *Manager) forfeited(s *Session, sum *Summary, ds []delivery) {
	m.settle(s, sum, ds)
	m.collectIfIdle(s)
}

func (m *Manager) record(sum Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RecordTimeout)
	defer cancel()
	if err := m.recorder.RecordCompletedGame(ctx, sum); err != nil {
		m.logger.Warn("game_record_failed",
			zap.String("room_id", sum.RoomID),
			zap.Error(fmt.Errorf("%w: %v", ErrPersistenceFailure, err)),
		)
		return
	}
	m.logger.Info("game_recorded",
		zap.String("room_id", sum.RoomID),
		zap.String("winner", sum.Winner),
		zap.String("reason", string(sum.Reason)),
		zap.Int("moves", len(sum.Moves)),
	)
}

// roomCode returns prefix + "-" + 6 upper alnum characters.
func roomCode(prefix string) (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return fmt.Sprintf("%s-%s", prefix, string(b)), nil
}
