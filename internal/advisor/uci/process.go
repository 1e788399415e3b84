// Package uci drives UCI chess engine processes over stdin/stdout.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	readyTimeout     = 4 * time.Second
	readyRetries     = 3
	readyRetryPause  = 150 * time.Millisecond
	mateScore        = 30000
	searchSlackMilli = 2000
)

var errNoLimits = errors.New("uci: no search limits")

// Options are applied once when a process starts. Processes with equal
// Options are interchangeable.
type Options struct {
	Threads    int
	SkillLevel int
	HashMB     int
	MultiPV    int
	Elo        int
}

func (o Options) key() string {
	return fmt.Sprintf("t%d/s%d/h%d/pv%d/elo%d", o.Threads, o.SkillLevel, o.HashMB, o.MultiPV, o.Elo)
}

func (o Options) validate() error {
	switch {
	case o.SkillLevel < 0 || o.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", o.SkillLevel)
	case o.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", o.HashMB)
	case o.MultiPV <= 0:
		return fmt.Errorf("multipv must be > 0: %d", o.MultiPV)
	case o.Elo < 0:
		return fmt.Errorf("elo must be >= 0: %d", o.Elo)
	}
	return nil
}

// Limits bound one search. Zero fields are omitted from the go command.
type Limits struct {
	Depth    int
	MoveTime time.Duration
	Nodes    int
}

func (l Limits) goCommand() (string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if ms := l.MoveTime.Milliseconds(); ms > 0 {
		args = append(args, "movetime", strconv.FormatInt(ms, 10))
	}
	if l.Nodes > 0 {
		args = append(args, "nodes", strconv.Itoa(l.Nodes))
	}
	if len(args) == 1 {
		return "", errNoLimits
	}
	return strings.Join(args, " "), nil
}

// deadline is how long a search may take before the process is considered stuck.
func (l Limits) deadline() time.Duration {
	if ms := l.MoveTime.Milliseconds(); ms > 0 {
		return 3 * time.Duration(ms+searchSlackMilli) * time.Millisecond
	}
	if l.Depth > 0 {
		d := time.Duration(l.Depth) * 300 * time.Millisecond
		return min(max(d, 6*time.Second), 20*time.Second)
	}
	return 6 * time.Second
}

// Line is one principal variation reported by the engine.
type Line struct {
	Move   string
	EvalCP int
	PV     []string
}

type Result struct {
	Lines    []Line
	BestMove string
}

// Process is one running engine. A process serves one search at a time.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	logger *zap.Logger

	writeMu  sync.Mutex
	searchMu sync.Mutex
}

// Start launches binary and performs the uci/isready handshake.
func Start(ctx context.Context, binary string, opt Options, logger *zap.Logger) (*Process, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cmd := exec.Command(binary)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}
	p := &Process{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout), logger: logger}
	if err := p.handshake(ctx, opt); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Process) handshake(ctx context.Context, opt Options) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := p.write("uci"); err != nil {
		return err
	}
	if err := p.waitFor(ctx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	threads := opt.Threads
	if threads <= 0 {
		threads = 1
	}
	setup := []string{
		"setoption name Threads value " + strconv.Itoa(threads),
		"setoption name Hash value " + strconv.Itoa(opt.HashMB),
		"setoption name Skill Level value " + strconv.Itoa(opt.SkillLevel),
		"setoption name MultiPV value " + strconv.Itoa(opt.MultiPV),
		"setoption name Move Overhead value 100",
	}
	if opt.Elo > 0 {
		setup = append(setup,
			"setoption name UCI_LimitStrength value true",
			"setoption name UCI_Elo value "+strconv.Itoa(opt.Elo),
		)
	}
	for _, line := range setup {
		if err := p.write(line); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	if err := p.write("isready"); err != nil {
		return err
	}
	if err := p.waitFor(ctx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// Ping checks the process still answers isready.
func (p *Process) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := p.write("isready"); err != nil {
		return err
	}
	return p.waitFor(ctx, "readyok")
}

// Reset clears engine state between games, retrying the readiness check.
func (p *Process) Reset(ctx context.Context) error {
	if err := p.write("ucinewgame"); err != nil {
		return err
	}
	var err error
	for attempt := 1; attempt <= readyRetries; attempt++ {
		if err = p.Ping(ctx); err == nil {
			return nil
		}
		p.logger.Warn("uci_ready_retry", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyRetryPause):
		}
	}
	return err
}

// Search analyses fen and returns every reported line ordered by multipv.
func (p *Process) Search(ctx context.Context, fen string, limits Limits) (Result, error) {
	p.searchMu.Lock()
	defer p.searchMu.Unlock()

	goCmd, err := limits.goCommand()
	if err != nil {
		return Result{}, err
	}
	if err := p.write(positionCommand(fen, nil)); err != nil {
		return Result{}, err
	}
	if err := p.write(goCmd); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, limits.deadline())
	defer cancel()
	lines := make(map[int]Line)
	for {
		raw, err := p.readLine(ctx)
		if err != nil {
			p.logger.Warn("uci_search_read_failed", zap.String("fen", fen), zap.String("go", goCmd), zap.Error(err))
			return Result{}, fmt.Errorf("read: %w", err)
		}
		switch {
		case strings.HasPrefix(raw, "info "):
			if idx, line, ok := parseInfo(raw); ok {
				lines[idx] = line
			}
		case strings.HasPrefix(raw, "bestmove"):
			res := Result{Lines: ordered(lines)}
			if f := strings.Fields(raw); len(f) >= 2 {
				res.BestMove = f[1]
			}
			return res, nil
		}
	}
}

func (p *Process) Close() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	_ = p.cmd.Process.Kill()
	return p.cmd.Wait()
}

func (p *Process) write(line string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}
	return nil
}

func (p *Process) waitFor(ctx context.Context, token string) error {
	for {
		line, err := p.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

// readLine gives up when ctx ends; the pending read is left to the process
// teardown.
func (p *Process) readLine(ctx context.Context) (string, error) {
	type read struct {
		line string
		err  error
	}
	ch := make(chan read, 1)
	go func() {
		line, err := p.stdout.ReadString('\n')
		ch <- read{strings.TrimSpace(line), err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.line, r.err
	}
}

func positionCommand(fen string, moves []string) string {
	var sb strings.Builder
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	return sb.String()
}

// parseInfo extracts the multipv index and line from an "info" message.
// Messages without a pv are ignored.
func parseInfo(raw string) (int, Line, bool) {
	f := strings.Fields(raw)
	idx := 1
	var line Line
	for i := 0; i < len(f); i++ {
		switch f[i] {
		case "multipv":
			if i+1 < len(f) {
				if v, err := strconv.Atoi(f[i+1]); err == nil {
					idx = v
				}
				i++
			}
		case "score":
			if i+2 >= len(f) {
				continue
			}
			v, err := strconv.Atoi(f[i+2])
			if err == nil {
				switch f[i+1] {
				case "cp":
					line.EvalCP = v
				case "mate":
					line.EvalCP = mateScore
					if v < 0 {
						line.EvalCP = -mateScore
					}
				}
			}
			i += 2
		case "pv":
			if i+1 >= len(f) {
				return 0, Line{}, false
			}
			line.PV = append([]string(nil), f[i+1:]...)
			line.Move = line.PV[0]
			return idx, line, true
		}
	}
	return 0, Line{}, false
}

func ordered(m map[int]Line) []Line {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]Line, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
